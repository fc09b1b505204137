// Package config defines the format-agnostic configuration model for codebox
// and the Loader interface that concrete file formats implement.
//
// Configuration is built in layers: Default() supplies every value, a file
// loaded by a Loader contributes a Patch, and command-line flags contribute a
// final Patch. A Patch only carries the fields its source actually set, so
// later layers override earlier ones field by field. The HCL and YAML loaders
// live in the hcl_adapter and yaml_adapter packages.
package config
