// Package registry is the glue between the engine modules compiled into the
// binary and the engine kind named in configuration.
//
// Each module under modules/ implements Module and, in Register, maps a kind
// string (for example "python") to a Builder. At startup the app registers
// all core modules, then asks the registry for a Factory matching the
// configured engine.Spec. An unknown kind is a configuration error; a
// duplicate kind is a programmer error and panics.
package registry
