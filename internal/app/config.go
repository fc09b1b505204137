package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/specialistvlad/codebox/internal/config"
	"github.com/specialistvlad/codebox/internal/hcl_adapter"
	"github.com/specialistvlad/codebox/internal/yaml_adapter"
)

// Config holds everything needed to build an App.
type Config struct {
	// ConfigPath is an HCL file, a directory of HCL files, or a YAML file.
	// Empty means built-in defaults only.
	ConfigPath string
	// Overrides is applied on top of the file, typically from CLI flags.
	Overrides config.Patch
}

// loaderFor picks the configuration format from path.
func loaderFor(path string) (config.Loader, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("error accessing configuration %s: %w", path, err)
	}
	if info.IsDir() {
		return hcl_adapter.NewLoader(), nil
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".hcl":
		return hcl_adapter.NewLoader(), nil
	case ".yaml", ".yml":
		return yaml_adapter.NewLoader(), nil
	default:
		return nil, fmt.Errorf("unsupported configuration format %q (want .hcl, .yaml or .yml)", filepath.Ext(path))
	}
}

// resolveConfig loads the configuration file, if any, and layers the
// overrides on top.
func resolveConfig(ctx context.Context, cfg *Config, loader config.Loader) (*config.Model, error) {
	var patches []config.Patch
	if loader != nil {
		p, err := loader.Load(ctx, cfg.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load configuration: %w", err)
		}
		patches = append(patches, p)
	}
	patches = append(patches, cfg.Overrides)
	return config.Resolve(patches...)
}
