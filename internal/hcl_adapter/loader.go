package hcl_adapter

import (
	"context"
	"fmt"
	"os"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/specialistvlad/codebox/internal/config"
	"github.com/specialistvlad/codebox/internal/ctxlog"
	"github.com/specialistvlad/codebox/internal/fsutil"
)

// Loader is the HCL-specific implementation of the config.Loader interface.
type Loader struct {
	lookupEnv func(string) (string, bool)
}

// NewLoader creates a new HCL configuration loader reading the process
// environment.
func NewLoader() *Loader {
	return &Loader{lookupEnv: os.LookupEnv}
}

var _ config.Loader = (*Loader)(nil)

// fileRoot is the set of top-level blocks a configuration may declare.
type fileRoot struct {
	Server    *serverBlock    `hcl:"server,block"`
	Engine    *engineBlock    `hcl:"engine,block"`
	Dispatch  *dispatchBlock  `hcl:"dispatch,block"`
	Sessions  *sessionsBlock  `hcl:"sessions,block"`
	Catalog   *catalogBlock   `hcl:"catalog,block"`
	WebSocket *websocketBlock `hcl:"websocket,block"`
	Log       *logBlock       `hcl:"log,block"`
}

// Load parses the file or every .hcl file under the directory at path.
func (l *Loader) Load(ctx context.Context, path string) (config.Patch, error) {
	logger := ctxlog.FromContext(ctx)

	files, err := hclFiles(path)
	if err != nil {
		return config.Patch{}, err
	}
	logger.Debug("Discovered HCL files.", "count", len(files))

	parser := hclparse.NewParser()
	parsed := make([]*hcl.File, 0, len(files))
	for _, file := range files {
		f, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return config.Patch{}, fmt.Errorf("failed to parse HCL file %s: %w", file, diags)
		}
		parsed = append(parsed, f)
	}

	var root fileRoot
	diags := gohcl.DecodeBody(hcl.MergeFiles(parsed), l.evalContext(), &root)
	if diags.HasErrors() {
		return config.Patch{}, fmt.Errorf("failed to decode HCL configuration %s: %w", path, diags)
	}

	patch, err := root.translate()
	if err != nil {
		return config.Patch{}, fmt.Errorf("invalid HCL configuration %s: %w", path, err)
	}
	logger.Debug("HCL loading complete.", "path", path)
	return patch, nil
}

func hclFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("error accessing path %s: %w", path, err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}
	files, err := fsutil.FindFilesByExtension(path, ".hcl")
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no .hcl files found in %s", path)
	}
	return files, nil
}
