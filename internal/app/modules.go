package app

import (
	"github.com/specialistvlad/codebox/internal/registry"
	"github.com/specialistvlad/codebox/modules/python"
	"github.com/specialistvlad/codebox/modules/shell"
)

// coreModules is the definitive list of all engine modules that are compiled
// into the codebox binary.
var coreModules = []registry.Module{
	&python.Module{},
	&shell.Module{},
}
