package app

import (
	"io"

	"github.com/specialistvlad/cellgrid/internal/registry"
	"github.com/specialistvlad/cellgrid/modules/env_vars"
	"github.com/specialistvlad/cellgrid/modules/print"
)

// coreModules is the definitive list of all modules that are compiled into
// the cellgrid binary. The globals module is always added on top by NewApp.
func coreModules(outW io.Writer) []registry.Module {
	return []registry.Module{
		&env_vars.Module{},
		&print.Module{Out: outW},
	}
}
