// Package globals allowlists the names notebooks may read without defining
// them.
package globals

import "github.com/specialistvlad/cellgrid/internal/registry"

// Names are treated as already defined by every notebook.
var Names = []string{
	"md",
	"html",
	"document",
	"window",
	"Node",
	"NodeList",
	"StyleSheetList",
}

// Module implements the registry.Module interface for this package.
type Module struct {
	// Extra names to allowlist alongside Names.
	Extra []string
}

// Register allowlists the names with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.Allow(Names...)
	r.Allow(m.Extra...)
}
