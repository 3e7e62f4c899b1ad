package resolve

import "github.com/specialistvlad/cellgrid/internal/cell"

// Lookup returns the cell that currently defines name in m: the last
// declared cell with that name. Anonymous cells are never returned.
func Lookup(m *cell.Module, name string) (*cell.Cell, bool) {
	if name == "" {
		return nil, false
	}
	for i := len(m.Cells) - 1; i >= 0; i-- {
		if m.Cells[i].Name == name {
			return m.Cells[i], true
		}
	}
	return nil, false
}

// LookupAt resolves name as seen from the cell declared at index. The latest
// definition declared before index wins; a name only defined later in the
// module resolves to its final definition.
func LookupAt(m *cell.Module, name string, index int) (*cell.Cell, bool) {
	if name == "" {
		return nil, false
	}
	for i := min(index, len(m.Cells)) - 1; i >= 0; i-- {
		if m.Cells[i].Name == name {
			return m.Cells[i], true
		}
	}
	return Lookup(m, name)
}

// Shadowed returns the cells of m that are redefined later under the same
// name. Nothing declared after the redefinition can reach them.
func Shadowed(m *cell.Module) []*cell.Cell {
	var out []*cell.Cell
	for _, c := range m.Cells {
		if c.Anonymous() {
			continue
		}
		if last, _ := Lookup(m, c.Name); last != c {
			out = append(out, c)
		}
	}
	return out
}
