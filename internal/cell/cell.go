// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// This file defines the Module and Cell structures, the format-agnostic data
// model every other package works on.
//
// A Module is an ordered collection of cells loaded from one notebook
// document. Order matters: it is the declaration order used to resolve
// redefinitions and to break scheduling ties. Once LoadModule returns a Module
// nothing in it changes; runtime values live in the runtime's value store, not
// here.
package cell

import (
	"fmt"
	"strconv"
)

// ModuleID identifies a loaded module, for example "28e219d819b6b627@2228".
type ModuleID string

// ID is the identity of a cell: the module that owns it and its position in
// that module's declaration order.
type ID struct {
	Module ModuleID
	Index  int
}

// String renders the ID as "module#index".
func (id ID) String() string {
	return string(id.Module) + "#" + strconv.Itoa(id.Index)
}

// ImportSource names the module and remote name an import cell aliases.
type ImportSource struct {
	Module ModuleID
	Remote string
}

// Cell is a single declaration inside a module.
type Cell struct {
	ID ID
	// Name is empty for anonymous cells.
	Name string
	// Inputs are the names this cell reads, in the order the body receives them.
	Inputs []string
	// Import is set for cells that alias a name defined in another module.
	Import *ImportSource
	// Body computes the value. Nil for import cells.
	Body Computable
}

// Anonymous reports whether the cell has no name. Anonymous cells run for
// their side effects and can never be referenced.
func (c *Cell) Anonymous() bool {
	return c.Name == ""
}

// IsImport reports whether the cell aliases a definition from another module.
func (c *Cell) IsImport() bool {
	return c.Import != nil
}

// Label is the human-readable identity used in logs and error messages:
// "module:name" for named cells, "module#index" for anonymous ones.
func (c *Cell) Label() string {
	if c.Anonymous() {
		return c.ID.String()
	}
	return fmt.Sprintf("%s:%s", c.ID.Module, c.Name)
}

// Module is an immutable, ordered collection of cells.
type Module struct {
	ID    ModuleID
	Cells []*Cell
}

// Cell returns the cell declared at index, or nil when out of range.
func (m *Module) Cell(index int) *Cell {
	if index < 0 || index >= len(m.Cells) {
		return nil
	}
	return m.Cells[index]
}
