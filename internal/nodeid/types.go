// internal/nodeid/types.go
package nodeid

import "github.com/specialistvlad/cellgrid/internal/cell"

// Address is the structured representation of a cell address.
type Address struct {
	Module cell.ModuleID
	// Name is set for "module:name" addresses.
	Name string
	// Index is the declaration index for "module#index" addresses, -1 otherwise.
	Index int
}

// ByName creates an address for a named cell.
func ByName(module cell.ModuleID, name string) Address {
	return Address{Module: module, Name: name, Index: -1}
}

// ByIndex creates an address for the cell declared at index.
func ByIndex(module cell.ModuleID, index int) Address {
	return Address{Module: module, Index: index}
}

// HasIndex returns true if the address selects a cell by position.
func (a Address) HasIndex() bool {
	return a.Index != -1
}

// ID returns the cell id for index addresses.
func (a Address) ID() (cell.ID, bool) {
	if !a.HasIndex() {
		return cell.ID{}, false
	}
	return cell.ID{Module: a.Module, Index: a.Index}, true
}
