// internal/nodeid/address.go
package nodeid

import "strconv"

// String serializes the Address into its canonical string representation.
func (a Address) String() string {
	if a.HasIndex() {
		return string(a.Module) + "#" + strconv.Itoa(a.Index)
	}
	return string(a.Module) + ":" + a.Name
}
