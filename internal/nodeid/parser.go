// internal/nodeid/parser.go
package nodeid

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/specialistvlad/cellgrid/internal/cell"
)

// Parse creates an Address from its canonical string representation.
func Parse(raw string) (Address, error) {
	if raw == "" {
		return Address{}, fmt.Errorf("cell address cannot be empty")
	}

	i := strings.LastIndexAny(raw, ":#")
	if i <= 0 || i == len(raw)-1 {
		return Address{}, fmt.Errorf("invalid cell address %q: want module:name or module#index", raw)
	}
	module, rest := cell.ModuleID(raw[:i]), raw[i+1:]

	if raw[i] == '#' {
		index, err := strconv.Atoi(rest)
		if err != nil || index < 0 {
			return Address{}, fmt.Errorf("invalid cell index %q in %q", rest, raw)
		}
		return ByIndex(module, index), nil
	}
	if !hclsyntax.ValidIdentifier(rest) {
		return Address{}, fmt.Errorf("invalid cell name %q in %q", rest, raw)
	}
	return ByName(module, rest), nil
}
