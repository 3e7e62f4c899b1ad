package print

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/specialistvlad/cellgrid/internal/ctyconv"
	"github.com/specialistvlad/cellgrid/internal/registry"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
)

// Module implements the registry.Module interface for this package.
type Module struct {
	// Out receives printed values. Defaults to os.Stdout.
	Out io.Writer

	mu sync.Mutex
}

// Function returns print(value), which writes value on its own line and
// returns it unchanged so it can wrap any expression.
func (m *Module) Function() function.Function {
	return function.New(&function.Spec{
		Description: "Writes a value to the output and returns it.",
		Params: []function.Parameter{{
			Name:             "value",
			Type:             cty.DynamicPseudoType,
			AllowNull:        true,
			AllowDynamicType: true,
		}},
		Type: func(args []cty.Value) (cty.Type, error) {
			return args[0].Type(), nil
		},
		Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
			m.mu.Lock()
			defer m.mu.Unlock()
			out := m.Out
			if out == nil {
				out = os.Stdout
			}
			if _, err := fmt.Fprintln(out, ctyconv.Format(args[0])); err != nil {
				return cty.NilVal, err
			}
			return args[0], nil
		},
	})
}

// Register registers the print function with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterFunction("print", m.Function())
}
