package notebookhcl

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/specialistvlad/cellgrid/internal/cell"
	"github.com/specialistvlad/cellgrid/internal/ctyconv"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
)

// Body is a cell body backed by an HCL expression.
type Body struct {
	expr      hcl.Expression
	inputs    []string
	functions map[string]function.Function
	source    string

	generator bool
	every     time.Duration
	delay     time.Duration
}

var _ cell.Computable = (*Body)(nil)

// Compute evaluates the expression with inputs bound to their names.
func (b *Body) Compute(ctx context.Context, inputs []any) (any, error) {
	if len(inputs) != len(b.inputs) {
		return nil, fmt.Errorf("expected %d inputs, got %d", len(b.inputs), len(inputs))
	}
	vars := make(map[string]cty.Value, len(inputs))
	for i, name := range b.inputs {
		v, err := ctyconv.FromNative(inputs[i])
		if err != nil {
			return nil, fmt.Errorf("input '%s': %w", name, err)
		}
		vars[name] = v
	}
	evalCtx := &hcl.EvalContext{Variables: vars, Functions: b.functions}

	val, diags := b.expr.Value(evalCtx)
	if diags.HasErrors() {
		return nil, diags
	}

	if b.generator {
		return b.sequence(val)
	}
	native, err := ctyconv.ToNative(val)
	if err != nil {
		return nil, err
	}
	if b.delay > 0 {
		return cell.After(b.delay, native), nil
	}
	return native, nil
}

func (b *Body) sequence(val cty.Value) (cell.Generator, error) {
	ty := val.Type()
	if val.IsNull() || !(ty.IsTupleType() || ty.IsListType() || ty.IsSetType()) {
		return nil, fmt.Errorf("yield must be a list of values, got %s", ty.FriendlyName())
	}
	items, err := ctyconv.ToNative(val)
	if err != nil {
		return nil, err
	}
	return cell.Values(b.every, items.([]any)...), nil
}

// Inputs returns the names the expression is evaluated with.
func (b *Body) Inputs() []string {
	return b.inputs
}

// Source returns the formatted source of the expression.
func (b *Body) Source() string {
	return b.source
}

// Generator reports whether the body yields a sequence of values.
func (b *Body) Generator() bool {
	return b.generator
}

// Delay returns how long each value is deferred.
func (b *Body) Delay() time.Duration {
	return b.delay
}
