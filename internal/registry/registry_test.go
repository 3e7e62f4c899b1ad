package registry

import (
	"context"
	"testing"

	"github.com/specialistvlad/cellgrid/internal/ctxlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

type fakeModule struct{}

func (fakeModule) Register(r *Registry) {
	r.RegisterRoot("answer", func(context.Context) (any, error) { return 42, nil })
	r.RegisterFunction("upper", stdlib.UpperFunc)
}

func TestRoots(t *testing.T) {
	ctx := ctxlog.Discard(context.Background())
	r := New()
	fakeModule{}.Register(r)
	r.Allow("md", "answer")

	assert.True(t, r.Has("answer"))
	assert.True(t, r.Has("md"))
	assert.False(t, r.Has("window"))
	assert.Equal(t, []string{"answer", "md"}, r.Roots())

	v, err := r.Value(ctx, "answer")
	require.NoError(t, err)
	assert.Equal(t, 42, v, "allowlisting a registered root keeps its value")

	v, err = r.Value(ctx, "md")
	require.NoError(t, err)
	assert.Nil(t, v)

	_, err = r.Value(ctx, "window")
	assert.ErrorContains(t, err, "not registered")
}

func TestRegisterPanicsOnDuplicates(t *testing.T) {
	r := New()
	fakeModule{}.Register(r)

	assert.PanicsWithValue(t, "root with name 'answer' already registered", func() {
		r.RegisterRoot("answer", func(context.Context) (any, error) { return nil, nil })
	})
	assert.PanicsWithValue(t, "function with name 'upper' already registered", func() {
		r.RegisterFunction("upper", stdlib.LowerFunc)
	})
}

func TestRegisterRootUpgradesAllowlistedName(t *testing.T) {
	r := New()
	r.Allow("env")
	assert.NotPanics(t, func() {
		r.RegisterRoot("env", func(context.Context) (any, error) { return "x", nil })
	})
	v, err := r.Value(context.Background(), "env")
	require.NoError(t, err)
	assert.Equal(t, "x", v)
}

func TestFunctionsReturnsCopy(t *testing.T) {
	r := New()
	fakeModule{}.Register(r)
	fns := r.Functions()
	delete(fns, "upper")
	assert.Contains(t, r.Functions(), "upper")
}

func TestValidate(t *testing.T) {
	ctx := ctxlog.Discard(context.Background())

	t.Run("valid identifiers pass", func(t *testing.T) {
		r := New()
		fakeModule{}.Register(r)
		r.Allow("StyleSheetList")
		assert.NoError(t, r.Validate(ctx))
	})

	t.Run("invalid names are listed", func(t *testing.T) {
		r := New()
		r.Allow("viewof x", "ok")
		r.RegisterFunction("1bad", stdlib.UpperFunc)
		err := r.Validate(ctx)
		require.Error(t, err)
		assert.ErrorContains(t, err, "root 'viewof x' is not a valid identifier")
		assert.ErrorContains(t, err, "function '1bad' is not a valid identifier")
		assert.NotContains(t, err.Error(), "'ok'")
	})
}
