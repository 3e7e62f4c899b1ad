package cell

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadModule(t *testing.T) {
	t.Parallel()

	t.Run("builds cells in declaration order", func(t *testing.T) {
		t.Parallel()
		m, err := LoadModule(RawModule{
			ID: "nb@1",
			Variables: []RawVariable{
				{Name: "a", Value: Const(1)},
				{Inputs: []string{"a"}, Value: Const(nil)},
				{Name: "y", From: "lib"},
				{Name: "z", From: "lib", Remote: "zz"},
			},
		})
		require.NoError(t, err)
		require.Len(t, m.Cells, 4)

		assert.Equal(t, ModuleID("nb@1"), m.ID)
		assert.Equal(t, ID{Module: "nb@1", Index: 1}, m.Cells[1].ID)
		assert.True(t, m.Cells[1].Anonymous())
		assert.Equal(t, "nb@1#1", m.Cells[1].Label())
		assert.Equal(t, "nb@1:a", m.Cells[0].Label())

		require.True(t, m.Cells[2].IsImport())
		assert.Equal(t, ImportSource{Module: "lib", Remote: "y"}, *m.Cells[2].Import)
		assert.Equal(t, ImportSource{Module: "lib", Remote: "zz"}, *m.Cells[3].Import)
		assert.Nil(t, m.Cells[3].Body)
	})

	t.Run("structural errors", func(t *testing.T) {
		t.Parallel()
		testCases := []struct {
			name    string
			raw     RawModule
			wantMsg string
		}{
			{"missing id", RawModule{ID: "  "}, "module id is required"},
			{"import with inputs", RawModule{ID: "m", Variables: []RawVariable{{Name: "x", From: "lib", Inputs: []string{"a"}}}}, "cannot declare inputs"},
			{"import with body", RawModule{ID: "m", Variables: []RawVariable{{Name: "x", From: "lib", Value: Const(1)}}}, "cannot have a body"},
			{"anonymous import", RawModule{ID: "m", Variables: []RawVariable{{From: "lib", Remote: "x"}}}, "must be named"},
			{"remote without from", RawModule{ID: "m", Variables: []RawVariable{{Name: "x", Remote: "y", Value: Const(1)}}}, "without a source module"},
			{"missing body", RawModule{ID: "m", Variables: []RawVariable{{Name: "x"}}}, "has no body"},
			{"empty input", RawModule{ID: "m", Variables: []RawVariable{{Name: "x", Inputs: []string{""}, Value: Const(1)}}}, "input 0 is empty"},
		}
		for _, tc := range testCases {
			t.Run(tc.name, func(t *testing.T) {
				m, err := LoadModule(tc.raw)
				require.Error(t, err)
				assert.Nil(t, m)
				assert.True(t, errors.Is(err, ErrStructural))
				assert.ErrorContains(t, err, tc.wantMsg)
			})
		}
	})

	t.Run("reports every bad cell", func(t *testing.T) {
		t.Parallel()
		_, err := LoadModule(RawModule{ID: "m", Variables: []RawVariable{
			{Name: "a"},
			{Name: "b", Value: Const(1)},
			{Name: "c", From: "lib", Inputs: []string{"b"}},
		}})
		require.Error(t, err)
		assert.ErrorContains(t, err, "m:a")
		assert.ErrorContains(t, err, "m:c")
		assert.NotContains(t, err.Error(), "m:b")
	})
}

func TestErrorFormatting(t *testing.T) {
	t.Parallel()

	err := CycleError(ErrCyclicDependency, []string{"m:a", "m:b"})
	assert.Equal(t, "cyclic dependency: m:a -> m:b -> m:a", err.Error())
	assert.ErrorIs(t, err, ErrCyclicDependency)
	assert.NotErrorIs(t, err, ErrCyclicImport)

	wrapped := &Error{Kind: ErrFailedDependency, Cell: "m:c", Cause: NewError(ErrDisposed, "m:a", "")}
	assert.ErrorIs(t, wrapped, ErrFailedDependency)
	assert.ErrorIs(t, wrapped, ErrDisposed)
	assert.Equal(t, "failed dependency in m:c: disposed in m:a", wrapped.Error())
}

func TestBodies(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("values generator", func(t *testing.T) {
		t.Parallel()
		g := Values(time.Millisecond, 1, 2)
		v, ok, err := g.Next(ctx)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, 1, v)
		v, ok, _ = g.Next(ctx)
		assert.True(t, ok)
		assert.Equal(t, 2, v)
		_, ok, _ = g.Next(ctx)
		assert.False(t, ok)
		assert.NoError(t, g.Close())
	})

	t.Run("channel generator stops on close", func(t *testing.T) {
		t.Parallel()
		ch := make(chan any, 1)
		stopped := false
		g := FromChannel(ch, func() { stopped = true })
		ch <- "x"
		v, ok, err := g.Next(ctx)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "x", v)
		close(ch)
		_, ok, _ = g.Next(ctx)
		assert.False(t, ok)
		require.NoError(t, g.Close())
		assert.True(t, stopped)
	})

	t.Run("after honours cancellation", func(t *testing.T) {
		t.Parallel()
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := After(time.Hour, 1).Await(cctx)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("typed input access", func(t *testing.T) {
		t.Parallel()
		n, err := Input[int]([]any{3}, 0)
		require.NoError(t, err)
		assert.Equal(t, 3, n)
		_, err = Input[string]([]any{3}, 0)
		assert.ErrorContains(t, err, "has type int")
		_, err = Input[int](nil, 0)
		assert.ErrorContains(t, err, "out of range")
	})
}
