package notebookhcl

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/specialistvlad/cellgrid/internal/cell"
	"github.com/specialistvlad/cellgrid/internal/ctxlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
)

func parse(t *testing.T, src string) ([]cell.RawModule, hcl.Diagnostics) {
	t.Helper()
	return NewLoader(nil).Parse(ctxlog.Discard(context.Background()), "test.hcl", []byte(src))
}

func mustParse(t *testing.T, src string) []cell.RawModule {
	t.Helper()
	mods, diags := parse(t, src)
	require.False(t, diags.HasErrors(), "unexpected diagnostics: %s", diags.Error())
	return mods
}

func compute(t *testing.T, v cell.RawVariable, inputs ...any) any {
	t.Helper()
	out, err := v.Value.Compute(context.Background(), inputs)
	require.NoError(t, err)
	return out
}

func TestParse_Notebook(t *testing.T) {
	t.Parallel()

	mods := mustParse(t, `
notebook "@demo/main" {
  cell "a" { value = 1 }
  cell "b" { value = a + 1 }
  cell "c" {
    inputs = ["b", "a"]
    value  = b * 10
  }
  effect { value = upper("side effect") }
  import "y" {
    from   = "@demo/lib"
    remote = "z"
  }
  import "w" { from = "@demo/lib" }
}

notebook "@demo/lib" {
  cell "z" { value = "zed" }
}
`)
	require.Len(t, mods, 2)
	main := mods[0]
	assert.Equal(t, "@demo/main", main.ID)
	assert.Equal(t, "@demo/lib", mods[1].ID)
	require.Len(t, main.Variables, 6)

	a, b, c, effect, y, w := main.Variables[0], main.Variables[1], main.Variables[2], main.Variables[3], main.Variables[4], main.Variables[5]

	assert.Equal(t, "a", a.Name)
	assert.Empty(t, a.Inputs)
	assert.Equal(t, 1, compute(t, a))

	assert.Equal(t, []string{"a"}, b.Inputs, "inputs are inferred from references")
	assert.Equal(t, 3, compute(t, b, 2))

	assert.Equal(t, []string{"b", "a"}, c.Inputs, "explicit inputs keep their order")
	assert.Equal(t, 30, compute(t, c, 3, 1))

	assert.Empty(t, effect.Name)
	assert.Equal(t, "SIDE EFFECT", compute(t, effect))

	assert.Equal(t, "y", y.Name)
	assert.Equal(t, "@demo/lib", y.From)
	assert.Equal(t, "z", y.Remote)
	assert.Nil(t, y.Value)

	assert.Equal(t, "@demo/lib", w.From)
	assert.Empty(t, w.Remote, "remote defaults later, in LoadModule")

	m, err := cell.LoadModule(main)
	require.NoError(t, err)
	assert.Equal(t, "w", m.Cells[5].Import.Remote)
}

func TestParse_AsyncBodies(t *testing.T) {
	t.Parallel()

	mods := mustParse(t, `
notebook "m" {
  cell "later" {
    value = 2 * 21
    delay = "5ms"
  }
  cell "ticks" {
    yield = [1, "two", n]
    every = "1ms"
  }
}
`)
	later, ticks := mods[0].Variables[0], mods[0].Variables[1]

	aw, ok := compute(t, later).(cell.Awaitable)
	require.True(t, ok, "delayed cells return an awaitable")
	v, err := aw.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 5*time.Millisecond, later.Value.(*Body).Delay())

	assert.Equal(t, []string{"n"}, ticks.Inputs)
	gen, ok := compute(t, ticks, true).(cell.Generator)
	require.True(t, ok, "yield cells return a generator")
	assert.True(t, ticks.Value.(*Body).Generator())

	var got []any
	for {
		v, more, err := gen.Next(context.Background())
		require.NoError(t, err)
		if !more {
			break
		}
		got = append(got, v)
	}
	assert.Equal(t, []any{1, "two", true}, got)
}

func TestParse_Diagnostics(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		src     string
		summary string
	}{
		{
			name:    "unknown block",
			src:     "notebook \"m\" {\n  step \"x\" {}\n}",
			summary: "Unsupported block type",
		},
		{
			name:    "unknown attribute",
			src:     "notebook \"m\" {\n  cell \"x\" {\n    value  = 1\n    colour = \"red\"\n  }\n}",
			summary: "Unsupported argument",
		},
		{
			name:    "value and yield",
			src:     "notebook \"m\" {\n  cell \"x\" {\n    value = 1\n    yield = [1]\n  }\n}",
			summary: "Conflicting cell body",
		},
		{
			name:    "no body",
			src:     "notebook \"m\" {\n  cell \"x\" { inputs = [] }\n}",
			summary: "Missing cell body",
		},
		{
			name:    "every without yield",
			src:     "notebook \"m\" {\n  cell \"x\" {\n    value = 1\n    every = \"1s\"\n  }\n}",
			summary: "Unexpected \"every\"",
		},
		{
			name:    "delay without value",
			src:     "notebook \"m\" {\n  cell \"x\" {\n    yield = [1]\n    delay = \"1s\"\n  }\n}",
			summary: "Unexpected \"delay\"",
		},
		{
			name:    "bad duration",
			src:     "notebook \"m\" {\n  cell \"x\" {\n    value = 1\n    delay = \"soon\"\n  }\n}",
			summary: "Invalid duration",
		},
		{
			name:    "undeclared input",
			src:     "notebook \"m\" {\n  cell \"x\" {\n    inputs = [\"a\"]\n    value  = a + b.c\n  }\n}",
			summary: "Undeclared input",
		},
		{
			name:    "unknown function",
			src:     "notebook \"m\" {\n  cell \"x\" { value = shout(\"hi\") }\n}",
			summary: "Call to unknown function",
		},
		{
			name:    "import without from",
			src:     "notebook \"m\" {\n  import \"x\" { remote = \"y\" }\n}",
			summary: "Missing required argument",
		},
		{
			name:    "dynamic import source",
			src:     "notebook \"m\" {\n  import \"x\" { from = other }\n}",
			summary: "Variables not allowed",
		},
		{
			name:    "invalid cell name",
			src:     "notebook \"m\" {\n  cell \"1abc\" { value = 1 }\n}",
			summary: "Invalid cell name",
		},
		{
			name:    "empty notebook id",
			src:     `notebook "" {}`,
			summary: "Missing notebook id",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			mods, diags := parse(t, tc.src)
			require.True(t, diags.HasErrors())
			assert.Nil(t, mods)
			var summaries []string
			for _, d := range diags {
				summaries = append(summaries, d.Summary)
			}
			assert.Contains(t, summaries, tc.summary)
		})
	}
}

func TestParse_ExtraFunctions(t *testing.T) {
	t.Parallel()

	shout := function.New(&function.Spec{
		Params: []function.Parameter{{Name: "s", Type: cty.String}},
		Type:   function.StaticReturnType(cty.String),
		Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
			return cty.StringVal(args[0].AsString() + "!"), nil
		},
	})
	loader := NewLoader(map[string]function.Function{"shout": shout})
	mods, diags := loader.Parse(ctxlog.Discard(context.Background()), "x.hcl", []byte("notebook \"m\" {\n  cell \"x\" { value = shout(lower(who)) }\n}"))
	require.False(t, diags.HasErrors(), diags.Error())
	assert.Equal(t, "bob!", compute(t, mods[0].Variables[0], "BOB"))
}

func TestBody_Errors(t *testing.T) {
	t.Parallel()

	mods := mustParse(t, `
notebook "m" {
  cell "bad" { value = a + 1 }
  cell "gen" { yield = a }
}
`)
	_, err := mods[0].Variables[0].Value.Compute(context.Background(), []any{"text"})
	assert.Error(t, err, "type errors surface as evaluation errors")

	_, err = mods[0].Variables[0].Value.Compute(context.Background(), nil)
	assert.ErrorContains(t, err, "expected 1 inputs")

	_, err = mods[0].Variables[1].Value.Compute(context.Background(), []any{5})
	assert.ErrorContains(t, err, "yield must be a list")
}

func TestBody_Source(t *testing.T) {
	t.Parallel()
	mods := mustParse(t, "notebook \"m\" {\n  cell \"x\" { value = a+b*2 }\n}")
	body := mods[0].Variables[0].Value.(*Body)
	assert.Equal(t, "a + b * 2", body.Source())
	assert.Equal(t, []string{"a", "b"}, body.Inputs())
}

func TestLoadPaths(t *testing.T) {
	t.Parallel()
	ctx := ctxlog.Discard(context.Background())
	dir := t.TempDir()
	write := func(rel, src string) {
		path := filepath.Join(dir, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	}
	write("b.hcl", `
notebook "second" {
  cell "x" { value = 1 }
}
`)
	write("a.hcl", `
notebook "first" {
  cell "x" { value = 1 }
}

notebook "first-bis" {
  cell "x" { value = 2 }
}
`)
	write("nested/c.hcl", `
notebook "third" {
  import "x" { from = "first" }
}
`)
	write("ignored.txt", `not hcl`)

	mods, err := NewLoader(nil).LoadPaths(ctx, dir)
	require.NoError(t, err)
	var ids []string
	for _, m := range mods {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []string{"first", "first-bis", "second", "third"}, ids)

	t.Run("parse errors name the file", func(t *testing.T) {
		bad := t.TempDir()
		path := filepath.Join(bad, "broken.hcl")
		require.NoError(t, os.WriteFile(path, []byte(`notebook "m" {`), 0o644))
		_, err := NewLoader(nil).LoadPaths(ctx, bad)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "broken.hcl")
	})
}

func TestExpressions(t *testing.T) {
	t.Parallel()

	expr, diags := hclsyntax.ParseExpression([]byte(`upper(b.name) == lower(a[0]) ? length(b) : max(c, a[1])`), "e.hcl", hcl.InitialPos)
	require.False(t, diags.HasErrors())

	names, byName := references(expr)
	assert.Equal(t, []string{"a", "b", "c"}, names)
	assert.Equal(t, "b.name", TraversalKey(byName["b"]))

	var fns []string
	for _, call := range calledFunctions(expr) {
		fns = append(fns, call.Name)
	}
	assert.Equal(t, []string{"length", "lower", "max", "upper"}, fns)

	forExpr, diags := hclsyntax.ParseExpression([]byte(`[for x in xs : x + offset]`), "e.hcl", hcl.InitialPos)
	require.False(t, diags.HasErrors())
	names, _ = references(forExpr)
	assert.Equal(t, []string{"offset", "xs"}, names, "loop variables are not inputs")
}
