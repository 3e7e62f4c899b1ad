package app

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/specialistvlad/cellgrid/internal/cell"
	"github.com/specialistvlad/cellgrid/internal/config"
	"github.com/specialistvlad/cellgrid/internal/report"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const demoNotebooks = `
notebook "@demo/lib" {
  cell "base" { value = 10 }
}

notebook "@demo/main" {
  import "base" { from = "@demo/lib" }
  cell "next" { value = base + 1 }
  effect { value = print(next) }
}
`

func testConfig(dir string) *config.Config {
	cfg := config.Default()
	cfg.Paths = []string{dir}
	cfg.Timeout = 5 * time.Second
	return &cfg
}

type jsonRun struct {
	Session string `json:"session"`
	Cells   []struct {
		Cell      string `json:"cell"`
		Status    string `json:"status"`
		Value     any    `json:"value"`
		Error     string `json:"error"`
		RootCause bool   `json:"root_cause"`
	} `json:"cells"`
}

func statuses(r *report.Run) map[string]string {
	out := make(map[string]string)
	for _, e := range r.Entries {
		out[e.Cell] = e.Status
	}
	return out
}

func TestRun_TextReport(t *testing.T) {
	t.Parallel()
	dir := WriteNotebooks(t, map[string]string{"demo.hcl": demoNotebooks})
	app, out, _ := SetupAppTest(t, testConfig(dir))

	require.NoError(t, app.Run(context.Background()))

	text := out.String()
	assert.Contains(t, text, "11\n", "print writes the value to the output")
	assert.Contains(t, text, "@demo/main:next")
	assert.Contains(t, text, "4 cells: 4 resolved, 0 errored, 0 pending")
}

func TestRun_JSONReport(t *testing.T) {
	t.Parallel()
	dir := WriteNotebooks(t, map[string]string{"demo.hcl": `
notebook "m" {
  cell "a" { value = 1 }
  cell "b" { value = { sum = a + 1, tags = ["x", "y"] } }
}
`})
	cfg := testConfig(dir)
	cfg.Output = "json"
	app, out, _ := SetupAppTest(t, cfg)

	require.NoError(t, app.Run(context.Background()))

	var got jsonRun
	require.NoError(t, json.Unmarshal([]byte(out.String()), &got))
	assert.NotEmpty(t, got.Session)
	require.Len(t, got.Cells, 2)
	assert.Equal(t, "m:a", got.Cells[0].Cell)
	assert.Equal(t, float64(1), got.Cells[0].Value)
	assert.Equal(t, map[string]any{"sum": float64(2), "tags": []any{"x", "y"}}, got.Cells[1].Value)
}

func TestRun_Failures(t *testing.T) {
	t.Parallel()
	src := `
notebook "m" {
  cell "bad" { value = 1 + "x" }
  cell "after" { value = bad + 1 }
  cell "fine" { value = "ok" }
}
`
	t.Run("failed cells fail the run", func(t *testing.T) {
		t.Parallel()
		dir := WriteNotebooks(t, map[string]string{"m.hcl": src})
		app, out, logs := SetupAppTest(t, testConfig(dir))

		err := app.Run(context.Background())
		require.ErrorIs(t, err, ErrCellsFailed)
		assert.Contains(t, err.Error(), "1 cell(s)", "failed dependencies are not root causes")
		assert.Contains(t, out.String(), "Root causes:")
		assert.Contains(t, logs.String(), "Cell failed.")
	})

	t.Run("keep going", func(t *testing.T) {
		t.Parallel()
		dir := WriteNotebooks(t, map[string]string{"m.hcl": src})
		cfg := testConfig(dir)
		cfg.KeepGoing = true
		app, _, _ := SetupAppTest(t, cfg)
		require.NoError(t, app.Run(context.Background()))
	})

	t.Run("evaluate reports each cell", func(t *testing.T) {
		t.Parallel()
		dir := WriteNotebooks(t, map[string]string{"m.hcl": src})
		app, _, _ := SetupAppTest(t, testConfig(dir))

		res, err := app.Evaluate(context.Background())
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"m:bad": "errored", "m:after": "errored", "m:fine": "resolved"}, statuses(res))
		failures := res.Failures()
		require.Len(t, failures, 1)
		assert.Equal(t, "m:bad", failures[0].Cell)
	})
}

func TestLoad_Errors(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		src  string
		want error
	}{
		{
			name: "cycle",
			src:  "notebook \"m\" {\n  cell \"a\" { value = b }\n  cell \"b\" { value = a }\n}",
			want: cell.ErrCyclicDependency,
		},
		{
			name: "unresolved name",
			src:  "notebook \"m\" {\n  cell \"a\" { value = missing }\n}",
			want: cell.ErrUnresolvedName,
		},
		{
			name: "missing module",
			src:  "notebook \"m\" {\n  import \"a\" { from = \"nowhere\" }\n}",
			want: cell.ErrModuleNotFound,
		},
		{
			name: "duplicate module",
			src:  "notebook \"m\" {\n  cell \"a\" { value = 1 }\n}\n\nnotebook \"m\" {\n  cell \"b\" { value = 2 }\n}",
			want: cell.ErrDuplicateModule,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			dir := WriteNotebooks(t, map[string]string{"m.hcl": tc.src})
			app, _, _ := SetupAppTest(t, testConfig(dir))
			_, err := app.Load(context.Background())
			require.ErrorIs(t, err, tc.want)

			assert.ErrorIs(t, app.Run(context.Background()), tc.want, "run fails before evaluating anything")
		})
	}
}

func TestLoad_Ignore(t *testing.T) {
	t.Parallel()

	dir := WriteNotebooks(t, map[string]string{"m.hcl": `
notebook "m" {
  cell "keep" { value = 1 }
  cell "scratch_a" { value = 2 }
  cell "scratch_b" { value = 3 }
  cell "draft" { value = 4 }
  effect { value = keep }
}
`})

	t.Run("matching cells are dropped", func(t *testing.T) {
		t.Parallel()
		cfg := testConfig(dir)
		cfg.Ignore = []string{"scratch_*", "m:draft"}
		app, _, logs := SetupAppTest(t, cfg)

		res, err := app.Evaluate(context.Background())
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"m:keep": "resolved", "m#1": "resolved"}, statuses(res), "remaining cells are renumbered")
		assert.Contains(t, logs.String(), "Ignoring cells.")
	})

	t.Run("readers of a dropped cell are unresolved", func(t *testing.T) {
		t.Parallel()
		cfg := testConfig(dir)
		cfg.Ignore = []string{"keep"}
		app, _, _ := SetupAppTest(t, cfg)

		_, err := app.Load(context.Background())
		assert.ErrorIs(t, err, cell.ErrUnresolvedName)
	})
}

func TestRun_Roots(t *testing.T) {
	t.Setenv("CELLGRID_APP_TEST", "from-env")
	dir := WriteNotebooks(t, map[string]string{"m.hcl": `
notebook "m" {
  cell "home" { value = env["CELLGRID_APP_TEST"] }
  cell "lib" { value = d3 == null }
  cell "doc" { value = md == null }
}
`})
	cfg := testConfig(dir)
	cfg.Roots = []string{"d3"}
	app, _, _ := SetupAppTest(t, cfg)

	res, err := app.Evaluate(context.Background())
	require.NoError(t, err)
	values := make(map[string]any)
	for _, e := range res.Entries {
		values[e.Cell] = e.Value
	}
	assert.Equal(t, "from-env", values["m:home"])
	assert.Equal(t, true, values["m:lib"], "allowed roots without a value read as null")
	assert.Equal(t, true, values["m:doc"], "notebook globals are allowed by default")
}

func TestEvaluate_Timeout(t *testing.T) {
	t.Parallel()
	dir := WriteNotebooks(t, map[string]string{"m.hcl": `
notebook "m" {
  cell "slow" {
    value = 1
    delay = "1m"
  }
  cell "quick" { value = 2 }
}
`})
	cfg := testConfig(dir)
	cfg.Timeout = 50 * time.Millisecond
	app, _, logs := SetupAppTest(t, cfg)

	res, err := app.Evaluate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"m:slow": "pending", "m:quick": "resolved"}, statuses(res))
	assert.Contains(t, logs.String(), "did not settle")
}

func TestPlan(t *testing.T) {
	t.Parallel()
	dir := WriteNotebooks(t, map[string]string{"demo.hcl": demoNotebooks + `
notebook "@demo/extra" {
  cell "ticks" {
    yield = [1, 2]
    every = "1ms"
  }
  cell "later" {
    value = ticks
    delay = "1ms"
  }
}
`})
	app, _, _ := SetupAppTest(t, testConfig(dir))

	plan, err := app.Plan(context.Background(), "")
	require.NoError(t, err)

	var cells, kinds []string
	depth := make(map[string]int)
	for _, s := range plan.Steps {
		cells = append(cells, s.Cell)
		kinds = append(kinds, s.Kind)
		depth[s.Cell] = s.Depth
	}
	assert.Equal(t, []string{"@demo/lib:base", "@demo/main:base", "@demo/main:next", "@demo/main#2", "@demo/extra:ticks", "@demo/extra:later"}, cells)
	assert.Equal(t, []string{"value", "import", "value", "value", "generator", "deferred"}, kinds)
	assert.Equal(t, 0, depth["@demo/lib:base"])
	assert.Equal(t, 1, depth["@demo/main:next"])
	assert.Equal(t, 2, depth["@demo/main#2"])

	next := plan.Steps[2]
	assert.Equal(t, "base + 1", next.Source)
	assert.Equal(t, []report.Input{{Name: "base", From: "@demo/lib:base"}}, next.Inputs)

	t.Run("upstream of one cell", func(t *testing.T) {
		t.Parallel()
		plan, err := app.Plan(context.Background(), "@demo/main:next")
		require.NoError(t, err)
		require.Len(t, plan.Steps, 2)
		assert.Equal(t, "@demo/lib:base", plan.Steps[0].Cell)
		assert.Equal(t, "@demo/main:next", plan.Steps[1].Cell)

		plan, err = app.Plan(context.Background(), "@demo/main#2")
		require.NoError(t, err)
		assert.Len(t, plan.Steps, 3, "anonymous cells are addressed by index")
	})

	t.Run("bad targets", func(t *testing.T) {
		t.Parallel()
		_, err := app.Plan(context.Background(), "no-colon")
		assert.ErrorContains(t, err, "want module:name or module#index")
		_, err = app.Plan(context.Background(), "@demo/main#9")
		assert.ErrorContains(t, err, "no cell at @demo/main#9")
		_, err = app.Plan(context.Background(), "@demo/main:nope")
		assert.ErrorIs(t, err, cell.ErrUnresolvedName)
	})
}

func TestHealthMux(t *testing.T) {
	t.Parallel()
	dir := WriteNotebooks(t, map[string]string{"m.hcl": "notebook \"m\" {\n  cell \"a\" { value = 1 }\n}"})
	app, _, _ := SetupAppTest(t, testConfig(dir))
	_, err := app.Evaluate(context.Background())
	require.NoError(t, err)

	srv := httptest.NewServer(app.healthMux())
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "cellgrid_runtime_evaluations_total")
}

func TestRun_Watch(t *testing.T) {
	t.Parallel()
	dir := WriteNotebooks(t, map[string]string{"m.hcl": "notebook \"m\" {\n  cell \"a\" { value = print(\"first\") }\n}"})
	cfg := testConfig(dir)
	cfg.Watch = true
	app, out, _ := SetupAppTest(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	require.Eventually(t, func() bool { return strings.Contains(out.String(), "first") }, 5*time.Second, 10*time.Millisecond)

	path := filepath.Join(dir, "m.hcl")
	require.NoError(t, os.WriteFile(path, []byte("notebook \"m\" {\n  cell \"a\" { value = print(\"second\") }\n}"), 0o644))
	require.Eventually(t, func() bool { return strings.Contains(out.String(), "second") }, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop after cancellation")
	}
}

func TestNewApp_InvalidRoot(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.Roots = []string{"1abc"}
	assert.PanicsWithError(t, "registry validation failed:\n- root '1abc' is not a valid identifier", func() {
		NewApp(&SafeBuffer{}, &SafeBuffer{}, &cfg)
	})
}

func TestWatchTargets(t *testing.T) {
	t.Parallel()
	dir := WriteNotebooks(t, map[string]string{"a.hcl": "", "sub/b.hcl": ""})
	single := filepath.Join(dir, "a.hcl")

	dirs, files, err := watchTargets([]string{dir, single})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{dir, filepath.Join(dir, "sub")}, dirs)
	assert.Equal(t, map[string]bool{single: true}, files)

	_, _, err = watchTargets([]string{filepath.Join(dir, "missing")})
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestRun_StdoutTracing(t *testing.T) {
	// Installs the global tracer provider, so not parallel.
	dir := WriteNotebooks(t, map[string]string{"m.hcl": "notebook \"m\" {\n  cell \"a\" { value = 1 }\n}"})
	cfg := testConfig(dir)
	cfg.Tracing.Exporter = "stdout"
	app, _, logs := SetupAppTest(t, cfg)

	require.NoError(t, app.Run(context.Background()))
	assert.Contains(t, logs.String(), `"Name":"cell.evaluate"`, "spans are flushed to the log stream on exit")
}
