package notebookhcl

import (
	"context"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/specialistvlad/cellgrid/internal/cell"
	"github.com/specialistvlad/cellgrid/internal/ctxlog"
	"github.com/specialistvlad/cellgrid/internal/fsutil"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/gocty"
	"golang.org/x/sync/errgroup"
)

// Extension is the file extension of notebook documents.
const Extension = ".hcl"

// maxParallelFiles bounds how many files are parsed at once.
const maxParallelFiles = 8

// Loader turns HCL notebook documents into raw modules.
type Loader struct {
	functions map[string]function.Function
}

// NewLoader creates a loader whose expressions can call the standard
// functions plus extra.
func NewLoader(extra map[string]function.Function) *Loader {
	return &Loader{functions: withStd(extra)}
}

// LoadPaths finds every notebook file under paths, parses them concurrently
// and returns their modules ordered by file path, then by position in the
// file.
func (l *Loader) LoadPaths(ctx context.Context, paths ...string) ([]cell.RawModule, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL loader started.", "path_count", len(paths))

	files, err := fsutil.FindFiles(paths, Extension)
	if err != nil {
		return nil, err
	}
	logger.Debug("Discovered HCL files.", "count", len(files))

	perFile := make([][]cell.RawModule, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelFiles)
	for i, file := range files {
		g.Go(func() error {
			src, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("failed to read HCL file %s: %w", file, err)
			}
			mods, diags := l.Parse(gctx, file, src)
			if diags.HasErrors() {
				return fmt.Errorf("failed to decode HCL file %s: %w", file, diags)
			}
			perFile[i] = mods
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []cell.RawModule
	for _, mods := range perFile {
		out = append(out, mods...)
	}
	logger.Debug("HCL loading complete.", "files", len(files), "modules", len(out))
	return out, nil
}

// Parse decodes every notebook block in src.
func (l *Loader) Parse(ctx context.Context, filename string, src []byte) ([]cell.RawModule, hcl.Diagnostics) {
	logger := ctxlog.FromContext(ctx).With("file", filename)

	file, diags := hclparse.NewParser().ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, diags
	}
	content, contentDiags := file.Body.Content(fileSchema)
	diags = append(diags, contentDiags...)

	var out []cell.RawModule
	for _, block := range content.Blocks {
		raw, blockDiags := l.notebook(block, src)
		diags = append(diags, blockDiags...)
		if !blockDiags.HasErrors() {
			logger.Debug("Decoded notebook.", "module", raw.ID, "cells", len(raw.Variables))
			out = append(out, raw)
		}
	}
	if diags.HasErrors() {
		return nil, diags
	}
	return out, diags
}

func (l *Loader) notebook(block *hcl.Block, src []byte) (cell.RawModule, hcl.Diagnostics) {
	raw := cell.RawModule{ID: block.Labels[0]}
	if raw.ID == "" {
		return raw, hcl.Diagnostics{{
			Severity: hcl.DiagError,
			Summary:  "Missing notebook id",
			Detail:   "A notebook block needs a non-empty id label.",
			Subject:  block.LabelRanges[0].Ptr(),
		}}
	}

	content, diags := block.Body.Content(notebookSchema)
	for _, child := range content.Blocks {
		var (
			v          cell.RawVariable
			childDiags hcl.Diagnostics
		)
		switch child.Type {
		case blockImport:
			v, childDiags = l.importCell(child)
		case blockEffect:
			v, childDiags = l.cell(child, "", src)
		default:
			v, childDiags = l.cell(child, child.Labels[0], src)
		}
		diags = append(diags, childDiags...)
		raw.Variables = append(raw.Variables, v)
	}
	return raw, diags
}

func (l *Loader) cell(block *hcl.Block, name string, src []byte) (cell.RawVariable, hcl.Diagnostics) {
	v := cell.RawVariable{Name: name}
	content, diags := block.Body.Content(cellSchema)
	if diags.HasErrors() {
		return v, diags
	}
	if name != "" && !hclsyntax.ValidIdentifier(name) {
		diags = append(diags, &hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  "Invalid cell name",
			Detail:   fmt.Sprintf("%q is not a valid HCL identifier.", name),
			Subject:  block.LabelRanges[0].Ptr(),
		})
	}

	value, hasValue := content.Attributes[attrValue]
	yield, hasYield := content.Attributes[attrYield]
	switch {
	case hasValue && hasYield:
		return v, append(diags, &hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  "Conflicting cell body",
			Detail:   "Only one of \"value\" and \"yield\" may be set.",
			Subject:  yield.NameRange.Ptr(),
		})
	case !hasValue && !hasYield:
		return v, append(diags, &hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  "Missing cell body",
			Detail:   "A cell needs a \"value\" or a \"yield\" attribute.",
			Subject:  block.DefRange.Ptr(),
		})
	}

	body := &Body{functions: l.functions}
	attr := value
	if hasYield {
		attr = yield
		body.generator = true
	}
	body.expr = attr.Expr
	body.source = string(hclwrite.Format(attr.Expr.Range().SliceBytes(src)))

	if every, ok := content.Attributes[attrEvery]; ok {
		if !hasYield {
			diags = append(diags, &hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  "Unexpected \"every\"",
				Detail:   "\"every\" only applies to cells with \"yield\".",
				Subject:  every.NameRange.Ptr(),
			})
		}
		d, dDiags := staticDuration(every)
		diags = append(diags, dDiags...)
		body.every = d
	}
	if delay, ok := content.Attributes[attrDelay]; ok {
		if !hasValue {
			diags = append(diags, &hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  "Unexpected \"delay\"",
				Detail:   "\"delay\" only applies to cells with \"value\".",
				Subject:  delay.NameRange.Ptr(),
			})
		}
		d, dDiags := staticDuration(delay)
		diags = append(diags, dDiags...)
		body.delay = d
	}

	for _, call := range calledFunctions(attr.Expr) {
		if _, ok := l.functions[call.Name]; !ok {
			diags = append(diags, &hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  "Call to unknown function",
				Detail:   fmt.Sprintf("There is no function named %q.", call.Name),
				Subject:  call.NameRange.Ptr(),
			})
		}
	}

	refs, byName := references(attr.Expr)
	body.inputs = refs
	if inputs, ok := content.Attributes[attrInputs]; ok {
		declared, inDiags := staticStrings(inputs)
		diags = append(diags, inDiags...)
		for _, ref := range refs {
			if !slices.Contains(declared, ref) {
				diags = append(diags, &hcl.Diagnostic{
					Severity: hcl.DiagError,
					Summary:  "Undeclared input",
					Detail:   fmt.Sprintf("The expression reads %s but %q is not listed in \"inputs\".", TraversalKey(byName[ref]), ref),
					Subject:  byName[ref].SourceRange().Ptr(),
				})
			}
		}
		body.inputs = declared
	}

	v.Inputs = body.inputs
	v.Value = body
	return v, diags
}

func (l *Loader) importCell(block *hcl.Block) (cell.RawVariable, hcl.Diagnostics) {
	v := cell.RawVariable{Name: block.Labels[0]}
	content, diags := block.Body.Content(importSchema)
	if diags.HasErrors() {
		return v, diags
	}
	from, fromDiags := staticString(content.Attributes[attrFrom])
	diags = append(diags, fromDiags...)
	v.From = from
	if remote, ok := content.Attributes[attrRemote]; ok {
		r, rDiags := staticString(remote)
		diags = append(diags, rDiags...)
		v.Remote = r
	}
	return v, diags
}

func staticValue(attr *hcl.Attribute, ty cty.Type) (cty.Value, hcl.Diagnostics) {
	val, diags := attr.Expr.Value(nil)
	if diags.HasErrors() {
		return cty.NilVal, diags
	}
	converted, err := convert.Convert(val, ty)
	if err != nil || converted.IsNull() {
		return cty.NilVal, hcl.Diagnostics{{
			Severity: hcl.DiagError,
			Summary:  "Invalid attribute value",
			Detail:   fmt.Sprintf("%q must be a %s known at load time.", attr.Name, ty.FriendlyName()),
			Subject:  attr.Expr.Range().Ptr(),
		}}
	}
	return converted, nil
}

func staticString(attr *hcl.Attribute) (string, hcl.Diagnostics) {
	val, diags := staticValue(attr, cty.String)
	if diags.HasErrors() {
		return "", diags
	}
	return val.AsString(), nil
}

func staticStrings(attr *hcl.Attribute) ([]string, hcl.Diagnostics) {
	val, diags := staticValue(attr, cty.List(cty.String))
	if diags.HasErrors() {
		return nil, diags
	}
	var out []string
	if err := gocty.FromCtyValue(val, &out); err != nil {
		return nil, hcl.Diagnostics{{
			Severity: hcl.DiagError,
			Summary:  "Invalid attribute value",
			Detail:   err.Error(),
			Subject:  attr.Expr.Range().Ptr(),
		}}
	}
	return out, nil
}

func staticDuration(attr *hcl.Attribute) (time.Duration, hcl.Diagnostics) {
	s, diags := staticString(attr)
	if diags.HasErrors() {
		return 0, diags
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return 0, hcl.Diagnostics{{
			Severity: hcl.DiagError,
			Summary:  "Invalid duration",
			Detail:   fmt.Sprintf("%q must be a non-negative duration such as \"250ms\".", attr.Name),
			Subject:  attr.Expr.Range().Ptr(),
		}}
	}
	return d, nil
}
