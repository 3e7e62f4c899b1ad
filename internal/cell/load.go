// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// This file turns a raw, loosely-validated document into an immutable Module.
// Any document loader (HCL files, JSON exports, tests building modules by
// hand) produces RawModule values and funnels them through LoadModule, so the
// structural rules live in exactly one place.
package cell

import (
	"errors"
	"fmt"
	"strings"
)

// RawModule is the loader-facing shape of a notebook document.
type RawModule struct {
	ID        string
	Variables []RawVariable
}

// RawVariable is one declaration of a RawModule.
type RawVariable struct {
	// Name is empty for anonymous cells.
	Name   string
	Inputs []string
	// Value is the body. Must be nil for imports.
	Value Computable
	// From is the id of the module an import cell reads from.
	From string
	// Remote is the name inside From. Defaults to Name.
	Remote string
}

// LoadModule validates raw and builds a Module from it. Every structural
// problem found is reported; on error no Module is returned.
func LoadModule(raw RawModule) (*Module, error) {
	id := strings.TrimSpace(raw.ID)
	if id == "" {
		return nil, NewError(ErrStructural, "", "module id is required")
	}

	m := &Module{ID: ModuleID(id), Cells: make([]*Cell, 0, len(raw.Variables))}
	var errs []error
	for i, v := range raw.Variables {
		c := &Cell{ID: ID{Module: m.ID, Index: i}, Name: v.Name}
		if err := validateVariable(c, v); err != nil {
			errs = append(errs, err)
			continue
		}
		if v.From != "" {
			remote := v.Remote
			if remote == "" {
				remote = v.Name
			}
			c.Import = &ImportSource{Module: ModuleID(v.From), Remote: remote}
		} else {
			c.Inputs = append([]string(nil), v.Inputs...)
			c.Body = v.Value
		}
		m.Cells = append(m.Cells, c)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return m, nil
}

func validateVariable(c *Cell, v RawVariable) error {
	fail := func(format string, args ...any) error {
		return NewError(ErrStructural, c.Label(), fmt.Sprintf(format, args...))
	}
	if v.Remote != "" && v.From == "" {
		return fail("remote %q given without a source module", v.Remote)
	}
	if v.From != "" {
		switch {
		case v.Name == "":
			return fail("import cells must be named")
		case len(v.Inputs) > 0:
			return fail("import cells cannot declare inputs")
		case v.Value != nil:
			return fail("import cells cannot have a body")
		}
		return nil
	}
	if v.Value == nil {
		return fail("cell has no body")
	}
	for i, in := range v.Inputs {
		if strings.TrimSpace(in) == "" {
			return fail("input %d is empty", i)
		}
	}
	return nil
}
