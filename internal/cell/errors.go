// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// This file defines the error taxonomy shared by loading, linking, graph
// building and evaluation. Every error raised by those stages is an *Error
// whose Kind is one of the sentinels below, so callers can branch with
// errors.Is without parsing messages.
package cell

import (
	"errors"
	"strings"
)

var (
	// ErrStructural marks a malformed module (rejected at load, nothing kept).
	ErrStructural = errors.New("structural error")
	// ErrDuplicateModule marks a second module loaded under an existing id.
	ErrDuplicateModule = errors.New("duplicate module")
	// ErrUnresolvedName marks an input that no cell, import or external root defines.
	ErrUnresolvedName = errors.New("unresolved name")
	// ErrModuleNotFound marks an import naming a module that is not loaded.
	ErrModuleNotFound = errors.New("module not found")
	// ErrRemoteNotFound marks an import naming a remote cell its module does not define.
	ErrRemoteNotFound = errors.New("remote name not found")
	// ErrCyclicDependency marks a cycle among cell bindings.
	ErrCyclicDependency = errors.New("cyclic dependency")
	// ErrCyclicImport marks an import chain that never reaches a definition.
	ErrCyclicImport = errors.New("cyclic import")
	// ErrEvaluation marks a cell body that failed or panicked.
	ErrEvaluation = errors.New("evaluation error")
	// ErrFailedDependency marks a cell not run because an input failed.
	ErrFailedDependency = errors.New("failed dependency")
	// ErrDisposed marks access to a disposed module.
	ErrDisposed = errors.New("disposed")
)

// Error is the concrete error type carrying a Kind sentinel plus context.
type Error struct {
	Kind error
	// Cell is the label of the offending cell, when there is one.
	Cell string
	Msg  string
	// Path holds the labels on the cycle for the cyclic kinds.
	Path []string
	// Cause is the underlying error, if any.
	Cause error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.Cell != "" {
		b.WriteString(" in ")
		b.WriteString(e.Cell)
	}
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	if len(e.Path) > 0 {
		b.WriteString(": ")
		b.WriteString(strings.Join(e.Path, " -> "))
		b.WriteString(" -> ")
		b.WriteString(e.Path[0])
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Is matches the Kind sentinel.
func (e *Error) Is(target error) bool {
	return e.Kind == target
}

// Unwrap exposes the cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError builds an *Error without a cause.
func NewError(kind error, cellLabel, msg string) *Error {
	return &Error{Kind: kind, Cell: cellLabel, Msg: msg}
}

// CycleError builds a cyclic error of the given kind from the labels on the
// cycle, in traversal order. The message closes the loop back to path[0].
func CycleError(kind error, path []string) *Error {
	return &Error{Kind: kind, Path: path}
}
