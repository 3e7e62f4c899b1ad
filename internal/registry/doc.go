// Package registry provides the central "glue" for built-in modules.
//
// A Registry holds everything a notebook may use without defining it:
// external roots (free names such as `env` that resolve to values supplied
// by Go code, or that are merely allowlisted) and functions callable from
// cell expressions (such as `print`). Built-in modules implement Module and
// populate the registry once at startup.
//
// Registering the same root or function twice is a programming error and
// panics, so mismatches surface the first time the binary starts.
package registry
