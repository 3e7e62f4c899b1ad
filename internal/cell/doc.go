// Package cell holds the format-agnostic data model of a notebook: modules,
// cells, cell bodies and the error taxonomy used by every later stage.
//
// Documents enter the system through LoadModule, which enforces the
// structural rules (import cells carry no inputs or body, plain cells carry a
// body, and so on). The resulting Module is immutable.
package cell
