// Package dag builds the dependency graph of a notebook library. Nodes are
// cells; an edge runs from the cell defining a value to every cell reading
// it. Inputs that name an import are bound straight to the cell at the end of
// the import chain, so a change in a library module reaches its readers in
// one step.
//
// Build rejects the whole library when any name is unresolved, any import is
// broken or any cycle exists. A returned Graph is immutable and safe to share.
package dag
