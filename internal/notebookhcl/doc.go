// Package notebookhcl reads notebook documents written in HCL.
//
// A file holds one or more notebook blocks. Each notebook is one module and
// its cell, effect and import blocks become the module's cells in source
// order:
//
//	notebook "@demo/main" {
//	  cell "a" { value = 1 }
//	  cell "b" { value = a + 1 }
//	  effect { value = upper("side effect") }
//	  import "y" { from = "@demo/lib" }
//	}
//
// Cell bodies are HCL expressions. Their inputs are the root names the
// expression references unless an explicit inputs list is given. A body may
// be deferred with delay, or produce a sequence of values with yield and
// every.
package notebookhcl
