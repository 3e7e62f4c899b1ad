// internal/nodeid/doc.go

/*
Package nodeid parses and formats the addresses users type to name a cell,
in the same canonical form cell labels are printed in:

	module:name    a named cell, for example "@demo/main:total"
	module#index   any cell by declaration index, for example "@demo/main#3"

Module ids may themselves contain ':' or '#', so the separator is the last
one in the string.
*/
package nodeid
