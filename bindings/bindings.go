package bindings

//go:generate sh -c "cd ../tree-sitter-dbml && tree-sitter generate"

// #cgo CFLAGS: -std=c11 -fPIC
// #include "../tree-sitter-dbml/src/parser.c"
import "C"

import "unsafe"

// Get the tree-sitter Language for the DBML grammar.
func Language() unsafe.Pointer {
	return unsafe.Pointer(C.tree_sitter_dbml())
}
