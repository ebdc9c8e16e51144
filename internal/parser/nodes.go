package parser

import (
	"slices"

	sitter "github.com/smacker/go-tree-sitter"
)

// Node kinds of the DBML grammar the server relies on.
const (
	KindProjectFile          = "project_file"
	KindTableDefinition      = "table_definition"
	KindFieldDeclarationList = "field_declaration_list"
	KindFieldDeclaration     = "field_declaration"
	KindFieldType            = "field_type"
	KindFieldAttributeList   = "field_attribute_list"
	KindFieldAttribute       = "field_attribute"
	KindEnumDefinition       = "enum_definition"
	KindEnumValue            = "enum_value"
	KindRefDefinition        = "ref_definition"
	KindRelationship         = "relationship"
	KindTableField           = "table_field"
	KindCardinalityOp        = "cardinality_op"
	KindIdentifier           = "identifier"
	KindError                = "ERROR"
)

// Deepest ancestor chain any walk will follow. DBML nests a handful of
// levels; the cap only guards against a corrupt tree.
const maxAncestorDepth = 256

// IsRoot reports whether n is the document root.
func IsRoot(n *sitter.Node) bool {
	if n == nil {
		return false
	}
	return n.Type() == KindProjectFile || n.Parent() == nil
}

// Ancestor returns the nearest proper ancestor of n whose kind is one of
// kinds, or nil once the walk reaches the document root.
func Ancestor(n *sitter.Node, kinds ...string) *sitter.Node {
	if n == nil || IsRoot(n) {
		return nil
	}
	p := n.Parent()
	for depth := 0; p != nil && depth < maxAncestorDepth; depth++ {
		if slices.Contains(kinds, p.Type()) {
			return p
		}
		if IsRoot(p) {
			return nil
		}
		p = p.Parent()
	}
	return nil
}

// Text returns the source text n spans, or "" when n is nil or does not fit
// in source.
func Text(n *sitter.Node, source []byte) string {
	if n == nil {
		return ""
	}
	start, end := n.StartByte(), n.EndByte()
	if start > end || int(end) > len(source) {
		return ""
	}
	return string(source[start:end])
}

// FieldText returns the text of the child of n stored under field, or "" if
// there is none.
func FieldText(n *sitter.Node, field string, source []byte) string {
	if n == nil {
		return ""
	}
	return Text(n.ChildByFieldName(field), source)
}

// SameNode reports whether a and b are the same node of the same tree.
func SameNode(a, b *sitter.Node) bool {
	if a == nil || b == nil {
		return false
	}
	return a.StartByte() == b.StartByte() &&
		a.EndByte() == b.EndByte() &&
		a.Type() == b.Type()
}

// SyntaxError is an ERROR or MISSING node found in a tree.
type SyntaxError struct {
	Range   sitter.Range
	Missing bool
	// Kind is the expected node kind for missing nodes.
	Kind string
}

// SyntaxErrors collects the error-recovery nodes of the tree below root, in
// document order. Subtrees without errors are not visited.
func SyntaxErrors(root *sitter.Node) []SyntaxError {
	if root == nil || !root.HasError() {
		return nil
	}

	var errs []SyntaxError
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		switch {
		case n.IsMissing():
			errs = append(errs, SyntaxError{Range: n.Range(), Missing: true, Kind: n.Type()})
			return
		case n.IsError():
			errs = append(errs, SyntaxError{Range: n.Range()})
			return
		case !n.HasError():
			return
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			if child := n.Child(i); child != nil {
				walk(child)
			}
		}
	}
	walk(root)
	return errs
}
