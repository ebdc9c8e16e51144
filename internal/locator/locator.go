// Package locator classifies a cursor point against a possibly invalid DBML
// syntax tree.
package locator

import (
	"github.com/saskenuba/dbml-language-server/internal/parser"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/tliron/commonlog"
)

var logger = commonlog.GetLogger("dbml.locator")

// Kind is the semantic context a cursor falls in.
type Kind int

const (
	Unknown Kind = iota
	Table
	Field
	FieldAttribute
	FieldAttributeList
	Enum
	// RelationshipTableRef is the table side of a `table.field` reference.
	RelationshipTableRef
	// RelationshipFieldRef is the field side of a `table.field` reference;
	// Location.Table names the table typed before the dot.
	RelationshipFieldRef
)

var kindNames = map[Kind]string{
	Unknown:              "Unknown",
	Table:                "Table",
	Field:                "Field",
	FieldAttribute:       "FieldAttribute",
	FieldAttributeList:   "FieldAttributeList",
	Enum:                 "Enum",
	RelationshipTableRef: "RelationshipTableRef",
	RelationshipFieldRef: "RelationshipFieldRef",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "Unknown"
}

// Location is the result of one classification. Table is only set for
// RelationshipFieldRef.
type Location struct {
	Kind  Kind
	Table string
}

func (l Location) String() string {
	if l.Kind == RelationshipFieldRef {
		return l.Kind.String() + "(" + l.Table + ")"
	}
	return l.Kind.String()
}

// Locate classifies point against the tree under root. It is a best-effort
// heuristic: whatever cannot be resolved is Unknown.
func Locate(source []byte, root *sitter.Node, point sitter.Point) Location {
	if root == nil {
		return Location{}
	}

	hit := root.NamedDescendantForPointRange(point, point)
	if hit == nil {
		return Location{}
	}
	hit = widen(hit, point)

	if loc, ok := classifyHit(hit, source); ok {
		return loc
	}

	switch hit.Type() {
	case parser.KindProjectFile, parser.KindFieldDeclarationList:
	default:
		return Location{}
	}

	loc := probe(source, root, point)
	logger.Debugf("probed %v: %s", point, loc)
	return loc
}

// widen climbs from a node starting exactly at point to the outermost
// ancestor starting there too, so a cursor placed before a token is
// classified by the construct the token opens. It stops below a
// table_field, whose sides are classified on their own.
func widen(n *sitter.Node, point sitter.Point) *sitter.Node {
	if n.StartPoint() != point {
		return n
	}
	for {
		p := n.Parent()
		if p == nil || parser.IsRoot(p) || p.StartPoint() != point || p.Type() == parser.KindTableField {
			return n
		}
		n = p
	}
}

func classifyHit(hit *sitter.Node, source []byte) (Location, bool) {
	parent := hit.Parent()
	parentKind := ""
	if parent != nil {
		parentKind = parent.Type()
	}

	// An attribute list is checked before the field context it is nested in.
	switch {
	case hit.Type() == parser.KindFieldAttributeList, parentKind == parser.KindFieldAttributeList:
		return Location{Kind: FieldAttributeList}, true
	case parentKind == parser.KindFieldDeclarationList, parentKind == parser.KindTableDefinition:
		return Location{Kind: Field}, true
	case parentKind == parser.KindTableField:
		if parser.SameNode(hit, parent.ChildByFieldName("field")) {
			return Location{
				Kind:  RelationshipFieldRef,
				Table: parser.FieldText(parent, "table", source),
			}, true
		}
		if parser.SameNode(hit, parent.ChildByFieldName("table")) {
			return Location{Kind: RelationshipTableRef}, true
		}
	}
	return Location{}, false
}

// probe walks left from point on the same line until it finds a node other
// than the root, then classifies that token.
func probe(source []byte, root *sitter.Node, point sitter.Point) Location {
	for col := point.Column; col > 0; {
		col--
		p := sitter.Point{Row: point.Row, Column: col}
		n := root.DescendantForPointRange(p, p)
		if n == nil {
			return Location{}
		}
		if parser.IsRoot(n) {
			continue
		}
		return classifyToken(n, source)
	}
	return Location{}
}

func classifyToken(n *sitter.Node, source []byte) Location {
	text := parser.Text(n, source)

	parentKind := ""
	if parent := n.Parent(); parent != nil {
		parentKind = parent.Type()
	}

	switch {
	case text == ":", parentKind == parser.KindCardinalityOp, n.Type() == parser.KindCardinalityOp:
		return Location{Kind: RelationshipTableRef}
	case text == ".":
		prev := n.PrevSibling()
		if prev == nil {
			return Location{}
		}
		table := parser.Text(prev, source)
		if table == "" {
			return Location{}
		}
		return Location{Kind: RelationshipFieldRef, Table: table}
	}
	return Location{}
}
