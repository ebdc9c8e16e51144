package index

import (
	"github.com/saskenuba/dbml-language-server/internal/parser"

	sitter "github.com/smacker/go-tree-sitter"
)

// Matches top-level `Ref:` definitions and inline `[ref: ...]` attributes.
const relationshipQuery = `
(relationship
  from: (table_field) @from
  (cardinality_op) @op
  to: (table_field) @to)

(field_attribute
  (cardinality_op) @op
  (table_field) @to) @inline
`

// TableField is a `table.field` reference.
type TableField struct {
	Table string `json:"table"`
	Field string `json:"field"`
}

// Relationship is one reference between two table fields. Op is the
// cardinality operator as written: "<", ">", "-" or "<>".
type Relationship struct {
	From  TableField   `json:"from"`
	To    TableField   `json:"to"`
	Op    string       `json:"op"`
	Range sitter.Range `json:"-"`
}

// Relationships extracts every relationship declared under root. For an
// inline reference the owning field is the `from` side. References whose
// owner cannot be determined are skipped.
func (b *Builder) Relationships(source []byte, root *sitter.Node) []Relationship {
	if root == nil {
		return nil
	}

	qc := sitter.NewQueryCursor()
	defer qc.Close()
	qc.Exec(b.refs, root)

	var rels []Relationship
	for {
		m, ok := qc.NextMatch()
		if !ok {
			break
		}

		var rel Relationship
		var inline *sitter.Node
		for _, c := range m.Captures {
			switch b.refs.CaptureNameForId(c.Index) {
			case "from":
				rel.From = tableField(c.Node, source)
				rel.Range = c.Node.Range()
			case "to":
				rel.To = tableField(c.Node, source)
			case "op":
				rel.Op = parser.Text(c.Node, source)
			case "inline":
				inline = c.Node
			}
		}

		if inline != nil {
			from, ok := owningField(inline, source)
			if !ok {
				continue
			}
			rel.From = from
			rel.Range = inline.Range()
		}
		if rel.From.Table == "" || rel.To.Table == "" {
			continue
		}
		rels = append(rels, rel)
	}
	return rels
}

func tableField(n *sitter.Node, source []byte) TableField {
	return TableField{
		Table: parser.FieldText(n, "table", source),
		Field: parser.FieldText(n, "field", source),
	}
}

func owningField(attr *sitter.Node, source []byte) (TableField, bool) {
	decl := parser.Ancestor(attr, parser.KindFieldDeclaration)
	table := parser.Ancestor(decl, parser.KindTableDefinition)
	if decl == nil || table == nil {
		return TableField{}, false
	}
	return TableField{
		Table: parser.FieldText(table, "name", source),
		Field: parser.FieldText(decl, "name", source),
	}, true
}
