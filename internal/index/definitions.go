package index

import (
	"github.com/saskenuba/dbml-language-server/internal/parser"

	sitter "github.com/smacker/go-tree-sitter"
)

const definitionQuery = `
(table_definition name: (identifier) @table)
(table_definition alias: (identifier) @alias)
(field_declaration name: (identifier) @field)
(enum_definition name: (identifier) @enum)
(enum_value name: (identifier) @enum_value)
`

// DefinitionKind is the kind of a declared name.
type DefinitionKind string

const (
	DefinitionTable     DefinitionKind = "table"
	DefinitionAlias     DefinitionKind = "alias"
	DefinitionField     DefinitionKind = "field"
	DefinitionEnum      DefinitionKind = "enum"
	DefinitionEnumValue DefinitionKind = "enum_value"
)

// Definition is a name declared in a document.
type Definition struct {
	Name string
	Kind DefinitionKind
	// Container is the enclosing table or enum, empty at top level.
	Container string
	// Detail is the declared type of a field, or the table an alias names.
	Detail string
	// Range covers the name token; Extent the whole declaration.
	Range  sitter.Range
	Extent sitter.Range
}

// Definitions lists the declared names under root in document order.
// Declarations whose container has no name are skipped.
func (b *Builder) Definitions(source []byte, root *sitter.Node) []Definition {
	if root == nil {
		return nil
	}

	var defs []Definition
	for _, c := range parser.Captures(b.defs, root, source) {
		name := parser.Text(c.Node, source)
		if name == "" {
			continue
		}
		def := Definition{
			Name:   name,
			Kind:   DefinitionKind(c.Name),
			Range:  c.Node.Range(),
			Extent: c.Node.Range(),
		}
		if decl := c.Node.Parent(); decl != nil {
			def.Extent = decl.Range()
		}

		switch def.Kind {
		case DefinitionAlias:
			def.Detail = parser.FieldText(c.Node.Parent(), "name", source)
			def.Extent = def.Range
		case DefinitionField:
			table := parser.Ancestor(c.Node, parser.KindTableDefinition)
			def.Container = parser.FieldText(table, "name", source)
			def.Detail = parser.FieldText(c.Node.Parent(), "type", source)
			if def.Container == "" {
				continue
			}
		case DefinitionEnumValue:
			enum := parser.Ancestor(c.Node, parser.KindEnumDefinition)
			def.Container = parser.FieldText(enum, "name", source)
			if def.Container == "" {
				continue
			}
		}
		defs = append(defs, def)
	}
	return defs
}
