package index

import (
	"fmt"
	"maps"
	"slices"

	"github.com/saskenuba/dbml-language-server/internal/parser"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/tliron/commonlog"
)

var logger = commonlog.GetLogger("dbml.index")

const (
	fieldQuery = `(table_definition
  (field_declaration_list
    (field_declaration name: (identifier) @field_name)))`

	enumQuery = `(enum_definition name: (identifier) @name)`
)

// FieldInfo describes one declared field of a table.
type FieldInfo struct {
	Name string
	Type string
	// Range covers the field name token only.
	Range sitter.Range
}

// IdentifierIndex maps table names and aliases to their fields, and lists the
// declared enums once each. An alias keys a field list equal to the canonical one.
type IdentifierIndex struct {
	Tables map[string][]FieldInfo
	Enums  []string
}

// New returns an empty index.
func New() *IdentifierIndex {
	return &IdentifierIndex{Tables: make(map[string][]FieldInfo)}
}

// TableNames returns every table key, canonical names and aliases alike,
// sorted.
func (idx *IdentifierIndex) TableNames() []string {
	if idx == nil {
		return nil
	}
	return slices.Sorted(maps.Keys(idx.Tables))
}

// FieldsOf returns the fields declared on table, looked up by name or alias.
func (idx *IdentifierIndex) FieldsOf(table string) ([]FieldInfo, bool) {
	if idx == nil {
		return nil, false
	}
	fields, ok := idx.Tables[table]
	return fields, ok
}

// EnumNames returns the declared enum names in declaration order.
func (idx *IdentifierIndex) EnumNames() []string {
	if idx == nil {
		return nil
	}
	return slices.Clone(idx.Enums)
}

// Equal reports whether both indexes hold the same content.
func (idx *IdentifierIndex) Equal(other *IdentifierIndex) bool {
	if idx == nil || other == nil {
		return idx == other
	}
	if !slices.Equal(idx.Enums, other.Enums) {
		return false
	}
	return maps.EqualFunc(idx.Tables, other.Tables, func(a, b []FieldInfo) bool {
		return slices.Equal(a, b)
	})
}

// Builder derives identifier indexes from syntax trees. Its queries are
// compiled once; a Builder is safe for concurrent use.
type Builder struct {
	fields *sitter.Query
	enums  *sitter.Query
	refs   *sitter.Query
	defs   *sitter.Query
}

// NewBuilder compiles the index queries against the service's language.
func NewBuilder(svc *parser.Service) (*Builder, error) {
	b := &Builder{}
	for _, q := range []struct {
		name    string
		pattern string
		dst     **sitter.Query
	}{
		{"field", fieldQuery, &b.fields},
		{"enum", enumQuery, &b.enums},
		{"relationship", relationshipQuery, &b.refs},
		{"definition", definitionQuery, &b.defs},
	} {
		compiled, err := svc.Query(q.pattern)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("%s query: %w", q.name, err)
		}
		*q.dst = compiled
	}
	return b, nil
}

// Close releases the compiled queries.
func (b *Builder) Close() {
	for _, q := range []*sitter.Query{b.fields, b.enums, b.refs, b.defs} {
		if q != nil {
			q.Close()
		}
	}
}

// Build walks the tree under root and returns a fresh index. Malformed
// regions are skipped; Build never fails.
func (b *Builder) Build(source []byte, root *sitter.Node) *IdentifierIndex {
	idx := New()
	if root == nil {
		return idx
	}

	for _, c := range parser.Captures(b.fields, root, source) {
		b.addField(idx, source, c.Node)
	}
	for _, c := range parser.Captures(b.enums, root, source) {
		if name := parser.Text(c.Node, source); name != "" && !slices.Contains(idx.Enums, name) {
			idx.Enums = append(idx.Enums, name)
		}
	}

	logger.Debugf("indexed %d table keys and %d enums", len(idx.Tables), len(idx.Enums))
	return idx
}

func (b *Builder) addField(idx *IdentifierIndex, source []byte, name *sitter.Node) {
	table := parser.Ancestor(name, parser.KindTableDefinition)
	if table == nil {
		return
	}
	tableName := parser.FieldText(table, "name", source)
	fieldName := parser.Text(name, source)
	if tableName == "" || fieldName == "" {
		return
	}

	info := FieldInfo{
		Name:  fieldName,
		Range: name.Range(),
	}
	if decl := name.Parent(); decl != nil && decl.Type() == parser.KindFieldDeclaration {
		info.Type = parser.FieldText(decl, "type", source)
	}

	idx.Tables[tableName] = append(idx.Tables[tableName], info)
	if alias := parser.FieldText(table, "alias", source); alias != "" && alias != tableName {
		idx.Tables[alias] = append(idx.Tables[alias], info)
	}
}
