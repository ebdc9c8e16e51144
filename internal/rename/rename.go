// Package rename resolves the occurrences of the identifier under a cursor
// and turns them into rename edits or reference locations.
package rename

import (
	"fmt"
	"slices"
	"strings"

	"github.com/saskenuba/dbml-language-server/internal/parser"
	"github.com/saskenuba/dbml-language-server/internal/sitteradapter"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/tliron/commonlog"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

var logger = commonlog.GetLogger("dbml.rename")

// Role is the grammatical role of an identifier.
type Role int

const (
	RoleNone Role = iota
	RoleTable
	RoleField
	RoleEnum
)

func (r Role) String() string {
	switch r {
	case RoleTable:
		return "table"
	case RoleField:
		return "field"
	case RoleEnum:
		return "enum"
	}
	return "none"
}

// Name of the capture every template marks its occurrences with.
const captureName = "target"

const (
	tableNameTemplate  = `((table_definition name: (identifier) @target) (#eq? @target %[1]s))`
	tableAliasTemplate = `((table_definition alias: (identifier) @target) (#eq? @target %[1]s))`
	tableRefTemplate   = `((table_field table: (identifier) @target) (#eq? @target %[1]s))`

	fieldDeclTemplate = `((table_definition
  name: (identifier) @owner
  (field_declaration_list
    (field_declaration name: (identifier) @target)))
  (#eq? @owner %[1]s)
  (#eq? @target %[2]s))`
	fieldRefTemplate = `((table_field table: (identifier) @owner field: (identifier) @target)
  (#eq? @owner %[1]s)
  (#eq? @target %[2]s))`
	anyFieldRefTemplate = `((table_field field: (identifier) @target) (#eq? @target %[1]s))`

	enumTypeTemplate = `((field_type (identifier) @target) (#eq? @target %[1]s))`
	enumNameTemplate = `((enum_definition name: (identifier) @target) (#eq? @target %[1]s))`
)

// Target is an identifier classified for renaming.
type Target struct {
	Node *sitter.Node
	Name string
	Role Role
	// Table is the table owning a field target, as written at the cursor.
	Table string
}

// Resolver finds identifier occurrences with structural queries built for
// each request.
type Resolver struct {
	svc *parser.Service
}

// NewResolver creates a resolver compiling its queries with svc.
func NewResolver(svc *parser.Service) *Resolver {
	return &Resolver{svc: svc}
}

// Resolve computes the edits renaming the identifier at point to newName.
// It refuses (returns false) when point is not on a renamable identifier.
// The new name is not validated.
func (r *Resolver) Resolve(
	source []byte,
	root *sitter.Node,
	point sitter.Point,
	newName string,
	uri protocol.DocumentUri,
) (*protocol.WorkspaceEdit, bool) {
	ranges, ok := r.Occurrences(source, root, point)
	if !ok {
		return nil, false
	}

	edits := make([]protocol.TextEdit, 0, len(ranges))
	for _, rng := range ranges {
		edits = append(edits, protocol.TextEdit{
			Range:   sitteradapter.RangeToLSP(source, rng),
			NewText: newName,
		})
	}
	return &protocol.WorkspaceEdit{
		Changes: map[protocol.DocumentUri][]protocol.TextEdit{uri: edits},
	}, true
}

// Prepare returns the range of the renamable identifier at point.
func (r *Resolver) Prepare(source []byte, root *sitter.Node, point sitter.Point) (protocol.Range, string, bool) {
	target, ok := Classify(source, root, point)
	if !ok {
		return protocol.Range{}, "", false
	}
	return sitteradapter.RangeToLSP(source, target.Node.Range()), target.Name, true
}

// References returns the location of every occurrence of the identifier at
// point, the identifier itself included.
func (r *Resolver) References(
	source []byte,
	root *sitter.Node,
	point sitter.Point,
	uri protocol.DocumentUri,
) ([]protocol.Location, bool) {
	ranges, ok := r.Occurrences(source, root, point)
	if !ok {
		return nil, false
	}
	locations := make([]protocol.Location, 0, len(ranges))
	for _, rng := range ranges {
		locations = append(locations, protocol.Location{
			URI:   uri,
			Range: sitteradapter.RangeToLSP(source, rng),
		})
	}
	return locations, true
}

// Definition returns the range of the declaration of the identifier at
// point: the table name, field declaration or enum name it resolves to.
// Duplicate declarations resolve to the first in the document.
func (r *Resolver) Definition(source []byte, root *sitter.Node, point sitter.Point) (sitter.Range, bool) {
	ranges, ok := r.Occurrences(source, root, point)
	if !ok {
		return sitter.Range{}, false
	}
	for _, rng := range ranges {
		n := root.NamedDescendantForPointRange(rng.StartPoint, rng.EndPoint)
		if n == nil || n.Parent() == nil {
			continue
		}
		switch n.Parent().Type() {
		case parser.KindTableDefinition, parser.KindFieldDeclaration, parser.KindEnumDefinition:
			return rng, true
		}
	}
	return sitter.Range{}, false
}

// Occurrences returns the ranges of every occurrence of the identifier at
// point, deduplicated and in document order.
func (r *Resolver) Occurrences(source []byte, root *sitter.Node, point sitter.Point) ([]sitter.Range, bool) {
	target, ok := Classify(source, root, point)
	if !ok {
		return nil, false
	}

	pattern := r.pattern(source, root, target)
	q, err := r.svc.Query(pattern)
	if err != nil {
		logger.Errorf("rename query for %s %q: %v", target.Role, target.Name, err)
		return nil, false
	}
	defer q.Close()

	var ranges []sitter.Range
	seen := make(map[[2]uint32]bool)
	for _, c := range parser.Captures(q, root, source) {
		if c.Name != captureName {
			continue
		}
		if target.Role == RoleField {
			if p := c.Node.Parent(); p != nil && p.Type() == parser.KindTableDefinition {
				continue
			}
		}
		key := [2]uint32{c.Node.StartByte(), c.Node.EndByte()}
		if seen[key] {
			continue
		}
		seen[key] = true
		ranges = append(ranges, c.Node.Range())
	}

	slices.SortFunc(ranges, func(a, b sitter.Range) int {
		return int(a.StartByte) - int(b.StartByte)
	})
	logger.Debugf("%s %q: %d occurrences", target.Role, target.Name, len(ranges))
	return ranges, true
}

// pattern builds the query matching every occurrence of target.
func (r *Resolver) pattern(source []byte, root *sitter.Node, target Target) string {
	name := parser.QuoteString(target.Name)

	var patterns []string
	switch target.Role {
	case RoleTable:
		patterns = []string{
			fmt.Sprintf(tableNameTemplate, name),
			fmt.Sprintf(tableAliasTemplate, name),
			fmt.Sprintf(tableRefTemplate, name),
		}

	case RoleField:
		canonical, alias, declared := lookupTable(source, root, target.Table)
		if !declared {
			patterns = []string{fmt.Sprintf(anyFieldRefTemplate, name)}
			break
		}
		owner := parser.QuoteString(canonical)
		patterns = []string{
			fmt.Sprintf(fieldDeclTemplate, owner, name),
			fmt.Sprintf(fieldRefTemplate, owner, name),
		}
		if alias != "" {
			patterns = append(patterns, fmt.Sprintf(fieldRefTemplate, parser.QuoteString(alias), name))
		}

	case RoleEnum:
		patterns = []string{
			fmt.Sprintf(enumTypeTemplate, name),
			fmt.Sprintf(enumNameTemplate, name),
		}
	}
	return strings.Join(patterns, "\n")
}

// Classify determines the role of the identifier at point from its nearest
// defining ancestor. Anything other than a table, field or enum identifier
// is refused.
func Classify(source []byte, root *sitter.Node, point sitter.Point) (Target, bool) {
	if root == nil {
		return Target{}, false
	}
	n := root.DescendantForPointRange(point, point)
	if n == nil || n.Type() != parser.KindIdentifier {
		return Target{}, false
	}

	target := Target{Node: n, Name: parser.Text(n, source)}
	if target.Name == "" {
		return Target{}, false
	}

	owner := parser.Ancestor(n,
		parser.KindTableDefinition,
		parser.KindFieldDeclaration,
		parser.KindFieldType,
		parser.KindEnumDefinition,
		parser.KindTableField,
	)
	if owner == nil {
		return Target{}, false
	}

	switch owner.Type() {
	case parser.KindTableDefinition:
		if parser.SameNode(n, owner.ChildByFieldName("name")) || parser.SameNode(n, owner.ChildByFieldName("alias")) {
			target.Role = RoleTable
		}
	case parser.KindFieldDeclaration:
		if parser.SameNode(n, owner.ChildByFieldName("name")) {
			target.Role = RoleField
			table := parser.Ancestor(owner, parser.KindTableDefinition)
			target.Table = parser.FieldText(table, "name", source)
		}
	case parser.KindFieldType:
		if declaresEnum(source, root, target.Name) {
			target.Role = RoleEnum
		}
	case parser.KindEnumDefinition:
		if parser.SameNode(n, owner.ChildByFieldName("name")) {
			target.Role = RoleEnum
		}
	case parser.KindTableField:
		switch {
		case parser.SameNode(n, owner.ChildByFieldName("table")):
			target.Role = RoleTable
		case parser.SameNode(n, owner.ChildByFieldName("field")):
			target.Role = RoleField
			target.Table = parser.FieldText(owner, "table", source)
		}
	}

	if target.Role == RoleNone {
		return Target{}, false
	}
	return target, true
}

// declaresEnum reports whether an enum named name is declared at the top
// level.
func declaresEnum(source []byte, root *sitter.Node, name string) bool {
	for i := 0; i < int(root.NamedChildCount()); i++ {
		def := root.NamedChild(i)
		if def != nil && def.Type() == parser.KindEnumDefinition && parser.FieldText(def, "name", source) == name {
			return true
		}
	}
	return false
}

// lookupTable finds the top-level table declared with name or alias as
// table, returning its canonical name and alias.
func lookupTable(source []byte, root *sitter.Node, table string) (canonical, alias string, ok bool) {
	if table == "" {
		return "", "", false
	}
	for i := 0; i < int(root.NamedChildCount()); i++ {
		def := root.NamedChild(i)
		if def == nil || def.Type() != parser.KindTableDefinition {
			continue
		}
		name := parser.FieldText(def, "name", source)
		as := parser.FieldText(def, "alias", source)
		if name == table || (as != "" && as == table) {
			return name, as, true
		}
	}
	return "", "", false
}
