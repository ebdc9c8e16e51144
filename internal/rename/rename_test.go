package rename_test

import (
	"testing"

	"github.com/saskenuba/dbml-language-server/internal/parser"
	"github.com/saskenuba/dbml-language-server/internal/rename"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

const schema = `Table users as U {
  id int [pk]
  name varchar
}

Table posts {
  id int
  users int
  author_id int [ref: > users.id]
  status post_status
}

Enum post_status {
  draft
}

Ref: posts.author_id > U.id
Ref: posts.id - users.id
`

const uri = protocol.DocumentUri("file:///schema.dbml")

type fixture struct {
	source   []byte
	root     *sitter.Node
	resolver *rename.Resolver
}

func newFixture(t *testing.T, source string) fixture {
	t.Helper()
	svc := parser.NewService()
	t.Cleanup(func() { svc.Close() })

	tree := svc.Parse([]byte(source), nil)
	require.NotNil(t, tree)
	return fixture{
		source:   []byte(source),
		root:     tree.RootNode(),
		resolver: rename.NewResolver(svc),
	}
}

func starts(ranges []sitter.Range) []sitter.Point {
	out := make([]sitter.Point, 0, len(ranges))
	for _, r := range ranges {
		out = append(out, r.StartPoint)
	}
	return out
}

func pt(row, col uint32) sitter.Point {
	return sitter.Point{Row: row, Column: col}
}

func TestOccurrences(t *testing.T) {
	f := newFixture(t, schema)

	tests := []struct {
		name  string
		point sitter.Point
		want  []sitter.Point
	}{
		{
			name:  "table name",
			point: pt(0, 8),
			want:  []sitter.Point{pt(0, 6), pt(8, 24), pt(17, 16)},
		},
		{
			name:  "table alias",
			point: pt(0, 15),
			want:  []sitter.Point{pt(0, 15), pt(16, 23)},
		},
		{
			name:  "table side of a reference",
			point: pt(17, 17),
			want:  []sitter.Point{pt(0, 6), pt(8, 24), pt(17, 16)},
		},
		{
			name:  "field declaration",
			point: pt(1, 2),
			want:  []sitter.Point{pt(1, 2), pt(8, 30), pt(16, 25), pt(17, 22)},
		},
		{
			name:  "field side of a reference",
			point: pt(17, 11),
			want:  []sitter.Point{pt(6, 2), pt(17, 11)},
		},
		{
			name:  "enum type reference",
			point: pt(9, 12),
			want:  []sitter.Point{pt(9, 9), pt(12, 5)},
		},
		{
			name:  "enum definition",
			point: pt(12, 5),
			want:  []sitter.Point{pt(9, 9), pt(12, 5)},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ranges, ok := f.resolver.Occurrences(f.source, f.root, tt.point)
			require.True(t, ok)
			assert.Equal(t, tt.want, starts(ranges))
			for _, r := range ranges {
				assert.Equal(t, r.EndByte-r.StartByte, ranges[0].EndByte-ranges[0].StartByte)
			}
		})
	}
}

func TestOccurrencesRefused(t *testing.T) {
	f := newFixture(t, schema)

	for name, point := range map[string]sitter.Point{
		"blank line":         pt(4, 0),
		"indentation":        pt(1, 0),
		"keyword":            pt(0, 1),
		"enum value":         pt(13, 3),
		"attribute keyword":  pt(1, 10),
		"builtin field type": pt(1, 5),
		"undeclared type":    pt(2, 7),
		"past the end":       pt(99, 0),
	} {
		t.Run(name, func(t *testing.T) {
			_, ok := f.resolver.Occurrences(f.source, f.root, point)
			assert.False(t, ok)

			edit, ok := f.resolver.Resolve(f.source, f.root, point, "renamed", uri)
			assert.False(t, ok)
			assert.Nil(t, edit)
		})
	}
}

func TestTableRenameSkipsSameNamedField(t *testing.T) {
	f := newFixture(t, schema)

	ranges, ok := f.resolver.Occurrences(f.source, f.root, pt(0, 6))
	require.True(t, ok)
	assert.NotContains(t, starts(ranges), pt(7, 2))
}

func TestResolve(t *testing.T) {
	f := newFixture(t, schema)

	edit, ok := f.resolver.Resolve(f.source, f.root, pt(0, 6), "accounts", uri)
	require.True(t, ok)
	require.NotNil(t, edit)
	require.Len(t, edit.Changes, 1)

	edits := edit.Changes[uri]
	require.Len(t, edits, 3)
	for _, e := range edits {
		assert.Equal(t, "accounts", e.NewText)
		assert.Equal(t, e.Range.Start.Line, e.Range.End.Line)
		assert.Equal(t, e.Range.Start.Character+5, e.Range.End.Character)
	}
	assert.Equal(t, protocol.Position{Line: 0, Character: 6}, edits[0].Range.Start)
}

func TestFieldOfUndeclaredTable(t *testing.T) {
	f := newFixture(t, "Ref: a.x > b.x\nRef: c.x > a.y\n")

	ranges, ok := f.resolver.Occurrences(f.source, f.root, pt(0, 7))
	require.True(t, ok)
	assert.Equal(t, []sitter.Point{pt(0, 7), pt(0, 13), pt(1, 7)}, starts(ranges))
}

func TestPrepare(t *testing.T) {
	f := newFixture(t, schema)

	rng, placeholder, ok := f.resolver.Prepare(f.source, f.root, pt(0, 8))
	require.True(t, ok)
	assert.Equal(t, "users", placeholder)
	assert.Equal(t, protocol.Range{
		Start: protocol.Position{Line: 0, Character: 6},
		End:   protocol.Position{Line: 0, Character: 11},
	}, rng)

	_, _, ok = f.resolver.Prepare(f.source, f.root, pt(4, 0))
	assert.False(t, ok)
}

func TestReferences(t *testing.T) {
	f := newFixture(t, schema)

	locations, ok := f.resolver.References(f.source, f.root, pt(12, 6), uri)
	require.True(t, ok)
	require.Len(t, locations, 2)
	for _, l := range locations {
		assert.Equal(t, uri, l.URI)
	}
}

func TestClassify(t *testing.T) {
	f := newFixture(t, schema)

	target, ok := rename.Classify(f.source, f.root, pt(16, 25))
	require.True(t, ok)
	assert.Equal(t, rename.RoleField, target.Role)
	assert.Equal(t, "id", target.Name)
	assert.Equal(t, "U", target.Table)

	target, ok = rename.Classify(f.source, f.root, pt(9, 9))
	require.True(t, ok)
	assert.Equal(t, rename.RoleEnum, target.Role)
	assert.Equal(t, "enum", target.Role.String())

	_, ok = rename.Classify(nil, nil, pt(0, 0))
	assert.False(t, ok)
}

func TestDefinition(t *testing.T) {
	f := newFixture(t, schema)

	tests := []struct {
		name  string
		point sitter.Point
		want  sitter.Point
	}{
		{name: "table reference", point: pt(17, 17), want: pt(0, 6)},
		{name: "alias reference", point: pt(16, 23), want: pt(0, 15)},
		{name: "field reference through alias", point: pt(16, 25), want: pt(1, 2)},
		{name: "field reference", point: pt(17, 11), want: pt(6, 2)},
		{name: "enum type", point: pt(9, 12), want: pt(12, 5)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rng, ok := f.resolver.Definition(f.source, f.root, tt.point)
			require.True(t, ok)
			assert.Equal(t, tt.want, rng.StartPoint)
		})
	}

	_, ok := f.resolver.Definition(f.source, f.root, pt(4, 0))
	assert.False(t, ok)
}
