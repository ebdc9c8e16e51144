package parser_test

import (
	"sync"
	"testing"

	"github.com/saskenuba/dbml-language-server/internal/parser"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const schema = `Project blog {
  database_type: 'PostgreSQL'
}

Table users as U {
  id int [pk, increment]
  email varchar(255) [unique, not null]
}

Table posts {
  id int [pk]
  user_id int [ref: > users.id]
  status post_status
}

Enum post_status {
  draft
  published
}

Ref: posts.user_id > U.id
`

func TestParseValidDocument(t *testing.T) {
	svc := parser.NewService()
	defer svc.Close()

	tree := svc.Parse([]byte(schema), nil)
	require.NotNil(t, tree)

	root := tree.RootNode()
	assert.Equal(t, parser.KindProjectFile, root.Type())
	assert.False(t, root.HasError(), root.String())
	assert.Empty(t, parser.SyntaxErrors(root))
}

func TestParseAlwaysReturnsATree(t *testing.T) {
	svc := parser.NewService()
	defer svc.Close()

	for _, input := range []string{
		"",
		"Table {",
		"}}}} [[[ ::: ...",
		"Table users {\n  id \n}\n",
		"Ref: posts.user_id > users.\n",
	} {
		tree := svc.Parse([]byte(input), nil)
		require.NotNil(t, tree, "input %q", input)
		assert.True(t, parser.IsRoot(tree.RootNode()), "input %q", input)
	}
}

func TestSyntaxErrors(t *testing.T) {
	svc := parser.NewService()
	defer svc.Close()

	tree := svc.Parse([]byte("Table users {\n  id int [pk\n}\n"), nil)
	errs := parser.SyntaxErrors(tree.RootNode())
	require.NotEmpty(t, errs)
	assert.GreaterOrEqual(t, errs[0].Range.StartPoint.Row, uint32(1))
}

func TestConcurrentParsesAreSerialized(t *testing.T) {
	svc := parser.NewService()
	defer svc.Close()

	var wg sync.WaitGroup
	trees := make([]*sitter.Tree, 16)
	for i := range trees {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			trees[i] = svc.Parse([]byte(schema), nil)
		}(i)
	}
	wg.Wait()

	for _, tree := range trees {
		require.NotNil(t, tree)
		assert.False(t, tree.RootNode().HasError())
	}
}

func TestAncestor(t *testing.T) {
	svc := parser.NewService()
	defer svc.Close()

	source := []byte(schema)
	root := svc.Parse(source, nil).RootNode()

	// "email" on line 6.
	point := sitter.Point{Row: 6, Column: 3}
	node := root.NamedDescendantForPointRange(point, point)
	require.NotNil(t, node)
	assert.Equal(t, "email", parser.Text(node, source))

	table := parser.Ancestor(node, parser.KindTableDefinition)
	require.NotNil(t, table)
	assert.Equal(t, "users", parser.FieldText(table, "name", source))
	assert.Equal(t, "U", parser.FieldText(table, "alias", source))

	assert.Nil(t, parser.Ancestor(node, parser.KindEnumDefinition))
	assert.Nil(t, parser.Ancestor(root, parser.KindTableDefinition))
	assert.Nil(t, parser.Ancestor(nil, parser.KindTableDefinition))
}

func TestTextIsSafe(t *testing.T) {
	svc := parser.NewService()
	defer svc.Close()

	root := svc.Parse([]byte(schema), nil).RootNode()
	assert.Equal(t, "", parser.Text(nil, nil))
	assert.Equal(t, "", parser.Text(root, []byte("short")))
}

func TestCapturesApplyPredicates(t *testing.T) {
	svc := parser.NewService()
	defer svc.Close()

	source := []byte(schema)
	root := svc.Parse(source, nil).RootNode()

	q, err := svc.Query(`((table_definition name: (identifier) @target) (#eq? @target ` +
		parser.QuoteString("posts") + `))`)
	require.NoError(t, err)
	defer q.Close()

	captures := parser.Captures(q, root, source)
	require.Len(t, captures, 1)
	assert.Equal(t, "target", captures[0].Name)
	assert.Equal(t, "posts", parser.Text(captures[0].Node, source))
}

func TestQueryRejectsInvalidPattern(t *testing.T) {
	svc := parser.NewService()
	defer svc.Close()

	_, err := svc.Query(`(table_definition name: (no_such_kind) @x)`)
	assert.Error(t, err)
}

func TestQuoteString(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"users", `"users"`},
		{`we"ird`, `"we\"ird"`},
		{`back\slash`, `"back\\slash"`},
		{"two\nlines", `"two\nlines"`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parser.QuoteString(tt.in))
	}
}

func TestQuotedIdentifierCannotEscapePredicate(t *testing.T) {
	svc := parser.NewService()
	defer svc.Close()

	source := []byte(schema)
	root := svc.Parse(source, nil).RootNode()

	hostile := `posts") (#eq? @target "users`
	q, err := svc.Query(`((table_definition name: (identifier) @target) (#eq? @target ` +
		parser.QuoteString(hostile) + `))`)
	require.NoError(t, err)
	defer q.Close()

	assert.Empty(t, parser.Captures(q, root, source))
}
