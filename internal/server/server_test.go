package server

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/saskenuba/dbml-language-server/internal/completion"
	"github.com/saskenuba/dbml-language-server/internal/config"
	"github.com/saskenuba/dbml-language-server/internal/parser"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

const schema = `Table users as U {
  id int [pk]
  name varchar
}

Table posts {
  id int
  author_id int [ref: > U.id]
}
`

type notification struct {
	method string
	params any
}

type client struct {
	mu   sync.Mutex
	sent []notification
}

func (c *client) context() *glsp.Context {
	return &glsp.Context{
		Notify: func(method string, params any) {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.sent = append(c.sent, notification{method, params})
		},
	}
}

func (c *client) last(method string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.sent) - 1; i >= 0; i-- {
		if c.sent[i].method == method {
			return c.sent[i].params, true
		}
	}
	return nil, false
}

func (c *client) count(method string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, note := range c.sent {
		if note.method == method {
			n++
		}
	}
	return n
}

func pos(line, character uint32) protocol.Position {
	return protocol.Position{Line: line, Character: character}
}

func textPosition(uri string, line, character uint32) protocol.TextDocumentPositionParams {
	return protocol.TextDocumentPositionParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: uri},
		Position:     pos(line, character),
	}
}

func newTestServer(t *testing.T) (*Server, *client, string) {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "accounts.dbml"), []byte("Table accounts {\n  id int\n}\n"), 0o644))

	cfg := config.Default()
	cfg.StateDir = t.TempDir()
	cfg.Watch = false

	s, err := New("dbml-language-server", "test", cfg)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	c := &client{}
	rootURI := pathToURI(root)
	result, err := s.initialize(c.context(), &protocol.InitializeParams{RootURI: &rootURI})
	require.NoError(t, err)

	initResult, ok := result.(protocol.InitializeResult)
	require.True(t, ok)
	assert.Equal(t, []string{".", "[", ":"}, initResult.Capabilities.CompletionProvider.TriggerCharacters)
	assert.Equal(t, []string{ShowGraphCommand}, initResult.Capabilities.ExecuteCommandProvider.Commands)
	return s, c, root
}

func TestLanguageFeatures(t *testing.T) {
	s, c, root := newTestServer(t)
	ctx := c.context()
	uri := pathToURI(filepath.Join(root, "schema.dbml"))

	require.NoError(t, s.textDocumentDidOpen(ctx, &protocol.DidOpenTextDocumentParams{
		TextDocument: protocol.TextDocumentItem{URI: uri, LanguageID: "dbml", Version: 1, Text: schema},
	}))
	published, ok := c.last(protocol.ServerTextDocumentPublishDiagnostics)
	require.True(t, ok)
	assert.Empty(t, published.(protocol.PublishDiagnosticsParams).Diagnostics)

	t.Run("document symbols", func(t *testing.T) {
		result, err := s.textDocumentDocumentSymbol(ctx, &protocol.DocumentSymbolParams{
			TextDocument: protocol.TextDocumentIdentifier{URI: uri},
		})
		require.NoError(t, err)
		symbols := result.([]protocol.DocumentSymbol)
		require.Len(t, symbols, 2)
		assert.Equal(t, "users", symbols[0].Name)
		require.NotNil(t, symbols[0].Detail)
		assert.Equal(t, "as U", *symbols[0].Detail)
		require.Len(t, symbols[0].Children, 2)
		assert.Equal(t, "name", symbols[0].Children[1].Name)
		assert.Equal(t, "varchar", *symbols[0].Children[1].Detail)
	})

	t.Run("references", func(t *testing.T) {
		params := &protocol.ReferenceParams{TextDocumentPositionParams: textPosition(uri, 1, 2)}
		params.Context.IncludeDeclaration = true
		locations, err := s.textDocumentReferences(ctx, params)
		require.NoError(t, err)
		require.Len(t, locations, 2)
		assert.Equal(t, pos(7, 26), locations[1].Range.Start)

		params.Context.IncludeDeclaration = false
		locations, err = s.textDocumentReferences(ctx, params)
		require.NoError(t, err)
		require.Len(t, locations, 1)
		assert.Equal(t, pos(7, 26), locations[0].Range.Start)
	})

	t.Run("definition", func(t *testing.T) {
		result, err := s.textDocumentDefinition(ctx, &protocol.DefinitionParams{
			TextDocumentPositionParams: textPosition(uri, 7, 26),
		})
		require.NoError(t, err)
		location := result.(protocol.Location)
		assert.Equal(t, uri, location.URI)
		assert.Equal(t, pos(1, 2), location.Range.Start)
	})

	t.Run("rename", func(t *testing.T) {
		prepared, err := s.textDocumentPrepareRename(ctx, &protocol.PrepareRenameParams{
			TextDocumentPositionParams: textPosition(uri, 0, 8),
		})
		require.NoError(t, err)
		assert.Equal(t, "users", prepared.(protocol.RangeWithPlaceholder).Placeholder)

		edit, err := s.textDocumentRename(ctx, &protocol.RenameParams{
			TextDocumentPositionParams: textPosition(uri, 0, 8),
			NewName:                    "members",
		})
		require.NoError(t, err)
		require.NotNil(t, edit)
		edits := edit.Changes[uri]
		require.Len(t, edits, 1)
		assert.Equal(t, pos(0, 6), edits[0].Range.Start)
		assert.Equal(t, "members", edits[0].NewText)

		edit, err = s.textDocumentRename(ctx, &protocol.RenameParams{
			TextDocumentPositionParams: textPosition(uri, 4, 0),
			NewName:                    "x",
		})
		require.NoError(t, err)
		assert.Nil(t, edit)
	})

	t.Run("completion after edit", func(t *testing.T) {
		end := pos(9, 0)
		require.NoError(t, s.textDocumentDidChange(ctx, &protocol.DidChangeTextDocumentParams{
			TextDocument: protocol.VersionedTextDocumentIdentifier{
				TextDocumentIdentifier: protocol.TextDocumentIdentifier{URI: uri},
				Version:                2,
			},
			ContentChanges: []any{protocol.TextDocumentContentChangeEvent{
				Range: &protocol.Range{Start: end, End: end},
				Text:  "Ref: posts.id > users.\n",
			}},
		}))

		trigger := "."
		result, err := s.textDocumentCompletion(ctx, &protocol.CompletionParams{
			TextDocumentPositionParams: textPosition(uri, 9, 22),
			Context: &protocol.CompletionContext{
				TriggerKind:      protocol.CompletionTriggerKindTriggerCharacter,
				TriggerCharacter: &trigger,
			},
		})
		require.NoError(t, err)
		var labels []string
		for _, item := range result.([]protocol.CompletionItem) {
			labels = append(labels, item.Label)
			assert.Equal(t, protocol.CompletionItemKindField, *item.Kind)
		}
		assert.ElementsMatch(t, []string{"id", "name"}, labels)

		published, ok := c.last(protocol.ServerTextDocumentPublishDiagnostics)
		require.True(t, ok)
		assert.NotEmpty(t, published.(protocol.PublishDiagnosticsParams).Diagnostics)
	})

	t.Run("workspace symbols", func(t *testing.T) {
		assert.Eventually(t, func() bool {
			found, err := s.workspaceSymbol(ctx, &protocol.WorkspaceSymbolParams{Query: "accounts"})
			return err == nil && len(found) > 0 && found[0].Name == "accounts"
		}, 2*time.Second, 10*time.Millisecond)

		assert.Eventually(t, func() bool {
			found, err := s.workspaceSymbol(ctx, &protocol.WorkspaceSymbolParams{Query: "author"})
			return err == nil && len(found) == 1 && found[0].Location.URI == uri
		}, 2*time.Second, 10*time.Millisecond)
	})

	t.Run("show graph", func(t *testing.T) {
		result, err := s.workspaceExecuteCommand(ctx, &protocol.ExecuteCommandParams{Command: ShowGraphCommand})
		require.NoError(t, err)
		url := result.(string)
		assert.True(t, strings.HasPrefix(url, "http://127.0.0.1:"))

		shown, ok := c.last(protocol.ServerWindowShowDocument)
		require.True(t, ok)
		assert.Equal(t, url, shown.(protocol.ShowDocumentParams).URI)

		_, err = s.workspaceExecuteCommand(ctx, &protocol.ExecuteCommandParams{Command: "nope"})
		assert.Error(t, err)
	})

	require.NoError(t, s.textDocumentDidClose(ctx, &protocol.DidCloseTextDocumentParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: uri},
	}))
	assert.False(t, s.manager.IsOpen(uri))
	cleared, ok := c.last(protocol.ServerTextDocumentPublishDiagnostics)
	require.True(t, ok)
	assert.Empty(t, cleared.(protocol.PublishDiagnosticsParams).Diagnostics)

	require.NoError(t, s.shutdown(ctx))
}

func TestRequestForUnknownDocument(t *testing.T) {
	s, c, _ := newTestServer(t)
	_, err := s.textDocumentCompletion(c.context(), &protocol.CompletionParams{
		TextDocumentPositionParams: textPosition("file:///missing.dbml", 0, 0),
	})
	assert.Error(t, err)
}

func TestSyntaxDiagnostics(t *testing.T) {
	svc := parser.NewService()
	defer svc.Close()

	source := []byte("Table users {\n  id int\n")
	root := svc.Parse(source, nil).RootNode()

	diagnostics := syntaxDiagnostics(source, parser.SyntaxErrors(root))
	require.NotEmpty(t, diagnostics)
	for _, d := range diagnostics {
		assert.Equal(t, protocol.DiagnosticSeverityError, *d.Severity)
		assert.Equal(t, "dbml", *d.Source)
		assert.NotEqual(t, d.Range.Start, d.Range.End)
	}

	assert.Empty(t, syntaxDiagnostics(source, nil))
}

func TestPublishDiagnosticsSkipsUnchanged(t *testing.T) {
	s := &Server{lastDiagnostics: make(map[string][]protocol.Diagnostic)}
	c := &client{}
	ctx := c.context()

	none := []protocol.Diagnostic{}
	s.publishDiagnostics(ctx, "file:///a.dbml", none)
	s.publishDiagnostics(ctx, "file:///a.dbml", none)
	assert.Equal(t, 1, c.count(protocol.ServerTextDocumentPublishDiagnostics))

	one := []protocol.Diagnostic{{Message: "syntax error"}}
	s.publishDiagnostics(ctx, "file:///a.dbml", one)
	s.publishDiagnostics(ctx, "file:///a.dbml", one)
	assert.Equal(t, 2, c.count(protocol.ServerTextDocumentPublishDiagnostics))

	s.clearDiagnostics(ctx, "file:///a.dbml")
	s.clearDiagnostics(ctx, "file:///a.dbml")
	assert.Equal(t, 3, c.count(protocol.ServerTextDocumentPublishDiagnostics))
}

func TestURIConversion(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "my schema.dbml")

	uri := pathToURI(path)
	assert.True(t, strings.HasPrefix(uri, "file:///"))
	assert.Contains(t, uri, "my%20schema.dbml")

	back, err := uriToPath(uri)
	require.NoError(t, err)
	assert.Equal(t, path, back)

	_, err = uriToPath("untitled:Untitled-1")
	assert.Error(t, err)
}

func TestInWorkspace(t *testing.T) {
	s := &Server{root: "/work", cfg: config.Default()}

	assert.True(t, s.inWorkspace("/work/db/schema.dbml"))
	assert.False(t, s.inWorkspace("/work/notes.txt"))
	assert.False(t, s.inWorkspace("/elsewhere/schema.dbml"))
	assert.False(t, s.inWorkspace("/work/node_modules/x/schema.dbml"))

	s.root = ""
	assert.False(t, s.inWorkspace("/work/db/schema.dbml"))
}

func TestCompletionItems(t *testing.T) {
	items := completionItems([]completion.Candidate{
		{Label: "users", Kind: completion.KindTable},
		{Label: "id", Kind: completion.KindField, Detail: "int"},
		{Label: "pk", Kind: completion.KindKeyword},
	})
	require.Len(t, items, 3)
	assert.Equal(t, protocol.CompletionItemKindClass, *items[0].Kind)
	assert.Nil(t, items[0].Detail)
	assert.Equal(t, "int", *items[1].Detail)
	assert.Equal(t, protocol.CompletionItemKindKeyword, *items[2].Kind)
}

func TestWorkspaceIndexing(t *testing.T) {
	root := t.TempDir()
	cfg := config.Default()
	cfg.StateDir = t.TempDir()
	cfg.Watch = false
	cfg.IndexWorkspace = false

	s, err := New("dbml-language-server", "test", cfg)
	require.NoError(t, err)
	defer s.Close()

	rootURI := pathToURI(root)
	_, err = s.initialize((&client{}).context(), &protocol.InitializeParams{RootURI: &rootURI})
	require.NoError(t, err)
	require.NotNil(t, s.store)

	path := filepath.Join(root, "orders.dbml")
	uri := pathToURI(path)
	require.NoError(t, os.WriteFile(path, []byte("Table orders {\n  id int\n}\n"), 0o644))

	events := fileEvents{s}
	events.Changed(path)
	hash, err := s.store.DocumentHash(uri)
	require.NoError(t, err)
	assert.Equal(t, []string{"orders"}, nodeIDs(s))

	events.Changed(path)
	again, err := s.store.DocumentHash(uri)
	require.NoError(t, err)
	assert.Equal(t, hash, again)

	s.manager.Open(uri, 1, "Table open_orders {\n}\n")
	require.NoError(t, os.WriteFile(path, []byte("Table renamed {\n}\n"), 0o644))
	events.Changed(path)
	found, err := s.store.Search("renamed", 10)
	require.NoError(t, err)
	assert.Empty(t, found, "open documents are owned by their session")
	s.manager.Close(uri)

	require.NoError(t, os.Remove(path))
	require.NoError(t, s.pruneStore())
	uris, err := s.store.Documents()
	require.NoError(t, err)
	assert.Empty(t, uris)
	assert.Empty(t, nodeIDs(s))
}

func nodeIDs(s *Server) []string {
	ids := []string{}
	for _, n := range s.graph.Graph().Nodes {
		ids = append(ids, n.ID)
	}
	return ids
}
