package server

import (
	"github.com/saskenuba/dbml-language-server/internal/graph"
	"github.com/saskenuba/dbml-language-server/internal/manager"
	"github.com/saskenuba/dbml-language-server/internal/parser"
	"github.com/saskenuba/dbml-language-server/internal/scheduler"
	"github.com/saskenuba/dbml-language-server/internal/store"

	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

func (s *Server) textDocumentDidOpen(
	context *glsp.Context,
	params *protocol.DidOpenTextDocumentParams,
) error {
	doc := s.manager.Open(params.TextDocument.URI, params.TextDocument.Version, params.TextDocument.Text)
	s.documentUpdated(context, doc.Snapshot())
	return nil
}

func (s *Server) textDocumentDidChange(
	context *glsp.Context,
	params *protocol.DidChangeTextDocumentParams,
) error {
	doc, err := s.manager.Get(params.TextDocument.URI)
	if err != nil {
		return err
	}
	if err := doc.ApplyChanges(params.TextDocument.Version, params.ContentChanges); err != nil {
		return err
	}
	s.documentUpdated(context, doc.Snapshot())
	return nil
}

func (s *Server) textDocumentDidSave(
	context *glsp.Context,
	params *protocol.DidSaveTextDocumentParams,
) error {
	doc, err := s.manager.Get(params.TextDocument.URI)
	if err != nil {
		return err
	}
	if params.Text != nil {
		doc.Replace(doc.Snapshot().Version, *params.Text)
	}
	s.documentUpdated(context, doc.Snapshot())
	return nil
}

func (s *Server) textDocumentDidClose(
	context *glsp.Context,
	params *protocol.DidCloseTextDocumentParams,
) error {
	uri := params.TextDocument.URI
	s.manager.Close(uri)
	s.clearDiagnostics(context, uri)

	// The file on disk is the source of truth again.
	path, err := uriToPath(uri)
	if err == nil && s.inWorkspace(path) {
		s.scheduleFile(uri, func() { fileEvents{s}.Changed(path) })
	} else {
		s.scheduleFile(uri, func() { s.forgetFile(uri) })
	}
	return nil
}

// documentUpdated publishes the syntax diagnostics of snap and queues the
// store and graph refresh of the document.
func (s *Server) documentUpdated(context *glsp.Context, snap manager.Snapshot) {
	root := snap.Root()
	s.publishDiagnostics(context, snap.URI, syntaxDiagnostics(snap.Source, parser.SyntaxErrors(root)))

	s.scheduleFile(snap.URI, func() {
		defs := s.builder.Definitions(snap.Source, root)
		nodes, links := graph.FromSchema(defs, s.builder.Relationships(snap.Source, root))
		if err := s.graph.SetDocument(snap.URI, nodes, links); err != nil {
			logger.Warningf("graph update for %s: %v", snap.URI, err)
		}
		if s.store != nil {
			symbols := store.SymbolsFromDefinitions(snap.URI, snap.Source, defs)
			if err := s.store.UpsertDocument(snap.URI, store.Hash(snap.Source), symbols); err != nil {
				logger.Errorf("storing symbols of %s: %v", snap.URI, err)
			}
		}
	})
}

// scheduleFile runs fn on the background worker, or inline before
// initialize has started it.
func (s *Server) scheduleFile(uri string, fn func()) {
	task := scheduler.Task{
		Name: "index " + uri,
		Execute: func() error {
			fn()
			return nil
		},
	}
	if s.scheduler == nil || !s.scheduler.Schedule(task) {
		logger.Debugf("indexing %s inline", uri)
		fn()
	}
}
