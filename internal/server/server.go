// Package server wires the DBML core into a glsp language server.
package server

import (
	"context"
	"fmt"
	"sync"

	"github.com/saskenuba/dbml-language-server/internal/config"
	"github.com/saskenuba/dbml-language-server/internal/graph"
	"github.com/saskenuba/dbml-language-server/internal/index"
	"github.com/saskenuba/dbml-language-server/internal/manager"
	"github.com/saskenuba/dbml-language-server/internal/parser"
	"github.com/saskenuba/dbml-language-server/internal/rename"
	"github.com/saskenuba/dbml-language-server/internal/scanner"
	"github.com/saskenuba/dbml-language-server/internal/scheduler"
	"github.com/saskenuba/dbml-language-server/internal/store"

	"github.com/tliron/commonlog"
	protocol "github.com/tliron/glsp/protocol_3_16"
	glspserver "github.com/tliron/glsp/server"
)

var logger = commonlog.GetLogger("dbml.server")

// ShowGraphCommand opens the schema graph in a browser.
const ShowGraphCommand = "dbml.showGraph"

// Size of the background task queue.
const queueSize = 256

type Server struct {
	name    string
	version string
	base    config.Config
	handler *protocol.Handler

	svc      *parser.Service
	builder  *index.Builder
	manager  *manager.DocumentManager
	resolver *rename.Resolver
	graph    *graph.Server

	// Set by initialize.
	cfg        config.Config
	root       string
	store      *store.Store
	scheduler  *scheduler.Scheduler
	watcher    *scanner.Watcher
	cancelScan context.CancelFunc
	scans      sync.WaitGroup

	diagnosticsMu   sync.Mutex
	lastDiagnostics map[string][]protocol.Diagnostic
}

// New creates a server. base is the configuration that initialization
// options and the workspace file are layered on.
func New(name, version string, base config.Config) (*Server, error) {
	svc := parser.NewService()
	builder, err := index.NewBuilder(svc)
	if err != nil {
		svc.Close()
		return nil, fmt.Errorf("failed to compile index queries: %w", err)
	}

	s := &Server{
		name:            name,
		version:         version,
		base:            base,
		cfg:             base,
		svc:             svc,
		builder:         builder,
		manager:         manager.NewDocumentManager(svc, builder),
		resolver:        rename.NewResolver(svc),
		graph:           graph.NewServer(),
		lastDiagnostics: make(map[string][]protocol.Diagnostic),
	}
	s.handler = &protocol.Handler{
		Initialize:                 s.initialize,
		Initialized:                s.initialized,
		Shutdown:                   s.shutdown,
		SetTrace:                   s.setTrace,
		TextDocumentDidOpen:        s.textDocumentDidOpen,
		TextDocumentDidChange:      s.textDocumentDidChange,
		TextDocumentDidSave:        s.textDocumentDidSave,
		TextDocumentDidClose:       s.textDocumentDidClose,
		TextDocumentCompletion:     s.textDocumentCompletion,
		TextDocumentDefinition:     s.textDocumentDefinition,
		TextDocumentReferences:     s.textDocumentReferences,
		TextDocumentRename:         s.textDocumentRename,
		TextDocumentPrepareRename:  s.textDocumentPrepareRename,
		TextDocumentDocumentSymbol: s.textDocumentDocumentSymbol,
		WorkspaceSymbol:            s.workspaceSymbol,
		WorkspaceExecuteCommand:    s.workspaceExecuteCommand,
	}
	return s, nil
}

// RunStdio serves the protocol over stdin and stdout until the client
// exits.
func (s *Server) RunStdio() error {
	defer s.Close()
	return glspserver.NewServer(s.handler, s.name, false).RunStdio()
}

// Close stops every background component and releases the parser.
func (s *Server) Close() error {
	s.stopWorkspace()
	s.manager.CloseAll()
	s.builder.Close()
	return s.svc.Close()
}
