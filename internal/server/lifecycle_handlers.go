package server

import (
	"context"
	"path/filepath"
	"time"

	"github.com/saskenuba/dbml-language-server/internal/completion"
	"github.com/saskenuba/dbml-language-server/internal/config"
	"github.com/saskenuba/dbml-language-server/internal/scanner"
	"github.com/saskenuba/dbml-language-server/internal/scheduler"
	"github.com/saskenuba/dbml-language-server/internal/store"

	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

// How often stored documents are checked against the disk.
const pruneInterval = 5 * time.Minute

func (s *Server) initialize(
	context *glsp.Context,
	params *protocol.InitializeParams,
) (any, error) {
	cfg, err := config.Load(s.base, params.InitializationOptions)
	if err != nil {
		return nil, err
	}

	root := rootPath(params)
	if root != "" {
		if cfg, err = config.LoadFile(cfg, filepath.Join(root, config.FileName)); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s.cfg = cfg
	s.root = root
	logger.Infof("workspace %q, config %+v", root, cfg)

	s.scheduler = scheduler.NewScheduler(queueSize)
	s.scheduler.Run()

	if root != "" {
		s.startWorkspace()
	}

	syncKind := protocol.TextDocumentSyncKindIncremental

	capabilities := s.handler.CreateServerCapabilities()
	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: &protocol.True,
		Change:    &syncKind,
		Save:      &protocol.SaveOptions{IncludeText: &protocol.True},
	}
	capabilities.CompletionProvider = &protocol.CompletionOptions{
		TriggerCharacters: []string{".", completion.AttributeListTrigger, ":"},
	}
	capabilities.RenameProvider = &protocol.RenameOptions{PrepareProvider: &protocol.True}
	capabilities.ExecuteCommandProvider = &protocol.ExecuteCommandOptions{
		Commands: []string{ShowGraphCommand},
	}

	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    s.name,
			Version: &s.version,
		},
	}, nil
}

// startWorkspace opens the symbol store and starts indexing and watching
// the workspace as configured. Failures are logged; the server keeps
// serving open documents without them.
func (s *Server) startWorkspace() {
	if s.cfg.StateDir != "" {
		st, err := store.Open(store.PathFor(s.cfg.StateDir, s.root))
		if err != nil {
			logger.Errorf("symbol store disabled: %v", err)
		} else {
			s.store = st
			s.scheduler.SchedulePeriodic(pruneInterval, scheduler.Task{
				Name:    "prune store",
				Execute: s.pruneStore,
			})
		}
	}

	if s.cfg.IndexWorkspace {
		ctx, cancel := context.WithCancel(context.Background())
		s.cancelScan = cancel
		s.scans.Add(1)
		go func() {
			defer s.scans.Done()
			s.indexWorkspace(ctx)
		}()
	}

	if s.cfg.Watch {
		w, err := scanner.NewWatcher(s.root, s.cfg.Matches, s.cfg.Debounce(), fileEvents{s})
		if err != nil {
			logger.Errorf("file watching disabled: %v", err)
		} else {
			s.watcher = w
		}
	}
}

// stopWorkspace stops scanning, watching and background tasks, then closes
// the graph and the store. It may be called more than once.
func (s *Server) stopWorkspace() {
	if s.cancelScan != nil {
		s.cancelScan()
	}
	s.scans.Wait()

	if s.watcher != nil {
		if err := s.watcher.Close(); err != nil {
			logger.Warningf("closing watcher: %v", err)
		}
	}
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
	if err := s.graph.Close(); err != nil {
		logger.Warningf("closing graph: %v", err)
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			logger.Warningf("closing store: %v", err)
		}
	}
}

func (s *Server) initialized(
	context *glsp.Context,
	params *protocol.InitializedParams,
) error {
	logger.Info("client initialized")
	return nil
}

func (s *Server) shutdown(context *glsp.Context) error {
	logger.Info("shutting down")
	s.stopWorkspace()
	s.manager.CloseAll()
	return nil
}

func (s *Server) setTrace(
	context *glsp.Context,
	params *protocol.SetTraceParams,
) error {
	logger.Debugf("trace set to %s", params.Value)
	protocol.SetTraceValue(params.Value)
	return nil
}
