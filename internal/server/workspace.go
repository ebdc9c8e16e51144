package server

import (
	"context"
	"errors"
	"io/fs"
	"os"

	"github.com/saskenuba/dbml-language-server/internal/graph"
	"github.com/saskenuba/dbml-language-server/internal/scanner"
	"github.com/saskenuba/dbml-language-server/internal/store"
)

// indexWorkspace indexes every matching file below the root that is not
// open in the editor.
func (s *Server) indexWorkspace(ctx context.Context) {
	logger.Infof("indexing %s", s.root)
	err := scanner.Scan(ctx, s.root, s.cfg.Matches, func(path string, document []byte) error {
		uri := pathToURI(path)
		if s.manager.IsOpen(uri) {
			return nil
		}
		s.indexFile(uri, document)
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Errorf("indexing %s: %v", s.root, err)
		return
	}
	logger.Infof("indexed %s", s.root)
}

// indexFile publishes the tables of a document to the graph and stores its
// symbols. Documents whose content hash is unchanged are not rewritten.
func (s *Server) indexFile(uri string, source []byte) {
	tree := s.svc.Parse(source, nil)
	if tree == nil {
		return
	}
	root := tree.RootNode()
	defs := s.builder.Definitions(source, root)

	nodes, links := graph.FromSchema(defs, s.builder.Relationships(source, root))
	if err := s.graph.SetDocument(uri, nodes, links); err != nil {
		logger.Warningf("graph update for %s: %v", uri, err)
	}

	if s.store == nil {
		return
	}
	hash := store.Hash(source)
	if old, err := s.store.DocumentHash(uri); err == nil && old == hash {
		logger.Debugf("%s unchanged", uri)
		return
	}
	if err := s.store.UpsertDocument(uri, hash, store.SymbolsFromDefinitions(uri, source, defs)); err != nil {
		logger.Errorf("storing symbols of %s: %v", uri, err)
	}
}

// forgetFile drops a document from the graph and the store.
func (s *Server) forgetFile(uri string) {
	if err := s.graph.RemoveDocument(uri); err != nil {
		logger.Warningf("graph update for %s: %v", uri, err)
	}
	if s.store == nil {
		return
	}
	if err := s.store.DeleteDocument(uri); err != nil && !errors.Is(err, store.ErrNotFound) {
		logger.Errorf("deleting symbols of %s: %v", uri, err)
	}
}

// pruneStore removes stored documents whose file is gone.
func (s *Server) pruneStore() error {
	uris, err := s.store.Documents()
	if err != nil {
		return err
	}
	for _, uri := range uris {
		if s.manager.IsOpen(uri) {
			continue
		}
		path, err := uriToPath(uri)
		if err != nil {
			continue
		}
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			logger.Infof("pruning %s", uri)
			s.forgetFile(uri)
		}
	}
	return nil
}

// fileEvents feeds watcher events to the index. Documents open in the
// editor are owned by their session and skipped.
type fileEvents struct {
	s *Server
}

func (e fileEvents) Changed(path string) {
	uri := pathToURI(path)
	if e.s.manager.IsOpen(uri) {
		return
	}
	document, err := os.ReadFile(path)
	if err != nil {
		logger.Warningf("reading %s: %v", path, err)
		return
	}
	e.s.indexFile(uri, document)
}

func (e fileEvents) Removed(path string) {
	uri := pathToURI(path)
	if e.s.manager.IsOpen(uri) {
		return
	}
	e.s.forgetFile(uri)
}
