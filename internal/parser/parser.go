package parser

import (
	"context"
	"fmt"
	"sync"

	"github.com/saskenuba/dbml-language-server/bindings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/tliron/commonlog"
)

var logger = commonlog.GetLogger("dbml.parser")

// Service wraps the one tree-sitter parser shared by the whole server.
// The parser is not safe for concurrent use, so parses are serialized behind
// mu and callers simply wait for their turn.
type Service struct {
	mu     sync.Mutex
	parser *sitter.Parser
	lang   *sitter.Language
}

// NewService creates the parse service for the DBML grammar. It is meant to
// be created once at startup and handed to every component that parses or
// compiles queries.
func NewService() *Service {
	lang := sitter.NewLanguage(bindings.Language())
	p := sitter.NewParser()
	p.SetLanguage(lang)
	return &Service{
		parser: p,
		lang:   lang,
	}
}

// Language returns the DBML language the service parses with.
func (s *Service) Language() *sitter.Language {
	return s.lang
}

// Parse turns source into a syntax tree. A tree is returned for any input;
// invalid regions show up as ERROR or MISSING nodes.
//
// previous may be nil. When given, it must already carry the edits that
// turned its source into this one (see sitteradapter.EditInput); it is only
// a hint and the result does not depend on it.
func (s *Service) Parse(source []byte, previous *sitter.Tree) *sitter.Tree {
	s.mu.Lock()
	defer s.mu.Unlock()

	tree, err := s.parser.ParseCtx(context.Background(), previous, source)
	if err == nil && tree != nil {
		return tree
	}

	logger.Warningf("incremental parse failed, reparsing from scratch: %v", err)
	s.parser.Reset()
	tree, err = s.parser.ParseCtx(context.Background(), nil, source)
	if err != nil {
		logger.Errorf("parse failed: %v", err)
	}
	return tree
}

// Query compiles a structural pattern against the DBML language.
func (s *Service) Query(pattern string) (*sitter.Query, error) {
	q, err := sitter.NewQuery([]byte(pattern), s.lang)
	if err != nil {
		return nil, fmt.Errorf("failed to compile query %q: %w", pattern, err)
	}
	return q, nil
}

// Close frees the underlying parser.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.parser != nil {
		s.parser.Close()
		s.parser = nil
	}
	return nil
}
