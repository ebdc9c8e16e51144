package server

import (
	"github.com/saskenuba/dbml-language-server/internal/sitteradapter"

	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

func (s *Server) textDocumentDefinition(
	context *glsp.Context,
	params *protocol.DefinitionParams,
) (any, error) {
	snap, point, err := s.position(params.TextDocument.URI, params.Position)
	if err != nil {
		return nil, err
	}
	rng, ok := s.resolver.Definition(snap.Source, snap.Root(), point)
	if !ok {
		return nil, nil
	}
	return protocol.Location{
		URI:   snap.URI,
		Range: sitteradapter.RangeToLSP(snap.Source, rng),
	}, nil
}

func (s *Server) textDocumentReferences(
	context *glsp.Context,
	params *protocol.ReferenceParams,
) ([]protocol.Location, error) {
	snap, point, err := s.position(params.TextDocument.URI, params.Position)
	if err != nil {
		return nil, err
	}
	locations, ok := s.resolver.References(snap.Source, snap.Root(), point, snap.URI)
	if !ok {
		return nil, nil
	}
	if params.Context.IncludeDeclaration {
		return locations, nil
	}

	decl, ok := s.resolver.Definition(snap.Source, snap.Root(), point)
	if !ok {
		return locations, nil
	}
	declRange := sitteradapter.RangeToLSP(snap.Source, decl)
	filtered := locations[:0]
	for _, l := range locations {
		if l.Range != declRange {
			filtered = append(filtered, l)
		}
	}
	return filtered, nil
}

func (s *Server) textDocumentRename(
	context *glsp.Context,
	params *protocol.RenameParams,
) (*protocol.WorkspaceEdit, error) {
	snap, point, err := s.position(params.TextDocument.URI, params.Position)
	if err != nil {
		return nil, err
	}
	edit, ok := s.resolver.Resolve(snap.Source, snap.Root(), point, params.NewName, snap.URI)
	if !ok {
		logger.Debugf("rename refused at %v in %s", point, snap.URI)
		return nil, nil
	}
	return edit, nil
}

func (s *Server) textDocumentPrepareRename(
	context *glsp.Context,
	params *protocol.PrepareRenameParams,
) (any, error) {
	snap, point, err := s.position(params.TextDocument.URI, params.Position)
	if err != nil {
		return nil, err
	}
	rng, placeholder, ok := s.resolver.Prepare(snap.Source, snap.Root(), point)
	if !ok {
		return nil, nil
	}
	return protocol.RangeWithPlaceholder{Range: rng, Placeholder: placeholder}, nil
}
