package server

import (
	"github.com/saskenuba/dbml-language-server/internal/completion"
	"github.com/saskenuba/dbml-language-server/internal/manager"
	"github.com/saskenuba/dbml-language-server/internal/sitteradapter"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

func (s *Server) textDocumentCompletion(
	context *glsp.Context,
	params *protocol.CompletionParams,
) (any, error) {
	snap, point, err := s.position(params.TextDocument.URI, params.Position)
	if err != nil {
		return nil, err
	}

	trigger := ""
	if params.Context != nil && params.Context.TriggerCharacter != nil {
		trigger = *params.Context.TriggerCharacter
	}
	candidates := completion.Complete(snap.Source, snap.Root(), snap.Index, point, trigger)
	return completionItems(candidates), nil
}

func completionItems(candidates []completion.Candidate) []protocol.CompletionItem {
	items := make([]protocol.CompletionItem, 0, len(candidates))
	for _, c := range candidates {
		kind := completionItemKind(c.Kind)
		item := protocol.CompletionItem{Label: c.Label, Kind: &kind}
		if c.Detail != "" {
			detail := c.Detail
			item.Detail = &detail
		}
		items = append(items, item)
	}
	return items
}

func completionItemKind(kind completion.CandidateKind) protocol.CompletionItemKind {
	switch kind {
	case completion.KindTable:
		return protocol.CompletionItemKindClass
	case completion.KindField:
		return protocol.CompletionItemKindField
	case completion.KindEnum:
		return protocol.CompletionItemKindEnum
	case completion.KindType:
		return protocol.CompletionItemKindTypeParameter
	}
	return protocol.CompletionItemKindKeyword
}

// position returns the snapshot of an open document and pos as a tree
// point.
func (s *Server) position(uri string, pos protocol.Position) (manager.Snapshot, sitter.Point, error) {
	doc, err := s.manager.Get(uri)
	if err != nil {
		return manager.Snapshot{}, sitter.Point{}, err
	}
	snap := doc.Snapshot()
	return snap, sitteradapter.PositionToPoint(snap.Source, pos), nil
}
