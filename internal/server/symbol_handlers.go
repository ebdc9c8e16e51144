package server

import (
	"github.com/saskenuba/dbml-language-server/internal/index"
	"github.com/saskenuba/dbml-language-server/internal/sitteradapter"
	"github.com/saskenuba/dbml-language-server/internal/store"

	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

func (s *Server) textDocumentDocumentSymbol(
	context *glsp.Context,
	params *protocol.DocumentSymbolParams,
) (any, error) {
	doc, err := s.manager.Get(params.TextDocument.URI)
	if err != nil {
		return nil, err
	}
	snap := doc.Snapshot()
	return documentSymbols(snap.Source, s.builder.Definitions(snap.Source, snap.Root())), nil
}

// documentSymbols nests fields under their table and values under their
// enum. An alias becomes the detail of its table.
func documentSymbols(source []byte, defs []index.Definition) []protocol.DocumentSymbol {
	symbols := []protocol.DocumentSymbol{}
	// Latest top-level symbol of each name; children attach to it.
	parents := make(map[index.DefinitionKind]map[string]int)
	parent := func(kind index.DefinitionKind, name string) (int, bool) {
		i, ok := parents[kind][name]
		return i, ok
	}

	for _, def := range defs {
		sym := protocol.DocumentSymbol{
			Name:           def.Name,
			Kind:           store.SymbolKind(def.Kind),
			Range:          sitteradapter.RangeToLSP(source, def.Extent),
			SelectionRange: sitteradapter.RangeToLSP(source, def.Range),
		}

		switch def.Kind {
		case index.DefinitionTable, index.DefinitionEnum:
			if parents[def.Kind] == nil {
				parents[def.Kind] = make(map[string]int)
			}
			parents[def.Kind][def.Name] = len(symbols)
			symbols = append(symbols, sym)

		case index.DefinitionAlias:
			if i, ok := parent(index.DefinitionTable, def.Detail); ok {
				detail := "as " + def.Name
				symbols[i].Detail = &detail
			}

		case index.DefinitionField:
			if i, ok := parent(index.DefinitionTable, def.Container); ok {
				if def.Detail != "" {
					detail := def.Detail
					sym.Detail = &detail
				}
				symbols[i].Children = append(symbols[i].Children, sym)
			}

		case index.DefinitionEnumValue:
			if i, ok := parent(index.DefinitionEnum, def.Container); ok {
				symbols[i].Children = append(symbols[i].Children, sym)
			}
		}
	}
	return symbols
}

func (s *Server) workspaceSymbol(
	context *glsp.Context,
	params *protocol.WorkspaceSymbolParams,
) ([]protocol.SymbolInformation, error) {
	if s.store == nil {
		return nil, nil
	}
	found, err := s.store.Search(params.Query, s.cfg.MaxSymbols)
	if err != nil {
		logger.Errorf("symbol search %q: %v", params.Query, err)
		return nil, nil
	}
	return symbolInformation(found), nil
}

func symbolInformation(symbols []store.Symbol) []protocol.SymbolInformation {
	infos := make([]protocol.SymbolInformation, 0, len(symbols))
	for _, sym := range symbols {
		info := protocol.SymbolInformation{
			Name:     sym.Name,
			Kind:     store.SymbolKind(sym.Kind),
			Location: protocol.Location{URI: sym.URI, Range: sym.Range},
		}
		if sym.Container != "" {
			container := sym.Container
			info.ContainerName = &container
		}
		infos = append(infos, info)
	}
	return infos
}
