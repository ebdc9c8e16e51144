package store

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/saskenuba/dbml-language-server/internal/index"
	"github.com/saskenuba/dbml-language-server/internal/sitteradapter"

	"github.com/hbollon/go-edlib"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

// SymbolsFromDefinitions converts the definitions of a document into store
// rows.
func SymbolsFromDefinitions(uri string, source []byte, defs []index.Definition) []Symbol {
	symbols := make([]Symbol, 0, len(defs))
	for _, def := range defs {
		symbols = append(symbols, Symbol{
			URI:       uri,
			Name:      def.Name,
			Kind:      def.Kind,
			Container: def.Container,
			Detail:    def.Detail,
			Range:     sitteradapter.RangeToLSP(source, def.Range),
		})
	}
	return symbols
}

// SymbolKind maps a definition kind to its LSP symbol kind.
func SymbolKind(kind index.DefinitionKind) protocol.SymbolKind {
	switch kind {
	case index.DefinitionTable:
		return protocol.SymbolKindClass
	case index.DefinitionAlias:
		return protocol.SymbolKindVariable
	case index.DefinitionField:
		return protocol.SymbolKindField
	case index.DefinitionEnum:
		return protocol.SymbolKindEnum
	case index.DefinitionEnumValue:
		return protocol.SymbolKindEnumMember
	}
	return protocol.SymbolKindNull
}

type scored struct {
	Symbol
	score float32
}

// Search returns at most limit symbols whose name contains the characters
// of query in order, case-insensitively, best Jaro-Winkler matches first.
// An empty query matches every symbol.
func (s *Store) Search(query string, limit int) ([]Symbol, error) {
	symbols, err := s.all()
	if err != nil {
		return nil, err
	}

	query = strings.ToLower(query)
	var matches []scored
	for _, sym := range symbols {
		name := strings.ToLower(sym.Name)
		if !isSubsequence(query, name) {
			continue
		}
		score := float32(1)
		if query != "" {
			score, err = edlib.StringsSimilarity(query, name, edlib.JaroWinkler)
			if err != nil {
				return nil, fmt.Errorf("failed to score %q: %w", sym.Name, err)
			}
		}
		matches = append(matches, scored{Symbol: sym, score: score})
	}

	slices.SortStableFunc(matches, func(a, b scored) int {
		if c := cmp.Compare(b.score, a.score); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}

	out := make([]Symbol, 0, len(matches))
	for _, m := range matches {
		out = append(out, m.Symbol)
	}
	return out, nil
}

func (s *Store) all() ([]Symbol, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrDatabaseClosed
	}

	rows, err := s.db.Query(`
        SELECT uri, name, kind, container, detail, start_row, start_col, end_row, end_col
        FROM symbols ORDER BY uri, start_row, start_col
    `)
	if err != nil {
		return nil, fmt.Errorf("failed to query symbols: %w", err)
	}
	defer rows.Close()

	var symbols []Symbol
	for rows.Next() {
		var sym Symbol
		var kind string
		if err := rows.Scan(&sym.URI, &sym.Name, &kind, &sym.Container, &sym.Detail,
			&sym.Range.Start.Line, &sym.Range.Start.Character,
			&sym.Range.End.Line, &sym.Range.End.Character); err != nil {
			return nil, fmt.Errorf("failed to scan symbol: %w", err)
		}
		sym.Kind = index.DefinitionKind(kind)
		symbols = append(symbols, sym)
	}
	return symbols, rows.Err()
}

func isSubsequence(needle, haystack string) bool {
	if needle == "" {
		return true
	}
	rest := []rune(needle)
	for _, r := range haystack {
		if r == rest[0] {
			rest = rest[1:]
			if len(rest) == 0 {
				return true
			}
		}
	}
	return false
}
