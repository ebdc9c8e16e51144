package server

import (
	"reflect"

	"github.com/saskenuba/dbml-language-server/internal/parser"
	"github.com/saskenuba/dbml-language-server/internal/sitteradapter"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

const diagnosticSource = "dbml"

// syntaxDiagnostics reports one error per ERROR or MISSING node.
func syntaxDiagnostics(source []byte, errs []parser.SyntaxError) []protocol.Diagnostic {
	diagnostics := make([]protocol.Diagnostic, 0, len(errs))
	severity := protocol.DiagnosticSeverityError
	src := diagnosticSource
	for _, e := range errs {
		message := "syntax error"
		if e.Missing {
			message = "missing " + e.Kind
		}
		diagnostics = append(diagnostics, protocol.Diagnostic{
			Range:    diagnosticRange(source, e.Range),
			Severity: &severity,
			Source:   &src,
			Message:  message,
		})
	}
	return diagnostics
}

// diagnosticRange widens empty ranges, as left by missing nodes, to one
// character so editors show them.
func diagnosticRange(source []byte, r sitter.Range) protocol.Range {
	rng := sitteradapter.RangeToLSP(source, r)
	if rng.Start == rng.End {
		rng.End.Character++
	}
	return rng
}

// publishDiagnostics sends diagnostics for uri unless they equal the last
// ones sent.
func (s *Server) publishDiagnostics(
	context *glsp.Context,
	uri string,
	diagnostics []protocol.Diagnostic,
) {
	s.diagnosticsMu.Lock()
	last, seen := s.lastDiagnostics[uri]
	if seen && reflect.DeepEqual(last, diagnostics) {
		s.diagnosticsMu.Unlock()
		return
	}
	s.lastDiagnostics[uri] = diagnostics
	s.diagnosticsMu.Unlock()

	context.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: diagnostics,
	})
}

// clearDiagnostics empties the diagnostics of a closed document.
func (s *Server) clearDiagnostics(context *glsp.Context, uri string) {
	s.diagnosticsMu.Lock()
	last := s.lastDiagnostics[uri]
	delete(s.lastDiagnostics, uri)
	s.diagnosticsMu.Unlock()

	if len(last) > 0 {
		context.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
			URI:         uri,
			Diagnostics: []protocol.Diagnostic{},
		})
	}
}
