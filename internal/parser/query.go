package parser

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// Capture is one captured node of a query match.
type Capture struct {
	Name string
	Node *sitter.Node
}

// Captures runs q over root and returns every capture of every match whose
// predicates hold, in document order.
func Captures(q *sitter.Query, root *sitter.Node, source []byte) []Capture {
	if q == nil || root == nil {
		return nil
	}

	qc := sitter.NewQueryCursor()
	defer qc.Close()
	qc.Exec(q, root)

	var captures []Capture
	for {
		m, ok := qc.NextMatch()
		if !ok {
			break
		}
		m = qc.FilterPredicates(m, source)

		for _, c := range m.Captures {
			if c.Node == nil {
				continue
			}
			captures = append(captures, Capture{
				Name: q.CaptureNameForId(c.Index),
				Node: c.Node,
			})
		}
	}
	return captures
}

var queryStringEscaper = strings.NewReplacer(
	`\`, `\\`,
	`"`, `\"`,
	"\n", `\n`,
	"\r", `\r`,
	"\t", `\t`,
	"\x00", `\0`,
)

// QuoteString renders s as a query string literal, so that arbitrary text
// can be substituted into a predicate such as (#eq? @name "...") without
// changing the shape of the pattern.
func QuoteString(s string) string {
	return `"` + queryStringEscaper.Replace(s) + `"`
}
