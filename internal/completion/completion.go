// Package completion computes completion candidates for a cursor point.
package completion

import (
	"github.com/saskenuba/dbml-language-server/internal/index"
	"github.com/saskenuba/dbml-language-server/internal/locator"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/tliron/commonlog"
)

var logger = commonlog.GetLogger("dbml.completion")

// AttributeListTrigger opens a field attribute list.
const AttributeListTrigger = "["

// FieldAttributes are the keywords offered inside a field attribute list.
var FieldAttributes = []string{"not null", "null", "pk", "unique", "increment", "ref:"}

// PrimitiveTypes are the built-in column types offered for a field.
var PrimitiveTypes = []string{"int", "float", "text", "varchar"}

// CandidateKind tells what a candidate names.
type CandidateKind int

const (
	KindTable CandidateKind = iota + 1
	KindField
	KindEnum
	KindType
	KindKeyword
)

// Candidate is one completion suggestion.
type Candidate struct {
	Label  string
	Kind   CandidateKind
	Detail string
}

// Complete returns the candidates for point. trigger is the character that
// triggered the request, or "". The result is unordered and unfiltered.
func Complete(
	source []byte,
	root *sitter.Node,
	idx *index.IdentifierIndex,
	point sitter.Point,
	trigger string,
) []Candidate {
	loc := locator.Locate(source, root, point)
	logger.Debugf("completing at %v (trigger %q): %s", point, trigger, loc)
	return ForLocation(loc, idx, trigger)
}

// ForLocation maps an already computed location to candidates. The first
// matching rule wins, except that the attribute list trigger always yields
// the attribute keywords.
func ForLocation(loc locator.Location, idx *index.IdentifierIndex, trigger string) []Candidate {
	// The attribute list trigger takes precedence over every location rule.
	if trigger == AttributeListTrigger {
		return keywords(FieldAttributes)
	}

	switch loc.Kind {
	case locator.RelationshipTableRef:
		var out []Candidate
		for _, name := range idx.TableNames() {
			out = append(out, Candidate{Label: name, Kind: KindTable})
		}
		return out

	case locator.RelationshipFieldRef:
		fields, _ := idx.FieldsOf(loc.Table)
		var out []Candidate
		for _, f := range fields {
			out = append(out, Candidate{Label: f.Name, Kind: KindField, Detail: f.Type})
		}
		return out

	case locator.Field:
		var out []Candidate
		for _, name := range idx.EnumNames() {
			out = append(out, Candidate{Label: name, Kind: KindEnum, Detail: "enum"})
		}
		for _, name := range PrimitiveTypes {
			out = append(out, Candidate{Label: name, Kind: KindType})
		}
		return out

	case locator.FieldAttributeList:
		return keywords(FieldAttributes)
	}
	return nil
}

func keywords(words []string) []Candidate {
	out := make([]Candidate, 0, len(words))
	for _, w := range words {
		out = append(out, Candidate{Label: w, Kind: KindKeyword})
	}
	return out
}
