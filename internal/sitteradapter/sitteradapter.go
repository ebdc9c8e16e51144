package sitteradapter

import (
	"bytes"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	lsp "github.com/tliron/glsp/protocol_3_16"
)

// EditInput converts an incremental LSP change into the tree-sitter edit
// describing it, relative to document (the text before the change).
func EditInput(
	document []byte,
	change lsp.TextDocumentContentChangeEvent,
) sitter.EditInput {
	startByte, startPoint := positionToOffset(document, change.Range.Start)
	oldEndByte, oldEndPoint := positionToOffset(document, change.Range.End)

	newEndByte := startByte + len(change.Text)
	newEndPoint := computeNewEndPoint(startPoint, change.Text)

	return sitter.EditInput{
		StartIndex:  uint32(startByte),
		OldEndIndex: uint32(oldEndByte),
		NewEndIndex: uint32(newEndByte),
		StartPoint:  startPoint,
		OldEndPoint: oldEndPoint,
		NewEndPoint: newEndPoint,
	}
}

// ApplyChange returns a new buffer with change applied to document. The
// input buffer is left untouched.
func ApplyChange(
	document []byte,
	change lsp.TextDocumentContentChangeEvent,
) []byte {
	startOffset, _ := positionToOffset(document, change.Range.Start)
	endOffset, _ := positionToOffset(document, change.Range.End)
	if endOffset < startOffset {
		startOffset, endOffset = endOffset, startOffset
	}

	out := make([]byte, 0, len(document)-(endOffset-startOffset)+len(change.Text))
	out = append(out, document[:startOffset]...)
	out = append(out, change.Text...)
	out = append(out, document[endOffset:]...)
	return out
}

// PositionToPoint converts an LSP position (UTF-16 columns) into a
// tree-sitter point (byte columns). Positions past the end of a line or of
// the document are clamped.
func PositionToPoint(document []byte, pos lsp.Position) sitter.Point {
	_, point := positionToOffset(document, pos)
	return point
}

// PointToPosition converts a tree-sitter point into an LSP position.
func PointToPosition(document []byte, pt sitter.Point) lsp.Position {
	line, ok := lineAt(document, pt.Row)
	if !ok {
		return lsp.Position{Line: pt.Row, Character: pt.Column}
	}
	column := int(pt.Column)
	if column > len(line) {
		column = len(line)
	}

	var units uint32
	for _, r := range string(line[:column]) {
		units += utf16Units(r)
	}
	return lsp.Position{Line: pt.Row, Character: units}
}

// RangeToLSP converts a tree-sitter range into an LSP range.
func RangeToLSP(document []byte, r sitter.Range) lsp.Range {
	return lsp.Range{
		Start: PointToPosition(document, r.StartPoint),
		End:   PointToPosition(document, r.EndPoint),
	}
}

// positionToOffset computes the byte offset and tree-sitter point of an LSP
// position.
func positionToOffset(document []byte, pos lsp.Position) (offset int, point sitter.Point) {
	row := pos.Line
	lines := bytes.Count(document, []byte{'\n'})
	if int(row) > lines {
		row = uint32(lines)
	}

	for i := uint32(0); i < row; i++ {
		next := bytes.IndexByte(document[offset:], '\n')
		offset += next + 1
	}

	line := document[offset:]
	if end := bytes.IndexByte(line, '\n'); end >= 0 {
		line = line[:end]
	}

	var units uint32
	byteCount := 0
	for byteCount < len(line) {
		r, size := utf8.DecodeRune(line[byteCount:])
		if units+utf16Units(r) > pos.Character {
			break
		}
		units += utf16Units(r)
		byteCount += size
	}

	offset += byteCount
	point = sitter.Point{Row: row, Column: uint32(byteCount)}
	return
}

// computeNewEndPoint computes the point reached after inserting newText at
// startPoint.
func computeNewEndPoint(startPoint sitter.Point, newText string) sitter.Point {
	newlines := uint32(0)
	lastLine := newText
	for i := 0; i < len(newText); i++ {
		if newText[i] == '\n' {
			newlines++
			lastLine = newText[i+1:]
		}
	}
	if newlines == 0 {
		return sitter.Point{Row: startPoint.Row, Column: startPoint.Column + uint32(len(newText))}
	}
	return sitter.Point{Row: startPoint.Row + newlines, Column: uint32(len(lastLine))}
}

func lineAt(document []byte, row uint32) ([]byte, bool) {
	rest := document
	for i := uint32(0); i < row; i++ {
		next := bytes.IndexByte(rest, '\n')
		if next < 0 {
			return nil, false
		}
		rest = rest[next+1:]
	}
	if end := bytes.IndexByte(rest, '\n'); end >= 0 {
		rest = rest[:end]
	}
	return rest, true
}

// Each codepoint uses 1 or 2 UTF-16 code units.
func utf16Units(r rune) uint32 {
	if r > 0xFFFF {
		return 2
	}
	return 1
}
