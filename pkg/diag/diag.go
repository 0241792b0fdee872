// Package diag holds what the compiler phases share about reporting errors:
// the error kinds, a common interface and source-context rendering.
package diag

import (
	"fmt"
	"strings"

	"github.com/kartiknair/pasc/pkg/token"
)

type Kind int

const (
	Lexical Kind = iota
	Syntax
	Semantic
	Generation
)

func (k Kind) String() string {
	switch k {
	case Lexical:
		return "lex"
	case Syntax:
		return "parse"
	case Semantic:
		return "analysis"
	case Generation:
		return "gen"
	}
	return "unknown"
}

// Diagnostic is implemented by the error type of every phase.
type Diagnostic interface {
	error
	Kind() Kind
	Position() token.Pos
}

// Format renders a diagnostic the way the driver prints it.
func Format(source string, d Diagnostic) string {
	pos := d.Position()
	header := fmt.Sprintf("%s-error: %d:%d: %s", d.Kind(), pos.Line, pos.Column, d.Error())
	context := SourceContext(source, pos)
	if context == "" {
		return header
	}
	return context + "\n" + header
}

// SourceContext shows the line at pos with its neighbours and a caret under
// the column. It returns "" when pos is outside the source.
func SourceContext(source string, pos token.Pos) string {
	source = strings.ReplaceAll(source, "\r\n", "\n")
	sourceLines := strings.Split(source, "\n")
	numLines := len(sourceLines)

	if pos.Line < 1 || pos.Line > numLines {
		return ""
	}

	line := sourceLines[pos.Line-1]
	column := pos.Column
	if column < 1 {
		column = 1
	}
	if column > len(line)+1 {
		column = len(line) + 1
	}

	offsetHighlight := make([]byte, column)
	for i := 0; i < column-1; i++ {
		if line[i] == '\t' {
			offsetHighlight[i] = '\t'
		} else {
			offsetHighlight[i] = ' '
		}
	}
	offsetHighlight[column-1] = '^'

	var b strings.Builder
	if pos.Line > 1 {
		fmt.Fprintf(&b, "\n%4d | %s", pos.Line-1, sourceLines[pos.Line-2])
	}
	fmt.Fprintf(&b, "\n%4d | %s", pos.Line, line)
	fmt.Fprintf(&b, "\n     | %s", string(offsetHighlight))
	if pos.Line < numLines && strings.TrimSpace(sourceLines[pos.Line]) != "" {
		fmt.Fprintf(&b, "\n%4d | %s", pos.Line+1, sourceLines[pos.Line])
	}
	return b.String()
}
