package lexer

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/kartiknair/pasc/pkg/diag"
	"github.com/kartiknair/pasc/pkg/token"
)

// Error is a lexical error. The lexer skips the offending input and carries on.
type Error struct {
	Pos     token.Pos
	Message string
}

func (e *Error) Error() string       { return e.Message }
func (e *Error) Kind() diag.Kind     { return diag.Lexical }
func (e *Error) Position() token.Pos { return e.Pos }

// Lexer produces tokens on demand. Once the source is exhausted Next keeps
// returning EOF; Reset starts the sequence over.
type Lexer struct {
	source    string
	start     int
	current   int
	line      int
	lineBegin int

	startPos token.Pos
	hasLast  bool
	last     token.TokenType

	errors []*Error
}

func New(source string) *Lexer {
	l := &Lexer{source: source}
	l.Reset()
	return l
}

func (l *Lexer) Reset() {
	l.start = 0
	l.current = 0
	l.line = 1
	l.lineBegin = 0
	l.hasLast = false
	l.errors = nil
}

// Errors returns the lexical errors found so far.
func (l *Lexer) Errors() []*Error {
	return l.errors
}

func (l *Lexer) lexError(pos token.Pos, message string) {
	l.errors = append(l.errors, &Error{Pos: pos, Message: message})
}

func (l *Lexer) isAtEnd() bool {
	return l.current >= len(l.source)
}

func (l *Lexer) advance() byte {
	l.current++
	return l.source[l.current-1]
}

func (l *Lexer) match(c byte) bool {
	if l.isAtEnd() || l.source[l.current] != c {
		return false
	}
	l.current++
	return true
}

func (l *Lexer) peek(distance int) byte {
	if l.current+distance >= len(l.source) {
		return 0
	}
	return l.source[l.current+distance]
}

func (l *Lexer) newline(at int) {
	l.line++
	l.lineBegin = at + 1
}

// skipOver consumes source up to end, keeping the line counter in step.
func (l *Lexer) skipOver(end int) {
	for i := l.current; i < end; i++ {
		if l.source[i] == '\n' {
			l.newline(i)
		}
	}
	l.current = end
}

func (l *Lexer) makeToken(typ token.TokenType, lexeme string, value interface{}) token.Token {
	l.hasLast = true
	l.last = typ
	return token.Token{
		Type:   typ,
		Lexeme: lexeme,
		Value:  value,
		Pos:    l.startPos,
	}
}

func (l *Lexer) simple(typ token.TokenType) (token.Token, bool) {
	text := l.source[l.start:l.current]
	return l.makeToken(typ, text, text), true
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

func isAlpha(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func isAlphaNumeric(b byte) bool {
	return isAlpha(b) || isDigit(b) || b == '_'
}

// A `-` directly before a number is part of the literal unless the previous
// token could end an operand, in which case it is the binary operator.
func (l *Lexer) minusStartsLiteral() bool {
	if !l.hasLast {
		return true
	}
	switch l.last {
	case token.IDENTIFIER, token.INTEGER, token.REAL, token.STRING, token.CHAR_LITERAL,
		token.RIGHT_PAREN, token.RIGHT_BRACKET, token.TRUE, token.FALSE:
		return false
	}
	return true
}

func (l *Lexer) lexNumber() (token.Token, bool) {
	for isDigit(l.peek(0)) {
		l.advance()
	}

	// Look for a fractional part; `1..5` is a range, not a real.
	if l.peek(0) == '.' && isDigit(l.peek(1)) {
		l.advance()
		for isDigit(l.peek(0)) {
			l.advance()
		}

		text := l.source[l.start:l.current]
		value, err := strconv.ParseFloat(text, 64)
		if err != nil {
			l.lexError(l.startPos, fmt.Sprintf("invalid real literal '%s'", text))
			return token.Token{}, false
		}
		return l.makeToken(token.REAL, text, value), true
	}

	text := l.source[l.start:l.current]
	value, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		l.lexError(l.startPos, fmt.Sprintf("integer literal '%s' out of range", text))
		return token.Token{}, false
	}
	return l.makeToken(token.INTEGER, text, value), true
}

func (l *Lexer) lexIdent() (token.Token, bool) {
	for isAlphaNumeric(l.peek(0)) {
		l.advance()
	}

	text := l.source[l.start:l.current]
	if typ, ok := token.LookupKeyword(text); ok {
		lowered := strings.ToLower(text)
		return l.makeToken(typ, lowered, lowered), true
	}
	return l.makeToken(token.IDENTIFIER, text, text), true
}

// lexQuoted scans a '...' literal, where '' stands for a single quote.
// One decoded character makes a CHAR_LITERAL, anything else a STRING.
func (l *Lexer) lexQuoted() (token.Token, bool) {
	var value strings.Builder

	i := l.current
	closed := false
	for i < len(l.source) {
		c := l.source[i]
		if c == '\'' {
			if i+1 < len(l.source) && l.source[i+1] == '\'' {
				value.WriteByte('\'')
				i += 2
				continue
			}
			closed = true
			break
		}
		value.WriteByte(c)
		i++
	}

	if !closed {
		// Only the opening quote is dropped; what follows is lexed as code.
		l.lexError(l.startPos, "unterminated string literal")
		return token.Token{}, false
	}

	l.skipOver(i + 1)

	text := value.String()
	raw := l.source[l.start:l.current]
	if utf8.RuneCountInString(text) == 1 {
		return l.makeToken(token.CHAR_LITERAL, raw, text), true
	}
	return l.makeToken(token.STRING, raw, text), true
}

func (l *Lexer) skipComment(terminator string) {
	end := strings.Index(l.source[l.current:], terminator)
	if end < 0 {
		l.lexError(l.startPos, "unterminated comment")
		l.skipOver(len(l.source))
		return
	}
	l.skipOver(l.current + end + len(terminator))
}

// scanToken consumes one lexeme. The boolean is false when the lexeme
// produced no token (whitespace, comments, errors).
func (l *Lexer) scanToken() (token.Token, bool) {
	c := l.advance()

	switch c {
	case ' ', '\t', '\r':
		return token.Token{}, false
	case '\n':
		l.newline(l.current - 1)
		return token.Token{}, false
	case '{':
		l.skipComment("}")
		return token.Token{}, false
	case '(':
		if l.match('*') {
			l.skipComment("*)")
			return token.Token{}, false
		}
		return l.simple(token.LEFT_PAREN)
	case ')':
		return l.simple(token.RIGHT_PAREN)
	case '[':
		return l.simple(token.LEFT_BRACKET)
	case ']':
		return l.simple(token.RIGHT_BRACKET)
	case ',':
		return l.simple(token.COMMA)
	case ';':
		return l.simple(token.SEMICOLON)
	case ':':
		if l.match('=') {
			return l.simple(token.ASSIGN)
		}
		return l.simple(token.COLON)
	case '.':
		if l.match('.') {
			return l.simple(token.DOT_DOT)
		}
		return l.simple(token.DOT)
	case '+':
		return l.simple(token.PLUS)
	case '-':
		if isDigit(l.peek(0)) && l.minusStartsLiteral() {
			return l.lexNumber()
		}
		return l.simple(token.MINUS)
	case '*':
		return l.simple(token.STAR)
	case '/':
		return l.simple(token.SLASH)
	case '=':
		return l.simple(token.EQUAL)
	case '<':
		if l.match('=') {
			return l.simple(token.LESSER_EQUAL)
		} else if l.match('>') {
			return l.simple(token.NOT_EQUAL)
		}
		return l.simple(token.LESSER)
	case '>':
		if l.match('=') {
			return l.simple(token.GREATER_EQUAL)
		}
		return l.simple(token.GREATER)
	case '\'':
		return l.lexQuoted()
	}

	if isDigit(c) {
		return l.lexNumber()
	} else if isAlpha(c) {
		return l.lexIdent()
	}

	r, size := utf8.DecodeRuneInString(l.source[l.start:])
	l.current = l.start + size
	l.lexError(l.startPos, fmt.Sprintf("unexpected character '%c'", r))
	return token.Token{}, false
}

// Next returns the next token of the source.
func (l *Lexer) Next() token.Token {
	for !l.isAtEnd() {
		// we are at the beginning of the next lexeme.
		l.start = l.current
		l.startPos = token.Pos{Line: l.line, Column: l.start - l.lineBegin + 1}

		if t, ok := l.scanToken(); ok {
			return t
		}
	}

	l.start = l.current
	l.startPos = token.Pos{Line: l.line, Column: l.current - l.lineBegin + 1}
	return token.Token{Type: token.EOF, Lexeme: "", Value: "", Pos: l.startPos}
}

// Lex tokenizes the whole source. The returned slice always ends with EOF.
func Lex(source string) ([]token.Token, []*Error) {
	l := New(source)

	tokens := []token.Token{}
	for {
		t := l.Next()
		tokens = append(tokens, t)
		if t.Type == token.EOF {
			break
		}
	}

	return tokens, l.Errors()
}
