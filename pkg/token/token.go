package token

import (
	"fmt"
	"strings"
)

type TokenType int

const (
	IDENTIFIER TokenType = iota
	INTEGER
	REAL
	STRING
	CHAR_LITERAL
	EOF

	KEYWORD_BEGIN
	PROGRAM
	FUNCTION
	PROCEDURE
	VAR
	BEGIN
	END
	IF
	THEN
	ELSE
	WHILE
	DO
	FOR
	TO
	DOWNTO
	INTEGER_TYPE
	REAL_TYPE
	STRING_TYPE
	BOOLEAN_TYPE
	CHAR_TYPE
	ARRAY
	OF
	WRITE
	WRITELN
	READ
	READLN
	OR
	AND
	NOT
	DIV
	MOD
	TRUE
	FALSE
	LENGTH
	KEYWORD_END

	LEFT_PAREN
	RIGHT_PAREN
	LEFT_BRACKET
	RIGHT_BRACKET
	COMMA
	SEMICOLON
	COLON
	DOT
	DOT_DOT
	ASSIGN

	PLUS
	MINUS
	STAR
	SLASH

	EQUAL
	NOT_EQUAL
	LESSER
	GREATER
	LESSER_EQUAL
	GREATER_EQUAL
)

// Keywords is indexed by `TokenType - KEYWORD_BEGIN - 1`.
var Keywords = [...]string{
	"program",
	"function",
	"procedure",
	"var",
	"begin",
	"end",
	"if",
	"then",
	"else",
	"while",
	"do",
	"for",
	"to",
	"downto",
	"integer",
	"real",
	"string",
	"boolean",
	"char",
	"array",
	"of",
	"write",
	"writeln",
	"read",
	"readln",
	"or",
	"and",
	"not",
	"div",
	"mod",
	"true",
	"false",
	"length",
}

var names = map[TokenType]string{
	IDENTIFIER:    "IDENTIFIER",
	INTEGER:       "INTEGER",
	REAL:          "REAL",
	STRING:        "STRING",
	CHAR_LITERAL:  "CHAR_LITERAL",
	EOF:           "EOF",
	LEFT_PAREN:    "LEFT_PAREN",
	RIGHT_PAREN:   "RIGHT_PAREN",
	LEFT_BRACKET:  "LEFT_BRACKET",
	RIGHT_BRACKET: "RIGHT_BRACKET",
	COMMA:         "COMMA",
	SEMICOLON:     "SEMICOLON",
	COLON:         "COLON",
	DOT:           "DOT",
	DOT_DOT:       "DOT_DOT",
	ASSIGN:        "ASSIGN",
	PLUS:          "PLUS",
	MINUS:         "MINUS",
	STAR:          "STAR",
	SLASH:         "SLASH",
	EQUAL:         "EQUAL",
	NOT_EQUAL:     "NOT_EQUAL",
	LESSER:        "LESSER",
	GREATER:       "GREATER",
	LESSER_EQUAL:  "LESSER_EQUAL",
	GREATER_EQUAL: "GREATER_EQUAL",
}

func (t TokenType) String() string {
	if t.IsKeyword() {
		return strings.ToUpper(Keywords[t-KEYWORD_BEGIN-1])
	}
	if name, ok := names[t]; ok {
		return name
	}
	return fmt.Sprintf("TokenType(%d)", int(t))
}

func (t TokenType) IsKeyword() bool {
	return t > KEYWORD_BEGIN && t < KEYWORD_END
}

func (t TokenType) IsRelationalOperator() bool {
	return t >= EQUAL && t <= GREATER_EQUAL
}

// IsTypeName reports whether the token names a scalar type.
func (t TokenType) IsTypeName() bool {
	return t >= INTEGER_TYPE && t <= CHAR_TYPE
}

// LookupKeyword matches text case-insensitively against the keyword table.
func LookupKeyword(text string) (TokenType, bool) {
	lowered := strings.ToLower(text)
	for i, kw := range Keywords {
		if kw == lowered {
			return TokenType(int(KEYWORD_BEGIN) + i + 1), true
		}
	}
	return IDENTIFIER, false
}

type Token struct {
	Type   TokenType
	Lexeme string
	// Value holds the decoded literal: int64 for INTEGER, float64 for REAL,
	// the unquoted text for STRING and CHAR_LITERAL, the lexeme otherwise.
	Value interface{}
	Pos   Pos
}

func (t Token) String() string {
	return fmt.Sprintf("%s('%s')", t.Type, t.Lexeme)
}

type Pos struct {
	Line   int
	Column int
}

func (p Pos) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}
