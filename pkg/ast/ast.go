package ast

import (
	"fmt"

	"github.com/kartiknair/pasc/pkg/token"
)

type Type interface {
	isType()
	Equals(Type) bool
	String() string
}

type Primitive struct {
	Name string
}

// ArrayType is `array[Min..Max] of ElType`. Bounds are inclusive.
type ArrayType struct {
	Min    int64
	Max    int64
	ElType Type
}

func (*Primitive) isType() {}
func (*ArrayType) isType() {}

var (
	Integer = &Primitive{Name: "integer"}
	Real    = &Primitive{Name: "real"}
	Boolean = &Primitive{Name: "boolean"}
	Char    = &Primitive{Name: "char"}
	String  = &Primitive{Name: "string"}
)

func (p *Primitive) Equals(t Type) bool {
	if primType, ok := t.(*Primitive); ok {
		return p.Name == primType.Name
	}

	return false
}

func (p *Primitive) String() string {
	return p.Name
}

func (a *ArrayType) Equals(t Type) bool {
	if arrayType, ok := t.(*ArrayType); ok {
		return a.Min == arrayType.Min && a.Max == arrayType.Max && a.ElType.Equals(arrayType.ElType)
	}

	return false
}

func (a *ArrayType) String() string {
	return fmt.Sprintf("array[%d..%d] of %s", a.Min, a.Max, a.ElType)
}

// Len is the number of cells the array occupies.
func (a *ArrayType) Len() int64 {
	return a.Max - a.Min + 1
}

func IsNumeric(t Type) bool {
	return Integer.Equals(t) || Real.Equals(t)
}

func IsTextual(t Type) bool {
	return Char.Equals(t) || String.Equals(t)
}

func IsArray(t Type) bool {
	_, ok := t.(*ArrayType)
	return ok
}

// ArithmeticResult is the type of `l op r` for + - * /: real as soon as
// one side is real. Integer `/` stays integer.
func ArithmeticResult(l, r Type) Type {
	if Real.Equals(l) || Real.Equals(r) {
		return Real
	}
	return Integer
}

// BinaryResult computes the static type of a well-typed binary expression.
func BinaryResult(op token.TokenType, l, r Type) Type {
	switch {
	case op.IsRelationalOperator(), op == token.AND, op == token.OR:
		return Boolean
	case op == token.DIV, op == token.MOD:
		return Integer
	}
	return ArithmeticResult(l, r)
}

type Program struct {
	Name      token.Token
	Functions []*FunctionDeclaration
	Block     *Block
}

type Parameter struct {
	Identifiers []token.Token
	Type        Type
}

type FunctionDeclaration struct {
	Identifier token.Token
	Parameters []Parameter
	ReturnType Type
	Block      *Block
}

// ParamNames flattens grouped parameters (`a, b: integer`) in declaration order.
func (f *FunctionDeclaration) ParamNames() []token.Token {
	names := []token.Token{}
	for _, param := range f.Parameters {
		names = append(names, param.Identifiers...)
	}
	return names
}

func (f *FunctionDeclaration) ParamTypes() []Type {
	types := []Type{}
	for _, param := range f.Parameters {
		for range param.Identifiers {
			types = append(types, param.Type)
		}
	}
	return types
}

type Declaration struct {
	Identifiers []token.Token
	Type        Type
}

type Block struct {
	Declarations []Declaration
	Body         *CompoundStatement
}

type Statement interface {
	isStatement()
}

type CompoundStatement struct {
	Statements []Statement

	BeginToken token.Token
}

// AssignStatement targets either a *VariableExpression or an *ArrayAccess.
type AssignStatement struct {
	Target Expression
	Value  Expression

	AssignToken token.Token
}

type IfStatement struct {
	Condition Expression
	Then      Statement
	Else      Statement

	IfToken token.Token
}

type WhileStatement struct {
	Condition Expression
	Body      Statement

	WhileToken token.Token
}

type ForStatement struct {
	Counter token.Token
	Start   Expression
	End     Expression
	Downto  bool
	Body    Statement

	ForToken token.Token
}

// IOStatement is write, writeln, read or readln, told apart by Kind.
type IOStatement struct {
	Kind      token.Token
	Arguments []Expression
}

func (io *IOStatement) IsRead() bool {
	return io.Kind.Type == token.READ || io.Kind.Type == token.READLN
}

func (io *IOStatement) Newline() bool {
	return io.Kind.Type == token.WRITELN || io.Kind.Type == token.READLN
}

type EmptyStatement struct {
	Token token.Token
}

func (*CompoundStatement) isStatement() {}
func (*AssignStatement) isStatement()   {}
func (*IfStatement) isStatement()       {}
func (*WhileStatement) isStatement()    {}
func (*ForStatement) isStatement()      {}
func (*IOStatement) isStatement()       {}
func (*EmptyStatement) isStatement()    {}

type Expression interface {
	isExpression()
	ErrorToken() token.Token
}

type UnaryExpression struct {
	Operator token.Token
	Value    Expression
}

type BinaryExpression struct {
	Left     Expression
	Operator token.Token
	Right    Expression
}

type VariableExpression struct {
	Identifier token.Token
}

// ArrayAccess indexes an array or a string; which one depends on the
// declared type of Identifier.
type ArrayAccess struct {
	Identifier token.Token
	Index      Expression

	LeftBracketToken token.Token
}

// FunctionCall is a user function call or the `length` builtin, in which
// case Identifier is the LENGTH keyword token.
type FunctionCall struct {
	Identifier token.Token
	Arguments  []Expression

	LeftParenToken token.Token
}

func (c *FunctionCall) IsLength() bool {
	return c.Identifier.Type == token.LENGTH
}

// Literal is an integer, real, string or boolean constant.
type Literal struct {
	Token token.Token
}

func (l *Literal) Type() Type {
	switch l.Token.Type {
	case token.INTEGER:
		return Integer
	case token.REAL:
		return Real
	case token.TRUE, token.FALSE:
		return Boolean
	}
	return String
}

type CharLiteral struct {
	Token token.Token
}

func (c *CharLiteral) Value() string {
	return c.Token.Value.(string)
}

func (*UnaryExpression) isExpression()    {}
func (*BinaryExpression) isExpression()   {}
func (*VariableExpression) isExpression() {}
func (*ArrayAccess) isExpression()        {}
func (*FunctionCall) isExpression()       {}
func (*Literal) isExpression()            {}
func (*CharLiteral) isExpression()        {}

func (u *UnaryExpression) ErrorToken() token.Token {
	return u.Operator
}

func (b *BinaryExpression) ErrorToken() token.Token {
	return b.Operator
}

func (v *VariableExpression) ErrorToken() token.Token {
	return v.Identifier
}

func (a *ArrayAccess) ErrorToken() token.Token {
	return a.Identifier
}

func (c *FunctionCall) ErrorToken() token.Token {
	return c.Identifier
}

func (l *Literal) ErrorToken() token.Token {
	return l.Token
}

func (c *CharLiteral) ErrorToken() token.Token {
	return c.Token
}
