package parser

import (
	"strings"
	"testing"

	"github.com/alecthomas/repr"

	"github.com/kartiknair/pasc/pkg/ast"
	"github.com/kartiknair/pasc/pkg/lexer"
	"github.com/kartiknair/pasc/pkg/token"
)

func parse(t *testing.T, source string) (*ast.Program, []*Error) {
	t.Helper()
	tokens, lexErrors := lexer.Lex(source)
	if len(lexErrors) > 0 {
		t.Fatalf("unexpected lexical errors: %v", lexErrors)
	}
	return Parse(tokens)
}

// mustParse fails the test on any syntax error.
func mustParse(t *testing.T, source string) *ast.Program {
	t.Helper()
	program, errs := parse(t, source)
	if len(errs) > 0 {
		t.Errorf("Parser has %d errors:", len(errs))
		for i, err := range errs {
			t.Errorf("   Error %d: %s at %s", i+1, err, err.Position())
		}
		t.FailNow()
	}
	if program == nil {
		t.Fatalf("Parse() returned nil program")
	}
	return program
}

func bodyOf(p *ast.Program) []ast.Statement {
	return p.Block.Body.Statements
}

func assignedValue(t *testing.T, stmt ast.Statement) ast.Expression {
	t.Helper()
	assign, ok := stmt.(*ast.AssignStatement)
	if !ok {
		t.Fatalf("expected *ast.AssignStatement, got %T", stmt)
	}
	return assign.Value
}

func TestProgramStructure(t *testing.T) {
	program := mustParse(t, `
program Example;
function add(a, b: integer; scale: real): real;
var tmp: real;
begin
  tmp := a + b;
  add := tmp * scale
end;
var
  x, y: integer;
  names: array[1..10] of string;
begin
  x := 1;
  y := add(x, 2, 0.5)
end.
`)

	if program.Name.Lexeme != "Example" {
		t.Errorf("expected program name Example, got %q", program.Name.Lexeme)
	}
	if len(program.Functions) != 1 {
		t.Fatalf("expected 1 function, got %d", len(program.Functions))
	}

	fn := program.Functions[0]
	if fn.Identifier.Lexeme != "add" {
		t.Errorf("expected function add, got %q", fn.Identifier.Lexeme)
	}
	if len(fn.Parameters) != 2 || len(fn.ParamNames()) != 3 {
		t.Errorf("expected 2 parameter groups and 3 names, got %s", repr.String(fn.Parameters))
	}
	types := fn.ParamTypes()
	if !types[0].Equals(ast.Integer) || !types[1].Equals(ast.Integer) || !types[2].Equals(ast.Real) {
		t.Errorf("unexpected parameter types %s", repr.String(types))
	}
	if !fn.ReturnType.Equals(ast.Real) {
		t.Errorf("expected return type real, got %s", fn.ReturnType)
	}
	if len(fn.Block.Declarations) != 1 || len(fn.Block.Body.Statements) != 2 {
		t.Errorf("unexpected function block %s", repr.String(fn.Block))
	}

	decls := program.Block.Declarations
	if len(decls) != 2 {
		t.Fatalf("expected 2 declarations, got %d", len(decls))
	}
	if len(decls[0].Identifiers) != 2 {
		t.Errorf("expected `x, y` in one declaration, got %d names", len(decls[0].Identifiers))
	}
	expectedArray := &ast.ArrayType{Min: 1, Max: 10, ElType: ast.String}
	if !decls[1].Type.Equals(expectedArray) {
		t.Errorf("expected %s, got %s", expectedArray, decls[1].Type)
	}

	call, ok := assignedValue(t, bodyOf(program)[1]).(*ast.FunctionCall)
	if !ok {
		t.Fatalf("expected function call on the right-hand side")
	}
	if call.IsLength() || len(call.Arguments) != 3 {
		t.Errorf("unexpected call %s", repr.String(call))
	}
}

func TestNegativeArrayBounds(t *testing.T) {
	program := mustParse(t, "program P; var a: array[-5..5] of integer; begin end.")

	arr := program.Block.Declarations[0].Type.(*ast.ArrayType)
	if arr.Min != -5 || arr.Max != 5 || arr.Len() != 11 {
		t.Errorf("unexpected bounds %s (len %d)", arr, arr.Len())
	}
}

func TestOperatorPrecedence(t *testing.T) {
	tests := []struct {
		source string
		// operator at the root, then at the root's right and left children
		root  token.TokenType
		left  token.TokenType
		right token.TokenType
	}{
		{"1 + 2 * 3", token.PLUS, token.INTEGER, token.STAR},
		{"1 * 2 + 3", token.PLUS, token.STAR, token.INTEGER},
		{"1 - 2 - 3", token.MINUS, token.MINUS, token.INTEGER},
		{"a or b and c", token.OR, token.IDENTIFIER, token.AND},
		{"a < b and c", token.AND, token.LESSER, token.IDENTIFIER},
		{"a + 1 = b div 2", token.EQUAL, token.PLUS, token.DIV},
		{"not a and b", token.AND, token.NOT, token.IDENTIFIER},
		{"x - 1 mod 2", token.MINUS, token.IDENTIFIER, token.MOD},
	}

	rootType := func(e ast.Expression) token.TokenType {
		switch e := e.(type) {
		case *ast.BinaryExpression:
			return e.Operator.Type
		case *ast.UnaryExpression:
			return e.Operator.Type
		}
		return e.ErrorToken().Type
	}

	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			program := mustParse(t, "program P; begin r := "+tt.source+" end.")
			value := assignedValue(t, bodyOf(program)[0])

			binary, ok := value.(*ast.BinaryExpression)
			if !ok {
				t.Fatalf("expected binary expression, got %s", repr.String(value))
			}
			if binary.Operator.Type != tt.root {
				t.Errorf("root: got %s, want %s", binary.Operator.Type, tt.root)
			}
			if got := rootType(binary.Left); got != tt.left {
				t.Errorf("left: got %s, want %s", got, tt.left)
			}
			if got := rootType(binary.Right); got != tt.right {
				t.Errorf("right: got %s, want %s", got, tt.right)
			}
		})
	}
}

func TestRelationalOperatorsDoNotChain(t *testing.T) {
	program, errs := parse(t, "program P; begin b := 1 < 2 < 3 end.")

	if len(errs) != 1 {
		t.Fatalf("expected 1 error, got %d: %v", len(errs), errs)
	}
	if !strings.Contains(errs[0].Error(), "chained") {
		t.Errorf("unexpected error %q", errs[0])
	}
	if program == nil {
		t.Errorf("a bad statement must not discard the program")
	}
}

func TestUnaryMinusAndLiterals(t *testing.T) {
	program := mustParse(t, "program P; begin x := -1; y := - x; z := 2 - 3; c := 'a'; s := 'abc' end.")
	stmts := bodyOf(program)

	if lit, ok := assignedValue(t, stmts[0]).(*ast.Literal); !ok || lit.Token.Value.(int64) != -1 {
		t.Errorf("expected literal -1, got %s", repr.String(assignedValue(t, stmts[0])))
	}
	if unary, ok := assignedValue(t, stmts[1]).(*ast.UnaryExpression); !ok || unary.Operator.Type != token.MINUS {
		t.Errorf("expected unary minus, got %s", repr.String(assignedValue(t, stmts[1])))
	}
	if binary, ok := assignedValue(t, stmts[2]).(*ast.BinaryExpression); !ok || binary.Operator.Type != token.MINUS {
		t.Errorf("expected subtraction, got %s", repr.String(assignedValue(t, stmts[2])))
	}
	if char, ok := assignedValue(t, stmts[3]).(*ast.CharLiteral); !ok || char.Value() != "a" {
		t.Errorf("expected char literal, got %s", repr.String(assignedValue(t, stmts[3])))
	}
	if lit, ok := assignedValue(t, stmts[4]).(*ast.Literal); !ok || !lit.Type().Equals(ast.String) {
		t.Errorf("expected string literal, got %s", repr.String(assignedValue(t, stmts[4])))
	}
}

func TestStatements(t *testing.T) {
	program := mustParse(t, `
program P;
var i: integer; a: array[0..3] of integer;
begin
  for i := 10 downto 1 do
    a[i mod 4] := i;
  while i < 3 do i := i + 1;
  if i = 1 then if i = 2 then i := 3 else i := 4;
  readln(i, a[0]);
  writeln;
  write('n = ', length('abc'));
  begin ; end
end.
`)
	stmts := bodyOf(program)
	if len(stmts) != 7 {
		t.Fatalf("expected 7 statements, got %d: %s", len(stmts), repr.String(stmts))
	}

	loop, ok := stmts[0].(*ast.ForStatement)
	if !ok || !loop.Downto || loop.Counter.Lexeme != "i" {
		t.Fatalf("expected downto loop over i, got %s", repr.String(stmts[0]))
	}
	if _, ok := loop.Body.(*ast.AssignStatement).Target.(*ast.ArrayAccess); !ok {
		t.Errorf("expected array element assignment in loop body")
	}

	if _, ok := stmts[1].(*ast.WhileStatement); !ok {
		t.Errorf("expected while, got %T", stmts[1])
	}

	outer := stmts[2].(*ast.IfStatement)
	if outer.Else != nil {
		t.Errorf("else must bind to the nearest if")
	}
	if inner, ok := outer.Then.(*ast.IfStatement); !ok || inner.Else == nil {
		t.Errorf("expected inner if with else, got %s", repr.String(outer.Then))
	}

	read := stmts[3].(*ast.IOStatement)
	if !read.IsRead() || !read.Newline() || len(read.Arguments) != 2 {
		t.Errorf("unexpected readln %s", repr.String(read))
	}

	writeln := stmts[4].(*ast.IOStatement)
	if writeln.IsRead() || !writeln.Newline() || len(writeln.Arguments) != 0 {
		t.Errorf("unexpected writeln %s", repr.String(writeln))
	}

	write := stmts[5].(*ast.IOStatement)
	if call, ok := write.Arguments[1].(*ast.FunctionCall); !ok || !call.IsLength() {
		t.Errorf("expected length call, got %s", repr.String(write.Arguments[1]))
	}

	compound := stmts[6].(*ast.CompoundStatement)
	for _, stmt := range compound.Statements {
		if _, ok := stmt.(*ast.EmptyStatement); !ok {
			t.Errorf("expected empty statements, got %T", stmt)
		}
	}
}

func TestRecoversFromBadStatements(t *testing.T) {
	program, errs := parse(t, `
program P;
var x: integer;
begin
  x := ;
  x := 1;
  y := * 2;
  writeln(x)
end.
`)

	if len(errs) != 2 {
		t.Fatalf("expected 2 errors, got %d: %v", len(errs), errs)
	}
	if errs[0].Token.Pos.Line != 5 || errs[1].Token.Pos.Line != 7 {
		t.Errorf("errors reported at the wrong lines: %s, %s", errs[0].Position(), errs[1].Position())
	}
	if program == nil {
		t.Fatalf("expected a partial program")
	}
	if len(bodyOf(program)) != 2 {
		t.Errorf("expected the 2 good statements to survive, got %d", len(bodyOf(program)))
	}
}

func TestRecoversFromBadFunction(t *testing.T) {
	program, errs := parse(t, `
program P;
function f(a integer): integer;
begin
  f := a
end;
function g(b: integer): integer;
begin
  g := b
end;
begin
  writeln(g(1))
end.
`)

	if len(errs) != 1 {
		t.Fatalf("expected 1 error, got %d: %v", len(errs), errs)
	}
	if program == nil || len(program.Functions) != 1 || program.Functions[0].Identifier.Lexeme != "g" {
		t.Fatalf("expected g to survive, got %s", repr.String(program))
	}
}

func TestProcedureIsRejected(t *testing.T) {
	_, errs := parse(t, `
program P;
procedure hello();
begin
  writeln('hi')
end;
begin
end.
`)

	if len(errs) != 1 || !strings.Contains(errs[0].Error(), "Procedures are not supported") {
		t.Fatalf("expected procedure rejection, got %v", errs)
	}
	if errs[0].Token.Type != token.PROCEDURE {
		t.Errorf("expected error at `procedure`, got %s", errs[0].Token)
	}
}

func TestReadTargetsMustBeVariables(t *testing.T) {
	_, errs := parse(t, "program P; begin read(1 + 2) end.")

	if len(errs) != 1 || !strings.Contains(errs[0].Error(), "must be variables") {
		t.Fatalf("expected read target error, got %v", errs)
	}
}

func TestBrokenSkeletonYieldsNil(t *testing.T) {
	tests := []string{
		"",
		"begin end.",
		"program; begin end.",
		"program P; begin x := 1",
		"program P; begin end",
	}

	for _, source := range tests {
		program, errs := parse(t, source)
		if program != nil {
			t.Errorf("%q: expected nil program, got %s", source, repr.String(program))
		}
		if len(errs) == 0 {
			t.Errorf("%q: expected a syntax error", source)
		}
	}
}

func TestTrailingInputIsReported(t *testing.T) {
	program, errs := parse(t, "program P; begin end. x")

	if program == nil {
		t.Fatalf("expected the program to be kept")
	}
	if len(errs) != 1 {
		t.Fatalf("expected 1 error, got %v", errs)
	}
}
