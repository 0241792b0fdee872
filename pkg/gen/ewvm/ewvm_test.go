package ewvm

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/kartiknair/pasc/pkg/analyzer"
	"github.com/kartiknair/pasc/pkg/ast"
	"github.com/kartiknair/pasc/pkg/diag"
	"github.com/kartiknair/pasc/pkg/lexer"
	"github.com/kartiknair/pasc/pkg/parser"
)

func validProgram(t *testing.T, source string) *ast.Program {
	t.Helper()
	tokens, lexErrors := lexer.Lex(source)
	if len(lexErrors) > 0 {
		t.Fatalf("unexpected lexical errors: %v", lexErrors)
	}
	program, parseErrors := parser.Parse(tokens)
	if len(parseErrors) > 0 || program == nil {
		t.Fatalf("unexpected syntax errors: %v", parseErrors)
	}
	if ok, errs := analyzer.Analyze(program); !ok {
		t.Fatalf("unexpected semantic errors: %v", errs)
	}
	return program
}

// instructions drops comment lines.
func instructions(code []string) []string {
	out := []string{}
	for _, line := range code {
		if !strings.HasPrefix(line, "//") {
			out = append(out, line)
		}
	}
	return out
}

func generate(t *testing.T, source string) []string {
	t.Helper()
	code, err := Gen(validProgram(t, source))
	if err != nil {
		t.Fatalf("unexpected generation error: %s", err)
	}
	return instructions(code)
}

func checkCode(t *testing.T, source string, expected []string) {
	t.Helper()
	got := generate(t, source)
	if !reflect.DeepEqual(got, expected) {
		t.Errorf("generated code mismatch\n got: %s\nwant: %s",
			strings.Join(got, " | "), strings.Join(expected, " | "))
	}
}

func TestAssignAndWrite(t *testing.T) {
	checkCode(t, "program P; var x: integer; begin x := 2 + 3; writeln(x) end.", []string{
		"PUSHI 0",
		"START",
		"PUSHI 2",
		"PUSHI 3",
		"ADD",
		"STOREG 0",
		"PUSHG 0",
		"WRITEI",
		"WRITELN",
		"STOP",
	})
}

func TestProgramComment(t *testing.T) {
	code, err := Gen(validProgram(t, "program Hello; begin end."))
	if err != nil {
		t.Fatal(err)
	}
	if code[0] != "// program Hello" {
		t.Errorf("expected a program comment first, got %q", code[0])
	}
}

func TestInitializers(t *testing.T) {
	checkCode(t, `
program P;
var i: integer; r: real; b: boolean; c: char; s: string; a: array[1..10] of real;
begin end.`, []string{
		"PUSHI 0",
		"PUSHF 0.0",
		"PUSHI 0",
		"PUSHI 0",
		`PUSHS ""`,
		"PUSHI 10",
		"ALLOCN",
		"START",
		"STOP",
	})
}

func TestLengthOfLiteralIsFolded(t *testing.T) {
	got := generate(t, "program P; var n: integer; begin n := length('abc') end.")

	expected := []string{"PUSHI 0", "START", "PUSHI 3", "STOREG 0", "STOP"}
	if !reflect.DeepEqual(got, expected) {
		t.Errorf("got %v, want %v", got, expected)
	}
	for _, line := range got {
		if line == "STRLEN" {
			t.Errorf("folded length must not emit STRLEN")
		}
	}
}

func TestLengthAtRuntime(t *testing.T) {
	checkCode(t, "program P; var n: integer; s: string; c: char; begin n := length(s); n := length(c) end.", []string{
		"PUSHI 0",
		`PUSHS ""`,
		"PUSHI 0",
		"START",
		"PUSHG 1",
		"STRLEN",
		"STOREG 0",
		"PUSHG 2",
		"POP 1",
		"PUSHI 1",
		"STOREG 0",
		"STOP",
	})
}

func TestStringElementWriteFails(t *testing.T) {
	program := validProgram(t, "program P; var s: string; begin s := 'abc'; s[1] := 'a' end.")

	code, err := Gen(program)
	if err == nil {
		t.Fatalf("expected a generation error, got code %v", code)
	}

	var genErr *Error
	if !errors.As(err, &genErr) {
		t.Fatalf("expected *ewvm.Error, got %T", err)
	}
	if genErr.Kind() != diag.Generation {
		t.Errorf("expected generation kind, got %s", genErr.Kind())
	}
	if !strings.Contains(genErr.Error(), "immutable") || genErr.Pos.Column == 0 {
		t.Errorf("unexpected error %q at %s", genErr, genErr.Pos)
	}
}

func TestReadIntoStringElementFails(t *testing.T) {
	_, err := Gen(validProgram(t, "program P; var s: string; begin read(s[1]) end."))
	if err == nil {
		t.Fatalf("expected a generation error")
	}
}

func TestGenerationIsDeterministic(t *testing.T) {
	source := `
program P;
var a, b: integer; r: real; ok: boolean; c: char;
begin
  a := 1; b := a * 3 - 2; r := a / 2 + 0.5; ok := not (a = b); c := 'z';
  writeln(a, b, r, ok, c)
end.`
	program := validProgram(t, source)

	first, err := Gen(program)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		again, err := Gen(program)
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("run %d differs:\n%v\n%v", i, first, again)
		}
	}
}

func TestRealArithmetic(t *testing.T) {
	checkCode(t, "program P; var r: real; i: integer; begin r := i + 1.5; r := i end.", []string{
		"PUSHF 0.0",
		"PUSHI 0",
		"START",
		"PUSHG 1",
		"ITOF",
		"PUSHF 1.5",
		"FADD",
		"STOREG 0",
		"PUSHG 1",
		"ITOF",
		"STOREG 0",
		"STOP",
	})
}

func TestOperators(t *testing.T) {
	checkCode(t, "program P; var b: boolean; i: integer; begin b := i <> 2; i := -i; b := (i div 2 >= 1) and not b end.", []string{
		"PUSHI 0",
		"PUSHI 0",
		"START",
		"PUSHG 1",
		"PUSHI 2",
		"EQUAL",
		"NOT",
		"STOREG 0",
		"PUSHI 0",
		"PUSHG 1",
		"SUB",
		"STOREG 1",
		"PUSHG 1",
		"PUSHI 2",
		"DIV",
		"PUSHI 1",
		"SUPEQ",
		"PUSHG 0",
		"NOT",
		"AND",
		"STOREG 0",
		"STOP",
	})
}

func TestIfElse(t *testing.T) {
	checkCode(t, "program P; var x: integer; begin if x > 0 then x := 1 else x := 2; if x = 1 then x := 3 end.", []string{
		"PUSHI 0",
		"START",
		"PUSHG 0",
		"PUSHI 0",
		"SUP",
		"JZ L0",
		"PUSHI 1",
		"STOREG 0",
		"JUMP L1",
		"L0:",
		"PUSHI 2",
		"STOREG 0",
		"L1:",
		"PUSHG 0",
		"PUSHI 1",
		"EQUAL",
		"JZ L2",
		"PUSHI 3",
		"STOREG 0",
		"L2:",
		"STOP",
	})
}

func TestLoops(t *testing.T) {
	checkCode(t, "program P; var i: integer; begin while i < 3 do i := i + 1; for i := 5 downto 1 do writeln(i) end.", []string{
		"PUSHI 0",
		"START",
		"L0:",
		"PUSHG 0",
		"PUSHI 3",
		"INF",
		"JZ L1",
		"PUSHG 0",
		"PUSHI 1",
		"ADD",
		"STOREG 0",
		"JUMP L0",
		"L1:",
		"PUSHI 5",
		"STOREG 0",
		"L2:",
		"PUSHG 0",
		"PUSHI 1",
		"SUPEQ",
		"JZ L3",
		"PUSHG 0",
		"WRITEI",
		"WRITELN",
		"PUSHG 0",
		"PUSHI 1",
		"SUB",
		"STOREG 0",
		"JUMP L2",
		"L3:",
		"STOP",
	})
}

func TestArrays(t *testing.T) {
	checkCode(t, "program P; var a: array[1..3] of integer; z: array[0..1] of integer; begin a[2] := 5; z[0] := a[2] end.", []string{
		"PUSHI 3",
		"ALLOCN",
		"PUSHI 2",
		"ALLOCN",
		"START",
		"PUSHG 0",
		"PUSHI 2",
		"PUSHI 1",
		"SUB",
		"PUSHI 5",
		"STOREN",
		"PUSHG 1",
		"PUSHI 0",
		"PUSHG 0",
		"PUSHI 2",
		"PUSHI 1",
		"SUB",
		"LOADN",
		"STOREN",
		"STOP",
	})
}

func TestStringIndexing(t *testing.T) {
	checkCode(t, "program P; var s: string; c: char; begin c := s[1] end.", []string{
		`PUSHS ""`,
		"PUSHI 0",
		"START",
		"PUSHG 0",
		"PUSHI 1",
		"PUSHI 1",
		"SUB",
		"CHARAT",
		"STOREG 1",
		"STOP",
	})
}

func TestWriteAndRead(t *testing.T) {
	checkCode(t, `
program P;
var i: integer; r: real; s: string; c: char;
begin
  write('hi "there"', 1.5, 'c', true);
  readln(i, r, s, c);
  s := 'x'
end.`, []string{
		"PUSHI 0",
		"PUSHF 0.0",
		`PUSHS ""`,
		"PUSHI 0",
		"START",
		`PUSHS "hi \"there\""`,
		"WRITES",
		"PUSHF 1.5",
		"WRITEF",
		"PUSHI 99",
		"WRITECHR",
		"PUSHI 1",
		"WRITEI",
		"READ",
		"ATOI",
		"STOREG 0",
		"READ",
		"ATOF",
		"STOREG 1",
		"READ",
		"STOREG 2",
		"READ",
		"PUSHI 0",
		"CHARAT",
		"STOREG 3",
		`PUSHS "x"`,
		"STOREG 2",
		"STOP",
	})
}

func TestFunctionCall(t *testing.T) {
	checkCode(t, `
program P;
function add(a, b: integer): integer;
var t: integer;
begin
  t := a + b;
  add := t
end;
var x: integer;
begin
  x := add(1, 2)
end.`, []string{
		"PUSHI 0",
		"PUSHI 0",
		"START",
		"PUSHI 1",
		"PUSHI 2",
		"PUSHA FUNC_add",
		"CALL",
		"POP 2",
		"PUSHG 1",
		"STOREG 0",
		"STOP",
		"FUNC_add:",
		"PUSHL -2",
		"PUSHL -1",
		"PUSHI 0",
		"PUSHL 0",
		"PUSHL 1",
		"ADD",
		"STOREL 2",
		"PUSHL 2",
		"STOREG 1",
		"POP 3",
		"RETURN",
	})
}

func TestRecursiveFunction(t *testing.T) {
	got := generate(t, `
program P;
function fact(n: integer): integer;
begin
  if n <= 1 then fact := 1 else fact := n * fact(n - 1)
end;
begin
  writeln(fact(5))
end.`)

	// No globals: the result cell is gp[0].
	expectedMain := []string{"PUSHI 0", "START", "PUSHI 5", "PUSHA FUNC_fact", "CALL", "POP 1", "PUSHG 0", "WRITEI", "WRITELN", "STOP"}
	if !reflect.DeepEqual(got[:len(expectedMain)], expectedMain) {
		t.Errorf("main: got %v, want %v", got[:len(expectedMain)], expectedMain)
	}

	body := strings.Join(got[len(expectedMain):], " | ")
	for _, fragment := range []string{
		"FUNC_fact: | PUSHL -1",
		"PUSHL 0 | PUSHL 0 | PUSHI 1 | SUB | PUSHA FUNC_fact | CALL | POP 1 | PUSHG 0 | MUL | STOREG 0",
		"POP 1 | RETURN",
	} {
		if !strings.Contains(body, fragment) {
			t.Errorf("function body %q does not contain %q", body, fragment)
		}
	}
}

func TestRealParameterIsWidened(t *testing.T) {
	got := generate(t, `
program P;
function half(x: real): real;
begin
  half := x / 2
end;
var r: real;
begin
  r := half(3)
end.`)

	main := strings.Join(got, " | ")
	if !strings.Contains(main, "PUSHI 3 | ITOF | PUSHA FUNC_half") {
		t.Errorf("expected the argument to be widened: %s", main)
	}
	if !strings.Contains(main, "PUSHL 0 | PUSHI 2 | ITOF | FDIV | STOREG 1") {
		t.Errorf("expected real division into the result cell: %s", main)
	}
}

func TestStringParameterFromChar(t *testing.T) {
	got := generate(t, `
program P;
function f(s: string): integer;
begin
  write(s);
  f := 0
end;
var x: integer;
begin
  x := f('a')
end.`)

	main := strings.Join(got, " | ")
	if !strings.Contains(main, `PUSHS "a" | PUSHA FUNC_f`) {
		t.Errorf("expected the char argument as a string: %s", main)
	}
	if strings.Contains(main, "PUSHI 97") {
		t.Errorf("char argument pushed as a code: %s", main)
	}
}

func TestCompareCharWithString(t *testing.T) {
	checkCode(t, `
program P;
var b: boolean; c: char; s, t: string;
begin
  b := c = t;
  if s[1] = t then c := 'x'
end.`, []string{
		"PUSHI 0",
		"PUSHI 0",
		`PUSHS ""`,
		`PUSHS ""`,
		"START",
		"PUSHG 1",
		"PUSHI 2",
		"MUL",
		"PUSHG 3",
		"DUP 1",
		"STRLEN",
		"DUP 1",
		"JZ L0",
		"PUSHI 1",
		"SUP",
		"SWAP",
		"PUSHI 0",
		"CHARAT",
		"PUSHI 2",
		"MUL",
		"ADD",
		"JUMP L1",
		"L0:",
		"POP 2",
		"PUSHI -1",
		"L1:",
		"EQUAL",
		"STOREG 0",
		"PUSHG 2",
		"PUSHI 1",
		"PUSHI 1",
		"SUB",
		"CHARAT",
		"PUSHI 2",
		"MUL",
		"PUSHG 3",
		"DUP 1",
		"STRLEN",
		"DUP 1",
		"JZ L4",
		"PUSHI 1",
		"SUP",
		"SWAP",
		"PUSHI 0",
		"CHARAT",
		"PUSHI 2",
		"MUL",
		"ADD",
		"JUMP L5",
		"L4:",
		"POP 2",
		"PUSHI -1",
		"L5:",
		"EQUAL",
		"JZ L2",
		"PUSHI 120",
		"STOREG 1",
		"L2:",
		"STOP",
	})
}

func TestOrderCharAgainstString(t *testing.T) {
	got := strings.Join(generate(t, `
program P;
var b: boolean; c: char; t: string;
begin
  b := t < c;
  b := c <> t
end.`), " | ")

	if !strings.Contains(got, "PUSHI -1 | L1: | PUSHG 1 | PUSHI 2 | MUL | INF | STOREG 0") {
		t.Errorf("expected the string key below the char key: %s", got)
	}
	if !strings.Contains(got, "L3: | EQUAL | NOT | STOREG 0") {
		t.Errorf("expected a negated key comparison: %s", got)
	}
	if strings.Count(got, "PUSHS") != 1 {
		t.Errorf("non-literal char must not become a string: %s", got)
	}
}

func TestUnresolvedNameIsGenerationError(t *testing.T) {
	// Skips analysis on purpose: generation must not trust unknown names.
	tokens, _ := lexer.Lex("program P; begin x := 1 end.")
	program, _ := parser.Parse(tokens)

	_, err := Gen(program)
	if err == nil || !strings.Contains(err.Error(), "Unresolved name 'x'") {
		t.Fatalf("expected unresolved name error, got %v", err)
	}
}
