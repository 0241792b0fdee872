package main

import (
	"fmt"
	"log"

	"github.com/alecthomas/repr"
	"github.com/kartiknair/pasc/pkg/compiler"
	"github.com/kartiknair/pasc/pkg/diag"
	"github.com/kartiknair/pasc/pkg/gen"
)

func main() {
	code := `
program Playground;

function fact(n: integer): integer;
begin
  if n <= 1 then
    fact := 1
  else
    fact := n * fact(n - 1)
end;

var
  i: integer;
  squares: array[1..5] of integer;
  name: string;
begin
  name := 'world';
  for i := 1 to 5 do
    squares[i] := i * i;
  writeln('hello ', name, ' ', length(name));
  writeln(fact(squares[2]) / 2.0)
end.
`

	tokens, lexErrors := compiler.Tokenize(code)
	for _, err := range lexErrors {
		fmt.Println(diag.Format(code, err))
	}
	for _, tok := range tokens {
		fmt.Printf("Line %d: %s\n", tok.Pos.Line, tok)
	}

	program, parseErrors := compiler.Parse(tokens)
	for _, err := range parseErrors {
		fmt.Println(diag.Format(code, err))
	}
	if program == nil {
		log.Fatal("parsing failed")
	}
	repr.Println(program)

	if ok, errs := compiler.Analyze(program, compiler.Options{}); !ok {
		for _, err := range errs {
			fmt.Println(diag.Format(code, err))
		}
		log.Fatal("analysis failed")
	}

	instructions, err := compiler.Generate(program)
	if err != nil {
		log.Fatal(err.Error())
	}
	for _, line := range instructions {
		fmt.Println(line)
	}

	gennedLLVM, err := gen.LLVM(program)
	if err != nil {
		log.Fatal(err.Error())
	}
	fmt.Println(gennedLLVM)
}
