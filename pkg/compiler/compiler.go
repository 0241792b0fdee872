// Package compiler runs the phases in order and collects their diagnostics.
package compiler

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/kartiknair/pasc/pkg/analyzer"
	"github.com/kartiknair/pasc/pkg/ast"
	"github.com/kartiknair/pasc/pkg/diag"
	"github.com/kartiknair/pasc/pkg/gen"
	"github.com/kartiknair/pasc/pkg/lexer"
	"github.com/kartiknair/pasc/pkg/parser"
	"github.com/kartiknair/pasc/pkg/token"
)

type Options struct {
	// Target defaults to EWVM.
	Target gen.Target
	// FilterQuotedUndeclared drops undeclared-name errors for names that
	// are quoted text.
	FilterQuotedUndeclared bool
}

// Failure carries the user-facing diagnostics of the phase that stopped
// the compilation.
type Failure struct {
	Stage       diag.Kind
	Diagnostics []diag.Diagnostic
}

func (f *Failure) Error() string {
	if len(f.Diagnostics) == 0 {
		return fmt.Sprintf("%s failed", f.Stage)
	}
	return fmt.Sprintf("%d %s error(s), first: %s", len(f.Diagnostics), f.Stage, f.Diagnostics[0])
}

// Format renders every diagnostic against source, one after the other.
func (f *Failure) Format(source string) string {
	formatted := make([]string, len(f.Diagnostics))
	for i, d := range f.Diagnostics {
		formatted[i] = diag.Format(source, d)
	}
	return strings.Join(formatted, "\n")
}

type Result struct {
	Target  gen.Target
	Tokens  []token.Token
	Program *ast.Program

	// Instructions is set for EWVM, IR for LLVM.
	Instructions []string
	IR           string

	// Timings holds one entry per phase, in the order they ran.
	Timings []Timing
}

type Timing struct {
	Phase    string
	Duration time.Duration
}

type timings []Timing

// since records the time spent in phase since start and returns the end of
// the phase, which is where the next one starts.
func (t *timings) since(phase string, start time.Time) time.Time {
	now := time.Now()
	*t = append(*t, Timing{Phase: phase, Duration: now.Sub(start)})
	return now
}

// Text is the content of the output file.
func (r *Result) Text() string {
	if r.Target == gen.TargetLLVM {
		return r.IR
	}
	return strings.Join(r.Instructions, "\n") + "\n"
}

func Tokenize(source string) ([]token.Token, []*lexer.Error) {
	return lexer.Lex(source)
}

func Parse(tokens []token.Token) (*ast.Program, []*parser.Error) {
	return parser.Parse(tokens)
}

func Analyze(program *ast.Program, opts Options) (bool, []*analyzer.Error) {
	a := analyzer.Analyzer{FilterQuotedUndeclared: opts.FilterQuotedUndeclared}
	return a.Analyze(program)
}

// Generate emits EWVM instructions. It must only be called on a program
// that passed Analyze.
func Generate(program *ast.Program) ([]string, error) {
	return gen.EWVM(program)
}

// Check runs lexing, parsing and analysis. Errors of these phases come
// back as a *Failure.
func Check(source string, opts Options) ([]token.Token, *ast.Program, error) {
	return check(source, opts, &timings{})
}

func check(source string, opts Options, t *timings) ([]token.Token, *ast.Program, error) {
	start := time.Now()
	tokens, lexErrors := Tokenize(source)
	start = t.since("lexing", start)

	program, parseErrors := Parse(tokens)
	start = t.since("parsing", start)
	if len(lexErrors) > 0 || len(parseErrors) > 0 || program == nil {
		failure := &Failure{Stage: diag.Syntax}
		if len(lexErrors) > 0 {
			failure.Stage = diag.Lexical
		}
		for _, err := range lexErrors {
			failure.Diagnostics = append(failure.Diagnostics, err)
		}
		for _, err := range parseErrors {
			failure.Diagnostics = append(failure.Diagnostics, err)
		}
		return tokens, nil, failure
	}

	ok, errs := Analyze(program, opts)
	t.since("analysis", start)
	if !ok {
		failure := &Failure{Stage: diag.Semantic}
		for _, err := range errs {
			failure.Diagnostics = append(failure.Diagnostics, err)
		}
		return tokens, program, failure
	}

	return tokens, program, nil
}

// Compile runs every phase on source. Lexical, syntax and semantic errors
// come back as a *Failure; a generation error is returned as is.
func Compile(source string, opts Options) (*Result, error) {
	target := opts.Target
	if target == "" {
		target = gen.TargetEWVM
	}

	var phases timings
	tokens, program, err := check(source, opts, &phases)
	if err != nil {
		return nil, err
	}
	result := &Result{Target: target, Tokens: tokens, Program: program}

	start := time.Now()
	switch target {
	case gen.TargetLLVM:
		result.IR, err = gen.LLVM(program)
	case gen.TargetEWVM:
		result.Instructions, err = Generate(program)
	default:
		return nil, fmt.Errorf("unknown target '%s'", target)
	}
	if err != nil {
		return nil, err
	}
	phases.since(string(target)+" generation", start)

	result.Timings = phases
	return result, nil
}

// OutputPath swaps the extension of sourcePath for the target's.
func OutputPath(sourcePath string, target gen.Target) string {
	if target == "" {
		target = gen.TargetEWVM
	}
	return strings.TrimSuffix(sourcePath, filepath.Ext(sourcePath)) + target.Extension()
}
