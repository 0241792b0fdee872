package analyzer

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/kartiknair/pasc/pkg/ast"
	"github.com/kartiknair/pasc/pkg/diag"
	"github.com/kartiknair/pasc/pkg/token"
)

type SymbolKind int

const (
	VariableSymbol SymbolKind = iota
	ParameterSymbol
	FunctionSymbol
	ProgramSymbol
)

func (k SymbolKind) String() string {
	switch k {
	case VariableSymbol:
		return "variable"
	case ParameterSymbol:
		return "parameter"
	case FunctionSymbol:
		return "function"
	case ProgramSymbol:
		return "program"
	}
	return "unknown"
}

type Symbol struct {
	Name string
	Kind SymbolKind
	// Type is the declared type, or the return type of a function. It is nil
	// for the program symbol.
	Type   ast.Type
	Params []ast.Type
	Pos    token.Pos
}

var (
	ErrNotDeclared = errors.New("name is not declared")
	ErrRedeclared  = errors.New("name is already declared in this scope")
)

type SymbolTable struct {
	values    map[string]*Symbol
	enclosing *SymbolTable
}

func NewSymbolTable() *SymbolTable {
	return &SymbolTable{
		values:    make(map[string]*Symbol),
		enclosing: nil,
	}
}

func NewSymbolTableFromEnclosing(enclosing *SymbolTable) *SymbolTable {
	return &SymbolTable{
		values:    make(map[string]*Symbol),
		enclosing: enclosing,
	}
}

// Get resolves name in the innermost scope that declares it.
func (s *SymbolTable) Get(name string) (*Symbol, error) {
	if value, ok := s.values[name]; ok {
		return value, nil
	} else if s.enclosing == nil {
		return nil, ErrNotDeclared
	}

	return s.enclosing.Get(name)
}

// Declare adds sym to this scope. Shadowing an enclosing scope is allowed.
func (s *SymbolTable) Declare(sym *Symbol) error {
	if _, ok := s.values[sym.Name]; ok {
		return ErrRedeclared
	}

	s.values[sym.Name] = sym
	return nil
}

func (s *SymbolTable) Enclosing() *SymbolTable {
	return s.enclosing
}

type ErrorCode int

const (
	Undeclared ErrorCode = iota
	Redeclared
	TypeMismatch
	WrongArity
	Misuse
)

func (c ErrorCode) String() string {
	switch c {
	case Undeclared:
		return "undeclared"
	case Redeclared:
		return "redeclared"
	case TypeMismatch:
		return "type-mismatch"
	case WrongArity:
		return "arity"
	case Misuse:
		return "misuse"
	}
	return "unknown"
}

// Error is a semantic error about Name at Pos.
type Error struct {
	Pos     token.Pos
	Code    ErrorCode
	Name    string
	Message string
}

func (e *Error) Error() string       { return e.Message }
func (e *Error) Kind() diag.Kind     { return diag.Semantic }
func (e *Error) Position() token.Pos { return e.Pos }

type Analyzer struct {
	// FilterQuotedUndeclared drops undeclared-identifier errors whose name
	// contains a quote, as older front ends did when quoted text leaked into
	// identifier position.
	FilterQuotedUndeclared bool

	scope    *SymbolTable
	function *Symbol
	errors   []*Error
}

// Analyze checks program with the default options. It reports whether the
// program is valid along with every error found.
func Analyze(program *ast.Program) (bool, []*Error) {
	a := Analyzer{}
	return a.Analyze(program)
}

func (a *Analyzer) Analyze(program *ast.Program) (bool, []*Error) {
	if program == nil {
		panic("Invalid call to `Analyze`, program must not be `nil`.")
	}

	a.scope = NewSymbolTable()
	a.function = nil
	a.errors = nil

	a.declare(program.Name, &Symbol{
		Name: program.Name.Lexeme,
		Kind: ProgramSymbol,
		Pos:  program.Name.Pos,
	})

	for _, f := range program.Functions {
		a.analyzeFunction(f)
	}

	a.analyzeBlock(program.Block)

	if a.FilterQuotedUndeclared {
		a.errors = filterQuotedUndeclared(a.errors)
	}

	return len(a.errors) == 0, a.errors
}

func filterQuotedUndeclared(errs []*Error) []*Error {
	kept := []*Error{}
	for _, err := range errs {
		if err.Code == Undeclared && strings.ContainsAny(err.Name, `'"`) {
			continue
		}
		kept = append(kept, err)
	}
	return kept
}

func (a *Analyzer) analysisError(t token.Token, code ErrorCode, message string) {
	a.errors = append(a.errors, &Error{
		Pos:     t.Pos,
		Code:    code,
		Name:    t.Lexeme,
		Message: message,
	})
}

func (a *Analyzer) declare(name token.Token, sym *Symbol) {
	if err := a.scope.Declare(sym); err != nil {
		previous, _ := a.scope.Get(sym.Name)
		a.analysisError(name, Redeclared, fmt.Sprintf(
			"Redeclaration of '%s', already declared as a %s at %s.",
			sym.Name, previous.Kind, previous.Pos,
		))
	}
}

func (a *Analyzer) lookup(name token.Token) *Symbol {
	sym, err := a.scope.Get(name.Lexeme)
	if err != nil {
		a.analysisError(name, Undeclared, fmt.Sprintf("Undeclared identifier '%s'.", name.Lexeme))
		return nil
	}
	return sym
}

// analyzeType validates a declared type; where is used for error reporting.
func (a *Analyzer) analyzeType(t ast.Type, where token.Token) {
	arr, ok := t.(*ast.ArrayType)
	if !ok {
		return
	}

	if arr.Min > arr.Max {
		a.analysisError(where, TypeMismatch, fmt.Sprintf(
			"Array bounds of '%s' are reversed: %d is greater than %d.",
			where.Lexeme, arr.Min, arr.Max,
		))
	} else if uint64(arr.Max)-uint64(arr.Min) >= math.MaxInt64 {
		a.analysisError(where, TypeMismatch, fmt.Sprintf(
			"Array '%s' has too many elements: %d..%d.",
			where.Lexeme, arr.Min, arr.Max,
		))
	}
	if ast.IsArray(arr.ElType) {
		a.analysisError(where, Misuse, fmt.Sprintf(
			"Arrays of arrays are not supported (declaring '%s').", where.Lexeme,
		))
	}
}

func (a *Analyzer) analyzeFunction(f *ast.FunctionDeclaration) {
	sym := &Symbol{
		Name:   f.Identifier.Lexeme,
		Kind:   FunctionSymbol,
		Type:   f.ReturnType,
		Params: f.ParamTypes(),
		Pos:    f.Identifier.Pos,
	}
	a.analyzeType(f.ReturnType, f.Identifier)

	// Declared before the body so recursive calls resolve.
	a.declare(f.Identifier, sym)

	a.scope = NewSymbolTableFromEnclosing(a.scope)
	a.function = sym

	for _, param := range f.Parameters {
		for _, name := range param.Identifiers {
			a.analyzeType(param.Type, name)
			a.declare(name, &Symbol{
				Name: name.Lexeme,
				Kind: ParameterSymbol,
				Type: param.Type,
				Pos:  name.Pos,
			})
		}
	}

	a.analyzeBlock(f.Block)

	a.function = nil
	a.scope = a.scope.Enclosing()
}

func (a *Analyzer) analyzeBlock(b *ast.Block) {
	for _, decl := range b.Declarations {
		for _, name := range decl.Identifiers {
			a.analyzeType(decl.Type, name)
			a.declare(name, &Symbol{
				Name: name.Lexeme,
				Kind: VariableSymbol,
				Type: decl.Type,
				Pos:  name.Pos,
			})
		}
	}

	a.analyzeStatement(b.Body)
}

// isAssignable reports whether a value of type value may be stored in a
// location of type target: identical types, integer to real, char to string.
func isAssignable(value ast.Type, target ast.Type) bool {
	if value.Equals(target) {
		return true
	}
	if ast.Integer.Equals(value) && ast.Real.Equals(target) {
		return true
	}
	return ast.Char.Equals(value) && ast.String.Equals(target)
}

// analyzeTarget resolves the type of an assignment or read target.
func (a *Analyzer) analyzeTarget(target ast.Expression, forRead bool) ast.Type {
	v, ok := target.(*ast.VariableExpression)
	if !ok {
		return a.analyzeExpression(target)
	}

	sym := a.lookup(v.Identifier)
	if sym == nil {
		return nil
	}

	switch sym.Kind {
	case ProgramSymbol:
		a.analysisError(v.Identifier, Misuse, fmt.Sprintf(
			"Cannot assign to program name '%s'.", sym.Name,
		))
		return nil
	case FunctionSymbol:
		if sym != a.function || forRead {
			a.analysisError(v.Identifier, Misuse, fmt.Sprintf(
				"Cannot assign to function '%s' outside of its own body.", sym.Name,
			))
			return nil
		}
	}

	if forRead && ast.IsArray(sym.Type) {
		a.analysisError(v.Identifier, Misuse, fmt.Sprintf(
			"Cannot read into array '%s', read its elements instead.", sym.Name,
		))
		return nil
	}

	return sym.Type
}

func (a *Analyzer) analyzeStatement(statement ast.Statement) {
	switch s := statement.(type) {
	case *ast.CompoundStatement:
		for _, stmt := range s.Statements {
			a.analyzeStatement(stmt)
		}
	case *ast.EmptyStatement:
	case *ast.AssignStatement:
		targetType := a.analyzeTarget(s.Target, false)
		valueType := a.analyzeExpression(s.Value)

		if targetType != nil && valueType != nil && !isAssignable(valueType, targetType) {
			name := s.Target.ErrorToken()
			a.analysisError(name, TypeMismatch, fmt.Sprintf(
				"Cannot assign value of type '%s' to '%s' of type '%s'.",
				valueType, name.Lexeme, targetType,
			))
		}
	case *ast.IfStatement:
		a.expectType(s.Condition, ast.Boolean, "if condition")
		a.analyzeStatement(s.Then)
		if s.Else != nil {
			a.analyzeStatement(s.Else)
		}
	case *ast.WhileStatement:
		a.expectType(s.Condition, ast.Boolean, "while condition")
		a.analyzeStatement(s.Body)
	case *ast.ForStatement:
		if sym := a.lookup(s.Counter); sym != nil {
			if sym.Kind != VariableSymbol && sym.Kind != ParameterSymbol {
				a.analysisError(s.Counter, Misuse, fmt.Sprintf(
					"Loop counter '%s' must be a variable, not a %s.", sym.Name, sym.Kind,
				))
			} else if !ast.Integer.Equals(sym.Type) {
				a.analysisError(s.Counter, TypeMismatch, fmt.Sprintf(
					"Loop counter '%s' must be an integer, got '%s'.", sym.Name, sym.Type,
				))
			}
		}
		a.expectType(s.Start, ast.Integer, "for loop start")
		a.expectType(s.End, ast.Integer, "for loop bound")
		a.analyzeStatement(s.Body)
	case *ast.IOStatement:
		for _, arg := range s.Arguments {
			if s.IsRead() {
				a.analyzeTarget(arg, true)
				continue
			}

			if typ := a.analyzeExpression(arg); typ != nil && ast.IsArray(typ) {
				a.analysisError(arg.ErrorToken(), Misuse, fmt.Sprintf(
					"Cannot %s array '%s', write its elements instead.",
					s.Kind.Lexeme, arg.ErrorToken().Lexeme,
				))
			}
		}
	default:
		panic(fmt.Sprintf("Unexpected statement type %T.", statement))
	}
}

func (a *Analyzer) expectType(expr ast.Expression, expected ast.Type, what string) {
	typ := a.analyzeExpression(expr)
	if typ != nil && !typ.Equals(expected) {
		a.analysisError(expr.ErrorToken(), TypeMismatch, fmt.Sprintf(
			"The %s must be of type '%s', got '%s'.", what, expected, typ,
		))
	}
}

// analyzeExpression returns the static type of expr, or nil when it cannot
// be determined because of an error already reported.
func (a *Analyzer) analyzeExpression(expr ast.Expression) ast.Type {
	switch e := expr.(type) {
	case *ast.Literal:
		return e.Type()
	case *ast.CharLiteral:
		return ast.Char
	case *ast.VariableExpression:
		sym := a.lookup(e.Identifier)
		if sym == nil {
			return nil
		}

		switch sym.Kind {
		case ProgramSymbol:
			a.analysisError(e.Identifier, Misuse, fmt.Sprintf(
				"Program name '%s' cannot be used as a value.", sym.Name,
			))
			return nil
		case FunctionSymbol:
			// Inside its own body the name stands for the result so far.
			if sym != a.function {
				a.analysisError(e.Identifier, Misuse, fmt.Sprintf(
					"Function '%s' must be called with parentheses.", sym.Name,
				))
				return nil
			}
		}
		return sym.Type
	case *ast.ArrayAccess:
		indexType := a.analyzeExpression(e.Index)
		if indexType != nil && !ast.Integer.Equals(indexType) {
			a.analysisError(e.Index.ErrorToken(), TypeMismatch, fmt.Sprintf(
				"Index into '%s' must be an integer, got '%s'.", e.Identifier.Lexeme, indexType,
			))
		}

		sym := a.lookup(e.Identifier)
		if sym == nil {
			return nil
		}
		if sym.Kind == FunctionSymbol || sym.Kind == ProgramSymbol {
			a.analysisError(e.Identifier, Misuse, fmt.Sprintf(
				"Cannot index %s '%s'.", sym.Kind, sym.Name,
			))
			return nil
		}

		if arr, ok := sym.Type.(*ast.ArrayType); ok {
			return arr.ElType
		} else if ast.String.Equals(sym.Type) {
			return ast.Char
		}

		a.analysisError(e.Identifier, TypeMismatch, fmt.Sprintf(
			"Cannot index '%s' of type '%s', only arrays and strings can be indexed.",
			sym.Name, sym.Type,
		))
		return nil
	case *ast.FunctionCall:
		argTypes := make([]ast.Type, len(e.Arguments))
		for i, arg := range e.Arguments {
			argTypes[i] = a.analyzeExpression(arg)
		}

		if e.IsLength() {
			if len(e.Arguments) != 1 {
				a.analysisError(e.Identifier, WrongArity, fmt.Sprintf(
					"Built-in 'length' takes exactly 1 argument, got %d.", len(e.Arguments),
				))
			} else if argTypes[0] != nil && !ast.IsTextual(argTypes[0]) {
				a.analysisError(e.Arguments[0].ErrorToken(), TypeMismatch, fmt.Sprintf(
					"Built-in 'length' expects a string or char, got '%s'.", argTypes[0],
				))
			}
			return ast.Integer
		}

		sym := a.lookup(e.Identifier)
		if sym == nil {
			return nil
		}
		if sym.Kind != FunctionSymbol {
			a.analysisError(e.Identifier, Misuse, fmt.Sprintf(
				"Cannot call '%s', it is a %s and not a function.", sym.Name, sym.Kind,
			))
			return nil
		}

		// Argument types are analysed but not matched against the parameters.
		if len(e.Arguments) != len(sym.Params) {
			a.analysisError(e.Identifier, WrongArity, fmt.Sprintf(
				"Function '%s' takes %d argument(s), got %d.",
				sym.Name, len(sym.Params), len(e.Arguments),
			))
		}
		return sym.Type
	case *ast.UnaryExpression:
		operand := a.analyzeExpression(e.Value)

		if e.Operator.Type == token.NOT {
			if operand != nil && !ast.Boolean.Equals(operand) {
				a.analysisError(e.Operator, TypeMismatch, fmt.Sprintf(
					"Operator 'not' expects a boolean, got '%s'.", operand,
				))
			}
			return ast.Boolean
		}

		if operand != nil && !ast.IsNumeric(operand) {
			a.analysisError(e.Operator, TypeMismatch, fmt.Sprintf(
				"Unary '-' expects an integer or real, got '%s'.", operand,
			))
			return nil
		}
		return operand
	case *ast.BinaryExpression:
		return a.analyzeBinary(e)
	}

	panic(fmt.Sprintf("Unexpected expression type %T.", expr))
}

func (a *Analyzer) analyzeBinary(e *ast.BinaryExpression) ast.Type {
	left := a.analyzeExpression(e.Left)
	right := a.analyzeExpression(e.Right)
	op := e.Operator

	mismatch := func(expected string) {
		a.analysisError(op, TypeMismatch, fmt.Sprintf(
			"Operator '%s' expects %s, got '%s' and '%s'.", op.Lexeme, expected, left, right,
		))
	}

	switch {
	case op.Type.IsRelationalOperator():
		if left != nil && right != nil {
			compatible := left.Equals(right) ||
				(ast.IsNumeric(left) && ast.IsNumeric(right)) ||
				(ast.IsTextual(left) && ast.IsTextual(right))
			if !compatible {
				mismatch("operands of compatible types")
			}
		}
		return ast.Boolean
	case op.Type == token.AND, op.Type == token.OR:
		if left != nil && right != nil && !(ast.Boolean.Equals(left) && ast.Boolean.Equals(right)) {
			mismatch("boolean operands")
		}
		return ast.Boolean
	case op.Type == token.DIV, op.Type == token.MOD:
		if left != nil && right != nil && !(ast.Integer.Equals(left) && ast.Integer.Equals(right)) {
			mismatch("integer operands")
		}
		return ast.Integer
	}

	if left == nil || right == nil {
		return nil
	}
	if !ast.IsNumeric(left) || !ast.IsNumeric(right) {
		mismatch("numeric operands")
		return nil
	}
	return ast.ArithmeticResult(left, right)
}
