// Package ewvm emits EWVM stack-machine assembly for a validated program.
//
// Globals are the cells pushed before START and are addressed with
// PUSHG/STOREG. Each function works on its own frame: arguments are copied
// into local slots 0..n-1 on entry and locals follow them. Results travel
// through one reserved global cell placed right after the globals.
package ewvm

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/kartiknair/pasc/pkg/ast"
	"github.com/kartiknair/pasc/pkg/diag"
	"github.com/kartiknair/pasc/pkg/token"
)

// Error means the program reached generation in a shape that cannot be
// emitted. Generation stops at the first one.
type Error struct {
	Pos     token.Pos
	Message string
}

func (e *Error) Error() string       { return e.Message }
func (e *Error) Kind() diag.Kind     { return diag.Generation }
func (e *Error) Position() token.Pos { return e.Pos }

type slot struct {
	index int
	typ   ast.Type
}

// frame maps names to slots, for the program body or for one function.
type frame struct {
	slots map[string]slot
	next  int
	local bool

	function *ast.FunctionDeclaration
}

func newFrame(local bool, function *ast.FunctionDeclaration) *frame {
	return &frame{
		slots:    make(map[string]slot),
		local:    local,
		function: function,
	}
}

func (f *frame) allocate(name string, typ ast.Type) slot {
	s := slot{index: f.next, typ: typ}
	f.slots[name] = s
	f.next++
	return s
}

type function struct {
	label string
	decl  *ast.FunctionDeclaration
}

type generator struct {
	code       []string
	labelCount int

	functions  map[string]*function
	frame      *frame
	returnSlot int
}

func genError(t token.Token, format string, args ...interface{}) {
	panic(&Error{Pos: t.Pos, Message: fmt.Sprintf(format, args...)})
}

func (g *generator) emit(format string, args ...interface{}) {
	g.code = append(g.code, fmt.Sprintf(format, args...))
}

func (g *generator) newLabel() string {
	label := fmt.Sprintf("L%d", g.labelCount)
	g.labelCount++
	return label
}

func (g *generator) placeLabel(label string) {
	g.emit("%s:", label)
}

func formatFloat(f float64) string {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

func quote(s string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)
	return `"` + replacer.Replace(s) + `"`
}

func charCode(s string) int {
	r, _ := utf8.DecodeRuneInString(s)
	return int(r)
}

// genInitializer pushes the initial cell of a variable, which becomes its slot.
func (g *generator) genInitializer(t ast.Type) {
	switch t := t.(type) {
	case *ast.ArrayType:
		g.emit("PUSHI %d", t.Len())
		g.emit("ALLOCN")
	case *ast.Primitive:
		switch t.Name {
		case "real":
			g.emit("PUSHF 0.0")
		case "string":
			g.emit(`PUSHS ""`)
		default:
			g.emit("PUSHI 0")
		}
	}
}

func (g *generator) genDeclarations(decls []ast.Declaration) {
	for _, decl := range decls {
		for _, name := range decl.Identifiers {
			g.frame.allocate(name.Lexeme, decl.Type)
			g.genInitializer(decl.Type)
		}
	}
}

func (g *generator) resolve(name token.Token) slot {
	if s, ok := g.frame.slots[name.Lexeme]; ok {
		return s
	}
	genError(name, "Unresolved name '%s' in code generation.", name.Lexeme)
	return slot{}
}

// isResult reports whether name refers to the result of the function being
// generated.
func (g *generator) isResult(name token.Token) bool {
	if _, ok := g.frame.slots[name.Lexeme]; ok {
		return false
	}
	return g.frame.function != nil && g.frame.function.Identifier.Lexeme == name.Lexeme
}

func (g *generator) push(s slot) {
	if g.frame.local {
		g.emit("PUSHL %d", s.index)
	} else {
		g.emit("PUSHG %d", s.index)
	}
}

func (g *generator) store(s slot) {
	if g.frame.local {
		g.emit("STOREL %d", s.index)
	} else {
		g.emit("STOREG %d", s.index)
	}
}

func (g *generator) lookupFunction(name token.Token) *function {
	if f, ok := g.functions[name.Lexeme]; ok {
		return f
	}
	genError(name, "Unresolved function '%s' in code generation.", name.Lexeme)
	return nil
}

// typeOf derives the static type of an expression from the generator's own
// tables.
func (g *generator) typeOf(expr ast.Expression) ast.Type {
	switch e := expr.(type) {
	case *ast.Literal:
		return e.Type()
	case *ast.CharLiteral:
		return ast.Char
	case *ast.VariableExpression:
		if g.isResult(e.Identifier) {
			return g.frame.function.ReturnType
		}
		return g.resolve(e.Identifier).typ
	case *ast.ArrayAccess:
		s := g.resolve(e.Identifier)
		if arr, ok := s.typ.(*ast.ArrayType); ok {
			return arr.ElType
		}
		return ast.Char
	case *ast.FunctionCall:
		if e.IsLength() {
			return ast.Integer
		}
		return g.lookupFunction(e.Identifier).decl.ReturnType
	case *ast.UnaryExpression:
		if e.Operator.Type == token.NOT {
			return ast.Boolean
		}
		return g.typeOf(e.Value)
	case *ast.BinaryExpression:
		return ast.BinaryResult(e.Operator.Type, g.typeOf(e.Left), g.typeOf(e.Right))
	}

	panic(fmt.Sprintf("Unexpected expression type %T.", expr))
}

// genValue evaluates expr as a value of type target, applying the
// integer to real and char to string coercions.
func (g *generator) genValue(expr ast.Expression, target ast.Type) {
	typ := g.typeOf(expr)

	if ast.String.Equals(target) && ast.Char.Equals(typ) {
		if c, ok := expr.(*ast.CharLiteral); ok {
			g.emit("PUSHS %s", quote(c.Value()))
			return
		}
		genError(expr.ErrorToken(), "Converting a char expression to a string is not supported by the target machine.")
	}

	g.genExpression(expr)
	if ast.Real.Equals(target) && ast.Integer.Equals(typ) {
		g.emit("ITOF")
	}
}

// genElementAddress pushes an array and its zero-based index.
func (g *generator) genElementAddress(access *ast.ArrayAccess, arr *ast.ArrayType, s slot) {
	g.push(s)
	g.genExpression(access.Index)
	if arr.Min != 0 {
		g.emit("PUSHI %d", arr.Min)
		g.emit("SUB")
	}
}

func (g *generator) genStatement(stmt ast.Statement) {
	switch s := stmt.(type) {
	case *ast.CompoundStatement:
		for _, stmt := range s.Statements {
			g.genStatement(stmt)
		}
	case *ast.EmptyStatement:
	case *ast.AssignStatement:
		g.genAssign(s)
	case *ast.IfStatement:
		elseLabel := g.newLabel()
		endLabel := g.newLabel()

		g.genExpression(s.Condition)
		g.emit("JZ %s", elseLabel)
		g.genStatement(s.Then)
		if s.Else != nil {
			g.emit("JUMP %s", endLabel)
		}
		g.placeLabel(elseLabel)
		if s.Else != nil {
			g.genStatement(s.Else)
			g.placeLabel(endLabel)
		}
	case *ast.WhileStatement:
		startLabel := g.newLabel()
		endLabel := g.newLabel()

		g.placeLabel(startLabel)
		g.genExpression(s.Condition)
		g.emit("JZ %s", endLabel)
		g.genStatement(s.Body)
		g.emit("JUMP %s", startLabel)
		g.placeLabel(endLabel)
	case *ast.ForStatement:
		g.genFor(s)
	case *ast.IOStatement:
		if s.IsRead() {
			for _, arg := range s.Arguments {
				g.genRead(arg)
			}
			return
		}

		for _, arg := range s.Arguments {
			g.genWrite(arg)
		}
		if s.Newline() {
			g.emit("WRITELN")
		}
	default:
		panic(fmt.Sprintf("Unexpected statement type %T.", stmt))
	}
}

func (g *generator) genAssign(s *ast.AssignStatement) {
	switch target := s.Target.(type) {
	case *ast.VariableExpression:
		if g.isResult(target.Identifier) {
			g.genValue(s.Value, g.frame.function.ReturnType)
			g.emit("STOREG %d", g.returnSlot)
			return
		}

		v := g.resolve(target.Identifier)
		g.genValue(s.Value, v.typ)
		g.store(v)
	case *ast.ArrayAccess:
		v := g.resolve(target.Identifier)
		arr, ok := v.typ.(*ast.ArrayType)
		if !ok {
			genError(target.Identifier, "Strings are immutable, cannot assign to an element of '%s'.", target.Identifier.Lexeme)
		}

		g.genElementAddress(target, arr, v)
		g.genValue(s.Value, arr.ElType)
		g.emit("STOREN")
	default:
		panic(fmt.Sprintf("Unexpected assignment target %T.", s.Target))
	}
}

func (g *generator) genFor(s *ast.ForStatement) {
	counter := g.resolve(s.Counter)
	startLabel := g.newLabel()
	endLabel := g.newLabel()

	compare, step := "INFEQ", "ADD"
	if s.Downto {
		compare, step = "SUPEQ", "SUB"
	}

	g.genExpression(s.Start)
	g.store(counter)

	g.placeLabel(startLabel)
	g.push(counter)
	g.genExpression(s.End)
	g.emit("%s", compare)
	g.emit("JZ %s", endLabel)

	g.genStatement(s.Body)

	g.push(counter)
	g.emit("PUSHI 1")
	g.emit("%s", step)
	g.store(counter)
	g.emit("JUMP %s", startLabel)
	g.placeLabel(endLabel)
}

func (g *generator) genWrite(arg ast.Expression) {
	typ := g.typeOf(arg)
	g.genExpression(arg)

	switch {
	case ast.Real.Equals(typ):
		g.emit("WRITEF")
	case ast.String.Equals(typ):
		g.emit("WRITES")
	case ast.Char.Equals(typ):
		g.emit("WRITECHR")
	default:
		g.emit("WRITEI")
	}
}

// convertInput turns the string left by READ into a value of type t.
func (g *generator) convertInput(t ast.Type) {
	switch {
	case ast.Integer.Equals(t), ast.Boolean.Equals(t):
		g.emit("ATOI")
	case ast.Real.Equals(t):
		g.emit("ATOF")
	case ast.Char.Equals(t):
		g.emit("PUSHI 0")
		g.emit("CHARAT")
	}
}

func (g *generator) genRead(arg ast.Expression) {
	switch target := arg.(type) {
	case *ast.VariableExpression:
		v := g.resolve(target.Identifier)
		g.emit("READ")
		g.convertInput(v.typ)
		g.store(v)
	case *ast.ArrayAccess:
		v := g.resolve(target.Identifier)
		arr, ok := v.typ.(*ast.ArrayType)
		if !ok {
			genError(target.Identifier, "Strings are immutable, cannot read into an element of '%s'.", target.Identifier.Lexeme)
		}

		g.genElementAddress(target, arr, v)
		g.emit("READ")
		g.convertInput(arr.ElType)
		g.emit("STOREN")
	default:
		genError(arg.ErrorToken(), "Cannot read into an expression.")
	}
}

var integerOps = map[token.TokenType]string{
	token.PLUS:          "ADD",
	token.MINUS:         "SUB",
	token.STAR:          "MUL",
	token.SLASH:         "DIV",
	token.DIV:           "DIV",
	token.MOD:           "MOD",
	token.AND:           "AND",
	token.OR:            "OR",
	token.EQUAL:         "EQUAL",
	token.LESSER:        "INF",
	token.LESSER_EQUAL:  "INFEQ",
	token.GREATER:       "SUP",
	token.GREATER_EQUAL: "SUPEQ",
}

var floatOps = map[token.TokenType]string{
	token.PLUS:          "FADD",
	token.MINUS:         "FSUB",
	token.STAR:          "FMUL",
	token.SLASH:         "FDIV",
	token.EQUAL:         "EQUAL",
	token.LESSER:        "FINF",
	token.LESSER_EQUAL:  "FINFEQ",
	token.GREATER:       "FSUP",
	token.GREATER_EQUAL: "FSUPEQ",
}

// genOperand evaluates one side of a binary expression. Integers are
// widened when the operation is done on reals; a char literal compared to
// a string is pushed as a string.
func (g *generator) genOperand(expr ast.Expression, useFloat bool, other ast.Type) {
	typ := g.typeOf(expr)

	if ast.Char.Equals(typ) && ast.String.Equals(other) {
		g.genValue(expr, ast.String)
		return
	}

	g.genExpression(expr)
	if useFloat && ast.Integer.Equals(typ) {
		g.emit("ITOF")
	}
}

// isCharExpression reports a char operand that is not a literal, compared
// against a string. The machine cannot turn it into a string.
func (g *generator) isCharExpression(expr ast.Expression, other ast.Type) bool {
	if _, ok := expr.(*ast.CharLiteral); ok {
		return false
	}
	return ast.Char.Equals(g.typeOf(expr)) && ast.String.Equals(other)
}

// genTextKey pushes an integer that orders a char against a string the way
// their text does. A char c maps to 2c. A string maps to 2*s[0], plus 1 when
// it is longer than one character, or to -1 when it is empty.
func (g *generator) genTextKey(expr ast.Expression, typ ast.Type) {
	g.genExpression(expr)
	if ast.Char.Equals(typ) {
		g.emit("PUSHI 2")
		g.emit("MUL")
		return
	}

	emptyLabel := g.newLabel()
	endLabel := g.newLabel()

	g.emit("DUP 1")
	g.emit("STRLEN")
	g.emit("DUP 1")
	g.emit("JZ %s", emptyLabel)
	g.emit("PUSHI 1")
	g.emit("SUP")
	g.emit("SWAP")
	g.emit("PUSHI 0")
	g.emit("CHARAT")
	g.emit("PUSHI 2")
	g.emit("MUL")
	g.emit("ADD")
	g.emit("JUMP %s", endLabel)
	g.placeLabel(emptyLabel)
	g.emit("POP 2")
	g.emit("PUSHI -1")
	g.placeLabel(endLabel)
}

func (g *generator) genBinary(e *ast.BinaryExpression) {
	op := e.Operator.Type
	left := g.typeOf(e.Left)
	right := g.typeOf(e.Right)

	useFloat := false
	switch op {
	case token.PLUS, token.MINUS, token.STAR, token.SLASH,
		token.EQUAL, token.NOT_EQUAL, token.LESSER, token.LESSER_EQUAL, token.GREATER, token.GREATER_EQUAL:
		useFloat = ast.Real.Equals(left) || ast.Real.Equals(right)
	}

	if op.IsRelationalOperator() && (g.isCharExpression(e.Left, right) || g.isCharExpression(e.Right, left)) {
		g.genTextKey(e.Left, left)
		g.genTextKey(e.Right, right)
	} else {
		g.genOperand(e.Left, useFloat, right)
		g.genOperand(e.Right, useFloat, left)
	}

	if op == token.NOT_EQUAL {
		g.emit("EQUAL")
		g.emit("NOT")
		return
	}

	ops := integerOps
	if useFloat {
		ops = floatOps
	}
	instr, ok := ops[op]
	if !ok {
		genError(e.Operator, "Operator '%s' has no instruction.", e.Operator.Lexeme)
	}
	g.emit("%s", instr)
}

// genLength folds `length` over literals and chars, and falls back to STRLEN.
func (g *generator) genLength(call *ast.FunctionCall) {
	if len(call.Arguments) != 1 {
		genError(call.Identifier, "Built-in 'length' takes exactly 1 argument.")
	}
	arg := call.Arguments[0]

	switch a := arg.(type) {
	case *ast.Literal:
		if s, ok := a.Token.Value.(string); ok && a.Token.Type == token.STRING {
			g.emit("PUSHI %d", utf8.RuneCountInString(s))
			return
		}
	case *ast.CharLiteral:
		g.emit("PUSHI 1")
		return
	}

	if ast.Char.Equals(g.typeOf(arg)) {
		g.genExpression(arg)
		g.emit("POP 1")
		g.emit("PUSHI 1")
		return
	}

	g.genExpression(arg)
	g.emit("STRLEN")
}

func (g *generator) genCall(call *ast.FunctionCall) {
	if call.IsLength() {
		g.genLength(call)
		return
	}

	f := g.lookupFunction(call.Identifier)
	params := f.decl.ParamTypes()
	for i, arg := range call.Arguments {
		if i < len(params) && params[i] != nil {
			g.genValue(arg, params[i])
		} else {
			g.genExpression(arg)
		}
	}

	g.emit("PUSHA %s", f.label)
	g.emit("CALL")
	if len(call.Arguments) > 0 {
		g.emit("POP %d", len(call.Arguments))
	}
	g.emit("PUSHG %d", g.returnSlot)
}

// genExpression leaves exactly one value on the stack.
func (g *generator) genExpression(expr ast.Expression) {
	switch e := expr.(type) {
	case *ast.Literal:
		switch e.Token.Type {
		case token.INTEGER:
			g.emit("PUSHI %d", e.Token.Value.(int64))
		case token.REAL:
			g.emit("PUSHF %s", formatFloat(e.Token.Value.(float64)))
		case token.STRING:
			g.emit("PUSHS %s", quote(e.Token.Value.(string)))
		case token.TRUE:
			g.emit("PUSHI 1")
		case token.FALSE:
			g.emit("PUSHI 0")
		}
	case *ast.CharLiteral:
		g.emit("PUSHI %d", charCode(e.Value()))
	case *ast.VariableExpression:
		if g.isResult(e.Identifier) {
			g.emit("PUSHG %d", g.returnSlot)
			return
		}
		g.push(g.resolve(e.Identifier))
	case *ast.ArrayAccess:
		v := g.resolve(e.Identifier)
		if arr, ok := v.typ.(*ast.ArrayType); ok {
			g.genElementAddress(e, arr, v)
			g.emit("LOADN")
			return
		}

		// Strings are indexed from 1.
		g.push(v)
		g.genExpression(e.Index)
		g.emit("PUSHI 1")
		g.emit("SUB")
		g.emit("CHARAT")
	case *ast.FunctionCall:
		g.genCall(e)
	case *ast.UnaryExpression:
		if e.Operator.Type == token.NOT {
			g.genExpression(e.Value)
			g.emit("NOT")
			return
		}

		if ast.Real.Equals(g.typeOf(e.Value)) {
			g.emit("PUSHF 0.0")
			g.genExpression(e.Value)
			g.emit("FSUB")
		} else {
			g.emit("PUSHI 0")
			g.genExpression(e.Value)
			g.emit("SUB")
		}
	case *ast.BinaryExpression:
		g.genBinary(e)
	default:
		panic(fmt.Sprintf("Unexpected expression type %T.", expr))
	}
}

func (g *generator) genFunction(f *ast.FunctionDeclaration) {
	g.frame = newFrame(true, f)

	g.emit("// function %s", f.Identifier.Lexeme)
	g.placeLabel(g.functions[f.Identifier.Lexeme].label)

	names := f.ParamNames()
	types := f.ParamTypes()
	for i, name := range names {
		g.frame.allocate(name.Lexeme, types[i])
		// Arguments sit just below the frame pointer.
		g.emit("PUSHL %d", i-len(names))
	}

	g.genDeclarations(f.Block.Declarations)
	g.genStatement(f.Block.Body)

	if g.frame.next > 0 {
		g.emit("POP %d", g.frame.next)
	}
	g.emit("RETURN")
}

func (g *generator) genProgram(program *ast.Program) {
	g.functions = make(map[string]*function)
	for _, f := range program.Functions {
		g.functions[f.Identifier.Lexeme] = &function{
			label: "FUNC_" + f.Identifier.Lexeme,
			decl:  f,
		}
	}

	g.emit("// program %s", program.Name.Lexeme)

	g.frame = newFrame(false, nil)
	g.genDeclarations(program.Block.Declarations)

	g.returnSlot = g.frame.next
	if len(program.Functions) > 0 {
		g.emit("PUSHI 0")
	}

	g.emit("START")
	g.genStatement(program.Block.Body)
	g.emit("STOP")

	globals := g.frame
	for _, f := range program.Functions {
		g.genFunction(f)
	}
	g.frame = globals
}

// Gen emits the instruction lines for a program that passed semantic
// analysis. Lines starting with `//` are comments.
func Gen(program *ast.Program) (code []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			genErr, ok := r.(*Error)
			if !ok {
				panic(r)
			}
			code = nil
			err = genErr
		}
	}()

	g := generator{}
	g.genProgram(program)
	return g.code, nil
}
