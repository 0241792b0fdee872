// Package llvmgen lowers a validated program to textual LLVM IR.
//
// The program body becomes `i32 @main()`, every function a private
// `@pas.<name>`. Variables live in allocas (or private globals for the
// program's own variables) and are loaded and stored explicitly. Console I/O
// goes through the C library.
package llvmgen

import (
	"fmt"
	"unicode/utf8"

	"github.com/kartiknair/pasc/pkg/ast"
	"github.com/kartiknair/pasc/pkg/diag"
	"github.com/kartiknair/pasc/pkg/token"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"
)

// Size of the buffer allocated for every string read from the console.
const readBufferSize = 256

type Error struct {
	Pos     token.Pos
	Message string
}

func (e *Error) Error() string       { return e.Message }
func (e *Error) Kind() diag.Kind     { return diag.Generation }
func (e *Error) Position() token.Pos { return e.Pos }

func genError(t token.Token, format string, args ...interface{}) {
	panic(&Error{Pos: t.Pos, Message: fmt.Sprintf(format, args...)})
}

type variable struct {
	ptr value.Value
	typ ast.Type
}

type function struct {
	fn   *ir.Func
	decl *ast.FunctionDeclaration
}

// runtime holds the C library functions the generated code calls.
type runtime struct {
	printf  *ir.Func
	scanf   *ir.Func
	putchar *ir.Func
	strlen  *ir.Func
	strcmp  *ir.Func
	malloc  *ir.Func
	exit    *ir.Func
}

type generator struct {
	module  *ir.Module
	rt      runtime
	strings map[string]constant.Constant

	functions map[string]*function
	scope     map[string]*variable

	fn      *ir.Func
	entry   *ir.Block
	block   *ir.Block
	current *ast.FunctionDeclaration
	result  value.Value
}

func newGenerator() *generator {
	m := ir.NewModule()

	g := &generator{
		module:    m,
		strings:   make(map[string]constant.Constant),
		functions: make(map[string]*function),
	}

	g.rt.printf = m.NewFunc("printf", types.I32, ir.NewParam("", types.I8Ptr))
	g.rt.printf.Sig.Variadic = true
	g.rt.scanf = m.NewFunc("scanf", types.I32, ir.NewParam("", types.I8Ptr))
	g.rt.scanf.Sig.Variadic = true
	g.rt.putchar = m.NewFunc("putchar", types.I32, ir.NewParam("", types.I32))
	g.rt.strlen = m.NewFunc("strlen", types.I64, ir.NewParam("", types.I8Ptr))
	g.rt.strcmp = m.NewFunc("strcmp", types.I32, ir.NewParam("", types.I8Ptr), ir.NewParam("", types.I8Ptr))
	g.rt.malloc = m.NewFunc("malloc", types.I8Ptr, ir.NewParam("", types.I64))
	g.rt.exit = m.NewFunc("exit", types.Void, ir.NewParam("", types.I32))

	return g
}

func genType(t ast.Type) types.Type {
	switch t := t.(type) {
	case *ast.ArrayType:
		return types.NewArray(uint64(t.Len()), genType(t.ElType))
	case *ast.Primitive:
		switch t.Name {
		case "integer":
			return types.I64
		case "real":
			return types.Double
		case "boolean":
			return types.I1
		case "char":
			return types.I8
		case "string":
			return types.I8Ptr
		}
	}

	panic(fmt.Sprintf("Unexpected type %v.", t))
}

func i64(v int64) constant.Constant {
	return constant.NewInt(types.I64, v)
}

func i32(v int64) constant.Constant {
	return constant.NewInt(types.I32, v)
}

// stringConstant returns a pointer to a private, NUL terminated copy of raw.
// Equal strings share one global.
func (g *generator) stringConstant(raw string) constant.Constant {
	if c, ok := g.strings[raw]; ok {
		return c
	}

	data := raw + "\x00"
	def := g.module.NewGlobalDef("", constant.NewCharArrayFromString(data))
	def.Linkage = enum.LinkagePrivate
	def.Immutable = true

	c := constant.NewGetElementPtr(types.NewArray(uint64(len(data)), types.I8), def, i32(0), i32(0))
	g.strings[raw] = c
	return c
}

func (g *generator) charConstant(c *ast.CharLiteral) constant.Constant {
	r, _ := utf8.DecodeRuneInString(c.Value())
	if r >= utf8.RuneSelf {
		genError(c.Token, "Character %s is not ASCII.", c.Token.Lexeme)
	}
	return constant.NewInt(types.I8, int64(r))
}

// zeroValue is the value a variable of type t starts with.
func (g *generator) zeroValue(t ast.Type) constant.Constant {
	switch t := t.(type) {
	case *ast.ArrayType:
		if !ast.String.Equals(t.ElType) {
			return constant.NewZeroInitializer(genType(t))
		}
		elems := make([]constant.Constant, t.Len())
		for i := range elems {
			elems[i] = g.stringConstant("")
		}
		return constant.NewArray(genType(t).(*types.ArrayType), elems...)
	case *ast.Primitive:
		switch t.Name {
		case "real":
			return constant.NewFloat(types.Double, 0)
		case "string":
			return g.stringConstant("")
		case "boolean":
			return constant.False
		}
	}

	return constant.NewInt(genType(t).(*types.IntType), 0)
}

func (g *generator) resolve(name token.Token) *variable {
	if v, ok := g.scope[name.Lexeme]; ok {
		return v
	}
	genError(name, "Unresolved name '%s' in code generation.", name.Lexeme)
	return nil
}

func (g *generator) isResult(name token.Token) bool {
	if _, ok := g.scope[name.Lexeme]; ok {
		return false
	}
	return g.current != nil && g.current.Identifier.Lexeme == name.Lexeme
}

func (g *generator) lookupFunction(name token.Token) *function {
	if f, ok := g.functions[name.Lexeme]; ok {
		return f
	}
	genError(name, "Unresolved function '%s' in code generation.", name.Lexeme)
	return nil
}

func (g *generator) typeOf(expr ast.Expression) ast.Type {
	switch e := expr.(type) {
	case *ast.Literal:
		return e.Type()
	case *ast.CharLiteral:
		return ast.Char
	case *ast.VariableExpression:
		if g.isResult(e.Identifier) {
			return g.current.ReturnType
		}
		return g.resolve(e.Identifier).typ
	case *ast.ArrayAccess:
		if arr, ok := g.resolve(e.Identifier).typ.(*ast.ArrayType); ok {
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

func assignable(value, target ast.Type) bool {
	return value.Equals(target) ||
		ast.Integer.Equals(value) && ast.Real.Equals(target) ||
		ast.Char.Equals(value) && ast.String.Equals(target)
}

// charToString copies a char into a fresh two byte string.
func (g *generator) charToString(c value.Value) value.Value {
	buf := g.block.NewCall(g.rt.malloc, i64(2))
	g.block.NewStore(c, buf)
	end := g.block.NewGetElementPtr(types.I8, buf, i64(1))
	g.block.NewStore(constant.NewInt(types.I8, 0), end)
	return buf
}

// genValue evaluates expr converted to target.
func (g *generator) genValue(expr ast.Expression, target ast.Type) value.Value {
	typ := g.typeOf(expr)

	if ast.String.Equals(target) && ast.Char.Equals(typ) {
		if c, ok := expr.(*ast.CharLiteral); ok {
			return g.stringConstant(c.Value())
		}
		return g.charToString(g.genExpression(expr))
	}

	v := g.genExpression(expr)
	if ast.Real.Equals(target) && ast.Integer.Equals(typ) {
		return g.block.NewSIToFP(v, types.Double)
	}
	return v
}

func (g *generator) branchTo(target *ir.Block) {
	if g.block.Term == nil {
		g.block.NewBr(target)
	}
}

// checkBounds stops the program when index falls outside arr.
func (g *generator) checkBounds(index value.Value, arr *ast.ArrayType, at token.Token) {
	below := g.block.NewICmp(enum.IPredSLT, index, i64(arr.Min))
	above := g.block.NewICmp(enum.IPredSGT, index, i64(arr.Max))
	outside := g.block.NewOr(below, above)

	failBlock := g.fn.NewBlock("")
	afterBlock := g.fn.NewBlock("")
	g.block.NewCondBr(outside, failBlock, afterBlock)

	message := fmt.Sprintf("runtime-error: %s: index out of bounds for '%s'\n", at.Pos, at.Lexeme)
	failBlock.NewCall(g.rt.printf, g.stringConstant(message))
	failBlock.NewCall(g.rt.exit, i32(1))
	failBlock.NewUnreachable()

	g.block = afterBlock
}

func (g *generator) genElementPtr(access *ast.ArrayAccess, arr *ast.ArrayType, v *variable) value.Value {
	index := g.genExpression(access.Index)
	g.checkBounds(index, arr, access.Identifier)

	offset := index
	if arr.Min != 0 {
		offset = g.block.NewSub(index, i64(arr.Min))
	}
	return g.block.NewGetElementPtr(genType(arr), v.ptr, i64(0), offset)
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
		condition := g.genExpression(s.Condition)

		thenBlock := g.fn.NewBlock("")
		var elseBlock *ir.Block
		if s.Else != nil {
			elseBlock = g.fn.NewBlock("")
		}
		afterBlock := g.fn.NewBlock("")

		if elseBlock != nil {
			g.block.NewCondBr(condition, thenBlock, elseBlock)
		} else {
			g.block.NewCondBr(condition, thenBlock, afterBlock)
		}

		g.block = thenBlock
		g.genStatement(s.Then)
		g.branchTo(afterBlock)

		if elseBlock != nil {
			g.block = elseBlock
			g.genStatement(s.Else)
			g.branchTo(afterBlock)
		}

		g.block = afterBlock
	case *ast.WhileStatement:
		conditionBlock := g.fn.NewBlock("")
		loopBlock := g.fn.NewBlock("")
		afterBlock := g.fn.NewBlock("")

		g.branchTo(conditionBlock)
		g.block = conditionBlock
		condition := g.genExpression(s.Condition)
		g.block.NewCondBr(condition, loopBlock, afterBlock)

		g.block = loopBlock
		g.genStatement(s.Body)
		g.branchTo(conditionBlock)

		g.block = afterBlock
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
			g.block.NewCall(g.rt.putchar, i32('\n'))
		}
	default:
		panic(fmt.Sprintf("Unexpected statement type %T.", stmt))
	}
}

func (g *generator) genAssign(s *ast.AssignStatement) {
	switch target := s.Target.(type) {
	case *ast.VariableExpression:
		if g.isResult(target.Identifier) {
			g.block.NewStore(g.genValue(s.Value, g.current.ReturnType), g.result)
			return
		}

		v := g.resolve(target.Identifier)
		g.block.NewStore(g.genValue(s.Value, v.typ), v.ptr)
	case *ast.ArrayAccess:
		v := g.resolve(target.Identifier)
		arr, ok := v.typ.(*ast.ArrayType)
		if !ok {
			genError(target.Identifier, "Strings are immutable, cannot assign to an element of '%s'.", target.Identifier.Lexeme)
		}

		ptr := g.genElementPtr(target, arr, v)
		g.block.NewStore(g.genValue(s.Value, arr.ElType), ptr)
	default:
		panic(fmt.Sprintf("Unexpected assignment target %T.", s.Target))
	}
}

func (g *generator) genFor(s *ast.ForStatement) {
	counter := g.resolve(s.Counter)

	compare := enum.IPredSLE
	if s.Downto {
		compare = enum.IPredSGE
	}

	g.block.NewStore(g.genExpression(s.Start), counter.ptr)

	conditionBlock := g.fn.NewBlock("")
	loopBlock := g.fn.NewBlock("")
	afterBlock := g.fn.NewBlock("")

	g.branchTo(conditionBlock)
	g.block = conditionBlock
	current := g.block.NewLoad(types.I64, counter.ptr)
	end := g.genExpression(s.End)
	g.block.NewCondBr(g.block.NewICmp(compare, current, end), loopBlock, afterBlock)

	g.block = loopBlock
	g.genStatement(s.Body)

	current = g.block.NewLoad(types.I64, counter.ptr)
	if s.Downto {
		g.block.NewStore(g.block.NewSub(current, i64(1)), counter.ptr)
	} else {
		g.block.NewStore(g.block.NewAdd(current, i64(1)), counter.ptr)
	}
	g.branchTo(conditionBlock)

	g.block = afterBlock
}

func (g *generator) callPrintf(format string, args ...value.Value) {
	g.block.NewCall(g.rt.printf, append([]value.Value{g.stringConstant(format)}, args...)...)
}

func (g *generator) callScanf(format string, args ...value.Value) {
	g.block.NewCall(g.rt.scanf, append([]value.Value{g.stringConstant(format)}, args...)...)
}

func (g *generator) genWrite(arg ast.Expression) {
	typ := g.typeOf(arg)
	v := g.genExpression(arg)

	switch {
	case ast.Real.Equals(typ):
		g.callPrintf("%g", v)
	case ast.String.Equals(typ):
		g.callPrintf("%s", v)
	case ast.Char.Equals(typ):
		g.callPrintf("%c", g.block.NewZExt(v, types.I32))
	case ast.Boolean.Equals(typ):
		g.callPrintf("%lld", g.block.NewZExt(v, types.I64))
	default:
		g.callPrintf("%lld", v)
	}
}

// readTarget returns the address a read stores into and its type.
func (g *generator) readTarget(arg ast.Expression) (value.Value, ast.Type) {
	switch target := arg.(type) {
	case *ast.VariableExpression:
		if g.isResult(target.Identifier) {
			return g.result, g.current.ReturnType
		}
		v := g.resolve(target.Identifier)
		return v.ptr, v.typ
	case *ast.ArrayAccess:
		v := g.resolve(target.Identifier)
		arr, ok := v.typ.(*ast.ArrayType)
		if !ok {
			genError(target.Identifier, "Strings are immutable, cannot read into an element of '%s'.", target.Identifier.Lexeme)
		}
		return g.genElementPtr(target, arr, v), arr.ElType
	}

	genError(arg.ErrorToken(), "Cannot read into an expression.")
	return nil, nil
}

func (g *generator) genRead(arg ast.Expression) {
	ptr, typ := g.readTarget(arg)

	switch {
	case ast.Integer.Equals(typ):
		g.callScanf("%lld", ptr)
	case ast.Real.Equals(typ):
		g.callScanf("%lf", ptr)
	case ast.Char.Equals(typ):
		g.callScanf(" %c", ptr)
	case ast.String.Equals(typ):
		buf := g.block.NewCall(g.rt.malloc, i64(readBufferSize))
		g.callScanf(fmt.Sprintf("%%%ds", readBufferSize-1), buf)
		g.block.NewStore(buf, ptr)
	case ast.Boolean.Equals(typ):
		tmp := g.entry.NewAlloca(types.I64)
		g.callScanf("%lld", tmp)
		number := g.block.NewLoad(types.I64, tmp)
		g.block.NewStore(g.block.NewICmp(enum.IPredNE, number, i64(0)), ptr)
	default:
		genError(arg.ErrorToken(), "Cannot read a value of type '%s'.", typ)
	}
}

var signedPredicates = map[token.TokenType]enum.IPred{
	token.EQUAL:         enum.IPredEQ,
	token.NOT_EQUAL:     enum.IPredNE,
	token.LESSER:        enum.IPredSLT,
	token.LESSER_EQUAL:  enum.IPredSLE,
	token.GREATER:       enum.IPredSGT,
	token.GREATER_EQUAL: enum.IPredSGE,
}

// Chars and booleans compare unsigned.
var unsignedPredicates = map[token.TokenType]enum.IPred{
	token.EQUAL:         enum.IPredEQ,
	token.NOT_EQUAL:     enum.IPredNE,
	token.LESSER:        enum.IPredULT,
	token.LESSER_EQUAL:  enum.IPredULE,
	token.GREATER:       enum.IPredUGT,
	token.GREATER_EQUAL: enum.IPredUGE,
}

var floatPredicates = map[token.TokenType]enum.FPred{
	token.EQUAL:         enum.FPredOEQ,
	token.NOT_EQUAL:     enum.FPredONE,
	token.LESSER:        enum.FPredOLT,
	token.LESSER_EQUAL:  enum.FPredOLE,
	token.GREATER:       enum.FPredOGT,
	token.GREATER_EQUAL: enum.FPredOGE,
}

func (g *generator) genOperand(expr ast.Expression, useFloat bool) value.Value {
	v := g.genExpression(expr)
	if useFloat && ast.Integer.Equals(g.typeOf(expr)) {
		return g.block.NewSIToFP(v, types.Double)
	}
	return v
}

func (g *generator) genBinary(e *ast.BinaryExpression) value.Value {
	op := e.Operator.Type
	left := g.typeOf(e.Left)
	right := g.typeOf(e.Right)

	if ast.IsArray(left) || ast.IsArray(right) {
		genError(e.Operator, "Arrays cannot be compared, compare their elements instead.")
	}

	// Strings compare through strcmp; a char on either side is promoted.
	if op.IsRelationalOperator() && ast.IsTextual(left) && ast.IsTextual(right) &&
		(ast.String.Equals(left) || ast.String.Equals(right)) {
		l := g.genValue(e.Left, ast.String)
		r := g.genValue(e.Right, ast.String)
		cmp := g.block.NewCall(g.rt.strcmp, l, r)
		return g.block.NewICmp(signedPredicates[op], cmp, i32(0))
	}

	useFloat := false
	switch op {
	case token.PLUS, token.MINUS, token.STAR, token.SLASH,
		token.EQUAL, token.NOT_EQUAL, token.LESSER, token.LESSER_EQUAL, token.GREATER, token.GREATER_EQUAL:
		useFloat = ast.Real.Equals(left) || ast.Real.Equals(right)
	}

	l := g.genOperand(e.Left, useFloat)
	r := g.genOperand(e.Right, useFloat)

	if op.IsRelationalOperator() {
		switch {
		case useFloat:
			return g.block.NewFCmp(floatPredicates[op], l, r)
		case ast.Integer.Equals(left):
			return g.block.NewICmp(signedPredicates[op], l, r)
		default:
			return g.block.NewICmp(unsignedPredicates[op], l, r)
		}
	}

	switch op {
	case token.PLUS:
		if useFloat {
			return g.block.NewFAdd(l, r)
		}
		return g.block.NewAdd(l, r)
	case token.MINUS:
		if useFloat {
			return g.block.NewFSub(l, r)
		}
		return g.block.NewSub(l, r)
	case token.STAR:
		if useFloat {
			return g.block.NewFMul(l, r)
		}
		return g.block.NewMul(l, r)
	case token.SLASH:
		if useFloat {
			return g.block.NewFDiv(l, r)
		}
		return g.block.NewSDiv(l, r)
	case token.DIV:
		return g.block.NewSDiv(l, r)
	case token.MOD:
		return g.block.NewSRem(l, r)
	case token.AND:
		return g.block.NewAnd(l, r)
	case token.OR:
		return g.block.NewOr(l, r)
	}

	genError(e.Operator, "Operator '%s' has no instruction.", e.Operator.Lexeme)
	return nil
}

func (g *generator) genLength(call *ast.FunctionCall) value.Value {
	if len(call.Arguments) != 1 {
		genError(call.Identifier, "Built-in 'length' takes exactly 1 argument.")
	}
	arg := call.Arguments[0]

	switch a := arg.(type) {
	case *ast.Literal:
		if s, ok := a.Token.Value.(string); ok && a.Token.Type == token.STRING {
			return i64(int64(utf8.RuneCountInString(s)))
		}
	case *ast.CharLiteral:
		return i64(1)
	}

	v := g.genExpression(arg)
	if ast.Char.Equals(g.typeOf(arg)) {
		return i64(1)
	}
	return g.block.NewCall(g.rt.strlen, v)
}

func (g *generator) genCall(call *ast.FunctionCall) value.Value {
	if call.IsLength() {
		return g.genLength(call)
	}

	f := g.lookupFunction(call.Identifier)
	params := f.decl.ParamTypes()
	if len(call.Arguments) != len(params) {
		genError(call.Identifier, "Function '%s' expects %d argument(s), got %d.",
			call.Identifier.Lexeme, len(params), len(call.Arguments))
	}

	args := []value.Value{}
	for i, arg := range call.Arguments {
		if typ := g.typeOf(arg); !assignable(typ, params[i]) {
			genError(arg.ErrorToken(), "Argument %d of '%s' has type '%s', expected '%s'.",
				i+1, call.Identifier.Lexeme, typ, params[i])
		}
		args = append(args, g.genValue(arg, params[i]))
	}

	return g.block.NewCall(f.fn, args...)
}

func (g *generator) genExpression(expr ast.Expression) value.Value {
	switch e := expr.(type) {
	case *ast.Literal:
		switch e.Token.Type {
		case token.INTEGER:
			return i64(e.Token.Value.(int64))
		case token.REAL:
			return constant.NewFloat(types.Double, e.Token.Value.(float64))
		case token.STRING:
			return g.stringConstant(e.Token.Value.(string))
		case token.TRUE:
			return constant.True
		case token.FALSE:
			return constant.False
		}
	case *ast.CharLiteral:
		return g.charConstant(e)
	case *ast.VariableExpression:
		if g.isResult(e.Identifier) {
			return g.block.NewLoad(genType(g.current.ReturnType), g.result)
		}
		v := g.resolve(e.Identifier)
		return g.block.NewLoad(genType(v.typ), v.ptr)
	case *ast.ArrayAccess:
		v := g.resolve(e.Identifier)
		if arr, ok := v.typ.(*ast.ArrayType); ok {
			ptr := g.genElementPtr(e, arr, v)
			return g.block.NewLoad(genType(arr.ElType), ptr)
		}

		// Strings are indexed from 1.
		str := g.block.NewLoad(types.I8Ptr, v.ptr)
		index := g.block.NewSub(g.genExpression(e.Index), i64(1))
		return g.block.NewLoad(types.I8, g.block.NewGetElementPtr(types.I8, str, index))
	case *ast.FunctionCall:
		return g.genCall(e)
	case *ast.UnaryExpression:
		v := g.genExpression(e.Value)
		switch {
		case e.Operator.Type == token.NOT:
			return g.block.NewXor(v, constant.True)
		case ast.Real.Equals(g.typeOf(e.Value)):
			return g.block.NewFSub(constant.NewFloat(types.Double, 0), v)
		default:
			return g.block.NewSub(i64(0), v)
		}
	case *ast.BinaryExpression:
		return g.genBinary(e)
	}

	panic(fmt.Sprintf("Unexpected expression type %T.", expr))
}

// enter starts generating the body of fn.
func (g *generator) enter(fn *ir.Func, decl *ast.FunctionDeclaration) {
	g.fn = fn
	g.entry = fn.NewBlock("")
	g.block = g.entry
	g.current = decl
	g.scope = make(map[string]*variable)
}

func (g *generator) genLocals(decls []ast.Declaration) {
	for _, decl := range decls {
		for _, name := range decl.Identifiers {
			ptr := g.entry.NewAlloca(genType(decl.Type))
			g.entry.NewStore(g.zeroValue(decl.Type), ptr)
			g.scope[name.Lexeme] = &variable{ptr: ptr, typ: decl.Type}
		}
	}
}

func (g *generator) declareFunction(decl *ast.FunctionDeclaration) {
	paramTypes := decl.ParamTypes()
	params := []*ir.Param{}
	for i, name := range decl.ParamNames() {
		params = append(params, ir.NewParam(name.Lexeme, genType(paramTypes[i])))
	}

	fn := g.module.NewFunc("pas."+decl.Identifier.Lexeme, genType(decl.ReturnType), params...)
	fn.Linkage = enum.LinkagePrivate

	g.functions[decl.Identifier.Lexeme] = &function{fn: fn, decl: decl}
}

func (g *generator) genFunction(decl *ast.FunctionDeclaration) {
	f := g.functions[decl.Identifier.Lexeme]
	g.enter(f.fn, decl)

	paramTypes := decl.ParamTypes()
	for i, name := range decl.ParamNames() {
		param := f.fn.Params[i]
		ptr := g.entry.NewAlloca(param.Typ)
		g.entry.NewStore(param, ptr)
		g.scope[name.Lexeme] = &variable{ptr: ptr, typ: paramTypes[i]}
	}

	g.genLocals(decl.Block.Declarations)

	g.result = g.entry.NewAlloca(genType(decl.ReturnType))
	g.entry.NewStore(g.zeroValue(decl.ReturnType), g.result)

	g.genStatement(decl.Block.Body)
	if g.block.Term == nil {
		g.block.NewRet(g.block.NewLoad(genType(decl.ReturnType), g.result))
	}
}

func (g *generator) genProgram(program *ast.Program) {
	for _, decl := range program.Functions {
		g.declareFunction(decl)
	}
	for _, decl := range program.Functions {
		g.genFunction(decl)
	}

	globals := make(map[string]*variable)
	for _, decl := range program.Block.Declarations {
		for _, name := range decl.Identifiers {
			def := g.module.NewGlobalDef("pas."+name.Lexeme, g.zeroValue(decl.Type))
			def.Linkage = enum.LinkagePrivate
			globals[name.Lexeme] = &variable{ptr: def, typ: decl.Type}
		}
	}

	g.enter(g.module.NewFunc("main", types.I32), nil)
	g.scope = globals
	g.genStatement(program.Block.Body)
	if g.block.Term == nil {
		g.block.NewRet(i32(0))
	}
}

// Gen returns the LLVM IR module for a program that passed semantic
// analysis.
func Gen(program *ast.Program) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			genErr, ok := r.(*Error)
			if !ok {
				panic(r)
			}
			out = ""
			err = genErr
		}
	}()

	g := newGenerator()
	g.genProgram(program)
	return g.module.String(), nil
}
