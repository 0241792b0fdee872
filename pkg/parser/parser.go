package parser

import (
	"fmt"

	"github.com/kartiknair/pasc/pkg/ast"
	"github.com/kartiknair/pasc/pkg/diag"
	"github.com/kartiknair/pasc/pkg/token"
)

// Error is a syntax error at Token.
type Error struct {
	Token   token.Token
	Message string
}

func (e *Error) Error() string {
	if e.Token.Type == token.EOF {
		return fmt.Sprintf("%s (got end of input)", e.Message)
	}
	return fmt.Sprintf("%s (got %s)", e.Message, e.Token)
}

func (e *Error) Kind() diag.Kind     { return diag.Syntax }
func (e *Error) Position() token.Pos { return e.Token.Pos }

// bailout unwinds the parser to the nearest recovery point.
type bailout struct{}

type Parser struct {
	tokens  []token.Token
	current int

	errors []*Error
}

func (p *Parser) addError(t token.Token, message string) {
	p.errors = append(p.errors, &Error{Token: t, Message: message})
}

func (p *Parser) parseError(t token.Token, message string) {
	p.addError(t, message)
	panic(bailout{})
}

func (p *Parser) peek(distance int) token.Token {
	i := p.current + distance
	if i >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1]
	}
	return p.tokens[i]
}

func (p *Parser) expect(typ token.TokenType, message string) token.Token {
	if p.peek(0).Type != typ {
		p.parseError(p.peek(0), message)
	}

	p.current++
	return p.peek(-1)
}

func isBailout(r interface{}) bool {
	_, ok := r.(bailout)
	return ok
}

// synchronize skips to a token a statement or declaration can resume at.
// The token itself is not consumed.
func (p *Parser) synchronize() {
	for {
		switch p.peek(0).Type {
		case token.SEMICOLON, token.END, token.FUNCTION, token.BEGIN, token.EOF:
			return
		}
		p.current++
	}
}

func (p *Parser) parseType() ast.Type {
	t := p.peek(0)

	switch t.Type {
	case token.INTEGER_TYPE:
		p.current++
		return ast.Integer
	case token.REAL_TYPE:
		p.current++
		return ast.Real
	case token.BOOLEAN_TYPE:
		p.current++
		return ast.Boolean
	case token.CHAR_TYPE:
		p.current++
		return ast.Char
	case token.STRING_TYPE:
		p.current++
		return ast.String
	case token.ARRAY:
		p.current++
		p.expect(token.LEFT_BRACKET, "Expect `[` after `array`.")
		min := p.expect(token.INTEGER, "Expect integer lower bound in array type.")
		p.expect(token.DOT_DOT, "Expect `..` between array bounds.")
		max := p.expect(token.INTEGER, "Expect integer upper bound in array type.")
		p.expect(token.RIGHT_BRACKET, "Expect `]` after array bounds.")
		p.expect(token.OF, "Expect `of` after array bounds.")
		elType := p.parseType()

		return &ast.ArrayType{
			Min:    min.Value.(int64),
			Max:    max.Value.(int64),
			ElType: elType,
		}
	}

	p.parseError(t, "Expect type.")
	return nil
}

func (p *Parser) parseIdentifierList(message string) []token.Token {
	identifiers := []token.Token{p.expect(token.IDENTIFIER, message)}
	for p.peek(0).Type == token.COMMA {
		p.current++ // skip the comma
		identifiers = append(identifiers, p.expect(token.IDENTIFIER, "Expect identifier after `,`."))
	}
	return identifiers
}

func (p *Parser) parseDeclaration() (decl *ast.Declaration) {
	defer func() {
		if r := recover(); r != nil {
			if !isBailout(r) {
				panic(r)
			}
			p.synchronize()
			if p.peek(0).Type == token.SEMICOLON {
				p.current++
			}
			decl = nil
		}
	}()

	identifiers := p.parseIdentifierList("Expect variable name.")
	p.expect(token.COLON, "Expect `:` after variable names.")
	typ := p.parseType()
	p.expect(token.SEMICOLON, "Expect `;` after variable declaration.")

	return &ast.Declaration{Identifiers: identifiers, Type: typ}
}

func (p *Parser) parseBlock() *ast.Block {
	declarations := []ast.Declaration{}

	if p.peek(0).Type == token.VAR {
		p.current++
		for p.peek(0).Type == token.IDENTIFIER {
			if decl := p.parseDeclaration(); decl != nil {
				declarations = append(declarations, *decl)
			}
		}
	}

	if p.peek(0).Type != token.BEGIN {
		p.parseError(p.peek(0), "Expect `begin` to open block.")
	}

	return &ast.Block{
		Declarations: declarations,
		Body:         p.parseCompound(),
	}
}

func (p *Parser) parseCompound() *ast.CompoundStatement {
	begin := p.expect(token.BEGIN, "Expect `begin`.")
	statements := p.parseStatementList()
	p.expect(token.END, "Expect `end` to close `begin`.")

	return &ast.CompoundStatement{
		Statements: statements,
		BeginToken: begin,
	}
}

func (p *Parser) parseStatementList() []ast.Statement {
	statements := []ast.Statement{}

	for {
		start := p.current
		stmt := p.parseStatementSafe()
		if stmt != nil {
			statements = append(statements, stmt)
		}

		switch p.peek(0).Type {
		case token.SEMICOLON:
			p.current++
			continue
		case token.END, token.EOF:
			return statements
		}

		if stmt != nil {
			p.addError(p.peek(0), "Expect `;` between statements.")
		}
		if p.current == start {
			p.current++
		}
	}
}

// parseStatementSafe parses one statement, skipping past it on a syntax error.
func (p *Parser) parseStatementSafe() (stmt ast.Statement) {
	defer func() {
		if r := recover(); r != nil {
			if !isBailout(r) {
				panic(r)
			}
			p.synchronize()
			stmt = nil
		}
	}()

	return p.parseStatement()
}

func (p *Parser) parseStatement() ast.Statement {
	t := p.peek(0)

	switch t.Type {
	case token.SEMICOLON, token.END, token.ELSE:
		return &ast.EmptyStatement{Token: t}
	case token.BEGIN:
		return p.parseCompound()
	case token.IDENTIFIER:
		var target ast.Expression
		if p.peek(1).Type == token.LEFT_BRACKET {
			target = p.parseArrayAccess()
		} else {
			p.current++
			target = &ast.VariableExpression{Identifier: t}
		}

		assign := p.expect(token.ASSIGN, "Expect `:=` after assignment target.")
		value := p.parseExpression()

		return &ast.AssignStatement{
			Target:      target,
			Value:       value,
			AssignToken: assign,
		}
	case token.IF:
		p.current++
		condition := p.parseExpression()
		p.expect(token.THEN, "Expect `then` after if condition.")
		then := p.parseStatement()

		var elseStmt ast.Statement
		if p.peek(0).Type == token.ELSE {
			p.current++
			elseStmt = p.parseStatement()
		}

		return &ast.IfStatement{
			Condition: condition,
			Then:      then,
			Else:      elseStmt,
			IfToken:   t,
		}
	case token.WHILE:
		p.current++
		condition := p.parseExpression()
		p.expect(token.DO, "Expect `do` after while condition.")

		return &ast.WhileStatement{
			Condition:  condition,
			Body:       p.parseStatement(),
			WhileToken: t,
		}
	case token.FOR:
		p.current++
		counter := p.expect(token.IDENTIFIER, "Expect loop counter after `for`.")
		p.expect(token.ASSIGN, "Expect `:=` after loop counter.")
		start := p.parseExpression()

		downto := false
		switch p.peek(0).Type {
		case token.TO:
		case token.DOWNTO:
			downto = true
		default:
			p.parseError(p.peek(0), "Expect `to` or `downto` in for loop.")
		}
		p.current++

		end := p.parseExpression()
		p.expect(token.DO, "Expect `do` after for range.")

		return &ast.ForStatement{
			Counter:  counter,
			Start:    start,
			End:      end,
			Downto:   downto,
			Body:     p.parseStatement(),
			ForToken: t,
		}
	case token.WRITE, token.WRITELN, token.READ, token.READLN:
		p.current++
		stmt := &ast.IOStatement{Kind: t, Arguments: []ast.Expression{}}

		if p.peek(0).Type == token.LEFT_PAREN {
			p.current++
			if p.peek(0).Type != token.RIGHT_PAREN {
				stmt.Arguments = p.parseArguments()
			}
			p.expect(token.RIGHT_PAREN, fmt.Sprintf("Expect `)` after %s arguments.", t.Lexeme))
		}

		if stmt.IsRead() {
			for _, arg := range stmt.Arguments {
				switch arg.(type) {
				case *ast.VariableExpression, *ast.ArrayAccess:
				default:
					p.addError(arg.ErrorToken(), fmt.Sprintf("Arguments to %s must be variables.", t.Lexeme))
				}
			}
		}

		return stmt
	}

	p.parseError(t, "Expect statement.")
	return nil
}

func (p *Parser) parseArguments() []ast.Expression {
	arguments := []ast.Expression{p.parseExpression()}
	for p.peek(0).Type == token.COMMA {
		p.current++ // skip the comma
		arguments = append(arguments, p.parseExpression())
	}
	return arguments
}

func (p *Parser) parseArrayAccess() *ast.ArrayAccess {
	identifier := p.expect(token.IDENTIFIER, "Expect array name.")
	bracket := p.expect(token.LEFT_BRACKET, "Expect `[` after array name.")
	index := p.parseExpression()
	p.expect(token.RIGHT_BRACKET, "Expect `]` after index.")

	return &ast.ArrayAccess{
		Identifier:       identifier,
		Index:            index,
		LeftBracketToken: bracket,
	}
}

type associativity int

const (
	ltr associativity = iota
	// Chains like `a < b < c` are rejected.
	nonassoc
)

type opInfo struct {
	precedence    int
	associativity associativity
}

var operatorPrecedenceMap = map[token.TokenType]opInfo{
	token.STAR:  {precedence: 5, associativity: ltr},
	token.SLASH: {precedence: 5, associativity: ltr},
	token.DIV:   {precedence: 5, associativity: ltr},
	token.MOD:   {precedence: 5, associativity: ltr},

	token.PLUS:  {precedence: 4, associativity: ltr},
	token.MINUS: {precedence: 4, associativity: ltr},

	token.EQUAL:         {precedence: 3, associativity: nonassoc},
	token.NOT_EQUAL:     {precedence: 3, associativity: nonassoc},
	token.LESSER:        {precedence: 3, associativity: nonassoc},
	token.GREATER:       {precedence: 3, associativity: nonassoc},
	token.LESSER_EQUAL:  {precedence: 3, associativity: nonassoc},
	token.GREATER_EQUAL: {precedence: 3, associativity: nonassoc},

	token.AND: {precedence: 2, associativity: ltr},

	token.OR: {precedence: 1, associativity: ltr},
}

func (p *Parser) parseExpression() ast.Expression {
	return p.parsePrecedenceExpression(1)
}

func (p *Parser) parsePrecedenceExpression(minPrecedence int) ast.Expression {
	lhs := p.parseFactor()

	for {
		op := p.peek(0)
		info, ok := operatorPrecedenceMap[op.Type]
		if !ok || info.precedence < minPrecedence {
			return lhs
		}

		p.current++
		rhs := p.parsePrecedenceExpression(info.precedence + 1)
		lhs = &ast.BinaryExpression{Left: lhs, Operator: op, Right: rhs}

		if info.associativity == nonassoc {
			lookahead, ok := operatorPrecedenceMap[p.peek(0).Type]
			if ok && lookahead.precedence == info.precedence {
				p.parseError(p.peek(0), "Comparison operators cannot be chained.")
			}
		}
	}
}

func (p *Parser) parseFactor() ast.Expression {
	t := p.peek(0)

	switch t.Type {
	case token.INTEGER, token.REAL, token.STRING, token.TRUE, token.FALSE:
		p.current++
		return &ast.Literal{Token: t}
	case token.CHAR_LITERAL:
		p.current++
		return &ast.CharLiteral{Token: t}
	case token.IDENTIFIER:
		switch p.peek(1).Type {
		case token.LEFT_BRACKET:
			return p.parseArrayAccess()
		case token.LEFT_PAREN:
			return p.parseCall()
		}
		p.current++
		return &ast.VariableExpression{Identifier: t}
	case token.LENGTH:
		return p.parseCall()
	case token.LEFT_PAREN:
		p.current++
		expr := p.parseExpression()
		p.expect(token.RIGHT_PAREN, "Expect `)` after parenthesized expression.")
		return expr
	case token.NOT, token.MINUS:
		p.current++
		return &ast.UnaryExpression{Operator: t, Value: p.parseFactor()}
	}

	p.parseError(t, "Expect expression.")
	return nil
}

func (p *Parser) parseCall() *ast.FunctionCall {
	callee := p.peek(0)
	p.current++
	paren := p.expect(token.LEFT_PAREN, fmt.Sprintf("Expect `(` after `%s`.", callee.Lexeme))

	arguments := []ast.Expression{}
	if p.peek(0).Type != token.RIGHT_PAREN {
		arguments = p.parseArguments()
	}
	p.expect(token.RIGHT_PAREN, "Expect `)` after arguments.")

	return &ast.FunctionCall{
		Identifier:     callee,
		Arguments:      arguments,
		LeftParenToken: paren,
	}
}

// parseFunctionSafe parses one function declaration. On a syntax error the
// rest of the declaration is skipped and nil is returned.
func (p *Parser) parseFunctionSafe() (fn *ast.FunctionDeclaration) {
	start := p.current

	defer func() {
		if r := recover(); r != nil {
			if !isBailout(r) {
				panic(r)
			}
			p.skipFunction(start)
			fn = nil
		}
	}()

	return p.parseFunction()
}

// skipFunction moves past a broken declaration: up to the `end` closing its
// body, or to the next `function` keyword.
func (p *Parser) skipFunction(start int) {
	depth := 0
	for {
		switch p.peek(0).Type {
		case token.EOF:
			return
		case token.BEGIN:
			depth++
		case token.END:
			depth--
			if depth <= 0 {
				p.current++
				if p.peek(0).Type == token.SEMICOLON {
					p.current++
				}
				return
			}
		case token.FUNCTION, token.PROCEDURE:
			if depth == 0 && p.current != start {
				return
			}
		}
		p.current++
	}
}

func (p *Parser) parseFunction() *ast.FunctionDeclaration {
	if p.peek(0).Type == token.PROCEDURE {
		p.parseError(p.peek(0), "Procedures are not supported, declare a function with a return type.")
	}

	p.expect(token.FUNCTION, "Expect `function`.")
	name := p.expect(token.IDENTIFIER, "Expect function name.")
	p.expect(token.LEFT_PAREN, "Expect `(` after function name.")

	parameters := []ast.Parameter{}
	if p.peek(0).Type != token.RIGHT_PAREN {
		for {
			identifiers := p.parseIdentifierList("Expect name for function parameter.")
			p.expect(token.COLON, "Expect `:` after parameter names.")
			parameters = append(parameters, ast.Parameter{
				Identifiers: identifiers,
				Type:        p.parseType(),
			})

			if p.peek(0).Type != token.SEMICOLON {
				break
			}
			p.current++ // skip the semicolon
		}
	}
	p.expect(token.RIGHT_PAREN, "Missing closing `)` after parameter list.")
	p.expect(token.COLON, "Expect `:` and a return type after parameter list.")
	returnType := p.parseType()
	p.expect(token.SEMICOLON, "Expect `;` after function signature.")

	block := p.parseBlock()
	p.expect(token.SEMICOLON, "Expect `;` after function body.")

	return &ast.FunctionDeclaration{
		Identifier: name,
		Parameters: parameters,
		ReturnType: returnType,
		Block:      block,
	}
}

func (p *Parser) parseProgram() (program *ast.Program) {
	defer func() {
		if r := recover(); r != nil {
			if !isBailout(r) {
				panic(r)
			}
			program = nil
		}
	}()

	p.expect(token.PROGRAM, "Expect `program` at the start of the source.")
	name := p.expect(token.IDENTIFIER, "Expect program name after `program`.")
	p.expect(token.SEMICOLON, "Expect `;` after program name.")

	functions := []*ast.FunctionDeclaration{}
	for p.peek(0).Type == token.FUNCTION || p.peek(0).Type == token.PROCEDURE {
		if fn := p.parseFunctionSafe(); fn != nil {
			functions = append(functions, fn)
		}
	}

	block := p.parseBlock()
	p.expect(token.DOT, "Expect `.` after the program block.")

	if p.peek(0).Type != token.EOF {
		p.addError(p.peek(0), "Unexpected input after the end of the program.")
	}

	return &ast.Program{
		Name:      name,
		Functions: functions,
		Block:     block,
	}
}

// Parse builds the AST for tokens. The returned program is nil when the
// program skeleton itself could not be parsed; otherwise it is returned
// even if some statements or declarations had to be skipped.
func Parse(tokens []token.Token) (*ast.Program, []*Error) {
	if len(tokens) == 0 || tokens[len(tokens)-1].Type != token.EOF {
		eof := token.Token{Type: token.EOF, Pos: token.Pos{Line: 1, Column: 1}}
		if len(tokens) > 0 {
			eof.Pos = tokens[len(tokens)-1].Pos
		}
		tokens = append(tokens, eof)
	}

	p := Parser{tokens: tokens}
	program := p.parseProgram()
	return program, p.errors
}
