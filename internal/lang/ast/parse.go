package ast

import (
	"fmt"

	"github.com/oriys/bur/internal/lang/token"
)

// ParseError reports a syntax error with source attribution.
type ParseError struct {
	Message string
	Slice   token.Slice
}

func (e *ParseError) Error() string { return e.Message }

// Parse consumes every token from tz and returns the parsed Program.
func Parse(tz token.Tokenizer) (*Program, error) {
	p := &parser{tz: tz}
	if err := p.advance(); err != nil {
		return nil, err
	}
	return p.parseProgram()
}

type parser struct {
	tz  token.Tokenizer
	cur token.Token
}

func (p *parser) advance() error {
	t, err := p.tz.Next()
	if err != nil {
		return err
	}
	p.cur = t
	return nil
}

func (p *parser) errf(format string, args ...interface{}) error {
	return &ParseError{Message: fmt.Sprintf(format, args...), Slice: p.cur.Slice}
}

func (p *parser) isSymbol(s string) bool  { return p.cur.Kind == token.Symbol && p.cur.Text == s }
func (p *parser) isKeyword(s string) bool { return p.cur.Kind == token.Keyword && p.cur.Text == s }

func (p *parser) expectSymbol(s string) error {
	if !p.isSymbol(s) {
		return p.errf("expected %q, got %q", s, p.cur.Text)
	}
	return p.advance()
}

func (p *parser) expectKeyword(s string) error {
	if !p.isKeyword(s) {
		return p.errf("expected keyword %q, got %q", s, p.cur.Text)
	}
	return p.advance()
}

func (p *parser) expectIdentifier() (string, error) {
	if p.cur.Kind != token.Identifier {
		return "", p.errf("expected identifier, got %q", p.cur.Text)
	}
	name := p.cur.Text
	return name, p.advance()
}

func (p *parser) parseProgram() (*Program, error) {
	prog := &Program{}
	for p.cur.Kind != token.Eof {
		start := p.cur.Slice
		switch {
		case p.isKeyword("import"):
			imp, err := p.parseImport()
			if err != nil {
				return nil, err
			}
			prog.Imports = append(prog.Imports, imp)
		case p.isKeyword("class"):
			cls, err := p.parseClass()
			if err != nil {
				return nil, err
			}
			prog.Classes = append(prog.Classes, cls)
		case p.isKeyword("func"):
			fn, err := p.parseFunc(false)
			if err != nil {
				return nil, err
			}
			prog.Functions = append(prog.Functions, fn)
		default:
			stmt, err := p.parseStmt()
			if err != nil {
				return nil, err
			}
			_ = start
			prog.Body = append(prog.Body, stmt)
		}
	}
	return prog, nil
}

func (p *parser) parseImport() (*ImportStmt, error) {
	start := p.cur.Slice
	if err := p.expectKeyword("import"); err != nil {
		return nil, err
	}
	if p.cur.Kind != token.String {
		return nil, p.errf("expected string path after import, got %q", p.cur.Text)
	}
	path := p.cur.Text
	if err := p.advance(); err != nil {
		return nil, err
	}
	as := ""
	if p.isKeyword("as") || (p.cur.Kind == token.Identifier && p.cur.Text == "as") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		name, err := p.expectIdentifier()
		if err != nil {
			return nil, err
		}
		as = name
	}
	if err := p.expectSymbol(";"); err != nil {
		return nil, err
	}
	return &ImportStmt{base: base{start}, Path: path, As: as}, nil
}

func (p *parser) parseClass() (*ClassDecl, error) {
	start := p.cur.Slice
	if err := p.expectKeyword("class"); err != nil {
		return nil, err
	}
	name, err := p.expectIdentifier()
	if err != nil {
		return nil, err
	}
	var parent Expr
	if p.isSymbol(":") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		parent, err = p.parseExpr()
		if err != nil {
			return nil, err
		}
	}
	if err := p.expectSymbol("{"); err != nil {
		return nil, err
	}
	cls := &ClassDecl{base: base{start}, Name: name, Parent: parent}
	for !p.isSymbol("}") {
		if p.isKeyword("func") {
			m, err := p.parseFunc(true)
			if err != nil {
				return nil, err
			}
			cls.Methods = append(cls.Methods, m)
			continue
		}
		field, err := p.parseVarDecl()
		if err != nil {
			return nil, err
		}
		cls.Fields = append(cls.Fields, field)
	}
	return cls, p.advance()
}

func (p *parser) parseFunc(isMethod bool) (*FuncDecl, error) {
	start := p.cur.Slice
	if err := p.expectKeyword("func"); err != nil {
		return nil, err
	}
	name, err := p.expectIdentifier()
	if err != nil {
		return nil, err
	}
	params, err := p.parseParamList()
	if err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &FuncDecl{base: base{start}, Name: name, Params: params, Body: body, IsMethod: isMethod}, nil
}

func (p *parser) parseParamList() ([]string, error) {
	if err := p.expectSymbol("("); err != nil {
		return nil, err
	}
	var params []string
	for !p.isSymbol(")") {
		name, err := p.expectIdentifier()
		if err != nil {
			return nil, err
		}
		params = append(params, name)
		if p.isSymbol(",") {
			if err := p.advance(); err != nil {
				return nil, err
			}
		}
	}
	return params, p.advance()
}

func (p *parser) parseBlock() ([]Stmt, error) {
	if err := p.expectSymbol("{"); err != nil {
		return nil, err
	}
	var stmts []Stmt
	for !p.isSymbol("}") {
		s, err := p.parseStmt()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, s)
	}
	return stmts, p.advance()
}

func (p *parser) parseVarDecl() (*VarDecl, error) {
	start := p.cur.Slice
	isConst := p.isKeyword("const")
	if isConst {
		if err := p.advance(); err != nil {
			return nil, err
		}
	} else if err := p.expectKeyword("var"); err != nil {
		return nil, err
	}
	name, err := p.expectIdentifier()
	if err != nil {
		return nil, err
	}
	var value Expr
	if p.isSymbol("=") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		value, err = p.parseExpr()
		if err != nil {
			return nil, err
		}
	}
	if err := p.expectSymbol(";"); err != nil {
		return nil, err
	}
	return &VarDecl{base: base{start}, Name: name, Const: isConst, Value: value}, nil
}

func (p *parser) parseStmt() (Stmt, error) {
	start := p.cur.Slice
	switch {
	case p.isKeyword("var"), p.isKeyword("const"):
		return p.parseVarDecl()
	case p.isKeyword("if"):
		return p.parseIf()
	case p.isKeyword("while"):
		return p.parseWhile(false)
	case p.isKeyword("until"):
		return p.parseWhile(true)
	case p.isKeyword("for"):
		return p.parseForEach()
	case p.isKeyword("try"):
		return p.parseTry()
	case p.isKeyword("return"):
		if err := p.advance(); err != nil {
			return nil, err
		}
		var value Expr
		if !p.isSymbol(";") {
			v, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			value = v
		}
		if err := p.expectSymbol(";"); err != nil {
			return nil, err
		}
		return &ReturnStmt{base: base{start}, Value: value}, nil
	case p.isKeyword("break"):
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &BreakStmt{base{start}}, p.expectSymbol(";")
	case p.isKeyword("continue"):
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &ContinueStmt{base{start}}, p.expectSymbol(";")
	case p.isKeyword("throw"):
		if err := p.advance(); err != nil {
			return nil, err
		}
		v, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return &ThrowStmt{base: base{start}, Value: v}, p.expectSymbol(";")
	case p.isKeyword("export"):
		if err := p.advance(); err != nil {
			return nil, err
		}
		name, err := p.expectIdentifier()
		if err != nil {
			return nil, err
		}
		var value Expr
		if p.isSymbol("=") {
			if err := p.advance(); err != nil {
				return nil, err
			}
			value, err = p.parseExpr()
			if err != nil {
				return nil, err
			}
		} else {
			value = &Ident{base: base{start}, Name: name}
		}
		return &ExportStmt{base: base{start}, Name: name, Value: value}, p.expectSymbol(";")
	case p.isSymbol("{"):
		body, err := p.parseBlock()
		if err != nil {
			return nil, err
		}
		return &IfStmt{base: base{start}, Cond: &BoolLit{base: base{start}, Value: true}, Then: body}, nil
	default:
		return p.parseExprOrAssignStmt()
	}
}

func (p *parser) parseExprOrAssignStmt() (Stmt, error) {
	start := p.cur.Slice
	x, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if p.isSymbol("=") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		rhs, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expectSymbol(";"); err != nil {
			return nil, err
		}
		return &Assign{base: base{start}, Target: x, Value: rhs}, nil
	}
	if err := p.expectSymbol(";"); err != nil {
		return nil, err
	}
	return &ExprStmt{base: base{start}, X: x}, nil
}

func (p *parser) parseIf() (Stmt, error) {
	start := p.cur.Slice
	if err := p.expectKeyword("if"); err != nil {
		return nil, err
	}
	if err := p.expectSymbol("("); err != nil {
		return nil, err
	}
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if err := p.expectSymbol(")"); err != nil {
		return nil, err
	}
	then, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	var elseBody []Stmt
	if p.isKeyword("else") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.isKeyword("if") {
			elseIf, err := p.parseIf()
			if err != nil {
				return nil, err
			}
			elseBody = []Stmt{elseIf}
		} else {
			elseBody, err = p.parseBlock()
			if err != nil {
				return nil, err
			}
		}
	}
	return &IfStmt{base: base{start}, Cond: cond, Then: then, Else: elseBody}, nil
}

func (p *parser) parseWhile(until bool) (Stmt, error) {
	start := p.cur.Slice
	kw := "while"
	if until {
		kw = "until"
	}
	if err := p.expectKeyword(kw); err != nil {
		return nil, err
	}
	if err := p.expectSymbol("("); err != nil {
		return nil, err
	}
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if err := p.expectSymbol(")"); err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &WhileStmt{base: base{start}, Cond: cond, Body: body, Until: until}, nil
}

func (p *parser) parseForEach() (Stmt, error) {
	start := p.cur.Slice
	if err := p.expectKeyword("for"); err != nil {
		return nil, err
	}
	if err := p.expectKeyword("each"); err != nil {
		return nil, err
	}
	if err := p.expectSymbol("("); err != nil {
		return nil, err
	}
	name, err := p.expectIdentifier()
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("in"); err != nil {
		return nil, err
	}
	iter, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if err := p.expectSymbol(")"); err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &ForEachStmt{base: base{start}, ElementName: name, Iterable: iter, Body: body}, nil
}

func (p *parser) parseTry() (Stmt, error) {
	start := p.cur.Slice
	if err := p.expectKeyword("try"); err != nil {
		return nil, err
	}
	tryBody, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("catch"); err != nil {
		return nil, err
	}
	catchName := ""
	if p.isSymbol("(") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		catchName, err = p.expectIdentifier()
		if err != nil {
			return nil, err
		}
		if err := p.expectSymbol(")"); err != nil {
			return nil, err
		}
	}
	catchBody, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &TryStmt{base: base{start}, Try: tryBody, CatchName: catchName, Catch: catchBody}, nil
}

// ---- Expressions: precedence climbing ----
//
// or  <  and  <  equality (==, !=, proto-eq/ne)  <  relational (< <= > >=)
// <  additive (+ -)  <  multiplicative (* / %)  <  unary  <  access/call chain  <  primary

func (p *parser) parseExpr() (Expr, error) { return p.parseOr() }

func (p *parser) parseOr() (Expr, error) {
	start := p.cur.Slice
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.isKeyword("or") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &LogicalExpr{base: base{start}, Or: true, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Expr, error) {
	start := p.cur.Slice
	left, err := p.parseEquality()
	if err != nil {
		return nil, err
	}
	for p.isKeyword("and") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseEquality()
		if err != nil {
			return nil, err
		}
		left = &LogicalExpr{base: base{start}, Or: false, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseEquality() (Expr, error) {
	start := p.cur.Slice
	left, err := p.parseRelational()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.isSymbol("=="), p.isSymbol("!="):
			not := p.isSymbol("!=")
			if err := p.advance(); err != nil {
				return nil, err
			}
			// `x == prototype y` / `x != prototype y` is Bur's prototype
			// identity comparison; any other right-hand side is ordinary
			// value equality.
			if p.isKeyword("prototype") {
				if err := p.advance(); err != nil {
					return nil, err
				}
				right, err := p.parseRelational()
				if err != nil {
					return nil, err
				}
				left = &ProtoCompareExpr{base: base{start}, Not: not, Left: left, Right: right}
				continue
			}
			right, err := p.parseRelational()
			if err != nil {
				return nil, err
			}
			op := OpEq
			if not {
				op = OpNe
			}
			left = &BinaryExpr{base: base{start}, Op: op, Left: left, Right: right}
		default:
			return left, nil
		}
	}
}

func (p *parser) parseRelational() (Expr, error) {
	start := p.cur.Slice
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	for {
		var op BinaryOp
		switch {
		case p.isSymbol("<="):
			op = OpLe
		case p.isSymbol(">="):
			op = OpGe
		case p.isSymbol("<"):
			op = OpLt
		case p.isSymbol(">"):
			op = OpGt
		default:
			return left, nil
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{base: base{start}, Op: op, Left: left, Right: right}
	}
}

func (p *parser) parseAdditive() (Expr, error) {
	start := p.cur.Slice
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for {
		var op BinaryOp
		switch {
		case p.isSymbol("+"):
			op = OpAdd
		case p.isSymbol("-"):
			op = OpSub
		default:
			return left, nil
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{base: base{start}, Op: op, Left: left, Right: right}
	}
}

func (p *parser) parseMultiplicative() (Expr, error) {
	start := p.cur.Slice
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		var op BinaryOp
		switch {
		case p.isSymbol("*"):
			op = OpMul
		case p.isSymbol("/"):
			op = OpDiv
		case p.isSymbol("%"):
			op = OpRem
		default:
			return left, nil
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{base: base{start}, Op: op, Left: left, Right: right}
	}
}

func (p *parser) parseUnary() (Expr, error) {
	start := p.cur.Slice
	switch {
	case p.isSymbol("-"):
		if err := p.advance(); err != nil {
			return nil, err
		}
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &UnaryExpr{base: base{start}, Op: UnarySub, X: x}, nil
	case p.isSymbol("+"):
		if err := p.advance(); err != nil {
			return nil, err
		}
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &UnaryExpr{base: base{start}, Op: UnaryAdd, X: x}, nil
	case p.isSymbol("!"), p.isKeyword("not"):
		if err := p.advance(); err != nil {
			return nil, err
		}
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &UnaryExpr{base: base{start}, Op: UnaryNot, X: x}, nil
	default:
		return p.parseAccessChain()
	}
}

// parseAccessChain parses a primary expression followed by any number
// of `.name`, `.prototype`, `[index]`, or `(args)` suffixes; `==
// prototype`/`!= prototype` comparisons are parsed by parseEquality.
// This is the shape the compiler's three specialized access-chain
// lowering patterns (spec.md §4.3) match against: AccessExpr nodes
// with Kind in {AccessIdent, AccessIndex, AccessInvoke} (a `.prototype`
// suffix yields AccessPrototype), optionally wrapped in an Assign by
// the statement parser above.
func (p *parser) parseAccessChain() (Expr, error) {
	start := p.cur.Slice
	x, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.isSymbol("."):
			if err := p.advance(); err != nil {
				return nil, err
			}
			if p.isKeyword("prototype") {
				if err := p.advance(); err != nil {
					return nil, err
				}
				x = &AccessExpr{base: base{start}, BaseExpr: x, Kind: AccessPrototype}
				continue
			}
			name, err := p.expectIdentifier()
			if err != nil {
				return nil, err
			}
			x = &AccessExpr{base: base{start}, BaseExpr: x, Kind: AccessIdent, Name: name}
		case p.isSymbol("["):
			if err := p.advance(); err != nil {
				return nil, err
			}
			idx, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if err := p.expectSymbol("]"); err != nil {
				return nil, err
			}
			x = &AccessExpr{base: base{start}, BaseExpr: x, Kind: AccessIndex, Index: idx}
		case p.isSymbol("("):
			args, err := p.parseArgList()
			if err != nil {
				return nil, err
			}
			thisCall := false
			var baseExpr Expr = x
			if ae, ok := x.(*AccessExpr); ok && ae.Kind == AccessIdent {
				// base.x(args): invoke immediately after a member access,
				// passing the member's base object as `this`.
				thisCall = true
				baseExpr = ae
			}
			x = &AccessExpr{base: base{start}, BaseExpr: baseExpr, Kind: AccessInvoke, Args: args, ThisCall: thisCall}
		default:
			return x, nil
		}
	}
}

func (p *parser) parseArgList() ([]Expr, error) {
	if err := p.expectSymbol("("); err != nil {
		return nil, err
	}
	var args []Expr
	for !p.isSymbol(")") {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		args = append(args, e)
		if p.isSymbol(",") {
			if err := p.advance(); err != nil {
				return nil, err
			}
		}
	}
	return args, p.advance()
}

func (p *parser) parsePrimary() (Expr, error) {
	start := p.cur.Slice
	switch {
	case p.cur.Kind == token.Number:
		text := p.cur.Text
		if err := p.advance(); err != nil {
			return nil, err
		}
		return parseNumberLit(start, text)
	case p.cur.Kind == token.String:
		text := p.cur.Text
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &StringLit{base: base{start}, Value: text}, nil
	case p.isKeyword("true"), p.isKeyword("false"):
		v := p.cur.Text == "true"
		return &BoolLit{base: base{start}, Value: v}, p.advance()
	case p.isKeyword("none"):
		return &NoneLit{base{start}}, p.advance()
	case p.isKeyword("this"):
		return &ThisExpr{base{start}}, p.advance()
	case p.isKeyword("new"):
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.isSymbol("[") {
			if err := p.advance(); err != nil {
				return nil, err
			}
			var elems []Expr
			for !p.isSymbol("]") {
				e, err := p.parseExpr()
				if err != nil {
					return nil, err
				}
				elems = append(elems, e)
				if p.isSymbol(",") {
					if err := p.advance(); err != nil {
						return nil, err
					}
				}
			}
			return &NewArrayExpr{base: base{start}, Elements: elems}, p.advance()
		}
		if err := p.expectSymbol("{"); err != nil {
			return nil, err
		}
		if err := p.expectSymbol("}"); err != nil {
			return nil, err
		}
		return &NewObjectExpr{base{start}}, nil
	case p.isKeyword("func"):
		if err := p.advance(); err != nil {
			return nil, err
		}
		params, err := p.parseParamList()
		if err != nil {
			return nil, err
		}
		body, err := p.parseBlock()
		if err != nil {
			return nil, err
		}
		return &FuncLitExpr{base: base{start}, Params: params, Body: body}, nil
	case p.cur.Kind == token.Identifier:
		name := p.cur.Text
		return &Ident{base: base{start}, Name: name}, p.advance()
	case p.isSymbol("("):
		if err := p.advance(); err != nil {
			return nil, err
		}
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return e, p.expectSymbol(")")
	default:
		return nil, p.errf("unexpected token %q in expression", p.cur.Text)
	}
}

func parseNumberLit(slice token.Slice, text string) (Expr, error) {
	hasDot := false
	for i := 0; i < len(text); i++ {
		if text[i] == '.' {
			hasDot = true
			break
		}
	}
	if hasDot {
		var f float64
		if _, err := fmt.Sscanf(text, "%g", &f); err != nil {
			return nil, &ParseError{Message: fmt.Sprintf("invalid float literal %q", text), Slice: slice}
		}
		return &FloatLit{base: base{slice}, Value: f}, nil
	}
	var i int64
	if _, err := fmt.Sscanf(text, "%d", &i); err != nil {
		return nil, &ParseError{Message: fmt.Sprintf("invalid int literal %q", text), Slice: slice}
	}
	return &IntLit{base: base{slice}, Value: i}, nil
}
