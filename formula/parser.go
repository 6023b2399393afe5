package formula

import (
	"strconv"
)

const (
	// MaxFormulaLength bounds the formula source accepted by Compile.
	MaxFormulaLength = 4096
	// MaxDepth bounds expression nesting.
	MaxDepth = 64
)

type node interface{ offset() int }

type (
	numberLit struct {
		pos int
		val float64
	}
	stringLit struct {
		pos int
		val string
	}
	boolLit struct {
		pos int
		val bool
	}
	noneLit struct{ pos int }
	ident   struct {
		pos  int
		name string
	}
	attrExpr struct {
		pos  int
		x    node
		name string
	}
	indexExpr struct {
		pos int
		x   node
		key node
	}
	callExpr struct {
		pos  int
		fn   node
		args []node
	}
	unaryExpr struct {
		pos int
		op  string
		x   node
	}
	binaryExpr struct {
		pos  int
		op   string
		l, r node
	}
)

func (n *numberLit) offset() int  { return n.pos }
func (n *stringLit) offset() int  { return n.pos }
func (n *boolLit) offset() int    { return n.pos }
func (n *noneLit) offset() int    { return n.pos }
func (n *ident) offset() int      { return n.pos }
func (n *attrExpr) offset() int   { return n.pos }
func (n *indexExpr) offset() int  { return n.pos }
func (n *callExpr) offset() int   { return n.pos }
func (n *unaryExpr) offset() int  { return n.pos }
func (n *binaryExpr) offset() int { return n.pos }

type parser struct {
	toks  []token
	i     int
	depth int
}

func parse(src string) (node, error) {
	if len(src) > MaxFormulaLength {
		return nil, newError(ErrTooComplex, -1, "formula is %d bytes, maximum is %d", len(src), MaxFormulaLength)
	}
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	if p.peek().kind == tokEOF {
		return nil, newError(ErrSyntax, 0, "empty formula")
	}
	n, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, newError(ErrSyntax, t.pos, "unexpected %q", t.text)
	}
	return n, nil
}

func (p *parser) peek() token { return p.toks[p.i] }

func (p *parser) next() token {
	t := p.toks[p.i]
	if t.kind != tokEOF {
		p.i++
	}
	return t
}

func (p *parser) isKeyword(word string) bool {
	t := p.peek()
	return t.kind == tokIdent && t.text == word
}

func (p *parser) isOp(ops ...string) bool {
	t := p.peek()
	if t.kind != tokOp {
		return false
	}
	for _, op := range ops {
		if t.text == op {
			return true
		}
	}
	return false
}

func (p *parser) enter() error {
	p.depth++
	if p.depth > MaxDepth {
		return newError(ErrTooComplex, p.peek().pos, "nesting deeper than %d", MaxDepth)
	}
	return nil
}

func (p *parser) leave() { p.depth-- }

func (p *parser) parseOr() (node, error) {
	if err := p.enter(); err != nil {
		return nil, err
	}
	defer p.leave()

	l, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.isKeyword("or") || p.isOp("|") {
		t := p.next()
		r, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		l = &binaryExpr{pos: t.pos, op: "or", l: l, r: r}
	}
	return l, nil
}

func (p *parser) parseAnd() (node, error) {
	l, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.isKeyword("and") || p.isOp("&") {
		t := p.next()
		r, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		l = &binaryExpr{pos: t.pos, op: "and", l: l, r: r}
	}
	return l, nil
}

func (p *parser) parseNot() (node, error) {
	if p.isKeyword("not") {
		t := p.next()
		if err := p.enter(); err != nil {
			return nil, err
		}
		defer p.leave()
		x, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &unaryExpr{pos: t.pos, op: "not", x: x}, nil
	}
	return p.parseComparison()
}

// parseComparison handles chains the way Python does: a < b < c means
// (a < b) and (b < c).
func (p *parser) parseComparison() (node, error) {
	l, err := p.parseSum()
	if err != nil {
		return nil, err
	}
	var out node
	for p.isOp("<", "<=", ">", ">=", "==", "!=") {
		t := p.next()
		r, err := p.parseSum()
		if err != nil {
			return nil, err
		}
		cmp := &binaryExpr{pos: t.pos, op: t.text, l: l, r: r}
		if out == nil {
			out = cmp
		} else {
			out = &binaryExpr{pos: t.pos, op: "and", l: out, r: cmp}
		}
		l = r
	}
	if out == nil {
		return l, nil
	}
	return out, nil
}

func (p *parser) parseSum() (node, error) {
	l, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for p.isOp("+", "-") {
		t := p.next()
		r, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		l = &binaryExpr{pos: t.pos, op: t.text, l: l, r: r}
	}
	return l, nil
}

func (p *parser) parseTerm() (node, error) {
	l, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.isOp("*", "/", "//", "%") {
		t := p.next()
		r, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		l = &binaryExpr{pos: t.pos, op: t.text, l: l, r: r}
	}
	return l, nil
}

func (p *parser) parseUnary() (node, error) {
	if p.isOp("-", "+") {
		t := p.next()
		if err := p.enter(); err != nil {
			return nil, err
		}
		defer p.leave()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &unaryExpr{pos: t.pos, op: t.text, x: x}, nil
	}
	return p.parsePower()
}

// parsePower binds tighter than a unary minus on its left and is right
// associative: -2 ** 2 == -4, 2 ** 3 ** 2 == 512.
func (p *parser) parsePower() (node, error) {
	base, err := p.parsePostfix()
	if err != nil {
		return nil, err
	}
	if p.isOp("**") {
		t := p.next()
		if err := p.enter(); err != nil {
			return nil, err
		}
		defer p.leave()
		exp, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &binaryExpr{pos: t.pos, op: "**", l: base, r: exp}, nil
	}
	return base, nil
}

func (p *parser) parsePostfix() (node, error) {
	x, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		switch t.kind {
		case tokLBracket:
			p.next()
			key, err := p.parseOr()
			if err != nil {
				return nil, err
			}
			if err := p.expect(tokRBracket, "]"); err != nil {
				return nil, err
			}
			x = &indexExpr{pos: t.pos, x: x, key: key}
		case tokLParen:
			p.next()
			args, err := p.parseArgs()
			if err != nil {
				return nil, err
			}
			x = &callExpr{pos: t.pos, fn: x, args: args}
		case tokDot:
			p.next()
			name := p.next()
			if name.kind != tokIdent {
				return nil, newError(ErrSyntax, name.pos, "expected name after '.'")
			}
			x = &attrExpr{pos: name.pos, x: x, name: name.text}
		default:
			return x, nil
		}
	}
}

func (p *parser) parseArgs() ([]node, error) {
	var args []node
	if p.peek().kind == tokRParen {
		p.next()
		return args, nil
	}
	for {
		a, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		args = append(args, a)
		t := p.next()
		switch t.kind {
		case tokComma:
			continue
		case tokRParen:
			return args, nil
		default:
			return nil, newError(ErrSyntax, t.pos, "expected ',' or ')' in argument list")
		}
	}
}

func (p *parser) parsePrimary() (node, error) {
	t := p.next()
	switch t.kind {
	case tokNumber:
		f, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, newError(ErrSyntax, t.pos, "invalid number %q", t.text)
		}
		return &numberLit{pos: t.pos, val: f}, nil
	case tokString:
		return &stringLit{pos: t.pos, val: t.text}, nil
	case tokIdent:
		switch t.text {
		case "True", "true":
			return &boolLit{pos: t.pos, val: true}, nil
		case "False", "false":
			return &boolLit{pos: t.pos, val: false}, nil
		case "None", "null":
			return &noneLit{pos: t.pos}, nil
		case "and", "or", "not":
			return nil, newError(ErrSyntax, t.pos, "unexpected keyword %q", t.text)
		}
		return &ident{pos: t.pos, name: t.text}, nil
	case tokLParen:
		x, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if err := p.expect(tokRParen, ")"); err != nil {
			return nil, err
		}
		return x, nil
	case tokEOF:
		return nil, newError(ErrSyntax, t.pos, "unexpected end of formula")
	}
	return nil, newError(ErrSyntax, t.pos, "unexpected %q", t.text)
}

func (p *parser) expect(kind tokenKind, text string) error {
	t := p.next()
	if t.kind != kind {
		return newError(ErrSyntax, t.pos, "expected %q", text)
	}
	return nil
}
