package sandbox

import (
	"fmt"
	"strconv"
)

// codeParser is a recursive-descent parser producing the statement list the
// interpreter walks. It is constructed per fragment; no state survives a
// parse.
type codeParser struct {
	toks []token
	pos  int
}

// parseSource tokenizes and parses one code fragment.
func parseSource(source string) ([]stmt, error) {
	toks, err := lex(source)
	if err != nil {
		return nil, err
	}
	p := &codeParser{toks: toks}
	stmts, err := p.program()
	if err != nil {
		return nil, err
	}
	return stmts, nil
}

func (p *codeParser) peek() token { return p.toks[p.pos] }

func (p *codeParser) next() token {
	t := p.toks[p.pos]
	if t.typ != tokEOF {
		p.pos++
	}
	return t
}

func (p *codeParser) accept(typ tokenType) bool {
	if p.peek().typ == typ {
		p.pos++
		return true
	}
	return false
}

func (p *codeParser) expect(typ tokenType, what string) (token, error) {
	t := p.peek()
	if t.typ != typ {
		return t, fmt.Errorf("line %d: expected %s, got %s", t.line, what, t)
	}
	return p.next(), nil
}

func (p *codeParser) skipSeparators() {
	for p.peek().typ == tokNewline {
		p.pos++
	}
}

func (p *codeParser) program() ([]stmt, error) {
	var stmts []stmt
	p.skipSeparators()
	for p.peek().typ != tokEOF {
		s, err := p.statement()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, s)
		if p.peek().typ != tokEOF && p.peek().typ != tokRBrace {
			if !p.accept(tokNewline) {
				t := p.peek()
				return nil, fmt.Errorf("line %d: expected end of statement, got %s", t.line, t)
			}
		}
		p.skipSeparators()
	}
	return stmts, nil
}

func (p *codeParser) block() ([]stmt, error) {
	if _, err := p.expect(tokLBrace, "'{'"); err != nil {
		return nil, err
	}
	var stmts []stmt
	p.skipSeparators()
	for p.peek().typ != tokRBrace {
		if p.peek().typ == tokEOF {
			return nil, fmt.Errorf("unexpected end of input in block")
		}
		s, err := p.statement()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, s)
		if p.peek().typ != tokRBrace {
			if !p.accept(tokNewline) {
				t := p.peek()
				return nil, fmt.Errorf("line %d: expected end of statement, got %s", t.line, t)
			}
		}
		p.skipSeparators()
	}
	p.next() // consume '}'
	return stmts, nil
}

func (p *codeParser) statement() (stmt, error) {
	t := p.peek()
	if t.typ == tokKeyword {
		switch t.text {
		case "if":
			return p.ifStatement()
		case "for":
			return p.forStatement()
		}
	}
	return p.assignOrExpr()
}

func (p *codeParser) ifStatement() (stmt, error) {
	t := p.next() // 'if'
	cond, err := p.expression()
	if err != nil {
		return nil, err
	}
	then, err := p.block()
	if err != nil {
		return nil, err
	}
	node := &ifStmt{cond: cond, then: then, line: t.line}
	mark := p.pos
	p.skipSeparators()
	if p.peek().typ == tokKeyword && p.peek().text == "else" {
		p.next()
		if p.peek().typ == tokKeyword && p.peek().text == "if" {
			nested, err := p.ifStatement()
			if err != nil {
				return nil, err
			}
			node.els = []stmt{nested}
		} else {
			els, err := p.block()
			if err != nil {
				return nil, err
			}
			node.els = els
		}
	} else {
		p.pos = mark
	}
	return node, nil
}

func (p *codeParser) forStatement() (stmt, error) {
	t := p.next() // 'for'
	name, err := p.expect(tokIdent, "loop variable")
	if err != nil {
		return nil, err
	}
	in := p.peek()
	if in.typ != tokKeyword || in.text != "in" {
		return nil, fmt.Errorf("line %d: expected 'in', got %s", in.line, in)
	}
	p.next()
	iter, err := p.expression()
	if err != nil {
		return nil, err
	}
	body, err := p.block()
	if err != nil {
		return nil, err
	}
	return &forStmt{loopVar: name.text, iter: iter, body: body, line: t.line}, nil
}

func (p *codeParser) assignOrExpr() (stmt, error) {
	line := p.peek().line
	x, err := p.expression()
	if err != nil {
		return nil, err
	}
	if p.peek().typ != tokAssign {
		return &exprStmt{x: x, line: line}, nil
	}
	p.next() // '='
	value, err := p.expression()
	if err != nil {
		return nil, err
	}
	switch target := x.(type) {
	case *identExpr:
		return &assignStmt{name: target.name, value: value, line: line}, nil
	case *indexExpr:
		if target.slice {
			return nil, fmt.Errorf("line %d: cannot assign to a slice", line)
		}
		base, ok := target.x.(*identExpr)
		if !ok {
			return nil, fmt.Errorf("line %d: assignment target must be a name or name[index]", line)
		}
		return &assignStmt{name: base.name, index: target.lo, value: value, line: line}, nil
	default:
		return nil, fmt.Errorf("line %d: invalid assignment target", line)
	}
}

// Expression grammar, lowest to highest precedence:
// or → and → equality → comparison → additive → multiplicative → unary →
// postfix (index, slice, call, attribute) → primary.

func (p *codeParser) expression() (expr, error) { return p.orExpr() }

func (p *codeParser) orExpr() (expr, error) {
	lhs, err := p.andExpr()
	if err != nil {
		return nil, err
	}
	for p.peek().typ == tokOr {
		t := p.next()
		rhs, err := p.andExpr()
		if err != nil {
			return nil, err
		}
		lhs = &binaryExpr{op: tokOr, lhs: lhs, rhs: rhs, line: t.line}
	}
	return lhs, nil
}

func (p *codeParser) andExpr() (expr, error) {
	lhs, err := p.equality()
	if err != nil {
		return nil, err
	}
	for p.peek().typ == tokAnd {
		t := p.next()
		rhs, err := p.equality()
		if err != nil {
			return nil, err
		}
		lhs = &binaryExpr{op: tokAnd, lhs: lhs, rhs: rhs, line: t.line}
	}
	return lhs, nil
}

func (p *codeParser) equality() (expr, error) {
	lhs, err := p.comparison()
	if err != nil {
		return nil, err
	}
	for p.peek().typ == tokEq || p.peek().typ == tokNeq {
		t := p.next()
		rhs, err := p.comparison()
		if err != nil {
			return nil, err
		}
		lhs = &binaryExpr{op: t.typ, lhs: lhs, rhs: rhs, line: t.line}
	}
	return lhs, nil
}

func (p *codeParser) comparison() (expr, error) {
	lhs, err := p.additive()
	if err != nil {
		return nil, err
	}
	for {
		typ := p.peek().typ
		if typ != tokLt && typ != tokLte && typ != tokGt && typ != tokGte {
			return lhs, nil
		}
		t := p.next()
		rhs, err := p.additive()
		if err != nil {
			return nil, err
		}
		lhs = &binaryExpr{op: t.typ, lhs: lhs, rhs: rhs, line: t.line}
	}
}

func (p *codeParser) additive() (expr, error) {
	lhs, err := p.multiplicative()
	if err != nil {
		return nil, err
	}
	for p.peek().typ == tokPlus || p.peek().typ == tokMinus {
		t := p.next()
		rhs, err := p.multiplicative()
		if err != nil {
			return nil, err
		}
		lhs = &binaryExpr{op: t.typ, lhs: lhs, rhs: rhs, line: t.line}
	}
	return lhs, nil
}

func (p *codeParser) multiplicative() (expr, error) {
	lhs, err := p.unary()
	if err != nil {
		return nil, err
	}
	for {
		typ := p.peek().typ
		if typ != tokStar && typ != tokSlash && typ != tokPercent {
			return lhs, nil
		}
		t := p.next()
		rhs, err := p.unary()
		if err != nil {
			return nil, err
		}
		lhs = &binaryExpr{op: t.typ, lhs: lhs, rhs: rhs, line: t.line}
	}
}

func (p *codeParser) unary() (expr, error) {
	t := p.peek()
	if t.typ == tokMinus || t.typ == tokNot {
		p.next()
		x, err := p.unary()
		if err != nil {
			return nil, err
		}
		return &unaryExpr{op: t.typ, x: x, line: t.line}, nil
	}
	return p.postfix()
}

func (p *codeParser) postfix() (expr, error) {
	x, err := p.primary()
	if err != nil {
		return nil, err
	}
	for {
		switch p.peek().typ {
		case tokLBracket:
			t := p.next()
			p.skipSeparators()
			var lo, hi expr
			slice := false
			if p.peek().typ == tokColon {
				slice = true
			} else {
				lo, err = p.expression()
				if err != nil {
					return nil, err
				}
			}
			if p.accept(tokColon) {
				slice = true
				p.skipSeparators()
				if p.peek().typ != tokRBracket {
					hi, err = p.expression()
					if err != nil {
						return nil, err
					}
				}
			}
			p.skipSeparators()
			if _, err := p.expect(tokRBracket, "']'"); err != nil {
				return nil, err
			}
			x = &indexExpr{x: x, lo: lo, hi: hi, slice: slice, line: t.line}
		case tokDot:
			t := p.next()
			name, err := p.expect(tokIdent, "attribute name")
			if err != nil {
				return nil, err
			}
			// Attribute access is sugar for string-keyed indexing.
			x = &indexExpr{x: x, lo: &literalExpr{val: Str(name.text)}, line: t.line}
		case tokLParen:
			ident, ok := x.(*identExpr)
			if !ok {
				t := p.peek()
				return nil, fmt.Errorf("line %d: only named operations are callable", t.line)
			}
			t := p.next()
			args, err := p.callArgs()
			if err != nil {
				return nil, err
			}
			x = &callExpr{name: ident.name, args: args, line: t.line}
		default:
			return x, nil
		}
	}
}

func (p *codeParser) callArgs() ([]expr, error) {
	var args []expr
	p.skipSeparators()
	for p.peek().typ != tokRParen {
		a, err := p.expression()
		if err != nil {
			return nil, err
		}
		args = append(args, a)
		p.skipSeparators()
		if !p.accept(tokComma) {
			break
		}
		p.skipSeparators()
	}
	if _, err := p.expect(tokRParen, "')'"); err != nil {
		return nil, err
	}
	return args, nil
}

func (p *codeParser) primary() (expr, error) {
	t := p.peek()
	switch t.typ {
	case tokInt:
		p.next()
		n, err := strconv.ParseInt(t.text, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: bad integer literal %q", t.line, t.text)
		}
		return &literalExpr{val: Int(n)}, nil
	case tokFloat:
		p.next()
		f, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: bad float literal %q", t.line, t.text)
		}
		return &literalExpr{val: Float(f)}, nil
	case tokString:
		p.next()
		return &literalExpr{val: Str(t.text)}, nil
	case tokKeyword:
		switch t.text {
		case "true":
			p.next()
			return &literalExpr{val: Bool(true)}, nil
		case "false":
			p.next()
			return &literalExpr{val: Bool(false)}, nil
		case "null":
			p.next()
			return &literalExpr{val: Null}, nil
		}
		return nil, fmt.Errorf("line %d: unexpected keyword %q", t.line, t.text)
	case tokIdent:
		p.next()
		return &identExpr{name: t.text, line: t.line}, nil
	case tokLParen:
		p.next()
		p.skipSeparators()
		x, err := p.expression()
		if err != nil {
			return nil, err
		}
		p.skipSeparators()
		if _, err := p.expect(tokRParen, "')'"); err != nil {
			return nil, err
		}
		return x, nil
	case tokLBracket:
		p.next()
		var elems []expr
		p.skipSeparators()
		for p.peek().typ != tokRBracket {
			e, err := p.expression()
			if err != nil {
				return nil, err
			}
			elems = append(elems, e)
			p.skipSeparators()
			if !p.accept(tokComma) {
				break
			}
			p.skipSeparators()
		}
		if _, err := p.expect(tokRBracket, "']'"); err != nil {
			return nil, err
		}
		return &listExpr{elems: elems}, nil
	case tokLBrace:
		p.next()
		node := &mapExpr{line: t.line}
		p.skipSeparators()
		for p.peek().typ != tokRBrace {
			k, err := p.expression()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(tokColon, "':'"); err != nil {
				return nil, err
			}
			p.skipSeparators()
			v, err := p.expression()
			if err != nil {
				return nil, err
			}
			node.keys = append(node.keys, k)
			node.vals = append(node.vals, v)
			p.skipSeparators()
			if !p.accept(tokComma) {
				break
			}
			p.skipSeparators()
		}
		if _, err := p.expect(tokRBrace, "'}'"); err != nil {
			return nil, err
		}
		return node, nil
	default:
		return nil, fmt.Errorf("line %d: unexpected token %s", t.line, t)
	}
}
