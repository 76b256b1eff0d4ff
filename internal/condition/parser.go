package condition

type parser struct {
	toks []token
	pos  int
}

func (p *parser) peek() token {
	return p.toks[p.pos]
}

func (p *parser) next() token {
	t := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *parser) atEOF() bool {
	return p.peek().kind == tokEOF
}

func (p *parser) expect(kind tokenKind, what string) (token, error) {
	t := p.peek()
	if t.kind != kind {
		return t, errAt(t.pos, "expected %s, got %q", what, t.text)
	}
	return p.next(), nil
}

// Precedence, loosest first: OR < AND < NOT < comparison.

func (p *parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokKeyword && p.peek().text == "OR" {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &binaryExpr{op: "OR", left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokKeyword && p.peek().text == "AND" {
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &binaryExpr{op: "AND", left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (Expr, error) {
	if p.peek().kind == tokKeyword && p.peek().text == "NOT" {
		p.next()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &notExpr{x: x}, nil
	}
	return p.parseAtom()
}

func (p *parser) parseAtom() (Expr, error) {
	t := p.peek()
	switch t.kind {
	case tokLParen:
		p.next()
		expr, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen, "')'"); err != nil {
			return nil, err
		}
		return expr, nil
	case tokKeyword:
		switch t.text {
		case "CONTAINS":
			return p.parseContains()
		case "ISBLANK":
			return p.parseIsBlank()
		case "IF":
			return p.parseIf()
		default:
			return nil, errAt(t.pos, "unexpected %q", t.text)
		}
	case tokField:
		p.next()
		field := &fieldExpr{ref: t.text}
		if p.peek().kind == tokOp {
			op := p.next().text
			right, err := p.parseOperand()
			if err != nil {
				return nil, err
			}
			return &compareExpr{op: op, left: field, right: right}, nil
		}
		return field, nil
	case tokString:
		p.next()
		return &literalExpr{val: t.text}, nil
	case tokNumber:
		p.next()
		return &literalExpr{val: t.text}, nil
	default:
		return nil, errAt(t.pos, "unexpected token %q", t.text)
	}
}

// parseOperand parses the right side of a comparison: a literal or
// another field reference.
func (p *parser) parseOperand() (Expr, error) {
	t := p.peek()
	switch t.kind {
	case tokString:
		p.next()
		return &literalExpr{val: t.text}, nil
	case tokNumber:
		p.next()
		return &literalExpr{val: t.text}, nil
	case tokField:
		p.next()
		return &fieldExpr{ref: t.text}, nil
	default:
		return nil, errAt(t.pos, "expected literal or field reference, got %q", t.text)
	}
}

func (p *parser) parseContains() (Expr, error) {
	p.next()
	if _, err := p.expect(tokLParen, "'('"); err != nil {
		return nil, err
	}
	field, err := p.expect(tokField, "field reference")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokComma, "','"); err != nil {
		return nil, err
	}
	lit := p.peek()
	if lit.kind != tokString && lit.kind != tokNumber {
		return nil, errAt(lit.pos, "expected literal, got %q", lit.text)
	}
	p.next()
	if _, err := p.expect(tokRParen, "')'"); err != nil {
		return nil, err
	}
	return &containsExpr{field: fieldExpr{ref: field.text}, substr: lit.text}, nil
}

func (p *parser) parseIsBlank() (Expr, error) {
	p.next()
	if _, err := p.expect(tokLParen, "'('"); err != nil {
		return nil, err
	}
	field, err := p.expect(tokField, "field reference")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokRParen, "')'"); err != nil {
		return nil, err
	}
	return &isBlankExpr{field: fieldExpr{ref: field.text}}, nil
}

func (p *parser) parseIf() (Expr, error) {
	p.next()
	if _, err := p.expect(tokLParen, "'('"); err != nil {
		return nil, err
	}
	cond, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokComma, "','"); err != nil {
		return nil, err
	}
	then, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokComma, "','"); err != nil {
		return nil, err
	}
	els, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokRParen, "')'"); err != nil {
		return nil, err
	}
	return &ifExpr{cond: cond, then: then, els: els}, nil
}
