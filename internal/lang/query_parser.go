package lang

// ParseQuery parses a `query name { ... }` document into a
// QueryDocument. Grounded on
// original_source/src/database/query_language/query_parser.rs.
func ParseQuery(src string) (*QueryDocument, error) {
	p, err := newParserBase(src)
	if err != nil {
		return nil, err
	}
	if err := p.expectIdentText("query"); err != nil {
		return nil, err
	}
	nameTok, err := p.expect(Ident)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(LBrace); err != nil {
		return nil, err
	}
	doc := &QueryDocument{Name: nameTok.Text}
	for !p.at(RBrace) {
		sel, err := p.parseTopLevelSelection()
		if err != nil {
			return nil, err
		}
		doc.Selections = append(doc.Selections, *sel)
	}
	if _, err := p.expect(RBrace); err != nil {
		return nil, err
	}
	return doc, nil
}

func (p *parserBase) parseTopLevelSelection() (*Selection, error) {
	first, pos, err := p.qualifiedName()
	if err != nil {
		return nil, err
	}
	sel := &Selection{Entity: first, Pos: pos}
	if p.at(Colon) {
		if err := p.advance(); err != nil {
			return nil, err
		}
		entity, _, err := p.qualifiedName()
		if err != nil {
			return nil, err
		}
		sel.Alias = first
		sel.Entity = entity
	}
	if p.at(LParen) {
		if err := p.parseSelectionArgs(sel); err != nil {
			return nil, err
		}
	}
	fields, err := p.parseSelectedFieldBlock()
	if err != nil {
		return nil, err
	}
	sel.Fields = fields
	return sel, nil
}

func (p *parserBase) parseSelectedFieldBlock() ([]SelectedField, error) {
	if _, err := p.expect(LBrace); err != nil {
		return nil, err
	}
	var fields []SelectedField
	for !p.at(RBrace) {
		f, err := p.parseSelectedField()
		if err != nil {
			return nil, err
		}
		fields = append(fields, *f)
		if p.at(Comma) {
			if err := p.advance(); err != nil {
				return nil, err
			}
		}
	}
	if _, err := p.expect(RBrace); err != nil {
		return nil, err
	}
	return fields, nil
}

func (p *parserBase) parseSelectedField() (*SelectedField, error) {
	first, pos, err := p.qualifiedName()
	if err != nil {
		return nil, err
	}
	field := &SelectedField{Name: first, Pos: pos}
	if p.at(Colon) {
		if err := p.advance(); err != nil {
			return nil, err
		}
		name, _, err := p.qualifiedName()
		if err != nil {
			return nil, err
		}
		field.Alias = first
		field.Name = name
	}

	if aggFunc, ok := aggregateKeyword(field.Name); ok && p.at(LParen) {
		if err := p.advance(); err != nil {
			return nil, err
		}
		inner, _, err := p.qualifiedName()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(RParen); err != nil {
			return nil, err
		}
		f := aggFunc
		field.Aggregate = &f
		field.Name = inner
		return field, nil
	}

	if p.at(Arrow) {
		if err := p.advance(); err != nil {
			return nil, err
		}
		switch p.tok.Kind {
		case Int:
			idx := p.tok.Int
			if err := p.advance(); err != nil {
				return nil, err
			}
			field.JSONIndex = &idx
		case String:
			path := p.tok.Text
			if err := p.advance(); err != nil {
				return nil, err
			}
			field.JSONPath = path
		default:
			return nil, newParseError(p.tok.Pos, "expected a JSON path string or array index after '->', found %s", describeToken(p.tok))
		}
		return field, nil
	}

	if p.at(LParen) || p.at(LBrace) {
		nested := &Selection{Pos: pos}
		if p.at(LParen) {
			if err := p.parseSelectionArgs(nested); err != nil {
				return nil, err
			}
		}
		fields, err := p.parseSelectedFieldBlock()
		if err != nil {
			return nil, err
		}
		nested.Fields = fields
		field.Nested = nested
	}
	return field, nil
}

// parseSelectionArgs parses the `( ... )` argument list following an
// entity or relation-field name: filters, order_by, first, skip,
// before, after, nullable, search.
func (p *parserBase) parseSelectionArgs(sel *Selection) error {
	if _, err := p.expect(LParen); err != nil {
		return err
	}
	for !p.at(RParen) {
		if !p.at(Ident) {
			return newParseError(p.tok.Pos, "expected a filter, order_by, first, skip, before, after, nullable or search clause, found %s", describeToken(p.tok))
		}
		switch p.tok.Text {
		case "order_by", "ORDER_BY":
			if err := p.parseOrderBy(sel); err != nil {
				return err
			}
		case "nullable", "NULLABLE":
			if err := p.parseNullable(sel); err != nil {
				return err
			}
		case "first", "FIRST":
			if err := p.advance(); err != nil {
				return err
			}
			n, err := p.expect(Int)
			if err != nil {
				return err
			}
			v := n.Int
			sel.First = &v
		case "skip", "SKIP":
			if err := p.advance(); err != nil {
				return err
			}
			n, err := p.expect(Int)
			if err != nil {
				return err
			}
			v := n.Int
			sel.Skip = &v
		case "before", "BEFORE":
			if err := p.advance(); err != nil {
				return err
			}
			v, err := p.parseParenValue()
			if err != nil {
				return err
			}
			sel.Before = &v
		case "after", "AFTER":
			if err := p.advance(); err != nil {
				return err
			}
			v, err := p.parseParenValue()
			if err != nil {
				return err
			}
			sel.After = &v
		case "search", "SEARCH":
			if err := p.advance(); err != nil {
				return err
			}
			if _, err := p.expect(LParen); err != nil {
				return err
			}
			s, err := p.expect(String)
			if err != nil {
				return err
			}
			if _, err := p.expect(RParen); err != nil {
				return err
			}
			sel.Search = s.Text
			sel.HasSearch = true
		default:
			if err := p.parseFilterExpr(sel); err != nil {
				return err
			}
		}
		if p.at(Comma) {
			if err := p.advance(); err != nil {
				return err
			}
		}
	}
	if _, err := p.expect(RParen); err != nil {
		return err
	}
	return nil
}

func (p *parserBase) parseParenValue() (ValueExpr, error) {
	if _, err := p.expect(LParen); err != nil {
		return ValueExpr{}, err
	}
	v, err := p.parseValueExpr()
	if err != nil {
		return ValueExpr{}, err
	}
	if _, err := p.expect(RParen); err != nil {
		return ValueExpr{}, err
	}
	return v, nil
}

func (p *parserBase) parseOrderBy(sel *Selection) error {
	if err := p.advance(); err != nil { // consume "order_by"
		return err
	}
	if _, err := p.expect(LParen); err != nil {
		return err
	}
	for !p.at(RParen) {
		field, err := p.expect(Ident)
		if err != nil {
			return err
		}
		dir := Ascending
		if p.at(Ident) {
			switch p.tok.Text {
			case "asc", "ASC":
				dir = Ascending
				if err := p.advance(); err != nil {
					return err
				}
			case "desc", "DESC":
				dir = Descending
				if err := p.advance(); err != nil {
					return err
				}
			}
		}
		sel.OrderBy = append(sel.OrderBy, SortKey{Field: field.Text, Direction: dir})
		if p.at(Comma) {
			if err := p.advance(); err != nil {
				return err
			}
		}
	}
	if _, err := p.expect(RParen); err != nil {
		return err
	}
	return nil
}

// parseNullable parses a `nullable(field, ...)` clause: the field names
// listed are exempted from the "a projected field that comes back null
// drops its row" rule every other directly projected field is subject
// to.
func (p *parserBase) parseNullable(sel *Selection) error {
	if err := p.advance(); err != nil { // consume "nullable"
		return err
	}
	sel.HasNullable = true
	if _, err := p.expect(LParen); err != nil {
		return err
	}
	for !p.at(RParen) {
		field, err := p.expect(Ident)
		if err != nil {
			return err
		}
		sel.Nullable = append(sel.Nullable, field.Text)
		if p.at(Comma) {
			if err := p.advance(); err != nil {
				return err
			}
		}
	}
	if _, err := p.expect(RParen); err != nil {
		return err
	}
	return nil
}

func (p *parserBase) parseFilterExpr(sel *Selection) error {
	field, pos, err := p.qualifiedName()
	if err != nil {
		return err
	}
	var op CompareOp
	switch p.tok.Kind {
	case Eq:
		op = OpEq
	case Neq:
		op = OpNeq
	case Lt:
		op = OpLt
	case Lte:
		op = OpLte
	case Gt:
		op = OpGt
	case Gte:
		op = OpGte
	default:
		return newParseError(p.tok.Pos, "expected a comparison operator, found %s", describeToken(p.tok))
	}
	if err := p.advance(); err != nil {
		return err
	}
	v, err := p.parseValueExpr()
	if err != nil {
		return err
	}
	sel.Filters = append(sel.Filters, FilterExpr{Field: field, Op: op, Value: v, Pos: pos})
	return nil
}
