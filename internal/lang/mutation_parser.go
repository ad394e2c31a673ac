package lang

// ParseMutation parses a `mutation name { ... }` document into a
// MutationDocument. Grounded on
// original_source/src/database/query_language/mutation_parser.rs.
func ParseMutation(src string) (*MutationDocument, error) {
	p, err := newParserBase(src)
	if err != nil {
		return nil, err
	}
	if err := p.expectIdentText("mutation"); err != nil {
		return nil, err
	}
	nameTok, err := p.expect(Ident)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(LBrace); err != nil {
		return nil, err
	}
	doc := &MutationDocument{Name: nameTok.Text}
	for !p.at(RBrace) {
		ent, err := p.parseTopLevelMutationEntity()
		if err != nil {
			return nil, err
		}
		doc.Entities = append(doc.Entities, *ent)
	}
	if _, err := p.expect(RBrace); err != nil {
		return nil, err
	}
	return doc, nil
}

// parseTopLevelMutationEntity parses `[alias :] EntityName { field... }`.
func (p *parserBase) parseTopLevelMutationEntity() (*MutationEntity, error) {
	first, pos, err := p.qualifiedName()
	if err != nil {
		return nil, err
	}
	ent := &MutationEntity{Pos: pos}
	if p.at(Colon) {
		if err := p.advance(); err != nil {
			return nil, err
		}
		entityName, _, err := p.qualifiedName()
		if err != nil {
			return nil, err
		}
		ent.Alias = first
		ent.Entity = entityName
	} else {
		ent.Entity = first
	}
	fields, err := p.parseMutationFieldBlock()
	if err != nil {
		return nil, err
	}
	ent.Fields = fields
	return ent, nil
}

// parseNestedMutationEntity parses an entity-valued field's `{ ... }`
// body, whose entity type is resolved later from the referring field's
// schema (no explicit entity name appears in the source text).
func (p *parserBase) parseNestedMutationEntity() (*MutationEntity, error) {
	pos := p.tok.Pos
	fields, err := p.parseMutationFieldBlock()
	if err != nil {
		return nil, err
	}
	return &MutationEntity{Pos: pos, Fields: fields}, nil
}

func (p *parserBase) parseMutationFieldBlock() ([]MutationField, error) {
	if _, err := p.expect(LBrace); err != nil {
		return nil, err
	}
	var fields []MutationField
	for !p.at(RBrace) {
		field, err := p.parseMutationField()
		if err != nil {
			return nil, err
		}
		fields = append(fields, *field)
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

func (p *parserBase) parseMutationField() (*MutationField, error) {
	name, pos, err := p.qualifiedName()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(Colon); err != nil {
		return nil, err
	}
	field := &MutationField{Name: name, Pos: pos}
	switch {
	case p.at(LBrace):
		nested, err := p.parseNestedMutationEntity()
		if err != nil {
			return nil, err
		}
		field.Value = MutationFieldValue{Nested: nested}
	case p.at(LBracket):
		if err := p.advance(); err != nil {
			return nil, err
		}
		var elems []MutationEntity
		for !p.at(RBracket) {
			elem, err := p.parseNestedMutationEntity()
			if err != nil {
				return nil, err
			}
			elems = append(elems, *elem)
			if p.at(Comma) {
				if err := p.advance(); err != nil {
					return nil, err
				}
			}
		}
		if _, err := p.expect(RBracket); err != nil {
			return nil, err
		}
		field.Value = MutationFieldValue{Array: elems}
	default:
		v, err := p.parseValueExpr()
		if err != nil {
			return nil, err
		}
		field.Value = MutationFieldValue{Scalar: &v}
	}
	return field, nil
}
