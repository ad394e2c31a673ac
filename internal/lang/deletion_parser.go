package lang

// ParseDeletion parses a `deletion name ($var, ...) { ... }` document
// into a DeletionDocument. Grounded on
// original_source/src/database/query_language/deletion.rs.
func ParseDeletion(src string) (*DeletionDocument, error) {
	p, err := newParserBase(src)
	if err != nil {
		return nil, err
	}
	if err := p.expectIdentText("deletion"); err != nil {
		return nil, err
	}
	nameTok, err := p.expect(Ident)
	if err != nil {
		return nil, err
	}
	doc := &DeletionDocument{Name: nameTok.Text}

	if _, err := p.expect(LParen); err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	for !p.at(RParen) {
		v, err := p.expect(Variable)
		if err != nil {
			return nil, err
		}
		if seen[v.Text] {
			return nil, newParseError(v.Pos, "duplicate variable name %q", v.Text)
		}
		seen[v.Text] = true
		doc.Variables = append(doc.Variables, v.Text)
		if p.at(Comma) {
			if err := p.advance(); err != nil {
				return nil, err
			}
		}
	}
	if _, err := p.expect(RParen); err != nil {
		return nil, err
	}

	if _, err := p.expect(LBrace); err != nil {
		return nil, err
	}
	for !p.at(RBrace) {
		ent, err := p.parseEntityDeletion()
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

func (p *parserBase) parseEntityDeletion() (*EntityDeletion, error) {
	name, pos, err := p.qualifiedName()
	if err != nil {
		return nil, err
	}
	ent := &EntityDeletion{EntityName: name, Pos: pos}
	if _, err := p.expect(LBrace); err != nil {
		return nil, err
	}
	first := true
	for !p.at(RBrace) {
		if first && p.at(Variable) {
			v, err := p.expect(Variable)
			if err != nil {
				return nil, err
			}
			ent.IDVar = v.Text
		} else {
			ref, err := p.parseReferenceDeletion()
			if err != nil {
				return nil, err
			}
			ent.References = append(ent.References, *ref)
		}
		first = false
		if p.at(Comma) {
			if err := p.advance(); err != nil {
				return nil, err
			}
		}
	}
	if _, err := p.expect(RBrace); err != nil {
		return nil, err
	}
	return ent, nil
}

func (p *parserBase) parseReferenceDeletion() (*ReferenceDeletion, error) {
	name, pos, err := p.qualifiedName()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(LBracket); err != nil {
		return nil, err
	}
	ref := &ReferenceDeletion{Name: name, Pos: pos}
	if p.at(Variable) {
		v, err := p.expect(Variable)
		if err != nil {
			return nil, err
		}
		ref.IDVar = v.Text
	}
	if _, err := p.expect(RBracket); err != nil {
		return nil, err
	}
	return ref, nil
}
