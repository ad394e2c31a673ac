package lang

import "github.com/roach88/meshroom/internal/ir"

// ParseDataModel parses a data-model DSL document into a
// DataModelDocument. Grounded on
// original_source/src/database/query_language/data_model_parser.rs,
// generalized from pest's grammar-file-driven parse into an explicit
// recursive-descent parser over parserBase/Lexer.
func ParseDataModel(src string) (*DataModelDocument, error) {
	p, err := newParserBase(src)
	if err != nil {
		return nil, err
	}
	doc := &DataModelDocument{}
	for !p.at(EOF) {
		ns, err := p.parseNamespace()
		if err != nil {
			return nil, err
		}
		doc.Namespaces = append(doc.Namespaces, *ns)
	}
	return doc, nil
}

func (p *parserBase) parseNamespace() (*NamespaceDecl, error) {
	name, pos, err := p.qualifiedName()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(LBrace); err != nil {
		return nil, err
	}
	ns := &NamespaceDecl{Name: name, Pos: pos}
	for !p.at(RBrace) {
		entity, err := p.parseEntity()
		if err != nil {
			return nil, err
		}
		ns.Entities = append(ns.Entities, *entity)
	}
	if _, err := p.expect(RBrace); err != nil {
		return nil, err
	}
	return ns, nil
}

func (p *parserBase) parseEntity() (*EntityDecl, error) {
	entity := &EntityDecl{}
	if p.at(At) {
		if err := p.parseDeprecatedMarker(); err != nil {
			return nil, err
		}
		entity.Deprecated = true
	}
	name, pos, err := p.qualifiedName()
	if err != nil {
		return nil, err
	}
	entity.Name = name
	entity.Pos = pos

	if _, err := p.expect(LBrace); err != nil {
		return nil, err
	}
	for !p.at(RBrace) {
		switch {
		case p.isIndexKeyword():
			idx, err := p.parseIndexDecl()
			if err != nil {
				return nil, err
			}
			entity.Indices = append(entity.Indices, *idx)
		case p.isFullTextKeyword():
			fields, err := p.parseFullTextDecl()
			if err != nil {
				return nil, err
			}
			entity.FullText = fields
		default:
			field, err := p.parseFieldDecl()
			if err != nil {
				return nil, err
			}
			entity.Fields = append(entity.Fields, *field)
		}
		if p.at(Comma) {
			if err := p.advance(); err != nil {
				return nil, err
			}
		}
	}
	if _, err := p.expect(RBrace); err != nil {
		return nil, err
	}
	return entity, nil
}

func (p *parserBase) parseDeprecatedMarker() error {
	if _, err := p.expect(At); err != nil {
		return err
	}
	return p.expectIdentText("deprecated")
}

func (p *parserBase) isIndexKeyword() bool {
	return p.at(Ident) && (p.tok.Text == "index" || p.tok.Text == "INDEX")
}

func (p *parserBase) isFullTextKeyword() bool {
	return p.at(Ident) && (p.tok.Text == "fulltext" || p.tok.Text == "FULLTEXT")
}

func (p *parserBase) parseIndexDecl() (*IndexDecl, error) {
	pos := p.tok.Pos
	if err := p.advance(); err != nil { // consume "index"/"INDEX"
		return nil, err
	}
	if _, err := p.expect(LParen); err != nil {
		return nil, err
	}
	idx := &IndexDecl{Pos: pos}
	for {
		f, err := p.expect(Ident)
		if err != nil {
			return nil, err
		}
		idx.Fields = append(idx.Fields, f.Text)
		if p.at(Comma) {
			if err := p.advance(); err != nil {
				return nil, err
			}
			continue
		}
		break
	}
	if _, err := p.expect(RParen); err != nil {
		return nil, err
	}
	return idx, nil
}

func (p *parserBase) parseFullTextDecl() ([]string, error) {
	if err := p.advance(); err != nil { // consume "fulltext"/"FULLTEXT"
		return nil, err
	}
	if _, err := p.expect(LParen); err != nil {
		return nil, err
	}
	var fields []string
	for {
		f, err := p.expect(Ident)
		if err != nil {
			return nil, err
		}
		fields = append(fields, f.Text)
		if p.at(Comma) {
			if err := p.advance(); err != nil {
				return nil, err
			}
			continue
		}
		break
	}
	if _, err := p.expect(RParen); err != nil {
		return nil, err
	}
	return fields, nil
}

func (p *parserBase) parseFieldDecl() (*FieldDecl, error) {
	field := &FieldDecl{}
	if p.at(At) {
		if err := p.parseDeprecatedMarker(); err != nil {
			return nil, err
		}
		field.Deprecated = true
	}
	name, pos, err := p.qualifiedName()
	if err != nil {
		return nil, err
	}
	field.Name = name
	field.Pos = pos

	if _, err := p.expect(Colon); err != nil {
		return nil, err
	}

	if p.at(LBracket) {
		if err := p.advance(); err != nil {
			return nil, err
		}
		refName, _, err := p.qualifiedName()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(RBracket); err != nil {
			return nil, err
		}
		field.Kind = ir.KindRefArray
		field.RefEntity = refName
	} else {
		typeName, typePos, err := p.qualifiedName()
		if err != nil {
			return nil, err
		}
		scalar, ok := scalarKeyword(typeName)
		if ok {
			field.Kind = ir.KindScalar
			field.Scalar = scalar
		} else {
			field.Kind = ir.KindRef
			field.RefEntity = typeName
			_ = typePos
		}
	}

	for p.at(Ident) {
		switch p.tok.Text {
		case "nullable", "NULLABLE":
			field.Nullable = true
			if err := p.advance(); err != nil {
				return nil, err
			}
		case "default", "DEFAULT":
			if err := p.advance(); err != nil {
				return nil, err
			}
			v, err := p.parseValueExpr()
			if err != nil {
				return nil, err
			}
			if v.IsVariable {
				return nil, newParseError(v.Pos, "default value must be a literal, not a variable")
			}
			field.Default = v.Literal
		default:
			return field, nil
		}
	}
	return field, nil
}

func scalarKeyword(name string) (ir.ScalarType, bool) {
	switch name {
	case "Integer", "integer":
		return ir.TInt, true
	case "Float", "float":
		return ir.TFloat, true
	case "Boolean", "boolean":
		return ir.TBool, true
	case "String", "string":
		return ir.TString, true
	case "Base64", "base64":
		return ir.TBase64, true
	case "Json", "json", "JSON":
		return ir.TJSON, true
	default:
		return 0, false
	}
}
