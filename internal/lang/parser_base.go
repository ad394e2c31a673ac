package lang

// parserBase holds the common lookahead-1 token-stream machinery shared
// by the data-model, mutation, query, and deletion parsers.
type parserBase struct {
	lex  *Lexer
	tok  Token
	err  error
}

func newParserBase(src string) (*parserBase, error) {
	p := &parserBase{lex: NewLexer(src)}
	if err := p.advance(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *parserBase) advance() error {
	tok, err := p.lex.Next()
	if err != nil {
		return err
	}
	p.tok = tok
	return nil
}

func (p *parserBase) at(k Kind) bool {
	return p.tok.Kind == k
}

func (p *parserBase) expect(k Kind) (Token, error) {
	if p.tok.Kind != k {
		return Token{}, newParseError(p.tok.Pos, "expected %s, found %s", k, describeToken(p.tok))
	}
	tok := p.tok
	if err := p.advance(); err != nil {
		return Token{}, err
	}
	return tok, nil
}

func (p *parserBase) expectIdentText(text string) error {
	tok, err := p.expect(Ident)
	if err != nil {
		return err
	}
	if tok.Text != text {
		return newParseError(tok.Pos, "expected %q, found %q", text, tok.Text)
	}
	return nil
}

func describeToken(t Token) string {
	if t.Kind == Ident || t.Kind == Variable {
		return t.Kind.String() + " " + t.Text
	}
	return t.Kind.String()
}

// qualifiedName parses `ident ('.' ident)*` and returns the dotted name.
func (p *parserBase) qualifiedName() (string, Position, error) {
	first, err := p.expect(Ident)
	if err != nil {
		return "", Position{}, err
	}
	name := first.Text
	for p.at(Dot) {
		if err := p.advance(); err != nil {
			return "", Position{}, err
		}
		part, err := p.expect(Ident)
		if err != nil {
			return "", Position{}, err
		}
		name += "." + part.Text
	}
	return name, first.Pos, nil
}
