package lang

import "github.com/roach88/meshroom/internal/ir"

// ValueExpr is a value appearing on the right-hand side of a field
// assignment or filter comparison: either a `$variable` reference or a
// literal (spec.md §4.1: "a variable or literal").
type ValueExpr struct {
	IsVariable bool
	VarName    string     // set when IsVariable
	Literal    ir.Value   // set when !IsVariable
	Pos        Position
}

// parseValueExpr parses one `$name` or literal value. Used by the
// mutation, query (filter RHS), and deletion (array_field elements)
// grammars.
func (p *parserBase) parseValueExpr() (ValueExpr, error) {
	pos := p.tok.Pos
	switch p.tok.Kind {
	case Variable:
		name := p.tok.Text
		if err := p.advance(); err != nil {
			return ValueExpr{}, err
		}
		return ValueExpr{IsVariable: true, VarName: name, Pos: pos}, nil
	case String:
		text := p.tok.Text
		if err := p.advance(); err != nil {
			return ValueExpr{}, err
		}
		return ValueExpr{Literal: ir.VString(text), Pos: pos}, nil
	case Int:
		n := p.tok.Int
		if err := p.advance(); err != nil {
			return ValueExpr{}, err
		}
		return ValueExpr{Literal: ir.VInt(n), Pos: pos}, nil
	case Float:
		f := p.tok.Float
		if err := p.advance(); err != nil {
			return ValueExpr{}, err
		}
		return ValueExpr{Literal: ir.VFloat(f), Pos: pos}, nil
	case True:
		if err := p.advance(); err != nil {
			return ValueExpr{}, err
		}
		return ValueExpr{Literal: ir.VBool(true), Pos: pos}, nil
	case False:
		if err := p.advance(); err != nil {
			return ValueExpr{}, err
		}
		return ValueExpr{Literal: ir.VBool(false), Pos: pos}, nil
	case Null:
		if err := p.advance(); err != nil {
			return ValueExpr{}, err
		}
		return ValueExpr{Literal: ir.VNull{}, Pos: pos}, nil
	default:
		return ValueExpr{}, newParseError(pos, "expected a variable or literal, found %s", describeToken(p.tok))
	}
}
