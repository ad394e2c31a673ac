package lang

import "fmt"

// Kind identifies a lexeme class.
type Kind int

const (
	EOF Kind = iota
	Ident
	Variable // $name
	String
	Int
	Float
	True
	False
	Null

	LBrace // {
	RBrace // }
	LParen // (
	RParen // )
	LBracket
	RBracket
	Colon
	Comma
	Dot
	At // @deprecated
	Arrow // ->

	Eq  // =
	Neq // !=
	Lt
	Lte
	Gt
	Gte
)

// Position is a 1-based line/column location, used for precise,
// location-bearing parse errors (spec.md §4.1).
type Position struct {
	Line   int
	Column int
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Token is one lexeme produced by the Lexer.
type Token struct {
	Kind  Kind
	Text  string // raw text for Ident/Variable; decoded value for String
	Int   int64
	Float float64
	Pos   Position
}

var kindNames = map[Kind]string{
	EOF: "end of input", Ident: "identifier", Variable: "variable",
	String: "string", Int: "integer", Float: "float",
	True: "true", False: "false", Null: "null",
	LBrace: "'{'", RBrace: "'}'", LParen: "'('", RParen: "')'",
	LBracket: "'['", RBracket: "']'", Colon: "':'", Comma: "','",
	Dot: "'.'", At: "'@'", Arrow: "'->'",
	Eq: "'='", Neq: "'!='", Lt: "'<'", Lte: "'<='", Gt: "'>'", Gte: "'>='",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown token"
}
