package lang

import "fmt"

// ParseError is a location-bearing parse failure (spec.md §4.1: "the
// parser fails with a precise location-bearing error"). Modeled on the
// teacher's CompileError{Field, Message, Pos} shape
// (internal/compiler/concept.go), generalized to the four DSLs' own
// notion of "where" (a lexer Position rather than a CUE cue.Value).
type ParseError struct {
	Pos     Position
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %s", e.Pos, e.Message)
}

func newParseError(pos Position, format string, args ...any) *ParseError {
	return &ParseError{Pos: pos, Message: fmt.Sprintf(format, args...)}
}
