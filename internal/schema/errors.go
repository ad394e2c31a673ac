package schema

import "fmt"

// Schema validation error codes (E200-E299), continuing the Exxx
// numbering scheme the teacher uses for compiler/validate.go (E100s)
// and compiler/sync.go (E110s).
const (
	ErrDuplicateNamespace    = "E200" // namespace declared twice in one document
	ErrDuplicateEntity       = "E201" // entity declared twice in one document
	ErrReservedFieldName     = "E202" // field name shadows a system field
	ErrReservedEntityName    = "E203" // entity/field name collides with a scalar type keyword
	ErrUnknownEntity         = "E204" // reference to an entity not in the registry
	ErrUnknownField          = "E205" // reference to a field not on the named entity
	ErrInvalidDefaultValue   = "E206" // default value's type does not match the field's scalar type
	ErrRefDefaultNotAllowed  = "E207" // default given for a ref/ref-array field
	ErrUnknownIndexField     = "E208" // index(...) names a field the entity does not declare
	ErrFieldTypeChanged      = "E209" // evolution: a field's scalar/kind/ref target changed
	ErrMissingDefaultValue   = "E210" // evolution: a field went from nullable to required with no default
	ErrMissingField          = "E211" // evolution: update omitted a previously declared field
	ErrMissingEntity         = "E212" // evolution: update omitted a previously declared entity
	ErrDanglingReference     = "E213" // ref/ref-array field names an entity absent from the whole document
	ErrDuplicateField        = "E214" // field declared twice within one entity
)

// Error is a schema validation or evolution failure.
type Error struct {
	Code    string
	Entity  string
	Field   string
	Message string
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("[%s] %s.%s: %s", e.Code, e.Entity, e.Field, e.Message)
	}
	if e.Entity != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Entity, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func newError(code, entity, field, format string, args ...any) *Error {
	return &Error{Code: code, Entity: entity, Field: field, Message: fmt.Sprintf(format, args...)}
}

// IsSchemaError reports whether err is a *Error with the given code.
func IsSchemaError(err error, code string) bool {
	se, ok := err.(*Error)
	return ok && se.Code == code
}
