package meshroom

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes host API failures (spec.md §7's taxonomy).
type ErrorCode string

const (
	ErrCodeParse            ErrorCode = "PARSE"
	ErrCodeSchemaViolation  ErrorCode = "SCHEMA_VIOLATION"
	ErrCodeUnauthorized     ErrorCode = "UNAUTHORIZED"
	ErrCodeNotFound         ErrorCode = "NOT_FOUND"
	ErrCodeConflict         ErrorCode = "CONFLICT"
	ErrCodeInvalidSignature ErrorCode = "INVALID_SIGNATURE"
	ErrCodeTransportFault   ErrorCode = "TRANSPORT_FAULT"
	ErrCodeTimeout          ErrorCode = "TIMEOUT"
	ErrCodeBackpressure     ErrorCode = "BACKPRESSURE"
	ErrCodeInternal         ErrorCode = "INTERNAL"
)

// Error is the host API's uniform error shape (spec.md §7: "parse,
// schema, authorization, and not-found surface synchronously to the
// caller with the offending location/row"), grounded on
// roach88-nysm/brutalist/internal/engine/errors.go's RuntimeError:
// a Code plus enough structured context for a caller to act on the
// failure without string-matching Message.
type Error struct {
	Code    ErrorCode
	Message string
	Room    string
	Entity  string
	RowID   string
	Err     error
}

func (e *Error) Error() string {
	if e.Entity != "" && e.RowID != "" {
		return fmt.Sprintf("%s: %s (entity=%s, row=%s)", e.Code, e.Message, e.Entity, e.RowID)
	}
	if e.Entity != "" {
		return fmt.Sprintf("%s: %s (entity=%s)", e.Code, e.Message, e.Entity)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(code ErrorCode, room, entity string, err error) *Error {
	return &Error{Code: code, Message: err.Error(), Room: room, Entity: entity, Err: err}
}

// IsUnauthorizedError reports whether err is (or wraps) an Unauthorized
// Error, the same errors.As-friendly pattern the teacher's
// IsCycleError/IsQuotaError use.
func IsUnauthorizedError(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == ErrCodeUnauthorized
}

// IsNotFoundError reports whether err is (or wraps) a NotFound Error.
func IsNotFoundError(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == ErrCodeNotFound
}

// IsConflictError reports whether err is (or wraps) a Conflict Error.
func IsConflictError(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == ErrCodeConflict
}
