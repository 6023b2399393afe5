package formula

import (
	"errors"
	"fmt"
)

// Causes wrapped by *Error. Use errors.Is to classify a failure.
var (
	ErrSyntax         = errors.New("syntax error")
	ErrUndefined      = errors.New("undefined identifier")
	ErrType           = errors.New("type mismatch")
	ErrDivisionByZero = errors.New("division by zero")
	ErrBudgetExceeded = errors.New("evaluation budget exceeded")
	ErrTooComplex     = errors.New("formula too complex")
)

// Error is returned for any formula that fails to compile or evaluate.
type Error struct {
	Formula string
	Pos     int // byte offset into Formula, -1 when unknown
	Msg     string
	Err     error
}

func (e *Error) Error() string {
	if e.Pos >= 0 {
		return fmt.Sprintf("%v at offset %d: %s", e.Err, e.Pos, e.Msg)
	}
	return fmt.Sprintf("%v: %s", e.Err, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(cause error, pos int, format string, args ...any) *Error {
	return &Error{Pos: pos, Msg: fmt.Sprintf(format, args...), Err: cause}
}
