package fiscal

import (
	"errors"
	"fmt"
)

var (
	ErrNoLines           = errors.New("invoice has no lines")
	ErrUnreconciledTotal = errors.New("line totals do not match invoice total")
	ErrUnreconciledLine  = errors.New("line base and tax do not match gross amount")
	ErrUnsupportedRate   = errors.New("unsupported VAT rate")
	ErrMissingField      = errors.New("required field missing")
	ErrNotReversible     = errors.New("invoice cannot be reversed")
)

// ValidationError reports a malformed draft. It is raised before anything is sent.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Value != nil {
		return fmt.Sprintf("validation error for field '%s' (value: %v): %s", e.Field, e.Value, e.Message)
	}
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func newValidationError(field string, value interface{}, err error, format string, args ...interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}
}
