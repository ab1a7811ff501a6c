package engine

import (
	"errors"
	"fmt"
)

// InputErrorCode categorizes problems with the targets a caller asked for.
type InputErrorCode string

const (
	// ErrCodeTargetNotFound indicates a named target path does not exist.
	ErrCodeTargetNotFound InputErrorCode = "E010"

	// ErrCodeBadGlob indicates a target pattern is not a valid glob.
	ErrCodeBadGlob InputErrorCode = "E011"

	// ErrCodeNoTargets indicates the patterns matched no checkable file.
	ErrCodeNoTargets InputErrorCode = "E012"

	// ErrCodeUnreadable indicates a target exists but cannot be read.
	ErrCodeUnreadable InputErrorCode = "E013"
)

// InputError reports a target the caller named that cannot be checked.
// Input errors are fatal: no report is produced.
type InputError struct {
	Code    InputErrorCode
	Message string
	Target  string
	Err     error
}

// Error implements the error interface.
func (e *InputError) Error() string {
	if e.Target != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Target, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error, if any.
func (e *InputError) Unwrap() error {
	return e.Err
}

// IsInputError reports whether err wraps an InputError.
func IsInputError(err error) bool {
	var ie *InputError
	return errors.As(err, &ie)
}

func newInputError(code InputErrorCode, target, msg string, err error) *InputError {
	return &InputError{Code: code, Target: target, Message: msg, Err: err}
}
