package registry

import (
	"errors"
	"fmt"
	"strings"

	"cuelang.org/go/cue/token"

	"github.com/roach88/conform/internal/compiler"
)

// Error codes for configuration failures. Input-level codes (E0xx) match
// the CLI's; rule definition codes (E1xx) come from the compiler.
const (
	ErrCodeGeneric         = "E001" // Generic/unknown error
	ErrCodeScanError       = "E002" // Directory scan error
	ErrCodeNoFiles         = "E003" // No CUE files found
	ErrCodeLoadFailed      = "E004" // CUE load failed
	ErrCodeNotFound        = "E005" // Path not found
	ErrCodeBuildFailed     = "E006" // CUE build failed
	ErrCodeUnknownStandard = "E008" // Standard name not registered
	ErrCodeUnknownRule     = "E009" // Rule ID not registered
)

// ConfigurationError reports an unknown standard or a malformed rule
// definition. It is fatal: no partial report is produced.
type ConfigurationError struct {
	Code       string
	Message    string
	Pos        token.Pos
	Violations []compiler.ValidationError
	Err        error
}

func (e *ConfigurationError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Pos.IsValid() {
		msg = fmt.Sprintf("%s:%d:%d: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), msg)
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// convertCompileError converts a compiler error to a ConfigurationError with
// position info.
func convertCompileError(err error) *ConfigurationError {
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return &ConfigurationError{
			Code:    MapFieldToErrorCode(compileErr.Field),
			Message: compileErr.Message,
			Pos:     compileErr.Pos,
			Err:     err,
		}
	}
	return &ConfigurationError{
		Code:    ErrCodeGeneric,
		Message: err.Error(),
		Err:     err,
	}
}

func validationFailure(verrs []compiler.ValidationError) *ConfigurationError {
	msgs := make([]string, len(verrs))
	for i, v := range verrs {
		msgs[i] = v.Error()
	}
	return &ConfigurationError{
		Code:       verrs[0].Code,
		Message:    fmt.Sprintf("%d invalid rule definition(s): %s", len(verrs), strings.Join(msgs, "; ")),
		Violations: verrs,
	}
}

// MapFieldToErrorCode maps a compiler error field to an error code.
func MapFieldToErrorCode(field string) string {
	switch {
	case field == "level":
		return compiler.ErrInvalidLevel
	case field == "description":
		return compiler.ErrEmptyDescription
	case field == "category":
		return compiler.ErrEmptyCategory
	case field == "standard":
		return compiler.ErrStandardEmpty
	case strings.HasPrefix(field, "applies_to"):
		return compiler.ErrInvalidTargetKind
	case strings.HasPrefix(field, "forbid"), strings.HasPrefix(field, "require"), strings.HasPrefix(field, "review"):
		return compiler.ErrInvalidMatcher
	default:
		return ErrCodeGeneric
	}
}
