package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/conform/internal/engine"
	"github.com/roach88/conform/internal/registry"
	"github.com/roach88/conform/internal/report"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Violations at or above the fail level, failed scenarios
	ExitCommandError = 2 // Configuration or input error (unknown standard, missing target, etc.)
)

// Error codes the CLI adds to those of the registry (E00x, E1xx) and the
// engine (E01x).
const (
	ErrCodeGeneric    = "E001"
	ErrCodeViolations = "E_VIOLATIONS"
	ErrCodeTestFailed = "E_TEST_FAILED"
)

// ExitError represents an error with a specific exit code.
// Use this to return errors with meaningful exit codes from CLI commands.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)

	// Reported is set once the error has been written to the command's
	// output, so main does not print it again.
	Reported bool
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Configuration and input errors map to ExitCommandError; any other error
// that is not an ExitError is ExitFailure.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	if registry.IsConfigurationError(err) || engine.IsInputError(err) {
		return ExitCommandError
	}
	return ExitFailure
}

// errorCode returns the stable code reported for err.
func errorCode(err error) string {
	var cfgErr *registry.ConfigurationError
	if errors.As(err, &cfgErr) {
		return cfgErr.Code
	}
	var inErr *engine.InputError
	if errors.As(err, &inErr) {
		return string(inErr.Code)
	}
	return ErrCodeGeneric
}

// OutputFormatter handles text, JSON and markdown output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Separate writer for verbose/diagnostic output (defaults to Writer)
	Verbose   bool
}

// newFormatter builds the formatter for cmd. Diagnostics go to stderr so
// they never corrupt JSON on stdout.
func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	format := opts.Format
	if format == "" {
		format = "text"
	}
	return &OutputFormatter{
		Format:    format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // success payload
	Error  *CLIError `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`              // "E008", "E010", etc.
	Message string `json:"message"`           // human-readable message
	Details any    `json:"details,omitempty"` // additional context
}

// JSON reports whether output is JSON.
func (f *OutputFormatter) JSON() bool {
	return f.Format == "json"
}

// ReportFormat returns the report renderer matching the output format.
func (f *OutputFormatter) ReportFormat() report.Format {
	rf, err := report.ParseFormat(f.Format)
	if err != nil {
		return report.FormatText
	}
	return rf
}

// Success outputs a successful result in the configured format.
func (f *OutputFormatter) Success(data any) error {
	if f.JSON() {
		return f.encode(CLIResponse{Status: "ok", Data: data})
	}

	// Human-readable text output
	fmt.Fprintln(f.Writer, data)
	return nil
}

// Failure outputs a result that carries data but did not succeed, such as
// a run with violations.
func (f *OutputFormatter) Failure(code, message string, data any) error {
	return f.encode(CLIResponse{
		Status: "error",
		Data:   data,
		Error:  &CLIError{Code: code, Message: message},
	})
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.JSON() {
		return f.encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	// Human-readable error
	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// Fail outputs err and returns it as an ExitError with the matching exit
// code.
func (f *OutputFormatter) Fail(message string, err error) error {
	var exitErr *ExitError
	if errors.As(err, &exitErr) && exitErr.Err == nil {
		_ = f.Error(ErrCodeGeneric, exitErr.Message, nil)
		exitErr.Reported = true
		return exitErr
	}
	code := GetExitCode(err)
	if code == ExitFailure {
		code = ExitCommandError
	}
	_ = f.Error(errorCode(err), fmt.Sprintf("%s: %v", message, err), nil)
	wrapped := WrapExitError(code, message, err)
	wrapped.Reported = true
	return wrapped
}

// IsReported reports whether err was already written to the command output.
func IsReported(err error) bool {
	var exitErr *ExitError
	return errors.As(err, &exitErr) && exitErr.Reported
}

func (f *OutputFormatter) encode(resp CLIResponse) error {
	encoder := json.NewEncoder(f.Writer)
	encoder.SetIndent("", "  ")
	encoder.SetEscapeHTML(false)
	return encoder.Encode(resp)
}

// VerboseLog outputs a message only if verbose mode is enabled.
// Uses ErrWriter if set, otherwise falls back to Writer.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns the appropriate writer for diagnostic output.
// Returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}
