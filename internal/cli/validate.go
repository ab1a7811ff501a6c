package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/conform/internal/compiler"
	"github.com/roach88/conform/internal/registry"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid     bool                       `json:"valid"`
	Standards []PackStandard             `json:"standards,omitempty"`
	Errors    []compiler.ValidationError `json:"errors,omitempty"`
}

// PackStandard is a standard declared by the validated packs.
type PackStandard struct {
	Name  string `json:"name"`
	Rules int    `json:"rules"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <packs-dir>",
		Short: "Validate rule packs without evaluating",
		Long: `Validate the CUE rule packs in a directory without evaluating any target.

Checks syntax, the rule schema (levels, IDs, descriptions, matchers, regular
expressions) and that no rule ID collides with a built-in rule.

Exit codes:
  0 - All packs valid
  1 - One or more invalid rule definitions
  2 - Command error (directory not found, no CUE files, etc.)`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, packsDir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	if files, err := registry.FindPackFiles(packsDir); err == nil {
		formatter.VerboseLog("Found %d CUE file(s) in %s", len(files), packsDir)
	}

	stds, err := registry.CompileDir(packsDir)
	if err == nil {
		// Collisions with built-in rule IDs only show up on merge.
		var reg *registry.Registry
		reg, err = registry.New()
		if err == nil {
			err = reg.AddDir(packsDir)
		}
	}
	if err != nil {
		var cfgErr *registry.ConfigurationError
		if errors.As(err, &cfgErr) && len(cfgErr.Violations) > 0 {
			return outputValidationErrors(formatter, cfgErr.Violations)
		}
		if errors.As(err, &cfgErr) && cfgErr.Code != registry.ErrCodeNotFound && cfgErr.Code != registry.ErrCodeNoFiles {
			return outputValidationErrors(formatter, []compiler.ValidationError{{
				Field:   "pack",
				Message: cfgErr.Message,
				Code:    cfgErr.Code,
				Line:    lineOf(cfgErr),
			}})
		}
		return formatter.Fail("invalid rule packs", err)
	}

	result := ValidationResult{Valid: true}
	for _, std := range stds {
		formatter.VerboseLog("Validated standard: %s (%d rules)", std.Name, len(std.Rules))
		result.Standards = append(result.Standards, PackStandard{Name: std.Name, Rules: len(std.Rules)})
	}
	return outputValidateSuccess(formatter, result)
}

func lineOf(err *registry.ConfigurationError) int {
	if err.Pos.IsValid() {
		return err.Pos.Line()
	}
	return 0
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, result ValidationResult) error {
	if formatter.JSON() {
		return formatter.Success(result)
	}

	rules := 0
	for _, s := range result.Standards {
		rules += s.Rules
	}
	fmt.Fprintf(formatter.Writer, "\u2713 All packs valid (%d standard(s), %d rule(s))\n", len(result.Standards), rules)
	return nil
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(formatter *OutputFormatter, errs []compiler.ValidationError) error {
	if formatter.JSON() {
		result := ValidationResult{
			Valid:  false,
			Errors: errs,
		}
		if err := formatter.Failure(errs[0].Code, errs[0].Message, result); err != nil {
			return err
		}

		// Validation failures = exit code 1 (test/validation failure)
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	// Text format
	fmt.Fprintln(formatter.Writer, "\u2717 Validation failed")
	fmt.Fprintln(formatter.Writer)

	for _, err := range errs {
		if err.Line > 0 {
			fmt.Fprintf(formatter.Writer, "line %d\n", err.Line)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s: %s\n\n", err.Code, err.Field, err.Message)
	}

	// Validation failures = exit code 1 (test/validation failure)
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}
