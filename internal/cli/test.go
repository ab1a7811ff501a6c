package cli

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/conform/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update bool   // regenerate golden files
	Filter string // scenario filter (glob pattern)
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name   string   `json:"name"`
	File   string   `json:"file"`
	Pass   bool     `json:"pass"`
	Golden string   `json:"golden,omitempty"` // "matched", "updated", "mismatch" or "" when there is no golden file
	Errors []string `json:"errors,omitempty"`
}

// TestResult holds the overall test result.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run conformance scenarios",
		Long: `Run YAML conformance scenarios against the rule registry.

Each scenario checks inline or file targets against a standard and asserts
findings, scores and the run outcome. When golden/<scenario>.golden exists
next to a scenario file, the run's snapshot must match it byte for byte.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  conform test ./scenarios
  conform test ./scenarios --filter "ux-*"
  conform test ./scenarios --update
  conform test ./scenarios --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")

	return cmd
}

func runTests(opts *TestOptions, scenariosDir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	scenarioFiles, err := harness.FindScenarios(scenariosDir, opts.Filter)
	if err != nil {
		var notFound *harness.ScenarioDirNotFoundError
		if errors.As(err, &notFound) {
			return formatter.Fail("scenarios directory not found",
				NewExitError(ExitCommandError, fmt.Sprintf("scenarios directory not found: %s", scenariosDir)))
		}
		return formatter.Fail("failed to find scenarios", err)
	}

	if len(scenarioFiles) == 0 {
		if formatter.JSON() {
			return outputTestJSON(formatter, TestResult{Scenarios: []ScenarioResult{}})
		}
		fmt.Fprintln(formatter.Writer, "No scenarios found.")
		return nil
	}

	result := TestResult{
		Scenarios: make([]ScenarioResult, 0, len(scenarioFiles)),
		Total:     len(scenarioFiles),
	}

	for _, scenarioFile := range scenarioFiles {
		scenResult := runScenario(opts, scenarioFile, cmd)
		if !formatter.JSON() {
			printScenarioResult(formatter, scenResult)
		}
		result.Scenarios = append(result.Scenarios, scenResult)

		if scenResult.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
	}

	if formatter.JSON() {
		return outputTestJSON(formatter, result)
	}
	return outputTestText(formatter, result)
}

// runScenario executes a single scenario and returns the result.
func runScenario(opts *TestOptions, scenarioFile string, cmd *cobra.Command) ScenarioResult {
	res := ScenarioResult{Name: filepath.Base(scenarioFile), File: scenarioFile}

	scenario, err := harness.LoadScenario(scenarioFile)
	if err != nil {
		res.Errors = []string{fmt.Sprintf("failed to load scenario: %v", err)}
		return res
	}
	res.Name = scenario.Name

	result, err := harness.Run(commandContext(cmd), scenario)
	if err != nil {
		res.Errors = []string{fmt.Sprintf("execution failed: %v", err)}
		return res
	}
	res.Errors = result.Errors

	snapshot := harness.NewSnapshot(scenario.Name, result)
	current, err := snapshot.Marshal()
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("failed to marshal snapshot: %v", err))
		return res
	}

	goldenPath := harness.GoldenPath(scenarioFile)
	if opts.Update {
		if err := writeGolden(goldenPath, current); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("failed to update golden file: %v", err))
			return res
		}
		res.Golden = "updated"
		res.Pass = result.Pass
		return res
	}

	golden, err := os.ReadFile(goldenPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// No golden file - assertions only.
	case err != nil:
		res.Errors = append(res.Errors, fmt.Sprintf("failed to read golden file: %v", err))
		return res
	case !bytes.Equal(golden, current):
		res.Golden = "mismatch"
		res.Errors = append(res.Errors, "snapshot does not match golden file (run with --update to regenerate)")
		return res
	default:
		res.Golden = "matched"
	}

	res.Pass = result.Pass
	return res
}

// writeGolden writes the snapshot as the golden file.
func writeGolden(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create golden directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write golden file: %w", err)
	}
	return nil
}

func printScenarioResult(formatter *OutputFormatter, res ScenarioResult) {
	w := formatter.Writer
	if !res.Pass {
		fmt.Fprintf(w, "\u2717 %s\n", res.Name)
		for _, e := range res.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
		return
	}
	if res.Golden == "updated" {
		fmt.Fprintf(w, "\u2713 %s (golden updated)\n", res.Name)
		return
	}
	fmt.Fprintf(w, "\u2713 %s\n", res.Name)
}

// outputTestJSON outputs the test result as JSON.
func outputTestJSON(formatter *OutputFormatter, result TestResult) error {
	if result.Failed == 0 {
		return formatter.Success(result)
	}

	msg := fmt.Sprintf("%d scenario(s) failed", result.Failed)
	if err := formatter.Failure(ErrCodeTestFailed, msg, result); err != nil {
		return err
	}
	// Test failures = exit code 1
	return NewExitError(ExitFailure, msg)
}

// outputTestText outputs the test result as text.
func outputTestText(formatter *OutputFormatter, result TestResult) error {
	w := formatter.Writer

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Test Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)

	if result.Failed > 0 {
		// Test failures = exit code 1
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}

	fmt.Fprintln(w, "\u2713 All scenarios passed")
	return nil
}
