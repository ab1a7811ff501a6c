package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/conform/internal/ir"
)

// Scenario defines a conformance scenario: a standard checked against a set
// of targets, with assertions on the resulting findings and scores.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Standard is the standard to check against.
	Standard string `yaml:"standard"`

	// Packs lists extra rule pack directories loaded on top of the built-in
	// standards. Relative paths resolve against the scenario file.
	Packs []string `yaml:"packs,omitempty"`

	// FailLevel is the lowest level whose violations fail the run.
	// Defaults to MUST.
	FailLevel string `yaml:"fail_level,omitempty"`

	// Targets are checked in order.
	Targets []TargetSpec `yaml:"targets"`

	// Decisions are manual review decisions recorded before the check.
	Decisions []DecisionSpec `yaml:"decisions,omitempty"`

	// ExpectError, when set, is an error code (e.g. "E008") the check must
	// fail with. Assertions are then not evaluated.
	ExpectError string `yaml:"expect_error,omitempty"`

	// Assertions validate the run.
	Assertions []Assertion `yaml:"assertions"`

	baseDir string
}

// TargetSpec is either a file (Path: a file, directory or glob) or inline
// content (Name and Content).
type TargetSpec struct {
	Path    string `yaml:"path,omitempty"`
	Name    string `yaml:"name,omitempty"`
	Content string `yaml:"content,omitempty"`
}

// DecisionSpec is a manual review decision.
type DecisionSpec struct {
	Rule     string `yaml:"rule"`
	Glob     string `yaml:"glob"`
	Status   string `yaml:"status"`
	Reason   string `yaml:"reason"`
	Reviewer string `yaml:"reviewer,omitempty"`
}

// Assertion validates the run produced by a scenario.
type Assertion struct {
	// Type specifies the assertion type:
	// - "finding": a rule's status (and optionally evidence) on a target
	// - "score": a target or category score, e.g. "80.0%" or "N/A"
	// - "summary": finding counts on a target
	// - "warning": a target report carries a warning
	// - "run_failed": whether the run fails at its fail level
	// - "deterministic": a second check yields identical digests
	Type string `yaml:"type"`

	// Target selects a report by name (finding, score, summary, warning).
	Target string `yaml:"target,omitempty"`

	// Rule is the rule ID (finding).
	Rule string `yaml:"rule,omitempty"`

	// Status is the expected status (finding).
	Status string `yaml:"status,omitempty"`

	// Evidence must appear in some evidence fragment (finding).
	Evidence string `yaml:"evidence,omitempty"`

	// Category restricts a score assertion to one category.
	Category string `yaml:"category,omitempty"`

	// Expect is the expected score (score).
	Expect string `yaml:"expect,omitempty"`

	// Counts are expected summary counts keyed by total, passed, violated,
	// not_applicable or needs_review (summary).
	Counts map[string]int `yaml:"counts,omitempty"`

	// Contains must appear in a warning (warning).
	Contains string `yaml:"contains,omitempty"`

	// Failed is the expected run outcome (run_failed).
	Failed *bool `yaml:"failed,omitempty"`
}

// Assertion type constants.
const (
	AssertFinding       = "finding"
	AssertScore         = "score"
	AssertSummary       = "summary"
	AssertWarning       = "warning"
	AssertRunFailed     = "run_failed"
	AssertDeterministic = "deterministic"
)

var summaryCounts = map[string]bool{
	"total":          true,
	"passed":         true,
	"violated":       true,
	"not_applicable": true,
	"needs_review":   true,
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
// Relative target and pack paths resolve against the file's directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	base, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve scenario directory: %w", err)
	}
	scenario.baseDir = base
	for i, p := range scenario.Packs {
		scenario.Packs[i] = resolve(base, p)
	}
	for i := range scenario.Targets {
		if scenario.Targets[i].Path != "" {
			scenario.Targets[i].Path = resolve(base, scenario.Targets[i].Path)
		}
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

func resolve(base, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if s.Standard == "" {
		return fmt.Errorf("standard is required")
	}

	if s.FailLevel != "" {
		if _, err := ir.ParseLevel(s.FailLevel); err != nil {
			return fmt.Errorf("fail_level: %w", err)
		}
	}

	if len(s.Targets) == 0 {
		return fmt.Errorf("targets list is required and must be non-empty")
	}

	if s.ExpectError == "" && len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for _, dir := range s.Packs {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			return fmt.Errorf("pack directory not found: %s", dir)
		}
	}

	for i, t := range s.Targets {
		switch {
		case t.Path != "" && (t.Name != "" || t.Content != ""):
			return fmt.Errorf("targets[%d]: path and inline content are exclusive", i)
		case t.Path == "" && t.Name == "":
			return fmt.Errorf("targets[%d]: path or name is required", i)
		}
	}

	for i, d := range s.Decisions {
		if d.Rule == "" || d.Glob == "" || d.Reason == "" {
			return fmt.Errorf("decisions[%d]: rule, glob and reason are required", i)
		}
		status, err := ir.ParseStatus(d.Status)
		if err != nil {
			return fmt.Errorf("decisions[%d]: %w", i, err)
		}
		if status != ir.StatusPassed && status != ir.StatusViolated {
			return fmt.Errorf("decisions[%d]: status must be passed or violated", i)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertFinding:
		if a.Target == "" || a.Rule == "" || a.Status == "" {
			return fmt.Errorf("assertions[%d]: target, rule and status are required for finding", index)
		}
		if _, err := ir.ParseStatus(a.Status); err != nil {
			return fmt.Errorf("assertions[%d]: %w", index, err)
		}
	case AssertScore:
		if a.Target == "" || a.Expect == "" {
			return fmt.Errorf("assertions[%d]: target and expect are required for score", index)
		}
	case AssertSummary:
		if a.Target == "" || len(a.Counts) == 0 {
			return fmt.Errorf("assertions[%d]: target and counts are required for summary", index)
		}
		for k := range a.Counts {
			if !summaryCounts[k] {
				return fmt.Errorf("assertions[%d]: unknown summary count %q", index, k)
			}
		}
	case AssertWarning:
		if a.Target == "" || a.Contains == "" {
			return fmt.Errorf("assertions[%d]: target and contains are required for warning", index)
		}
	case AssertRunFailed:
		if a.Failed == nil {
			return fmt.Errorf("assertions[%d]: failed is required for run_failed", index)
		}
	case AssertDeterministic:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
