package harness

import (
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/conform/internal/ir"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Findings []ir.Finding // Findings of the target, for context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Findings) > 0 {
		fmt.Fprintf(&buf, "\nFindings:\n")
		for i, f := range e.Findings {
			fmt.Fprintf(&buf, "  [%d] %s %s\n", i+1, f.RuleID, f.Status)
		}
	}

	return buf.String()
}

// AssertionContext provides what assertions need beyond the result.
type AssertionContext struct {
	// Rerun checks the scenario again (deterministic).
	Rerun func() (*ir.Run, error)
}

// EvaluateAssertions runs every assertion and returns the failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertFinding:
			err = assertFinding(result, a)
		case AssertScore:
			err = assertScore(result, a)
		case AssertSummary:
			err = assertSummary(result, a)
		case AssertWarning:
			err = assertWarning(result, a)
		case AssertRunFailed:
			err = assertRunFailed(result, a)
		case AssertDeterministic:
			err = assertDeterministic(result, actx)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

func targetReport(result *Result, typ, target string) (*ir.Report, error) {
	rep, ok := result.Report(target)
	if !ok {
		return nil, &AssertionError{
			Type:     typ,
			Expected: fmt.Sprintf("a report for target %s", target),
			Actual:   "no such target in run",
		}
	}
	return rep, nil
}

// assertFinding checks one rule's status on a target, and optionally that
// some evidence fragment contains the expected text.
func assertFinding(result *Result, a Assertion) error {
	rep, err := targetReport(result, AssertFinding, a.Target)
	if err != nil {
		return err
	}
	want, _ := ir.ParseStatus(a.Status)

	for _, f := range rep.Findings {
		if !strings.EqualFold(f.RuleID, a.Rule) {
			continue
		}
		if f.Status != want {
			return &AssertionError{
				Type:     AssertFinding,
				Expected: fmt.Sprintf("%s %s on %s", a.Rule, want, a.Target),
				Actual:   fmt.Sprintf("%s (%s)", f.Status, f.Reason),
				Findings: rep.Findings,
			}
		}
		if a.Evidence == "" {
			return nil
		}
		for _, ev := range f.Evidence {
			if strings.Contains(ev.Fragment, a.Evidence) {
				return nil
			}
		}
		return &AssertionError{
			Type:     AssertFinding,
			Expected: fmt.Sprintf("%s evidence containing %q", a.Rule, a.Evidence),
			Actual:   fmt.Sprintf("%d evidence fragment(s) without it", len(f.Evidence)),
			Findings: rep.Findings,
		}
	}

	return &AssertionError{
		Type:     AssertFinding,
		Expected: fmt.Sprintf("finding for %s on %s", a.Rule, a.Target),
		Actual:   "rule not in report",
		Findings: rep.Findings,
	}
}

// assertScore compares the rendered score ("80.0%" or "N/A").
func assertScore(result *Result, a Assertion) error {
	rep, err := targetReport(result, AssertScore, a.Target)
	if err != nil {
		return err
	}

	score := rep.Score
	what := a.Target
	if a.Category != "" {
		found := false
		for _, c := range rep.Categories {
			if c.Category == a.Category {
				score, found = c.Score, true
				break
			}
		}
		if !found {
			return &AssertionError{
				Type:     AssertScore,
				Expected: fmt.Sprintf("category %s on %s", a.Category, a.Target),
				Actual:   "category not in report",
			}
		}
		what = a.Target + " " + a.Category
	}

	if got := score.Percent(); got != a.Expect {
		return &AssertionError{
			Type:     AssertScore,
			Expected: fmt.Sprintf("score %s for %s", a.Expect, what),
			Actual:   got,
			Findings: rep.Findings,
		}
	}
	return nil
}

func assertSummary(result *Result, a Assertion) error {
	rep, err := targetReport(result, AssertSummary, a.Target)
	if err != nil {
		return err
	}

	got := map[string]int{
		"total":          rep.Summary.Total,
		"passed":         rep.Summary.Passed,
		"violated":       rep.Summary.Violated,
		"not_applicable": rep.Summary.NotApplicable,
		"needs_review":   rep.Summary.NeedsReview,
	}
	keys := make([]string, 0, len(a.Counts))
	for k := range a.Counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var diffs []string
	for _, k := range keys {
		if want := a.Counts[k]; got[k] != want {
			diffs = append(diffs, fmt.Sprintf("%s=%d (want %d)", k, got[k], want))
		}
	}
	if len(diffs) > 0 {
		return &AssertionError{
			Type:     AssertSummary,
			Expected: fmt.Sprintf("summary counts %v on %s", a.Counts, a.Target),
			Actual:   strings.Join(diffs, ", "),
			Findings: rep.Findings,
		}
	}
	return nil
}

func assertWarning(result *Result, a Assertion) error {
	rep, err := targetReport(result, AssertWarning, a.Target)
	if err != nil {
		return err
	}
	for _, w := range rep.Warnings {
		if strings.Contains(w, a.Contains) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertWarning,
		Expected: fmt.Sprintf("warning containing %q on %s", a.Contains, a.Target),
		Actual:   fmt.Sprintf("warnings %q", rep.Warnings),
	}
}

func assertRunFailed(result *Result, a Assertion) error {
	if got := result.Run.Failed(); got != *a.Failed {
		return &AssertionError{
			Type:     AssertRunFailed,
			Expected: fmt.Sprintf("failed=%t at level %s", *a.Failed, result.Run.FailLevel),
			Actual:   fmt.Sprintf("failed=%t", got),
		}
	}
	return nil
}

// assertDeterministic checks the scenario again and compares digests
// report by report.
func assertDeterministic(result *Result, actx *AssertionContext) error {
	if actx == nil || actx.Rerun == nil {
		return fmt.Errorf("deterministic: no rerun available")
	}
	again, err := actx.Rerun()
	if err != nil {
		return fmt.Errorf("deterministic: rerun failed: %w", err)
	}

	if len(again.Reports) != len(result.Run.Reports) {
		return &AssertionError{
			Type:     AssertDeterministic,
			Expected: fmt.Sprintf("%d reports", len(result.Run.Reports)),
			Actual:   fmt.Sprintf("%d reports", len(again.Reports)),
		}
	}
	for i := range again.Reports {
		first, second := result.Run.Reports[i], again.Reports[i]
		if first.Digest != second.Digest {
			return &AssertionError{
				Type:     AssertDeterministic,
				Expected: fmt.Sprintf("digest %s for %s", ir.ShortID(first.Digest), first.Target.Name),
				Actual:   ir.ShortID(second.Digest),
				Findings: second.Findings,
			}
		}
	}
	return nil
}
