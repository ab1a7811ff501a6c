package evaluator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/roach88/conform/internal/ir"
	"github.com/roach88/conform/internal/report"
	"github.com/roach88/conform/internal/scanner"
)

// Reviewer resolves findings the evaluator could not decide. It is consulted
// only for needs_review findings and only after the core policy ran, so a
// reviewer can never turn a decided finding around.
type Reviewer interface {
	// Resolve returns the resolved finding and true, or false to leave the
	// finding for manual review.
	Resolve(ctx context.Context, target ir.TargetInfo, f ir.Finding) (ir.Finding, bool, error)
}

// Evaluator turns scanner evidence into findings and findings into a report.
//
// INVARIANTS:
//   - rules are evaluated in the order given, sequentially, sharing one scan
//     cache per target
//   - ambiguous evidence yields needs_review, never a guessed pass or fail
type Evaluator struct {
	reviewer Reviewer
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithReviewer installs an external reviewer for needs_review findings.
func WithReviewer(r Reviewer) Option {
	return func(e *Evaluator) {
		e.reviewer = r
	}
}

// New creates an Evaluator.
func New(opts ...Option) *Evaluator {
	e := &Evaluator{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate checks target against rules and builds the report for standard.
// Malformed target content is not an error: it yields no evidence and a
// report warning. The only error is context cancellation.
func (e *Evaluator) Evaluate(ctx context.Context, target *scanner.Target, standard string, rules []ir.Rule) (*ir.Report, error) {
	var warnings []string
	if err := target.Validate(); err != nil {
		slog.Warn("target content is not scannable", "target", target.Name, "error", err)
		warnings = append(warnings, err.Error())
	}

	s := scanner.New(target)
	findings := make([]ir.Finding, 0, len(rules))
	for _, rule := range rules {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("evaluate %s: %w", target.Name, err)
		}

		f := EvaluateRule(ctx, s, rule)
		if f.Status == ir.StatusNeedsReview && e.reviewer != nil {
			resolved, ok, err := e.reviewer.Resolve(ctx, target.Info(), f)
			switch {
			case err != nil:
				warnings = append(warnings, fmt.Sprintf("reviewer failed for %s: %v", rule.ID, err))
			case ok:
				f = resolved
			}
		}

		slog.Debug("rule evaluated",
			"target", target.Name,
			"rule", rule.ID,
			"status", f.Status,
			"evidence", len(f.Evidence),
		)
		findings = append(findings, f)
	}

	return report.Build(standard, target.Info(), findings, warnings)
}

// EvaluateRule applies the decision policy to one rule:
//
//  1. rule not applicable to the target: not_applicable
//  2. high-confidence forbidden evidence: violated
//  3. low-confidence forbidden evidence or review evidence: needs_review
//  4. require matchers: passed when every one matched, else violated
//  5. forbid matchers and nothing matched: passed
//  6. review matchers only and nothing matched: not_applicable
//  7. no matchers at all: needs_review
func EvaluateRule(ctx context.Context, s *scanner.Scanner, rule ir.Rule) ir.Finding {
	f := ir.Finding{
		RuleID:      rule.ID,
		Level:       rule.Level,
		Category:    rule.Category,
		Description: rule.Description,
	}

	if ok, reason := Applies(rule, s.Target()); !ok {
		f.Status = ir.StatusNotApplicable
		f.Reason = reason
		return f
	}

	evidence := s.Scan(ctx, rule)

	var forbiddenHigh, forbiddenLow, review, required []ir.Evidence
	for _, ev := range evidence {
		switch ev.Kind {
		case ir.EvidenceForbidden:
			if ev.Confidence == ir.ConfidenceLow {
				forbiddenLow = append(forbiddenLow, ev)
			} else {
				forbiddenHigh = append(forbiddenHigh, ev)
			}
		case ir.EvidenceReview:
			review = append(review, ev)
		case ir.EvidenceRequired:
			required = append(required, ev)
		}
	}

	switch {
	case len(forbiddenHigh) > 0:
		return decide(f, ir.StatusViolated, forbiddenHigh,
			fmt.Sprintf("forbidden pattern found (%d occurrence%s)", len(forbiddenHigh), plural(len(forbiddenHigh))))

	case len(forbiddenLow) > 0 || len(review) > 0:
		ev := append(append([]ir.Evidence{}, forbiddenLow...), review...)
		reason := "pattern requires human judgement; manual review required"
		if len(forbiddenLow) > 0 {
			reason = "possible violation matched with low confidence; manual review required"
		}
		return decide(f, ir.StatusNeedsReview, ev, reason)

	case len(rule.Require) > 0:
		var missing []string
		for _, m := range rule.Require {
			if !s.Matches(ctx, m) {
				missing = append(missing, describe(m))
			}
		}
		if len(missing) > 0 {
			return decide(f, ir.StatusViolated, nil, "required pattern absent: "+strings.Join(missing, "; "))
		}
		return decide(f, ir.StatusPassed, required, "all required patterns present")

	case len(rule.Forbid) > 0:
		return decide(f, ir.StatusPassed, nil, "no forbidden pattern found")

	case len(rule.Review) > 0:
		return decide(f, ir.StatusNotApplicable, nil, "target contains nothing this rule reviews")

	default:
		return decide(f, ir.StatusNeedsReview, nil, "no automated check; manual review required")
	}
}

func decide(f ir.Finding, status ir.Status, evidence []ir.Evidence, reason string) ir.Finding {
	f.Status = status
	f.Evidence = evidence
	f.Reason = reason
	if len(evidence) > 0 {
		f.Location = evidence[0].Location
	}
	return f
}

func describe(m ir.Matcher) string {
	if m.Message != "" {
		return m.Message
	}
	return m.Key()
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
