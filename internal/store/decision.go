package store

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/roach88/conform/internal/ir"
)

// Decision is a manual verdict for one rule on every target matching a glob.
// It resolves needs_review findings and waives nothing else.
type Decision struct {
	RuleID     string
	TargetGlob string // doublestar pattern matched against the target path
	Status     ir.Status
	Reason     string
	Reviewer   string
	CreatedAt  time.Time
}

// Matches reports whether the decision covers ruleID on target.
func (d Decision) Matches(ruleID string, target ir.TargetInfo) bool {
	if !strings.EqualFold(d.RuleID, ruleID) {
		return false
	}
	path := target.Path
	if path == "" {
		path = target.Name
	}
	path = strings.TrimPrefix(filepath.ToSlash(path), "./")
	ok, err := doublestar.Match(d.TargetGlob, path)
	return err == nil && ok
}

// DecisionReviewer resolves needs_review findings from stored decisions.
// It reads the decisions once; decisions recorded later are not seen.
type DecisionReviewer struct {
	decisions []Decision
}

// NewDecisionReviewer snapshots the decisions currently in s.
func NewDecisionReviewer(ctx context.Context, s *Store) (*DecisionReviewer, error) {
	decisions, err := s.Decisions(ctx)
	if err != nil {
		return nil, fmt.Errorf("load review decisions: %w", err)
	}
	return &DecisionReviewer{decisions: decisions}, nil
}

// Len returns the number of loaded decisions.
func (r *DecisionReviewer) Len() int {
	return len(r.decisions)
}

// Resolve applies the most specific matching decision: the one with the
// longest glob. Ties go to the glob that sorts first.
func (r *DecisionReviewer) Resolve(_ context.Context, target ir.TargetInfo, f ir.Finding) (ir.Finding, bool, error) {
	var best *Decision
	for i := range r.decisions {
		d := &r.decisions[i]
		if !d.Matches(f.RuleID, target) {
			continue
		}
		if best == nil || len(d.TargetGlob) > len(best.TargetGlob) {
			best = d
		}
	}
	if best == nil {
		return f, false, nil
	}

	f.Status = best.Status
	f.Reason = "reviewed: " + best.Reason
	f.ReviewedBy = best.Reviewer
	if f.ReviewedBy == "" {
		f.ReviewedBy = "manual"
	}
	return f, true, nil
}
