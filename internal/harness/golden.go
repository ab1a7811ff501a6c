package harness

import (
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/conform/internal/ir"
)

// Snapshot is the golden view of a scenario run: per target, the score and
// each finding's status and location. Digests, IDs and timestamps are left
// out so the snapshot only changes when outcomes change.
type Snapshot struct {
	Scenario string
	Standard string
	Failed   bool
	Error    string
	Targets  []TargetSnapshot
}

// TargetSnapshot is one report in a Snapshot.
type TargetSnapshot struct {
	Name     string
	Score    string
	Findings []FindingSnapshot
	Warnings []string
}

// FindingSnapshot is one finding in a TargetSnapshot.
type FindingSnapshot struct {
	Rule     string
	Status   ir.Status
	Location string
}

// NewSnapshot builds the snapshot of result.
func NewSnapshot(name string, result *Result) Snapshot {
	s := Snapshot{Scenario: name}
	if result.Run == nil {
		s.Error = "expected error"
		return s
	}
	s.Standard = result.Run.Standard
	s.Failed = result.Run.Failed()
	for _, rep := range result.Run.Reports {
		display := result.displayName(rep.Target.Name)
		ts := TargetSnapshot{
			Name:     display,
			Score:    rep.Score.Percent(),
			Warnings: rep.Warnings,
		}
		for _, f := range rep.Findings {
			loc := f.Location
			if rep.Target.Path != "" {
				loc = strings.Replace(loc, rep.Target.Path, display, 1)
			}
			ts.Findings = append(ts.Findings, FindingSnapshot{
				Rule:     f.RuleID,
				Status:   f.Status,
				Location: loc,
			})
		}
		s.Targets = append(s.Targets, ts)
	}
	return s
}

// toCanonicalMap converts a Snapshot to a map[string]any for canonical JSON
// serialization. ir.MarshalCanonical only handles maps, slices and
// primitives.
func (s *Snapshot) toCanonicalMap() map[string]any {
	targets := make([]any, len(s.Targets))
	for i, t := range s.Targets {
		findings := make([]any, len(t.Findings))
		for j, f := range t.Findings {
			fm := map[string]any{
				"rule":   f.Rule,
				"status": string(f.Status),
			}
			if f.Location != "" {
				fm["location"] = f.Location
			}
			findings[j] = fm
		}
		tm := map[string]any{
			"name":     t.Name,
			"score":    t.Score,
			"findings": findings,
		}
		if len(t.Warnings) > 0 {
			tm["warnings"] = t.Warnings
		}
		targets[i] = tm
	}

	m := map[string]any{
		"scenario": s.Scenario,
		"failed":   s.Failed,
		"targets":  targets,
	}
	if s.Standard != "" {
		m["standard"] = s.Standard
	}
	if s.Error != "" {
		m["error"] = s.Error
	}
	return m
}

// Marshal returns the canonical JSON form compared against golden files.
func (s *Snapshot) Marshal() ([]byte, error) {
	return ir.MarshalCanonical(s.toCanonicalMap())
}

// RunWithGolden executes a scenario and compares its snapshot against a
// golden file stored in testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails. Test failure (via goldie)
// occurs if the snapshot doesn't match the golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(t.Context(), scenario)
	if err != nil {
		return nil, err
	}
	return result, AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares the snapshot of an existing result against a golden
// file without re-running the scenario.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	snapshot := NewSnapshot(name, result)
	data, err := snapshot.Marshal()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)

	return nil
}
