package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/conform/internal/ir"
)

// createTestStore creates a new store in a temp dir for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestReport creates a report with one violated and one passed finding.
func createTestReport(target string) ir.Report {
	return ir.Report{
		ID:       "r-" + target,
		Standard: "security",
		Target:   ir.TargetInfo{Name: target, Path: target, Kind: ir.KindCode, Language: "javascript"},
		Findings: []ir.Finding{
			{
				RuleID: "SEC-001", Level: ir.LevelMust, Category: "injection", Status: ir.StatusViolated,
				Location: target + ":1",
				Evidence: []ir.Evidence{{Kind: ir.EvidenceForbidden, Fragment: "eval(<input>)", Line: 1, Confidence: ir.ConfidenceHigh}},
			},
			{RuleID: "SEC-002", Level: ir.LevelMust, Category: "secrets", Status: ir.StatusPassed},
		},
		Score:     ir.Score{Passed: 1, Violated: 1},
		Summary:   ir.Summary{Total: 2, Passed: 1, Violated: 1, ViolatedMust: 1},
		Digest:    "digest-" + target,
		IRVersion: ir.IRVersion,
	}
}

// createTestRun creates a run with one report per target.
func createTestRun(id string, targets ...string) *ir.Run {
	run := &ir.Run{
		ID:          id,
		Standard:    "security",
		FailLevel:   ir.LevelMust,
		RuleSetHash: "ruleset-hash",
		CreatedAt:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	for _, target := range targets {
		run.Reports = append(run.Reports, createTestReport(target))
	}
	return run
}
