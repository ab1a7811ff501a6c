package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/conform/internal/ir"
)

func testRun(reports ...ir.Report) *ir.Run {
	return &ir.Run{
		ID:        "run-1",
		Standard:  "security",
		FailLevel: ir.LevelMust,
		CreatedAt: time.Unix(1767225600, 0).UTC(),
		Reports:   reports,
	}
}

func badReport() ir.Report {
	return ir.Report{
		Target: ir.TargetInfo{Name: "bad.js"},
		Findings: []ir.Finding{
			{RuleID: "SEC-001", Level: ir.LevelMust, Status: ir.StatusViolated},
			{RuleID: "SEC-003", Level: ir.LevelShould, Status: ir.StatusViolated},
			{RuleID: "SEC-002", Level: ir.LevelMust, Status: ir.StatusPassed},
			{RuleID: "SEC-006", Level: ir.LevelShould, Status: ir.StatusNotApplicable},
		},
		Score:   ir.Score{Passed: 1, Violated: 2},
		Summary: ir.Summary{Total: 4, Passed: 1, Violated: 2, NotApplicable: 1},
	}
}

func naReport() ir.Report {
	return ir.Report{
		Target:   ir.TargetInfo{Name: "page.md"},
		Findings: []ir.Finding{{RuleID: "SEC-001", Level: ir.LevelMust, Status: ir.StatusNotApplicable}},
		Summary:  ir.Summary{Total: 1, NotApplicable: 1},
	}
}

func writeAndRead(t *testing.T, m *Metrics) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "textfile", "conform.prom")
	require.NoError(t, m.WriteTextfile(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestObserve_Textfile(t *testing.T) {
	m := New()
	m.Observe(testRun(badReport(), naReport()))

	out := writeAndRead(t, m)
	assert.Contains(t, out, `conform_score_ratio{standard="security",target="bad.js"} 0.3333333333333333`)
	assert.NotContains(t, out, `conform_score_ratio{standard="security",target="page.md"}`)
	assert.Contains(t, out, `conform_findings{standard="security",status="violated",target="bad.js"} 2`)
	assert.Contains(t, out, `conform_findings{standard="security",status="not_applicable",target="page.md"} 1`)
	assert.Contains(t, out, `conform_violations{level="MUST",standard="security"} 1`)
	assert.Contains(t, out, `conform_violations{level="SHOULD",standard="security"} 1`)
	assert.Contains(t, out, `conform_violations{level="MAY",standard="security"} 0`)
	assert.Contains(t, out, `conform_run_failed{standard="security"} 1`)
	assert.Contains(t, out, `conform_last_run_timestamp_seconds{standard="security"} 1.7672256e+09`)
	assert.Contains(t, out, `conform_checks_total{standard="security"} 1`)
	assert.Contains(t, out, "# HELP conform_score_ratio")
}

func TestObserve_ReplacesTargets(t *testing.T) {
	m := New()
	m.Observe(testRun(badReport()))

	next := testRun(naReport())
	m.Observe(next)

	out := writeAndRead(t, m)
	assert.NotContains(t, out, `target="bad.js"`)
	assert.Contains(t, out, `conform_run_failed{standard="security"} 0`)
	assert.Contains(t, out, `conform_checks_total{standard="security"} 2`)
}

func TestObserve_KeepsOtherStandards(t *testing.T) {
	m := New()
	m.Observe(testRun(badReport()))

	ux := testRun(naReport())
	ux.Standard = "ux"
	m.Observe(ux)

	out := writeAndRead(t, m)
	assert.Contains(t, out, `conform_score_ratio{standard="security",target="bad.js"}`)
	assert.Contains(t, out, `conform_run_failed{standard="ux"} 0`)
}

func TestGatherer(t *testing.T) {
	m := New()
	m.Observe(testRun(badReport()))

	families, err := m.Gatherer().Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Equal(t, []string{
		"conform_checks_total",
		"conform_findings",
		"conform_last_run_timestamp_seconds",
		"conform_run_failed",
		"conform_score_ratio",
		"conform_violations",
	}, names)
}
