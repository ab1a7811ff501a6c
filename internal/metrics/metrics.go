// Package metrics exposes run results as Prometheus metrics written to a
// node_exporter textfile, so scheduled checks show up on dashboards without
// a long-running server.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/conform/internal/ir"
)

const namespace = "conform"

// Metrics holds the collectors for the most recent run of each standard.
type Metrics struct {
	reg        *prometheus.Registry
	score      *prometheus.GaugeVec
	findings   *prometheus.GaugeVec
	violations *prometheus.GaugeVec
	failed     *prometheus.GaugeVec
	lastRun    *prometheus.GaugeVec
	checks     *prometheus.CounterVec
}

// New creates the collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		score: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "score_ratio",
			Help:      "Compliance score per target (passed / applicable). Absent when the score is N/A.",
		}, []string{"standard", "target"}),
		findings: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "findings",
			Help:      "Findings per target by status.",
		}, []string{"standard", "target", "status"}),
		violations: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "violations",
			Help:      "Violated findings across all targets by rule level.",
		}, []string{"standard", "level"}),
		failed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_failed",
			Help:      "1 when the last run has a violation at or above its fail level.",
		}, []string{"standard"}),
		lastRun: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Creation time of the last run.",
		}, []string{"standard"}),
		checks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checks_total",
			Help:      "Runs observed since the process started.",
		}, []string{"standard"}),
	}
	m.reg.MustRegister(m.score, m.findings, m.violations, m.failed, m.lastRun, m.checks)
	return m
}

// Gatherer returns the registry holding the collectors.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.reg
}

// Observe records run, replacing the per-target series of its standard.
func (m *Metrics) Observe(run *ir.Run) {
	std := run.Standard
	m.score.DeletePartialMatch(prometheus.Labels{"standard": std})
	m.findings.DeletePartialMatch(prometheus.Labels{"standard": std})
	m.violations.DeletePartialMatch(prometheus.Labels{"standard": std})

	byLevel := map[ir.Level]int{ir.LevelMust: 0, ir.LevelShould: 0, ir.LevelMay: 0}
	for _, rep := range run.Reports {
		target := rep.Target.Name
		if v, ok := rep.Score.Float(); ok {
			m.score.WithLabelValues(std, target).Set(v)
		}
		counts := map[ir.Status]int{
			ir.StatusPassed:        rep.Summary.Passed,
			ir.StatusViolated:      rep.Summary.Violated,
			ir.StatusNotApplicable: rep.Summary.NotApplicable,
			ir.StatusNeedsReview:   rep.Summary.NeedsReview,
		}
		for status, n := range counts {
			m.findings.WithLabelValues(std, target, string(status)).Set(float64(n))
		}
		for _, f := range rep.Findings {
			if f.Status == ir.StatusViolated {
				byLevel[f.Level]++
			}
		}
	}
	for level, n := range byLevel {
		m.violations.WithLabelValues(std, string(level)).Set(float64(n))
	}

	failed := 0.0
	if run.Failed() {
		failed = 1
	}
	m.failed.WithLabelValues(std).Set(failed)
	m.lastRun.WithLabelValues(std).Set(float64(run.CreatedAt.Unix()))
	m.checks.WithLabelValues(std).Inc()
}

// WriteTextfile writes every metric to path in the Prometheus text format.
// The file is replaced atomically.
func (m *Metrics) WriteTextfile(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create metrics directory: %w", err)
		}
	}
	if err := prometheus.WriteToTextfile(path, m.reg); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
