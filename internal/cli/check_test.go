package cli

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/conform/internal/ir"
	"github.com/roach88/conform/internal/store"
)

const (
	badJS  = "const out = eval(userInput);\n"
	goodJS = "const out = JSON.parse(userInput);\n"
)

func TestCheckViolation(t *testing.T) {
	dir := t.TempDir()
	bad := writeFile(t, filepath.Join(dir, "bad.js"), badJS)

	out, err := execute(t, NewCheckCommand(testRootOptions(t, "text")), bad, "--standard", "security")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "1 violation(s) at or above MUST")
	assert.Contains(t, out, "SEC-001")
	assert.Contains(t, out, "violated")
	assert.Contains(t, out, "eval(userInput)")
}

func TestCheckClean(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, filepath.Join(dir, "good.js"), goodJS)

	out, err := execute(t, NewCheckCommand(testRootOptions(t, "text")), good, "--standard", "security")
	require.NoError(t, err)
	assert.Contains(t, out, "Score: 100.0%")
	assert.NotContains(t, out, "violated")
}

func TestCheckDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "src", "bad.js"), badJS)
	writeFile(t, filepath.Join(dir, "src", "good.js"), goodJS)

	out, err := execute(t, NewCheckCommand(testRootOptions(t, "text")), filepath.Join(dir, "src"), "-s", "security")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Overall: 90.0% across 2 targets")
}

func TestCheckInlineContent(t *testing.T) {
	out, err := execute(t, NewCheckCommand(testRootOptions(t, "text")),
		"--standard", "ux", "--content", `<html lang="en"><body><img src="a.png"></body></html>`, "--content-name", "page.html")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "ux: page.html")
	assert.Contains(t, out, "UX-001")
	assert.Contains(t, out, "line 1")
}

func TestCheckJSON(t *testing.T) {
	dir := t.TempDir()
	bad := writeFile(t, filepath.Join(dir, "bad.js"), badJS)

	out, err := execute(t, NewCheckCommand(testRootOptions(t, "json")), bad, "--standard", "security")
	require.Error(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeViolations, resp.Error.Code)

	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "security", data["standard"])
	assert.Equal(t, "MUST", data["fail_level"])
	assert.Len(t, data["reports"], 1)
}

func TestCheckMarkdown(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, filepath.Join(dir, "good.js"), goodJS)

	out, err := execute(t, NewCheckCommand(testRootOptions(t, "markdown")), good, "--standard", "security")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "# Compliance run "))
	assert.Contains(t, out, "| Rule | Level | Category | Status | Location | Evidence |")
}

func TestCheckErrors(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, filepath.Join(dir, "good.js"), goodJS)

	tests := []struct {
		name    string
		args    []string
		wantOut string
	}{
		{"unknown standard", []string{good, "--standard", "nope"}, "Error [E008]"},
		{"missing target", []string{filepath.Join(dir, "missing.js"), "--standard", "security"}, "Error [E010]"},
		{"bad glob", []string{filepath.Join(dir, "[a-"), "--standard", "security"}, "Error [E011]"},
		{"no targets", []string{"--standard", "security"}, "no targets"},
		{"no standard", []string{good}, "--standard is required"},
		{"bad fail level", []string{good, "--standard", "security", "--fail-level", "ALWAYS"}, "invalid fail level"},
		{"unknown disabled rule", []string{good, "--standard", "security", "--disable", "SEC-999"}, "Error [E009]"},
		{"publish without url", []string{good, "--standard", "security", "--publish"}, "NATS URL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, NewCheckCommand(testRootOptions(t, "text")), tt.args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, out, tt.wantOut)
		})
	}
}

func TestCheckFailLevel(t *testing.T) {
	dir := t.TempDir()
	packs := filepath.Join(dir, "packs")
	writeFile(t, filepath.Join(packs, "house.cue"), `package rules

standard: house: {
	title: "House style"
	rule: "HS-001": {
		level:       "SHOULD"
		category:    "style"
		description: "Prose uses spaces, not tabs."
		forbid: [{regex: "\t"}]
	}
}
`)
	notes := writeFile(t, filepath.Join(dir, "notes.txt"), "a\tb\n")

	_, err := execute(t, NewCheckCommand(testRootOptions(t, "text")), notes, "--standard", "house", "--packs", packs)
	require.NoError(t, err, "SHOULD violations do not fail at MUST")

	_, err = execute(t, NewCheckCommand(testRootOptions(t, "text")), notes, "--standard", "house", "--packs", packs, "--fail-level", "SHOULD")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestCheckDisable(t *testing.T) {
	dir := t.TempDir()
	bad := writeFile(t, filepath.Join(dir, "bad.js"), badJS)

	out, err := execute(t, NewCheckCommand(testRootOptions(t, "text")), bad, "--standard", "security", "--disable", "SEC-001")
	require.NoError(t, err)
	assert.NotContains(t, out, "SEC-001")
}

func TestCheckSaveOutMetrics(t *testing.T) {
	dir := t.TempDir()
	bad := writeFile(t, filepath.Join(dir, "bad.js"), badJS)
	outDir := filepath.Join(dir, "reports")
	metricsFile := filepath.Join(dir, "metrics", "conform.prom")
	opts := testRootOptions(t, "markdown")

	_, err := execute(t, NewCheckCommand(opts), bad, "--standard", "security",
		"--save", "--out="+outDir, "--metrics-file", metricsFile)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	st, err := store.Open(opts.Config.Store.Path)
	require.NoError(t, err)
	defer st.Close()
	runs, err := st.ListRuns(context.Background(), "security", 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 1, runs[0].Targets)

	entries, err := os.ReadDir(outDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasPrefix(entries[0].Name(), "bad.js-"))
	assert.Equal(t, ".md", filepath.Ext(entries[0].Name()))

	prom, err := os.ReadFile(metricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(prom), `conform_run_failed{standard="security"} 1`)
}

func TestCheckOutUsesConfiguredDir(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, filepath.Join(dir, "good.js"), goodJS)
	opts := testRootOptions(t, "json")
	opts.Config.Reporting.OutDir = filepath.Join(dir, "configured")

	_, err := execute(t, NewCheckCommand(opts), good, "--standard", "security", "--out")
	require.NoError(t, err)

	entries, err := os.ReadDir(opts.Config.Reporting.OutDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ".json", filepath.Ext(entries[0].Name()))
}

func reportWith(name, id string) *ir.Report {
	return &ir.Report{ID: id, Target: ir.TargetInfo{Name: name}}
}

func TestReportFileName(t *testing.T) {
	assert.Equal(t, "app.js-abc123", reportFileName(reportWith("src/app.js", "abc123")))
	assert.Equal(t, "my_file_.md-abc123", reportFileName(reportWith("docs/my file?.md", "abc123")))
}
