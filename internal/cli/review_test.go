package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const unlabelledInput = `<html lang="en"><body><input type="text"></body></html>`

func TestReviewResolvesFinding(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	writeFile(t, filepath.Join(dir, "page.html"), unlabelledInput)
	db := filepath.Join(dir, "runs.db")

	_, err := execute(t, NewCheckCommand(testRootOptions(t, "text")), "page.html", "-s", "ux", "--save", "--db", db)
	require.NoError(t, err, "needs_review is not a failure")

	out, err := execute(t, NewReviewCommand(testRootOptions(t, "text")), "ux-005", "*.html",
		"--status", "passed", "--reason", "ok", "--reviewer", "qa", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "\u2713 Recorded passed for UX-005 on *.html")

	_, err = execute(t, NewCheckCommand(testRootOptions(t, "text")), "page.html", "-s", "ux", "--save", "--db", db)
	require.NoError(t, err)

	out, err = execute(t, NewRunsCommand(testRootOptions(t, "json")), "--db", db)
	require.NoError(t, err)
	var runs struct {
		Data []RunInfo `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &runs))
	require.Len(t, runs.Data, 2)
	head, base := runs.Data[0].ID, runs.Data[1].ID

	out, err = execute(t, NewReportCommand(testRootOptions(t, "json")), "latest", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, head)
	assert.Contains(t, out, "reviewed: ok")

	out, err = execute(t, NewDiffCommand(testRootOptions(t, "text")), base, head, "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "new: 0, resolved: 1, changed: 0")
	assert.Contains(t, out, "UX-005")

	_, err = execute(t, NewDiffCommand(testRootOptions(t, "text")), head, base, "--db", db)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestReviewListAndDelete(t *testing.T) {
	db := filepath.Join(t.TempDir(), "state", "runs.db")

	out, err := execute(t, NewReviewCommand(testRootOptions(t, "text")), "--list", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "No review decisions.")

	_, err = execute(t, NewReviewCommand(testRootOptions(t, "text")), "UX-005", "web/**/*.html",
		"--status", "violated", "--reason", "no label on search box", "--reviewer", "qa", "--db", db)
	require.NoError(t, err)

	out, err = execute(t, NewReviewCommand(testRootOptions(t, "json")), "--list", "--db", db)
	require.NoError(t, err)
	var resp struct {
		Data []DecisionInfo `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "UX-005", resp.Data[0].RuleID)
	assert.Equal(t, "web/**/*.html", resp.Data[0].TargetGlob)
	assert.Equal(t, "qa", resp.Data[0].Reviewer)

	out, err = execute(t, NewReviewCommand(testRootOptions(t, "text")), "UX-005", "web/**/*.html", "--delete", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted decision for UX-005")

	_, err = execute(t, NewReviewCommand(testRootOptions(t, "text")), "UX-005", "web/**/*.html", "--delete", "--db", db)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestReviewErrors(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantOut string
	}{
		{"unknown rule", []string{"NOPE-1", "*", "--status", "passed", "--reason", "r"}, "Error [E009]"},
		{"bad status", []string{"UX-005", "*", "--status", "needs_review", "--reason", "r"}, "--status must be passed or violated"},
		{"no reason", []string{"UX-005", "*", "--status", "passed"}, "--reason is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, NewReviewCommand(testRootOptions(t, "text")), tt.args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, out, tt.wantOut)
		})
	}
}

func TestReviewArgs(t *testing.T) {
	_, err := execute(t, NewReviewCommand(testRootOptions(t, "text")), "UX-005")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 2 arg")
}

func TestReportWithoutStore(t *testing.T) {
	out, err := execute(t, NewReportCommand(testRootOptions(t, "text")), "latest")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "no run store")

	_, err = execute(t, NewRunsCommand(testRootOptions(t, "text")))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestReportStoredRunExitCode(t *testing.T) {
	dir := t.TempDir()
	bad := writeFile(t, filepath.Join(dir, "bad.js"), badJS)
	db := filepath.Join(dir, "runs.db")

	_, err := execute(t, NewCheckCommand(testRootOptions(t, "text")), bad, "-s", "security", "--save", "--db", db)
	require.Error(t, err)

	out, err := execute(t, NewReportCommand(testRootOptions(t, "text")), "latest", "--db", db)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "SEC-001")

	out, err = execute(t, NewRunsCommand(testRootOptions(t, "text")), "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "RUN")
	assert.Contains(t, out, "security")
}
