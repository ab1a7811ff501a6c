package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleFindings() []Finding {
	return []Finding{
		{
			RuleID: "SEC-001",
			Level:  LevelMust,
			Status: StatusViolated,
			Evidence: []Evidence{
				{Kind: EvidenceForbidden, Fragment: "eval(userInput)", Line: 3, Confidence: ConfidenceHigh},
			},
		},
		{RuleID: "SEC-002", Level: LevelShould, Status: StatusPassed},
	}
}

func TestReportDigestDeterminism(t *testing.T) {
	target := TargetInfo{Name: "app.js", Kind: KindCode}

	d1, err := ReportDigest("security", target, sampleFindings())
	require.NoError(t, err)
	d2, err := ReportDigest("security", target, sampleFindings())
	require.NoError(t, err)

	assert.Equal(t, d1, d2, "ReportDigest must be deterministic")
	assert.Len(t, d1, 64, "SHA-256 hex is 64 characters")
}

func TestReportDigestChangesWithVerdict(t *testing.T) {
	target := TargetInfo{Name: "app.js", Kind: KindCode}
	base, err := ReportDigest("security", target, sampleFindings())
	require.NoError(t, err)

	changed := sampleFindings()
	changed[1].Status = StatusViolated
	other, err := ReportDigest("security", target, changed)
	require.NoError(t, err)
	assert.NotEqual(t, base, other)

	otherStd, err := ReportDigest("cryptography", target, sampleFindings())
	require.NoError(t, err)
	assert.NotEqual(t, base, otherStd)
}

func TestReportDigestIgnoresReviewAnnotations(t *testing.T) {
	target := TargetInfo{Name: "app.js", Kind: KindCode}
	base, err := ReportDigest("security", target, sampleFindings())
	require.NoError(t, err)

	annotated := sampleFindings()
	annotated[0].Reason = "anything"
	annotated[0].ReviewedBy = "someone"
	other, err := ReportDigest("security", target, annotated)
	require.NoError(t, err)
	assert.Equal(t, base, other)
}

func TestRuleSetHash(t *testing.T) {
	rules := []Rule{
		{ID: "A", Level: LevelMust, Category: "c", Description: "d", Forbid: []Matcher{{Regex: "x"}}},
		{ID: "B", Level: LevelMay, Category: "c", Description: "d"},
	}
	h1, err := RuleSetHash(rules)
	require.NoError(t, err)
	h2, err := RuleSetHash(rules)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	rules[0].Forbid[0].Regex = "y"
	h3, err := RuleSetHash(rules)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3)
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "abcdef012345", ShortID("abcdef0123456789"))
	assert.Equal(t, "abc", ShortID("abc"))
}
