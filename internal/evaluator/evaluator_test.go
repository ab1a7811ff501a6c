package evaluator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/conform/internal/ir"
	"github.com/roach88/conform/internal/registry"
	"github.com/roach88/conform/internal/scanner"
)

func loadRules(t *testing.T, standard string) []ir.Rule {
	t.Helper()
	reg, err := registry.Default()
	require.NoError(t, err)
	rules, err := reg.LoadRules(standard)
	require.NoError(t, err)
	return rules
}

func findingFor(t *testing.T, r *ir.Report, id string) ir.Finding {
	t.Helper()
	for _, f := range r.Findings {
		if f.RuleID == id {
			return f
		}
	}
	t.Fatalf("no finding for %s", id)
	return ir.Finding{}
}

func rule(id string, mod func(*ir.Rule)) ir.Rule {
	r := ir.Rule{ID: id, Level: ir.LevelMust, Category: "test", Description: id}
	mod(&r)
	return r
}

func TestEvaluateEvalUntrustedInput(t *testing.T) {
	target := scanner.FromString("snippet.js", "eval(userInput)")

	r, err := New().Evaluate(context.Background(), target, "security", loadRules(t, "security"))
	require.NoError(t, err)

	f := findingFor(t, r, "SEC-001")
	assert.Equal(t, ir.StatusViolated, f.Status)
	require.NotEmpty(t, f.Evidence)
	assert.Contains(t, f.Evidence[0].Fragment, "eval(userInput)")
	assert.Equal(t, "line 1", f.Location)

	v, ok := r.Score.Float()
	require.True(t, ok)
	assert.Less(t, v, 1.0)
	assert.Positive(t, r.ViolatedAtOrAbove(ir.LevelMust))
}

func TestEvaluateLiteralEvalPasses(t *testing.T) {
	target := scanner.FromString("snippet.js", `eval("1 + 1")`)

	r, err := New().Evaluate(context.Background(), target, "security", loadRules(t, "security"))
	require.NoError(t, err)
	assert.Equal(t, ir.StatusPassed, findingFor(t, r, "SEC-001").Status)
}

func TestEvaluateMarkupRuleOnCodeIsNotApplicable(t *testing.T) {
	target := scanner.FromString("snippet.js", "const x = 1;\n")

	r, err := New().Evaluate(context.Background(), target, "ux", loadRules(t, "ux"))
	require.NoError(t, err)

	f := findingFor(t, r, "UX-001")
	assert.Equal(t, ir.StatusNotApplicable, f.Status)
	assert.NotEmpty(t, f.Reason)

	// Nothing in the standard applies, so nothing enters the score.
	assert.Equal(t, 0, r.Summary.Passed+r.Summary.Violated)
	assert.Equal(t, "N/A", r.Score.Percent())
	for _, c := range r.Categories {
		assert.Equal(t, "N/A", c.Score.Percent(), c.Category)
	}
}

func TestEvaluateImageWithoutAlt(t *testing.T) {
	html := "<!doctype html>\n<html lang=\"en\">\n<body>\n<img src=\"a.png\">\n<img src=\"b.png\" alt=\"b\">\n</body>\n</html>\n"
	target := scanner.FromString("page.html", html)

	r, err := New().Evaluate(context.Background(), target, "ux", loadRules(t, "ux"))
	require.NoError(t, err)

	ux1 := findingFor(t, r, "UX-001")
	assert.Equal(t, ir.StatusViolated, ux1.Status)
	require.Len(t, ux1.Evidence, 1)
	assert.Equal(t, 4, ux1.Evidence[0].Line)

	assert.Equal(t, ir.StatusPassed, findingFor(t, r, "UX-002").Status)
}

func TestEvaluateEmptyTargetEmptyRules(t *testing.T) {
	r, err := New().Evaluate(context.Background(), scanner.FromString("", ""), "none", nil)
	require.NoError(t, err)

	assert.Empty(t, r.Findings)
	assert.Equal(t, "N/A", r.Score.Percent())
	assert.Empty(t, r.Warnings)
}

func TestEvaluateDeterministic(t *testing.T) {
	content := "const a = eval(x);\nconst b = eval(y);\nfetch('http://example.com/api');\n"
	rules := loadRules(t, "security")

	a, err := New().Evaluate(context.Background(), scanner.FromString("app.js", content), "security", rules)
	require.NoError(t, err)
	b, err := New().Evaluate(context.Background(), scanner.FromString("app.js", content), "security", rules)
	require.NoError(t, err)

	assert.Equal(t, a.Digest, b.Digest)
	assert.Equal(t, a.ID, b.ID)
	assert.Equal(t, a.Findings, b.Findings)
}

func TestEvaluateFindingsFollowRuleOrder(t *testing.T) {
	rules := []ir.Rule{
		rule("B-1", func(r *ir.Rule) {}),
		rule("A-1", func(r *ir.Rule) {}),
	}
	r, err := New().Evaluate(context.Background(), scanner.FromString("x.txt", "text"), "s", rules)
	require.NoError(t, err)

	require.Len(t, r.Findings, 2)
	assert.Equal(t, "B-1", r.Findings[0].RuleID)
	assert.Equal(t, "A-1", r.Findings[1].RuleID)
}

func TestEvaluateRulePolicy(t *testing.T) {
	content := "password = \"hunter2\"\nvalue := compute()\nsee TODO later\n"

	tests := []struct {
		name   string
		rule   ir.Rule
		status ir.Status
		reason string
		lines  []int
	}{
		{
			name:   "high confidence forbidden",
			rule:   rule("R1", func(r *ir.Rule) { r.Forbid = []ir.Matcher{{Regex: `password\s*=`}} }),
			status: ir.StatusViolated,
			reason: "forbidden pattern found (1 occurrence)",
			lines:  []int{1},
		},
		{
			name:   "low confidence forbidden",
			rule:   rule("R2", func(r *ir.Rule) { r.Forbid = []ir.Matcher{{Regex: `compute`, Confidence: ir.ConfidenceLow}} }),
			status: ir.StatusNeedsReview,
			reason: "possible violation matched with low confidence; manual review required",
			lines:  []int{2},
		},
		{
			name: "high confidence wins over low",
			rule: rule("R3", func(r *ir.Rule) {
				r.Forbid = []ir.Matcher{{Regex: `compute`, Confidence: ir.ConfidenceLow}, {Regex: `hunter2`}}
			}),
			status: ir.StatusViolated,
			lines:  []int{1},
		},
		{
			name:   "review evidence",
			rule:   rule("R4", func(r *ir.Rule) { r.Review = []ir.Matcher{{Regex: `TODO`}} }),
			status: ir.StatusNeedsReview,
			reason: "pattern requires human judgement; manual review required",
			lines:  []int{3},
		},
		{
			name:   "review matcher without match",
			rule:   rule("R5", func(r *ir.Rule) { r.Review = []ir.Matcher{{Regex: `FIXME`}} }),
			status: ir.StatusNotApplicable,
			reason: "target contains nothing this rule reviews",
		},
		{
			name:   "required present",
			rule:   rule("R6", func(r *ir.Rule) { r.Require = []ir.Matcher{{Regex: `compute\(\)`}} }),
			status: ir.StatusPassed,
			reason: "all required patterns present",
			lines:  []int{2},
		},
		{
			name: "required absent",
			rule: rule("R7", func(r *ir.Rule) {
				r.Require = []ir.Matcher{{Regex: `compute`}, {Regex: `license`, Message: "license header"}}
			}),
			status: ir.StatusViolated,
			reason: "required pattern absent: license header",
		},
		{
			name:   "forbid without match",
			rule:   rule("R8", func(r *ir.Rule) { r.Forbid = []ir.Matcher{{Regex: `secret_key`}} }),
			status: ir.StatusPassed,
			reason: "no forbidden pattern found",
		},
		{
			name:   "no matchers",
			rule:   rule("R9", func(r *ir.Rule) {}),
			status: ir.StatusNeedsReview,
			reason: "no automated check; manual review required",
		},
		{
			name: "kind restriction",
			rule: rule("R10", func(r *ir.Rule) {
				r.AppliesTo.Kinds = []ir.TargetKind{ir.KindMarkup}
				r.Forbid = []ir.Matcher{{Regex: `password`}}
			}),
			status: ir.StatusNotApplicable,
			reason: "test rule does not apply to document targets",
		},
		{
			name: "when restriction",
			rule: rule("R11", func(r *ir.Rule) {
				r.AppliesTo.When = `<head`
				r.Require = []ir.Matcher{{Regex: `charset`}}
			}),
			status: ir.StatusNotApplicable,
			reason: "target does not contain the construct this rule governs",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := scanner.New(scanner.FromString("notes.txt", content))
			f := EvaluateRule(context.Background(), s, tt.rule)

			assert.Equal(t, tt.status, f.Status)
			if tt.reason != "" {
				assert.Equal(t, tt.reason, f.Reason)
			}
			var lines []int
			for _, ev := range f.Evidence {
				lines = append(lines, ev.Line)
			}
			assert.Equal(t, tt.lines, lines)
			assert.Equal(t, tt.rule.Level, f.Level)
			assert.Equal(t, tt.rule.Category, f.Category)
		})
	}
}

func TestApplies(t *testing.T) {
	py := scanner.FromString("handlers/user.py", "import os\n")
	py.Path = "src/handlers/user.py"

	tests := []struct {
		name string
		a    ir.Applicability
		want bool
	}{
		{"no restriction", ir.Applicability{}, true},
		{"kind match", ir.Applicability{Kinds: []ir.TargetKind{ir.KindCode}}, true},
		{"language match", ir.Applicability{Languages: []string{"python"}}, true},
		{"language mismatch", ir.Applicability{Languages: []string{"go"}}, false},
		{"path glob", ir.Applicability{Paths: []string{"**/handlers/**"}}, true},
		{"leading slash", ir.Applicability{Paths: []string{"/src/**/*.py"}}, true},
		{"path mismatch", ir.Applicability{Paths: []string{"**/models/**"}}, false},
		{"when match", ir.Applicability{When: `import\s+os`}, true},
		{"invalid when", ir.Applicability{When: `(`}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, reason := Applies(ir.Rule{Category: "c", AppliesTo: tt.a}, py)
			assert.Equal(t, tt.want, ok)
			assert.Equal(t, tt.want, reason == "")
		})
	}

	inline := scanner.FromString("", "x")
	inline.Language = ""
	ok, reason := Applies(ir.Rule{AppliesTo: ir.Applicability{Languages: []string{"python"}}}, inline)
	assert.False(t, ok)
	assert.Contains(t, reason, "target language is unknown")
}

func TestEvaluateCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New().Evaluate(ctx, scanner.FromString("a.js", "eval(x)"), "security", loadRules(t, "security"))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Contains(t, err.Error(), "evaluate a.js")
}

func TestEvaluateMalformedTargetWarns(t *testing.T) {
	target := scanner.FromBytes("bin.js", []byte("eval(x)\x00"))
	rules := []ir.Rule{
		rule("F", func(r *ir.Rule) { r.Forbid = []ir.Matcher{{Call: "eval"}} }),
		rule("Q", func(r *ir.Rule) { r.Require = []ir.Matcher{{Regex: "eval"}} }),
	}

	r, err := New().Evaluate(context.Background(), target, "s", rules)
	require.NoError(t, err)

	require.Len(t, r.Warnings, 1)
	assert.Contains(t, r.Warnings[0], "bin.js")
	assert.Equal(t, ir.StatusPassed, r.Findings[0].Status)
	assert.Equal(t, ir.StatusViolated, r.Findings[1].Status)
	assert.Empty(t, r.Findings[0].Evidence)
}

type stubReviewer struct {
	calls  []string
	status ir.Status
	err    error
}

func (s *stubReviewer) Resolve(_ context.Context, target ir.TargetInfo, f ir.Finding) (ir.Finding, bool, error) {
	s.calls = append(s.calls, target.Name+"/"+f.RuleID)
	if s.err != nil {
		return ir.Finding{}, false, s.err
	}
	if s.status == "" {
		return f, false, nil
	}
	f.Status = s.status
	f.ReviewedBy = "stub"
	return f, true, nil
}

func TestEvaluateReviewer(t *testing.T) {
	rules := []ir.Rule{
		rule("MANUAL", func(r *ir.Rule) {}),
		rule("DECIDED", func(r *ir.Rule) { r.Forbid = []ir.Matcher{{Regex: "x"}} }),
	}
	target := scanner.FromString("t.txt", "x\n")

	t.Run("resolves needs_review only", func(t *testing.T) {
		rev := &stubReviewer{status: ir.StatusPassed}
		r, err := New(WithReviewer(rev)).Evaluate(context.Background(), target, "s", rules)
		require.NoError(t, err)

		assert.Equal(t, []string{"t.txt/MANUAL"}, rev.calls)
		assert.Equal(t, ir.StatusPassed, r.Findings[0].Status)
		assert.Equal(t, "stub", r.Findings[0].ReviewedBy)
		assert.Equal(t, ir.StatusViolated, r.Findings[1].Status)
		assert.Equal(t, ir.Score{Passed: 1, Violated: 1}, r.Score)
	})

	t.Run("declined", func(t *testing.T) {
		r, err := New(WithReviewer(&stubReviewer{})).Evaluate(context.Background(), target, "s", rules)
		require.NoError(t, err)
		assert.Equal(t, ir.StatusNeedsReview, r.Findings[0].Status)
	})

	t.Run("failure becomes warning", func(t *testing.T) {
		r, err := New(WithReviewer(&stubReviewer{err: errors.New("offline")})).Evaluate(context.Background(), target, "s", rules)
		require.NoError(t, err)
		assert.Equal(t, ir.StatusNeedsReview, r.Findings[0].Status)
		assert.Equal(t, []string{"reviewer failed for MANUAL: offline"}, r.Warnings)
	})
}
