package report

import (
	"fmt"
	"sort"

	"github.com/roach88/conform/internal/ir"
)

// Build aggregates findings into a report. It is a pure function of its
// inputs: the same findings always produce the same report, digest and ID.
//
// Score = passed / (passed + violated). not_applicable and needs_review
// findings are excluded from the denominator; with nothing left the score
// is N/A.
func Build(standard string, target ir.TargetInfo, findings []ir.Finding, warnings []string) (*ir.Report, error) {
	if findings == nil {
		findings = []ir.Finding{}
	}

	digest, err := ir.ReportDigest(standard, target, findings)
	if err != nil {
		return nil, fmt.Errorf("build report: %w", err)
	}

	return &ir.Report{
		ID:         ir.ShortID(digest),
		Standard:   standard,
		Target:     target,
		Findings:   findings,
		Score:      ScoreOf(findings),
		Categories: CategoryScores(findings),
		Summary:    Summarize(findings),
		Warnings:   warnings,
		Digest:     digest,
		IRVersion:  ir.IRVersion,
	}, nil
}

// ScoreOf counts passed and violated findings.
func ScoreOf(findings []ir.Finding) ir.Score {
	var s ir.Score
	for _, f := range findings {
		switch f.Status {
		case ir.StatusPassed:
			s.Passed++
		case ir.StatusViolated:
			s.Violated++
		}
	}
	return s
}

// CategoryScores returns one score per category, sorted by category name.
// A category whose findings are all not_applicable scores N/A.
func CategoryScores(findings []ir.Finding) []ir.CategoryScore {
	byCat := make(map[string]*ir.Score)
	for _, f := range findings {
		s, ok := byCat[f.Category]
		if !ok {
			s = &ir.Score{}
			byCat[f.Category] = s
		}
		switch f.Status {
		case ir.StatusPassed:
			s.Passed++
		case ir.StatusViolated:
			s.Violated++
		}
	}

	out := make([]ir.CategoryScore, 0, len(byCat))
	for cat, s := range byCat {
		out = append(out, ir.CategoryScore{Category: cat, Score: *s})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out
}

// Summarize counts findings by status.
func Summarize(findings []ir.Finding) ir.Summary {
	sum := ir.Summary{Total: len(findings)}
	for _, f := range findings {
		switch f.Status {
		case ir.StatusPassed:
			sum.Passed++
		case ir.StatusViolated:
			sum.Violated++
			if f.Level == ir.LevelMust {
				sum.ViolatedMust++
			}
		case ir.StatusNotApplicable:
			sum.NotApplicable++
		case ir.StatusNeedsReview:
			sum.NeedsReview++
		}
	}
	return sum
}

// RunScore aggregates the scores of every report in a run.
func RunScore(run *ir.Run) ir.Score {
	var s ir.Score
	for _, r := range run.Reports {
		s.Passed += r.Score.Passed
		s.Violated += r.Score.Violated
	}
	return s
}
