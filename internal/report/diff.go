package report

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/roach88/conform/internal/ir"
)

// RunDiff lists how findings moved between two runs. Findings are matched on
// (target, rule) and only open findings take part, so a rule that stops
// applying shows up as resolved.
type RunDiff struct {
	BaseID   string         `json:"base_id"`
	HeadID   string         `json:"head_id"`
	Summary  DiffSummary    `json:"summary"`
	New      []DiffFinding  `json:"new"`
	Resolved []DiffFinding  `json:"resolved"`
	Changed  []DiffChange   `json:"changed"`
	Score    DiffScoreDelta `json:"score"`
}

// DiffSummary counts the entries of each list.
type DiffSummary struct {
	NewCount      int `json:"new"`
	ResolvedCount int `json:"resolved"`
	ChangedCount  int `json:"changed"`
}

// DiffFinding is the part of a finding a diff reports.
type DiffFinding struct {
	Target   string    `json:"target"`
	RuleID   string    `json:"rule_id"`
	Level    ir.Level  `json:"level"`
	Status   ir.Status `json:"status"`
	Location string    `json:"location,omitempty"`
	Evidence string    `json:"evidence,omitempty"`
}

// DiffChange is a finding present in both runs with a different outcome.
type DiffChange struct {
	Key     string      `json:"key"`
	Base    DiffFinding `json:"base"`
	Head    DiffFinding `json:"head"`
	Changed []string    `json:"fields_changed"`
}

// DiffScoreDelta compares the overall scores.
type DiffScoreDelta struct {
	Base ir.Score `json:"base"`
	Head ir.Score `json:"head"`
}

// Diff compares base with head. A finding is "open" when it is violated or
// needs review; new lists findings open in head but not in base, resolved
// the reverse. Changed lists findings open in both whose status, level or
// evidence differ.
func Diff(base, head *ir.Run) RunDiff {
	bm := openFindings(base)
	hm := openFindings(head)

	var added, resolved []DiffFinding
	var changed []DiffChange

	for k, hf := range hm {
		bf, ok := bm[k]
		if !ok {
			added = append(added, hf)
			continue
		}
		var fields []string
		if bf.Status != hf.Status {
			fields = append(fields, "status")
		}
		if bf.Level != hf.Level {
			fields = append(fields, "level")
		}
		if strings.TrimSpace(bf.Evidence) != strings.TrimSpace(hf.Evidence) {
			fields = append(fields, "evidence")
		}
		if len(fields) > 0 {
			changed = append(changed, DiffChange{Key: k, Base: bf, Head: hf, Changed: fields})
		}
	}
	for k, bf := range bm {
		if _, ok := hm[k]; !ok {
			resolved = append(resolved, bf)
		}
	}

	sortDiffFindings(added)
	sortDiffFindings(resolved)
	sort.Slice(changed, func(i, j int) bool { return changed[i].Key < changed[j].Key })

	return RunDiff{
		BaseID: base.ID,
		HeadID: head.ID,
		Summary: DiffSummary{
			NewCount:      len(added),
			ResolvedCount: len(resolved),
			ChangedCount:  len(changed),
		},
		New:      added,
		Resolved: resolved,
		Changed:  changed,
		Score:    DiffScoreDelta{Base: RunScore(base), Head: RunScore(head)},
	}
}

// Empty reports whether the runs agree on every open finding.
func (d RunDiff) Empty() bool {
	return len(d.New)+len(d.Resolved)+len(d.Changed) == 0
}

func openFindings(run *ir.Run) map[string]DiffFinding {
	m := make(map[string]DiffFinding)
	for _, r := range run.Reports {
		for _, f := range r.Findings {
			if f.Status != ir.StatusViolated && f.Status != ir.StatusNeedsReview {
				continue
			}
			df := DiffFinding{
				Target:   r.Target.Name,
				RuleID:   f.RuleID,
				Level:    f.Level,
				Status:   f.Status,
				Location: f.Location,
			}
			if len(f.Evidence) > 0 {
				df.Evidence = f.Evidence[0].Fragment
			}
			m[keyOf(r.Target.Name, f.RuleID)] = df
		}
	}
	return m
}

func keyOf(target, ruleID string) string {
	return target + "|" + strings.ToUpper(strings.TrimSpace(ruleID))
}

func sortDiffFindings(fs []DiffFinding) {
	sort.Slice(fs, func(i, j int) bool {
		if fs[i].Target != fs[j].Target {
			return fs[i].Target < fs[j].Target
		}
		return fs[i].RuleID < fs[j].RuleID
	})
}

// WriteDiff renders a diff in the given format.
func WriteDiff(w io.Writer, f Format, d RunDiff) error {
	if f == FormatJSON {
		return writeJSON(w, d)
	}

	var b strings.Builder
	if f == FormatMarkdown {
		fmt.Fprintf(&b, "# Diff %s -> %s\n\n", d.BaseID, d.HeadID)
	} else {
		fmt.Fprintf(&b, "diff %s -> %s\n", d.BaseID, d.HeadID)
	}
	fmt.Fprintf(&b, "score: %s -> %s\n", d.Score.Base.Percent(), d.Score.Head.Percent())
	fmt.Fprintf(&b, "new: %d, resolved: %d, changed: %d\n",
		d.Summary.NewCount, d.Summary.ResolvedCount, d.Summary.ChangedCount)

	section := func(title string, fs []DiffFinding, sign string) {
		if len(fs) == 0 {
			return
		}
		fmt.Fprintf(&b, "\n%s:\n", title)
		for _, x := range fs {
			fmt.Fprintf(&b, "  %s %s %s [%s] %s\n", sign, x.Target, x.RuleID, x.Status, x.Evidence)
		}
	}
	section("new", d.New, "+")
	section("resolved", d.Resolved, "-")
	if len(d.Changed) > 0 {
		b.WriteString("\nchanged:\n")
		for _, c := range d.Changed {
			fmt.Fprintf(&b, "  ~ %s %s: %s (%s -> %s)\n",
				c.Head.Target, c.Head.RuleID, strings.Join(c.Changed, ","), c.Base.Status, c.Head.Status)
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}
