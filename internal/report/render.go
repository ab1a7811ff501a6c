package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/roach88/conform/internal/ir"
)

// Format selects a renderer.
type Format string

const (
	FormatText     Format = "text"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
)

// ParseFormat accepts text, json, markdown (or md).
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("unknown format %q: must be text, json or markdown", s)
	}
}

// Extension returns the file extension for reports written in f.
func (f Format) Extension() string {
	switch f {
	case FormatJSON:
		return ".json"
	case FormatMarkdown:
		return ".md"
	default:
		return ".txt"
	}
}

// WriteReport renders one report.
func WriteReport(w io.Writer, f Format, r *ir.Report) error {
	switch f {
	case FormatJSON:
		return writeJSON(w, r)
	case FormatMarkdown:
		_, err := io.WriteString(w, Markdown(r))
		return err
	default:
		_, err := io.WriteString(w, Text(r))
		return err
	}
}

// WriteRun renders every report of a run followed by a run summary.
func WriteRun(w io.Writer, f Format, run *ir.Run) error {
	switch f {
	case FormatJSON:
		return writeJSON(w, run)
	case FormatMarkdown:
		_, err := io.WriteString(w, RunMarkdown(run))
		return err
	default:
		var b strings.Builder
		for i := range run.Reports {
			if i > 0 {
				b.WriteString("\n")
			}
			b.WriteString(Text(&run.Reports[i]))
		}
		if len(run.Reports) > 1 {
			fmt.Fprintf(&b, "\nOverall: %s across %d targets\n", RunScore(run).Percent(), len(run.Reports))
		}
		_, err := io.WriteString(w, b.String())
		return err
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// Markdown renders a report as a findings table under a top-line score.
func Markdown(r *ir.Report) string {
	var b strings.Builder
	writeMarkdownReport(&b, r, "#")
	return b.String()
}

// RunMarkdown renders a whole run, one section per target.
func RunMarkdown(run *ir.Run) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Compliance run %s\n\n", run.ID)
	fmt.Fprintf(&b, "- **Standard:** %s\n", run.Standard)
	fmt.Fprintf(&b, "- **Targets:** %d\n", len(run.Reports))
	fmt.Fprintf(&b, "- **Overall score:** %s\n", RunScore(run).Percent())
	fmt.Fprintf(&b, "- **Fail level:** %s\n", run.FailLevel)
	for i := range run.Reports {
		b.WriteString("\n")
		writeMarkdownReport(&b, &run.Reports[i], "##")
	}
	return b.String()
}

func writeMarkdownReport(b *strings.Builder, r *ir.Report, h string) {
	fmt.Fprintf(b, "%s Compliance report: %s\n\n", h, r.Standard)
	fmt.Fprintf(b, "- **Target:** `%s` (%s)\n", r.Target.Name, targetDesc(r.Target))
	fmt.Fprintf(b, "- **Score:** %s\n", scoreDesc(r.Score))
	fmt.Fprintf(b, "- **Summary:** %d passed, %d violated, %d not applicable, %d need review\n",
		r.Summary.Passed, r.Summary.Violated, r.Summary.NotApplicable, r.Summary.NeedsReview)
	fmt.Fprintf(b, "- **Report:** %s\n\n", r.ID)

	b.WriteString("| Rule | Level | Category | Status | Location | Evidence |\n")
	b.WriteString("|---|---|---|---|---|---|\n")
	for _, f := range r.Findings {
		fmt.Fprintf(b, "| %s | %s | %s | %s | %s | %s |\n",
			cell(f.RuleID), f.Level, cell(f.Category), f.Status.Label(), cell(f.Location), evidenceCell(f))
	}

	if len(r.Categories) > 0 {
		fmt.Fprintf(b, "\n%s# Category scores\n\n", h)
		b.WriteString("| Category | Score |\n")
		b.WriteString("|---|---|\n")
		for _, c := range r.Categories {
			fmt.Fprintf(b, "| %s | %s |\n", cell(c.Category), scoreDesc(c.Score))
		}
	}

	if len(r.Warnings) > 0 {
		fmt.Fprintf(b, "\n%s# Warnings\n\n", h)
		for _, w := range r.Warnings {
			fmt.Fprintf(b, "- %s\n", w)
		}
	}
}

// Text renders a report for a terminal.
func Text(r *ir.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s [%s]\n", r.Standard, r.Target.Name, targetDesc(r.Target))
	fmt.Fprintf(&b, "Score: %s\n\n", scoreDesc(r.Score))

	tw := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RULE\tLEVEL\tSTATUS\tLOCATION\tDETAIL")
	for _, f := range r.Findings {
		detail := f.Reason
		if len(f.Evidence) > 0 {
			detail = evidenceText(f)
		}
		loc := f.Location
		if loc == "" {
			loc = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", f.RuleID, f.Level, f.Status, loc, detail)
	}
	tw.Flush()

	for _, w := range r.Warnings {
		fmt.Fprintf(&b, "warning: %s\n", w)
	}
	return b.String()
}

func targetDesc(t ir.TargetInfo) string {
	if t.Language == "" {
		return string(t.Kind)
	}
	return fmt.Sprintf("%s, %s", t.Kind, t.Language)
}

func scoreDesc(s ir.Score) string {
	if !s.Applicable() {
		return ir.NotApplicableScore
	}
	return fmt.Sprintf("%s (%d/%d)", s.Percent(), s.Passed, s.Passed+s.Violated)
}

func evidenceCell(f ir.Finding) string {
	if len(f.Evidence) == 0 {
		return cell(f.Reason)
	}
	return cell("`"+strings.ReplaceAll(f.Evidence[0].Fragment, "`", "'")+"`") + more(f)
}

func evidenceText(f ir.Finding) string {
	return f.Evidence[0].Fragment + more(f)
}

func more(f ir.Finding) string {
	if n := len(f.Evidence) - 1; n > 0 {
		return fmt.Sprintf(" (+%d more)", n)
	}
	return ""
}

// cell escapes a value for a Markdown table cell.
func cell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	s = strings.ReplaceAll(s, "\n", " ")
	return s
}
