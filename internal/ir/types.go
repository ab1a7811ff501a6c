package ir

import (
	"fmt"
	"strings"
	"time"
)

// Standard is a named collection of rules, e.g. "cryptography".
type Standard struct {
	Name        string                   `json:"name"`
	Title       string                   `json:"title"`
	Description string                   `json:"description,omitempty"`
	Categories  map[string]Applicability `json:"categories,omitempty"`
	Rules       []Rule                   `json:"rules"`
}

// Rule is a single normative statement compiled from a rule pack.
type Rule struct {
	ID          string        `json:"id"`
	Standard    string        `json:"standard"`
	Level       Level         `json:"level"`
	Category    string        `json:"category"`
	Description string        `json:"description"`
	Rationale   string        `json:"rationale,omitempty"`
	Reference   string        `json:"reference,omitempty"`
	Forbid      []Matcher     `json:"forbid,omitempty"`
	Require     []Matcher     `json:"require,omitempty"`
	Review      []Matcher     `json:"review,omitempty"`
	AppliesTo   Applicability `json:"applies_to"`
}

// Automated reports whether the rule has at least one machine-checkable matcher.
func (r Rule) Automated() bool {
	return len(r.Forbid)+len(r.Require)+len(r.Review) > 0
}

// MatcherKind names the strategy a matcher uses.
type MatcherKind string

const (
	MatchRegex   MatcherKind = "regex"
	MatchCall    MatcherKind = "call"
	MatchElement MatcherKind = "element"
)

// Matcher describes one pattern the scanner looks for.
// Exactly one of Regex, Call or Element is set.
type Matcher struct {
	Regex       string     `json:"regex,omitempty"`
	Call        string     `json:"call,omitempty"`
	Untrusted   bool       `json:"untrusted,omitempty"` // call: only non-literal arguments count
	Element     string     `json:"element,omitempty"`
	WithoutAttr string     `json:"without_attr,omitempty"`
	WithAttr    string     `json:"with_attr,omitempty"`
	View        View       `json:"view,omitempty"` // regex: text the pattern runs over
	Message     string     `json:"message,omitempty"`
	Confidence  Confidence `json:"confidence,omitempty"`
}

// Kind returns the matcher strategy, or "" when none or several are set.
func (m Matcher) Kind() MatcherKind {
	var kinds []MatcherKind
	if m.Regex != "" {
		kinds = append(kinds, MatchRegex)
	}
	if m.Call != "" {
		kinds = append(kinds, MatchCall)
	}
	if m.Element != "" {
		kinds = append(kinds, MatchElement)
	}
	if len(kinds) != 1 {
		return ""
	}
	return kinds[0]
}

// Key is the matcher identity used by the scan cache. Message is excluded:
// two rules sharing a pattern share its scan result.
func (m Matcher) Key() string {
	switch m.Kind() {
	case MatchRegex:
		if m.View == ViewMarkdown {
			return "regex:markdown:" + m.Regex
		}
		return "regex:" + m.Regex
	case MatchCall:
		return fmt.Sprintf("call:%s:untrusted=%t", m.Call, m.Untrusted)
	case MatchElement:
		return fmt.Sprintf("element:%s:without=%s:with=%s",
			strings.ToLower(m.Element), strings.ToLower(m.WithoutAttr), strings.ToLower(m.WithAttr))
	default:
		return ""
	}
}

// EffectiveConfidence defaults an unset confidence to high.
func (m Matcher) EffectiveConfidence() Confidence {
	if m.Confidence == "" {
		return ConfidenceHigh
	}
	return m.Confidence
}

// Applicability restricts which targets a rule applies to.
// Empty fields place no restriction.
type Applicability struct {
	Kinds     []TargetKind `json:"kinds,omitempty"`
	Languages []string     `json:"languages,omitempty"`
	Paths     []string     `json:"paths,omitempty"` // doublestar globs
	When      string       `json:"when,omitempty"`  // regex that must occur in the target
}

// IsZero reports whether no restriction is declared.
func (a Applicability) IsZero() bool {
	return len(a.Kinds) == 0 && len(a.Languages) == 0 && len(a.Paths) == 0 && a.When == ""
}

// Inherit fills every field a leaves empty from the category defaults.
func (a Applicability) Inherit(category Applicability) Applicability {
	if len(a.Kinds) == 0 {
		a.Kinds = category.Kinds
	}
	if len(a.Languages) == 0 {
		a.Languages = category.Languages
	}
	if len(a.Paths) == 0 {
		a.Paths = category.Paths
	}
	if a.When == "" {
		a.When = category.When
	}
	return a
}

// Evidence is a fragment of a target relevant to judging a rule.
type Evidence struct {
	Kind       EvidenceKind `json:"kind"`
	Fragment   string       `json:"fragment"`
	Location   string       `json:"location,omitempty"` // "path:line" or "line N"
	Line       int          `json:"line,omitempty"`
	Confidence Confidence   `json:"confidence"`
	Message    string       `json:"message,omitempty"`
}

// Finding is the outcome of evaluating one rule against one target.
type Finding struct {
	RuleID      string     `json:"rule_id"`
	Level       Level      `json:"level"`
	Category    string     `json:"category"`
	Description string     `json:"description"`
	Status      Status     `json:"status"`
	Location    string     `json:"location,omitempty"`
	Evidence    []Evidence `json:"evidence,omitempty"`
	Reason      string     `json:"reason,omitempty"`
	ReviewedBy  string     `json:"reviewed_by,omitempty"` // set when an external reviewer resolved the finding
}

// TargetInfo describes the evaluated artifact without its content.
type TargetInfo struct {
	Name     string     `json:"name"`
	Path     string     `json:"path,omitempty"`
	Kind     TargetKind `json:"kind"`
	Language string     `json:"language,omitempty"`
}

// Summary counts findings by status.
type Summary struct {
	Total         int `json:"total"`
	Passed        int `json:"passed"`
	Violated      int `json:"violated"`
	NotApplicable int `json:"not_applicable"`
	NeedsReview   int `json:"needs_review"`
	ViolatedMust  int `json:"violated_must"`
}

// CategoryScore is the score restricted to one category.
type CategoryScore struct {
	Category string `json:"category"`
	Score    Score  `json:"score"`
}

// Report aggregates the findings for one target.
type Report struct {
	ID         string          `json:"id"`
	Standard   string          `json:"standard"`
	Target     TargetInfo      `json:"target"`
	Findings   []Finding       `json:"findings"`
	Score      Score           `json:"score"`
	Categories []CategoryScore `json:"categories"`
	Summary    Summary         `json:"summary"`
	Warnings   []string        `json:"warnings,omitempty"`
	Digest     string          `json:"digest"`
	IRVersion  string          `json:"ir_version"`
}

// ViolatedAtOrAbove counts violated findings whose level is at least floor.
func (r *Report) ViolatedAtOrAbove(floor Level) int {
	n := 0
	for _, f := range r.Findings {
		if f.Status == StatusViolated && f.Level.AtLeast(floor) {
			n++
		}
	}
	return n
}

// Run groups the reports produced by one invocation of the tool.
type Run struct {
	ID          string    `json:"id"`
	Standard    string    `json:"standard"`
	FailLevel   Level     `json:"fail_level"`
	RuleSetHash string    `json:"rule_set_hash"`
	CreatedAt   time.Time `json:"created_at"`
	Reports     []Report  `json:"reports"`
}

// Failed reports whether any report has a violation at or above the fail level.
func (r *Run) Failed() bool {
	for i := range r.Reports {
		if r.Reports[i].ViolatedAtOrAbove(r.FailLevel) > 0 {
			return true
		}
	}
	return false
}
