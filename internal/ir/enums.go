package ir

import (
	"encoding"
	"fmt"
	"strings"
)

// Level is an RFC 2119 requirement strength.
type Level string

const (
	LevelMust   Level = "MUST"
	LevelShould Level = "SHOULD"
	LevelMay    Level = "MAY"
)

// ParseLevel parses a level case-insensitively.
func ParseLevel(s string) (Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "MUST":
		return LevelMust, nil
	case "SHOULD":
		return LevelShould, nil
	case "MAY":
		return LevelMay, nil
	default:
		return "", fmt.Errorf("unknown level %q: must be one of MUST, SHOULD, MAY", s)
	}
}

// Rank orders levels: MUST > SHOULD > MAY. Unknown levels rank 0.
func (l Level) Rank() int {
	switch l {
	case LevelMust:
		return 3
	case LevelShould:
		return 2
	case LevelMay:
		return 1
	default:
		return 0
	}
}

// AtLeast reports whether l is as strict as other.
func (l Level) AtLeast(other Level) bool {
	return l.Rank() >= other.Rank()
}

var _ encoding.TextUnmarshaler = (*Level)(nil)

func (l *Level) UnmarshalText(b []byte) error {
	v, err := ParseLevel(string(b))
	if err != nil {
		return err
	}
	*l = v
	return nil
}

// Status is the outcome of evaluating one rule against one target.
type Status string

const (
	StatusPassed        Status = "passed"
	StatusViolated      Status = "violated"
	StatusNotApplicable Status = "not_applicable"
	StatusNeedsReview   Status = "needs_review"
)

// ParseStatus accepts the canonical names plus a few spellings people type
// on the command line ("pass", "fail", "n/a", "review").
func ParseStatus(s string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "passed", "pass":
		return StatusPassed, nil
	case "violated", "violation", "fail", "failed":
		return StatusViolated, nil
	case "not_applicable", "n/a", "na":
		return StatusNotApplicable, nil
	case "needs_review", "review":
		return StatusNeedsReview, nil
	default:
		return "", fmt.Errorf("unknown status %q", s)
	}
}

// Label is the human-readable form used in tables.
func (s Status) Label() string {
	switch s {
	case StatusPassed:
		return "Passed"
	case StatusViolated:
		return "Violated"
	case StatusNotApplicable:
		return "Not applicable"
	case StatusNeedsReview:
		return "Needs manual review"
	default:
		return string(s)
	}
}

var _ encoding.TextUnmarshaler = (*Status)(nil)

func (s *Status) UnmarshalText(b []byte) error {
	v, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// TargetKind classifies a target artifact for applicability checks.
type TargetKind string

const (
	KindCode     TargetKind = "code"
	KindMarkup   TargetKind = "markup"
	KindDocument TargetKind = "document"
	KindConfig   TargetKind = "config"
)

// ValidTargetKinds lists the kinds a rule pack may reference.
var ValidTargetKinds = map[TargetKind]bool{
	KindCode:     true,
	KindMarkup:   true,
	KindDocument: true,
	KindConfig:   true,
}

// Confidence grades how strongly a matcher hit supports a verdict.
type Confidence string

const (
	ConfidenceHigh Confidence = "high"
	ConfidenceLow  Confidence = "low"
)

// EvidenceKind records which matcher list produced a piece of evidence.
type EvidenceKind string

const (
	EvidenceForbidden EvidenceKind = "forbidden"
	EvidenceRequired  EvidenceKind = "required"
	EvidenceReview    EvidenceKind = "review"
)

// View selects the text a regex matcher runs over.
type View string

const (
	ViewSource   View = ""         // raw target content
	ViewMarkdown View = "markdown" // markup converted to Markdown; documents as-is
)
