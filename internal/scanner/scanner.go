package scanner

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/roach88/conform/internal/ir"
)

// maxFragment bounds the length of an evidence fragment.
const maxFragment = 160

// hit is a matcher-independent match: where and what. Rule-specific
// annotations (kind, message, confidence) are added when hits become
// evidence, so hits can be shared between rules through the cache.
type hit struct {
	line     int
	fragment string
}

// Scanner scans one target. Matcher results are cached by matcher identity,
// so rules sharing a pattern scan the target once.
//
// Scanning is heuristic: regular expressions, HTML tokenization and syntax
// trees find candidate fragments, they do not prove compliance.
type Scanner struct {
	target *Target

	mu    sync.Mutex
	cache map[string][]hit

	linesOnce    sync.Once
	lines        []string
	markdownOnce sync.Once
	markdown     string
	mdLines      []string
}

// New returns a scanner for target.
func New(target *Target) *Scanner {
	return &Scanner{
		target: target,
		cache:  make(map[string][]hit),
	}
}

// Target returns the scanned target.
func (s *Scanner) Target() *Target {
	return s.target
}

// Scan returns the evidence relevant to rule, sorted by line. It never
// fails: unreadable content and matchers that cannot run yield no evidence.
func Scan(target *Target, rule ir.Rule) []ir.Evidence {
	return New(target).Scan(context.Background(), rule)
}

// Scan collects evidence for every matcher of rule.
func (s *Scanner) Scan(ctx context.Context, rule ir.Rule) []ir.Evidence {
	if s.target == nil || s.target.Validate() != nil {
		return nil
	}

	var evidence []ir.Evidence
	for _, m := range rule.Forbid {
		evidence = append(evidence, s.evidence(ctx, m, ir.EvidenceForbidden)...)
	}
	for _, m := range rule.Require {
		evidence = append(evidence, s.evidence(ctx, m, ir.EvidenceRequired)...)
	}
	for _, m := range rule.Review {
		evidence = append(evidence, s.evidence(ctx, m, ir.EvidenceReview)...)
	}

	sortEvidence(evidence)
	return evidence
}

// Matches reports whether m has at least one hit in the target.
func (s *Scanner) Matches(ctx context.Context, m ir.Matcher) bool {
	return len(s.hits(ctx, m)) > 0
}

// cacheSize returns the number of distinct matchers scanned so far.
func (s *Scanner) cacheSize() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.cache)
}

func (s *Scanner) evidence(ctx context.Context, m ir.Matcher, kind ir.EvidenceKind) []ir.Evidence {
	hits := s.hits(ctx, m)
	out := make([]ir.Evidence, 0, len(hits))
	for _, h := range hits {
		loc := s.target.location(h.line)
		if m.View == ir.ViewMarkdown && s.target.Kind == ir.KindMarkup {
			loc += " (markdown)"
		}
		out = append(out, ir.Evidence{
			Kind:       kind,
			Fragment:   h.fragment,
			Location:   loc,
			Line:       h.line,
			Confidence: m.EffectiveConfidence(),
			Message:    m.Message,
		})
	}
	return out
}

func (s *Scanner) hits(ctx context.Context, m ir.Matcher) []hit {
	key := m.Key()
	if key == "" || s.target == nil || s.target.Validate() != nil {
		return nil
	}

	s.mu.Lock()
	cached, ok := s.cache[key]
	s.mu.Unlock()
	if ok {
		return cached
	}

	var found []hit
	switch m.Kind() {
	case ir.MatchRegex:
		found = matchRegex(s.textLines(m.View), m.Regex)
	case ir.MatchCall:
		found = matchCall(ctx, s.target, m.Call, m.Untrusted)
	case ir.MatchElement:
		found = matchElement(s.target.Content, m.Element, m.WithoutAttr, m.WithAttr)
	}

	s.mu.Lock()
	s.cache[key] = found
	s.mu.Unlock()
	return found
}

// textLines returns the target split into lines for the requested view.
func (s *Scanner) textLines(view ir.View) []string {
	s.linesOnce.Do(func() {
		s.lines = splitLines(s.target.Content)
	})
	if view != ir.ViewMarkdown || s.target.Kind != ir.KindMarkup {
		return s.lines
	}
	s.markdownOnce.Do(func() {
		s.markdown = toMarkdown(s.target.Content)
		s.mdLines = splitLines(s.markdown)
	})
	return s.mdLines
}

func splitLines(content string) []string {
	if content == "" {
		return nil
	}
	content = strings.ReplaceAll(content, "\r\n", "\n")
	return strings.Split(content, "\n")
}

func sortEvidence(ev []ir.Evidence) {
	sort.SliceStable(ev, func(i, j int) bool {
		if ev[i].Line != ev[j].Line {
			return ev[i].Line < ev[j].Line
		}
		if ev[i].Fragment != ev[j].Fragment {
			return ev[i].Fragment < ev[j].Fragment
		}
		return ev[i].Kind < ev[j].Kind
	})
}

// clip trims a fragment to maxFragment runes.
func clip(s string) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= maxFragment {
		return s
	}
	return string(r[:maxFragment-3]) + "..."
}
