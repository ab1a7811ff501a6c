package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainReport  = "conform/report/v1"
	DomainRuleSet = "conform/ruleset/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte (0x00) separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// ReportDigest computes the content hash of a report's verdicts.
// It covers the standard, the target identity and every finding (rule,
// status, evidence fragments and lines) so two evaluations of the same
// input always agree. Warnings and review annotations are excluded.
func ReportDigest(standard string, target TargetInfo, findings []Finding) (string, error) {
	list := make([]any, len(findings))
	for i, f := range findings {
		ev := make([]any, len(f.Evidence))
		for j, e := range f.Evidence {
			ev[j] = map[string]any{
				"kind":     string(e.Kind),
				"fragment": e.Fragment,
				"line":     e.Line,
			}
		}
		list[i] = map[string]any{
			"rule_id":  f.RuleID,
			"level":    string(f.Level),
			"status":   string(f.Status),
			"evidence": ev,
		}
	}

	obj := map[string]any{
		"standard": standard,
		"target": map[string]any{
			"name": target.Name,
			"kind": string(target.Kind),
		},
		"findings": list,
	}

	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("ReportDigest: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainReport, canonical), nil
}

// RuleSetHash identifies the exact rule set a run was evaluated with.
func RuleSetHash(rules []Rule) (string, error) {
	list := make([]any, len(rules))
	for i, r := range rules {
		list[i] = map[string]any{
			"id":          r.ID,
			"level":       string(r.Level),
			"category":    r.Category,
			"description": r.Description,
			"matchers":    matcherKeys(r),
		}
	}
	canonical, err := MarshalCanonical(list)
	if err != nil {
		return "", fmt.Errorf("RuleSetHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainRuleSet, canonical), nil
}

func matcherKeys(r Rule) []string {
	keys := make([]string, 0, len(r.Forbid)+len(r.Require)+len(r.Review))
	for _, m := range r.Forbid {
		keys = append(keys, "forbid:"+m.Key())
	}
	for _, m := range r.Require {
		keys = append(keys, "require:"+m.Key())
	}
	for _, m := range r.Review {
		keys = append(keys, "review:"+m.Key())
	}
	return keys
}

// ShortID returns the first 12 hex characters of a digest, used as a
// readable report identifier.
func ShortID(digest string) string {
	if len(digest) < 12 {
		return digest
	}
	return digest[:12]
}
