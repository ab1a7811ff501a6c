package evaluator

import (
	"fmt"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/roach88/conform/internal/ir"
	"github.com/roach88/conform/internal/scanner"
)

// Applies reports whether rule applies to target. When it does not, the
// returned reason says which restriction excluded it.
func Applies(rule ir.Rule, target *scanner.Target) (bool, string) {
	a := rule.AppliesTo

	if len(a.Kinds) > 0 && !slices.Contains(a.Kinds, target.Kind) {
		return false, fmt.Sprintf("%s rule does not apply to %s targets", rule.Category, kindName(target.Kind))
	}

	if len(a.Languages) > 0 && !slices.Contains(a.Languages, strings.ToLower(target.Language)) {
		lang := target.Language
		if lang == "" {
			lang = "unknown"
		}
		return false, fmt.Sprintf("rule covers %s; target language is %s", strings.Join(a.Languages, ", "), lang)
	}

	if len(a.Paths) > 0 {
		path := target.Path
		if path == "" {
			path = target.Name
		}
		if !matchAnyPath(a.Paths, path) {
			return false, fmt.Sprintf("path %s matches none of %s", path, strings.Join(a.Paths, ", "))
		}
	}

	if a.When != "" {
		re, err := regexp.Compile(a.When)
		if err != nil || !re.MatchString(target.Content) {
			return false, "target does not contain the construct this rule governs"
		}
	}

	return true, ""
}

func matchAnyPath(patterns []string, path string) bool {
	path = strings.TrimPrefix(filepath.ToSlash(path), "/")
	for _, p := range patterns {
		p = strings.TrimPrefix(p, "/")
		if ok, err := doublestar.Match(p, path); err == nil && ok {
			return true
		}
	}
	return false
}

func kindName(k ir.TargetKind) string {
	if k == "" {
		return "unclassified"
	}
	return string(k)
}
