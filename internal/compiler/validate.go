package compiler

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/roach88/conform/internal/ir"
)

// Validation error codes (E100-E199)
const (
	// Standard errors (E100-E109)
	ErrStandardEmpty   = "E100" // standard declares no rules
	ErrInvalidRuleID   = "E101" // rule ID format
	ErrDuplicateRuleID = "E102" // same rule ID declared twice
	ErrInvalidLevel    = "E103" // level outside MUST/SHOULD/MAY

	// Rule body errors (E110-E119)
	ErrEmptyDescription  = "E110" // description is required
	ErrEmptyCategory     = "E111" // category is required
	ErrInvalidMatcher    = "E112" // matcher sets zero or several kinds
	ErrInvalidRegex      = "E113" // regex does not compile
	ErrInvalidElement    = "E114" // element name is not a plain tag name
	ErrInvalidGlob       = "E115" // applies_to.paths pattern is malformed
	ErrInvalidTargetKind = "E116" // applies_to.kinds names an unknown kind
	ErrInvalidWhen       = "E117" // applies_to.when regex does not compile
)

// ValidationError represents a rule pack validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

var (
	ruleIDPattern  = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_.-]*$`)
	elementPattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9-]*$`)
)

// ValidateStandards validates every rule of every standard and checks that
// rule IDs are unique across all of them.
// Returns all errors found (does not fail-fast).
func ValidateStandards(stds []ir.Standard) []ValidationError {
	var errs []ValidationError
	seen := make(map[string]string) // rule ID -> standard

	for _, std := range stds {
		errs = append(errs, ValidateStandard(std)...)
		for _, r := range std.Rules {
			key := strings.ToUpper(r.ID)
			if prev, ok := seen[key]; ok {
				errs = append(errs, ValidationError{
					Field:   fmt.Sprintf("standard.%s.rule.%s", std.Name, r.ID),
					Message: fmt.Sprintf("rule ID %s already declared in standard %s", r.ID, prev),
					Code:    ErrDuplicateRuleID,
				})
				continue
			}
			seen[key] = std.Name
		}
	}

	return errs
}

// ValidateStandard validates a compiled standard.
func ValidateStandard(std ir.Standard) []ValidationError {
	var errs []ValidationError

	if len(std.Rules) == 0 {
		errs = append(errs, ValidationError{
			Field:   "standard." + std.Name,
			Message: "standard declares no rules",
			Code:    ErrStandardEmpty,
		})
	}

	for _, r := range std.Rules {
		errs = append(errs, ValidateRule(r)...)
	}
	return errs
}

// ValidateRule validates one compiled rule.
func ValidateRule(r ir.Rule) []ValidationError {
	var errs []ValidationError
	field := "rule." + r.ID

	if !ruleIDPattern.MatchString(r.ID) {
		errs = append(errs, ValidationError{
			Field:   field,
			Message: fmt.Sprintf("invalid rule ID %q", r.ID),
			Code:    ErrInvalidRuleID,
		})
	}

	if r.Level.Rank() == 0 {
		errs = append(errs, ValidationError{
			Field:   field + ".level",
			Message: fmt.Sprintf("invalid level %q", r.Level),
			Code:    ErrInvalidLevel,
		})
	}

	if strings.TrimSpace(r.Description) == "" {
		errs = append(errs, ValidationError{
			Field:   field + ".description",
			Message: "description is required and must be non-empty",
			Code:    ErrEmptyDescription,
		})
	}

	if strings.TrimSpace(r.Category) == "" {
		errs = append(errs, ValidationError{
			Field:   field + ".category",
			Message: "category is required and must be non-empty",
			Code:    ErrEmptyCategory,
		})
	}

	for name, list := range map[string][]ir.Matcher{"forbid": r.Forbid, "require": r.Require, "review": r.Review} {
		for i, m := range list {
			errs = append(errs, validateMatcher(m, fmt.Sprintf("%s.%s[%d]", field, name, i))...)
		}
	}

	errs = append(errs, validateApplicability(r.AppliesTo, field+".applies_to")...)

	sortValidationErrors(errs)
	return errs
}

func validateMatcher(m ir.Matcher, field string) []ValidationError {
	var errs []ValidationError

	switch m.Kind() {
	case ir.MatchRegex:
		if _, err := regexp.Compile(m.Regex); err != nil {
			errs = append(errs, ValidationError{
				Field:   field + ".regex",
				Message: fmt.Sprintf("invalid regex: %v", err),
				Code:    ErrInvalidRegex,
			})
		}
		if m.View != ir.ViewSource && m.View != ir.ViewMarkdown {
			errs = append(errs, ValidationError{
				Field:   field + ".view",
				Message: fmt.Sprintf("unknown view %q", m.View),
				Code:    ErrInvalidMatcher,
			})
		}
	case ir.MatchCall:
		if strings.ContainsAny(m.Call, " \t\n()") {
			errs = append(errs, ValidationError{
				Field:   field + ".call",
				Message: fmt.Sprintf("call must be a bare function name, got %q", m.Call),
				Code:    ErrInvalidMatcher,
			})
		}
	case ir.MatchElement:
		for _, name := range []string{m.Element, m.WithoutAttr, m.WithAttr} {
			if name != "" && !elementPattern.MatchString(name) {
				errs = append(errs, ValidationError{
					Field:   field + ".element",
					Message: fmt.Sprintf("invalid element or attribute name %q", name),
					Code:    ErrInvalidElement,
				})
			}
		}
	default:
		errs = append(errs, ValidationError{
			Field:   field,
			Message: "matcher must set exactly one of regex, call, element",
			Code:    ErrInvalidMatcher,
		})
	}

	return errs
}

func validateApplicability(a ir.Applicability, field string) []ValidationError {
	var errs []ValidationError

	for _, k := range a.Kinds {
		if !ir.ValidTargetKinds[k] {
			errs = append(errs, ValidationError{
				Field:   field + ".kinds",
				Message: fmt.Sprintf("unknown target kind %q", k),
				Code:    ErrInvalidTargetKind,
			})
		}
	}

	for _, p := range a.Paths {
		if !doublestar.ValidatePattern(p) {
			errs = append(errs, ValidationError{
				Field:   field + ".paths",
				Message: fmt.Sprintf("invalid glob %q", p),
				Code:    ErrInvalidGlob,
			})
		}
	}

	if a.When != "" {
		if _, err := regexp.Compile(a.When); err != nil {
			errs = append(errs, ValidationError{
				Field:   field + ".when",
				Message: fmt.Sprintf("invalid regex: %v", err),
				Code:    ErrInvalidWhen,
			})
		}
	}

	return errs
}

// sortValidationErrors orders errors by field so output is stable even
// though matcher lists are walked through a map.
func sortValidationErrors(errs []ValidationError) {
	sort.SliceStable(errs, func(i, j int) bool { return errs[i].Field < errs[j].Field })
}
