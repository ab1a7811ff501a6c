package compiler

import (
	"fmt"
	"sort"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/conform/internal/ir"
)

// CompileStandards compiles every standard declared under the top-level
// `standard` field of a rule pack.
//
// A rule pack looks like:
//
//	standard: security: {
//		title: "Security"
//		category: injection: applies_to: kinds: ["code"]
//		rule: "SEC-001": {
//			level:       "MUST"
//			category:    "injection"
//			description: "Never pass untrusted input to eval."
//			forbid: [{call: "eval", untrusted: true}]
//		}
//	}
//
// Standards are returned sorted by name.
func CompileStandards(v cue.Value) ([]ir.Standard, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	stdsVal := v.LookupPath(cue.ParsePath("standard"))
	if !stdsVal.Exists() {
		return nil, &CompileError{
			Field:   "standard",
			Message: "rule pack declares no standard",
			Pos:     v.Pos(),
		}
	}

	iter, err := stdsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var standards []ir.Standard
	for iter.Next() {
		std, err := CompileStandard(unquote(iter.Label()), iter.Value())
		if err != nil {
			return nil, err
		}
		standards = append(standards, *std)
	}

	sort.Slice(standards, func(i, j int) bool { return standards[i].Name < standards[j].Name })
	return standards, nil
}

// CompileStandard parses one standard struct. Rules are sorted by ID so the
// registry order never depends on CUE field ordering.
func CompileStandard(name string, v cue.Value) (*ir.Standard, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	std := &ir.Standard{
		Name:       name,
		Categories: map[string]ir.Applicability{},
	}

	title, err := optionalString(v, "title")
	if err != nil {
		return nil, err
	}
	std.Title = title
	if std.Title == "" {
		std.Title = name
	}

	std.Description, err = optionalString(v, "description")
	if err != nil {
		return nil, err
	}

	// Category defaults (optional)
	catVal := v.LookupPath(cue.ParsePath("category"))
	if catVal.Exists() {
		catIter, err := catVal.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for catIter.Next() {
			app, err := parseApplicability(catIter.Value().LookupPath(cue.ParsePath("applies_to")))
			if err != nil {
				return nil, err
			}
			std.Categories[unquote(catIter.Label())] = app
		}
	}

	ruleVal := v.LookupPath(cue.ParsePath("rule"))
	if ruleVal.Exists() {
		ruleIter, err := ruleVal.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for ruleIter.Next() {
			rule, err := CompileRule(unquote(ruleIter.Label()), ruleIter.Value())
			if err != nil {
				return nil, err
			}
			rule.Standard = name
			rule.AppliesTo = rule.AppliesTo.Inherit(std.Categories[rule.Category])
			std.Rules = append(std.Rules, *rule)
		}
	}

	sort.Slice(std.Rules, func(i, j int) bool { return std.Rules[i].ID < std.Rules[j].ID })
	return std, nil
}

// CompileRule parses a single rule struct. The rule ID is the struct label.
func CompileRule(id string, v cue.Value) (*ir.Rule, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	rule := &ir.Rule{ID: id}

	// Level (required)
	levelVal := v.LookupPath(cue.ParsePath("level"))
	if !levelVal.Exists() {
		return nil, &CompileError{
			Field:   "level",
			Message: fmt.Sprintf("rule %s: level is required", id),
			Pos:     v.Pos(),
		}
	}
	levelStr, err := levelVal.String()
	if err != nil {
		return nil, formatCUEError(err)
	}
	level, err := ir.ParseLevel(levelStr)
	if err != nil {
		return nil, &CompileError{
			Field:   "level",
			Message: fmt.Sprintf("rule %s: %v", id, err),
			Pos:     levelVal.Pos(),
		}
	}
	rule.Level = level

	// Description (required)
	rule.Description, err = optionalString(v, "description")
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(rule.Description) == "" {
		return nil, &CompileError{
			Field:   "description",
			Message: fmt.Sprintf("rule %s: description is required", id),
			Pos:     v.Pos(),
		}
	}

	// Category (required)
	rule.Category, err = optionalString(v, "category")
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(rule.Category) == "" {
		return nil, &CompileError{
			Field:   "category",
			Message: fmt.Sprintf("rule %s: category is required", id),
			Pos:     v.Pos(),
		}
	}

	if rule.Rationale, err = optionalString(v, "rationale"); err != nil {
		return nil, err
	}
	if rule.Reference, err = optionalString(v, "reference"); err != nil {
		return nil, err
	}

	if rule.Forbid, err = parseMatchers(v, "forbid"); err != nil {
		return nil, err
	}
	if rule.Require, err = parseMatchers(v, "require"); err != nil {
		return nil, err
	}
	if rule.Review, err = parseMatchers(v, "review"); err != nil {
		return nil, err
	}

	if rule.AppliesTo, err = parseApplicability(v.LookupPath(cue.ParsePath("applies_to"))); err != nil {
		return nil, err
	}

	return rule, nil
}

// parseMatchers reads an optional list of matcher structs.
func parseMatchers(v cue.Value, field string) ([]ir.Matcher, error) {
	listVal := v.LookupPath(cue.ParsePath(field))
	if !listVal.Exists() {
		return nil, nil
	}

	iter, err := listVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var matchers []ir.Matcher
	for iter.Next() {
		mv := iter.Value()

		var m ir.Matcher
		if m.Regex, err = optionalString(mv, "regex"); err != nil {
			return nil, err
		}
		if m.Call, err = optionalString(mv, "call"); err != nil {
			return nil, err
		}
		if m.Element, err = optionalString(mv, "element"); err != nil {
			return nil, err
		}
		if m.WithoutAttr, err = optionalString(mv, "without_attr"); err != nil {
			return nil, err
		}
		if m.WithAttr, err = optionalString(mv, "with_attr"); err != nil {
			return nil, err
		}
		if m.Message, err = optionalString(mv, "message"); err != nil {
			return nil, err
		}

		view, err := optionalString(mv, "view")
		if err != nil {
			return nil, err
		}
		switch ir.View(view) {
		case ir.ViewSource, "source":
		case ir.ViewMarkdown:
			m.View = ir.ViewMarkdown
		default:
			return nil, &CompileError{
				Field:   field + ".view",
				Message: fmt.Sprintf("view must be \"source\" or \"markdown\", got %q", view),
				Pos:     mv.Pos(),
			}
		}

		untrustedVal := mv.LookupPath(cue.ParsePath("untrusted"))
		if untrustedVal.Exists() {
			if m.Untrusted, err = untrustedVal.Bool(); err != nil {
				return nil, formatCUEError(err)
			}
		}

		confidence, err := optionalString(mv, "confidence")
		if err != nil {
			return nil, err
		}
		switch ir.Confidence(confidence) {
		case "":
		case ir.ConfidenceHigh, ir.ConfidenceLow:
			m.Confidence = ir.Confidence(confidence)
		default:
			return nil, &CompileError{
				Field:   field + ".confidence",
				Message: fmt.Sprintf("confidence must be \"high\" or \"low\", got %q", confidence),
				Pos:     mv.Pos(),
			}
		}

		if m.Kind() == "" {
			return nil, &CompileError{
				Field:   field,
				Message: "matcher must set exactly one of regex, call, element",
				Pos:     mv.Pos(),
			}
		}

		matchers = append(matchers, m)
	}

	return matchers, nil
}

// parseApplicability reads an optional applies_to struct.
func parseApplicability(v cue.Value) (ir.Applicability, error) {
	var app ir.Applicability
	if !v.Exists() {
		return app, nil
	}

	kinds, err := optionalStrings(v, "kinds")
	if err != nil {
		return app, err
	}
	for _, k := range kinds {
		kind := ir.TargetKind(strings.ToLower(k))
		if !ir.ValidTargetKinds[kind] {
			return app, &CompileError{
				Field:   "applies_to.kinds",
				Message: fmt.Sprintf("unknown target kind %q", k),
				Pos:     v.Pos(),
			}
		}
		app.Kinds = append(app.Kinds, kind)
	}

	langs, err := optionalStrings(v, "languages")
	if err != nil {
		return app, err
	}
	for _, l := range langs {
		app.Languages = append(app.Languages, strings.ToLower(l))
	}

	if app.Paths, err = optionalStrings(v, "paths"); err != nil {
		return app, err
	}
	if app.When, err = optionalString(v, "when"); err != nil {
		return app, err
	}

	return app, nil
}

func optionalString(v cue.Value, field string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return "", nil
	}
	s, err := fv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func optionalStrings(v cue.Value, field string) ([]string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return nil, nil
	}
	iter, err := fv.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []string
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out = append(out, s)
	}
	return out, nil
}

// unquote strips the quotes CUE keeps on labels such as "SEC-001".
func unquote(label string) string {
	return strings.Trim(label, `"`)
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
