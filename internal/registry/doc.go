// Package registry exposes the rule packs conform evaluates against.
//
// Built-in standards are CUE files embedded from standards/. Each declares
// one standard:
//
//	standard: ux: {
//		category: accessibility: applies_to: kinds: ["markup"]
//		rule: "UX-001": {
//			level:       "MUST"
//			category:    "accessibility"
//			description: "Every image carries alternative text."
//			forbid: [{element: "img", without_attr: "alt"}]
//		}
//	}
//
// Additional packs are loaded from a directory with AddDir. Loading fails
// with a *ConfigurationError when a standard is unknown or a rule is
// malformed; the registry is never left partially updated.
package registry
