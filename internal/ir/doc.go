// Package ir provides the core types shared by every conform package:
// rules, matchers, evidence, findings, scores and reports.
//
// This package contains type definitions and their serialization only. All
// other internal packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - Rules are immutable once the registry hands them out
//   - Findings and evidence are always ordered deterministically
//   - Scores are exact rationals; an empty denominator is "N/A", never NaN
//   - All JSON tags use snake_case
package ir
