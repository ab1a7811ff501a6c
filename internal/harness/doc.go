// Package harness runs conformance scenarios: YAML files that check a
// standard against fixed targets and assert on the findings.
//
// # Scenario Format
//
//	name: ux-missing-alt
//	description: "An image without alt text violates UX-001"
//	standard: ux
//	fail_level: MUST          # optional
//	packs: [./packs]          # optional extra rule packs
//	targets:
//	  - name: page.html       # inline content
//	    content: |
//	      <img src="logo.png">
//	  - path: fixtures/app.js # file, directory or glob
//	decisions:                # optional manual review decisions
//	  - rule: UX-005
//	    glob: "*.html"
//	    status: passed
//	    reason: "label comes from the wrapping component"
//	assertions:
//	  - type: finding
//	    target: page.html
//	    rule: UX-001
//	    status: violated
//	    evidence: "<img"
//	  - type: score
//	    target: page.html
//	    expect: "80.0%"
//	  - type: run_failed
//	    failed: true
//	  - type: deterministic
//
// A scenario may instead set expect_error to an error code (E008 for an
// unknown standard, E010 for a missing target) and omit assertions.
//
// # Assertion Types
//
//   - finding: a rule's status on a target, optionally with evidence text
//   - score: a target score, or a category score with category set
//   - summary: finding counts on a target
//   - warning: a warning on a target report
//   - run_failed: whether the run fails at its fail level
//   - deterministic: a second check produces the same report digests
//
// # Deterministic Testing
//
// Every scenario runs against a fresh in-memory store, with run ID
// "scenario-<name>" and creation time Epoch. The run goes through the real
// engine and is saved and read back before assertions run.
//
// Golden files hold a canonical JSON Snapshot of scores and finding
// statuses (see RunWithGolden, and `conform test --update`).
package harness
