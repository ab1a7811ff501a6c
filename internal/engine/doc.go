// Package engine orchestrates compliance runs.
//
// A run evaluates one standard against one or more targets:
//
//	targets, err := engine.ResolveTargets(args, os.Stdin)
//	run, err := engine.New(reg).Check(ctx, "security", targets)
//
// ResolveTargets expands file, directory and doublestar glob arguments into
// scanner targets. Check loads the standard's rules once, evaluates every
// target with the same rules, and stamps the run with an ID (UUIDv7) and a
// creation time. Save persists the run when a store is configured.
//
// Watch mode (Watcher) re-runs a check when targets change. Changes are
// debounced and delivered on one goroutine, so a check never overlaps with
// itself.
//
// Determinism: given the same rules and target content, every report of a
// run has the same findings and digest. Run IDs and timestamps come from
// IDGenerator and Clock so tests and golden scenarios can fix them.
package engine
