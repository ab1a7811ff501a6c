package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/conform/internal/evaluator"
	"github.com/roach88/conform/internal/ir"
	"github.com/roach88/conform/internal/registry"
	"github.com/roach88/conform/internal/scanner"
	"github.com/roach88/conform/internal/store"
)

// Engine runs compliance checks: it loads a standard from the registry,
// evaluates each target and groups the reports into a run.
//
// INVARIANTS:
//   - targets are evaluated in the order given, one at a time
//   - rules are evaluated in registry order for every target
//   - a run is built completely before it is stored; a failed check stores
//     nothing
type Engine struct {
	registry  *registry.Registry
	evaluator *evaluator.Evaluator
	store     *store.Store
	ids       IDGenerator
	clock     Clock
	failLevel ir.Level
}

// Option configures an Engine.
type Option func(*Engine)

// WithEvaluator replaces the default evaluator, e.g. to install a reviewer.
func WithEvaluator(ev *evaluator.Evaluator) Option {
	return func(e *Engine) {
		e.evaluator = ev
	}
}

// WithStore enables Save.
func WithStore(s *store.Store) Option {
	return func(e *Engine) {
		e.store = s
	}
}

// WithIDGenerator sets the run ID source.
//
// Default: UUIDv7Generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(e *Engine) {
		e.ids = g
	}
}

// WithClock sets the clock used for run timestamps.
//
// Default: SystemClock.
func WithClock(c Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithFailLevel sets the lowest level whose violations fail a run.
//
// Default: MUST.
func WithFailLevel(l ir.Level) Option {
	return func(e *Engine) {
		e.failLevel = l
	}
}

// New creates an Engine over reg.
func New(reg *registry.Registry, opts ...Option) *Engine {
	e := &Engine{
		registry:  reg,
		evaluator: evaluator.New(),
		ids:       UUIDv7Generator{},
		clock:     SystemClock{},
		failLevel: ir.LevelMust,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Check evaluates every target against standard and returns the run.
//
// An unknown standard is a registry ConfigurationError. Malformed target
// content is not an error (see evaluator.Evaluate); only cancellation stops
// a check part way, and then no run is returned.
func (e *Engine) Check(ctx context.Context, standard string, targets []*scanner.Target) (*ir.Run, error) {
	rules, err := e.registry.LoadRules(standard)
	if err != nil {
		return nil, err
	}
	std, err := e.registry.Standard(standard)
	if err != nil {
		return nil, err
	}
	hash, err := ir.RuleSetHash(rules)
	if err != nil {
		return nil, fmt.Errorf("check: %w", err)
	}

	run := &ir.Run{
		ID:          e.ids.Generate(),
		Standard:    std.Name,
		FailLevel:   e.failLevel,
		RuleSetHash: hash,
		CreatedAt:   e.clock.Now(),
		Reports:     make([]ir.Report, 0, len(targets)),
	}

	for _, t := range targets {
		r, err := e.evaluator.Evaluate(ctx, t, std.Name, rules)
		if err != nil {
			return nil, fmt.Errorf("check: %w", err)
		}
		slog.Debug("target checked",
			"run", run.ID,
			"target", t.Name,
			"score", r.Score.Percent(),
			"violated", r.Summary.Violated,
			"needs_review", r.Summary.NeedsReview,
		)
		run.Reports = append(run.Reports, *r)
	}

	slog.Info("check complete",
		"run", run.ID,
		"standard", run.Standard,
		"targets", len(run.Reports),
		"rules", len(rules),
		"failed", run.Failed(),
	)
	return run, nil
}

// Save stores run. It fails when the engine has no store.
func (e *Engine) Save(ctx context.Context, run *ir.Run) error {
	if e.store == nil {
		return fmt.Errorf("save run %s: no store configured", run.ID)
	}
	if err := e.store.SaveRun(ctx, run); err != nil {
		return err
	}
	slog.Debug("run saved", "run", run.ID)
	return nil
}
