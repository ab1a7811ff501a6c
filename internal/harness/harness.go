package harness

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/conform/internal/engine"
	"github.com/roach88/conform/internal/evaluator"
	"github.com/roach88/conform/internal/ir"
	"github.com/roach88/conform/internal/registry"
	"github.com/roach88/conform/internal/scanner"
	"github.com/roach88/conform/internal/store"
)

// Epoch is the creation time of every scenario run.
var Epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// RunID returns the fixed run ID of a scenario.
func RunID(s *Scenario) string {
	return "scenario-" + s.Name
}

// Harness executes scenarios with a fixed clock and run IDs.
type Harness struct {
	store    *store.Store
	registry *registry.Registry
	reviewer *store.DecisionReviewer
	level    ir.Level
	runID    string
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation. The run
// goes through the real engine: decisions are stored, the check is saved,
// and assertions see the run as read back from the store.
//
// An error is returned only when the scenario cannot be set up or the
// check fails unexpectedly; assertion failures are reported in the Result.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h, err := setup(ctx, st, scenario)
	if err != nil {
		return nil, err
	}

	result := NewResult()
	result.baseDir = scenario.baseDir

	run, err := h.check(ctx, scenario)
	if scenario.ExpectError != "" {
		switch {
		case err == nil:
			result.AddError(fmt.Sprintf("expected error %s, check succeeded", scenario.ExpectError))
		case !strings.Contains(err.Error(), scenario.ExpectError):
			result.AddError(fmt.Sprintf("expected error %s, got: %v", scenario.ExpectError, err))
		}
		return result, nil
	}
	if err != nil {
		return nil, fmt.Errorf("check failed: %w", err)
	}

	if err := st.SaveRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to save run: %w", err)
	}
	stored, err := st.ReadRun(ctx, run.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to read run back: %w", err)
	}
	result.Run = stored

	actx := &AssertionContext{
		Rerun: func() (*ir.Run, error) {
			return h.check(ctx, scenario)
		},
	}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}

	return result, nil
}

func setup(ctx context.Context, st *store.Store, scenario *Scenario) (*Harness, error) {
	reg, err := registry.New()
	if err != nil {
		return nil, fmt.Errorf("failed to load built-in standards: %w", err)
	}
	for _, dir := range scenario.Packs {
		if err := reg.AddDir(dir); err != nil {
			return nil, fmt.Errorf("failed to load pack %s: %w", dir, err)
		}
	}

	for _, d := range scenario.Decisions {
		status, _ := ir.ParseStatus(d.Status)
		err := st.SaveDecision(ctx, store.Decision{
			RuleID:     d.Rule,
			TargetGlob: d.Glob,
			Status:     status,
			Reason:     d.Reason,
			Reviewer:   d.Reviewer,
			CreatedAt:  Epoch,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to record decision: %w", err)
		}
	}
	reviewer, err := store.NewDecisionReviewer(ctx, st)
	if err != nil {
		return nil, err
	}

	level := ir.LevelMust
	if scenario.FailLevel != "" {
		level, _ = ir.ParseLevel(scenario.FailLevel)
	}

	return &Harness{
		store:    st,
		registry: reg,
		reviewer: reviewer,
		level:    level,
		runID:    RunID(scenario),
	}, nil
}

// check runs one deterministic check of the scenario's targets.
func (h *Harness) check(ctx context.Context, scenario *Scenario) (*ir.Run, error) {
	targets, err := buildTargets(scenario.Targets)
	if err != nil {
		return nil, err
	}
	eng := engine.New(h.registry,
		engine.WithStore(h.store),
		engine.WithEvaluator(evaluator.New(evaluator.WithReviewer(h.reviewer))),
		engine.WithIDGenerator(engine.NewFixedGenerator(h.runID)),
		engine.WithClock(engine.FixedClock{T: Epoch}),
		engine.WithFailLevel(h.level),
	)
	return eng.Check(ctx, scenario.Standard, targets)
}

func buildTargets(specs []TargetSpec) ([]*scanner.Target, error) {
	var targets []*scanner.Target
	for _, spec := range specs {
		if spec.Path == "" {
			targets = append(targets, scanner.FromString(spec.Name, spec.Content))
			continue
		}
		resolved, err := engine.ResolveTargets([]string{spec.Path}, nil)
		if err != nil {
			return nil, err
		}
		targets = append(targets, resolved...)
	}
	return targets, nil
}
