package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/roach88/conform/internal/ir"
)

// ErrDuplicateRun is returned when a run ID is already stored.
var ErrDuplicateRun = errors.New("run already stored")

// SaveRun writes a run and all of its reports in one transaction. Either the
// whole run is stored or nothing is.
//
// Reports keep their position in the run so a stored run reads back in the
// order it was produced.
func (s *Store) SaveRun(ctx context.Context, run *ir.Run) error {
	if run.ID == "" {
		return fmt.Errorf("save run: empty run id")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save run: begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		INSERT INTO runs
		(id, standard, fail_level, rule_set_hash, created_at, tool_version, ir_version)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		run.ID,
		run.Standard,
		string(run.FailLevel),
		run.RuleSetHash,
		formatTime(run.CreatedAt),
		ir.ToolVersion,
		ir.IRVersion,
	)
	if err != nil {
		return fmt.Errorf("save run: insert run: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("save run: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("save run %s: %w", run.ID, ErrDuplicateRun)
	}

	for i, r := range run.Reports {
		body, err := marshalReport(r)
		if err != nil {
			return fmt.Errorf("save run: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO reports
			(run_id, position, id, target, digest, passed, violated, body)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`,
			run.ID,
			i,
			r.ID,
			r.Target.Name,
			r.Digest,
			r.Score.Passed,
			r.Score.Violated,
			body,
		)
		if err != nil {
			return fmt.Errorf("save run: insert report %s: %w", r.Target.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save run: commit: %w", err)
	}
	return nil
}

// SaveDecision records a manual review decision, replacing any earlier
// decision for the same rule and target glob.
func (s *Store) SaveDecision(ctx context.Context, d Decision) error {
	if err := d.validate(); err != nil {
		return fmt.Errorf("save decision: %w", err)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO decisions
		(rule_id, target_glob, status, reason, reviewer, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(rule_id, target_glob) DO UPDATE SET
			status = excluded.status,
			reason = excluded.reason,
			reviewer = excluded.reviewer,
			created_at = excluded.created_at
	`,
		strings.ToUpper(d.RuleID),
		d.TargetGlob,
		string(d.Status),
		d.Reason,
		d.Reviewer,
		formatTime(d.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("save decision: %w", err)
	}
	return nil
}

// DeleteDecision removes a decision. Deleting a missing decision is not an
// error; the returned bool says whether a row was removed.
func (s *Store) DeleteDecision(ctx context.Context, ruleID, targetGlob string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM decisions WHERE rule_id = ? AND target_glob = ?
	`, strings.ToUpper(ruleID), targetGlob)
	if err != nil {
		return false, fmt.Errorf("delete decision: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete decision: rows affected: %w", err)
	}
	return n > 0, nil
}

func (d Decision) validate() error {
	if strings.TrimSpace(d.RuleID) == "" {
		return errors.New("empty rule id")
	}
	if !doublestar.ValidatePattern(d.TargetGlob) {
		return fmt.Errorf("invalid target glob %q", d.TargetGlob)
	}
	if d.Status != ir.StatusPassed && d.Status != ir.StatusViolated {
		return fmt.Errorf("decision status must be passed or violated, got %q", d.Status)
	}
	if strings.TrimSpace(d.Reason) == "" {
		return errors.New("a decision needs a reason")
	}
	return nil
}
