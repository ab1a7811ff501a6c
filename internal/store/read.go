package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/conform/internal/ir"
)

var (
	// ErrRunNotFound is returned when no stored run matches a reference.
	ErrRunNotFound = errors.New("run not found")
	// ErrAmbiguousRun is returned when a run ID prefix matches several runs.
	ErrAmbiguousRun = errors.New("run reference is ambiguous")
)

// Latest refers to the most recently stored run.
const Latest = "latest"

// RunSummary is a stored run without its reports.
type RunSummary struct {
	ID          string
	Standard    string
	FailLevel   ir.Level
	RuleSetHash string
	CreatedAt   string
	Targets     int
	Score       ir.Score
}

// ResolveRunID turns a run reference into a stored run ID. A reference is a
// full ID, a unique ID prefix, or Latest.
func (s *Store) ResolveRunID(ctx context.Context, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("resolve run: empty reference: %w", ErrRunNotFound)
	}

	if ref == Latest {
		var id string
		err := s.db.QueryRowContext(ctx, `SELECT id FROM runs ORDER BY seq DESC LIMIT 1`).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("resolve run %s: %w", ref, ErrRunNotFound)
		}
		if err != nil {
			return "", fmt.Errorf("resolve run %s: %w", ref, err)
		}
		return id, nil
	}

	var exact string
	err := s.db.QueryRowContext(ctx, `SELECT id FROM runs WHERE id = ?`, ref).Scan(&exact)
	if err == nil {
		return exact, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("resolve run %s: %w", ref, err)
	}

	// LIKE wildcards in the reference are matched literally.
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(ref)
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM runs
		WHERE id LIKE ? ESCAPE '\'
		ORDER BY seq ASC
		LIMIT 2
	`, escaped+"%")
	if err != nil {
		return "", fmt.Errorf("resolve run %s: %w", ref, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return "", fmt.Errorf("resolve run %s: %w", ref, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("resolve run %s: %w", ref, err)
	}

	switch len(ids) {
	case 0:
		return "", fmt.Errorf("resolve run %s: %w", ref, ErrRunNotFound)
	case 1:
		return ids[0], nil
	default:
		return "", fmt.Errorf("resolve run %s: %w", ref, ErrAmbiguousRun)
	}
}

// ReadRun loads a stored run and its reports in their original order.
func (s *Store) ReadRun(ctx context.Context, ref string) (*ir.Run, error) {
	id, err := s.ResolveRunID(ctx, ref)
	if err != nil {
		return nil, err
	}

	run := &ir.Run{ID: id}
	var failLevel, createdAt string
	err = s.db.QueryRowContext(ctx, `
		SELECT standard, fail_level, rule_set_hash, created_at
		FROM runs
		WHERE id = ?
	`, id).Scan(&run.Standard, &failLevel, &run.RuleSetHash, &createdAt)
	if err != nil {
		return nil, fmt.Errorf("read run %s: %w", id, err)
	}
	run.FailLevel = ir.Level(failLevel)
	if run.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("read run %s: %w", id, err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT body FROM reports
		WHERE run_id = ?
		ORDER BY position ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("read run %s: query reports: %w", id, err)
	}
	defer rows.Close()

	run.Reports = []ir.Report{}
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("read run %s: %w", id, err)
		}
		r, err := unmarshalReport(body)
		if err != nil {
			return nil, fmt.Errorf("read run %s: %w", id, err)
		}
		run.Reports = append(run.Reports, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read run %s: iterate reports: %w", id, err)
	}

	return run, nil
}

// ListRuns returns the most recent runs first. An empty standard lists runs
// of every standard; limit <= 0 lists all.
func (s *Store) ListRuns(ctx context.Context, standard string, limit int) ([]RunSummary, error) {
	query := `
		SELECT r.id, r.standard, r.fail_level, r.rule_set_hash, r.created_at,
		       COUNT(p.position), COALESCE(SUM(p.passed), 0), COALESCE(SUM(p.violated), 0)
		FROM runs r
		LEFT JOIN reports p ON p.run_id = r.id
		WHERE (? = '' OR r.standard = ?)
		GROUP BY r.seq
		ORDER BY r.seq DESC
	`
	args := []any{standard, standard}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	runs := []RunSummary{}
	for rows.Next() {
		var rs RunSummary
		var failLevel string
		if err := rows.Scan(&rs.ID, &rs.Standard, &failLevel, &rs.RuleSetHash, &rs.CreatedAt,
			&rs.Targets, &rs.Score.Passed, &rs.Score.Violated); err != nil {
			return nil, fmt.Errorf("list runs: %w", err)
		}
		rs.FailLevel = ir.Level(failLevel)
		runs = append(runs, rs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

// Decisions returns every stored review decision ordered by rule and glob.
func (s *Store) Decisions(ctx context.Context) ([]Decision, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT rule_id, target_glob, status, reason, reviewer, created_at
		FROM decisions
		ORDER BY rule_id COLLATE BINARY ASC, target_glob COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query decisions: %w", err)
	}
	defer rows.Close()

	decisions := []Decision{}
	for rows.Next() {
		var d Decision
		var status, createdAt string
		if err := rows.Scan(&d.RuleID, &d.TargetGlob, &status, &d.Reason, &d.Reviewer, &createdAt); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		d.Status = ir.Status(status)
		if d.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		decisions = append(decisions, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate decisions: %w", err)
	}
	return decisions, nil
}
