package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const runColumns = `id, selector, started_at, finished_at, matched, failures, steps, units,
	transition_state, attempts, transition_error, runtime_skipped, reset_status, config`

// ReadRun retrieves a single run by id.
// Returns ErrRunNotFound if the id is unknown.
func (s *Store) ReadRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("read run %q: %w", id, ErrRunNotFound)
	}
	if err != nil {
		return Run{}, fmt.Errorf("read run %q: %w", id, err)
	}
	return run, nil
}

// ListRuns returns up to limit runs, newest first. limit <= 0 means all.
// Ties on start time are broken by id so the order is deterministic.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC, id COLLATE BINARY ASC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ReadSteps returns the step events of a run ordered by seq.
// Returns an empty slice (not nil) if there are none.
func (s *Store) ReadSteps(ctx context.Context, runID string) ([]StepRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, seq, unit, phase, step, outcome
		FROM step_events
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query steps: %w", err)
	}
	defer rows.Close()

	steps := []StepRecord{}
	for rows.Next() {
		var rec StepRecord
		if err := rows.Scan(&rec.RunID, &rec.Seq, &rec.Unit, &rec.Phase, &rec.Step, &rec.Outcome); err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}
		steps = append(steps, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate steps: %w", err)
	}
	return steps, nil
}

// ReadTransitions returns the transition events of a run ordered by seq.
// Returns an empty slice (not nil) if there are none.
func (s *Store) ReadTransitions(ctx context.Context, runID string) ([]TransitionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, seq, attempt, from_state, to_state, status, reason
		FROM transition_events
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query transitions: %w", err)
	}
	defer rows.Close()

	changes := []TransitionRecord{}
	for rows.Next() {
		var rec TransitionRecord
		if err := rows.Scan(&rec.RunID, &rec.Seq, &rec.Attempt, &rec.From, &rec.To, &rec.Status, &rec.Reason); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		changes = append(changes, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transitions: %w", err)
	}
	return changes, nil
}

// CountSteps counts the step events of a run matching unit and step. An
// empty unit or step matches any.
func (s *Store) CountSteps(ctx context.Context, runID, unit, step string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM step_events
		WHERE run_id = ?
		  AND (? = '' OR unit = ?)
		  AND (? = '' OR step = ?)
	`, runID, unit, unit, step, step).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count steps: %w", err)
	}
	return n, nil
}

// UnitHistory aggregates journaled step outcomes per unit across all runs,
// ordered by unit name.
func (s *Store) UnitHistory(ctx context.Context) ([]UnitStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT unit,
		       COUNT(DISTINCT run_id),
		       COUNT(*),
		       SUM(CASE WHEN outcome = 'failure' THEN 1 ELSE 0 END)
		FROM step_events
		GROUP BY unit
		ORDER BY unit COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query unit history: %w", err)
	}
	defer rows.Close()

	stats := []UnitStats{}
	for rows.Next() {
		var st UnitStats
		if err := rows.Scan(&st.Unit, &st.Runs, &st.Steps, &st.Failures); err != nil {
			return nil, fmt.Errorf("scan unit history: %w", err)
		}
		stats = append(stats, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate unit history: %w", err)
	}
	return stats, nil
}
