package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrRunNotFound is returned when a run id is not in the journal.
var ErrRunNotFound = errors.New("run not found")

// BeginRun inserts the run row. Uses ON CONFLICT(id) DO NOTHING for
// idempotency - beginning the same run twice is silently ignored.
func (s *Store) BeginRun(ctx context.Context, run Run) error {
	if run.ID == "" {
		return errors.New("begin run: empty run id")
	}
	cfgJSON, err := marshalConfig(run.Config)
	if err != nil {
		return fmt.Errorf("begin run: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (id, selector, started_at, matched, config)
		VALUES (?, ?, ?, 1, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		run.ID,
		run.Selector,
		toMillis(run.StartedAt),
		cfgJSON,
	)
	if err != nil {
		return fmt.Errorf("begin run: %w", err)
	}
	return nil
}

// WriteStep appends a step event. The run must exist (foreign key).
// Writing the same (run, seq) twice is silently ignored.
func (s *Store) WriteStep(ctx context.Context, rec StepRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO step_events (run_id, seq, unit, phase, step, outcome)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, seq) DO NOTHING
	`,
		rec.RunID,
		rec.Seq,
		rec.Unit,
		rec.Phase,
		rec.Step,
		rec.Outcome,
	)
	if err != nil {
		return fmt.Errorf("write step: %w", err)
	}
	return nil
}

// WriteTransition appends a transition event. The run must exist.
func (s *Store) WriteTransition(ctx context.Context, rec TransitionRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transition_events (run_id, seq, attempt, from_state, to_state, status, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, seq) DO NOTHING
	`,
		rec.RunID,
		rec.Seq,
		rec.Attempt,
		rec.From,
		rec.To,
		rec.Status,
		rec.Reason,
	)
	if err != nil {
		return fmt.Errorf("write transition: %w", err)
	}
	return nil
}

// FinishRun records the run summary. Returns ErrRunNotFound if the run was
// never begun.
func (s *Store) FinishRun(ctx context.Context, run Run) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET
			finished_at = ?,
			matched = ?,
			failures = ?,
			steps = ?,
			units = ?,
			transition_state = ?,
			attempts = ?,
			transition_error = ?,
			runtime_skipped = ?,
			reset_status = ?
		WHERE id = ?
	`,
		toMillis(run.FinishedAt),
		boolToInt(run.Matched),
		run.Failures,
		run.Steps,
		run.Units,
		run.TransitionState,
		run.Attempts,
		run.TransitionError,
		boolToInt(run.RuntimeSkipped),
		run.ResetStatus,
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("finish run %q: %w", run.ID, ErrRunNotFound)
	}
	return nil
}

// runScanner is implemented by *sql.Row and *sql.Rows.
type runScanner interface {
	Scan(dest ...any) error
}

func scanRun(sc runScanner) (Run, error) {
	var (
		run                Run
		started            int64
		finished           sql.NullInt64
		matched, rtSkipped int
		cfgJSON            string
	)
	if err := sc.Scan(
		&run.ID, &run.Selector, &started, &finished, &matched,
		&run.Failures, &run.Steps, &run.Units, &run.TransitionState,
		&run.Attempts, &run.TransitionError, &rtSkipped, &run.ResetStatus, &cfgJSON,
	); err != nil {
		return Run{}, err
	}
	run.StartedAt = fromMillis(started)
	if finished.Valid {
		run.FinishedAt = fromMillis(finished.Int64)
	}
	run.Matched = matched != 0
	run.RuntimeSkipped = rtSkipped != 0

	cfg, err := unmarshalConfig(cfgJSON)
	if err != nil {
		return Run{}, err
	}
	run.Config = cfg
	return run, nil
}
