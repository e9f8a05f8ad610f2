package report

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/selftest/internal/store"
)

// Journal persists the run to the SQLite journal. Write failures never
// interrupt the run: they are logged and the first one is kept for Err.
type Journal struct {
	ctx    context.Context
	st     *store.Store
	logger *slog.Logger

	run store.Run
	err error
}

// NewJournal creates a journal sink over st. Cancelling ctx does not stop
// the journal: a run that has begun is always finished, so an interrupted
// key wait still records the reset status.
func NewJournal(ctx context.Context, st *store.Store, logger *slog.Logger) *Journal {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Journal{ctx: context.WithoutCancel(ctx), st: st, logger: logger}
}

// Err returns the first journal write error.
func (j *Journal) Err() error {
	return j.err
}

// RunID returns the id of the journaled run.
func (j *Journal) RunID() string {
	return j.run.ID
}

func (j *Journal) keep(err error) {
	if err == nil {
		return
	}
	j.logger.Error("journal write failed", "run_id", j.run.ID, "error", err)
	if j.err == nil {
		j.err = err
	}
}

// Begin implements Sink.
func (j *Journal) Begin(info RunInfo) {
	j.run = store.Run{
		ID:        info.RunID,
		Selector:  info.Selector,
		StartedAt: info.StartedAt,
		Config:    info.Config,
	}
	j.keep(j.st.BeginRun(j.ctx, j.run))
}

// Emit implements Sink.
func (j *Journal) Emit(ev Event) {
	if j.err != nil {
		return
	}
	switch ev.Kind {
	case KindStep:
		j.keep(j.st.WriteStep(j.ctx, store.StepRecord{
			RunID:   j.run.ID,
			Seq:     ev.Seq,
			Unit:    ev.Unit,
			Phase:   ev.Phase,
			Step:    ev.Step,
			Outcome: ev.Outcome,
		}))
	case KindTransition:
		j.keep(j.st.WriteTransition(j.ctx, store.TransitionRecord{
			RunID:   j.run.ID,
			Seq:     ev.Seq,
			Attempt: ev.Attempt,
			From:    ev.From,
			To:      ev.To,
			Status:  ev.Status,
			Reason:  ev.Reason,
		}))
	}
}

// Finish implements Sink.
func (j *Journal) Finish(s Summary) {
	if j.err != nil {
		return
	}
	if s.RunID != j.run.ID {
		j.keep(fmt.Errorf("finish run %q: journal began run %q", s.RunID, j.run.ID))
		return
	}
	run := j.run
	run.FinishedAt = s.FinishedAt
	run.Matched = s.Matched
	run.Failures = s.Failures
	run.Steps = s.Steps
	run.Units = s.Units
	run.TransitionState = s.TransitionState
	run.Attempts = s.Attempts
	run.TransitionError = s.TransitionError
	run.RuntimeSkipped = s.RuntimeSkipped
	run.ResetStatus = s.ResetStatus
	j.keep(j.st.FinishRun(j.ctx, run))
}
