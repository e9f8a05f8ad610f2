package report

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/selftest/internal/firmware"
	"github.com/roach88/selftest/internal/store"
	"github.com/roach88/selftest/internal/suite"
	"github.com/roach88/selftest/internal/transition"
)

func sampleTrace() []Event {
	return []Event{
		StepEvent(1, suite.StepEvent{Unit: "a", Phase: suite.PhaseRunBeforeTransition, Step: suite.StepSetup, Outcome: suite.Success}),
		StepEvent(2, suite.StepEvent{Unit: "a", Phase: suite.PhaseRunBeforeTransition, Step: suite.StepExecute, Outcome: suite.Failure}),
		TransitionEvent(3, transition.Change{Attempt: 1, From: transition.StateTransitionRequested, To: transition.StateStaleKeyRetry, Status: firmware.StatusStaleKey, Reason: "map key stale"}),
		TransitionEvent(4, transition.Change{Attempt: 2, From: transition.StateTransitionRequested, To: transition.StateCommitted, Status: firmware.StatusSuccess}),
	}
}

func TestStepEvent_Converts(t *testing.T) {
	ev := sampleTrace()[1]
	assert.Equal(t, Event{Seq: 2, Kind: KindStep, Unit: "a", Phase: "run_before_transition", Step: "execute", Outcome: "failure"}, ev)
}

func TestTransitionEvent_Converts(t *testing.T) {
	ev := sampleTrace()[2]
	assert.Equal(t, "transition_requested", ev.From)
	assert.Equal(t, "stale_key_retry", ev.To)
	assert.Equal(t, "EFI_INVALID_PARAMETER", ev.Status)
	assert.Equal(t, 1, ev.Attempt)
}

func TestRecorder(t *testing.T) {
	r := NewRecorder()
	sink := Multi(r, Discard)
	sink.Begin(RunInfo{RunID: "run-1"})
	for _, ev := range sampleTrace() {
		sink.Emit(ev)
	}
	sink.Emit(NoticeEvent(5, "hello"))
	sink.Finish(Summary{RunID: "run-1", Matched: true, Failures: 1})

	assert.Equal(t, "run-1", r.Info.RunID)
	assert.Len(t, r.Steps(), 2)
	assert.Len(t, r.Transitions(), 2)
	assert.Len(t, r.Notices(), 1)
	assert.Equal(t, []string{"setup:success", "execute:failure"}, r.StepsOf("a"))
	assert.Empty(t, r.StepsOf("b"))
	require.NotNil(t, r.Summary)
	assert.Equal(t, uint(1), r.Summary.Failures)
}

func TestSummary_Passed(t *testing.T) {
	assert.True(t, Summary{Matched: true}.Passed())
	assert.False(t, Summary{Matched: false}.Passed())
	assert.False(t, Summary{Matched: true, Failures: 1}.Passed())
	assert.False(t, Summary{Matched: true, RuntimeSkipped: true}.Passed())
}

func TestConsole_PlainOutput(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf, WithColor(false))

	c.Begin(RunInfo{RunID: "run-1"})
	for _, ev := range sampleTrace() {
		c.Emit(ev)
	}
	c.Finish(Summary{RunID: "run-1", Matched: true, Failures: 1, ResetStatus: "EFI_SUCCESS"})

	out := buf.String()
	assert.Contains(t, out, "Testing EFI API implementation\n")
	assert.Contains(t, out, "Setting up 'a' succeeded\n")
	assert.Contains(t, out, "Executing 'a' failed\n")
	assert.Contains(t, out, "Memory map changed before exiting boot services, retrying (attempt 1)\n")
	assert.Contains(t, out, "Exiting boot services succeeded (attempt 2)\n")
	assert.Contains(t, out, "Summary: 1 failures\n")
	assert.NotContains(t, out, "\x1b[", "no escape codes without color")
	assert.NotContains(t, out, "Reset request")
}

func TestConsole_RuntimeSkipped(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf, WithColor(false))
	c.Emit(Event{Kind: KindTransition, Attempt: 1, From: "transition_requested", To: "fatal", Reason: "COMMIT_FAULT: boom"})
	c.Finish(Summary{Matched: true, RuntimeSkipped: true, ResetStatus: "EFI_DEVICE_ERROR"})

	out := buf.String()
	assert.Contains(t, out, "Exiting boot services failed: COMMIT_FAULT: boom\n")
	assert.Contains(t, out, "Summary: 0 failures\n")
	assert.Contains(t, out, RuntimeSkippedNotice)
	assert.Contains(t, out, "Reset request returned EFI_DEVICE_ERROR")
}

func TestConsole_NotFound(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf, WithColor(false))
	c.Begin(RunInfo{Selector: "bogus"})
	c.Finish(Summary{Selector: "bogus", Matched: false})

	out := buf.String()
	assert.Contains(t, out, "Testing EFI API implementation (bogus)")
	assert.Contains(t, out, "Test 'bogus' not found")
	assert.NotContains(t, out, "Summary:")
}

func TestConsole_VerboseTransitions(t *testing.T) {
	var quiet, loud bytes.Buffer
	ev := Event{Kind: KindTransition, Attempt: 1, From: "idle", To: "sizing_queried", Status: "EFI_BUFFER_TOO_SMALL"}

	NewConsole(&quiet, WithColor(false)).Emit(ev)
	NewConsole(&loud, WithColor(false), WithVerbose(true)).Emit(ev)

	assert.Empty(t, quiet.String())
	assert.Equal(t, "  transition attempt 1: idle -> sizing_queried (EFI_BUFFER_TOO_SMALL)\n", loud.String())
}

func TestJSON_LineDelimited(t *testing.T) {
	var buf bytes.Buffer
	j := NewJSON(&buf)
	j.Begin(RunInfo{RunID: "run-1"})
	j.Emit(sampleTrace()[0])
	j.Finish(Summary{RunID: "run-1", Matched: true, TransitionState: "committed", Attempts: 1})
	require.NoError(t, j.Err())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, `{"kind":"begin","run_id":"run-1"}`, lines[0])
	assert.Equal(t, `{"kind":"step","outcome":"success","phase":"run_before_transition","seq":1,"step":"setup","unit":"a"}`, lines[1])
	assert.Equal(t, `{"attempts":1,"failures":0,"kind":"summary","matched":true,"run_id":"run-1","runtime_skipped":false,"steps":0,"transition_state":"committed","units":0}`, lines[2])
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestJSON_KeepsFirstError(t *testing.T) {
	j := NewJSON(failingWriter{})
	j.Begin(RunInfo{RunID: "run-1"})
	j.Emit(sampleTrace()[0])
	require.Error(t, j.Err())
	assert.Contains(t, j.Err().Error(), "disk full")
}

func TestJournal_PersistsRun(t *testing.T) {
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	defer st.Close()
	ctx := context.Background()

	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	j := NewJournal(ctx, st, nil)
	j.Begin(RunInfo{RunID: "run-1", StartedAt: started, Config: map[string]any{"max_attempts": 3}})
	for _, ev := range sampleTrace() {
		j.Emit(ev)
	}
	j.Emit(NoticeEvent(5, "not journaled"))
	j.Finish(Summary{
		RunID: "run-1", Matched: true, Failures: 1, Steps: 2, Units: 1,
		TransitionState: "committed", Attempts: 2, ResetStatus: "EFI_SUCCESS",
		FinishedAt: started.Add(time.Second),
	})
	require.NoError(t, j.Err())
	assert.Equal(t, "run-1", j.RunID())

	run, err := st.ReadRun(ctx, "run-1")
	require.NoError(t, err)
	assert.True(t, run.Finished())
	assert.Equal(t, uint(1), run.Failures)
	assert.Equal(t, 2, run.Attempts)
	assert.Equal(t, "committed", run.TransitionState)

	steps, err := st.ReadSteps(ctx, "run-1")
	require.NoError(t, err)
	assert.Len(t, steps, 2)

	changes, err := st.ReadTransitions(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, changes, 2)
	assert.Equal(t, int64(3), changes[0].Seq)
	assert.Equal(t, "committed", changes[1].To)
}

func TestJournal_MismatchedFinish(t *testing.T) {
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	defer st.Close()

	j := NewJournal(context.Background(), st, nil)
	j.Begin(RunInfo{RunID: "run-1", StartedAt: time.Unix(0, 0)})
	j.Finish(Summary{RunID: "run-2"})
	assert.Error(t, j.Err())
}

func TestClock(t *testing.T) {
	c := NewClock()
	assert.Equal(t, int64(0), c.Current())
	assert.Equal(t, int64(1), c.Next())
	assert.Equal(t, int64(2), c.Next())
	assert.Equal(t, int64(2), c.Current())
}
