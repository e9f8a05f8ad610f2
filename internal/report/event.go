package report

import (
	"time"

	"github.com/roach88/selftest/internal/suite"
	"github.com/roach88/selftest/internal/transition"
)

// Kind identifies the trace event category.
type Kind string

const (
	KindStep       Kind = "step"
	KindTransition Kind = "transition"
	KindNotice     Kind = "notice"
)

// Event is one entry of a run trace. Step events fill Unit, Phase, Step and
// Outcome; transition events fill Attempt, From, To, Status and Reason;
// notices fill Message.
type Event struct {
	Seq  int64 `json:"seq"`
	Kind Kind  `json:"kind"`

	Unit    string `json:"unit,omitempty"`
	Phase   string `json:"phase,omitempty"`
	Step    string `json:"step,omitempty"`
	Outcome string `json:"outcome,omitempty"`

	Attempt int    `json:"attempt,omitempty"`
	From    string `json:"from,omitempty"`
	To      string `json:"to,omitempty"`
	Status  string `json:"status,omitempty"`
	Reason  string `json:"reason,omitempty"`

	Message string `json:"message,omitempty"`
}

// StepEvent converts a scheduler step report.
func StepEvent(seq int64, ev suite.StepEvent) Event {
	return Event{
		Seq:     seq,
		Kind:    KindStep,
		Unit:    ev.Unit,
		Phase:   ev.Phase.String(),
		Step:    ev.Step.String(),
		Outcome: ev.Outcome.String(),
	}
}

// TransitionEvent converts a coordinator state change.
func TransitionEvent(seq int64, ch transition.Change) Event {
	return Event{
		Seq:     seq,
		Kind:    KindTransition,
		Attempt: ch.Attempt,
		From:    ch.From.String(),
		To:      ch.To.String(),
		Status:  ch.Status.String(),
		Reason:  ch.Reason,
	}
}

// NoticeEvent is a free-form message addressed to the operator.
func NoticeEvent(seq int64, msg string) Event {
	return Event{Seq: seq, Kind: KindNotice, Message: msg}
}

// CanonicalMap returns the event with empty fields omitted, for
// MarshalCanonical.
func (e Event) CanonicalMap() map[string]any {
	m := map[string]any{
		"seq":  e.Seq,
		"kind": string(e.Kind),
	}
	put := func(key, val string) {
		if val != "" {
			m[key] = val
		}
	}
	put("unit", e.Unit)
	put("phase", e.Phase)
	put("step", e.Step)
	put("outcome", e.Outcome)
	if e.Attempt != 0 {
		m["attempt"] = e.Attempt
	}
	put("from", e.From)
	put("to", e.To)
	put("status", e.Status)
	put("reason", e.Reason)
	put("message", e.Message)
	return m
}

// RuntimeSkippedNotice is reported when the transition failed and the
// post-transition passes were not run.
const RuntimeSkippedNotice = "run-time phase tests were not executed"

// RunInfo describes a run as it begins.
type RunInfo struct {
	RunID     string
	Selector  string
	StartedAt time.Time
	// Config is the effective configuration, journaled with the run.
	Config map[string]any
}

// Summary is the final report of a run.
type Summary struct {
	RunID    string `json:"run_id"`
	Selector string `json:"selector,omitempty"`
	// Matched is false when a selector named no registered unit. Nothing
	// runs in that case, not even the transition.
	Matched bool `json:"matched"`

	Failures uint `json:"failures"`
	Steps    int  `json:"steps"`
	Units    int  `json:"units"`

	TransitionState string `json:"transition_state"`
	Attempts        int    `json:"attempts"`
	TransitionCode  string `json:"transition_code,omitempty"`
	TransitionError string `json:"transition_error,omitempty"`
	RuntimeSkipped  bool   `json:"runtime_skipped"`

	ResetStatus string `json:"reset_status,omitempty"`

	StartedAt  time.Time `json:"-"`
	FinishedAt time.Time `json:"-"`
}

// Passed reports whether the run counts as a pass: the selector matched,
// nothing failed and the run-time phase ran.
func (s Summary) Passed() bool {
	return s.Matched && s.Failures == 0 && !s.RuntimeSkipped
}

// CanonicalMap returns the summary for MarshalCanonical. The run id and
// timestamps are left out so the map is stable across runs.
func (s Summary) CanonicalMap() map[string]any {
	m := map[string]any{
		"matched":          s.Matched,
		"failures":         s.Failures,
		"steps":            s.Steps,
		"units":            s.Units,
		"transition_state": s.TransitionState,
		"attempts":         s.Attempts,
		"runtime_skipped":  s.RuntimeSkipped,
	}
	if s.Selector != "" {
		m["selector"] = s.Selector
	}
	if s.TransitionCode != "" {
		m["transition_code"] = s.TransitionCode
	}
	if s.ResetStatus != "" {
		m["reset_status"] = s.ResetStatus
	}
	return m
}
