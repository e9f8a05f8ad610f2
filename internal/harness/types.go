package harness

import "github.com/roach88/selftest/internal/report"

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expectation and assertion held.
	Pass bool `json:"pass"`

	// Trace is every step, transition and notice event in seq order.
	Trace []report.Event `json:"trace"`

	// Summary is the final run report.
	Summary report.Summary `json:"summary"`

	// Errors lists failed expectations, then failed assertions.
	Errors []string `json:"errors,omitempty"`
}

// Steps returns the step events of the trace.
func (r *Result) Steps() []report.Event {
	var out []report.Event
	for _, ev := range r.Trace {
		if ev.Kind == report.KindStep {
			out = append(out, ev)
		}
	}
	return out
}
