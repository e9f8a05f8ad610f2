package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/selftest/internal/report"
	"github.com/roach88/selftest/internal/store"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string         // Assertion type for categorization
	Expected string         // Human-readable expected outcome
	Actual   string         // Human-readable actual outcome
	Trace    []report.Event // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s\n", ev.Seq, traceKey(ev))
		}
	}
	return buf.String()
}

// traceKey names an event the way step_order entries do: "unit:step" for
// steps, "transition:state" for transitions.
func traceKey(ev report.Event) string {
	switch ev.Kind {
	case report.KindStep:
		return ev.Unit + ":" + ev.Step
	case report.KindTransition:
		return "transition:" + ev.To
	default:
		return string(ev.Kind)
	}
}

func stepMatches(ev report.Event, unit, step string) bool {
	return ev.Kind == report.KindStep && ev.Unit == unit && (step == "" || ev.Step == step)
}

// assertStepOutcome checks that the unit's step ran and reported the
// outcome. When a step ran more than once, every call must match.
func assertStepOutcome(trace []report.Event, a Assertion) error {
	found := false
	for _, ev := range trace {
		if !stepMatches(ev, a.Unit, a.Step) {
			continue
		}
		found = true
		if ev.Outcome != a.Outcome {
			return &AssertionError{
				Type:     AssertStepOutcome,
				Expected: fmt.Sprintf("%s:%s %s", a.Unit, a.Step, a.Outcome),
				Actual:   fmt.Sprintf("%s:%s %s (seq %d)", a.Unit, a.Step, ev.Outcome, ev.Seq),
				Trace:    trace,
			}
		}
	}
	if !found {
		return &AssertionError{
			Type:     AssertStepOutcome,
			Expected: fmt.Sprintf("%s:%s %s", a.Unit, a.Step, a.Outcome),
			Actual:   "step not found in trace",
			Trace:    trace,
		}
	}
	return nil
}

// assertStepAbsent checks that the unit's step (or any step) never ran.
func assertStepAbsent(trace []report.Event, a Assertion) error {
	for _, ev := range trace {
		if stepMatches(ev, a.Unit, a.Step) {
			what := a.Unit
			if a.Step != "" {
				what += ":" + a.Step
			}
			return &AssertionError{
				Type:     AssertStepAbsent,
				Expected: fmt.Sprintf("%s never runs", what),
				Actual:   fmt.Sprintf("ran at seq %d with %s", ev.Seq, ev.Outcome),
				Trace:    trace,
			}
		}
	}
	return nil
}

// assertStepOrder checks that entries appear in the specified order.
// Entries don't need to be consecutive (intervening events are allowed).
func assertStepOrder(trace []report.Event, a Assertion) error {
	// Step 1: Find first position of each expected entry
	positions := make(map[string]int)
	for i, ev := range trace {
		key := traceKey(ev)
		if positions[key] == 0 {
			positions[key] = i + 1 // 1-indexed for readability
		}
	}

	// Step 2: Verify all entries found
	for _, entry := range a.Order {
		if positions[entry] == 0 {
			return &AssertionError{
				Type:     AssertStepOrder,
				Expected: fmt.Sprintf("all entries present: %v", a.Order),
				Actual:   fmt.Sprintf("missing entry: %s", entry),
				Trace:    trace,
			}
		}
	}

	// Step 3: Verify order
	for i := 1; i < len(a.Order); i++ {
		prev, curr := a.Order[i-1], a.Order[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertStepOrder,
				Expected: fmt.Sprintf("entries in order: %v", a.Order),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}
	return nil
}

// assertStepCount checks the journaled number of step calls for a unit.
func assertStepCount(ctx context.Context, st *store.Store, runID string, a Assertion) error {
	count, err := st.CountSteps(ctx, runID, a.Unit, a.Step)
	if err != nil {
		return fmt.Errorf("step_count: %w", err)
	}
	if count != a.Count {
		what := a.Unit
		if a.Step != "" {
			what += ":" + a.Step
		}
		return &AssertionError{
			Type:     AssertStepCount,
			Expected: fmt.Sprintf("%d journaled calls of %s", a.Count, what),
			Actual:   fmt.Sprintf("%d calls", count),
		}
	}
	return nil
}

// assertTransitionAttempts checks the number of handshake attempts in the
// journal.
func assertTransitionAttempts(ctx context.Context, st *store.Store, runID string, a Assertion) error {
	changes, err := st.ReadTransitions(ctx, runID)
	if err != nil {
		return fmt.Errorf("transition_attempts: %w", err)
	}
	attempts := 0
	for _, ch := range changes {
		if ch.Attempt > attempts {
			attempts = ch.Attempt
		}
	}
	if attempts != a.Count {
		return &AssertionError{
			Type:     AssertTransitionAttempts,
			Expected: fmt.Sprintf("%d attempts", a.Count),
			Actual:   fmt.Sprintf("%d attempts", attempts),
		}
	}
	return nil
}

// AssertionContext provides context for evaluating assertions.
type AssertionContext struct {
	Store *store.Store
	Ctx   context.Context
	RunID string
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// The actx parameter provides journal access for step_count and
// transition_attempts.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertStepOutcome:
			err = assertStepOutcome(result.Trace, assertion)
		case AssertStepAbsent:
			err = assertStepAbsent(result.Trace, assertion)
		case AssertStepOrder:
			err = assertStepOrder(result.Trace, assertion)
		case AssertStepCount, AssertTransitionAttempts:
			if actx == nil || actx.Store == nil {
				err = fmt.Errorf("assertion[%d]: %s requires database context", i, assertion.Type)
				break
			}
			if assertion.Type == AssertStepCount {
				err = assertStepCount(actx.Ctx, actx.Store, actx.RunID, assertion)
			} else {
				err = assertTransitionAttempts(actx.Ctx, actx.Store, actx.RunID, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
