package suite

import (
	"fmt"
	"strings"

	"github.com/roach88/selftest/internal/firmware"
)

// Phase says which scheduling passes, relative to the transition, run a
// unit's steps. Values increase in run order.
type Phase int

const (
	// PhaseRunBeforeTransition runs setup, execute and teardown while
	// boot-time services are available.
	PhaseRunBeforeTransition Phase = iota + 1
	// PhaseSetupBeforeTransition runs setup before the transition and
	// execute/teardown after it.
	PhaseSetupBeforeTransition
	// PhaseSetupAfterTransition runs every step after the transition.
	PhaseSetupAfterTransition
)

var phaseNames = map[Phase]string{
	PhaseRunBeforeTransition:   "run_before_transition",
	PhaseSetupBeforeTransition: "setup_before_transition",
	PhaseSetupAfterTransition:  "setup_after_transition",
}

func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// Valid reports whether p is one of the three phases.
func (p Phase) Valid() bool {
	_, ok := phaseNames[p]
	return ok
}

// ParsePhase maps a phase name back to its value.
func ParsePhase(s string) (Phase, error) {
	for p, name := range phaseNames {
		if name == s {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown phase %q", s)
}

// Step is a bitmask of unit steps to perform in one pass.
type Step uint

const (
	StepSetup Step = 1 << iota
	StepExecute
	StepTeardown

	StepNone Step = 0
	StepAll       = StepSetup | StepExecute | StepTeardown
)

func (s Step) String() string {
	if s == StepNone {
		return "none"
	}
	var parts []string
	if s&StepSetup != 0 {
		parts = append(parts, "setup")
	}
	if s&StepExecute != 0 {
		parts = append(parts, "execute")
	}
	if s&StepTeardown != 0 {
		parts = append(parts, "teardown")
	}
	return strings.Join(parts, "|")
}

// Has reports whether every bit of other is set in s.
func (s Step) Has(other Step) bool {
	return s&other == other
}

// ParseStep maps a single step name ("setup", "execute", "teardown").
func ParseStep(name string) (Step, error) {
	switch name {
	case "setup":
		return StepSetup, nil
	case "execute":
		return StepExecute, nil
	case "teardown":
		return StepTeardown, nil
	default:
		return StepNone, fmt.Errorf("unknown step %q", name)
	}
}

// Outcome is the two-valued result of a unit step.
type Outcome int

const (
	Success Outcome = iota
	Failure
)

func (o Outcome) String() string {
	if o == Success {
		return "success"
	}
	return "failure"
}

// OutcomeOf converts a boolean check into an Outcome.
func OutcomeOf(ok bool) Outcome {
	if ok {
		return Success
	}
	return Failure
}

// SetupState is the persisted result of a unit's most recent setup.
type SetupState int

const (
	SetupNotRun SetupState = iota
	SetupSucceeded
	SetupFailed
)

func (s SetupState) String() string {
	switch s {
	case SetupSucceeded:
		return "succeeded"
	case SetupFailed:
		return "failed"
	default:
		return "not_run"
	}
}

// Unit is one self-contained test. Setup, Execute and Teardown are each
// optional; a missing step counts as a trivial success.
//
// The scheduler owns the setup state. Nothing else about a Unit changes
// after registration.
type Unit struct {
	Name  string
	Phase Phase

	Setup    func(env *firmware.Env) Outcome
	Execute  func() Outcome
	Teardown func() Outcome

	// OnRequest units only run when selected by name.
	OnRequest bool

	setup SetupState
}

// SetupState returns the result of the most recent setup step.
func (u *Unit) SetupState() SetupState {
	return u.setup
}
