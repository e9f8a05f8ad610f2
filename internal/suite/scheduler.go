package suite

import (
	"io"
	"log/slog"

	"github.com/roach88/selftest/internal/firmware"
)

// StepEvent reports one performed step call.
type StepEvent struct {
	Unit    string
	Phase   Phase
	Step    Step
	Outcome Outcome
}

// Reporter receives every performed step, in call order.
type Reporter interface {
	Step(ev StepEvent)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(ev StepEvent)

// Step implements Reporter.
func (f ReporterFunc) Step(ev StepEvent) { f(ev) }

// Tally accumulates the outcome of one run across scheduling passes.
type Tally struct {
	// Failures counts failing step calls, not failing units.
	Failures uint
	// Steps counts step calls actually made.
	Steps int
	// Units counts unit visits that performed at least one step call.
	Units int
}

// Passed reports whether no step failed.
func (t Tally) Passed() bool {
	return t.Failures == 0
}

// Scheduler runs registry units through their steps, one phase pass at a
// time.
//
// The scheduler is single-threaded. A unit's setup result persists across
// passes, which is what lets setup and execute of the same unit run in
// different passes on either side of the transition.
type Scheduler struct {
	env      *firmware.Env
	reg      *Registry
	reporter Reporter
	logger   *slog.Logger
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithReporter sets the step reporter.
func WithReporter(r Reporter) SchedulerOption {
	return func(s *Scheduler) {
		s.reporter = r
	}
}

// WithLogger sets the scheduler logger.
func WithLogger(l *slog.Logger) SchedulerOption {
	return func(s *Scheduler) {
		s.logger = l
	}
}

// NewScheduler creates a scheduler over reg. env is handed to every unit
// setup call.
func NewScheduler(env *firmware.Env, reg *Registry, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		env:      env,
		reg:      reg,
		reporter: ReporterFunc(func(StepEvent) {}),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunPhase performs the requested steps for every selected unit of phase.
//
// selector names a single unit to run regardless of its OnRequest flag;
// the empty selector runs every unit not marked OnRequest. Per unit, steps
// run in the fixed order setup, execute, teardown:
//
//   - setup is recorded as successful without a call if the unit has none
//   - execute runs only if the unit's setup has succeeded, in this pass or
//     an earlier one; otherwise it is skipped without counting a failure
//   - teardown always runs when requested, whatever happened before
//
// Failures are added to tally and reported; they never stop the pass.
func (s *Scheduler) RunPhase(selector string, phase Phase, steps Step, tally *Tally) {
	s.reg.Close()
	if steps&StepAll == StepNone {
		return
	}

	for _, u := range s.reg.units {
		if u.Phase != phase || !selected(u, selector) {
			continue
		}

		calls := tally.Steps
		if steps.Has(StepSetup) {
			s.setup(u, tally)
		}
		if steps.Has(StepExecute) && u.setup == SetupSucceeded {
			s.execute(u, tally)
		}
		if steps.Has(StepTeardown) {
			s.teardown(u, tally)
		}
		if tally.Steps > calls {
			tally.Units++
		}
	}
}

func selected(u *Unit, selector string) bool {
	if selector != "" {
		return u.Name == selector
	}
	return !u.OnRequest
}

func (s *Scheduler) setup(u *Unit, tally *Tally) {
	if u.Setup == nil {
		u.setup = SetupSucceeded
		return
	}
	s.logger.Info("setting up", "unit", u.Name, "phase", u.Phase.String())
	out := s.call(u, StepSetup, func() Outcome { return u.Setup(s.env) })
	if out == Success {
		u.setup = SetupSucceeded
	} else {
		u.setup = SetupFailed
	}
	s.record(u, StepSetup, out, tally)
}

func (s *Scheduler) execute(u *Unit, tally *Tally) {
	if u.Execute == nil {
		return
	}
	s.logger.Info("executing", "unit", u.Name, "phase", u.Phase.String())
	out := s.call(u, StepExecute, u.Execute)
	s.record(u, StepExecute, out, tally)
}

func (s *Scheduler) teardown(u *Unit, tally *Tally) {
	if u.Teardown == nil {
		return
	}
	s.logger.Info("tearing down", "unit", u.Name, "phase", u.Phase.String())
	out := s.call(u, StepTeardown, u.Teardown)
	s.record(u, StepTeardown, out, tally)
}

// call runs one step. A panicking step counts as a failure.
func (s *Scheduler) call(u *Unit, step Step, fn func() Outcome) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("step panicked", "unit", u.Name, "step", step.String(), "panic", r)
			out = Failure
		}
	}()
	return fn()
}

func (s *Scheduler) record(u *Unit, step Step, out Outcome, tally *Tally) {
	tally.Steps++
	if out != Success {
		tally.Failures++
		s.logger.Error("step failed", "unit", u.Name, "step", step.String())
	} else {
		s.logger.Debug("step succeeded", "unit", u.Name, "step", step.String())
	}
	s.reporter.Step(StepEvent{
		Unit:    u.Name,
		Phase:   u.Phase,
		Step:    step,
		Outcome: out,
	})
}
