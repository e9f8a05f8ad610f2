// Package runner drives a self-test run: it schedules the registered units
// in four passes around the boot-time to run-time transition, reports every
// step and state change to a sink, and finally requests a platform reset.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/selftest/internal/firmware"
	"github.com/roach88/selftest/internal/report"
	"github.com/roach88/selftest/internal/suite"
	"github.com/roach88/selftest/internal/transition"
)

// ResetMessage is passed to ResetSystem at the end of a run.
const ResetMessage = "Selftest completed"

// ResetPrompt is written before waiting for a key.
const ResetPrompt = "\nPreparing for reset. Press any key...\n"

// ErrAlreadyRan is returned when Run is called a second time. Unit setup
// state and the transition are one-shot.
var ErrAlreadyRan = errors.New("runner: already ran")

// Runner is the top-level driver. It is single-use.
type Runner struct {
	env  *firmware.Env
	reg  *suite.Registry
	cfg  transition.Config
	sink report.Sink

	clock  *report.Clock
	ids    RunIDGenerator
	now    func() time.Time
	waiter KeyWaiter
	prompt io.Writer
	logger *slog.Logger
	config map[string]any

	ran bool
}

// Option configures a Runner.
type Option func(*Runner)

// WithTransitionConfig sets the handshake bounds.
func WithTransitionConfig(cfg transition.Config) Option {
	return func(r *Runner) {
		r.cfg = cfg
	}
}

// WithSink sets where the run is reported. Default: report.Discard.
func WithSink(s report.Sink) Option {
	return func(r *Runner) {
		r.sink = s
	}
}

// WithRunIDGenerator sets the run id source. Default: UUIDv7Generator.
func WithRunIDGenerator(g RunIDGenerator) Option {
	return func(r *Runner) {
		r.ids = g
	}
}

// WithNow sets the wall clock used for run timestamps.
func WithNow(now func() time.Time) Option {
	return func(r *Runner) {
		r.now = now
	}
}

// WithKeyWaiter makes the runner write ResetPrompt to prompt and wait for a
// key before requesting the reset.
func WithKeyWaiter(w KeyWaiter, prompt io.Writer) Option {
	return func(r *Runner) {
		r.waiter = w
		r.prompt = prompt
	}
}

// WithLogger sets the runner logger. It is also handed to the scheduler and
// the coordinator.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = l
	}
}

// WithConfigSnapshot attaches the effective configuration to the run info.
func WithConfigSnapshot(cfg map[string]any) Option {
	return func(r *Runner) {
		r.config = cfg
	}
}

// New creates a runner over the units in reg.
func New(env *firmware.Env, reg *suite.Registry, opts ...Option) (*Runner, error) {
	if env == nil {
		return nil, errors.New("runner: nil env")
	}
	if reg == nil {
		return nil, errors.New("runner: nil registry")
	}
	r := &Runner{
		env:    env,
		reg:    reg,
		cfg:    transition.DefaultConfig(),
		sink:   report.Discard,
		clock:  report.NewClock(),
		ids:    UUIDv7Generator{},
		now:    time.Now,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(r)
	}
	if err := r.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("runner: %w", err)
	}
	return r, nil
}

// Matches reports whether selector names a registered unit. The empty
// selector matches the whole registry.
func (r *Runner) Matches(selector string) bool {
	if selector == "" {
		return true
	}
	_, ok := r.reg.Lookup(selector)
	return ok
}

// Run executes the self-test. Unit failures and transition failures are
// reported in the returned Summary, not as an error; the error is reserved
// for misuse of the runner.
func (r *Runner) Run(ctx context.Context, selector string) (report.Summary, error) {
	if r.ran {
		return report.Summary{}, ErrAlreadyRan
	}
	r.ran = true

	info := report.RunInfo{
		RunID:     r.ids.Generate(),
		Selector:  selector,
		StartedAt: r.now(),
		Config:    r.config,
	}
	sum := report.Summary{
		RunID:           info.RunID,
		Selector:        selector,
		TransitionState: transition.StateIdle.String(),
		StartedAt:       info.StartedAt,
	}
	log := r.logger.With("run_id", info.RunID)
	r.sink.Begin(info)

	if !r.Matches(selector) {
		log.Warn("test not found", "selector", selector)
		sum.FinishedAt = r.now()
		r.sink.Finish(sum)
		return sum, nil
	}
	sum.Matched = true
	log.Info("selftest starting", "selector", selector, "units", r.reg.Len())

	sched := suite.NewScheduler(r.env, r.reg,
		suite.WithLogger(r.logger),
		suite.WithReporter(suite.ReporterFunc(func(ev suite.StepEvent) {
			r.sink.Emit(report.StepEvent(r.clock.Next(), ev))
		})),
	)
	var tally suite.Tally

	sched.RunPhase(selector, suite.PhaseRunBeforeTransition, suite.StepAll, &tally)
	sched.RunPhase(selector, suite.PhaseSetupBeforeTransition, suite.StepSetup, &tally)

	coord, err := transition.NewCoordinator(r.env.Boot(), r.cfg,
		transition.WithLogger(r.logger),
		transition.WithObserver(func(ch transition.Change) {
			r.sink.Emit(report.TransitionEvent(r.clock.Next(), ch))
		}),
	)
	if err != nil {
		return report.Summary{}, err
	}
	res, err := coord.Run()
	sum.TransitionState = coord.State().String()
	if err != nil {
		var terr *transition.Error
		if errors.As(err, &terr) {
			sum.Attempts = terr.Attempt
		}
		sum.TransitionCode = string(transition.ErrorCodeOf(err))
		sum.TransitionError = err.Error()
		sum.RuntimeSkipped = true
		log.Error("boot services not exited", "error", err)
		r.sink.Emit(report.NoticeEvent(r.clock.Next(), report.RuntimeSkippedNotice))
	} else {
		sum.Attempts = res.Attempts
		sched.RunPhase(selector, suite.PhaseSetupBeforeTransition, suite.StepExecute|suite.StepTeardown, &tally)
		sched.RunPhase(selector, suite.PhaseSetupAfterTransition, suite.StepAll, &tally)
	}

	sum.Failures = tally.Failures
	sum.Steps = tally.Steps
	sum.Units = tally.Units
	log.Info("selftest finished", "failures", sum.Failures, "runtime_skipped", sum.RuntimeSkipped)

	sum.ResetStatus = r.reset(ctx, sum).String()
	sum.FinishedAt = r.now()
	r.sink.Finish(sum)
	return sum, nil
}

// reset optionally waits for a key and then asks run-time services for a
// warm reset carrying the run verdict.
func (r *Runner) reset(ctx context.Context, sum report.Summary) firmware.Status {
	if r.waiter != nil {
		if r.prompt != nil {
			fmt.Fprint(r.prompt, ResetPrompt)
		}
		if err := r.waiter.WaitForKey(ctx); err != nil {
			r.logger.Warn("wait for key", "error", err)
		}
	}

	verdict := firmware.StatusSuccess
	if !sum.Passed() {
		verdict = firmware.StatusAborted
	}
	st := r.env.Runtime().ResetSystem(firmware.ResetWarm, verdict, ResetMessage)
	if st != firmware.StatusSuccess {
		r.logger.Error("reset request failed", "status", st.String())
	}
	return st
}
