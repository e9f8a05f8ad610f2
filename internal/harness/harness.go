package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/selftest/internal/firmware"
	"github.com/roach88/selftest/internal/report"
	"github.com/roach88/selftest/internal/runner"
	"github.com/roach88/selftest/internal/store"
	"github.com/roach88/selftest/internal/suite"
	"github.com/roach88/selftest/internal/testutil"
	"github.com/roach88/selftest/internal/transition"
)

// Epoch is the deterministic start time of every scenario run.
var Epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// Run executes a scenario and returns the result.
//
// Each scenario runs against a fresh simulator and a fresh in-memory
// journal. The run id and clock are fixed, so the same scenario always
// produces the same trace.
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // Suppress logs in tests
	clock := testutil.NewDeterministicClock(Epoch, time.Second)

	sim, err := newSim(scenario.Firmware, clock)
	if err != nil {
		return nil, err
	}
	env, err := firmware.NewEnv(1, sim, sim, firmware.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	reg := suite.NewRegistry()
	for i, spec := range scenario.Units {
		u, err := newUnit(spec)
		if err != nil {
			return nil, fmt.Errorf("units[%d]: %w", i, err)
		}
		if err := reg.Register(u); err != nil {
			return nil, fmt.Errorf("units[%d]: %w", i, err)
		}
	}

	rec := report.NewRecorder()
	journal := report.NewJournal(ctx, st, logger)
	r, err := runner.New(env, reg,
		runner.WithTransitionConfig(transitionConfig(scenario.Transition)),
		runner.WithSink(report.Multi(rec, journal)),
		runner.WithRunIDGenerator(testutil.NewFixedRunIDGenerator(scenario.RunID)),
		runner.WithNow(clock.Now),
		runner.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create runner: %w", err)
	}

	summary, err := r.Run(ctx, scenario.Selector)
	if err != nil {
		return nil, fmt.Errorf("failed to run scenario: %w", err)
	}
	if err := journal.Err(); err != nil {
		return nil, fmt.Errorf("failed to journal run: %w", err)
	}

	result := &Result{
		Trace:   append([]report.Event{}, rec.Events...),
		Summary: summary,
		Errors:  checkExpect(summary, scenario.Expect),
	}

	actx := &AssertionContext{
		Store: st,
		Ctx:   ctx,
		RunID: summary.RunID,
	}
	result.Errors = append(result.Errors, EvaluateAssertions(result, scenario.Assertions, actx)...)
	result.Pass = len(result.Errors) == 0
	return result, nil
}

func newSim(spec FirmwareSpec, clock *testutil.DeterministicClock) (*firmware.Sim, error) {
	if err := checkCommitFault(spec.CommitFault); err != nil {
		return nil, err
	}
	opts := []firmware.SimOption{
		firmware.WithClock(clock.Now),
		firmware.WithStaleCommits(spec.StaleCommits),
		firmware.WithMapGrowth(spec.MapGrowth),
	}
	faults := []struct {
		name string
		opt  func(firmware.Status) firmware.SimOption
	}{
		{spec.CommitFault, firmware.WithCommitFault},
		{spec.SizeQueryFault, firmware.WithSizeQueryFault},
		{spec.CaptureFault, firmware.WithCaptureFault},
		{spec.AllocFault, firmware.WithAllocFault},
	}
	for _, f := range faults {
		if f.name == "" {
			continue
		}
		st, ok := firmware.ParseStatus(f.name)
		if !ok {
			return nil, fmt.Errorf("unknown firmware status %q", f.name)
		}
		opts = append(opts, f.opt(st))
	}
	return firmware.NewSim(opts...), nil
}

func transitionConfig(spec TransitionSpec) transition.Config {
	cfg := transition.DefaultConfig()
	if spec.MaxAttempts != 0 {
		cfg.MaxAttempts = spec.MaxAttempts
	}
	if spec.DescriptorMargin != 0 {
		cfg.DescriptorMargin = spec.DescriptorMargin
	}
	if spec.MaxResizes != nil {
		cfg.MaxResizes = *spec.MaxResizes
	}
	return cfg
}

// newUnit builds a unit whose steps return the scripted outcomes.
func newUnit(spec UnitSpec) (*suite.Unit, error) {
	phase, err := suite.ParsePhase(spec.Phase)
	if err != nil {
		return nil, err
	}
	u := &suite.Unit{Name: spec.Name, Phase: phase, OnRequest: spec.OnRequest}

	setup, err := scripted(spec.Setup)
	if err != nil {
		return nil, err
	}
	if setup != nil {
		u.Setup = func(*firmware.Env) suite.Outcome { return setup() }
	}
	if u.Execute, err = scripted(spec.Execute); err != nil {
		return nil, err
	}
	if u.Teardown, err = scripted(spec.Teardown); err != nil {
		return nil, err
	}
	return u, nil
}

func scripted(outcome string) (func() suite.Outcome, error) {
	switch outcome {
	case "", OutcomeSuccess:
		return func() suite.Outcome { return suite.Success }, nil
	case OutcomeFailure:
		return func() suite.Outcome { return suite.Failure }, nil
	case OutcomeAbsent:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown outcome %q", outcome)
	}
}

// checkExpect compares the summary against the expect clause.
func checkExpect(sum report.Summary, expect *ExpectClause) []string {
	if expect == nil {
		return nil
	}
	var errs []string
	if expect.Matched != nil && *expect.Matched != sum.Matched {
		errs = append(errs, fmt.Sprintf("expect: matched = %t, got %t", *expect.Matched, sum.Matched))
	}
	if expect.Failures != nil && *expect.Failures != sum.Failures {
		errs = append(errs, fmt.Sprintf("expect: failures = %d, got %d", *expect.Failures, sum.Failures))
	}
	if expect.Transition != nil && *expect.Transition != sum.TransitionState {
		errs = append(errs, fmt.Sprintf("expect: transition = %s, got %s", *expect.Transition, sum.TransitionState))
	}
	if expect.Attempts != nil && *expect.Attempts != sum.Attempts {
		errs = append(errs, fmt.Sprintf("expect: attempts = %d, got %d", *expect.Attempts, sum.Attempts))
	}
	if expect.RuntimeSkipped != nil && *expect.RuntimeSkipped != sum.RuntimeSkipped {
		errs = append(errs, fmt.Sprintf("expect: runtime_skipped = %t, got %t", *expect.RuntimeSkipped, sum.RuntimeSkipped))
	}
	return errs
}
