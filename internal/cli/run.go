package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/selftest/internal/collation"
	"github.com/roach88/selftest/internal/config"
	"github.com/roach88/selftest/internal/firmware"
	"github.com/roach88/selftest/internal/report"
	"github.com/roach88/selftest/internal/runner"
	"github.com/roach88/selftest/internal/store"
	"github.com/roach88/selftest/internal/suite"
	"github.com/roach88/selftest/internal/units"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Test         string
	Database     string
	Wait         bool
	MaxAttempts  int
	StaleCommits int

	// RunIDs allows overriding the run id generator (for testing).
	// If nil, defaults to runner.UUIDv7Generator.
	RunIDs runner.RunIDGenerator
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the built-in self-test against the simulator",
		Long: `Run the built-in test units against the simulated firmware.

Units run before the exit from boot services, the handshake commits the
memory map, then the run-time units run. The run ends with a summary and a
warm reset request.

Exit codes:
  0 - No failures
  1 - Unit failures, or the run-time phase was skipped
  2 - Command error (unknown test, bad config, database error)

Examples:
  selftest run
  selftest run --test "memory allocation"
  selftest run --db ./selftest.db --stale-commits 2
  selftest run --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSelftest(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Test, "test", "", "run a single test unit by name")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite run journal")
	cmd.Flags().BoolVar(&opts.Wait, "wait", false, "wait for a key press before the reset")
	cmd.Flags().IntVar(&opts.MaxAttempts, "max-attempts", 0, "exit boot services attempts (overrides config)")
	cmd.Flags().IntVar(&opts.StaleCommits, "stale-commits", 0, "simulated stale map keys before a commit succeeds")

	return cmd
}

// applyRunFlags layers explicitly set flags over the loaded config.
func applyRunFlags(opts *RunOptions, cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("max-attempts") {
		cfg.Transition.MaxAttempts = opts.MaxAttempts
	}
	if flags.Changed("stale-commits") {
		cfg.Simulator.StaleCommits = opts.StaleCommits
	}
	if flags.Changed("db") {
		cfg.Store.Path = opts.Database
	}
	if flags.Changed("wait") {
		cfg.Console.WaitForKey = opts.Wait
	}
	if err := cfg.Validate(); err != nil {
		return WrapExitError(ExitCommandError, "invalid flags", err)
	}
	return nil
}

// newSimulator builds the simulated firmware with the collation protocol
// installed.
func newSimulator(cfg config.Config, logger *slog.Logger) *firmware.Sim {
	simOpts := []firmware.SimOption{
		firmware.WithMemoryPages(cfg.Simulator.MemoryPages),
		firmware.WithStaleCommits(cfg.Simulator.StaleCommits),
		firmware.WithSimLogger(logger),
	}
	// Validate has already rejected a malformed time.
	if t, ok, _ := cfg.Simulator.FixedTime(); ok {
		simOpts = append(simOpts, firmware.WithClock(func() time.Time { return t }))
	}
	sim := firmware.NewSim(simOpts...)
	sim.InstallProtocol(collation.ProtocolGUID, collation.New())
	return sim
}

func consoleSink(opts *RootOptions, cfg config.Config, w io.Writer) report.Sink {
	if opts.Format == "json" {
		return report.NewJSON(w)
	}
	consoleOpts := []report.ConsoleOption{report.WithVerbose(opts.Verbose)}
	switch cfg.Console.Color {
	case config.ColorAlways:
		consoleOpts = append(consoleOpts, report.WithColor(true))
	case config.ColorNever:
		consoleOpts = append(consoleOpts, report.WithColor(false))
	}
	return report.NewConsole(w, consoleOpts...)
}

func keyWaiter(in io.Reader) runner.KeyWaiter {
	if f, ok := in.(*os.File); ok {
		return runner.TerminalKeyWaiter{In: f}
	}
	return runner.ReaderKeyWaiter{R: in}
}

func runSelftest(opts *RunOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	if err := applyRunFlags(opts, cmd, &cfg); err != nil {
		return err
	}

	logger := newLogger(opts.RootOptions, cfg, cmd.ErrOrStderr())
	out := cmd.OutOrStdout()

	sim := newSimulator(cfg, logger)
	env, err := firmware.NewEnv(1, sim, sim, firmware.WithLogger(logger))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create boot environment", err)
	}

	reg := suite.NewRegistry()
	if err := units.Register(reg); err != nil {
		return WrapExitError(ExitCommandError, "failed to register units", err)
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, cancelling run", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	console := consoleSink(opts.RootOptions, cfg, out)
	sinks := []report.Sink{console}

	var journal *report.Journal
	if cfg.Store.Path != "" {
		logger.Debug("opening journal", "path", cfg.Store.Path)
		st, err := store.Open(cfg.Store.Path)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				logger.Error("error closing database", "error", closeErr)
			}
		}()
		journal = report.NewJournal(ctx, st, logger)
		sinks = append(sinks, journal)
	}

	runOpts := []runner.Option{
		runner.WithTransitionConfig(cfg.Transition),
		runner.WithSink(report.Multi(sinks...)),
		runner.WithLogger(logger),
		runner.WithConfigSnapshot(cfg.Snapshot()),
	}
	if opts.RunIDs != nil {
		runOpts = append(runOpts, runner.WithRunIDGenerator(opts.RunIDs))
	}
	if cfg.Console.WaitForKey {
		prompt := out
		if opts.Format == "json" {
			prompt = cmd.ErrOrStderr()
		}
		runOpts = append(runOpts, runner.WithKeyWaiter(keyWaiter(cmd.InOrStdin()), prompt))
	}

	r, err := runner.New(env, reg, runOpts...)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create runner", err)
	}

	sum, err := r.Run(ctx, opts.Test)
	if err != nil {
		return WrapExitError(ExitCommandError, "run failed", err)
	}

	if j, ok := console.(*report.JSON); ok && j.Err() != nil {
		return WrapExitError(ExitCommandError, "failed to write report", j.Err())
	}
	if journal != nil && journal.Err() != nil {
		return WrapExitError(ExitCommandError, "failed to journal run", journal.Err())
	}

	if !sum.Matched {
		if opts.Format != "json" {
			printUnitList(out, reg.Units())
		}
		return NewExitError(ExitCommandError, fmt.Sprintf("test %q not found", opts.Test))
	}
	if !sum.Passed() {
		if sum.RuntimeSkipped {
			return NewExitError(ExitFailure, fmt.Sprintf("%d failures, run-time phase skipped", sum.Failures))
		}
		return NewExitError(ExitFailure, fmt.Sprintf("%d failures", sum.Failures))
	}
	return nil
}
