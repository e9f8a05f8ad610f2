package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/selftest/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Database string
	Limit    int
	Units    bool
}

// RunRow is one run in history output.
type RunRow struct {
	ID              string `json:"id"`
	Selector        string `json:"selector,omitempty"`
	StartedAt       string `json:"started_at"`
	Finished        bool   `json:"finished"`
	Matched         bool   `json:"matched"`
	Failures        uint   `json:"failures"`
	TransitionState string `json:"transition_state"`
	Attempts        int    `json:"attempts"`
	RuntimeSkipped  bool   `json:"runtime_skipped"`
}

// UnitRow is one unit in history --units output.
type UnitRow struct {
	Unit     string `json:"unit"`
	Runs     int    `json:"runs"`
	Steps    int    `json:"steps"`
	Failures int    `json:"failures"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List journaled runs",
		Long: `List the runs recorded in the SQLite journal, newest first.

With --units, show per-unit step and failure totals across all runs
instead.

Examples:
  selftest history --db ./selftest.db
  selftest history --db ./selftest.db --limit 5
  selftest history --db ./selftest.db --units --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "maximum number of runs (0 for all)")
	cmd.Flags().BoolVar(&opts.Units, "units", false, "aggregate by unit")

	return cmd
}

// openJournal opens an existing journal read-only. A missing file almost
// always means a mistyped path, so it is never created.
func openJournal(path string) (*store.Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, WrapExitError(ExitCommandError, "database not found", err)
	}
	st, err := store.Open(path, store.WithReadOnly())
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

func runHistory(opts *HistoryOptions, cmd *cobra.Command) error {
	ctx := context.Background()
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	st, err := openJournal(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	if opts.Units {
		stats, err := st.UnitHistory(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read unit history", err)
		}
		rows := make([]UnitRow, len(stats))
		for i, s := range stats {
			rows[i] = UnitRow{Unit: s.Unit, Runs: s.Runs, Steps: s.Steps, Failures: s.Failures}
		}
		if formatter.JSON() {
			return formatter.Success(rows)
		}
		printUnitRows(cmd.OutOrStdout(), rows)
		return nil
	}

	runs, err := st.ListRuns(ctx, opts.Limit)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list runs", err)
	}
	rows := make([]RunRow, len(runs))
	for i, r := range runs {
		rows[i] = newRunRow(r)
	}
	if formatter.JSON() {
		return formatter.Success(rows)
	}
	printRunRows(cmd.OutOrStdout(), rows)
	return nil
}

func newRunRow(r store.Run) RunRow {
	return RunRow{
		ID:              r.ID,
		Selector:        r.Selector,
		StartedAt:       r.StartedAt.UTC().Format(time.RFC3339),
		Finished:        r.Finished(),
		Matched:         r.Matched,
		Failures:        r.Failures,
		TransitionState: r.TransitionState,
		Attempts:        r.Attempts,
		RuntimeSkipped:  r.RuntimeSkipped,
	}
}

// verdict summarizes a run in one word.
func (r RunRow) verdict() string {
	switch {
	case !r.Finished:
		return "INCOMPLETE"
	case !r.Matched:
		return "NOT FOUND"
	case r.Failures > 0 || r.RuntimeSkipped:
		return "FAIL"
	default:
		return "PASS"
	}
}

func printRunRows(w io.Writer, rows []RunRow) {
	if len(rows) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return
	}
	for _, r := range rows {
		selector := r.Selector
		if selector == "" {
			selector = "all"
		}
		fmt.Fprintf(w, "%s  %s  %-10s failures=%d transition=%s attempts=%d  %s\n",
			r.StartedAt, truncateID(r.ID), r.verdict(), r.Failures, r.TransitionState, r.Attempts, selector)
	}
}

func printUnitRows(w io.Writer, rows []UnitRow) {
	if len(rows) == 0 {
		fmt.Fprintln(w, "No steps recorded.")
		return
	}
	for _, r := range rows {
		fmt.Fprintf(w, "%-24s runs=%d steps=%d failures=%d\n", r.Unit, r.Runs, r.Steps, r.Failures)
	}
}

// truncateID truncates a long ID for display.
func truncateID(id string) string {
	if len(id) <= 16 {
		return id
	}
	return id[:8] + "..." + id[len(id)-8:]
}
