package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/selftest/internal/store"
)

// ShowOptions holds flags for the show command.
type ShowOptions struct {
	*RootOptions
	Database string
	Unit     string // optional - filter steps to one unit
}

// TimelineEvent is a journaled step or transition in show output.
type TimelineEvent struct {
	Seq     int64  `json:"seq"`
	Type    string `json:"type"` // "step" or "transition"
	Unit    string `json:"unit,omitempty"`
	Phase   string `json:"phase,omitempty"`
	Step    string `json:"step,omitempty"`
	Outcome string `json:"outcome,omitempty"`
	Attempt int    `json:"attempt,omitempty"`
	From    string `json:"from,omitempty"`
	To      string `json:"to,omitempty"`
	Status  string `json:"status,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// ShowResult holds the complete show output.
type ShowResult struct {
	Run      RunDetail       `json:"run"`
	Timeline []TimelineEvent `json:"timeline"`
	Config   map[string]any  `json:"config,omitempty"`
}

// RunDetail is the run row with its finish record.
type RunDetail struct {
	RunRow
	FinishedAt      string `json:"finished_at,omitempty"`
	Steps           int    `json:"steps"`
	Units           int    `json:"units"`
	TransitionError string `json:"transition_error,omitempty"`
	ResetStatus     string `json:"reset_status,omitempty"`
}

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ShowOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "show RUN_ID",
		Short: "Show one journaled run",
		Long: `Show a journaled run: its summary and the timeline of step and
transition events in sequence order.

Examples:
  selftest show --db ./selftest.db 0191e2c4-...
  selftest show --db ./selftest.db 0191e2c4-... --unit "memory allocation"
  selftest show --db ./selftest.db 0191e2c4-... --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Unit, "unit", "", "only show steps of this unit")

	return cmd
}

func runShow(opts *ShowOptions, runID string, cmd *cobra.Command) error {
	ctx := context.Background()
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	st, err := openJournal(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	run, err := st.ReadRun(ctx, runID)
	if errors.Is(err, store.ErrRunNotFound) {
		_ = formatter.Error(ErrCodeNotFound, fmt.Sprintf("run %s not found", runID), nil)
		return NewExitError(ExitCommandError, fmt.Sprintf("run %s not found", runID))
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read run", err)
	}

	steps, err := st.ReadSteps(ctx, runID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read steps", err)
	}
	changes, err := st.ReadTransitions(ctx, runID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read transitions", err)
	}

	result := ShowResult{
		Run:      newRunDetail(run),
		Timeline: buildTimeline(steps, changes, opts.Unit),
		Config:   run.Config,
	}

	if formatter.JSON() {
		return formatter.Success(result)
	}
	return outputShowText(cmd.OutOrStdout(), result, opts.Verbose)
}

func newRunDetail(r store.Run) RunDetail {
	d := RunDetail{
		RunRow:          newRunRow(r),
		Steps:           r.Steps,
		Units:           r.Units,
		TransitionError: r.TransitionError,
		ResetStatus:     r.ResetStatus,
	}
	if r.Finished() {
		d.FinishedAt = r.FinishedAt.UTC().Format(time.RFC3339)
	}
	return d
}

// buildTimeline merges steps and transitions into one seq-ordered list.
// When unitFilter is set, only that unit's steps are kept; transitions are
// always shown.
func buildTimeline(steps []store.StepRecord, changes []store.TransitionRecord, unitFilter string) []TimelineEvent {
	timeline := make([]TimelineEvent, 0, len(steps)+len(changes))
	for _, s := range steps {
		if unitFilter != "" && s.Unit != unitFilter {
			continue
		}
		timeline = append(timeline, TimelineEvent{
			Seq:     s.Seq,
			Type:    "step",
			Unit:    s.Unit,
			Phase:   s.Phase,
			Step:    s.Step,
			Outcome: s.Outcome,
		})
	}
	for _, c := range changes {
		timeline = append(timeline, TimelineEvent{
			Seq:     c.Seq,
			Type:    "transition",
			Attempt: c.Attempt,
			From:    c.From,
			To:      c.To,
			Status:  c.Status,
			Reason:  c.Reason,
		})
	}
	sort.Slice(timeline, func(i, j int) bool { return timeline[i].Seq < timeline[j].Seq })
	return timeline
}

func outputShowText(w io.Writer, result ShowResult, verbose bool) error {
	run := result.Run
	fmt.Fprintf(w, "Run: %s\n", run.ID)
	if run.Selector != "" {
		fmt.Fprintf(w, "Test: %s\n", run.Selector)
	}
	fmt.Fprintf(w, "Started: %s\n", run.StartedAt)
	if run.FinishedAt != "" {
		fmt.Fprintf(w, "Finished: %s\n", run.FinishedAt)
	}
	fmt.Fprintf(w, "Result: %s\n", run.verdict())
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Timeline ===")
	if len(result.Timeline) == 0 {
		fmt.Fprintln(w, "  (no events)")
	}
	for _, ev := range result.Timeline {
		formatTimelineEvent(w, ev, verbose)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Summary ===")
	fmt.Fprintf(w, "  Units:      %d\n", run.Units)
	fmt.Fprintf(w, "  Steps:      %d\n", run.Steps)
	fmt.Fprintf(w, "  Failures:   %d\n", run.Failures)
	fmt.Fprintf(w, "  Transition: %s (attempts %d)\n", run.TransitionState, run.Attempts)
	if run.TransitionError != "" {
		fmt.Fprintf(w, "  Error:      %s\n", run.TransitionError)
	}
	if run.RuntimeSkipped {
		fmt.Fprintln(w, "  Run-time phase skipped")
	}
	if run.ResetStatus != "" {
		fmt.Fprintf(w, "  Reset:      %s\n", run.ResetStatus)
	}
	return nil
}

func formatTimelineEvent(w io.Writer, ev TimelineEvent, verbose bool) {
	switch ev.Type {
	case "step":
		fmt.Fprintf(w, "  [%d] %s %s: %s\n", ev.Seq, ev.Unit, ev.Step, ev.Outcome)
		if verbose {
			fmt.Fprintf(w, "       Phase: %s\n", ev.Phase)
		}
	case "transition":
		fmt.Fprintf(w, "  [%d] transition %s -> %s (attempt %d)\n", ev.Seq, ev.From, ev.To, ev.Attempt)
		if verbose && ev.Status != "" {
			fmt.Fprintf(w, "       Status: %s\n", ev.Status)
		}
		if verbose && ev.Reason != "" {
			fmt.Fprintf(w, "       Reason: %s\n", ev.Reason)
		}
	}
}
