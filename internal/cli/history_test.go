package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/selftest/internal/store"
	"github.com/roach88/selftest/internal/testutil"
)

// journalRuns runs the suite once per id into a fresh journal.
func journalRuns(t *testing.T, ids ...string) string {
	t.Helper()
	isolateEnv(t)
	dbPath := filepath.Join(t.TempDir(), "selftest.db")
	for _, id := range ids {
		opts := &RunOptions{
			RootOptions: &RootOptions{Format: "text"},
			Database:    dbPath,
			RunIDs:      testutil.NewFixedRunIDGenerator(id),
		}
		cmd := NewRunCommand(opts.RootOptions)
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})
		require.NoError(t, cmd.ParseFlags([]string{"--db", dbPath}))
		require.NoError(t, runSelftest(opts, cmd))
	}
	return dbPath
}

func execute(cmd *cobra.Command, args ...string) (string, error) {
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestHistoryCommand_Text(t *testing.T) {
	dbPath := journalRuns(t, "run-a", "run-b")

	out, err := execute(NewHistoryCommand(&RootOptions{Format: "text"}), "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "run-a")
	assert.Contains(t, out, "run-b")
	assert.Contains(t, out, "PASS")
	assert.Contains(t, out, "transition=committed")
}

func TestHistoryCommand_JSON(t *testing.T) {
	dbPath := journalRuns(t, "run-a")

	out, err := execute(NewHistoryCommand(&RootOptions{Format: "json"}), "--db", dbPath)
	require.NoError(t, err)

	var resp struct {
		Status string   `json:"status"`
		Data   []RunRow `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "run-a", resp.Data[0].ID)
	assert.True(t, resp.Data[0].Finished)
	assert.Equal(t, 1, resp.Data[0].Attempts)
}

func TestHistoryCommand_Units(t *testing.T) {
	dbPath := journalRuns(t, "run-a", "run-b")

	out, err := execute(NewHistoryCommand(&RootOptions{Format: "json"}), "--db", dbPath, "--units")
	require.NoError(t, err)

	var resp struct {
		Data []UnitRow `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.NotEmpty(t, resp.Data)
	for _, row := range resp.Data {
		assert.Equal(t, 2, row.Runs, row.Unit)
		assert.Zero(t, row.Failures, row.Unit)
	}
}

func TestHistoryCommand_MissingDatabase(t *testing.T) {
	_, err := execute(NewHistoryCommand(&RootOptions{Format: "text"}), "--db", filepath.Join(t.TempDir(), "nope.db"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "database not found")
}

func TestHistoryCommand_RequiresDB(t *testing.T) {
	_, err := execute(NewHistoryCommand(&RootOptions{Format: "text"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"db" not set`)
}

func TestShowCommand_Text(t *testing.T) {
	dbPath := journalRuns(t, "run-a")

	out, err := execute(NewShowCommand(&RootOptions{Format: "text", Verbose: true}), "--db", dbPath, "run-a")
	require.NoError(t, err)
	assert.Contains(t, out, "Run: run-a\n")
	assert.Contains(t, out, "Result: PASS\n")
	assert.Contains(t, out, "=== Timeline ===")
	assert.Contains(t, out, "unicode collation setup: success")
	assert.Contains(t, out, "transition transition_requested -> committed (attempt 1)")
	assert.Contains(t, out, "Phase: run_before_transition")
	assert.Contains(t, out, "Reset:      EFI_SUCCESS")
}

func TestShowCommand_UnitFilterJSON(t *testing.T) {
	dbPath := journalRuns(t, "run-a")

	out, err := execute(NewShowCommand(&RootOptions{Format: "json"}), "--db", dbPath, "run-a", "--unit", "real time clock")
	require.NoError(t, err)

	var resp struct {
		Data ShowResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "run-a", resp.Data.Run.ID)

	var prev int64
	steps := 0
	for _, ev := range resp.Data.Timeline {
		assert.Greater(t, ev.Seq, prev, "timeline is seq ordered")
		prev = ev.Seq
		if ev.Type == "step" {
			steps++
			assert.Equal(t, "real time clock", ev.Unit)
		}
	}
	assert.Equal(t, 3, steps)
}

func TestShowCommand_NotFound(t *testing.T) {
	dbPath := journalRuns(t, "run-a")

	out, err := execute(NewShowCommand(&RootOptions{Format: "text"}), "--db", dbPath, "run-zzz")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E_NOT_FOUND]: run run-zzz not found")
}

func TestBuildTimeline_MergesBySeq(t *testing.T) {
	steps := []store.StepRecord{
		{Seq: 1, Unit: "a", Step: "setup", Outcome: "success"},
		{Seq: 4, Unit: "b", Step: "execute", Outcome: "failure"},
	}
	changes := []store.TransitionRecord{
		{Seq: 2, Attempt: 1, From: "idle", To: "sizing_queried"},
		{Seq: 3, Attempt: 1, From: "transition_requested", To: "committed"},
	}

	tl := buildTimeline(steps, changes, "")
	require.Len(t, tl, 4)
	for i, ev := range tl {
		assert.Equal(t, int64(i+1), ev.Seq)
	}
	assert.Equal(t, "transition", tl[1].Type)

	filtered := buildTimeline(steps, changes, "b")
	require.Len(t, filtered, 3)
	assert.Equal(t, "b", filtered[2].Unit)
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "abcdefgh...12345678", truncateID("abcdefgh-0000-0000-0000-12345678"))
	assert.Equal(t, "short", truncateID("short"))
}
