package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/selftest/internal/config"
	"github.com/roach88/selftest/internal/runner"
	"github.com/roach88/selftest/internal/store"
	"github.com/roach88/selftest/internal/testutil"
)

// isolateEnv keeps the developer's environment out of config loading.
func isolateEnv(t *testing.T) {
	t.Helper()
	t.Setenv(config.EnvLogLevel, "")
	t.Setenv(config.EnvStorePath, "")
}

func executeRun(t *testing.T, rootOpts *RootOptions, stdin string, args ...string) (string, error) {
	t.Helper()
	isolateEnv(t)
	buf := &bytes.Buffer{}
	cmd := NewRunCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestRunCommand_Passes(t *testing.T) {
	out, err := executeRun(t, &RootOptions{Format: "text"}, "")
	require.NoError(t, err)

	assert.Contains(t, out, "Testing EFI API implementation\n")
	assert.Contains(t, out, "Setting up 'unicode collation' succeeded\n")
	assert.Contains(t, out, "Executing 'memory allocation' succeeded\n")
	assert.Contains(t, out, "Exiting boot services succeeded (attempt 1)\n")
	assert.Contains(t, out, "Executing 'exit boot services' succeeded\n")
	assert.Contains(t, out, "Executing 'real time clock' succeeded\n")
	assert.Contains(t, out, "Summary: 0 failures\n")
	assert.NotContains(t, out, "allocation stress", "on-request unit skipped")
	assert.NotContains(t, out, runner.ResetPrompt)
}

func TestRunCommand_SingleTest(t *testing.T) {
	out, err := executeRun(t, &RootOptions{Format: "text"}, "", "--test", "allocation stress")
	require.NoError(t, err)

	assert.Contains(t, out, "Testing EFI API implementation (allocation stress)\n")
	assert.Contains(t, out, "Executing 'allocation stress' succeeded\n")
	assert.NotContains(t, out, "unicode collation")
}

func TestRunCommand_UnknownTest(t *testing.T) {
	out, err := executeRun(t, &RootOptions{Format: "text"}, "", "--test", "bogus")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	assert.Contains(t, out, "Test 'bogus' not found\n")
	assert.Contains(t, out, "Available tests:\n")
	assert.Contains(t, out, "'unicode collation'\n")
	assert.Contains(t, out, "'allocation stress' - on request\n")
	assert.NotContains(t, out, "Exiting boot services")
}

func TestRunCommand_StaleCommitsRetry(t *testing.T) {
	out, err := executeRun(t, &RootOptions{Format: "text"}, "", "--stale-commits", "2")
	require.NoError(t, err)

	assert.Contains(t, out, "retrying (attempt 1)\n")
	assert.Contains(t, out, "retrying (attempt 2)\n")
	assert.Contains(t, out, "Exiting boot services succeeded (attempt 3)\n")
	assert.Contains(t, out, "Summary: 0 failures\n")
}

func TestRunCommand_TransitionExhausted(t *testing.T) {
	out, err := executeRun(t, &RootOptions{Format: "text"}, "", "--stale-commits", "1", "--max-attempts", "1")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "run-time phase skipped")

	assert.Contains(t, out, "Exiting boot services failed")
	assert.NotContains(t, out, "real time clock")
}

func TestRunCommand_InvalidFlag(t *testing.T) {
	_, err := executeRun(t, &RootOptions{Format: "text"}, "", "--max-attempts", "0")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "max_attempts")
}

func TestRunCommand_WaitForKey(t *testing.T) {
	out, err := executeRun(t, &RootOptions{Format: "text"}, "x", "--wait")
	require.NoError(t, err)

	prompt := strings.Index(out, "Preparing for reset")
	summary := strings.Index(out, "Summary: 0 failures")
	require.GreaterOrEqual(t, prompt, 0)
	require.GreaterOrEqual(t, summary, 0)
	assert.Less(t, prompt, summary, "the summary carries the reset status, so it follows the reset")
}

func TestRunCommand_JSON(t *testing.T) {
	out, err := executeRun(t, &RootOptions{Format: "json"}, "")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Greater(t, len(lines), 2)

	var first, last map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.NoError(t, json.Unmarshal([]byte(lines[len(lines)-1]), &last))
	assert.Equal(t, "begin", first["kind"])
	assert.Equal(t, "summary", last["kind"])
	assert.Equal(t, "committed", last["transition_state"])
	assert.Equal(t, float64(0), last["failures"])
}

func TestRunCommand_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "selftest.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[transition]
max_attempts = 1

[simulator]
stale_commits = 1
`), 0o644))

	_, err := executeRun(t, &RootOptions{Format: "text", ConfigPath: path}, "")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	// Flags override the file.
	_, err = executeRun(t, &RootOptions{Format: "text", ConfigPath: path}, "", "--max-attempts", "2")
	require.NoError(t, err)
}

func TestRunCommand_BadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "selftest.yaml")
	require.NoError(t, os.WriteFile(path, []byte("bogus: true\n"), 0o644))

	_, err := executeRun(t, &RootOptions{Format: "text", ConfigPath: path}, "")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to load config")
}

func TestRunCommand_Journal(t *testing.T) {
	isolateEnv(t)
	dbPath := filepath.Join(t.TempDir(), "selftest.db")

	opts := &RunOptions{
		RootOptions: &RootOptions{Format: "text"},
		Database:    dbPath,
		RunIDs:      testutil.NewFixedRunIDGenerator("run-cli-1"),
	}
	cmd := NewRunCommand(opts.RootOptions)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	require.NoError(t, cmd.ParseFlags([]string{"--db", dbPath}))
	require.NoError(t, runSelftest(opts, cmd))

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	run, err := st.ReadRun(context.Background(), "run-cli-1")
	require.NoError(t, err)
	assert.True(t, run.Finished())
	assert.True(t, run.Matched)
	assert.Equal(t, "committed", run.TransitionState)
	assert.Equal(t, "EFI_SUCCESS", run.ResetStatus)
	assert.Equal(t, json.Number("3"), run.Config["max_attempts"])
}
