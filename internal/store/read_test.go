package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadRun_NotFound(t *testing.T) {
	s := createTestStore(t)
	_, err := s.ReadRun(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRunNotFound))
}

func TestReadRun_InProgress(t *testing.T) {
	s := createTestStore(t)
	beginTestRun(t, s, "run-1", 0)

	got, err := s.ReadRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.False(t, got.Finished())
	assert.Equal(t, testEpoch, got.StartedAt)
}

func TestListRuns_NewestFirst(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	beginTestRun(t, s, "old", 0)
	beginTestRun(t, s, "new", 10)
	beginTestRun(t, s, "mid-b", 5)
	beginTestRun(t, s, "mid-a", 5)

	runs, err := s.ListRuns(ctx, 0)
	require.NoError(t, err)
	var ids []string
	for _, r := range runs {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"new", "mid-a", "mid-b", "old"}, ids)

	limited, err := s.ListRuns(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestListRuns_Empty(t *testing.T) {
	s := createTestStore(t)
	runs, err := s.ListRuns(context.Background(), 10)
	require.NoError(t, err)
	assert.NotNil(t, runs)
	assert.Empty(t, runs)
}

func TestReadSteps_OrderedBySeq(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	beginTestRun(t, s, "run-1", 0)
	beginTestRun(t, s, "run-2", 1)

	for _, rec := range []StepRecord{
		{RunID: "run-1", Seq: 3, Unit: "a", Phase: "run_before_transition", Step: "teardown", Outcome: "success"},
		{RunID: "run-1", Seq: 1, Unit: "a", Phase: "run_before_transition", Step: "setup", Outcome: "success"},
		{RunID: "run-2", Seq: 1, Unit: "b", Phase: "setup_after_transition", Step: "setup", Outcome: "failure"},
		{RunID: "run-1", Seq: 2, Unit: "a", Phase: "run_before_transition", Step: "execute", Outcome: "failure"},
	} {
		require.NoError(t, s.WriteStep(ctx, rec))
	}

	steps, err := s.ReadSteps(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, steps, 3)
	assert.Equal(t, []string{"setup", "execute", "teardown"}, []string{steps[0].Step, steps[1].Step, steps[2].Step})

	empty, err := s.ReadSteps(ctx, "run-3")
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestCountSteps(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	beginTestRun(t, s, "run-1", 0)

	seq := int64(0)
	for _, unit := range []string{"a", "b"} {
		for _, step := range []string{"setup", "execute", "teardown"} {
			seq++
			require.NoError(t, s.WriteStep(ctx, StepRecord{
				RunID: "run-1", Seq: seq, Unit: unit, Phase: "run_before_transition", Step: step, Outcome: "success",
			}))
		}
	}

	tests := []struct {
		unit, step string
		want       int
	}{
		{"", "", 6},
		{"a", "", 3},
		{"", "execute", 2},
		{"b", "teardown", 1},
		{"c", "", 0},
	}
	for _, tt := range tests {
		n, err := s.CountSteps(ctx, "run-1", tt.unit, tt.step)
		require.NoError(t, err)
		assert.Equal(t, tt.want, n, "unit=%q step=%q", tt.unit, tt.step)
	}
}

func TestUnitHistory(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	beginTestRun(t, s, "run-1", 0)
	beginTestRun(t, s, "run-2", 1)

	writes := []StepRecord{
		{RunID: "run-1", Seq: 1, Unit: "b", Step: "setup", Outcome: "success"},
		{RunID: "run-1", Seq: 2, Unit: "a", Step: "setup", Outcome: "failure"},
		{RunID: "run-2", Seq: 1, Unit: "a", Step: "setup", Outcome: "success"},
		{RunID: "run-2", Seq: 2, Unit: "a", Step: "teardown", Outcome: "failure"},
	}
	for _, rec := range writes {
		rec.Phase = "run_before_transition"
		require.NoError(t, s.WriteStep(ctx, rec))
	}

	stats, err := s.UnitHistory(ctx)
	require.NoError(t, err)
	assert.Equal(t, []UnitStats{
		{Unit: "a", Runs: 2, Steps: 3, Failures: 2},
		{Unit: "b", Runs: 1, Steps: 1, Failures: 0},
	}, stats)
}
