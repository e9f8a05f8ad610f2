package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

var testEpoch = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

// createTestStore creates a new file-backed store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// beginTestRun begins a run started offset seconds after testEpoch.
func beginTestRun(t *testing.T, s *Store, id string, offset int) Run {
	t.Helper()
	run := Run{
		ID:        id,
		StartedAt: testEpoch.Add(time.Duration(offset) * time.Second),
		Config:    map[string]any{"max_attempts": 3},
	}
	if err := s.BeginRun(context.Background(), run); err != nil {
		t.Fatalf("BeginRun(%q) failed: %v", id, err)
	}
	return run
}
