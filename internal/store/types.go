package store

import "time"

// Run is one row of the runs table.
type Run struct {
	ID         string
	Selector   string
	StartedAt  time.Time
	FinishedAt time.Time // zero while the run is in progress

	Matched         bool
	Failures        uint
	Steps           int
	Units           int
	TransitionState string
	Attempts        int
	TransitionError string
	RuntimeSkipped  bool
	ResetStatus     string

	// Config is the effective run configuration.
	Config map[string]any
}

// Finished reports whether FinishRun has been recorded for the run.
func (r Run) Finished() bool {
	return !r.FinishedAt.IsZero()
}

// StepRecord is one performed unit step.
type StepRecord struct {
	RunID   string
	Seq     int64
	Unit    string
	Phase   string
	Step    string
	Outcome string
}

// TransitionRecord is one transition coordinator state change.
type TransitionRecord struct {
	RunID   string
	Seq     int64
	Attempt int
	From    string
	To      string
	Status  string
	Reason  string
}

// UnitStats aggregates the journaled outcomes of one unit.
type UnitStats struct {
	Unit     string
	Runs     int
	Steps    int
	Failures int
}
