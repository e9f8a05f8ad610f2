package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/selftest/internal/report"
)

// goldenDir is relative to the package under test.
const goldenDir = "testdata/golden"

// MarshalSnapshot renders a result in its golden form: the scenario name,
// run id, trace and summary as canonical JSON. Two runs of the same
// scenario produce identical bytes.
func MarshalSnapshot(name string, result *Result) ([]byte, error) {
	events := make([]any, 0, len(result.Trace))
	for _, ev := range result.Trace {
		events = append(events, ev.CanonicalMap())
	}
	return report.MarshalCanonical(map[string]any{
		"scenario_name": name,
		"run_id":        result.Summary.RunID,
		"trace":         events,
		"summary":       result.Summary.CanonicalMap(),
	})
}

// RunWithGolden runs scenario and checks its snapshot against
// testdata/golden/<name>.golden. Regenerate with:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	snapshot, err := MarshalSnapshot(scenario.Name, result)
	if err != nil {
		return nil, err
	}
	goldie.New(t,
		goldie.WithFixtureDir(goldenDir),
		goldie.WithNameSuffix(".golden"),
	).Assert(t, scenario.Name, snapshot)
	return result, nil
}
