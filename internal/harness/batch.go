package harness

import "fmt"

// BatchResult summarizes a set of scenario files.
type BatchResult struct {
	Total    int               `json:"total"`
	Passed   int               `json:"passed"`
	Failed   int               `json:"failed"`
	Failures []ScenarioFailure `json:"failures,omitempty"`
}

// ScenarioFailure represents a scenario that failed to load, run or pass.
type ScenarioFailure struct {
	ScenarioPath string   `json:"scenario_path"`
	Name         string   `json:"name,omitempty"`
	Errors       []string `json:"errors"`
}

// RunFiles loads and runs each scenario file in order.
func RunFiles(paths []string) *BatchResult {
	result := &BatchResult{Total: len(paths)}

	for _, path := range paths {
		scenario, err := LoadScenario(path)
		if err != nil {
			result.fail(path, "", fmt.Sprintf("failed to load scenario: %v", err))
			continue
		}

		runResult, err := Run(scenario)
		if err != nil {
			result.fail(path, scenario.Name, fmt.Sprintf("scenario execution failed: %v", err))
			continue
		}

		if !runResult.Pass {
			result.fail(path, scenario.Name, runResult.Errors...)
			continue
		}
		result.Passed++
	}
	return result
}

func (b *BatchResult) fail(path, name string, errs ...string) {
	b.Failed++
	b.Failures = append(b.Failures, ScenarioFailure{ScenarioPath: path, Name: name, Errors: errs})
}
