package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/selftest/internal/firmware"
	"github.com/roach88/selftest/internal/suite"
)

// Scenario is a scripted run: a registry of units with fixed step
// outcomes, a simulated firmware configuration and the expected result.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Selector restricts the run to one unit. Empty runs the registry.
	Selector string `yaml:"selector,omitempty"`

	// RunID is the fixed run id. Defaults to "test-run-default".
	RunID string `yaml:"run_id,omitempty"`

	Transition TransitionSpec `yaml:"transition,omitempty"`
	Firmware   FirmwareSpec   `yaml:"firmware,omitempty"`

	// Units are registered in order.
	Units []UnitSpec `yaml:"units"`

	Expect *ExpectClause `yaml:"expect,omitempty"`

	// Assertions validate the trace and the journal.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// TransitionSpec overrides the handshake bounds. Zero fields keep the
// defaults, except MaxResizes which is taken as given when set.
type TransitionSpec struct {
	MaxAttempts      int  `yaml:"max_attempts,omitempty"`
	DescriptorMargin int  `yaml:"descriptor_margin,omitempty"`
	MaxResizes       *int `yaml:"max_resizes,omitempty"`
}

// FirmwareSpec scripts the simulated firmware. Faults are UEFI status
// names such as EFI_DEVICE_ERROR.
type FirmwareSpec struct {
	StaleCommits   int    `yaml:"stale_commits,omitempty"`
	MapGrowth      int    `yaml:"map_growth,omitempty"`
	CommitFault    string `yaml:"commit_fault,omitempty"`
	SizeQueryFault string `yaml:"size_query_fault,omitempty"`
	CaptureFault   string `yaml:"capture_fault,omitempty"`
	AllocFault     string `yaml:"alloc_fault,omitempty"`
}

// Step outcome scripts for UnitSpec.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeAbsent  = "absent"
)

// UnitSpec is a unit whose steps return fixed outcomes. An omitted step
// succeeds; "absent" leaves the step undefined.
type UnitSpec struct {
	Name      string `yaml:"name"`
	Phase     string `yaml:"phase"`
	Setup     string `yaml:"setup,omitempty"`
	Execute   string `yaml:"execute,omitempty"`
	Teardown  string `yaml:"teardown,omitempty"`
	OnRequest bool   `yaml:"on_request,omitempty"`
}

// ExpectClause checks the run summary. Nil fields are not checked.
type ExpectClause struct {
	Matched        *bool   `yaml:"matched,omitempty"`
	Failures       *uint   `yaml:"failures,omitempty"`
	Transition     *string `yaml:"transition,omitempty"`
	Attempts       *int    `yaml:"attempts,omitempty"`
	RuntimeSkipped *bool   `yaml:"runtime_skipped,omitempty"`
}

// Assertion validates the trace or the journal.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Unit names the unit (step_outcome, step_absent, step_count).
	Unit string `yaml:"unit,omitempty"`

	// Step restricts the match to one step. Empty matches any step.
	Step string `yaml:"step,omitempty"`

	// Outcome is the expected outcome (step_outcome).
	Outcome string `yaml:"outcome,omitempty"`

	// Order lists trace entries that must appear in this relative order
	// (step_order). Entries are "unit:step" or "transition:state".
	Order []string `yaml:"order,omitempty"`

	// Count is the expected number (step_count, transition_attempts).
	Count int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertStepOutcome        = "step_outcome"
	AssertStepAbsent         = "step_absent"
	AssertStepOrder          = "step_order"
	AssertStepCount          = "step_count"
	AssertTransitionAttempts = "transition_attempts"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed, contains
// unknown fields, fails the schema or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Parse YAML with strict field validation (catches typos like "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateSchema(data); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks what the schema cannot: cross-field rules,
// unique unit names and status names.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(s.Units) == 0 {
		return fmt.Errorf("units list is required and must be non-empty")
	}

	seen := make(map[string]bool, len(s.Units))
	for i, u := range s.Units {
		if u.Name == "" {
			return fmt.Errorf("units[%d]: name is required", i)
		}
		if seen[u.Name] {
			return fmt.Errorf("units[%d]: duplicate unit name %q", i, u.Name)
		}
		seen[u.Name] = true
		if _, err := suite.ParsePhase(u.Phase); err != nil {
			return fmt.Errorf("units[%d]: %w", i, err)
		}
		for _, o := range []string{u.Setup, u.Execute, u.Teardown} {
			switch o {
			case "", OutcomeSuccess, OutcomeFailure, OutcomeAbsent:
			default:
				return fmt.Errorf("units[%d]: unknown outcome %q", i, o)
			}
		}
	}

	for field, name := range map[string]string{
		"commit_fault":     s.Firmware.CommitFault,
		"size_query_fault": s.Firmware.SizeQueryFault,
		"capture_fault":    s.Firmware.CaptureFault,
		"alloc_fault":      s.Firmware.AllocFault,
	} {
		if _, ok := firmware.ParseStatus(name); !ok {
			return fmt.Errorf("firmware.%s: unknown status %q", field, name)
		}
	}
	if err := checkCommitFault(s.Firmware.CommitFault); err != nil {
		return err
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

// checkCommitFault rejects the status that CommitTransition uses for a
// stale map key: the coordinator would retry it instead of failing.
func checkCommitFault(name string) error {
	if st, ok := firmware.ParseStatus(name); ok && name != "" && st == firmware.StatusStaleKey {
		return fmt.Errorf("firmware.commit_fault: %s means a stale map key, use stale_commits", name)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertStepOutcome:
		if a.Unit == "" || a.Step == "" || a.Outcome == "" {
			return fmt.Errorf("assertions[%d]: unit, step and outcome are required for step_outcome", index)
		}
	case AssertStepAbsent:
		if a.Unit == "" {
			return fmt.Errorf("assertions[%d]: unit is required for step_absent", index)
		}
	case AssertStepOrder:
		if len(a.Order) < 2 {
			return fmt.Errorf("assertions[%d]: order needs at least two entries for step_order", index)
		}
	case AssertStepCount:
		if a.Unit == "" {
			return fmt.Errorf("assertions[%d]: unit is required for step_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for step_count", index)
		}
	case AssertTransitionAttempts:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for transition_attempts", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	if a.Step != "" {
		if _, err := suite.ParseStep(a.Step); err != nil {
			return fmt.Errorf("assertions[%d]: %w", index, err)
		}
	}
	return nil
}
