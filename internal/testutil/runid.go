package testutil

// FixedRunIDGenerator returns the same run id every time.
//
// This enables deterministic test execution and golden snapshot comparison:
// the same scenario with the same generator journals byte-identical rows.
//
// Thread-safety: FixedRunIDGenerator is stateless and safe for concurrent use.
type FixedRunIDGenerator struct {
	id string
}

// NewFixedRunIDGenerator creates a fixed run id generator.
//
// If id is empty, Generate() returns "test-run-default".
func NewFixedRunIDGenerator(id string) *FixedRunIDGenerator {
	if id == "" {
		id = "test-run-default"
	}
	return &FixedRunIDGenerator{id: id}
}

// Generate returns the fixed run id.
//
// Implements runner.RunIDGenerator.
func (g *FixedRunIDGenerator) Generate() string {
	return g.id
}
