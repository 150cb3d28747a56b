package testutil

// FixedIDGenerator returns the same invocation id every time.
//
// Unlike engine.FixedGenerator, which hands out ids in sequence and panics
// when they run out, this generator never runs out. Harness scenarios use it
// so that repeated batches of one scenario log identical ids.
//
// Thread-safety: FixedIDGenerator is stateless and safe for concurrent use.
type FixedIDGenerator struct {
	id string
}

// NewFixedIDGenerator creates a generator returning id.
// An empty id means "test-invocation".
func NewFixedIDGenerator(id string) *FixedIDGenerator {
	if id == "" {
		id = "test-invocation"
	}
	return &FixedIDGenerator{id: id}
}

// Generate returns the fixed id.
func (g *FixedIDGenerator) Generate() string {
	return g.id
}
