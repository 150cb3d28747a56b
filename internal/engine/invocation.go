package engine

import (
	"sync"

	"github.com/google/uuid"
)

// InvocationIDGenerator produces the identifier attached to every log line
// of one Process call. It is never part of the request token.
type InvocationIDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 invocation IDs.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 and returns it as a hyphenated string.
//
// Panics if UUID generation fails (should never happen in practice).
func (g UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedGenerator returns predetermined invocation IDs for testing.
//
// Thread-safety: FixedGenerator is safe for concurrent use via internal mutex.
type FixedGenerator struct {
	mu  sync.Mutex
	ids []string
	idx int
}

// NewFixedGenerator creates a generator that returns ids in order.
//
// Example:
//
//	gen := NewFixedGenerator("inv-1", "inv-2")
//	gen.Generate() // "inv-1"
//	gen.Generate() // "inv-2"
//	gen.Generate() // panic: all ids exhausted
func NewFixedGenerator(ids ...string) *FixedGenerator {
	return &FixedGenerator{ids: ids}
}

// Generate returns the next predetermined id.
//
// Panics if all ids have been consumed, which catches a test that
// processes more batches than it expected.
func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.ids) {
		panic("FixedGenerator: all ids exhausted")
	}
	id := g.ids[g.idx]
	g.idx++
	return id
}
