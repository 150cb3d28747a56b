package testutil

import "sync"

// DeterministicClock is a thread-safe monotonic logical clock for tests.
// FakeStore stamps every applied transaction with its next value, which
// lets tests assert the order in which batches landed.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type DeterministicClock struct {
	mu  sync.Mutex
	seq int64
}

// NewDeterministicClock creates a clock whose first Next() returns 1.
func NewDeterministicClock() *DeterministicClock {
	return &DeterministicClock{}
}

// Next increments and returns the next sequence number.
func (c *DeterministicClock) Next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	return c.seq
}

// Current returns the current sequence number without incrementing.
func (c *DeterministicClock) Current() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

// Reset sets the clock back to 0.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq = 0
}
