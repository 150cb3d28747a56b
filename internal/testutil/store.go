package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/roach88/retrievalstat/internal/ir"
)

// Applied is one transaction accepted by FakeStore.
type Applied struct {
	Seq int64
	Tx  ir.Transaction
}

// FakeStore is an in-memory engine.CounterStore with the same idempotency
// contract as the real backends: a token seen with the same payload is a
// no-op, a token seen with a different payload is ir.ErrTokenConflict.
//
// Failures can be injected per call with FailNext or for every call with
// FailAlways. A failed call changes nothing.
//
// Thread-safety: FakeStore is safe for concurrent use.
type FakeStore struct {
	mu     sync.Mutex
	clock  *DeterministicClock
	rows   map[string]map[string]ir.Counters // table -> run -> counters
	tokens map[string]string                 // token -> payload hash

	calls    []ir.Transaction
	applied  []Applied
	failures []error
	always   error
}

// NewFakeStore creates an empty store.
func NewFakeStore() *FakeStore {
	return &FakeStore{
		clock:  NewDeterministicClock(),
		rows:   make(map[string]map[string]ir.Counters),
		tokens: make(map[string]string),
	}
}

// FailNext queues errors returned by the next calls, in order.
func (s *FakeStore) FailNext(errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, errs...)
}

// FailAlways makes every call return err until cleared with nil.
func (s *FakeStore) FailAlways(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.always = err
}

// ApplyIncrements implements engine.CounterStore.
func (s *FakeStore) ApplyIncrements(ctx context.Context, tx ir.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, tx)

	if err := ctx.Err(); err != nil {
		return err
	}
	if len(s.failures) > 0 {
		err := s.failures[0]
		s.failures = s.failures[1:]
		return err
	}
	if s.always != nil {
		return s.always
	}

	hash, err := tx.PayloadHash()
	if err != nil {
		return fmt.Errorf("%w: %v", ir.ErrInvalidTransaction, err)
	}
	if seen, ok := s.tokens[tx.Token]; ok {
		if seen != hash {
			return fmt.Errorf("token %s: %w", tx.Token, ir.ErrTokenConflict)
		}
		return nil
	}

	table := s.rows[tx.Table]
	if table == nil {
		table = make(map[string]ir.Counters)
		s.rows[tx.Table] = table
	}
	for _, u := range tx.Updates {
		row := table[u.WorkflowRun]
		row.Merge(u.Counters)
		table[u.WorkflowRun] = row
	}
	s.tokens[tx.Token] = hash
	s.applied = append(s.applied, Applied{Seq: s.clock.Next(), Tx: tx})
	return nil
}

// Row returns the counters of one workflow run in table.
func (s *FakeStore) Row(table, run string) ir.Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows[table][run]
}

// Rows returns a copy of every row of table.
func (s *FakeStore) Rows(table string) map[string]ir.Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]ir.Counters, len(s.rows[table]))
	for run, c := range s.rows[table] {
		out[run] = c
	}
	return out
}

// Calls returns every submitted transaction, including failed ones.
func (s *FakeStore) Calls() []ir.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ir.Transaction(nil), s.calls...)
}

// Applied returns the transactions that changed the store, in order.
func (s *FakeStore) Applied() []Applied {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Applied(nil), s.applied...)
}
