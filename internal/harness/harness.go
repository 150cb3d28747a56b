package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/cenkalti/backoff/v4"

	"github.com/roach88/retrievalstat/internal/compiler"
	"github.com/roach88/retrievalstat/internal/engine"
	"github.com/roach88/retrievalstat/internal/ir"
	"github.com/roach88/retrievalstat/internal/store"
	"github.com/roach88/retrievalstat/internal/testutil"
)

// ErrInjected is the transient failure returned by a flaky store.
var ErrInjected = errors.New("injected store failure")

// flakyStore fails a configured number of submissions before delegating.
type flakyStore struct {
	inner engine.CounterStore

	mu       sync.Mutex
	failures int
}

func (f *flakyStore) failNext(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = n
}

func (f *flakyStore) ApplyIncrements(ctx context.Context, tx ir.Transaction) error {
	f.mu.Lock()
	if f.failures > 0 {
		f.failures--
		f.mu.Unlock()
		return ErrInjected
	}
	f.mu.Unlock()
	return f.inner.ApplyIncrements(ctx, tx)
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
// Execution flow:
// 1. Compile the transitions and open a fresh store
// 2. Deliver every batch the configured number of times
// 3. Check each delivery against its expect clause
// 4. Read the final counters and evaluate the assertions
func Run(scenario *Scenario) (*Result, error) {
	return RunWithLogger(scenario, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// RunWithLogger is Run with the controller logging to logger.
func RunWithLogger(scenario *Scenario, logger *slog.Logger) (*Result, error) {
	transitions := compiler.DefaultTransitions()
	if scenario.Transitions != "" {
		var err error
		transitions, err = compiler.CompileTransitions([]byte(scenario.Transitions), scenario.Name+".cue")
		if err != nil {
			return nil, fmt.Errorf("failed to compile transitions: %w", err)
		}
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	table := scenario.MetricTable
	if table == "" {
		table = DefaultMetricTable
	}

	retry := engine.DefaultRetryPolicy()
	if scenario.MaxAttempts > 0 {
		retry.MaxAttempts = scenario.MaxAttempts
	}
	retry.NewBackOff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }

	flaky := &flakyStore{inner: st}
	ctrl := engine.New(flaky, transitions,
		engine.WithTableResolver(engine.StaticTable(table)),
		engine.WithRetryPolicy(retry),
		engine.WithLogger(logger),
		engine.WithInvocationIDs(&sequentialIDs{}),
	)

	ctx := context.Background()
	result := NewResult()

	for _, step := range scenario.Batches {
		if err := runBatch(ctx, ctrl, flaky, step, result); err != nil {
			return nil, fmt.Errorf("batch %s: %w", step.Name, err)
		}
	}

	rows, err := st.Totals(ctx, table)
	if err != nil {
		return nil, fmt.Errorf("failed to read counters: %w", err)
	}
	result.Rows = rows
	if result.Tokens, err = st.TokenCount(ctx); err != nil {
		return nil, fmt.Errorf("failed to count tokens: %w", err)
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func runBatch(ctx context.Context, ctrl *engine.Controller, flaky *flakyStore, step BatchStep, result *Result) error {
	events := make([]ir.Event, 0, len(step.Events))
	for _, es := range step.Events {
		events = append(events, es.Event())
	}
	batch := testutil.BatchOf(events...)

	deliveries := step.Deliveries
	if deliveries == 0 {
		deliveries = 1
	}

	for d := 1; d <= deliveries; d++ {
		if d == 1 {
			flaky.failNext(step.TransientFailures)
		}

		res, err := ctrl.Process(ctx, batch)
		bt := BatchTrace{
			Batch:        step.Name,
			Delivery:     d,
			InvocationID: res.InvocationID,
			Token:        res.Token,
			Committed:    res.Committed,
			Attempts:     res.Attempts,
			Outcomes:     make(map[string]int, len(engine.Outcomes)),
			AuditLines:   res.AuditLines,
		}
		if bt.AuditLines == nil {
			bt.AuditLines = []string{}
		}
		for _, o := range engine.Outcomes {
			bt.Outcomes[string(o)] = res.Count(o)
		}

		if err != nil {
			var ce *engine.CommitError
			if !errors.As(err, &ce) {
				return err
			}
			bt.ErrorCode = string(ce.Code)
		}
		flaky.failNext(0)

		result.Trace = append(result.Trace, bt)
		if step.Expect != nil {
			for _, msg := range checkExpect(bt, *step.Expect) {
				result.AddError(fmt.Sprintf("%s[%d]: %s", step.Name, d, msg))
			}
		}
	}
	return nil
}

func checkExpect(bt BatchTrace, want BatchExpect) []string {
	var errs []string
	if bt.Committed != want.Committed {
		errs = append(errs, fmt.Sprintf("committed: expected %v, got %v", want.Committed, bt.Committed))
	}
	if bt.ErrorCode != want.Error {
		errs = append(errs, fmt.Sprintf("error: expected %q, got %q", want.Error, bt.ErrorCode))
	}

	checks := []struct {
		name string
		want *int
		got  int
	}{
		{"counted", want.Counted, bt.Outcomes[string(engine.OutcomeCounted)]},
		{"unhandled", want.Unhandled, bt.Outcomes[string(engine.OutcomeUnhandled)]},
		{"malformed", want.Malformed, bt.Outcomes[string(engine.OutcomeMalformed)]},
		{"ignored", want.Ignored, bt.Outcomes[string(engine.OutcomeIgnored)]},
		{"attempts", want.Attempts, bt.Attempts},
	}
	for _, c := range checks {
		if c.want != nil && *c.want != c.got {
			errs = append(errs, fmt.Sprintf("%s: expected %d, got %d", c.name, *c.want, c.got))
		}
	}
	return errs
}

// sequentialIDs yields inv-001, inv-002, ...
type sequentialIDs struct {
	n int
}

func (s *sequentialIDs) Generate() string {
	s.n++
	return fmt.Sprintf("inv-%03d", s.n)
}
