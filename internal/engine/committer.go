package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/roach88/retrievalstat/internal/ir"
)

// CounterStore applies an atomic multi-row additive transaction.
//
// Implementations must apply all rows of tx or none, and must treat a
// second submission with the same tx.Token and the same content as already
// applied. A token reused with different content must fail with an error
// wrapping ir.ErrTokenConflict. Errors wrapping ir.ErrInvalidTransaction are
// never retried; every other error is considered transient.
type CounterStore interface {
	ApplyIncrements(ctx context.Context, tx ir.Transaction) error
}

// TableResolver returns the metric table name at commit time.
type TableResolver func() (string, error)

// StaticTable returns a TableResolver that always yields name.
func StaticTable(name string) TableResolver {
	return func() (string, error) { return name, nil }
}

// BuildTransaction turns deltas into one transaction: one row increment per
// workflow run, in sorted order, carrying all six counters.
//
// BuildTransaction is pure. Its output depends only on its arguments, which
// is what makes reusing token across retries safe.
func BuildTransaction(table, token string, deltas ir.Deltas) ir.Transaction {
	tx := ir.Transaction{
		Token:   token,
		Table:   table,
		Updates: make([]ir.RowIncrement, 0, len(deltas)),
	}
	for _, run := range deltas.Runs() {
		tx.Updates = append(tx.Updates, ir.RowIncrement{
			WorkflowRun: run,
			Counters:    *deltas[run],
		})
	}
	return tx
}

// Committer submits accumulated deltas to a CounterStore under a retry policy.
type Committer struct {
	store        CounterStore
	resolveTable TableResolver
	retry        RetryPolicy
	metrics      *Metrics
	logger       *slog.Logger
}

// NewCommitter creates a committer. A nil logger means slog.Default().
func NewCommitter(store CounterStore, resolveTable TableResolver, retry RetryPolicy, metrics *Metrics, logger *slog.Logger) *Committer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Committer{
		store:        store,
		resolveTable: resolveTable,
		retry:        retry,
		metrics:      metrics,
		logger:       logger,
	}
}

// Commit lands deltas in the store as one transaction tagged with token.
//
// Empty deltas are a no-op and make no store call. Otherwise the transaction
// is built once and every attempt submits that same value. It returns the
// number of submissions made; failures are *CommitError.
func (c *Committer) Commit(ctx context.Context, deltas ir.Deltas, token string) (int, error) {
	if len(deltas) == 0 {
		return 0, nil
	}

	table, err := c.resolveTable()
	if err != nil {
		return 0, &CommitError{
			Code:    ErrCodeTableUnresolved,
			Message: "metric table name unavailable",
			Token:   token,
			Err:     err,
		}
	}

	tx := BuildTransaction(table, token, deltas)

	attempts, err := c.retry.Do(ctx, func(attempt int) error {
		c.metrics.observeAttempt()
		err := c.store.ApplyIncrements(ctx, tx)
		if err == nil {
			return nil
		}
		if isPermanent(err) {
			return backoff.Permanent(err)
		}
		return err
	}, func(err error, attempt int, wait time.Duration) {
		c.logger.Error("commit attempt failed",
			"token", token,
			"attempt", attempt,
			"max_attempts", c.retry.MaxAttempts,
			"retry_in", wait,
			"error", err)
	})
	if err != nil {
		return attempts, classifyCommitError(err, token, attempts)
	}
	return attempts, nil
}

func isPermanent(err error) bool {
	return errors.Is(err, ir.ErrTokenConflict) ||
		errors.Is(err, ir.ErrInvalidTransaction) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

func classifyCommitError(err error, token string, attempts int) *CommitError {
	ce := &CommitError{Token: token, Attempts: attempts, Err: err}
	switch {
	case errors.Is(err, ir.ErrTokenConflict):
		ce.Code = ErrCodeTokenConflict
		ce.Message = "request token already used for a different transaction"
	case errors.Is(err, ir.ErrInvalidTransaction):
		ce.Code = ErrCodeInvalidTransaction
		ce.Message = "store rejected the transaction"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		ce.Code = ErrCodeCancelled
		ce.Message = "commit cancelled"
	default:
		ce.Code = ErrCodeRetryExhausted
		ce.Message = fmt.Sprintf("commit failed after %d attempts", attempts)
	}
	return ce
}
