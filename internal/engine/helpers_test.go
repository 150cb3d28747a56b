package engine

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/cenkalti/backoff/v4"

	"github.com/roach88/retrievalstat/internal/compiler"
	"github.com/roach88/retrievalstat/internal/ir"
	"github.com/roach88/retrievalstat/internal/testutil"
)

const testTable = "retrieval-metrics"

var (
	recordA = testutil.Transfer{Run: "run-1", ArchiveID: "archive-a", Size: 1000}
	recordB = testutil.Transfer{Run: "run-1", ArchiveID: "archive-b", Size: 2048}
	recordC = testutil.Transfer{Run: "run-2", ArchiveID: "archive-c", Size: 512}
)

func fastRetry(attempts int) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: attempts,
		NewBackOff:  func() backoff.BackOff { return &backoff.ZeroBackOff{} },
	}
}

func newTestController(t *testing.T, store CounterStore, opts ...Option) (*Controller, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	base := []Option{
		WithTableResolver(StaticTable(testTable)),
		WithRetryPolicy(fastRetry(DefaultMaxAttempts)),
		WithLogger(logger),
		WithInvocationIDs(testutil.NewFixedIDGenerator("inv-test")),
	}
	return New(store, compiler.DefaultTransitions(), append(base, opts...)...), &buf
}

func defaultClassifier() *Classifier {
	return NewClassifier(compiler.DefaultTransitions(), "")
}

func int64Ptr(v int64) *int64 { return &v }

func snapshotWithStatus(s ir.Status) *ir.Snapshot {
	return recordA.Snapshot(s)
}
