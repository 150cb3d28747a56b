package testutil

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/retrievalstat/internal/ir"
)

func oneRowTx(token string, count int64) ir.Transaction {
	return ir.Transaction{
		Token: token,
		Table: "metrics",
		Updates: []ir.RowIncrement{
			{WorkflowRun: "run-1", Counters: ir.Counters{StagedCount: count, StagedSize: 10 * count}},
		},
	}
}

func TestFakeStore_DeduplicatesToken(t *testing.T) {
	s := NewFakeStore()
	ctx := context.Background()

	require.NoError(t, s.ApplyIncrements(ctx, oneRowTx("tok", 1)))
	require.NoError(t, s.ApplyIncrements(ctx, oneRowTx("tok", 1)))

	assert.Equal(t, ir.Counters{StagedCount: 1, StagedSize: 10}, s.Row("metrics", "run-1"))
	assert.Len(t, s.Calls(), 2)
	require.Len(t, s.Applied(), 1)
	assert.Equal(t, int64(1), s.Applied()[0].Seq)
}

func TestFakeStore_TokenConflict(t *testing.T) {
	s := NewFakeStore()
	ctx := context.Background()

	require.NoError(t, s.ApplyIncrements(ctx, oneRowTx("tok", 1)))
	err := s.ApplyIncrements(ctx, oneRowTx("tok", 2))

	assert.ErrorIs(t, err, ir.ErrTokenConflict)
	assert.Equal(t, ir.Counters{StagedCount: 1, StagedSize: 10}, s.Row("metrics", "run-1"))
}

func TestFakeStore_InjectedFailuresChangeNothing(t *testing.T) {
	s := NewFakeStore()
	ctx := context.Background()
	boom := errors.New("throttled")

	s.FailNext(boom)
	assert.ErrorIs(t, s.ApplyIncrements(ctx, oneRowTx("tok", 1)), boom)
	assert.Empty(t, s.Rows("metrics"))

	require.NoError(t, s.ApplyIncrements(ctx, oneRowTx("tok", 1)))
	assert.Len(t, s.Rows("metrics"), 1)

	s.FailAlways(boom)
	assert.ErrorIs(t, s.ApplyIncrements(ctx, oneRowTx("other", 1)), boom)
	s.FailAlways(nil)
	require.NoError(t, s.ApplyIncrements(ctx, oneRowTx("other", 1)))
	assert.Equal(t, int64(2), s.Row("metrics", "run-1").StagedCount)
}

func TestBatchOf_WireShape(t *testing.T) {
	tr := Transfer{Run: "run-1", ArchiveID: "a1", Size: 42}
	b := BatchOf(tr.Moved("e1", ir.StatusRequested, ir.StatusStaged))

	require.Len(t, b.Records, 1)
	rec := b.Records[0].(map[string]any)
	assert.Equal(t, "MODIFY", rec["eventName"])
	images := rec["dynamodb"].(map[string]any)
	newImage := images["NewImage"].(map[string]any)
	assert.Equal(t, map[string]any{"N": "42"}, newImage["size"])
	assert.Equal(t, map[string]any{"S": "run-1|a1"}, newImage["pk"])
	assert.Equal(t, map[string]any{"S": "run-1/requested"}, images["OldImage"].(map[string]any)["retrieve_status"])

	_, err := ir.BatchToken(b.Records)
	require.NoError(t, err)
}
