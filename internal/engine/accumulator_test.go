package engine

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/retrievalstat/internal/ir"
)

func classifyAll(events []ir.Event) []Classification {
	c := defaultClassifier()
	out := make([]Classification, len(events))
	for i, ev := range events {
		out[i] = c.Classify(ev)
	}
	return out
}

func TestAccumulate_Fold(t *testing.T) {
	deltas := Accumulate(classifyAll([]ir.Event{
		recordA.Created("e1", ir.StatusRequested),
		recordB.Moved("e2", ir.StatusStaged, ir.StatusDownloaded),
		recordB.Moved("e3", ir.StatusRequested, ir.StatusStaged),
		recordC.Created("e4", ir.StatusRequested),
		recordC.Moved("e5", ir.StatusRequested, ir.StatusDownloaded),
	}))

	require.Len(t, deltas, 2)
	assert.Equal(t, ir.Counters{
		RequestedCount:  1,
		RequestedSize:   1000,
		StagedCount:     1,
		StagedSize:      2048,
		DownloadedCount: 1,
		DownloadedSize:  2048,
	}, *deltas["run-1"])
	assert.Equal(t, ir.Counters{RequestedCount: 1, RequestedSize: 512}, *deltas["run-2"])
}

func TestAccumulate_EmptyIsNonNil(t *testing.T) {
	deltas := Accumulate(nil)
	assert.NotNil(t, deltas)
	assert.Empty(t, deltas)
}

func TestAccumulate_Commutative(t *testing.T) {
	events := []ir.Event{
		recordA.Created("e1", ir.StatusRequested),
		recordA.Moved("e2", ir.StatusRequested, ir.StatusStaged),
		recordB.Moved("e3", ir.StatusStaged, ir.StatusDownloaded),
		recordC.Created("e4", ir.StatusRequested),
		recordC.Moved("e5", ir.StatusStopped, ir.StatusStaged),
		recordB.Created("e6", ir.StatusRequested),
	}
	want := Accumulate(classifyAll(events))

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 50; i++ {
		shuffled := append([]ir.Event(nil), events...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		assert.Equal(t, want, Accumulate(classifyAll(shuffled)))
	}
}

func TestAccumulate_PartialBatchResilience(t *testing.T) {
	valid := []ir.Event{
		recordA.Created("e1", ir.StatusRequested),
		recordB.Created("e2", ir.StatusRequested),
	}
	broken := recordA.Moved("e3", ir.StatusRequested, ir.StatusStaged)
	broken.After.Size = nil

	withBroken := append([]ir.Event{broken}, valid...)
	assert.Equal(t, Accumulate(classifyAll(valid)), Accumulate(classifyAll(withBroken)))
}
