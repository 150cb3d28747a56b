package engine

import "github.com/roach88/retrievalstat/internal/ir"

// Accumulate folds counted classifications into per-workflow-run deltas.
//
// Each counted transition adds 1 to the count and its size to the size of
// the counted status. Other outcomes contribute nothing. The fold is a
// commutative sum, so any permutation of the input yields the same deltas.
// A batch without counted transitions yields an empty (non-nil) map.
func Accumulate(classifications []Classification) ir.Deltas {
	deltas := ir.Deltas{}
	for _, c := range classifications {
		if c.Outcome != OutcomeCounted {
			continue
		}
		deltas.For(c.WorkflowRun).Add(c.Counted, c.Size)
	}
	return deltas
}
