package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/retrievalstat/internal/ir"
)

func resultWith(rows map[string]ir.Counters, audit ...string) *Result {
	r := NewResult()
	r.Rows = rows
	r.Trace = append(r.Trace, BatchTrace{Batch: "b", Delivery: 1, AuditLines: audit})
	r.Tokens = 1
	return r
}

func TestEvaluateAssertions_Pass(t *testing.T) {
	result := resultWith(
		map[string]ir.Counters{"run-1": {RequestedCount: 1, RequestedSize: 1000}},
		"Archive:run-1|a - counted_status:requested",
	)

	errs := EvaluateAssertions(result, []Assertion{
		{Type: AssertCounters, Run: "run-1", Expect: map[string]int64{"requested_count": 1, "requested_size": 1000}},
		{Type: AssertNoRow, Run: "run-2"},
		{Type: AssertAuditContains, Line: "Archive:run-1|a - counted_status:requested"},
		{Type: AssertAuditCount, Count: 1},
		{Type: AssertTokenCount, Count: 1},
	})
	assert.Empty(t, errs)
}

func TestEvaluateAssertions_Failures(t *testing.T) {
	result := resultWith(
		map[string]ir.Counters{"run-1": {StagedCount: 2, StagedSize: 10}},
		"Archive:run-1|a - counted_status:staged",
	)

	tests := []struct {
		name      string
		assertion Assertion
		want      string
	}{
		{
			name:      "counter mismatch",
			assertion: Assertion{Type: AssertCounters, Run: "run-1", Expect: map[string]int64{"staged_count": 1}},
			want:      "staged_count=2 (want 1)",
		},
		{
			name:      "missing row",
			assertion: Assertion{Type: AssertCounters, Run: "run-9", Expect: map[string]int64{"staged_count": 1}},
			want:      "Actual: no row",
		},
		{
			name:      "unexpected row",
			assertion: Assertion{Type: AssertNoRow, Run: "run-1"},
			want:      "no row for run run-1",
		},
		{
			name:      "audit line absent",
			assertion: Assertion{Type: AssertAuditContains, Line: "Archive:run-1|a - counted_status:downloaded"},
			want:      "[1] Archive:run-1|a - counted_status:staged",
		},
		{
			name:      "audit count",
			assertion: Assertion{Type: AssertAuditCount, Count: 3},
			want:      "Actual: 1 audit line(s)",
		},
		{
			name:      "token count",
			assertion: Assertion{Type: AssertTokenCount, Count: 2},
			want:      "Expected: 2 applied batch(es)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := EvaluateAssertions(result, []Assertion{tt.assertion})
			require.Len(t, errs, 1)
			assert.Contains(t, errs[0], tt.want)
		})
	}
}

func TestResult_AuditLinesInTraceOrder(t *testing.T) {
	r := NewResult()
	r.Trace = append(r.Trace,
		BatchTrace{AuditLines: []string{"a", "b"}},
		BatchTrace{AuditLines: []string{}},
		BatchTrace{AuditLines: []string{"c"}},
	)
	assert.Equal(t, []string{"a", "b", "c"}, r.AuditLines())
}

func TestResult_AddError(t *testing.T) {
	r := NewResult()
	assert.True(t, r.Pass)

	r.AddError("boom")
	assert.False(t, r.Pass)
	assert.Equal(t, []string{"boom"}, r.Errors)
}
