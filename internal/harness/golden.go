package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/retrievalstat/internal/ir"
)

// Snapshot captures a scenario execution for golden comparison.
// Tokens are left out: they are covered by the token_count assertion and
// would make golden files unreadable.
type Snapshot struct {
	ScenarioName string
	Trace        []BatchTrace
	Rows         map[string]ir.Counters
}

// toCanonicalMap converts the snapshot for ir.MarshalCanonical, which only
// handles generic JSON values.
func (s *Snapshot) toCanonicalMap() map[string]any {
	trace := make([]any, len(s.Trace))
	for i, bt := range s.Trace {
		outcomes := make(map[string]any, len(bt.Outcomes))
		for k, v := range bt.Outcomes {
			outcomes[k] = v
		}
		audit := make([]any, len(bt.AuditLines))
		for j, line := range bt.AuditLines {
			audit[j] = line
		}
		entry := map[string]any{
			"batch":         bt.Batch,
			"delivery":      bt.Delivery,
			"invocation_id": bt.InvocationID,
			"committed":     bt.Committed,
			"attempts":      bt.Attempts,
			"outcomes":      outcomes,
			"audit_lines":   audit,
		}
		if bt.ErrorCode != "" {
			entry["error_code"] = bt.ErrorCode
		}
		trace[i] = entry
	}

	rows := make(map[string]any, len(s.Rows))
	for run, c := range s.Rows {
		values := make(map[string]any)
		for k, v := range counterValues(c) {
			values[k] = v
		}
		rows[run] = values
	}

	return map[string]any{
		"scenario_name": s.ScenarioName,
		"trace":         trace,
		"rows":          rows,
	}
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against its golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	snapshot := Snapshot{
		ScenarioName: scenarioName,
		Trace:        result.Trace,
		Rows:         result.Rows,
	}
	data, err := ir.MarshalCanonical(snapshot.toCanonicalMap())
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}
