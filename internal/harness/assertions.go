package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/retrievalstat/internal/ir"
)

// AssertionError is returned when an assertion fails.
// It includes the emitted audit lines to help debug the failure.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Audit    []string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Audit) > 0 {
		fmt.Fprintf(&buf, "\nAudit lines:\n")
		for i, line := range e.Audit {
			fmt.Fprintf(&buf, "  [%d] %s\n", i+1, line)
		}
	}
	return buf.String()
}

// EvaluateAssertions runs every assertion against result and returns the
// failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluateAssertion(result, a); err != nil {
			errs = append(errs, fmt.Sprintf("assertion %d: %v", i, err))
		}
	}
	return errs
}

func evaluateAssertion(result *Result, a Assertion) error {
	switch a.Type {
	case AssertCounters:
		return assertCounters(result.Rows, a)
	case AssertNoRow:
		return assertNoRow(result.Rows, a)
	case AssertAuditContains:
		return assertAuditContains(result.AuditLines(), a)
	case AssertAuditCount:
		return assertAuditCount(result.AuditLines(), a)
	case AssertTokenCount:
		if result.Tokens != a.Count {
			return &AssertionError{
				Type:     AssertTokenCount,
				Expected: fmt.Sprintf("%d applied batch(es)", a.Count),
				Actual:   fmt.Sprintf("%d applied batch(es)", result.Tokens),
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

// assertCounters checks the listed counters of one run (subset match).
func assertCounters(rows map[string]ir.Counters, a Assertion) error {
	row, ok := rows[a.Run]
	if !ok {
		return &AssertionError{
			Type:     AssertCounters,
			Expected: fmt.Sprintf("row for run %s", a.Run),
			Actual:   "no row",
		}
	}

	got := counterValues(row)
	var mismatches []string
	for _, field := range counterFields {
		want, ok := a.Expect[field]
		if !ok {
			continue
		}
		if got[field] != want {
			mismatches = append(mismatches, fmt.Sprintf("%s=%d (want %d)", field, got[field], want))
		}
	}
	if len(mismatches) > 0 {
		return &AssertionError{
			Type:     AssertCounters,
			Expected: fmt.Sprintf("run %s with %v", a.Run, a.Expect),
			Actual:   strings.Join(mismatches, ", "),
		}
	}
	return nil
}

func assertNoRow(rows map[string]ir.Counters, a Assertion) error {
	if row, ok := rows[a.Run]; ok {
		return &AssertionError{
			Type:     AssertNoRow,
			Expected: fmt.Sprintf("no row for run %s", a.Run),
			Actual:   fmt.Sprintf("%+v", row),
		}
	}
	return nil
}

func assertAuditContains(audit []string, a Assertion) error {
	if slices.Contains(audit, a.Line) {
		return nil
	}
	return &AssertionError{
		Type:     AssertAuditContains,
		Expected: fmt.Sprintf("audit line %q", a.Line),
		Actual:   "not emitted",
		Audit:    audit,
	}
}

func assertAuditCount(audit []string, a Assertion) error {
	if len(audit) == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertAuditCount,
		Expected: fmt.Sprintf("%d audit line(s)", a.Count),
		Actual:   fmt.Sprintf("%d audit line(s)", len(audit)),
		Audit:    audit,
	}
}

// counterValues maps counter names to the values of c.
func counterValues(c ir.Counters) map[string]int64 {
	return map[string]int64{
		"requested_count":  c.RequestedCount,
		"requested_size":   c.RequestedSize,
		"staged_count":     c.StagedCount,
		"staged_size":      c.StagedSize,
		"downloaded_count": c.DownloadedCount,
		"downloaded_size":  c.DownloadedSize,
	}
}
