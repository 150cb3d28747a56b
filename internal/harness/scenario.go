package harness

import (
	"bytes"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/roach88/retrievalstat/internal/ir"
)

// DefaultMetricTable is used when a scenario names no metric table.
const DefaultMetricTable = "retrieval-metrics"

// Scenario defines an end-to-end aggregation scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// MetricTable is the table the batches commit to.
	MetricTable string `yaml:"metric_table,omitempty"`

	// Transitions is inline CUE replacing the default transition table.
	Transitions string `yaml:"transitions,omitempty"`

	// MaxAttempts overrides the default retry budget when positive.
	MaxAttempts int `yaml:"max_attempts,omitempty"`

	// Batches are processed in order, each by a fresh invocation.
	Batches []BatchStep `yaml:"batches"`

	// Assertions validate the trace and the final store state.
	Assertions []Assertion `yaml:"assertions"`
}

// BatchStep is one batch and how it is delivered.
type BatchStep struct {
	Name   string      `yaml:"name"`
	Events []EventSpec `yaml:"events"`

	// Deliveries is how often the identical batch is submitted (default 1).
	Deliveries int `yaml:"deliveries,omitempty"`

	// TransientFailures makes the store fail that many submissions of the
	// first delivery before accepting one.
	TransientFailures int `yaml:"transient_failures,omitempty"`

	// Expect is checked against every delivery.
	Expect *BatchExpect `yaml:"expect,omitempty"`
}

// EventSpec describes one change event of a batch.
type EventSpec struct {
	ID         string `yaml:"id"`
	Kind       string `yaml:"kind"` // INSERT | MODIFY | REMOVE
	Source     string `yaml:"source,omitempty"`
	RecordKind string `yaml:"record_kind,omitempty"`
	Run        string `yaml:"run"`
	Archive    string `yaml:"archive"`
	From       string `yaml:"from,omitempty"`
	To         string `yaml:"to,omitempty"`
	Size       *int64 `yaml:"size,omitempty"`
}

// BatchExpect specifies the expected outcome of a delivery.
// Unset counts are not checked.
type BatchExpect struct {
	Committed bool   `yaml:"committed"`
	Error     string `yaml:"error,omitempty"`
	Counted   *int   `yaml:"counted,omitempty"`
	Unhandled *int   `yaml:"unhandled,omitempty"`
	Malformed *int   `yaml:"malformed,omitempty"`
	Ignored   *int   `yaml:"ignored,omitempty"`
	Attempts  *int   `yaml:"attempts,omitempty"`
}

// Assertion validates the trace or the final store state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Run is the workflow run (counters, no_row).
	Run string `yaml:"run,omitempty"`

	// Expect holds expected counter values by JSON name (counters).
	Expect map[string]int64 `yaml:"expect,omitempty"`

	// Line is the expected audit line (audit_contains).
	Line string `yaml:"line,omitempty"`

	// Count is the expected number (audit_count, token_count).
	Count int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertCounters      = "counters"
	AssertNoRow         = "no_row"
	AssertAuditContains = "audit_contains"
	AssertAuditCount    = "audit_count"
	AssertTokenCount    = "token_count"
)

// counterFields are the counter names accepted in counters assertions.
var counterFields = []string{
	"requested_count", "requested_size",
	"staged_count", "staged_size",
	"downloaded_count", "downloaded_size",
}

// LoadScenario reads and parses a scenario YAML file.
// Unknown fields are rejected so that typos fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Batches) == 0 {
		return fmt.Errorf("batches list is required and must be non-empty")
	}
	if s.MaxAttempts < 0 {
		return fmt.Errorf("max_attempts must not be negative")
	}

	for i, b := range s.Batches {
		if b.Name == "" {
			return fmt.Errorf("batches[%d]: name is required", i)
		}
		if b.Deliveries < 0 || b.TransientFailures < 0 {
			return fmt.Errorf("batches[%d]: deliveries and transient_failures must not be negative", i)
		}
		for j, ev := range b.Events {
			if err := validateEvent(ev); err != nil {
				return fmt.Errorf("batches[%d].events[%d]: %w", i, j, err)
			}
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(a); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}
	return nil
}

func validateEvent(ev EventSpec) error {
	if ev.ID == "" {
		return fmt.Errorf("id is required")
	}
	switch ir.EventKind(ev.Kind) {
	case ir.EventCreated, ir.EventRemoved:
	case ir.EventUpdated:
		if ev.From == "" {
			return fmt.Errorf("from is required for MODIFY")
		}
	default:
		return fmt.Errorf("unknown kind %q", ev.Kind)
	}
	if ir.EventKind(ev.Kind) != ir.EventRemoved && ev.To == "" {
		return fmt.Errorf("to is required for %s", ev.Kind)
	}
	return nil
}

func validateAssertion(a Assertion) error {
	switch a.Type {
	case AssertCounters:
		if a.Run == "" {
			return fmt.Errorf("run is required for counters")
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("expect is required for counters")
		}
		for field := range a.Expect {
			if !slices.Contains(counterFields, field) {
				return fmt.Errorf("unknown counter %q", field)
			}
		}
	case AssertNoRow:
		if a.Run == "" {
			return fmt.Errorf("run is required for no_row")
		}
	case AssertAuditContains:
		if a.Line == "" {
			return fmt.Errorf("line is required for audit_contains")
		}
	case AssertAuditCount, AssertTokenCount:
		if a.Count < 0 {
			return fmt.Errorf("count must be non-negative for %s", a.Type)
		}
	case "":
		return fmt.Errorf("type is required")
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}

// Event builds the described change event.
func (e EventSpec) Event() ir.Event {
	source := e.Source
	if source == "" {
		source = ir.DefaultEventSource
	}
	ev := ir.Event{ID: e.ID, Source: source, Kind: ir.EventKind(e.Kind)}
	if ev.Kind == ir.EventRemoved {
		return ev
	}
	ev.After = e.snapshot(e.To)
	if ev.Kind == ir.EventUpdated {
		ev.Before = e.snapshot(e.From)
	}
	return ev
}

func (e EventSpec) snapshot(status string) *ir.Snapshot {
	kind := e.RecordKind
	if kind == "" {
		kind = ir.RecordKindArchiveRetrieval
	}
	var size *int64
	if e.Size != nil {
		v := *e.Size
		size = &v
	}
	return &ir.Snapshot{
		WorkflowRun:    e.Run,
		RecordKind:     kind,
		Size:           size,
		ArchiveID:      e.Archive,
		RetrieveStatus: e.Run + "/" + status,
	}
}
