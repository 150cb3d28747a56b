package engine

import (
	"fmt"

	"github.com/roach88/retrievalstat/internal/ir"
)

// Outcome is the classification result of one event.
type Outcome string

const (
	// OutcomeCounted is a recognised status advance.
	OutcomeCounted Outcome = "counted"

	// OutcomeIgnored is an event outside the engine's domain:
	// foreign source, unsupported kind or a non archive-retrieval record.
	OutcomeIgnored Outcome = "ignored"

	// OutcomeMalformed is an eligible record missing required fields.
	OutcomeMalformed Outcome = "malformed"

	// OutcomeUnhandled is an eligible record whose transition is not counted.
	OutcomeUnhandled Outcome = "unhandled"
)

// Outcomes lists every outcome in reporting order.
var Outcomes = []Outcome{OutcomeCounted, OutcomeUnhandled, OutcomeMalformed, OutcomeIgnored}

// Classification describes what one event contributes to the metrics.
// Only OutcomeCounted classifications carry a Counted status and a Size.
type Classification struct {
	Outcome     Outcome
	EventID     string
	WorkflowRun string
	RecordKey   string
	From        ir.Status
	To          ir.Status
	Counted     ir.Status
	Size        int64

	// Reason explains an ignored event.
	Reason string

	// Err is set for malformed events.
	Err error
}

// AuditLine is the post-commit audit entry of a counted transition.
func (c Classification) AuditLine() string {
	return fmt.Sprintf("Archive:%s - counted_status:%s", c.RecordKey, c.To)
}

// Classifier decides whether a change event is a countable status advance.
//
// Thread-safety: Classifier is immutable after construction and safe for
// concurrent use.
type Classifier struct {
	table  ir.TransitionTable
	source string
}

// NewClassifier creates a classifier over table accepting events from source.
// An empty source means ir.DefaultEventSource.
//
// The table is copied to prevent external mutation.
func NewClassifier(table ir.TransitionTable, source string) *Classifier {
	if source == "" {
		source = ir.DefaultEventSource
	}
	tableCopy := make(ir.TransitionTable, len(table))
	for k, v := range table {
		tableCopy[k] = v
	}
	return &Classifier{table: tableCopy, source: source}
}

// Classify inspects the before/after snapshots of ev.
//
// The transition is derived purely from the two snapshots: the status of
// Before (or ir.StatusNone for created records) and the status of After are
// looked up in the transition table. Pairs not in the table are unhandled,
// which keeps skipped, repeated and backward moves out of the counters.
func (c *Classifier) Classify(ev ir.Event) Classification {
	cl := Classification{EventID: ev.ID}

	if ev.Source != c.source {
		return ignored(cl, fmt.Sprintf("event source %q", ev.Source))
	}
	if ev.Kind != ir.EventCreated && ev.Kind != ir.EventUpdated {
		return ignored(cl, fmt.Sprintf("event kind %q", ev.Kind))
	}

	after := ev.After
	if after == nil {
		return malformed(cl, &MalformedSnapshotError{EventID: ev.ID, Field: "new image"})
	}
	if after.RecordKind != ir.RecordKindArchiveRetrieval {
		return ignored(cl, fmt.Sprintf("record kind %q", after.RecordKind))
	}

	cl.WorkflowRun = after.WorkflowRun
	cl.RecordKey = after.RecordKey()
	cl.To = after.Status()

	// Size 0 is a real, empty archive and is counted; only a missing or
	// negative size makes the snapshot malformed.
	switch {
	case after.Size == nil || *after.Size < 0:
		return malformed(cl, &MalformedSnapshotError{EventID: ev.ID, Field: "size", Snapshot: after})
	case after.ArchiveID == "":
		return malformed(cl, &MalformedSnapshotError{EventID: ev.ID, Field: "archive_id", Snapshot: after})
	case after.WorkflowRun == "":
		return malformed(cl, &MalformedSnapshotError{EventID: ev.ID, Field: "workflow_run", Snapshot: after})
	}

	cl.From = ir.StatusNone
	if ev.Kind == ir.EventUpdated {
		if ev.Before == nil {
			return malformed(cl, &MalformedSnapshotError{EventID: ev.ID, Field: "old image", Snapshot: after})
		}
		cl.From = ev.Before.Status()
		if cl.From == ir.StatusNone {
			// An update without a prior status must not pass for a creation.
			cl.Outcome = OutcomeUnhandled
			return cl
		}
	}

	counted, ok := c.table.Lookup(cl.From, cl.To)
	if !ok {
		cl.Outcome = OutcomeUnhandled
		return cl
	}

	cl.Outcome = OutcomeCounted
	cl.Counted = counted
	cl.Size = *after.Size
	return cl
}

func ignored(cl Classification, reason string) Classification {
	cl.Outcome = OutcomeIgnored
	cl.Reason = reason
	return cl
}

func malformed(cl Classification, err error) Classification {
	cl.Outcome = OutcomeMalformed
	cl.Err = err
	return cl
}
