package ir

import (
	"slices"
	"strings"
)

// DefaultEventSource is the CDC origin whose events are processed.
const DefaultEventSource = "aws:dynamodb"

// RecordKindArchiveRetrieval is the only record kind that contributes to metrics.
const RecordKindArchiveRetrieval = "archive-retrieval"

// EventKind classifies a change notification.
type EventKind string

const (
	EventCreated EventKind = "INSERT"
	EventUpdated EventKind = "MODIFY"
	EventRemoved EventKind = "REMOVE"
	EventUnknown EventKind = ""
)

// ParseEventKind maps a wire event name to an EventKind.
// Unrecognized names map to EventUnknown.
func ParseEventKind(name string) EventKind {
	switch EventKind(name) {
	case EventCreated, EventUpdated, EventRemoved:
		return EventKind(name)
	default:
		return EventUnknown
	}
}

// Status is the terminal segment of a transfer record's retrieve status.
type Status string

const (
	// StatusNone stands for "no prior snapshot" in transition lookups.
	StatusNone       Status = ""
	StatusRequested  Status = "requested"
	StatusExtended   Status = "extended"
	StatusStaged     Status = "staged"
	StatusDownloaded Status = "downloaded"
	StatusStopped    Status = "stopped"
)

// KnownStatuses lists every status a transfer record may carry.
var KnownStatuses = []Status{
	StatusRequested,
	StatusExtended,
	StatusStaged,
	StatusDownloaded,
	StatusStopped,
}

// CountedStatuses lists the statuses that own counters, in column order.
var CountedStatuses = []Status{
	StatusRequested,
	StatusStaged,
	StatusDownloaded,
}

// IsCounted reports whether s owns a pair of counters.
func (s Status) IsCounted() bool {
	return slices.Contains(CountedStatuses, s)
}

// StatusFromPath returns the last "/"-separated segment of a status path.
// "run-1/staged" and "staged" both yield StatusStaged.
func StatusFromPath(path string) Status {
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return Status(path[i+1:])
	}
	return Status(path)
}

// Event is one change notification from the CDC stream.
// Before is only present for EventUpdated.
type Event struct {
	ID     string    `json:"id"`
	Source string    `json:"source"`
	Kind   EventKind `json:"kind"`
	After  *Snapshot `json:"after,omitempty"`
	Before *Snapshot `json:"before,omitempty"`
}

// Snapshot is the parsed view of a transfer record image.
// Size is nil when the attribute is missing or not an integer.
type Snapshot struct {
	WorkflowRun    string `json:"workflow_run"`
	RecordKind     string `json:"retrieval_type"`
	Size           *int64 `json:"size,omitempty"`
	ArchiveID      string `json:"archive_id"`
	RetrieveStatus string `json:"retrieve_status"`
}

// Status returns the semantically meaningful part of RetrieveStatus.
func (s *Snapshot) Status() Status {
	return StatusFromPath(s.RetrieveStatus)
}

// RecordKey identifies the transfer record as "<workflow_run>|<archive_id>".
func (s *Snapshot) RecordKey() string {
	return s.WorkflowRun + "|" + s.ArchiveID
}

// Batch is one invocation's worth of stream records.
// Records holds the raw decoded JSON (the token input); Events the parsed view.
type Batch struct {
	Records []any
	Events  []Event
}
