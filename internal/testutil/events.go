package testutil

import (
	"strconv"

	"github.com/roach88/retrievalstat/internal/ir"
)

// Transfer describes one archive-retrieval record for building test events.
type Transfer struct {
	Run       string
	ArchiveID string
	Size      int64
}

// Snapshot returns the record's image in status s.
func (tr Transfer) Snapshot(s ir.Status) *ir.Snapshot {
	size := tr.Size
	return &ir.Snapshot{
		WorkflowRun:    tr.Run,
		RecordKind:     ir.RecordKindArchiveRetrieval,
		Size:           &size,
		ArchiveID:      tr.ArchiveID,
		RetrieveStatus: tr.Run + "/" + string(s),
	}
}

// Created returns an INSERT event creating the record in status s.
func (tr Transfer) Created(id string, s ir.Status) ir.Event {
	return ir.Event{
		ID:     id,
		Source: ir.DefaultEventSource,
		Kind:   ir.EventCreated,
		After:  tr.Snapshot(s),
	}
}

// Moved returns a MODIFY event moving the record from one status to another.
func (tr Transfer) Moved(id string, from, to ir.Status) ir.Event {
	return ir.Event{
		ID:     id,
		Source: ir.DefaultEventSource,
		Kind:   ir.EventUpdated,
		After:  tr.Snapshot(to),
		Before: tr.Snapshot(from),
	}
}

// BatchOf builds a batch whose raw records are the stream wire form of
// events, so the batch token is computed exactly as for a decoded batch.
func BatchOf(events ...ir.Event) *ir.Batch {
	b := &ir.Batch{
		Records: make([]any, 0, len(events)),
		Events:  append([]ir.Event(nil), events...),
	}
	for _, ev := range events {
		b.Records = append(b.Records, WireRecord(ev))
	}
	return b
}

// WireRecord renders ev as a generic stream record map.
func WireRecord(ev ir.Event) map[string]any {
	images := map[string]any{}
	if ev.After != nil {
		images["NewImage"] = wireImage(ev.After)
	}
	if ev.Before != nil {
		images["OldImage"] = wireImage(ev.Before)
	}
	return map[string]any{
		"eventID":     ev.ID,
		"eventName":   string(ev.Kind),
		"eventSource": ev.Source,
		"dynamodb":    images,
	}
}

func wireImage(s *ir.Snapshot) map[string]any {
	image := map[string]any{
		"pk": map[string]any{"S": s.RecordKey()},
	}
	if s.RecordKind != "" {
		image["retrieval_type"] = map[string]any{"S": s.RecordKind}
	}
	if s.ArchiveID != "" {
		image["archive_id"] = map[string]any{"S": s.ArchiveID}
	}
	if s.RetrieveStatus != "" {
		image["retrieve_status"] = map[string]any{"S": s.RetrieveStatus}
	}
	if s.Size != nil {
		image["size"] = map[string]any{"N": strconv.FormatInt(*s.Size, 10)}
	}
	return image
}
