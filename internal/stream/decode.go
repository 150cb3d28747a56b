package stream

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/roach88/retrievalstat/internal/ir"
)

// Image attribute names of a transfer record.
const (
	AttrWorkflowRun    = "workflow_run"
	AttrPartitionKey   = "pk"
	AttrRetrievalType  = "retrieval_type"
	AttrSize           = "size"
	AttrArchiveID      = "archive_id"
	AttrRetrieveStatus = "retrieve_status"
)

// AttributeValue is one typed attribute of a stream image.
// Only the scalar string and number forms are consumed.
type AttributeValue struct {
	S *string `json:"S,omitempty"`
	N *string `json:"N,omitempty"`
}

// Record is the wire form of one stream record.
type Record struct {
	EventID     string `json:"eventID"`
	EventName   string `json:"eventName"`
	EventSource string `json:"eventSource"`
	DynamoDB    struct {
		NewImage map[string]AttributeValue `json:"NewImage,omitempty"`
		OldImage map[string]AttributeValue `json:"OldImage,omitempty"`
	} `json:"dynamodb"`
}

type envelope struct {
	Records []json.RawMessage `json:"Records"`
}

// Decode reads a batch from r. The input is either a stream event object
// ({"Records": [...]}) or a bare JSON array of records.
func Decode(r io.Reader) (*ir.Batch, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read batch: %w", err)
	}
	return DecodeBytes(data)
}

// DecodeBytes is Decode over an in-memory payload.
func DecodeBytes(data []byte) (*ir.Batch, error) {
	raws, err := splitRecords(data)
	if err != nil {
		return nil, err
	}

	batch := &ir.Batch{
		Records: make([]any, 0, len(raws)),
		Events:  make([]ir.Event, 0, len(raws)),
	}
	for i, raw := range raws {
		value, err := decodeValue(raw)
		if err != nil {
			return nil, fmt.Errorf("record[%d]: %w", i, err)
		}

		var rec Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("record[%d]: %w", i, err)
		}

		batch.Records = append(batch.Records, value)
		batch.Events = append(batch.Events, rec.Event())
	}
	return batch, nil
}

// splitRecords returns the raw JSON of every record in the payload.
func splitRecords(data []byte) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("decode batch: empty input")
	}

	switch trimmed[0] {
	case '[':
		var raws []json.RawMessage
		if err := json.Unmarshal(trimmed, &raws); err != nil {
			return nil, fmt.Errorf("decode batch: %w", err)
		}
		return raws, nil
	case '{':
		var env envelope
		if err := json.Unmarshal(trimmed, &env); err != nil {
			return nil, fmt.Errorf("decode batch: %w", err)
		}
		return env.Records, nil
	default:
		return nil, fmt.Errorf("decode batch: expected object or array, got %q", trimmed[0])
	}
}

// decodeValue decodes raw JSON into a generic value with numbers preserved
// as json.Number so that the canonical form keeps their exact text.
func decodeValue(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// Event converts the wire record to an ir.Event.
// OldImage is only attached to MODIFY records.
func (r Record) Event() ir.Event {
	ev := ir.Event{
		ID:     r.EventID,
		Source: r.EventSource,
		Kind:   ir.ParseEventKind(r.EventName),
	}
	if r.DynamoDB.NewImage != nil {
		ev.After = ParseImage(r.DynamoDB.NewImage)
	}
	if ev.Kind == ir.EventUpdated && r.DynamoDB.OldImage != nil {
		ev.Before = ParseImage(r.DynamoDB.OldImage)
	}
	return ev
}

// ParseImage builds a snapshot from a transfer record image.
//
// The workflow run is the first component of the "<workflow_run>|<object id>"
// partition key; images without a pk may carry a workflow_run attribute.
func ParseImage(image map[string]AttributeValue) *ir.Snapshot {
	s := &ir.Snapshot{
		RecordKind:     stringAttr(image, AttrRetrievalType),
		ArchiveID:      stringAttr(image, AttrArchiveID),
		RetrieveStatus: stringAttr(image, AttrRetrieveStatus),
		Size:           intAttr(image, AttrSize),
	}
	if pk := stringAttr(image, AttrPartitionKey); pk != "" {
		s.WorkflowRun, _, _ = strings.Cut(pk, "|")
	} else {
		s.WorkflowRun = stringAttr(image, AttrWorkflowRun)
	}
	return s
}

func stringAttr(image map[string]AttributeValue, name string) string {
	if av, ok := image[name]; ok && av.S != nil {
		return *av.S
	}
	return ""
}

func intAttr(image map[string]AttributeValue, name string) *int64 {
	av, ok := image[name]
	if !ok || av.N == nil {
		return nil
	}
	n, err := strconv.ParseInt(*av.N, 10, 64)
	if err != nil {
		return nil
	}
	return &n
}
