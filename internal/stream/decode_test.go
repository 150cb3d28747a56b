package stream

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/retrievalstat/internal/ir"
)

func TestDecode_StreamEventFile(t *testing.T) {
	f, err := os.Open(filepath.Join("testdata", "modify_batch.json"))
	require.NoError(t, err)
	defer f.Close()

	batch, err := Decode(f)
	require.NoError(t, err)
	require.Len(t, batch.Records, 2)
	require.Len(t, batch.Events, 2)

	modify := batch.Events[0]
	assert.Equal(t, "c4ca4238a0b923820dcc509a6f75849b", modify.ID)
	assert.Equal(t, ir.DefaultEventSource, modify.Source)
	assert.Equal(t, ir.EventUpdated, modify.Kind)
	require.NotNil(t, modify.After)
	require.NotNil(t, modify.Before)
	assert.Equal(t, "workflow_run_orchestrator", modify.After.WorkflowRun)
	assert.Equal(t, ir.RecordKindArchiveRetrieval, modify.After.RecordKind)
	assert.Equal(t, "test_archive_id", modify.After.ArchiveID)
	require.NotNil(t, modify.After.Size)
	assert.Equal(t, int64(2048), *modify.After.Size)
	assert.Equal(t, ir.StatusDownloaded, modify.After.Status())
	assert.Equal(t, ir.StatusStaged, modify.Before.Status())

	insert := batch.Events[1]
	assert.Equal(t, ir.EventCreated, insert.Kind)
	assert.Nil(t, insert.Before)
	assert.Equal(t, "inventory-retrieval", insert.After.RecordKind)
	assert.Nil(t, insert.After.Size)
}

func TestDecode_RawRecordsKeepNumbersExact(t *testing.T) {
	batch, err := DecodeBytes([]byte(`[{"eventName":"INSERT","dynamodb":{"ApproximateCreationDateTime":1701730198.123}}]`))
	require.NoError(t, err)

	rec := batch.Records[0].(map[string]any)
	ddb := rec["dynamodb"].(map[string]any)
	assert.Equal(t, json.Number("1701730198.123"), ddb["ApproximateCreationDateTime"])

	_, err = ir.BatchToken(batch.Records)
	assert.NoError(t, err)
}

func TestDecode_BareArrayAndEnvelopeAgree(t *testing.T) {
	record := `{"eventID":"1","eventName":"INSERT","eventSource":"aws:dynamodb","dynamodb":{"NewImage":{"pk":{"S":"run|a"}}}}`

	fromArray, err := DecodeBytes([]byte("[" + record + "]"))
	require.NoError(t, err)
	fromEnvelope, err := DecodeBytes([]byte(`{"Records":[` + record + `]}`))
	require.NoError(t, err)

	assert.Equal(t, fromArray.Events, fromEnvelope.Events)
	assert.Equal(t, ir.MustBatchToken(fromArray.Records), ir.MustBatchToken(fromEnvelope.Records))
}

func TestDecode_EmptyRecords(t *testing.T) {
	batch, err := DecodeBytes([]byte(`{"Records":[]}`))
	require.NoError(t, err)
	assert.Empty(t, batch.Events)
	assert.Empty(t, batch.Records)
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "  ", "empty input"},
		{"scalar", "42", "expected object or array"},
		{"bad json", `{"Records": [`, "decode batch"},
		{"bad record", `[{"eventName": 5}]`, "record[0]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tt.input))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestRecordEvent_OldImageOnlyForModify(t *testing.T) {
	var rec Record
	require.NoError(t, json.Unmarshal([]byte(`{
		"eventName": "INSERT",
		"dynamodb": {
			"NewImage": {"retrieve_status": {"S": "run/requested"}},
			"OldImage": {"retrieve_status": {"S": "run/requested"}}
		}
	}`), &rec))

	ev := rec.Event()
	assert.Equal(t, ir.EventCreated, ev.Kind)
	assert.Nil(t, ev.Before)
}

func TestParseImage(t *testing.T) {
	s := func(v string) AttributeValue { return AttributeValue{S: &v} }
	n := func(v string) AttributeValue { return AttributeValue{N: &v} }

	t.Run("pk supplies workflow run", func(t *testing.T) {
		snap := ParseImage(map[string]AttributeValue{
			"pk":              s("run-7|obj-1"),
			"workflow_run":    s("ignored"),
			"retrieve_status": s("run-7/staged"),
			"size":            n("12"),
		})
		assert.Equal(t, "run-7", snap.WorkflowRun)
		assert.Equal(t, int64(12), *snap.Size)
	})

	t.Run("workflow_run attribute without pk", func(t *testing.T) {
		snap := ParseImage(map[string]AttributeValue{"workflow_run": s("run-8")})
		assert.Equal(t, "run-8", snap.WorkflowRun)
	})

	t.Run("size not an integer", func(t *testing.T) {
		assert.Nil(t, ParseImage(map[string]AttributeValue{"size": n("1.5")}).Size)
		assert.Nil(t, ParseImage(map[string]AttributeValue{"size": s("12")}).Size)
	})
}
