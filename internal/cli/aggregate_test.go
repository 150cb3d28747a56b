package cli

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/retrievalstat/internal/ir"
	"github.com/roach88/retrievalstat/internal/store"
)

func TestAggregate_JSONOutput(t *testing.T) {
	setupSQLiteEnv(t)
	cmd, out, _ := newTestCommand()

	require.NoError(t, runAggregate(newAggregateOptions("json"), cmd))

	var resp struct {
		Status string           `json:"status"`
		Data   AggregateSummary `json:"data"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "inv-cli", resp.Data.InvocationID)
	assert.Len(t, resp.Data.Token, ir.TokenLength)
	assert.True(t, resp.Data.Committed)
	assert.Equal(t, 1, resp.Data.Attempts)
	assert.Equal(t, 1, resp.Data.Outcomes["counted"])
	assert.Equal(t, 1, resp.Data.Outcomes["ignored"])
	assert.Equal(t, ir.Counters{DownloadedCount: 1, DownloadedSize: 2048}, resp.Data.Runs[testRun])
	assert.Equal(t, []string{
		"Archive:workflow_run_orchestrator|test_archive_id - counted_status:downloaded",
	}, resp.Data.AuditLines)
}

func TestAggregate_TextOutput(t *testing.T) {
	setupSQLiteEnv(t)
	cmd, out, _ := newTestCommand()

	require.NoError(t, runAggregate(newAggregateOptions("text"), cmd))

	output := out.String()
	assert.Contains(t, output, "✓ Committed batch")
	assert.Contains(t, output, "(1 attempt(s))")
	assert.Contains(t, output, "counted: 1  unhandled: 0  malformed: 0  ignored: 1")
	assert.Contains(t, output, "workflow_run_orchestrator: requested 0/0  staged 0/0  downloaded 1/2048")
}

func TestAggregate_AuditLinesLogged(t *testing.T) {
	setupSQLiteEnv(t)
	cmd, _, errOut := newTestCommand()

	require.NoError(t, runAggregate(newAggregateOptions("json"), cmd))

	assert.Contains(t, errOut.String(), "counted_status:downloaded")
	assert.Contains(t, errOut.String(), "invocation=inv-cli")
}

func TestAggregate_RedeliveryCountsOnce(t *testing.T) {
	path := setupSQLiteEnv(t)

	for range 3 {
		cmd, _, _ := newTestCommand()
		require.NoError(t, runAggregate(newAggregateOptions("json"), cmd))
	}

	st, err := store.Open(path)
	require.NoError(t, err)
	defer st.Close()

	row, ok, err := st.Row(context.Background(), testTable, testRun)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ir.Counters{DownloadedCount: 1, DownloadedSize: 2048}, row)

	tokens, err := st.TokenCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, tokens)
}

func TestAggregate_NothingToCommit(t *testing.T) {
	setupSQLiteEnv(t)
	batch := filepath.Join(t.TempDir(), "empty.json")
	require.NoError(t, os.WriteFile(batch, []byte(`{"Records": []}`), 0o644))

	cmd, out, _ := newTestCommand()
	opts := newAggregateOptions("text")
	opts.Batch = batch

	require.NoError(t, runAggregate(opts, cmd))
	assert.Contains(t, out.String(), "✓ Nothing to commit for batch")
	assert.NotContains(t, out.String(), "Runs:")
}

func TestAggregate_Stdin(t *testing.T) {
	setupSQLiteEnv(t)
	data, err := os.ReadFile(testBatch)
	require.NoError(t, err)

	cmd, out, _ := newTestCommand()
	cmd.SetIn(strings.NewReader(string(data)))
	opts := newAggregateOptions("text")
	opts.Batch = "-"

	require.NoError(t, runAggregate(opts, cmd))
	assert.Contains(t, out.String(), "✓ Committed batch")
}

func TestAggregate_MissingTableFails(t *testing.T) {
	setupSQLiteEnv(t)
	t.Setenv("METRIC_TABLE_NAME", "")
	cmd, out, _ := newTestCommand()

	err := runAggregate(newAggregateOptions("json"), cmd)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, ErrCodeCommit, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "METRIC_TABLE_NAME")
}

func TestAggregate_InputErrors(t *testing.T) {
	dir := t.TempDir()
	garbage := filepath.Join(dir, "garbage.json")
	require.NoError(t, os.WriteFile(garbage, []byte(`not json`), 0o644))

	tests := []struct {
		name     string
		batch    string
		wantCode string
	}{
		{"missing file", filepath.Join(dir, "missing.json"), ErrCodeReadInput},
		{"undecodable", garbage, ErrCodeDecode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setupSQLiteEnv(t)
			cmd, out, _ := newTestCommand()
			opts := newAggregateOptions("text")
			opts.Batch = tt.batch

			err := runAggregate(opts, cmd)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, out.String(), "Error ["+tt.wantCode+"]")
		})
	}
}

func TestAggregate_BadTransitions(t *testing.T) {
	setupSQLiteEnv(t)
	cmd, out, _ := newTestCommand()
	opts := newAggregateOptions("text")
	opts.Transitions = "testdata/bad_transitions.cue"

	err := runAggregate(opts, cmd)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out.String(), "Error [E005]")
}

func TestAggregate_BadConfig(t *testing.T) {
	setupSQLiteEnv(t)
	t.Setenv("RETRIEVALSTAT_BACKEND", "postgres")
	cmd, out, _ := newTestCommand()

	err := runAggregate(newAggregateOptions("text"), cmd)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out.String(), "Error [E004]")
}

func TestAggregate_MetricsOut(t *testing.T) {
	setupSQLiteEnv(t)
	metricsPath := filepath.Join(t.TempDir(), "metrics.prom")
	cmd, _, _ := newTestCommand()
	opts := newAggregateOptions("json")
	opts.MetricsOut = metricsPath

	require.NoError(t, runAggregate(opts, cmd))

	data, err := os.ReadFile(metricsPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "retrievalstat_events_total")
	assert.Contains(t, string(data), "retrievalstat_commits_total")
}

func TestAggregateCommand_RequiresBatch(t *testing.T) {
	setupSQLiteEnv(t)
	root := NewRootCommand()
	root.SetOut(&strings.Builder{})
	root.SetErr(&strings.Builder{})
	root.SetArgs([]string{"aggregate"})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"batch" not set`)
}
