package cli

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"

	"github.com/roach88/retrievalstat/internal/testutil"
)

const (
	testTable = "retrieval-metrics"
	testBatch = "testdata/batch.json"
	testRun   = "workflow_run_orchestrator"
)

// setupSQLiteEnv points the configuration at a fresh SQLite file and
// returns its path.
func setupSQLiteEnv(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "metrics.db")
	t.Setenv("RETRIEVALSTAT_BACKEND", "sqlite")
	t.Setenv("RETRIEVALSTAT_SQLITE_PATH", path)
	t.Setenv("METRIC_TABLE_NAME", testTable)
	return path
}

// newTestCommand returns a bare command whose output is captured.
func newTestCommand() (*cobra.Command, *bytes.Buffer, *bytes.Buffer) {
	cmd := &cobra.Command{}
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	return cmd, out, errOut
}

func newAggregateOptions(format string) *AggregateOptions {
	return &AggregateOptions{
		RootOptions:   &RootOptions{Format: format},
		Batch:         testBatch,
		InvocationIDs: testutil.NewFixedIDGenerator("inv-cli"),
	}
}
