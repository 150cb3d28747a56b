package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runTransitionsCommand(t *testing.T, format, path string) (string, error) {
	t.Helper()
	cmd, out, _ := newTestCommand()
	err := runTransitions(&TransitionsOptions{RootOptions: &RootOptions{Format: format}, Transitions: path}, cmd)
	return out.String(), err
}

func TestTransitions_DefaultText(t *testing.T) {
	out, err := runTransitionsCommand(t, "text", "")
	require.NoError(t, err)

	assert.Contains(t, out, "✓ 3 counted transition(s) from transitions.cue")
	assert.Contains(t, out, "none → requested  counts requested")
	assert.Contains(t, out, "requested → staged  counts staged")
	assert.Contains(t, out, "staged → downloaded  counts downloaded")
}

func TestTransitions_DefaultJSON(t *testing.T) {
	out, err := runTransitionsCommand(t, "json", "")
	require.NoError(t, err)

	var resp struct {
		Status string            `json:"status"`
		Data   []TransitionEntry `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, []TransitionEntry{
		{From: "none", To: "requested", Counted: "requested"},
		{From: "requested", To: "staged", Counted: "staged"},
		{From: "staged", To: "downloaded", Counted: "downloaded"},
	}, resp.Data)
}

func TestTransitions_InvalidFile(t *testing.T) {
	out, err := runTransitionsCommand(t, "text", "testdata/bad_transitions.cue")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E005]: compiling transition table")
}

func TestTransitions_MissingFile(t *testing.T) {
	_, err := runTransitionsCommand(t, "json", "testdata/nope.cue")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
