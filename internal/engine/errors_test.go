package engine

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/retrievalstat/internal/ir"
)

func TestCommitError_Error(t *testing.T) {
	err := &CommitError{
		Code:     ErrCodeRetryExhausted,
		Message:  "commit failed after 10 attempts",
		Token:    "tok",
		Attempts: 10,
		Err:      errors.New("throttled"),
	}
	assert.Equal(t, "RETRY_EXHAUSTED: commit failed after 10 attempts (token=tok, attempts=10): throttled", err.Error())

	noToken := &CommitError{Code: ErrCodeTableUnresolved, Message: "metric table name unavailable", Err: errors.New("unset")}
	assert.Equal(t, "TABLE_UNRESOLVED: metric table name unavailable: unset", noToken.Error())
}

func TestCommitError_Helpers(t *testing.T) {
	conflict := fmt.Errorf("process: %w", &CommitError{Code: ErrCodeTokenConflict, Err: ir.ErrTokenConflict})
	exhausted := &CommitError{Code: ErrCodeRetryExhausted}
	cancelled := &CommitError{Code: ErrCodeCancelled}

	assert.True(t, IsTokenConflict(conflict))
	assert.True(t, IsTokenConflict(ir.ErrTokenConflict))
	assert.True(t, IsFatal(conflict))

	assert.True(t, IsRetryExhausted(exhausted))
	assert.False(t, IsFatal(exhausted))
	assert.False(t, IsFatal(cancelled))
	assert.False(t, IsFatal(errors.New("plain")))
}
