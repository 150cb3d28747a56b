package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/retrievalstat/internal/ir"
)

// CommitError represents a failure to land a batch in the metric store.
//
// Every CommitError aborts the whole batch: the store applies a transaction
// atomically, so nothing of the batch is visible when one is returned.
type CommitError struct {
	// Code identifies the error category.
	Code CommitErrorCode

	// Message is a human-readable description.
	Message string

	// Token is the batch's request token.
	Token string

	// Attempts is the number of store submissions made.
	Attempts int

	// Err is the last underlying error.
	Err error
}

// CommitErrorCode categorizes commit errors.
type CommitErrorCode string

const (
	// ErrCodeRetryExhausted indicates every attempt failed transiently.
	ErrCodeRetryExhausted CommitErrorCode = "RETRY_EXHAUSTED"

	// ErrCodeTokenConflict indicates the token was already used for a
	// different transaction.
	ErrCodeTokenConflict CommitErrorCode = "TOKEN_CONFLICT"

	// ErrCodeInvalidTransaction indicates the store can never accept the transaction.
	ErrCodeInvalidTransaction CommitErrorCode = "INVALID_TRANSACTION"

	// ErrCodeCancelled indicates the invocation was cancelled.
	ErrCodeCancelled CommitErrorCode = "CANCELLED"

	// ErrCodeTableUnresolved indicates the metric table name is unavailable.
	ErrCodeTableUnresolved CommitErrorCode = "TABLE_UNRESOLVED"
)

// Error implements the error interface.
func (e *CommitError) Error() string {
	if e.Token != "" && e.Attempts > 0 {
		return fmt.Sprintf("%s: %s (token=%s, attempts=%d): %v", e.Code, e.Message, e.Token, e.Attempts, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *CommitError) Unwrap() error {
	return e.Err
}

// IsTokenConflict returns true if the error is a token conflict.
// Uses errors.As to handle wrapped errors.
func IsTokenConflict(err error) bool {
	var ce *CommitError
	if errors.As(err, &ce) {
		return ce.Code == ErrCodeTokenConflict
	}
	return errors.Is(err, ir.ErrTokenConflict)
}

// IsRetryExhausted returns true if the error is a retry exhaustion.
func IsRetryExhausted(err error) bool {
	var ce *CommitError
	if errors.As(err, &ce) {
		return ce.Code == ErrCodeRetryExhausted
	}
	return false
}

// MalformedSnapshotError describes an eligible record that cannot be counted.
// It is reported per event and never aborts a batch.
type MalformedSnapshotError struct {
	EventID  string
	Field    string
	Snapshot *ir.Snapshot
}

// Error implements the error interface.
func (e *MalformedSnapshotError) Error() string {
	if e.Snapshot == nil {
		return fmt.Sprintf("event %s: %s is missing", e.EventID, e.Field)
	}
	return fmt.Sprintf("event %s: %s missing or invalid in %+v", e.EventID, e.Field, snapshotView(e.Snapshot))
}

// snapshotView flattens the size pointer for readable diagnostics.
func snapshotView(s *ir.Snapshot) map[string]any {
	view := map[string]any{
		"workflow_run":    s.WorkflowRun,
		"retrieval_type":  s.RecordKind,
		"archive_id":      s.ArchiveID,
		"retrieve_status": s.RetrieveStatus,
		"size":            nil,
	}
	if s.Size != nil {
		view["size"] = *s.Size
	}
	return view
}

// IsFatal returns true if resubmitting the same batch cannot succeed.
// Retry exhaustion and cancellation are not fatal: a redelivery may land.
func IsFatal(err error) bool {
	var ce *CommitError
	if !errors.As(err, &ce) {
		return false
	}
	switch ce.Code {
	case ErrCodeTokenConflict, ErrCodeInvalidTransaction, ErrCodeTableUnresolved:
		return true
	}
	return false
}
