package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/retrievalstat/internal/ir"
)

// ApplyIncrements adds every row increment of tx in one SQL transaction.
//
// The request token is checked and recorded inside the same transaction:
// a token already recorded with the same payload hash makes the call a
// no-op; with a different hash the call fails with ir.ErrTokenConflict and
// nothing is written.
func (s *Store) ApplyIncrements(ctx context.Context, tx ir.Transaction) error {
	if err := validateTransaction(tx); err != nil {
		return fmt.Errorf("apply increments: %w", err)
	}

	hash, err := tx.PayloadHash()
	if err != nil {
		return fmt.Errorf("apply increments: %w: %v", ir.ErrInvalidTransaction, err)
	}

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("apply increments: begin tx: %w", err)
	}
	defer sqlTx.Rollback() // No-op if committed

	var seen string
	err = sqlTx.QueryRowContext(ctx,
		`SELECT payload_hash FROM request_tokens WHERE token = ?`, tx.Token,
	).Scan(&seen)
	switch {
	case err == nil:
		if seen != hash {
			return fmt.Errorf("apply increments: token %s: %w", tx.Token, ir.ErrTokenConflict)
		}
		return nil
	case errors.Is(err, sql.ErrNoRows):
	default:
		return fmt.Errorf("apply increments: lookup token: %w", err)
	}

	for _, u := range tx.Updates {
		c := u.Counters
		_, err := sqlTx.ExecContext(ctx, `
			INSERT INTO metric_rows
			(table_name, pk, count_requested, size_requested, count_staged, size_staged, count_downloaded, size_downloaded)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(table_name, pk) DO UPDATE SET
				count_requested  = count_requested  + excluded.count_requested,
				size_requested   = size_requested   + excluded.size_requested,
				count_staged     = count_staged     + excluded.count_staged,
				size_staged      = size_staged      + excluded.size_staged,
				count_downloaded = count_downloaded + excluded.count_downloaded,
				size_downloaded  = size_downloaded  + excluded.size_downloaded
		`,
			tx.Table,
			u.WorkflowRun,
			c.RequestedCount, c.RequestedSize,
			c.StagedCount, c.StagedSize,
			c.DownloadedCount, c.DownloadedSize,
		)
		if err != nil {
			return fmt.Errorf("apply increments: row %s: %w", u.WorkflowRun, err)
		}
	}

	_, err = sqlTx.ExecContext(ctx, `
		INSERT INTO request_tokens (token, payload_hash, seq)
		VALUES (?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM request_tokens))
	`, tx.Token, hash)
	if err != nil {
		return fmt.Errorf("apply increments: record token: %w", err)
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("apply increments: commit: %w", err)
	}
	return nil
}

func validateTransaction(tx ir.Transaction) error {
	switch {
	case tx.Token == "":
		return fmt.Errorf("%w: empty request token", ir.ErrInvalidTransaction)
	case len(tx.Token) > ir.TokenLength:
		return fmt.Errorf("%w: request token longer than %d characters", ir.ErrInvalidTransaction, ir.TokenLength)
	case tx.Table == "":
		return fmt.Errorf("%w: empty table name", ir.ErrInvalidTransaction)
	case len(tx.Updates) == 0:
		return fmt.Errorf("%w: no row updates", ir.ErrInvalidTransaction)
	}
	for _, u := range tx.Updates {
		if u.WorkflowRun == "" {
			return fmt.Errorf("%w: empty workflow run", ir.ErrInvalidTransaction)
		}
		if !u.Counters.NonNegative() {
			return fmt.Errorf("%w: negative increment for %s", ir.ErrInvalidTransaction, u.WorkflowRun)
		}
	}
	return nil
}
