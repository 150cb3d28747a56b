package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/retrievalstat/internal/ir"
)

// AppliedToken is one recorded request token.
type AppliedToken struct {
	Token       string
	PayloadHash string
	Seq         int64
}

// Totals returns the counters of every workflow run in table.
// Returns an empty map (not nil) if the table has no rows.
func (s *Store) Totals(ctx context.Context, table string) (map[string]ir.Counters, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT pk, count_requested, size_requested, count_staged, size_staged, count_downloaded, size_downloaded
		FROM metric_rows
		WHERE table_name = ?
		ORDER BY pk COLLATE BINARY ASC
	`, table)
	if err != nil {
		return nil, fmt.Errorf("query metric rows: %w", err)
	}
	defer rows.Close()

	totals := make(map[string]ir.Counters)
	for rows.Next() {
		var run string
		var c ir.Counters
		if err := rows.Scan(&run,
			&c.RequestedCount, &c.RequestedSize,
			&c.StagedCount, &c.StagedSize,
			&c.DownloadedCount, &c.DownloadedSize,
		); err != nil {
			return nil, fmt.Errorf("scan metric row: %w", err)
		}
		totals[run] = c
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate metric rows: %w", err)
	}
	return totals, nil
}

// Row returns the counters of one workflow run.
// The bool is false when the run has no row in table.
func (s *Store) Row(ctx context.Context, table, run string) (ir.Counters, bool, error) {
	var c ir.Counters
	err := s.db.QueryRowContext(ctx, `
		SELECT count_requested, size_requested, count_staged, size_staged, count_downloaded, size_downloaded
		FROM metric_rows
		WHERE table_name = ? AND pk = ?
	`, table, run).Scan(
		&c.RequestedCount, &c.RequestedSize,
		&c.StagedCount, &c.StagedSize,
		&c.DownloadedCount, &c.DownloadedSize,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Counters{}, false, nil
	}
	if err != nil {
		return ir.Counters{}, false, fmt.Errorf("query metric row: %w", err)
	}
	return c, true, nil
}

// TokenCount returns how many transactions were applied.
func (s *Store) TokenCount(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM request_tokens`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count request tokens: %w", err)
	}
	return n, nil
}

// Tokens returns every applied token in apply order (ORDER BY seq ASC).
func (s *Store) Tokens(ctx context.Context) ([]AppliedToken, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT token, payload_hash, seq
		FROM request_tokens
		ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query request tokens: %w", err)
	}
	defer rows.Close()

	tokens := []AppliedToken{}
	for rows.Next() {
		var t AppliedToken
		if err := rows.Scan(&t.Token, &t.PayloadHash, &t.Seq); err != nil {
			return nil, fmt.Errorf("scan request token: %w", err)
		}
		tokens = append(tokens, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate request tokens: %w", err)
	}
	return tokens, nil
}
