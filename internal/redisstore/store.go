// Package redisstore is a counter store backed by Redis hashes.
//
// Every metric row is a hash of the six counters. One Lua script checks the
// request token, increments every row and records the token, so a
// transaction is applied atomically. All keys of one metric table share a
// hash tag and therefore a cluster slot.
package redisstore

import (
	"context"
	_ "embed"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/roach88/retrievalstat/internal/ir"
)

//go:embed apply.lua
var applyLua string

var applyScript = redis.NewScript(applyLua)

// fieldsPerRow is the number of ARGV entries per row: six field/value pairs.
const fieldsPerRow = 12

// tokenConflictPrefix starts the script error for a reused token.
const tokenConflictPrefix = "TOKENCONFLICT"

// invalidPrefix starts the script error for rows that are not counters.
const invalidPrefix = "INVALIDROW"

// scriptFailures mark errors raised by a command inside the apply script.
// Redis keeps the writes made before such an error, so resubmitting the
// script would apply them again.
var scriptFailures = []string{
	"Error running script",
	"not an integer",
	"would overflow",
}

// Config configures the Redis counter store.
type Config struct {
	// Address is the Redis server address (e.g., "localhost:6379")
	Address string

	// Password for Redis authentication (optional)
	Password string

	// Database number to use (default: 0)
	Database int

	// Prefix is prepended to all keys (e.g., "retrievalstat:")
	Prefix string

	// TokenTTL is how long applied tokens are remembered (0 = forever)
	TokenTTL time.Duration

	// Timeout for Redis operations
	Timeout time.Duration
}

// DefaultConfig returns sensible defaults.
// Tokens are remembered for ten minutes, the DynamoDB idempotency window.
func DefaultConfig(address string) Config {
	return Config{
		Address:  address,
		Prefix:   "retrievalstat:",
		TokenTTL: 10 * time.Minute,
		Timeout:  5 * time.Second,
	}
}

// Store applies transactions with one Lua script per transaction.
type Store struct {
	cfg    Config
	client redis.UniversalClient
}

// New connects to Redis and verifies the connection.
func New(cfg Config) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.Database,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewWithClient(client, cfg), nil
}

// NewWithClient creates a store over an existing client.
func NewWithClient(client redis.UniversalClient, cfg Config) *Store {
	return &Store{cfg: cfg, client: client}
}

// Close closes the client.
func (s *Store) Close() error {
	return s.client.Close()
}

// ApplyIncrements runs the apply script for tx.
func (s *Store) ApplyIncrements(ctx context.Context, tx ir.Transaction) error {
	keys, args, err := BuildScriptArgs(s.cfg.Prefix, s.cfg.TokenTTL, tx)
	if err != nil {
		return fmt.Errorf("apply increments: %w", err)
	}

	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	if err := applyScript.Run(ctx, s.client, keys, args...).Err(); err != nil {
		return fmt.Errorf("apply increments: %w", classifyError(err))
	}
	return nil
}

// Row returns the counters of one workflow run.
func (s *Store) Row(ctx context.Context, table, run string) (ir.Counters, error) {
	values, err := s.client.HGetAll(ctx, RowKey(s.cfg.Prefix, table, run)).Result()
	if err != nil {
		return ir.Counters{}, fmt.Errorf("read row %s: %w", run, err)
	}

	var c ir.Counters
	for _, st := range ir.CountedStatuses {
		count, err := parseField(values, ir.CountAttribute(st))
		if err != nil {
			return ir.Counters{}, err
		}
		size, err := parseField(values, ir.SizeAttribute(st))
		if err != nil {
			return ir.Counters{}, err
		}
		c.Merge(countersFor(st, count, size))
	}
	return c, nil
}

func parseField(values map[string]string, field string) (int64, error) {
	raw, ok := values[field]
	if !ok {
		return 0, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("field %s: %w", field, err)
	}
	return n, nil
}

func countersFor(s ir.Status, count, size int64) ir.Counters {
	switch s {
	case ir.StatusRequested:
		return ir.Counters{RequestedCount: count, RequestedSize: size}
	case ir.StatusStaged:
		return ir.Counters{StagedCount: count, StagedSize: size}
	case ir.StatusDownloaded:
		return ir.Counters{DownloadedCount: count, DownloadedSize: size}
	}
	return ir.Counters{}
}

// tableTag is the hash tag shared by every key of table.
func tableTag(prefix, table string) string {
	return "{" + prefix + table + "}"
}

// TokenKey is the key recording an applied request token.
func TokenKey(prefix, table, token string) string {
	return tableTag(prefix, table) + ":token:" + token
}

// RowKey is the hash holding a workflow run's counters.
func RowKey(prefix, table, run string) string {
	return tableTag(prefix, table) + ":row:" + run
}

// BuildScriptArgs renders tx as the apply script's KEYS and ARGV.
//
// KEYS[1] is the token key, KEYS[2..] the row keys in update order.
// ARGV is payload hash, token TTL in milliseconds, then six
// field/value pairs per row.
func BuildScriptArgs(prefix string, ttl time.Duration, tx ir.Transaction) ([]string, []any, error) {
	switch {
	case tx.Token == "" || len(tx.Token) > ir.TokenLength:
		return nil, nil, fmt.Errorf("%w: request token must be 1-%d characters", ir.ErrInvalidTransaction, ir.TokenLength)
	case tx.Table == "":
		return nil, nil, fmt.Errorf("%w: empty table name", ir.ErrInvalidTransaction)
	case len(tx.Updates) == 0:
		return nil, nil, fmt.Errorf("%w: no row updates", ir.ErrInvalidTransaction)
	}

	hash, err := tx.PayloadHash()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ir.ErrInvalidTransaction, err)
	}

	keys := make([]string, 0, 1+len(tx.Updates))
	keys = append(keys, TokenKey(prefix, tx.Table, tx.Token))

	args := make([]any, 0, 2+fieldsPerRow*len(tx.Updates))
	args = append(args, hash, ttl.Milliseconds())

	for _, u := range tx.Updates {
		if u.WorkflowRun == "" {
			return nil, nil, fmt.Errorf("%w: empty workflow run", ir.ErrInvalidTransaction)
		}
		if !u.Counters.NonNegative() {
			return nil, nil, fmt.Errorf("%w: negative increment for %s", ir.ErrInvalidTransaction, u.WorkflowRun)
		}
		keys = append(keys, RowKey(prefix, tx.Table, u.WorkflowRun))
		for _, st := range ir.CountedStatuses {
			count, size := u.Counters.Get(st)
			args = append(args,
				ir.CountAttribute(st), count,
				ir.SizeAttribute(st), size,
			)
		}
	}
	return keys, args, nil
}

func classifyError(err error) error {
	msg := err.Error()
	switch {
	case strings.HasPrefix(msg, tokenConflictPrefix):
		return fmt.Errorf("%w: %s", ir.ErrTokenConflict, msg)
	case strings.HasPrefix(msg, invalidPrefix):
		return fmt.Errorf("%w: %s", ir.ErrInvalidTransaction, msg)
	}
	for _, marker := range scriptFailures {
		if strings.Contains(msg, marker) {
			return fmt.Errorf("%w: %s", ir.ErrInvalidTransaction, msg)
		}
	}
	return err
}
