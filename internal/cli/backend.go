package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/retrievalstat/internal/config"
	"github.com/roach88/retrievalstat/internal/dynamostore"
	"github.com/roach88/retrievalstat/internal/engine"
	"github.com/roach88/retrievalstat/internal/redisstore"
	"github.com/roach88/retrievalstat/internal/store"
)

// redisTimeout bounds each Redis call of the CLI.
const redisTimeout = 5 * time.Second

// openStore builds the counter store selected by cfg.Backend.
// The returned close function is never nil.
func openStore(ctx context.Context, cfg *config.Config) (engine.CounterStore, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Backend {
	case config.BackendSQLite:
		st, err := store.Open(cfg.SQLite.Path)
		if err != nil {
			return nil, noop, fmt.Errorf("open sqlite store: %w", err)
		}
		return st, st.Close, nil

	case config.BackendDynamoDB:
		st, err := dynamostore.New(ctx, dynamostore.Config{
			Region:   cfg.DynamoDB.Region,
			Endpoint: cfg.DynamoDB.Endpoint,
		})
		if err != nil {
			return nil, noop, fmt.Errorf("open dynamodb store: %w", err)
		}
		return st, noop, nil

	case config.BackendRedis:
		st, err := redisstore.New(redisstore.Config{
			Address:  cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			Database: cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
			TokenTTL: cfg.Redis.TokenTTL,
			Timeout:  redisTimeout,
		})
		if err != nil {
			return nil, noop, fmt.Errorf("open redis store: %w", err)
		}
		return st, st.Close, nil
	}

	return nil, noop, fmt.Errorf("unknown backend %q", cfg.Backend)
}
