package main

import (
	"context"
	"fmt"
	"time"

	"github.com/Sternrassler/bookshelf-web/pkg/config"
	"github.com/Sternrassler/bookshelf-web/pkg/ledger"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

const connectTimeout = 5 * time.Second

// openLedger builds the ledger for the configured backend. The returned
// close function releases the backend connection.
func openLedger(ctx context.Context, cfg config.Config) (*ledger.Ledger, func(), error) {
	switch cfg.LedgerBackend {
	case config.BackendMemory, "":
		return ledger.NewMemory(), func() {}, nil

	case config.BackendRedis:
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("parse %s: %w", config.KeyRedisURL, err)
		}
		client := redis.NewClient(opts)

		pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("connect to redis at %s: %w", opts.Addr, err)
		}
		return ledger.New(ledger.NewRedisStore(client)), func() { client.Close() }, nil

	case config.BackendPostgres:
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres pool: %w", err)
		}

		migrateCtx, cancel := context.WithTimeout(ctx, connectTimeout)
		defer cancel()
		store := ledger.NewPostgresStore(pool)
		if err := store.Migrate(migrateCtx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("migrate ledger table: %w", err)
		}
		return ledger.New(store), pool.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown %s %q", config.KeyLedgerBackend, cfg.LedgerBackend)
	}
}
