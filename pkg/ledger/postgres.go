package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotMigrated is returned when the ledger table does not exist yet.
var ErrNotMigrated = errors.New("ledger table not migrated")

// PostgresTable is the table holding the shared ledger.
const PostgresTable = "cache_ledger"

const createTableSQL = `CREATE TABLE IF NOT EXISTS ` + PostgresTable + ` (
	key             TEXT PRIMARY KEY,
	last_fetched_at BIGINT NOT NULL,
	seq             BIGSERIAL NOT NULL
)`

// PostgresStore shares one ledger between processes through a keyed table.
// Upserts keep last_fetched_at non-decreasing even when writers' clocks drift.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgreSQL-backed store. Call Migrate before use.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	if pool == nil {
		panic("postgres pool cannot be nil")
	}
	return &PostgresStore{pool: pool}
}

// Migrate creates the ledger table if needed.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, createTableSQL); err != nil {
		return fmt.Errorf("create ledger table: %w", err)
	}
	return nil
}

// Put implements Store.
func (s *PostgresStore) Put(ctx context.Context, key string, fetchedAt int64) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+PostgresTable+` (key, last_fetched_at) VALUES ($1, $2)
		 ON CONFLICT (key) DO UPDATE
		 SET last_fetched_at = GREATEST(`+PostgresTable+`.last_fetched_at, EXCLUDED.last_fetched_at)`,
		key, fetchedAt)
	if err != nil {
		return wrapPgError("postgres upsert", err)
	}
	return nil
}

// Get implements Store.
func (s *PostgresStore) Get(ctx context.Context, key string) (int64, bool, error) {
	var ts int64
	err := s.pool.QueryRow(ctx,
		`SELECT last_fetched_at FROM `+PostgresTable+` WHERE key = $1`, key).Scan(&ts)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, wrapPgError("postgres select", err)
	}
	return ts, true, nil
}

// Delete implements Store.
func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM `+PostgresTable+` WHERE key = $1`, key); err != nil {
		return wrapPgError("postgres delete", err)
	}
	return nil
}

// Clear implements Store.
func (s *PostgresStore) Clear(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM `+PostgresTable); err != nil {
		return wrapPgError("postgres delete all", err)
	}
	return nil
}

// Entries implements Store.
func (s *PostgresStore) Entries(ctx context.Context) ([]Entry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT key, last_fetched_at FROM `+PostgresTable+` ORDER BY seq`)
	if err != nil {
		return nil, wrapPgError("postgres entries", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Key, &e.LastFetchedAt); err != nil {
			return nil, fmt.Errorf("scan ledger row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapPgError("postgres entries", err)
	}
	return entries, nil
}

// Ping implements Store.
func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres ping: %w", err)
	}
	return nil
}

func wrapPgError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UndefinedTable {
		return fmt.Errorf("%s: %w", op, ErrNotMigrated)
	}
	return fmt.Errorf("%s: %w", op, err)
}
