// Package ledger records which origin endpoints have been fetched and when.
//
// The ledger is the source of truth the staleness oracle compares origin
// timestamps against. A key is present if and only if it had a successful
// fetch since it was last invalidated; invalidation removes the key entirely.
//
// A Ledger is an explicit service object: build one at process start and
// pass it to every consumer. With the default MemoryStore each process holds
// an independent ledger; RedisStore and PostgresStore let several processes
// share one.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/Sternrassler/bookshelf-web/pkg/logging"
	"github.com/rs/zerolog"
)

// Stats is a point-in-time snapshot of the ledger.
type Stats struct {
	// TotalCacheKeys is the number of known keys.
	TotalCacheKeys int `json:"totalCacheKeys"`

	// CacheKeys lists known keys in first-insertion order.
	CacheKeys []string `json:"cacheKeys"`

	// LastFetchTimestamps maps each key to its last successful fetch (ms since epoch).
	LastFetchTimestamps map[string]int64 `json:"lastFetchTimestamps"`

	// OldestCache is the smallest timestamp, nil when the ledger is empty.
	OldestCache *int64 `json:"oldestCache"`

	// NewestCache is the largest timestamp, nil when the ledger is empty.
	NewestCache *int64 `json:"newestCache"`
}

// Ledger tracks the last successful fetch time per key.
type Ledger struct {
	store  Store
	now    func() time.Time
	logger zerolog.Logger
}

// New creates a ledger on top of store.
func New(store Store) *Ledger {
	if store == nil {
		panic("ledger store cannot be nil")
	}
	return &Ledger{
		store:  store,
		now:    time.Now,
		logger: logging.NewLogger("ledger"),
	}
}

// NewMemory creates a ledger backed by a fresh MemoryStore.
func NewMemory() *Ledger {
	return New(NewMemoryStore())
}

// SetClock replaces the time source (for testing).
func (l *Ledger) SetClock(now func() time.Time) {
	l.now = now
}

// Store returns the underlying store.
func (l *Ledger) Store() Store {
	return l.store
}

// RecordSuccess marks key as fetched now.
func (l *Ledger) RecordSuccess(ctx context.Context, key string) error {
	ts := l.now().UnixMilli()
	if err := l.store.Put(ctx, key, ts); err != nil {
		ledgerErrors.WithLabelValues("record").Inc()
		return fmt.Errorf("record %s: %w", key, err)
	}

	ledgerRecords.Inc()
	l.logger.Debug().
		Str("operation", "record_success").
		Str("key", key).
		Int64("fetched_at", ts).
		Msg("Ledger entry recorded")
	return nil
}

// Invalidate removes key from the ledger. Unknown keys are ignored.
func (l *Ledger) Invalidate(ctx context.Context, key string) error {
	if err := l.store.Delete(ctx, key); err != nil {
		ledgerErrors.WithLabelValues("invalidate").Inc()
		return fmt.Errorf("invalidate %s: %w", key, err)
	}

	ledgerInvalidations.WithLabelValues("key").Inc()
	l.logger.Debug().
		Str("operation", "clearing_cache").
		Str("key", key).
		Msg("Ledger entry invalidated")
	return nil
}

// InvalidateAll removes every key.
func (l *Ledger) InvalidateAll(ctx context.Context) error {
	if err := l.store.Clear(ctx); err != nil {
		ledgerErrors.WithLabelValues("invalidate_all").Inc()
		return fmt.Errorf("invalidate all: %w", err)
	}

	ledgerInvalidations.WithLabelValues("all").Inc()
	ledgerKeys.Set(0)
	l.logger.Debug().
		Str("operation", "clearing_all_caches").
		Str("key", "all").
		Msg("Ledger cleared")
	return nil
}

// LastFetched returns the last successful fetch time of key in ms.
func (l *Ledger) LastFetched(ctx context.Context, key string) (int64, bool, error) {
	ts, ok, err := l.store.Get(ctx, key)
	if err != nil {
		ledgerErrors.WithLabelValues("get").Inc()
		return 0, false, fmt.Errorf("last fetched %s: %w", key, err)
	}
	return ts, ok, nil
}

// Stats returns a snapshot of the ledger.
func (l *Ledger) Stats(ctx context.Context) (Stats, error) {
	entries, err := l.store.Entries(ctx)
	if err != nil {
		ledgerErrors.WithLabelValues("stats").Inc()
		return Stats{}, fmt.Errorf("stats: %w", err)
	}

	stats := statsFromEntries(entries)
	ledgerKeys.Set(float64(stats.TotalCacheKeys))

	l.logger.Debug().
		Str("operation", "cache_stats").
		Int("total_cache_keys", stats.TotalCacheKeys).
		Msg("Ledger stats computed")
	return stats, nil
}

// Ping reports whether the backing store is reachable.
func (l *Ledger) Ping(ctx context.Context) error {
	return l.store.Ping(ctx)
}

func statsFromEntries(entries []Entry) Stats {
	stats := Stats{
		TotalCacheKeys:      len(entries),
		CacheKeys:           make([]string, 0, len(entries)),
		LastFetchTimestamps: make(map[string]int64, len(entries)),
	}

	for i, e := range entries {
		stats.CacheKeys = append(stats.CacheKeys, e.Key)
		stats.LastFetchTimestamps[e.Key] = e.LastFetchedAt

		if i == 0 {
			oldest, newest := e.LastFetchedAt, e.LastFetchedAt
			stats.OldestCache, stats.NewestCache = &oldest, &newest
			continue
		}
		if e.LastFetchedAt < *stats.OldestCache {
			*stats.OldestCache = e.LastFetchedAt
		}
		if e.LastFetchedAt > *stats.NewestCache {
			*stats.NewestCache = e.LastFetchedAt
		}
	}

	return stats
}
