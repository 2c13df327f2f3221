// Package panel is the operator view of the cache ledger: a periodically
// refreshed stats snapshot plus clear and force-refresh actions.
package panel

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Sternrassler/bookshelf-web/pkg/invalidation"
	"github.com/Sternrassler/bookshelf-web/pkg/ledger"
	"github.com/Sternrassler/bookshelf-web/pkg/logging"
	"github.com/rs/zerolog"
)

// DefaultInterval is how often Run refreshes the snapshot.
const DefaultInterval = 30 * time.Second

// Source is what the panel drives. *invalidation.Service implements it.
type Source interface {
	Stats(ctx context.Context) (ledger.Stats, error)
	Clear(ctx context.Context, req invalidation.ClearRequest) (invalidation.ClearResult, error)
	ForceRefresh(ctx context.Context, req invalidation.RefreshRequest) (invalidation.RefreshResult, error)
}

// Config holds panel configuration.
type Config struct {
	// Interval between automatic refreshes. Defaults to DefaultInterval.
	Interval time.Duration

	// Origin is replaced by "..." when keys are displayed.
	Origin string
}

// KeyView is one ledger key as displayed.
type KeyView struct {
	Key           string `json:"key"`
	Display       string `json:"display"`
	LastFetchedAt int64  `json:"lastFetchedAt"`
	Age           string `json:"age"`
}

// TimeView is a timestamp with its display forms.
type TimeView struct {
	UnixMilli int64  `json:"unixMilli"`
	Formatted string `json:"formatted"`
	Age       string `json:"age"`
}

// View is a point-in-time rendering of the panel.
type View struct {
	TotalCacheKeys int        `json:"totalCacheKeys"`
	Keys           []KeyView  `json:"keys"`
	Oldest         *TimeView  `json:"oldest"`
	Newest         *TimeView  `json:"newest"`
	Clearing       bool       `json:"clearing"`
	LastRefresh    *time.Time `json:"lastRefresh"`
	Error          string     `json:"error,omitempty"`
	AutoRefresh    string     `json:"autoRefresh"`
}

// Panel holds the latest stats snapshot. Safe for concurrent use.
type Panel struct {
	source   Source
	interval time.Duration
	origin   string
	now      func() time.Time
	logger   zerolog.Logger

	mu          sync.RWMutex
	stats       *ledger.Stats
	lastRefresh time.Time
	lastErr     error
	clearing    bool
}

// New creates a panel.
func New(source Source, cfg Config) *Panel {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	return &Panel{
		source:   source,
		interval: cfg.Interval,
		origin:   strings.TrimRight(cfg.Origin, "/"),
		now:      time.Now,
		logger:   logging.NewLogger("panel"),
	}
}

// SetClock replaces the time source (for testing).
func (p *Panel) SetClock(now func() time.Time) {
	p.now = now
}

// Run refreshes once, then every interval until ctx is done.
func (p *Panel) Run(ctx context.Context) {
	p.Refresh(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Debug().Msg("Panel refresh loop stopped")
			return
		case <-ticker.C:
			p.Refresh(ctx)
		}
	}
}

// Refresh reloads the stats snapshot. A failed read keeps the previous
// snapshot and records the error.
func (p *Panel) Refresh(ctx context.Context) error {
	stats, err := p.source.Stats(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()

	if err != nil {
		p.lastErr = err
		p.logger.Error().Err(err).Str("operation", "refresh_stats").Msg("Error getting cache stats")
		return err
	}

	p.stats = &stats
	p.lastErr = nil
	p.lastRefresh = p.now()
	p.logger.Debug().
		Str("operation", "refresh_stats").
		Int("total_cache_keys", stats.TotalCacheKeys).
		Msg("Cache stats updated")
	return nil
}

// Clear removes one key and refreshes the snapshot.
func (p *Panel) Clear(ctx context.Context, key string) error {
	if key == "" {
		return fmt.Errorf("%w: key is required", invalidation.ErrBadRequest)
	}
	return p.run(ctx, "clear", func() error {
		_, err := p.source.Clear(ctx, invalidation.ClearRequest{Key: key})
		return err
	})
}

// ClearAll empties the ledger and refreshes the snapshot.
func (p *Panel) ClearAll(ctx context.Context) error {
	return p.run(ctx, "clear_all", func() error {
		_, err := p.source.Clear(ctx, invalidation.ClearRequest{All: true})
		return err
	})
}

// ForceRefresh empties the ledger. The caller reloads the pages afterwards.
func (p *Panel) ForceRefresh(ctx context.Context) error {
	return p.run(ctx, "force_refresh", func() error {
		_, err := p.source.ForceRefresh(ctx, invalidation.RefreshRequest{})
		return err
	})
}

// run marks the panel busy while op runs, then refreshes the stats.
func (p *Panel) run(ctx context.Context, name string, op func() error) error {
	p.setClearing(true)
	defer p.setClearing(false)

	if err := op(); err != nil {
		p.logger.Error().Err(err).Str("operation", name).Msg("Panel operation failed")
		return err
	}
	p.logger.Info().Str("operation", name).Msg("Panel operation completed")

	return p.Refresh(ctx)
}

func (p *Panel) setClearing(v bool) {
	p.mu.Lock()
	p.clearing = v
	p.mu.Unlock()
}

// Snapshot renders the current state.
func (p *Panel) Snapshot() View {
	p.mu.RLock()
	defer p.mu.RUnlock()

	now := p.now()
	view := View{
		Keys:        []KeyView{},
		Clearing:    p.clearing,
		AutoRefresh: p.interval.String(),
	}
	if p.lastErr != nil {
		view.Error = "Failed to get cache statistics"
	}
	if !p.lastRefresh.IsZero() {
		t := p.lastRefresh
		view.LastRefresh = &t
	}
	if p.stats == nil {
		return view
	}

	view.TotalCacheKeys = p.stats.TotalCacheKeys
	for _, key := range p.stats.CacheKeys {
		ts := p.stats.LastFetchTimestamps[key]
		view.Keys = append(view.Keys, KeyView{
			Key:           key,
			Display:       p.displayKey(key),
			LastFetchedAt: ts,
			Age:           TimeSince(now, ts),
		})
	}
	if p.stats.OldestCache != nil {
		view.Oldest = timeView(now, *p.stats.OldestCache)
	}
	if p.stats.NewestCache != nil {
		view.Newest = timeView(now, *p.stats.NewestCache)
	}
	return view
}

func (p *Panel) displayKey(key string) string {
	if p.origin == "" {
		return key
	}
	return strings.Replace(key, p.origin, "...", 1)
}

func timeView(now time.Time, ts int64) *TimeView {
	return &TimeView{
		UnixMilli: ts,
		Formatted: time.UnixMilli(ts).Format("2006-01-02 15:04:05"),
		Age:       TimeSince(now, ts),
	}
}

// TimeSince formats the time between ts (unix ms) and now as "Xm Ys ago",
// or "Ys ago" under a minute.
func TimeSince(now time.Time, ts int64) string {
	diff := now.UnixMilli() - ts
	if diff < 0 {
		diff = 0
	}
	minutes := diff / 60000
	seconds := (diff % 60000) / 1000

	if minutes > 0 {
		return fmt.Sprintf("%dm %ds ago", minutes, seconds)
	}
	return fmt.Sprintf("%ds ago", seconds)
}
