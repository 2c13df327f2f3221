// Package prewarm re-fetches ledger keys in the background after they were
// invalidated, so the next page render finds a recorded fetch.
//
// Warming is best effort. Failures are collected in a Report and logged;
// they never become the caller's error.
//
// Example usage:
//
//	warmer := prewarm.New(manager, prewarm.DefaultConfig())
//	report := warmer.Warm(ctx, manager.Key(cache.BookListEndpoint))
//	if !report.OK() {
//	    // report.Failed() lists the URLs that could not be fetched
//	}
package prewarm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Sternrassler/bookshelf-web/pkg/cache"
	"github.com/Sternrassler/bookshelf-web/pkg/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Fetcher is the managed fetch the warmer drives. *cache.Manager implements it.
type Fetcher interface {
	FetchManaged(ctx context.Context, rawURL string, opts *cache.FetchOptions) (*http.Response, error)
}

// Config holds warmer configuration.
type Config struct {
	// MaxConcurrency is the maximum number of parallel fetches
	MaxConcurrency int
	// Timeout per fetch
	Timeout time.Duration
}

// DefaultConfig returns the default warmer configuration.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 4,
		Timeout:        15 * time.Second,
	}
}

// Result is the outcome of warming a single URL.
type Result struct {
	URL        string
	StatusCode int
	Err        error
	Duration   time.Duration
}

// OK reports whether the URL was fetched with a 2xx status.
func (r Result) OK() bool {
	return r.Err == nil
}

// MarshalJSON renders the error as a string.
func (r Result) MarshalJSON() ([]byte, error) {
	out := struct {
		URL        string `json:"url"`
		StatusCode int    `json:"statusCode,omitempty"`
		OK         bool   `json:"ok"`
		Error      string `json:"error,omitempty"`
		DurationMS int64  `json:"durationMs"`
	}{
		URL:        r.URL,
		StatusCode: r.StatusCode,
		OK:         r.OK(),
		DurationMS: r.Duration.Milliseconds(),
	}
	if r.Err != nil {
		out.Error = r.Err.Error()
	}
	return json.Marshal(out)
}

// Report collects the results of one Warm call, in request order.
type Report struct {
	Results []Result `json:"results"`
}

// OK reports whether every URL was warmed.
func (r Report) OK() bool {
	for _, res := range r.Results {
		if !res.OK() {
			return false
		}
	}
	return true
}

// Failed returns the results that did not succeed.
func (r Report) Failed() []Result {
	var failed []Result
	for _, res := range r.Results {
		if !res.OK() {
			failed = append(failed, res)
		}
	}
	return failed
}

var warmTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "bookshelf_prewarm_total",
		Help: "Total number of pre-warm fetches by result",
	},
	[]string{"result"}, // "ok", "error"
)

// Warmer fetches URLs in parallel through a Fetcher.
type Warmer struct {
	fetcher Fetcher
	config  Config
	logger  zerolog.Logger
}

// New creates a warmer.
func New(fetcher Fetcher, config Config) *Warmer {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 4
	}
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}

	return &Warmer{
		fetcher: fetcher,
		config:  config,
		logger:  logging.NewLogger("prewarm"),
	}
}

// Warm fetches every URL once. Duplicates are fetched once and reported once.
func (w *Warmer) Warm(ctx context.Context, urls ...string) Report {
	urls = dedupe(urls)
	if len(urls) == 0 {
		return Report{}
	}

	start := time.Now()
	results := make([]Result, len(urls))

	var g errgroup.Group
	g.SetLimit(w.config.MaxConcurrency)

	for i, rawURL := range urls {
		g.Go(func() error {
			results[i] = w.warmOne(ctx, rawURL)
			return nil
		})
	}
	_ = g.Wait() // warmOne never fails the group

	report := Report{Results: results}
	failed := len(report.Failed())

	event := w.logger.Info()
	if failed > 0 {
		event = w.logger.Warn()
	}
	event.
		Str("operation", "prewarm").
		Int("urls", len(urls)).
		Int("failed", failed).
		Dur("duration", time.Since(start)).
		Msg("Pre-warm complete")

	return report
}

func (w *Warmer) warmOne(ctx context.Context, rawURL string) Result {
	start := time.Now()
	result := Result{URL: rawURL}

	fetchCtx, cancel := context.WithTimeout(ctx, w.config.Timeout)
	defer cancel()

	resp, err := w.fetcher.FetchManaged(fetchCtx, rawURL, nil)
	result.Duration = time.Since(start)
	if err != nil {
		result.Err = err
		warmTotal.WithLabelValues("error").Inc()
		w.logger.Warn().Err(err).Str("url", rawURL).Msg("Pre-warm fetch failed")
		return result
	}
	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	result.StatusCode = resp.StatusCode
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		result.Err = fmt.Errorf("unexpected status %d", resp.StatusCode)
		warmTotal.WithLabelValues("error").Inc()
		w.logger.Warn().Str("url", rawURL).Int("status", resp.StatusCode).Msg("Pre-warm fetch returned error status")
		return result
	}

	warmTotal.WithLabelValues("ok").Inc()
	w.logger.Debug().Str("url", rawURL).Int("status", resp.StatusCode).Msg("Pre-warmed")
	return result
}

func dedupe(urls []string) []string {
	seen := make(map[string]struct{}, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}
