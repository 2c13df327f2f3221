package cache

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/Sternrassler/bookshelf-web/pkg/ledger"
	"github.com/Sternrassler/bookshelf-web/pkg/logging"
	"github.com/rs/zerolog"
)

// DefaultTimeout bounds a single origin request when no HTTP client is supplied.
const DefaultTimeout = 30 * time.Second

// Config holds the manager configuration.
type Config struct {
	// Origin is the backend API base URL (REQUIRED), e.g. "https://api.example.com".
	Origin string

	// HTTPClient performs probes and fetches. Defaults to a client with Timeout.
	HTTPClient *http.Client

	// Timeout for the default HTTP client.
	Timeout time.Duration
}

// FetchOptions customizes a managed fetch.
type FetchOptions struct {
	// Method defaults to GET.
	Method string

	// Header is the base header set. No-cache directives override it.
	Header http.Header

	// Body is sent as the request body.
	Body io.Reader
}

// Manager is the single path page renderers use to read origin data.
type Manager struct {
	httpClient *http.Client
	ledger     *ledger.Ledger
	oracle     *Oracle
	origin     string
	logger     zerolog.Logger
}

// NewManager creates a managed fetcher on top of l.
func NewManager(l *ledger.Ledger, cfg Config) (*Manager, error) {
	if l == nil {
		return nil, fmt.Errorf("ledger is required")
	}

	origin := NormalizeOrigin(cfg.Origin)
	if origin == "" {
		return nil, fmt.Errorf("origin is required")
	}
	u, err := url.Parse(origin)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("origin must be an absolute URL (got %q)", cfg.Origin)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Manager{
		httpClient: httpClient,
		ledger:     l,
		oracle:     NewOracle(httpClient, l, origin),
		origin:     origin,
		logger:     logging.NewLogger("cache-manager"),
	}, nil
}

// FetchManaged fetches rawURL with forced no-cache semantics and keeps the
// ledger in step:
//
//   - stale per the oracle: the key is invalidated before fetching
//   - 2xx: the key is recorded with the current time
//   - non-2xx: the response is returned, the key is not recorded
//   - transport failure: a *FetchFailure is returned, the key is not recorded
//
// There is no retry at this layer.
func (m *Manager) FetchManaged(ctx context.Context, rawURL string, opts *FetchOptions) (*http.Response, error) {
	key := rawURL
	if opts == nil {
		opts = &FetchOptions{}
	}

	startTime := time.Now()
	defer func() {
		FetchDuration.Observe(time.Since(startTime).Seconds())
	}()

	m.logger.Debug().
		Str("operation", "fetch_start").
		Str("key", key).
		Msg("Managed fetch started")

	// Step 1: Check freshness at the origin
	if m.oracle.NeedsRefresh(ctx, EndpointOf(m.origin, rawURL)) {
		m.logger.Debug().
			Str("operation", "database_update_detected").
			Str("key", key).
			Msg("Origin changed, invalidating ledger entry")

		// Step 2: Drop the stale entry before fetching
		if err := m.ledger.Invalidate(ctx, key); err != nil {
			m.logger.Warn().Err(err).Str("key", key).Msg("Failed to invalidate stale ledger entry")
		}
	}

	// Step 3: Build the no-cache request
	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, opts.Body)
	if err != nil {
		FetchTotal.WithLabelValues(outcomeTransport).Inc()
		return nil, &FetchFailure{URL: rawURL, Err: fmt.Errorf("create request: %w", err)}
	}
	mergeHeaders(req, opts.Header)

	m.logger.Debug().
		Str("operation", "fetching_fresh_data").
		Str("key", key).
		Str("method", method).
		Msg("Fetching fresh data")

	// Step 4: Execute
	resp, err := m.httpClient.Do(req)
	if err != nil {
		FetchTotal.WithLabelValues(outcomeTransport).Inc()
		m.logger.Error().
			Err(err).
			Str("operation", "fetch_exception").
			Str("key", key).
			Msg("Origin request failed")
		return nil, &FetchFailure{URL: rawURL, Err: err}
	}

	if !isOK(resp.StatusCode) {
		FetchTotal.WithLabelValues(outcomeUpstream).Inc()
		m.logger.Warn().
			Str("operation", "fetch_error").
			Str("key", key).
			Int("status", resp.StatusCode).
			Msg("Origin returned an error status")
		return resp, nil
	}

	// Step 5: Record success
	if err := m.ledger.RecordSuccess(ctx, key); err != nil {
		m.logger.Warn().Err(err).Str("key", key).Msg("Failed to record fetch in ledger")
	}
	FetchTotal.WithLabelValues(outcomeOK).Inc()

	m.logger.Debug().
		Str("operation", "fetch_success").
		Str("key", key).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(startTime)).
		Msg("Fetch succeeded")

	return resp, nil
}

// Get fetches an origin endpoint through FetchManaged.
func (m *Manager) Get(ctx context.Context, endpoint string) (*http.Response, error) {
	return m.FetchManaged(ctx, m.Key(endpoint), nil)
}

// Key returns the ledger key of an origin endpoint.
func (m *Manager) Key(endpoint string) string {
	return KeyFor(m.origin, endpoint)
}

// Origin returns the normalized origin base URL.
func (m *Manager) Origin() string {
	return m.origin
}

// Ledger returns the ledger the manager records into.
func (m *Manager) Ledger() *ledger.Ledger {
	return m.ledger
}

// Oracle returns the staleness oracle.
func (m *Manager) Oracle() *Oracle {
	return m.oracle
}

// SetHTTPClient sets a custom HTTP client for fetches and probes (for testing).
func (m *Manager) SetHTTPClient(client *http.Client) {
	m.httpClient = client
	m.oracle.httpClient = client
}
