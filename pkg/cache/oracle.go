package cache

import (
	"context"
	"net/http"
	"time"

	"github.com/Sternrassler/bookshelf-web/pkg/ledger"
	"github.com/Sternrassler/bookshelf-web/pkg/logging"
	"github.com/rs/zerolog"
)

// Oracle decides whether an endpoint changed at the origin since the ledger
// last recorded a successful fetch of it.
type Oracle struct {
	httpClient *http.Client
	ledger     *ledger.Ledger
	origin     string
	now        func() time.Time
	logger     zerolog.Logger
}

// NewOracle creates an oracle probing origin with httpClient.
func NewOracle(httpClient *http.Client, l *ledger.Ledger, origin string) *Oracle {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Oracle{
		httpClient: httpClient,
		ledger:     l,
		origin:     NormalizeOrigin(origin),
		now:        time.Now,
		logger:     logging.NewLogger("oracle"),
	}
}

// NeedsRefresh probes origin+endpoint+"/last-updated" and reports whether
// the origin's Last-Modified is strictly newer than the ledger timestamp of
// origin+endpoint. Any probe failure returns true.
func (o *Oracle) NeedsRefresh(ctx context.Context, endpoint string) bool {
	probeURL := o.origin + endpoint + LastUpdatedSuffix

	o.logger.Debug().
		Str("operation", "checking_database_updates").
		Str("endpoint", endpoint).
		Msg("Probing origin for updates")

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, probeURL, nil)
	if err != nil {
		return o.probeFailed(endpoint, err, 0)
	}
	ApplyNoCacheHeaders(req)

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return o.probeFailed(endpoint, err, 0)
	}
	resp.Body.Close()

	if !isOK(resp.StatusCode) {
		return o.probeFailed(endpoint, nil, resp.StatusCode)
	}

	serverTime, hasLastModified := serverTimestamp(resp.Header, o.now())
	serverTS := serverTime.UnixMilli()

	cachedTS, _, err := o.ledger.LastFetched(ctx, KeyFor(o.origin, endpoint))
	if err != nil {
		// Unknown ledger state counts as never fetched.
		o.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("Ledger read failed during freshness check")
		cachedTS = 0
	}

	needsUpdate := serverTS > cachedTS
	if needsUpdate {
		OracleChecks.WithLabelValues("stale").Inc()
	} else {
		OracleChecks.WithLabelValues("fresh").Inc()
	}

	o.logger.Debug().
		Str("operation", "database_update_check").
		Str("endpoint", endpoint).
		Int64("server_timestamp", serverTS).
		Int64("cached_timestamp", cachedTS).
		Bool("has_last_modified", hasLastModified).
		Bool("needs_update", needsUpdate).
		Msg("Freshness check complete")

	return needsUpdate
}

func (o *Oracle) probeFailed(endpoint string, err error, status int) bool {
	OracleChecks.WithLabelValues("probe_failed").Inc()

	event := o.logger.Debug().
		Str("operation", "database_update_check_error").
		Str("endpoint", endpoint)
	if err != nil {
		event = event.Err(err)
	}
	if status != 0 {
		event = event.Int("status", status)
	}
	event.Msg("Freshness probe failed, assuming stale")
	return true
}
