// Package metrics provides the Prometheus registry and HTTP metrics for the
// bookshelf front end. Domain metrics are defined in their own packages
// (cache, ledger, prewarm, catalog) to avoid circular dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

var (
	// HTTPRequestsTotal tracks served requests by route, method and status
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookshelf_http_requests_total",
			Help: "Total number of HTTP requests served",
		},
		[]string{"route", "method", "status"},
	)

	// HTTPRequestDuration tracks request latency by route
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bookshelf_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	// WebhookEventsTotal tracks webhook events by resource kind and result
	WebhookEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookshelf_webhook_events_total",
			Help: "Total number of cache invalidation webhook events",
		},
		[]string{"resource", "result"}, // result: "ok", "unauthorized", "bad_request", "error"
	)
)

// Handler returns the /metrics handler for the default gatherer.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ResourceLabel collapses free-form webhook resources into a bounded label set.
func ResourceLabel(resource string) string {
	switch resource {
	case "book", "books":
		return "book"
	case "author", "authors":
		return "author"
	default:
		return "other"
	}
}

// Metrics Documentation
//
// Managed Fetch Metrics (pkg/cache):
//   - bookshelf_fetch_total{outcome} (Counter): Managed fetches (ok, upstream_error, transport_error)
//   - bookshelf_fetch_duration_seconds (Histogram): Managed fetch duration including the probe
//   - bookshelf_oracle_checks_total{result} (Counter): Freshness probes (stale, fresh, probe_failed)
//
// Ledger Metrics (pkg/ledger):
//   - bookshelf_ledger_keys (Gauge): Keys in the ledger at the last stats read
//   - bookshelf_ledger_records_total (Counter): Successful fetches recorded
//   - bookshelf_ledger_invalidations_total{scope} (Counter): Invalidations (key, all)
//   - bookshelf_ledger_errors_total{operation} (Counter): Store errors by operation
//
// Pre-warm Metrics (pkg/prewarm):
//   - bookshelf_prewarm_total{result} (Counter): Pre-warm fetches (ok, error)
//
// Catalog Metrics (pkg/catalog):
//   - bookshelf_catalog_retries_total{error_class} (Counter): Retry attempts by error class
//   - bookshelf_catalog_retry_exhausted_total{error_class} (Counter): Requests that exhausted retries
//
// HTTP Metrics (pkg/metrics):
//   - bookshelf_http_requests_total{route, method, status} (Counter)
//   - bookshelf_http_request_duration_seconds{route} (Histogram)
//   - bookshelf_webhook_events_total{resource, result} (Counter)
//
// Example Prometheus Queries:
//
//   # Share of renders that found the origin changed
//   sum(rate(bookshelf_oracle_checks_total{result="stale"}[5m])) /
//   sum(rate(bookshelf_oracle_checks_total[5m]))
//
//   # Origin error rate
//   sum(rate(bookshelf_fetch_total{outcome!="ok"}[5m])) / sum(rate(bookshelf_fetch_total[5m]))
//
//   # P95 managed fetch latency
//   histogram_quantile(0.95, rate(bookshelf_fetch_duration_seconds_bucket[5m]))
//
//   # Rejected webhooks
//   rate(bookshelf_webhook_events_total{result="unauthorized"}[5m])
