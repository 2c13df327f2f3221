package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Fetch outcomes.
const (
	outcomeOK        = "ok"
	outcomeUpstream  = "upstream_error"
	outcomeTransport = "transport_error"
)

var (
	// FetchTotal tracks managed fetches by outcome
	FetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookshelf_fetch_total",
			Help: "Total number of managed origin fetches",
		},
		[]string{"outcome"}, // "ok", "upstream_error", "transport_error"
	)

	// FetchDuration tracks managed fetch latency
	FetchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bookshelf_fetch_duration_seconds",
			Help:    "Managed origin fetch duration in seconds, including the freshness probe",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
	)

	// OracleChecks tracks staleness decisions
	OracleChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookshelf_oracle_checks_total",
			Help: "Total number of origin freshness probes by result",
		},
		[]string{"result"}, // "stale", "fresh", "probe_failed"
	)
)
