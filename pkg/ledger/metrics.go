package ledger

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ledgerKeys is the key count observed by the last Stats call.
	ledgerKeys = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bookshelf_ledger_keys",
			Help: "Number of keys in the cache ledger at the last stats read",
		},
	)

	ledgerRecords = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bookshelf_ledger_records_total",
			Help: "Total number of successful fetches recorded in the ledger",
		},
	)

	ledgerInvalidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookshelf_ledger_invalidations_total",
			Help: "Total number of ledger invalidations by scope",
		},
		[]string{"scope"}, // "key", "all"
	)

	ledgerErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookshelf_ledger_errors_total",
			Help: "Total number of ledger store errors by operation",
		},
		[]string{"operation"},
	)
)
