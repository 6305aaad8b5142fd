package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FetchFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docs_mirror_fetch_failed_total",
			Help: "Total number of terminally failed fetch operations",
		},
		[]string{"kind"},
	)

	FetchCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docs_mirror_fetch_count_total",
			Help: "Total number of fetch attempts against the origin",
		},
		[]string{"kind"},
	)

	RateLimitWaits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "docs_mirror_rate_limit_waits_total",
			Help: "Total number of sleeps forced by origin rate-limit signals",
		},
	)

	SyncDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "docs_mirror_sync_duration_seconds",
			Help:    "End-to-end sync duration in seconds",
			Buckets: []float64{1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
	)

	LastSyncStart = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "docs_mirror_last_sync_start_timestamp",
			Help: "Unix timestamp of when the last sync started",
		},
	)

	LastSyncEnd = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "docs_mirror_last_sync_end_timestamp",
			Help: "Unix timestamp of when the last sync ended",
		},
	)
)
