package query

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_query_cache_hits_total",
			Help: "Queries served from fresh cached data",
		},
		[]string{"key"},
	)

	cacheMissesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_query_cache_misses_total",
			Help: "Queries that had to fetch",
		},
		[]string{"key"},
	)

	fetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_query_fetches_total",
			Help: "Fetch attempts by outcome, retries included",
		},
		[]string{"key", "outcome"},
	)

	cacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "storefront_query_cache_entries",
			Help: "Entries currently held by the query cache",
		},
	)
)
