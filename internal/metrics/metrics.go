// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BacktestRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autoindex_backtest_runs_total",
			Help: "Backtest runs by final status",
		},
		[]string{"status"},
	)

	BacktestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "autoindex_backtest_duration_seconds",
			Help:    "Wall time of a single backtest run",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		},
	)

	OptimizerRuns = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "autoindex_optimizer_runs_total",
			Help: "Grid searches started",
		},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autoindex_http_requests_total",
			Help: "HTTP requests by route and status code",
		},
		[]string{"route", "code"},
	)
)
