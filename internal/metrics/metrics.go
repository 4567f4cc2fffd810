// Package metrics holds the process-wide prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DistributionRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "yieldengine_distribution_runs_total",
		Help: "Distribution runs by outcome (success, failed, empty, preview)",
	}, []string{"outcome"})

	PositionsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "yieldengine_positions_processed_total",
		Help: "Positions processed by distribution runs",
	}, []string{"outcome"})

	YieldDistributed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "yieldengine_yield_distributed_total",
		Help: "Sum of daily yield applied to fee balances",
	})

	WBCSends = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "yieldengine_wbc_sends_total",
		Help: "Treasury reward token sends by kind and outcome",
	}, []string{"kind", "outcome"})

	WBCValidations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "yieldengine_wbc_validations_total",
		Help: "Token-gated validations by operation and outcome",
	}, []string{"operation", "outcome"})

	PoolFetchFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "yieldengine_pool_fetch_failures_total",
		Help: "Pool APR/TVL fetches that fell back to zero",
	})

	DistributionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "yieldengine_distribution_duration_seconds",
		Help:    "Wall time of a distribution run",
		Buckets: []float64{0.5, 1, 5, 15, 30, 60, 300, 900, 1800, 3600},
	})

	WSClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "yieldengine_ws_clients",
		Help: "Connected websocket clients",
	})
)

// Outcome labels shared by the counters above.
const (
	OutcomeSuccess  = "success"
	OutcomeFailed   = "failed"
	OutcomeSkipped  = "skipped"
	OutcomeEmpty    = "empty"
	OutcomePreview  = "preview"
	OutcomeAllowed  = "allowed"
	OutcomeDenied   = "denied"
	OutcomeFailOpen = "fail_open"
)
