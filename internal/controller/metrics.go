package controller

import "github.com/prometheus/client_golang/prometheus"

var (
	generationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chatd",
			Name:      "generations_total",
			Help:      "Generate requests by outcome",
		},
		[]string{"outcome"},
	)

	loadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chatd",
			Name:      "loads_total",
			Help:      "Load requests by outcome",
		},
		[]string{"outcome"},
	)

	ttftSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "chatd",
			Name:      "ttft_seconds",
			Help:      "Time to first generated token",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		},
	)

	tokensPerSecond = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "chatd",
			Name:      "tokens_per_second",
			Help:      "Steady-state decode rate of the last completed generation",
		},
	)

	warmupSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "chatd",
			Name:      "warmup_seconds",
			Help:      "Duration of the warm-up run performed by load",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		},
	)
)

func init() {
	prometheus.MustRegister(generationsTotal, loadsTotal, ttftSeconds, tokensPerSecond, warmupSeconds)
}

// Outcome labels.
const (
	outcomeComplete    = "complete"
	outcomeInterrupted = "interrupted"
	outcomeError       = "error"
	outcomeBusy        = "busy"
	outcomeReady       = "ready"
)
