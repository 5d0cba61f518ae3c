package application

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ingestsCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tide",
		Subsystem: "reconciler",
		Name:      "ingests_total",
		Help:      "Number of history ingests applied, per account.",
	}, []string{"account"})

	reorgsCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tide",
		Subsystem: "reconciler",
		Name:      "reorgs_total",
		Help:      "Number of reorg signals observed, per account.",
	}, []string{"account"})

	evictionsCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tide",
		Subsystem: "reconciler",
		Name:      "evictions_total",
		Help:      "Number of transactions evicted from script histories, per account.",
	}, []string{"account"})

	unblindFailuresCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tide",
		Subsystem: "reconciler",
		Name:      "unblind_failures_total",
		Help:      "Number of wallet outputs recorded as unspendable because they could not be unblinded, per account.",
	}, []string{"account"})
)
