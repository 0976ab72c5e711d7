package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PlaysStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mps_plays_started_total",
		Help: "Play sessions created at first byte request.",
	})

	PlaysFinalized = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mps_plays_finalized_total",
		Help: "Play sessions finalized as valid, by reward outcome code.",
	}, []string{"code"})

	SettledEntries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mps_settled_entries_total",
		Help: "Reward ledger entries reaching a terminal settlement status.",
	}, []string{"status"})

	LedgerSubmitErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mps_ledger_submit_errors_total",
		Help: "Failed or timed-out ledger transaction submissions.",
	})
)
