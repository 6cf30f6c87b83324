// Package metrics defines the prometheus collectors of the executor and the
// ledger daemon.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Executor counts group outcomes.
type Executor struct {
	Submitted          prometheus.Counter
	Rejected           prometheus.Counter
	TimedOut           prometheus.Counter
	ConfirmationRounds prometheus.Histogram
}

// NewExecutor builds the executor collectors and registers them on reg when
// it is not nil.
func NewExecutor(reg prometheus.Registerer) *Executor {
	m := &Executor{
		Submitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "royalty_groups_submitted_total",
			Help: "Atomic groups submitted to the ledger.",
		}),
		Rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "royalty_groups_rejected_total",
			Help: "Atomic groups the ledger rejected.",
		}),
		TimedOut: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "royalty_groups_timed_out_total",
			Help: "Atomic groups not confirmed within their round budget.",
		}),
		ConfirmationRounds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "royalty_confirmation_rounds",
			Help:    "Rounds between suggested params and confirmation.",
			Buckets: []float64{1, 2, 3, 5, 8, 13, 21},
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Submitted, m.Rejected, m.TimedOut, m.ConfirmationRounds)
	}
	return m
}

// Ledgerd tracks the ledger daemon.
type Ledgerd struct {
	LastRound   prometheus.Gauge
	RPCRequests *prometheus.CounterVec
}

func NewLedgerd(reg prometheus.Registerer) *Ledgerd {
	m := &Ledgerd{
		LastRound: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ledgerd_last_round",
			Help: "Last closed ledger round.",
		}),
		RPCRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledgerd_rpc_requests_total",
			Help: "JSON-RPC requests by method and outcome.",
		}, []string{"method", "outcome"}),
	}
	if reg != nil {
		reg.MustRegister(m.LastRound, m.RPCRequests)
	}
	return m
}
