package trade

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	transitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cardswap_trade_transitions_total",
		Help: "Trade operations processed, labeled by operation and outcome",
	}, []string{"op", "outcome"})

	settlementFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cardswap_settlement_failures_total",
		Help: "Completed listings whose reward settlement failed after all retries",
	})

	historyFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cardswap_history_failures_total",
		Help: "History entries that could not be appended after a committed transition",
	})
)

func observe(op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = KindOf(err).String()
	}
	transitionsTotal.WithLabelValues(op, outcome).Inc()
}
