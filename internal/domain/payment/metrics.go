package payment

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var reconciliationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "reconciliations_total",
		Help: "Number of payment reconciliations by outcome.",
	},
	[]string{"outcome"},
)

const (
	outcomeMatched   = "matched"
	outcomeActivated = "activated"
	outcomeUnmatched = "unmatched"
	outcomeFailed    = "failed"
)
