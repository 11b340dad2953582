package kickback

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	salesRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kickback_sales_recorded_total",
		Help: "Sales handled by the ledger, by outcome.",
	}, []string{"outcome"})

	pointsAccrued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kickback_points_accrued_total",
		Help: "Points added to pending balances.",
	})

	earningDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kickback_earning_decisions_total",
		Help: "Admin decisions on earnings, by decision.",
	}, []string{"decision"})

	salesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kickback_sales_received_total",
		Help: "Sale events accepted by the intake, by channel.",
	}, []string{"channel"})
)
