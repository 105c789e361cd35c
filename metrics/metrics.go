package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	TradesExecuted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "govr_trades_executed_total",
			Help: "Total number of executed trade legs (by action kind).",
		},
		[]string{"action"},
	)

	Switches = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "govr_instrument_switches_total",
			Help: "Total number of completed instrument rotations.",
		},
	)

	StopsTriggered = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "govr_stops_triggered_total",
			Help: "Total number of trailing-stop liquidations.",
		},
	)

	PortfolioValue = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "govr_portfolio_value",
			Help: "Mark-to-market portfolio value at the last evaluation step.",
		},
	)

	CostsPaid = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "govr_transaction_costs_total",
			Help: "Cumulative transaction costs charged across all legs.",
		},
	)
)

func init() {
	prometheus.MustRegister(TradesExecuted, Switches, StopsTriggered, PortfolioValue, CostsPaid)
}
