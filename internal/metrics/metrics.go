// Package metrics exposes the Prometheus series the bot updates during
// operation:
//   - bot_orders_total{symbol,side}      - entry orders filled
//   - bot_trade_rejections_total{reason} - trades rejected before submission
//   - bot_retry_attempts_total           - failed exchange calls that were retried
//   - bot_stop_upgrades_total{stage}     - protective stop escalations (break_even|trailing)
//   - bot_tp_cleanups_total              - take-profits cancelled after a trailing fill
//   - bot_active_stop_guards             - currently monitored trades (gauge)
//
// Registered in init() and served at /metrics by cmd/bot.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	OrdersPlaced = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_orders_total",
			Help: "Entry orders placed and confirmed filled",
		},
		[]string{"symbol", "side"},
	)

	TradeRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_trade_rejections_total",
			Help: "Trades rejected before any order was submitted",
		},
		[]string{"reason"},
	)

	RetryAttempts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bot_retry_attempts_total",
			Help: "Failed exchange calls absorbed by the retry budget",
		},
	)

	StopUpgrades = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_stop_upgrades_total",
			Help: "Protective stop escalations by stage",
		},
		[]string{"stage"},
	)

	TakeProfitCleanups = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bot_tp_cleanups_total",
			Help: "Redundant take-profit orders cancelled after a trailing stop filled",
		},
	)

	ActiveStopGuards = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bot_active_stop_guards",
			Help: "Trades currently watched by a protective-stop monitor",
		},
	)
)

func init() {
	prometheus.MustRegister(
		OrdersPlaced,
		TradeRejections,
		RetryAttempts,
		StopUpgrades,
		TakeProfitCleanups,
		ActiveStopGuards,
	)
}

// Handler serves the registered series in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
