// Package metrics registers the Prometheus series the bot updates while
// running. They are served from /metrics on the ops listener.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	steps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_engine_steps_total",
			Help: "Engine passes by resulting session state",
		},
		[]string{"symbol", "state"},
	)

	transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_state_transitions_total",
			Help: "Session state transitions",
		},
		[]string{"symbol", "from", "to"},
	)

	trades = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_trades_total",
			Help: "Trades counted by result (open|win|loss)",
		},
		[]string{"symbol", "result"},
	)

	realizedPnL = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bot_realized_pnl_sum",
			Help: "Cumulative realized PnL in account currency",
		},
		[]string{"symbol"},
	)

	stepErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_engine_step_errors_total",
			Help: "Engine passes that returned an error",
		},
		[]string{"symbol"},
	)

	stepDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bot_engine_step_duration_seconds",
			Help:    "Engine pass duration",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(steps, transitions, trades, realizedPnL, stepErrors, stepDuration)
}

// Step records one engine pass and its resulting state.
func Step(symbol, state string, seconds float64) {
	steps.WithLabelValues(symbol, state).Inc()
	stepDuration.Observe(seconds)
}

// StepError records a failed engine pass.
func StepError(symbol string) {
	stepErrors.WithLabelValues(symbol).Inc()
}

// Transition records a session state change.
func Transition(symbol, from, to string) {
	transitions.WithLabelValues(symbol, from, to).Inc()
}

// TradeOpened records a filled entry.
func TradeOpened(symbol string) {
	trades.WithLabelValues(symbol, "open").Inc()
}

// TradeClosed records a settled trade and its realized PnL.
func TradeClosed(symbol string, pnl float64) {
	result := "win"
	if pnl < 0 {
		result = "loss"
	}
	trades.WithLabelValues(symbol, result).Inc()
	realizedPnL.WithLabelValues(symbol).Add(pnl)
}
