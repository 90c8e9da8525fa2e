// Package metrics exposes the bot's Prometheus instrumentation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	BarsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "bars_total", Help: "Completed price bars emitted by the feed"},
		[]string{"instrument"},
	)
	ReconnectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "feed_reconnects_total", Help: "Price stream reconnect attempts"},
	)
	OrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "orders_total", Help: "Risk-managed orders submitted"},
		[]string{"instrument", "side"},
	)
	TradesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "trades_total", Help: "Closed trades by exit reason"},
		[]string{"instrument", "reason"},
	)
	Equity = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "account_equity", Help: "Last fetched account equity"},
	)
	DrawdownPct = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "drawdown_pct", Help: "Current drawdown from peak equity"},
	)
	OptimizeRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "optimize_runs_total", Help: "Bandit re-optimization runs"},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(
		BarsTotal, ReconnectsTotal, OrdersTotal, TradesTotal,
		Equity, DrawdownPct, OptimizeRunsTotal,
	)
}

// Serve starts the /metrics endpoint in the background and returns the server.
func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
