// Package metrics exposes the bot's operational counters over Prometheus.
package metrics

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	OrdersSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kis_orders_submitted_total",
		Help: "Orders accepted by the venue, by ticker and side.",
	}, []string{"ticker", "side"})

	OrdersRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kis_orders_rejected_total",
		Help: "Order submissions rejected by the vendor.",
	})

	FillNotices = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kis_fill_notices_total",
		Help: "Execution notices applied, by outcome.",
	}, []string{"outcome"})

	PushReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kis_push_reconnects_total",
		Help: "Websocket reconnect attempts on the notice channel.",
	})

	TickErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kis_tick_errors_total",
		Help: "Per-ticker evaluation failures.",
	}, []string{"ticker"})

	StopLossTriggers = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kis_stop_loss_triggers_total",
		Help: "Positions liquidated by the stop-loss check.",
	})
)

// Serve exposes /metrics on addr in the background. Listen failures are
// logged, not fatal: metrics are auxiliary to trading.
func Serve(addr string, log *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn("metrics server stopped", "addr", addr, "error", err)
		}
	}()
}
