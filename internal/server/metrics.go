package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"quizsync/internal/clock"
	"quizsync/internal/game"
	"quizsync/internal/wshub"
)

// metricsHandler exposes the cadence and occupancy gauges. Everything is
// read from the live components; no counters are kept here.
func metricsHandler(hub *wshub.Hub, core *game.Core, ck *clock.Clock) http.Handler {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "quizsync_endpoints",
			Help: "Live websocket endpoints.",
		}, func() float64 { return float64(hub.EndpointCount()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "quizsync_players",
			Help: "Registered players.",
		}, func() float64 { return float64(core.Registry().Count()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "quizsync_secs_remaining",
			Help: "Seconds until the next round starts.",
		}, func() float64 { return float64(core.SecsRemaining()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "quizsync_tick_drift_ms",
			Help: "Signed offset of the last clock reading from the whole second.",
		}, func() float64 { return float64(ck.DriftMillis()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "quizsync_ticks_total",
			Help: "Clock ticks processed.",
		}, func() float64 { return float64(core.TicksTotal()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "quizsync_rounds_total",
			Help: "Rounds started.",
		}, func() float64 { return float64(core.RoundsTotal()) }),
	)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
