// Package metrics exposes Prometheus instrumentation for the sentinel
// supervisor. Metrics are registered in init() and served by Serve at
// /metrics in the Prometheus text exposition format.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	cyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sentinel_cycles_total",
			Help: "Supervisor reconciliation cycles completed",
		},
	)

	cycleErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sentinel_cycle_errors_total",
			Help: "Reconciliation cycles that failed before completing",
		},
	)

	ordersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_orders_total",
			Help: "Protective order actions by outcome",
		},
		[]string{"action"}, // placed|cancelled|failed
	)

	decisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_costing_decisions_total",
			Help: "Cost basis decisions by source",
		},
		[]string{"source"}, // Session|Session-Partial|Ledger|Position-UNSAFE|Deferred
	)

	trackedPositions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sentinel_tracked_positions",
			Help: "Net-long option positions currently tracked",
		},
	)

	lastTickUnix = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sentinel_last_tick_timestamp_seconds",
			Help: "Unix time of the most recent market data tick",
		},
	)
)

func init() {
	prometheus.MustRegister(cyclesTotal, cycleErrorsTotal)
	prometheus.MustRegister(ordersTotal, decisionsTotal)
	prometheus.MustRegister(trackedPositions, lastTickUnix)
}

func IncCycle()                 { cyclesTotal.Inc() }
func IncCycleError()            { cycleErrorsTotal.Inc() }
func IncOrder(action string)    { ordersTotal.WithLabelValues(action).Inc() }
func IncDecision(source string) { decisionsTotal.WithLabelValues(source).Inc() }
func SetTracked(n int)          { trackedPositions.Set(float64(n)) }
func ObserveTick(ts time.Time)  { lastTickUnix.Set(float64(ts.Unix())) }

// Serve runs the metrics HTTP listener until ctx is cancelled.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
