// Package telemetry implements the metrics/telemetry adapter:
// Prometheus counters, gauges, and latency histograms exposed over
// HTTP on a dedicated scrape port, the same net/http.Server lifecycle
// the dashboard API server uses (listen, background Serve, graceful
// Shutdown).
package telemetry

import (
	"context"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every counter, gauge, and histogram the orchestrator
// updates as it runs. All series are registered against a private
// registry rather than the global default, so multiple engines in the
// same test binary don't collide on registration.
type Metrics struct {
	registry *prometheus.Registry

	Ticks        prometheus.Counter
	BookUpdates  prometheus.Counter
	Signals      *prometheus.CounterVec
	Orders       prometheus.Counter
	Fills        prometheus.Counter
	Errors       *prometheus.CounterVec
	Reconnects   prometheus.Counter
	ChannelDrops prometheus.Counter

	Equity          prometheus.Gauge
	RealizedPnL     prometheus.Gauge
	UnrealizedPnL   prometheus.Gauge
	DailyPnL        prometheus.Gauge
	OpenPositions   prometheus.Gauge
	Exposure        prometheus.Gauge
	DrawdownPct     prometheus.Gauge
	Volatility      prometheus.Gauge
	ActiveMarkets   prometheus.Gauge

	PriceFeedLatency  prometheus.Histogram
	BookUpdateLatency prometheus.Histogram
	SignalLatency     prometheus.Histogram
	OrderLatency      prometheus.Histogram
}

// New builds a Metrics set registered against its own registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	latencyBuckets := []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000}

	return &Metrics{
		registry: reg,

		Ticks:        factory.NewCounter(prometheus.CounterOpts{Name: "tradeengine_ticks_total", Help: "Spot price ticks observed."}),
		BookUpdates:  factory.NewCounter(prometheus.CounterOpts{Name: "tradeengine_book_updates_total", Help: "Order book snapshot/delta events applied."}),
		Signals:      factory.NewCounterVec(prometheus.CounterOpts{Name: "tradeengine_signals_total", Help: "Signals emitted by detector."}, []string{"detector"}),
		Orders:       factory.NewCounter(prometheus.CounterOpts{Name: "tradeengine_orders_total", Help: "Orders submitted to the executor."}),
		Fills:        factory.NewCounter(prometheus.CounterOpts{Name: "tradeengine_fills_total", Help: "Orders filled by the executor."}),
		Errors:       factory.NewCounterVec(prometheus.CounterOpts{Name: "tradeengine_errors_total", Help: "Errors by subsystem."}, []string{"subsystem"}),
		Reconnects:   factory.NewCounter(prometheus.CounterOpts{Name: "tradeengine_reconnects_total", Help: "Transport reconnect attempts."}),
		ChannelDrops: factory.NewCounter(prometheus.CounterOpts{Name: "tradeengine_channel_drops_total", Help: "Feed channel closures requiring a restart."}),

		Equity:        factory.NewGauge(prometheus.GaugeOpts{Name: "tradeengine_equity_usdc", Help: "Current account equity."}),
		RealizedPnL:   factory.NewGauge(prometheus.GaugeOpts{Name: "tradeengine_realized_pnl_usdc", Help: "Realized PnL to date."}),
		UnrealizedPnL: factory.NewGauge(prometheus.GaugeOpts{Name: "tradeengine_unrealized_pnl_usdc", Help: "Unrealized PnL across open positions."}),
		DailyPnL:      factory.NewGauge(prometheus.GaugeOpts{Name: "tradeengine_daily_pnl_usdc", Help: "PnL realized since the last daily reset."}),
		OpenPositions: factory.NewGauge(prometheus.GaugeOpts{Name: "tradeengine_open_positions", Help: "Number of open positions."}),
		Exposure:      factory.NewGauge(prometheus.GaugeOpts{Name: "tradeengine_exposure_usdc", Help: "Total notional exposure across open positions."}),
		DrawdownPct:   factory.NewGauge(prometheus.GaugeOpts{Name: "tradeengine_drawdown_pct", Help: "Current drawdown from peak equity."}),
		Volatility:    factory.NewGauge(prometheus.GaugeOpts{Name: "tradeengine_volatility", Help: "Latest annualized realized volatility estimate."}),
		ActiveMarkets: factory.NewGauge(prometheus.GaugeOpts{Name: "tradeengine_active_markets", Help: "Number of markets currently in the trading window."}),

		PriceFeedLatency:  factory.NewHistogram(prometheus.HistogramOpts{Name: "tradeengine_price_feed_latency_ms", Help: "Spot tick processing latency.", Buckets: latencyBuckets}),
		BookUpdateLatency: factory.NewHistogram(prometheus.HistogramOpts{Name: "tradeengine_book_update_latency_ms", Help: "Depth update processing latency.", Buckets: latencyBuckets}),
		SignalLatency:     factory.NewHistogram(prometheus.HistogramOpts{Name: "tradeengine_signal_latency_ms", Help: "Detector evaluation latency.", Buckets: latencyBuckets}),
		OrderLatency:      factory.NewHistogram(prometheus.HistogramOpts{Name: "tradeengine_order_latency_ms", Help: "Order submission round-trip latency.", Buckets: latencyBuckets}),
	}
}

// ObserveLatency records a duration, in milliseconds, against h.
func ObserveLatency(h prometheus.Histogram, since time.Time) {
	h.Observe(float64(time.Since(since).Microseconds()) / 1000.0)
}

// Server exposes a Metrics set over HTTP at /metrics.
type Server struct {
	httpServer *http.Server
}

// NewServer builds a scrape endpoint bound to addr (e.g. ":9090").
func NewServer(addr string, m *Metrics) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Start begins serving the scrape endpoint in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	log.Printf("telemetry server listening on %s", s.httpServer.Addr)
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Printf("telemetry server: %v", err)
		}
	}()
	return nil
}

// Shutdown gracefully stops the scrape endpoint.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
