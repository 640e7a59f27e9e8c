// Package metrics provides Prometheus metrics for the mispricing detector.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects and exposes detector metrics on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	// Discovery metrics
	MarketsDiscovered *prometheus.GaugeVec
	PairsResolved     *prometheus.GaugeVec
	ConnectorUp       *prometheus.GaugeVec

	// Signal metrics
	SignalsUpserted *prometheus.CounterVec
	SignalEdge      *prometheus.HistogramVec

	// Order book metrics
	TopUpserts *prometheus.CounterVec

	// Paper trading metrics
	OpenPositions *prometheus.GaugeVec
	PaperEquity   *prometheus.GaugeVec

	// Loop metrics
	LoopRuns     *prometheus.CounterVec
	LoopDuration *prometheus.HistogramVec

	// Stream metrics
	StreamSubscribers *prometheus.GaugeVec
}

// New creates a metrics collector with its own registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		MarketsDiscovered: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sportsarb_markets_discovered",
				Help: "Winner markets returned by the last discovery, per venue",
			},
			[]string{"venue", "source"},
		),
		PairsResolved: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sportsarb_pairs_resolved",
				Help: "Cross-venue pairs by binding status after the last discovery",
			},
			[]string{"status"},
		),
		ConnectorUp: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sportsarb_connector_up",
				Help: "Whether the connector's last fetch succeeded (1=yes, 0=no)",
			},
			[]string{"connector"},
		),

		SignalsUpserted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sportsarb_signals_upserted_total",
				Help: "Total signal rows written by the signal loop",
			},
			[]string{"buy_venue"},
		),
		SignalEdge: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sportsarb_signal_edge_after_costs",
				Help:    "Net edge of emitted signals",
				Buckets: []float64{0.005, 0.01, 0.02, 0.03, 0.05, 0.08, 0.12, 0.20},
			},
			[]string{"buy_venue"},
		),

		TopUpserts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sportsarb_orderbook_upserts_total",
				Help: "Top-of-book rows written, per venue and transport",
			},
			[]string{"venue", "transport"},
		),

		OpenPositions: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sportsarb_paper_positions",
				Help: "Paper positions by status",
			},
			[]string{"status"},
		),
		PaperEquity: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sportsarb_paper_equity_usd",
				Help: "Realized plus unrealized paper PnL",
			},
			[]string{},
		),

		LoopRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sportsarb_loop_runs_total",
				Help: "Loop iterations by outcome",
			},
			[]string{"loop", "status"},
		),
		LoopDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sportsarb_loop_duration_seconds",
				Help:    "Loop iteration duration",
				Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
			},
			[]string{"loop"},
		),

		StreamSubscribers: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sportsarb_stream_subscribers",
				Help: "Connected dashboard websocket clients",
			},
			[]string{},
		),
	}

	m.registerAll()
	return m
}

func (m *Metrics) registerAll() {
	m.registry.MustRegister(
		m.MarketsDiscovered,
		m.PairsResolved,
		m.ConnectorUp,
		m.SignalsUpserted,
		m.SignalEdge,
		m.TopUpserts,
		m.OpenPositions,
		m.PaperEquity,
		m.LoopRuns,
		m.LoopDuration,
		m.StreamSubscribers,
	)
}

// Registry returns the prometheus registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// --- Helper methods for recording metrics ---

// RecordDiscovery records one venue's discovery result.
func (m *Metrics) RecordDiscovery(venue, source string, markets int, ok bool) {
	m.MarketsDiscovered.WithLabelValues(venue, source).Set(float64(markets))
	up := 0.0
	if ok {
		up = 1
	}
	m.ConnectorUp.WithLabelValues(source).Set(up)
}

// RecordPairs records the binding-status breakdown of the last resolution.
func (m *Metrics) RecordPairs(byStatus map[string]int) {
	for status, n := range byStatus {
		m.PairsResolved.WithLabelValues(status).Set(float64(n))
	}
}

// RecordSignal records one upserted signal.
func (m *Metrics) RecordSignal(buyVenue string, edgeAfterCosts float64) {
	m.SignalsUpserted.WithLabelValues(buyVenue).Inc()
	m.SignalEdge.WithLabelValues(buyVenue).Observe(edgeAfterCosts)
}

// RecordTopUpsert records a written top-of-book row.
func (m *Metrics) RecordTopUpsert(venue, transport string) {
	m.TopUpserts.WithLabelValues(venue, transport).Inc()
}

// UpdatePaper updates position counts and equity.
func (m *Metrics) UpdatePaper(open, closed int, equity float64) {
	m.OpenPositions.WithLabelValues("OPEN").Set(float64(open))
	m.OpenPositions.WithLabelValues("CLOSED").Set(float64(closed))
	m.PaperEquity.WithLabelValues().Set(equity)
}

// RecordLoop records one loop iteration.
func (m *Metrics) RecordLoop(loop, status string, durationSec float64) {
	m.LoopRuns.WithLabelValues(loop, status).Inc()
	m.LoopDuration.WithLabelValues(loop).Observe(durationSec)
}

// UpdateStreamSubscribers updates the connected client count.
func (m *Metrics) UpdateStreamSubscribers(n int) {
	m.StreamSubscribers.WithLabelValues().Set(float64(n))
}

var (
	defaultMetrics *Metrics
	once           sync.Once
)

// Default returns the shared global instance.
func Default() *Metrics {
	once.Do(func() {
		defaultMetrics = New()
	})
	return defaultMetrics
}
