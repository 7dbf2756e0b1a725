// Package metrics registers the Prometheus collectors served at /metrics
// on the API server when metrics.enable is set (spec §6 metrics.enable).
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds the collectors for ingestion, reorg handling, finality
// tracking, and cross-chain correlation. No code in this module sets or
// increments them, so /metrics reports their zero values.
type Registry struct {
	registry *prometheus.Registry

	BlocksIngested    *prometheus.CounterVec
	EventsIngested    *prometheus.CounterVec
	IngestLatency     *prometheus.HistogramVec
	PipelineState     *prometheus.GaugeVec
	CursorHeight      *prometheus.GaugeVec
	ReorgsDetected    *prometheus.CounterVec
	ReorgDepth        *prometheus.HistogramVec
	FinalizedHeight   *prometheus.GaugeVec
	DivergentChains   *prometheus.GaugeVec
	MessagesByStatus  *prometheus.GaugeVec
	ChangeFeedDropped *prometheus.CounterVec
}

// New builds a Registry with all collectors registered against a fresh
// prometheus.Registry (not the global DefaultRegisterer, so tests can
// construct more than one without panicking on duplicate registration).
func New() *Registry {
	reg := prometheus.NewRegistry()
	r := &Registry{
		registry: reg,
		BlocksIngested: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "chainindexer", Name: "blocks_ingested_total",
			Help: "Total blocks committed per chain.",
		}, []string{"chain"}),
		EventsIngested: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "chainindexer", Name: "events_ingested_total",
			Help: "Total events committed per chain.",
		}, []string{"chain"}),
		IngestLatency: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "chainindexer", Name: "ingest_tick_seconds",
			Help:    "Duration of one pipeline tick.",
			Buckets: prometheus.DefBuckets,
		}, []string{"chain"}),
		PipelineState: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "chainindexer", Name: "pipeline_state",
			Help: "Pipeline state as an enum (0=idle,1=fetching,2=committing,3=recovering,4=halted).",
		}, []string{"chain"}),
		CursorHeight: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "chainindexer", Name: "cursor_height",
			Help: "Latest processed block height per chain.",
		}, []string{"chain"}),
		ReorgsDetected: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "chainindexer", Name: "reorgs_detected_total",
			Help: "Reorganizations detected per chain.",
		}, []string{"chain"}),
		ReorgDepth: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "chainindexer", Name: "reorg_depth_blocks",
			Help:    "Depth of the common ancestor walk per detected reorg.",
			Buckets: []float64{1, 2, 4, 8, 16, 32, 64, 128, 256, 512, 1024},
		}, []string{"chain"}),
		FinalizedHeight: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "chainindexer", Name: "finalized_height",
			Help: "Latest finalized height per chain.",
		}, []string{"chain"}),
		DivergentChains: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "chainindexer", Name: "chain_divergent",
			Help: "1 if fast and rich stores disagree for this chain, else 0.",
		}, []string{"chain"}),
		MessagesByStatus: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "chainindexer", Name: "cross_chain_messages",
			Help: "Count of cross-chain messages by lifecycle status.",
		}, []string{"status"}),
		ChangeFeedDropped: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "chainindexer", Name: "changefeed_dropped_total",
			Help: "Events dropped because a subscriber's buffer was full.",
		}, []string{"chain"}),
	}
	return r
}

// Handler returns the http.Handler serving this registry in the
// Prometheus text exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// PipelineStateValue maps a pipeline.State string to the gauge's enum
// encoding; kept here instead of in package pipeline to avoid a
// metrics->pipeline import for a single string switch.
func PipelineStateValue(state string) float64 {
	switch state {
	case "idle":
		return 0
	case "fetching":
		return 1
	case "committing":
		return 2
	case "recovering":
		return 3
	case "halted":
		return 4
	default:
		return -1
	}
}
