package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Package-level instruments shared across the pipeline. Registered on the
// default registry; the HTTP endpoint exposes them via promhttp.
var (
	WriterQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "listingpulse_writer_queue_depth",
		Help: "Current number of requests waiting in the DB writer queue.",
	})

	WriterDrops = promauto.NewCounter(prometheus.CounterOpts{
		Name: "listingpulse_writer_drops_total",
		Help: "Normal-priority write requests dropped because the queue was full.",
	})

	WriterBatchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "listingpulse_writer_batch_size",
		Help:    "Statements committed per writer transaction.",
		Buckets: []float64{1, 5, 10, 25, 50, 100},
	})

	WSReconnects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "listingpulse_ws_reconnects_total",
		Help: "WebSocket reconnect attempts per exchange.",
	}, []string{"exchange"})

	WSMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "listingpulse_ws_messages_total",
		Help: "Decoded WebSocket messages per exchange.",
	}, []string{"exchange"})

	GateDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "listingpulse_gate_decisions_total",
		Help: "Gate decisions by alert level and go/no-go.",
	}, []string{"level", "proceed"})

	FXResolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "listingpulse_fx_resolutions_total",
		Help: "FX rate resolutions by winning source.",
	}, []string{"source"})

	CatalogPollFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "listingpulse_catalog_poll_failures_total",
		Help: "Catalog poll failures per exchange.",
	}, []string{"exchange"})

	NewListings = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "listingpulse_new_listings_total",
		Help: "New listings detected per exchange.",
	}, []string{"exchange"})

	AlertsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "listingpulse_alerts_total",
		Help: "Alerts routed by level.",
	}, []string{"level"})

	AlertLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "listingpulse_alert_latency_seconds",
		Help:    "Detect-to-alert latency for new listings.",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	})
)
