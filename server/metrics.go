// metrics.go - Prometheus-Metriken des HTTP-Servers
// Enthaelt: Request-Zaehler, Latenz-Histogramm, Cache- und Modell-Zustand

package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vision_requests_total",
			Help: "Total requests by route and status code",
		},
		[]string{"route", "status"},
	)

	requestLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vision_request_duration_seconds",
			Help:    "Request latency by route",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"route"},
	)

	inferenceInflight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vision_inference_inflight",
			Help: "Inference calls currently holding a slot",
		},
	)

	captionSteps = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vision_caption_steps",
			Help:    "Decode steps per generated caption",
			Buckets: prometheus.LinearBuckets(1, 4, 10),
		},
	)

	captionCache = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vision_caption_cache_total",
			Help: "Caption cache lookups by result (hit, miss)",
		},
		[]string{"result"},
	)

	modelReady = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vision_model_ready",
			Help: "Whether a model is loaded (1=loaded, 0=not loaded)",
		},
		[]string{"model"},
	)
)
