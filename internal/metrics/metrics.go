// Package metrics defines prometheus metrics to expose
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "muse_api_request_count_total",
			Help: "Total number of generation requests processed",
		},
		[]string{"task", "status"},
	)

	TimeToFirstToken = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "muse_api_time_to_first_token_seconds",
			Help:    "Time to first streamed token in seconds",
			Buckets: []float64{.5, 1, 2.5, 5, 10, 15, 20, 25, 30, 40, 50, 75, 100},
		},
		[]string{"model"},
	)

	StreamEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "muse_api_stream_events_total",
			Help: "Normalized stream events relayed to clients",
		},
		[]string{"model"},
	)

	UpstreamErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "muse_api_upstream_error_count",
			Help: "Upstream failures by provider and error kind",
		},
		[]string{"upstream", "kind"},
	)

	AudioBytes = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "muse_api_audio_bytes",
			Help:    "Size of synthesized audio payloads in bytes",
			Buckets: []float64{1 << 10, 16 << 10, 64 << 10, 256 << 10, 1 << 20, 4 << 20},
		},
		[]string{"voice"},
	)

	ResponseCodes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "muse_api_status_code",
			Help: "Status Codes",
		},
		[]string{"path", "status_code"},
	)
)
