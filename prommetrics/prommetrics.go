// Package prommetrics provides Prometheus metrics for soundftp sessions.
package prommetrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector implements soundftp.MetricsCollector.
type Collector struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	transferBytes     *prometheus.CounterVec
	transferDuration  *prometheus.HistogramVec
}

// New registers the soundftp metrics on reg. A nil reg uses the default
// registerer.
func New(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Collector{
		operationsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "soundftp_operations_total",
				Help: "Total number of session operations",
			},
			[]string{"op", "success"},
		),
		operationDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "soundftp_operation_duration_seconds",
				Help:    "Session operation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"op"},
		),
		transferBytes: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "soundftp_transfer_bytes_total",
				Help: "Total bytes moved over data connections",
			},
			[]string{"direction"},
		),
		transferDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "soundftp_transfer_duration_seconds",
				Help:    "File transfer duration in seconds",
				Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
			},
			[]string{"direction"},
		),
	}
}

// RecordOperation records one session operation.
func (c *Collector) RecordOperation(op string, success bool, duration time.Duration) {
	c.operationsTotal.WithLabelValues(op, strconv.FormatBool(success)).Inc()
	c.operationDuration.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordTransfer records a completed transfer.
func (c *Collector) RecordTransfer(direction string, bytes int64, duration time.Duration) {
	c.transferBytes.WithLabelValues(direction).Add(float64(bytes))
	c.transferDuration.WithLabelValues(direction).Observe(duration.Seconds())
}

// Handler returns an HTTP handler exposing the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
