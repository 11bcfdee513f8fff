package core

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"romekv/pkg/domain"
)

// PrometheusMetrics exports engine measurements as Prometheus collectors.
type PrometheusMetrics struct {
	records    *prometheus.CounterVec
	operations *prometheus.HistogramVec
	loads      *prometheus.CounterVec
}

// NewPrometheusMetrics creates the collectors and registers them with reg.
// A nil registerer leaves them unregistered.
func NewPrometheusMetrics(reg prometheus.Registerer) (*PrometheusMetrics, error) {
	m := &PrometheusMetrics{
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "romekv",
			Name:      "records_total",
			Help:      "Records handled by save calls, by type and terminal state.",
		}, []string{"type", "state"}),
		operations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "romekv",
			Name:      "operation_seconds",
			Help:      "Latency of engine operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation", "result"}),
		loads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "romekv",
			Name:      "driver_loads_total",
			Help:      "Driver reads issued while materializing lazy references.",
		}, []string{"type"}),
	}
	if reg != nil {
		for _, c := range []prometheus.Collector{m.records, m.operations, m.loads} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

// Observe implements MetricsRecorder.
func (m *PrometheusMetrics) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	result := "error"
	if success {
		result = "success"
	}
	m.operations.WithLabelValues(operation, result).Observe(duration.Seconds())
}

// RecordState implements MetricsRecorder.
func (m *PrometheusMetrics) RecordState(typ string, state domain.RecordState) {
	m.records.WithLabelValues(typ, string(state)).Inc()
}

// DriverLoad implements MetricsRecorder.
func (m *PrometheusMetrics) DriverLoad(typ string) {
	m.loads.WithLabelValues(typ).Inc()
}
