// Package observability defines the prometheus instrumentation for the
// decision pipeline. Collectors live on a private registry exposed via
// the status server, never the global default registry.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles all pipeline collectors. Methods are nil-receiver
// safe so instrumentation can be left unwired in tests.
type Metrics struct {
	registry *prometheus.Registry

	framesProcessed *prometheus.CounterVec
	decisions       *prometheus.CounterVec
	marksWritten    *prometheus.CounterVec
	violations      *prometheus.CounterVec
	oracleLatency   *prometheus.HistogramVec
	activeTracks    *prometheus.GaugeVec
}

// NewMetrics creates the collector set on a fresh registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		framesProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "classwatch_frames_processed_total",
			Help: "Frames that entered the decision pipeline.",
		}, []string{"camera_id"}),
		decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "classwatch_decisions_total",
			Help: "Decision cycles by resulting status.",
		}, []string{"camera_id", "status"}),
		marksWritten: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "classwatch_attendance_marks_total",
			Help: "Attendance records written, by attendance status.",
		}, []string{"camera_id", "status"}),
		violations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "classwatch_exam_violations_total",
			Help: "Exam violations recorded, by severity.",
		}, []string{"camera_id", "severity"}),
		oracleLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "classwatch_oracle_latency_seconds",
			Help:    "Latency of inference oracle calls.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"oracle"}),
		activeTracks: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "classwatch_active_tracks",
			Help: "Live identity tracks per camera.",
		}, []string{"camera_id"}),
	}
}

// Registry returns the registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveFrame(cameraID string) {
	if m == nil {
		return
	}
	m.framesProcessed.WithLabelValues(cameraID).Inc()
}

func (m *Metrics) ObserveDecision(cameraID, status string) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(cameraID, status).Inc()
}

func (m *Metrics) ObserveMark(cameraID, status string) {
	if m == nil {
		return
	}
	m.marksWritten.WithLabelValues(cameraID, status).Inc()
}

func (m *Metrics) ObserveViolation(cameraID, severity string) {
	if m == nil {
		return
	}
	m.violations.WithLabelValues(cameraID, severity).Inc()
}

// ObserveOracle records one oracle call duration. oracle is one of
// "face-detect", "embed", "match" or "object-detect".
func (m *Metrics) ObserveOracle(oracle string, d time.Duration) {
	if m == nil {
		return
	}
	m.oracleLatency.WithLabelValues(oracle).Observe(d.Seconds())
}

func (m *Metrics) SetActiveTracks(cameraID string, n int) {
	if m == nil {
		return
	}
	m.activeTracks.WithLabelValues(cameraID).Set(float64(n))
}
