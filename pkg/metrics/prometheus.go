package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	ticksTotal   *prometheus.CounterVec
	cursor       *prometheus.GaugeVec
	alertCount   *prometheus.GaugeVec
	controlTotal *prometheus.CounterVec
	errorsTotal  *prometheus.CounterVec
	latency      *prometheus.HistogramVec
}

// New registers the replay metrics on the default registry.
func New() *Recorder {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers the replay metrics on reg. Tests pass a fresh
// prometheus.NewRegistry() so repeated construction does not collide.
func NewWithRegisterer(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		ticksTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "replay_ticks_total",
				Help: "Total number of playback ticks",
			},
			[]string{"dataset"},
		),
		cursor: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "replay_cursor_index",
				Help: "Current playback cursor position",
			},
			[]string{"dataset"},
		),
		alertCount: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "replay_cumulative_alerts",
				Help: "Records flagged is_anomaly up to the cursor",
			},
			[]string{"dataset"},
		),
		controlTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "replay_controls_total",
				Help: "Playback control actions applied",
			},
			[]string{"action"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "replay_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "replay_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordTick counts a tick and moves the cursor gauge.
func (r *Recorder) RecordTick(dataset string, index int) {
	r.ticksTotal.WithLabelValues(dataset).Inc()
	r.cursor.WithLabelValues(dataset).Set(float64(index))
}

func (r *Recorder) RecordAlertCount(dataset string, n int) {
	r.alertCount.WithLabelValues(dataset).Set(float64(n))
}

func (r *Recorder) RecordControl(action string) {
	r.controlTotal.WithLabelValues(action).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// Nop discards every measurement.
type Nop struct{}

func (Nop) RecordTick(string, int)        {}
func (Nop) RecordAlertCount(string, int)  {}
func (Nop) RecordControl(string)          {}
func (Nop) RecordError(string)            {}
func (Nop) RecordLatency(string, float64) {}
