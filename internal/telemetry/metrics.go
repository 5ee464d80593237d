package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Стадии dispatch для метрики ошибок.
const (
	StageClaim   = "claim"
	StagePublish = "publish"
	StageRelease = "release"
	StageUpdate  = "update"
)

// Metrics — Prometheus метрики synchronizer'а.
type Metrics struct {
	Selected      *prometheus.CounterVec
	Dispatched    *prometheus.CounterVec
	Skipped       *prometheus.CounterVec
	Failures      *prometheus.CounterVec
	SelectErrors  *prometheus.CounterVec
	PassDuration  *prometheus.HistogramVec
	LastPassEnded *prometheus.GaugeVec
}

// NewMetrics регистрирует метрики в reg.
// Для процесса используется prometheus.DefaultRegisterer, в тестах — prometheus.NewRegistry().
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		Selected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "synchronizer_selected_total",
			Help: "Synchronizations selected for dispatch.",
		}, []string{"mode"}),
		Dispatched: f.NewCounterVec(prometheus.CounterOpts{
			Name: "synchronizer_dispatched_total",
			Help: "Synchronizations published to the queue and marked queued.",
		}, []string{"mode"}),
		Skipped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "synchronizer_skipped_total",
			Help: "Selected synchronizations that were no longer eligible at claim time.",
		}, []string{"mode"}),
		Failures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "synchronizer_dispatch_failures_total",
			Help: "Per-record dispatch failures by stage.",
		}, []string{"mode", "stage"}),
		SelectErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "synchronizer_select_errors_total",
			Help: "Passes whose selection query failed.",
		}, []string{"mode"}),
		PassDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "synchronizer_pass_duration_seconds",
			Help:    "Duration of a selection plus dispatch pass.",
			Buckets: prometheus.DefBuckets,
		}, []string{"mode"}),
		LastPassEnded: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "synchronizer_last_pass_timestamp_seconds",
			Help: "Unix time the last pass finished.",
		}, []string{"mode"}),
	}
}

// ObservePass записывает длительность и время окончания прохода.
func (m *Metrics) ObservePass(mode string, started time.Time) {
	if m == nil {
		return
	}
	m.PassDuration.WithLabelValues(mode).Observe(time.Since(started).Seconds())
	m.LastPassEnded.WithLabelValues(mode).SetToCurrentTime()
}
