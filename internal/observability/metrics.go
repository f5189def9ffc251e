package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// stageBuckets cover stage runtimes from seconds to ten minutes.
var stageBuckets = []float64{1, 5, 10, 30, 60, 120, 300, 600}

const dedupCapacity = 5000

// Metrics owns the process-wide registry. Production creates one per process;
// tests create their own so observations never leak between cases.
type Metrics struct {
	registry *prometheus.Registry

	JobsTotal       *prometheus.GaugeVec
	JobsRunning     prometheus.Gauge
	JobsStageActive *prometheus.GaugeVec

	APIStageDuration *prometheus.HistogramVec
	APIStageFailures *prometheus.CounterVec

	StageInProgress *prometheus.GaugeVec
	StageFailures   *prometheus.CounterVec
	StageDuration   *prometheus.HistogramVec

	dedup *dedupCache
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		JobsTotal: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "jobs_total",
			Help: "Jobs by status.",
		}, []string{"status"}),
		JobsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "jobs_running",
			Help: "Jobs currently running.",
		}),
		JobsStageActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "jobs_stage_active",
			Help: "Running jobs by stage.",
		}, []string{"stage"}),
		APIStageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "api_stage_duration_seconds",
			Help:    "Stage durations sampled from recent job history.",
			Buckets: stageBuckets,
		}, []string{"stage"}),
		APIStageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "api_stage_failures_total",
			Help: "Stage failures sampled from recent job history.",
		}, []string{"stage"}),
		StageInProgress: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "job_stage_in_progress",
			Help: "Stage executions in progress on this worker.",
		}, []string{"stage"}),
		StageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "job_stage_failures_total",
			Help: "Stage executions that ended in error.",
		}, []string{"stage"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "job_stage_duration_seconds",
			Help:    "Stage execution durations on this worker.",
			Buckets: stageBuckets,
		}, []string{"stage"}),
		dedup: newDedupCache(dedupCapacity),
	}
	m.registry.MustRegister(
		m.JobsTotal,
		m.JobsRunning,
		m.JobsStageActive,
		m.APIStageDuration,
		m.APIStageFailures,
		m.StageInProgress,
		m.StageFailures,
		m.StageDuration,
	)
	return m
}

// Handler serves the text exposition for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// MarkStageEvent reports whether the (job, stage, updatedAt) triple is new.
// Only first sightings may feed histogram and counter observations, so
// repeated /metrics scrapes do not double count history entries.
func (m *Metrics) MarkStageEvent(jobID, stage, updatedAt string) bool {
	return m.dedup.mark(jobID + "|" + stage + "|" + updatedAt)
}

// ResetForTests empties the dedup cache. Production code never calls this.
func (m *Metrics) ResetForTests() {
	m.dedup.reset()
}
