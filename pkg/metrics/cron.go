package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CronJobMetrics tracks scheduled job runs. lastSuccess lets alerts catch an
// expiry sweep that has silently stopped completing.
type CronJobMetrics struct {
	runs        *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	lastSuccess *prometheus.GaugeVec
	skipped     prometheus.Counter
}

// NewCronJobMetrics registers the cron metrics on reg. A nil reg yields a
// collector that records nothing.
func NewCronJobMetrics(reg prometheus.Registerer) *CronJobMetrics {
	if reg == nil {
		return nil
	}
	m := &CronJobMetrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rewards_cron_job_runs_total",
			Help: "Cron job runs, by job and outcome.",
		}, []string{"job", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rewards_cron_job_duration_seconds",
			Help:    "Cron job run time.",
			Buckets: []float64{.1, .5, 1, 5, 15, 60, 300, 900},
		}, []string{"job"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rewards_cron_job_last_success_timestamp_seconds",
			Help: "Unix time of each job's last successful run.",
		}, []string{"job"}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rewards_cron_cycles_skipped_total",
			Help: "Cycles skipped because another instance held the cron lock.",
		}),
	}
	reg.MustRegister(m.runs, m.duration, m.lastSuccess, m.skipped)
	return m
}

// ObserveRun records one finished run of job. A nil err counts as success.
func (m *CronJobMetrics) ObserveRun(job string, took time.Duration, err error, now time.Time) {
	if m == nil {
		return
	}
	job = normalizeLabel(job)
	m.duration.WithLabelValues(job).Observe(took.Seconds())
	if err != nil {
		m.runs.WithLabelValues(job, "failure").Inc()
		return
	}
	m.runs.WithLabelValues(job, "success").Inc()
	m.lastSuccess.WithLabelValues(job).Set(float64(now.Unix()))
}

// CycleSkipped counts a cycle lost to another instance's lock.
func (m *CronJobMetrics) CycleSkipped() {
	if m == nil {
		return
	}
	m.skipped.Inc()
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
