package swarm

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts pipeline outcomes and loop depths.
type Metrics struct {
	Runs              *prometheus.CounterVec
	RunDuration       prometheus.Histogram
	ResearchRounds    prometheus.Histogram
	RemediationCycles prometheus.Histogram
	DebateRounds      prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Runs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "docser_runs_total",
			Help: "Completed pipeline runs by terminal status.",
		}, []string{"status"}),
		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "docser_run_duration_seconds",
			Help:    "Wall time of one pipeline run.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		ResearchRounds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "docser_research_rounds",
			Help:    "Execution rounds per run.",
			Buckets: prometheus.LinearBuckets(1, 1, 10),
		}),
		RemediationCycles: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "docser_remediation_cycles",
			Help:    "Incremental and restart cycles per run.",
			Buckets: prometheus.LinearBuckets(0, 1, 6),
		}),
		DebateRounds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "docser_debate_rounds",
			Help:    "Reviewer and arbiter debate round-trips per run.",
			Buckets: prometheus.LinearBuckets(0, 1, 4),
		}),
	}
}

func (m *Metrics) observe(res *RunResult) {
	if m == nil {
		return
	}
	m.Runs.WithLabelValues(string(res.Status)).Inc()
	m.RunDuration.Observe(res.CompletedAt.Sub(res.StartedAt).Seconds())
	m.ResearchRounds.Observe(float64(res.ResearchRounds))
	m.RemediationCycles.Observe(float64(res.RemediationCycles))
	m.DebateRounds.Observe(float64(res.DebateRounds))
}
