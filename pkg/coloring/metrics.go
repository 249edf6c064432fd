package coloring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the Prometheus instruments of the engine. A nil *Metrics is a
// valid no-op.
type Metrics struct {
	iterations  prometheus.Counter
	proposals   *prometheus.CounterVec
	conflicts   prometheus.Gauge
	runs        *prometheus.CounterVec
	runDuration prometheus.Histogram
}

// NewMetrics registers the engine instruments on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		// iterations counts completed PROPOSE/EVALUATE/DECIDE rounds
		iterations: f.NewCounter(prometheus.CounterOpts{
			Name: "mcmc_coloring_iterations_total",
			Help: "Total MCMC iterations executed across all runs",
		}),
		// proposals counts candidate colorings by outcome
		proposals: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mcmc_coloring_proposals_total",
			Help: "Candidate colorings by acceptance outcome",
		}, []string{"outcome"}),
		conflicts: f.NewGauge(prometheus.GaugeOpts{
			Name: "mcmc_coloring_current_conflicts",
			Help: "Conflict count of the current coloring of the most recent run",
		}),
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mcmc_coloring_runs_total",
			Help: "Finished runs by termination reason",
		}, []string{"reason"}),
		runDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "mcmc_coloring_run_duration_seconds",
			Help:    "Wall time of a coloring run",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10), // 1ms to ~4min
		}),
	}
}

func (m *Metrics) observeIteration(accepted bool, conflicts uint64) {
	if m == nil {
		return
	}
	m.iterations.Inc()
	if accepted {
		m.proposals.WithLabelValues("accepted").Inc()
	} else {
		m.proposals.WithLabelValues("rejected").Inc()
	}
	m.conflicts.Set(float64(conflicts))
}

func (m *Metrics) observeRun(reason Reason, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(string(reason)).Inc()
	m.runDuration.Observe(elapsed.Seconds())
}
