package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Commit results recorded by Metrics.
const (
	CommitResultCommitted = "committed"
	CommitResultEmpty     = "empty"
	CommitResultFailed    = "failed"
)

// Metrics is the Prometheus instrumentation the engine emits about itself.
// A nil *Metrics records nothing.
type Metrics struct {
	events         *prometheus.CounterVec
	counted        *prometheus.CounterVec
	commitAttempts prometheus.Counter
	commits        *prometheus.CounterVec
}

// NewMetrics creates the engine metrics and registers them with reg.
// A nil reg leaves the metrics unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		events: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "retrievalstat_events_total",
			Help: "Change events processed, by classification outcome",
		}, []string{"outcome"}),
		counted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "retrievalstat_counted_total",
			Help: "Status transitions in committed batches, by counted status",
		}, []string{"status"}),
		commitAttempts: factory.NewCounter(prometheus.CounterOpts{
			Name: "retrievalstat_commit_attempts_total",
			Help: "Store submissions, including retries",
		}),
		commits: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "retrievalstat_commits_total",
			Help: "Batches by commit result",
		}, []string{"result"}),
	}
}

func (m *Metrics) observeClassification(c Classification) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(string(c.Outcome)).Inc()
}

// observeCounted records the counted transitions of a committed batch.
func (m *Metrics) observeCounted(cls []Classification) {
	if m == nil {
		return
	}
	for _, c := range cls {
		if c.Outcome == OutcomeCounted {
			m.counted.WithLabelValues(string(c.Counted)).Inc()
		}
	}
}

func (m *Metrics) observeAttempt() {
	if m == nil {
		return
	}
	m.commitAttempts.Inc()
}

func (m *Metrics) observeCommit(result string) {
	if m == nil {
		return
	}
	m.commits.WithLabelValues(result).Inc()
}
