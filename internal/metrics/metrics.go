package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels remote calls that produced a usable result.
	OutcomeSuccess = "success"
	// OutcomeError labels remote calls that failed (transport, service or validation).
	OutcomeError = "error"
)

// Remote operation labels.
const (
	OpDeployments = "deployments"
	OpScore       = "score"
	OpFeedback    = "feedback"
)

var (
	remoteCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "drug_advisor",
			Name:      "remote_calls_total",
			Help:      "Calls to the deployment environment service, partitioned by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)

	remoteCallSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "drug_advisor",
			Name:      "remote_call_seconds",
			Help:      "Latency of calls to the deployment environment service in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30},
		},
		[]string{"operation"},
	)

	discardedResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "drug_advisor",
			Name:      "discarded_results_total",
			Help:      "Completed remote calls whose result was dropped because the workflow moved on.",
		},
		[]string{"operation"},
	)

	activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "drug_advisor",
			Name:      "active_sessions",
			Help:      "Number of live scoring workflows.",
		},
	)

	deploymentsPublished = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "drug_advisor",
			Name:      "deployments_published",
			Help:      "Deployments in the most recently published list, partitioned by eligibility.",
		},
		[]string{"eligible"},
	)
)

// Register attaches drug advisor collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		remoteCallsTotal,
		remoteCallSeconds,
		discardedResults,
		activeSessions,
		deploymentsPublished,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveRemoteCall records the duration and outcome of one remote call.
func ObserveRemoteCall(operation string, duration time.Duration, outcome string) {
	switch outcome {
	case OutcomeSuccess, OutcomeError:
	default:
		outcome = OutcomeError
	}
	remoteCallsTotal.WithLabelValues(operation, outcome).Inc()
	if duration < 0 {
		duration = 0
	}
	remoteCallSeconds.WithLabelValues(operation).Observe(duration.Seconds())
}

// ObserveDiscarded counts a result dropped because its selection was superseded
// or its workflow was closed.
func ObserveDiscarded(operation string) {
	discardedResults.WithLabelValues(operation).Inc()
}

// SetActiveSessions reports the current number of workflows.
func SetActiveSessions(n int) {
	activeSessions.Set(float64(n))
}

// ObserveDeployments records the eligibility split of a published deployment list.
func ObserveDeployments(eligible, ineligible int) {
	deploymentsPublished.WithLabelValues("true").Set(float64(eligible))
	deploymentsPublished.WithLabelValues("false").Set(float64(ineligible))
}
