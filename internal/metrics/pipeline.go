// Package metrics provides Prometheus metrics for the pipeline runtime.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "camgraph"

var (
	fenceSignals = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "fence",
		Name:      "signals_total",
		Help:      "Fences signaled, by terminal result",
	}, []string{"result"})

	dispatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "scheduler",
		Name:      "dispatches_total",
		Help:      "Node invocations, by node and whether it was a continuation",
	}, []string{"node", "phase"})

	submissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "node",
		Name:      "submissions_total",
		Help:      "Backend submissions and skips, by node and outcome",
	}, []string{"node", "outcome"})

	retired = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "request",
		Name:      "retired_total",
		Help:      "Retired capture requests, by status",
	}, []string{"status"})

	requestLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "request",
		Name:      "latency_seconds",
		Help:      "Time from submission to retirement",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
	})

	flushes = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "flushes_total",
		Help:      "Pipeline flushes",
	})

	negotiationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "negotiation_seconds",
		Help:      "Duration of both buffer negotiation passes",
		Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 8),
	})

	pendingUnits = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "scheduler",
		Name:      "pending_units",
		Help:      "Dependency units waiting to resolve",
	})

	inflightRequests = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "request",
		Name:      "in_flight",
		Help:      "Submitted requests not yet retired",
	})

	outstandingFences = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "fence",
		Name:      "outstanding",
		Help:      "Tracked fences not yet signaled",
	})

	// Local totals for the API summary.
	totals   = make(map[string]float64)
	totalsMu sync.RWMutex
)

// RecordFenceSignal counts a fence reaching result.
func RecordFenceSignal(result string) {
	fenceSignals.WithLabelValues(result).Inc()
	bump("fence_" + result)
}

// RecordDispatch counts a node invocation. phase is "first" or "resume".
func RecordDispatch(node, phase string) {
	dispatches.WithLabelValues(node, phase).Inc()
	bump("dispatch_" + phase)
}

// RecordSubmission counts a backend submission or skip. outcome is one of
// success, failed, cancelled, skipped, rejected.
func RecordSubmission(node, outcome string) {
	submissions.WithLabelValues(node, outcome).Inc()
	bump("submit_" + outcome)
}

// RecordRetired counts a retired request and its latency.
func RecordRetired(status string, latency time.Duration) {
	retired.WithLabelValues(status).Inc()
	requestLatency.Observe(latency.Seconds())
	bump("retired_" + status)
}

// RecordFlush counts a flush.
func RecordFlush() {
	flushes.Inc()
	bump("flushes")
}

// ObserveNegotiation records the duration of a negotiation run.
func ObserveNegotiation(d time.Duration) {
	negotiationSeconds.Observe(d.Seconds())
}

// SetPendingUnits sets the pending dependency unit gauge.
func SetPendingUnits(n int) { pendingUnits.Set(float64(n)) }

// SetInFlightRequests sets the in-flight request gauge.
func SetInFlightRequests(n int) { inflightRequests.Set(float64(n)) }

// SetOutstandingFences sets the outstanding fence gauge.
func SetOutstandingFences(n int) { outstandingFences.Set(float64(n)) }

// DeleteNode removes the per-node series of a node that no longer exists.
func DeleteNode(node string) {
	dispatches.DeletePartialMatch(prometheus.Labels{"node": node})
	submissions.DeletePartialMatch(prometheus.Labels{"node": node})
}

// Totals returns a copy of the process-wide counters, keyed by short name.
func Totals() map[string]float64 {
	totalsMu.RLock()
	defer totalsMu.RUnlock()
	out := make(map[string]float64, len(totals))
	for k, v := range totals {
		out[k] = v
	}
	return out
}

func bump(key string) {
	totalsMu.Lock()
	totals[key]++
	totalsMu.Unlock()
}
