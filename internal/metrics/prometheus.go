// Package metrics exposes Prometheus collectors for aggregator batches.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Query holds the collectors updated by the query aggregator.
type Query struct {
	nodeRequests  *prometheus.CounterVec
	batches       *prometheus.CounterVec
	batchDuration prometheus.Histogram
	inFlight      prometheus.Gauge
}

// NewQuery creates the collectors and registers them on reg when non-nil.
func NewQuery(namespace string, reg prometheus.Registerer) (*Query, error) {
	if namespace == "" {
		namespace = "mailctl"
	}

	q := &Query{
		nodeRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "node_requests_total",
				Help:      "Per-node requests issued by the aggregator",
			},
			[]string{"node", "path", "outcome"},
		),
		batches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "batches_total",
				Help:      "Aggregator batches by outcome",
			},
			[]string{"path", "outcome"},
		),
		batchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "batch_duration_seconds",
				Help:      "Time from dispatch to the last node completion",
				Buckets:   prometheus.ExponentialBuckets(0.005, 2, 14),
			},
		),
		inFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "batches_in_flight",
				Help:      "Batches waiting for node responses",
			},
		),
	}

	if reg != nil {
		for _, c := range []prometheus.Collector{q.nodeRequests, q.batches, q.batchDuration, q.inFlight} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return q, nil
}

// NodeDone counts one per-node request.
func (q *Query) NodeDone(node, path string, ok bool) {
	if q == nil {
		return
	}
	q.nodeRequests.WithLabelValues(node, path, outcome(ok)).Inc()
}

// BatchStarted marks a batch as in flight.
func (q *Query) BatchStarted() {
	if q == nil {
		return
	}
	q.inFlight.Inc()
}

// BatchDone records the aggregate outcome of a batch.
func (q *Query) BatchDone(path string, ok bool, elapsed time.Duration) {
	if q == nil {
		return
	}
	q.inFlight.Dec()
	q.batches.WithLabelValues(path, outcome(ok)).Inc()
	q.batchDuration.Observe(elapsed.Seconds())
}

func outcome(ok bool) string {
	if ok {
		return OutcomeSuccess
	}
	return OutcomeFailure
}
