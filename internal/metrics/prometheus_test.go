package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gathered(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	next:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					continue next
				}
			}
			switch {
			case m.GetCounter() != nil:
				return m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				return m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				return float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	return -1
}

func TestQuery_CountsOutcomes(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	q, err := NewQuery("test", reg)
	require.NoError(t, err)

	q.BatchStarted()
	q.NodeDone("local", "stat", true)
	q.NodeDone("node2", "stat", false)
	q.BatchDone("stat", true, 10*time.Millisecond)

	assert.Equal(t, 1.0, gathered(t, reg, "test_node_requests_total", map[string]string{"node": "local", "outcome": OutcomeSuccess}))
	assert.Equal(t, 1.0, gathered(t, reg, "test_node_requests_total", map[string]string{"node": "node2", "outcome": OutcomeFailure}))
	assert.Equal(t, 1.0, gathered(t, reg, "test_batches_total", map[string]string{"outcome": OutcomeSuccess}))
	assert.Equal(t, 1.0, gathered(t, reg, "test_batch_duration_seconds", nil))
	assert.Equal(t, 0.0, gathered(t, reg, "test_batches_in_flight", nil))

	_, err = NewQuery("test", reg)
	assert.Error(t, err, "duplicate registration")
}

func TestQuery_NilIsNoop(t *testing.T) {
	t.Parallel()

	var q *Query
	q.BatchStarted()
	q.NodeDone("local", "stat", true)
	q.BatchDone("stat", false, time.Second)
}
