package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderContainsObservedMetrics(t *testing.T) {
	r := New(true)
	r.ObserveIteration(10*time.Millisecond, 40*time.Millisecond)
	r.IncOverrun()
	r.IncRestart()
	r.ObserveWorkerCall("RETURNED")

	out, err := r.Render()
	require.NoError(t, err)
	assert.Contains(t, out, "godaemon_iteration_duration_seconds")
	assert.Contains(t, out, "godaemon_overrun_total 1")
	assert.Contains(t, out, "godaemon_restarts_total 1")
	assert.Contains(t, out, `godaemon_worker_call_total{status="RETURNED"} 1`)
}

func TestDisabledRegistryRendersEmptyWithoutError(t *testing.T) {
	r := New(false)
	r.ObserveIteration(time.Millisecond, time.Millisecond)
	out, err := r.Render()
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestObserveIterationSkipsNonPositiveIdle(t *testing.T) {
	r := New(true)
	assert.NotPanics(t, func() { r.ObserveIteration(10*time.Millisecond, -5*time.Millisecond) })

	out, err := r.Render()
	require.NoError(t, err)
	assert.Contains(t, out, "godaemon_iteration_idle_seconds_count 0")
}
