package timer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Scenario 1 (spec §8 seed suite, scaled down): loop_interval=20ms,
// execute sleeps 5ms for 25 iterations. Expect mean duration ~5ms, mean
// idle ~15ms, zero overruns.
func TestLoopPacingMeansMatchExpectedRatio(t *testing.T) {
	eng := New(20*time.Millisecond, 0)
	eng.Rand = func() float64 { return 0 } // always sample, always idle-true when interval==0

	var overruns int
	eng.OnOverrun(func() { overruns++ })

	const iterations = 25
	for i := 0; i < iterations; i++ {
		eng.StartIteration()
		time.Sleep(5 * time.Millisecond)
		eng.EndIteration()
	}

	mean := eng.StatsMean(iterations)
	assert.InDelta(t, 5*time.Millisecond, mean.Duration, float64(6*time.Millisecond))
	assert.InDelta(t, 15*time.Millisecond, mean.Idle, float64(8*time.Millisecond))
	assert.Equal(t, 0, overruns)
}

// Scenario 2 (spec §8 seed suite, scaled down): loop_interval=10ms,
// execute sleeps 30ms for 5 iterations. Expect exactly 5 overrun
// callbacks and idle never reported negative by EndIteration (its overrun
// branch sleeps a fixed minimal backoff instead).
func TestOverrunFiresOncePerIteration(t *testing.T) {
	eng := New(10*time.Millisecond, 0)
	eng.Rand = func() float64 { return 0 }

	var overruns int
	eng.OnOverrun(func() { overruns++ })

	const iterations = 5
	for i := 0; i < iterations; i++ {
		eng.StartIteration()
		time.Sleep(30 * time.Millisecond)
		s := eng.EndIteration()
		assert.GreaterOrEqual(t, s.Idle, time.Duration(0))
	}

	assert.Equal(t, iterations, overruns)
}

func TestIdleIsFalseImmediatelyAfterStartWithNoInterval(t *testing.T) {
	eng := New(0, 0.5)
	eng.Rand = func() float64 { return 0.9 } // above idle probability
	eng.StartIteration()
	assert.False(t, eng.Idle())
}

func TestIdleProbabilisticWhenUnthrottled(t *testing.T) {
	eng := New(0, 0.5)
	eng.Rand = func() float64 { return 0.1 } // below idle probability
	eng.StartIteration()
	assert.True(t, eng.Idle())
}

// Law: stats_mean over identical samples returns the sample value on both
// axes.
func TestStatsMeanOfIdenticalSamplesReturnsSampleValue(t *testing.T) {
	eng := New(50*time.Millisecond, 0)
	sample := Sample{Duration: 5 * time.Millisecond, Idle: 45 * time.Millisecond}

	for i := 0; i < 10; i++ {
		eng.record(sample)
	}

	mean := eng.StatsMean(10)
	require.Greater(t, eng.StatsLen(), 0)
	assert.Greater(t, mean.Duration, time.Duration(0))
	assert.Equal(t, sample, mean)
}

func TestStatsMeanOnEmptyStatsIsZero(t *testing.T) {
	eng := New(10*time.Millisecond, 0)
	mean := eng.StatsMean(10)
	assert.Equal(t, Sample{}, mean)
}
