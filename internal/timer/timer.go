// Package timer implements the per-iteration timing and idle engine (C3):
// duration measurement, idle prediction, sleep, sampled statistics, and a
// one-time nice-value hint derived from loop_interval.
package timer

import (
	"math"
	"sort"
	"sync"
	"time"
)

// Sample is one recorded iteration's duration/idle pair (spec.md §3).
type Sample struct {
	Duration time.Duration
	Idle     time.Duration
}

const (
	maxStats        = 200
	sampleRate      = 0.001
	idleEpsilon     = 10 * time.Millisecond
	overrunSleep    = 100 * time.Microsecond
)

// Engine measures loop iterations and sleeps the idle remainder.
type Engine struct {
	LoopInterval    time.Duration
	IdleProbability float64

	// Rand is overridable for deterministic tests of the probabilistic
	// idle predicate and stats sampling.
	Rand func() float64

	mu            sync.Mutex
	stats         []Sample
	start         time.Time
	priorityDone  bool
	overrunLogged func()
}

// New builds an Engine for the given loop interval and idle probability
// (consulted only when loopInterval == 0, per spec.md §4.3).
func New(loopInterval time.Duration, idleProbability float64) *Engine {
	return &Engine{
		LoopInterval:    loopInterval,
		IdleProbability: idleProbability,
		Rand:            defaultRand,
	}
}

// OnOverrun registers a callback invoked whenever an iteration overruns its
// loop_interval (used by the lifecycle controller to log/dispatch ON_ERROR).
func (e *Engine) OnOverrun(fn func()) { e.overrunLogged = fn }

// StartIteration marks the beginning of an iteration and, the first time it
// is called with a nonzero LoopInterval, applies the nice-value hint.
func (e *Engine) StartIteration() {
	e.mu.Lock()
	e.start = time.Now()
	e.mu.Unlock()
	if !e.priorityDone && e.LoopInterval > 0 {
		e.priorityDone = true
		applyPriorityHint(e.LoopInterval)
	}
}

// Idle reports whether the current moment counts as idle, per the
// predicate in spec.md §4.3. When LoopInterval > 0 this is time-based and
// deterministic; when it is 0, this is a probabilistic coin flip so
// long-running idle work can still be scheduled occasionally.
func (e *Engine) Idle() bool {
	e.mu.Lock()
	start := e.start
	interval := e.LoopInterval
	e.mu.Unlock()
	if interval > 0 {
		return time.Now().Before(start.Add(interval - idleEpsilon))
	}
	return e.Rand() < e.IdleProbability
}

// EndIteration computes duration/idle for the just-finished iteration (idle
// is never below zero), samples it into stats with low probability, sleeps
// the idle remainder (or a minimal backoff plus an overrun callback), and
// returns the sample.
func (e *Engine) EndIteration() Sample {
	e.mu.Lock()
	start := e.start
	interval := e.LoopInterval
	e.mu.Unlock()

	duration := time.Since(start)
	idle := interval - duration
	if idle < 0 {
		idle = 0
	}

	if e.Rand() < sampleRate {
		e.record(Sample{Duration: duration, Idle: idle})
	}

	if idle > 0 {
		sleepWithSigchldBlocked(idle)
	} else {
		time.Sleep(overrunSleep)
		if interval > 0 && e.overrunLogged != nil {
			e.overrunLogged()
		}
	}
	return Sample{Duration: duration, Idle: idle}
}

func (e *Engine) record(s Sample) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stats = append(e.stats, s)
	if len(e.stats) > maxStats {
		e.stats = e.stats[len(e.stats)-maxStats:]
	}
}

// StatsMean returns the trimmed mean (dropping the top/bottom 5% by
// duration) of the most recent `last` samples, for both axes.
func (e *Engine) StatsMean(last int) Sample {
	e.mu.Lock()
	n := len(e.stats)
	if last > n {
		last = n
	}
	window := make([]Sample, last)
	copy(window, e.stats[n-last:])
	e.mu.Unlock()

	if len(window) == 0 {
		return Sample{}
	}

	sort.Slice(window, func(i, j int) bool { return window[i].Duration < window[j].Duration })
	trim := int(math.Round(float64(len(window)) * 0.05))
	trimmed := window
	if len(window) > 2*trim {
		trimmed = window[trim : len(window)-trim]
	}
	if len(trimmed) == 0 {
		trimmed = window
	}

	var sumD, sumI time.Duration
	for _, s := range trimmed {
		sumD += s.Duration
		sumI += s.Idle
	}
	return Sample{
		Duration: sumD / time.Duration(len(trimmed)),
		Idle:     sumI / time.Duration(len(trimmed)),
	}
}

// StatsLen reports how many samples are currently retained.
func (e *Engine) StatsLen() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.stats)
}

// TrimStats is the idle handler the lifecycle controller enrolls
// (throttled to roughly every 50 iterations) to keep the ring within
// maxStats; record() already bounds it, so this is a no-op hook kept for
// symmetry with the throttled registration spec.md §4.4 describes.
func (e *Engine) TrimStats() {}

func defaultRand() float64 {
	return pseudoRand.Float64()
}
