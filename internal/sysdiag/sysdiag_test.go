package sysdiag

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/theintz/godaemon/internal/timer"
)

func TestCaptureAndRenderDoesNotPanicAndIncludesMembers(t *testing.T) {
	eng := timer.New(10*time.Millisecond, 0)
	members := []MemberStatus{
		{ID: 1, PID: 4242, State: "RUNNING", Uptime: time.Minute, Restarts: 2},
	}

	var snap Snapshot
	assert.NotPanics(t, func() { snap = Capture(eng, members) })

	out := snap.Render()
	assert.Contains(t, out, "iteration mean duration=")
	assert.Contains(t, out, "load average:")
	assert.Contains(t, out, "memory:")
	assert.Contains(t, out, "battery:")
	assert.Contains(t, out, "pool member 1: pid=4242 state=RUNNING")
}

func TestRenderWithNoMembers(t *testing.T) {
	snap := Snapshot{Battery: "none"}
	out := snap.Render()
	assert.Contains(t, out, "battery: none")
}
