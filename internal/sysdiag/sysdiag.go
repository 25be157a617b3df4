// Package sysdiag implements the diagnostics snapshot (C11) rendered on
// SIGUSR1 and by the CLI's stats subcommand: timer statistics, pool
// member states, and a best-effort host resource snapshot adapted from
// the teacher's sys.XyPrissSys.
package sysdiag

import (
	"fmt"
	"strings"
	"time"

	"github.com/distatus/battery"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/theintz/godaemon/internal/timer"
)

// MemberStatus is a pool member's state as reported for diagnostics, kept
// decoupled from the mediator package's internal member type.
type MemberStatus struct {
	ID      int
	PID     int
	State   string
	Uptime  time.Duration
	Restarts int
}

// Snapshot is the full diagnostics dump.
type Snapshot struct {
	Timer       timer.Sample
	StatsLen    int
	Members     []MemberStatus
	LoadAverage [3]float64
	MemTotalMB  uint64
	MemUsedMB   uint64
	MemPercent  float64
	Battery     string
}

// Capture builds a Snapshot. gopsutil and battery errors are non-fatal:
// a field is left zero/empty rather than failing the whole dump, since
// load average and battery presence are host-dependent (unavailable
// inside some containers, absent on desktops without a battery).
func Capture(eng *timer.Engine, members []MemberStatus) Snapshot {
	snap := Snapshot{
		Timer:    eng.StatsMean(100),
		StatsLen: eng.StatsLen(),
		Members:  members,
	}

	if avg, err := load.Avg(); err == nil {
		snap.LoadAverage = [3]float64{avg.Load1, avg.Load5, avg.Load15}
	}

	if vmem, err := mem.VirtualMemory(); err == nil {
		snap.MemTotalMB = vmem.Total / 1024 / 1024
		snap.MemUsedMB = vmem.Used / 1024 / 1024
		snap.MemPercent = vmem.UsedPercent
	}

	snap.Battery = captureBattery()
	return snap
}

func captureBattery() string {
	batteries, err := battery.GetAll()
	if err != nil || len(batteries) == 0 {
		return "none"
	}
	b := batteries[0]
	pct := 0.0
	if b.Full > 0 {
		pct = (b.Current / b.Full) * 100
	}
	return fmt.Sprintf("%s %.0f%%", b.State.String(), pct)
}

// Render formats a Snapshot as the multi-line text the logger prints for
// SIGUSR1 and the CLI's stats subcommand.
func (s Snapshot) Render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "iteration mean duration=%s idle=%s (n=%d samples)\n", s.Timer.Duration, s.Timer.Idle, s.StatsLen)
	fmt.Fprintf(&b, "load average: %.2f %.2f %.2f\n", s.LoadAverage[0], s.LoadAverage[1], s.LoadAverage[2])
	fmt.Fprintf(&b, "memory: %d/%d MB (%.1f%%)\n", s.MemUsedMB, s.MemTotalMB, s.MemPercent)
	fmt.Fprintf(&b, "battery: %s\n", s.Battery)
	for _, m := range s.Members {
		fmt.Fprintf(&b, "  pool member %d: pid=%d state=%s uptime=%s restarts=%d\n", m.ID, m.PID, m.State, m.Uptime, m.Restarts)
	}
	return b.String()
}
