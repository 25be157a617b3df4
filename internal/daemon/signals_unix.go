//go:build !windows

package daemon

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/theintz/godaemon/internal/bus"
)

// installSignalHandlers wires SIGTERM/SIGINT to graceful shutdown,
// SIGHUP to restart, SIGUSR1 to a diagnostics dump, and SIGUSR2 and
// SIGWINCH to ON_SIGNAL only. No other signal is subscribed, so other
// catchable signals keep their default behavior and never reach ON_SIGNAL.
// Handlers only set flags or dispatch through the bus, per §5's
// signal-ordering rule.
func (c *Controller) installSignalHandlers() {
	c.sig = make(chan os.Signal, 8)
	signal.Notify(c.sig,
		syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP, syscall.SIGUSR1,
		syscall.SIGUSR2, syscall.SIGWINCH,
	)
	go func() {
		for s := range c.sig {
			switch s {
			case syscall.SIGTERM, syscall.SIGINT:
				c.Shutdown()
			case syscall.SIGHUP:
				c.Restart()
			case syscall.SIGUSR1:
				c.dumpDiagnostics()
			default:
				c.Bus.Dispatch(bus.OnSignal, s)
			}
		}
	}()
}

func (c *Controller) dumpDiagnostics() {
	if c.Logger == nil {
		return
	}
	if c.Diagnostics != nil {
		c.Logger.Printf(c.Name, 0, "diagnostics:\n%s", c.Diagnostics())
		return
	}
	c.Logger.Printf(c.Name, 0, "iterations=%d uptime=%s mean=%s", c.IterationCount(), c.Uptime(), c.Timer.StatsMean(100).Duration)
}
