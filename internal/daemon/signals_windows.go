//go:build windows

package daemon

import (
	"os"
	"os/signal"
)

// installSignalHandlers on Windows only has os.Interrupt to work with;
// there is no SIGHUP/SIGUSR1 equivalent, so no signal triggers a restart
// and the diagnostics text is reachable only through the sidecar file the
// CLI's stats subcommand reads, matching worker_windows.go's treatment of
// the same platform gap.
func (c *Controller) installSignalHandlers() {
	c.sig = make(chan os.Signal, 8)
	signal.Notify(c.sig, os.Interrupt)
	go func() {
		for range c.sig {
			c.Shutdown()
		}
	}()
}

func (c *Controller) dumpDiagnostics() {}
