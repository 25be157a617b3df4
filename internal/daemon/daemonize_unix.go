//go:build !windows

package daemon

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"
)

// Daemonize implements the CLI's `-d` flag: detach from the controlling
// terminal and re-exec into the background. Go has no fork(2), so the
// "double fork" spec.md describes is approximated by re-exec'ing with
// Setsid in the child's SysProcAttr, which severs the controlling
// terminal the same way a double fork does; the parent then exits
// immediately so the shell sees a completed foreground command. Args are
// the original argv with -d stripped (the re-exec'd process is already
// the daemon; it must not try to detach again).
func Daemonize(argsWithoutDaemonFlag []string) error {
	null, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("daemon: open %s: %w", os.DevNull, err)
	}
	defer null.Close()

	cmd := exec.Command(os.Args[0], argsWithoutDaemonFlag...)
	cmd.Env = os.Environ()
	cmd.Stdin = null
	cmd.Stdout = null
	cmd.Stderr = null
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("daemon: detach: %w", err)
	}
	return nil
}
