//go:build windows

package daemon

import "fmt"

// Daemonize has no Windows equivalent of Setsid/double-fork; the `-d`
// flag makes it return an error and nothing is started, the same platform
// gap worker_windows.go documents for signals.
func Daemonize(argsWithoutDaemonFlag []string) error {
	return fmt.Errorf("daemon: -d is not supported on windows; run in the foreground or under a Windows service wrapper")
}
