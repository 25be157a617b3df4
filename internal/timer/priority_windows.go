//go:build windows

package timer

import "time"

// applyPriorityHint is a documented no-op on Windows: adjusting the
// process priority class requires OpenProcess + SetPriorityClass via
// golang.org/x/sys/windows, which this build does not pursue (mirrors the
// teacher's worker_windows.go treatment of setWorkerPriority).
func applyPriorityHint(loopInterval time.Duration) {}

// sleepWithSigchldBlocked is a plain sleep on Windows: there is no SIGCHLD
// to block, since the platform has no POSIX child-exit signal.
func sleepWithSigchldBlocked(d time.Duration) {
	time.Sleep(d)
}
