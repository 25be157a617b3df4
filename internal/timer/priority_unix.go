//go:build !windows

package timer

import (
	"log"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// applyPriorityHint nudges the process nice value once, per the table in
// spec.md §4.3. Lack of privilege is logged, not fatal.
func applyPriorityHint(loopInterval time.Duration) {
	seconds := loopInterval.Seconds()
	delta := priorityDelta(seconds)
	if delta == 0 {
		return
	}
	if err := unix.Setpriority(unix.PRIO_PROCESS, os.Getpid(), delta); err != nil {
		log.Printf("timer: could not adjust nice value by %d: %v", delta, err)
	}
}

func priorityDelta(seconds float64) int {
	switch {
	case seconds >= 5 || seconds <= 0:
		return 0
	case seconds > 2:
		return -1
	case seconds > 1:
		return -2
	case seconds > 0.5:
		return -3
	case seconds > 0.1:
		return -4
	default:
		return -5
	}
}

// sleepWithSigchldBlocked sleeps for d with SIGCHLD temporarily blocked, so
// an exiting forked/re-exec'd child does not interrupt the sleep early.
// SIGCHLD is unblocked immediately after.
func sleepWithSigchldBlocked(d time.Duration) {
	var set unix.Sigset_t
	set.Val[0] = 1 << (uint(unix.SIGCHLD) - 1)
	if err := unix.PthreadSigmask(unix.SIG_BLOCK, &set, nil); err != nil {
		time.Sleep(d)
		return
	}
	time.Sleep(d)
	_ = unix.PthreadSigmask(unix.SIG_UNBLOCK, &set, nil)
}
