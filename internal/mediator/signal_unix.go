//go:build !windows

package mediator

import (
	"os"
	"syscall"
)

// terminateSignal is the graceful shutdown signal sent to a pool member
// before falling back to a hard kill.
func terminateSignal() os.Signal { return syscall.SIGTERM }
