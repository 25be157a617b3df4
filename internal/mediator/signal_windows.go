//go:build windows

package mediator

import "os"

// terminateSignal maps to os.Interrupt on Windows, which Go translates to
// a console control event for console processes (same fallback the
// teacher's worker_windows.go documents for sendGracefulSignal).
func terminateSignal() os.Signal { return os.Interrupt }
