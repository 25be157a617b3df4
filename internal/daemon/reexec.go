package daemon

import (
	"fmt"
	"os"
	"os/exec"
)

// reexec spawns a fresh copy of the running binary with the original
// argv, preserving -d and -p pidfile (already present in os.Args since
// this process was launched with them), redirecting stdio to the null
// device, and returning without waiting for the child — the new process
// is responsible for acquiring the singleton lock itself (spec.md §4.4).
func reexec(daemonized bool, pidFile string) error {
	args := os.Args[1:]
	if daemonized && !containsFlag(args, "-d") {
		args = append(args, "-d")
	}
	if pidFile != "" && !containsFlag(args, "-p") {
		args = append(args, "-p", pidFile)
	}

	cmd := exec.Command(os.Args[0], args...)
	cmd.Env = os.Environ()

	null, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("daemon: open %s: %w", os.DevNull, err)
	}
	defer null.Close()
	cmd.Stdin = null
	cmd.Stdout = null
	cmd.Stderr = null

	return cmd.Start()
}

func containsFlag(args []string, flag string) bool {
	for _, a := range args {
		if a == flag {
			return true
		}
	}
	return false
}
