package daemon

import (
	"fmt"
	"os"
	"strconv"
)

// WritePidFile writes the current process's decimal pid to path,
// replacing any existing content (spec.md's CLI `-p` flag).
func WritePidFile(path string) error {
	if path == "" {
		return nil
	}
	data := []byte(strconv.Itoa(os.Getpid()) + "\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("daemon: write pidfile %s: %w", path, err)
	}
	return nil
}

// RemovePidFile deletes path, ignoring a not-exist error. Callers
// schedule this at parent shutdown.
func RemovePidFile(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("daemon: remove pidfile %s: %w", path, err)
	}
	return nil
}
