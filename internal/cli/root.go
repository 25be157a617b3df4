// Package cli wires the cobra command tree: `run` starts the daemon
// loop, `stats` prints a one-shot diagnostics/metrics dump, `lock status`
// inspects the singleton lock without acquiring it. Adapted from the
// teacher's cli/root.go shape (cobra root + fatih/color banner), with the
// NEHONIX-specific signature gate removed in favor of a generic banner.
package cli

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

const banner = `
   __         __
  / _\ ___   / _\
  \ \ / _ \  \ \
  _\ \ (_) | _\ \
  \__/\___/  \__/
        godaemon
`

func printBanner() {
	c := color.New(color.FgCyan, color.Bold)
	c.Fprint(os.Stderr, banner)
}

var rootCmd = &cobra.Command{
	Use:           "godaemond",
	Short:         "godaemon — periodic daemon framework",
	Long:          "godaemon runs a user-supplied work routine on a schedule, dispatches lifecycle events, and mediates calls to a pool of worker processes.",
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the CLI. main() calls this after checking RunIfChild /
// RunIfExecutor so re-exec'd children never reach the command tree.
func Execute() error {
	if len(os.Args) <= 1 {
		printBanner()
	}
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return err
	}
	return nil
}
