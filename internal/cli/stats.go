package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/theintz/godaemon/internal/metrics"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print the running daemon's last diagnostics dump and metrics",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := statsSidecarPath(flagPidFile, bootstrapName())
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("cli: no stats available at %s (is the daemon running with -p?): %w", path, err)
		}
		fmt.Print(string(data))
		return nil
	},
}

func init() {
	statsCmd.Flags().StringVarP(&flagPidFile, "pid-file", "p", "", "pid file of the running daemon")
	rootCmd.AddCommand(statsCmd)
}

func bootstrapName() string {
	if bootstrap != nil {
		return bootstrap.Name
	}
	return "godaemon"
}

func statsSidecarPath(pidFile, name string) string {
	if pidFile != "" {
		return pidFile + ".stats"
	}
	return "/tmp/godaemon." + name + ".stats"
}

// writeStatsSidecar renders diagnostics text and the metrics registry and
// writes both to path, so a separate `stats` invocation has something to
// read without the daemon exposing an HTTP surface.
func writeStatsSidecar(path, diagnostics string, reg *metrics.Registry) {
	if path == "" {
		return
	}
	body := diagnostics + "\n"
	if rendered, err := reg.Render(); err == nil {
		body += rendered
	}
	_ = os.WriteFile(path, []byte(body), 0o644)
}
