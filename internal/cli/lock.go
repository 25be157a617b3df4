package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/theintz/godaemon/internal/config"
)

var lockCmd = &cobra.Command{
	Use:   "lock",
	Short: "Inspect the singleton lock",
}

var lockStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the current lease owner without acquiring it",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(flagConfig)
		if err != nil {
			return fmt.Errorf("cli: %w", err)
		}
		lp := buildLockProvider(cfg)
		ctx := context.Background()
		if err := lp.Setup(ctx); err != nil {
			return fmt.Errorf("cli: lock setup: %w", err)
		}
		defer lp.Teardown(ctx)

		lease, held, err := lp.Check(ctx)
		if err != nil {
			return fmt.Errorf("cli: lock check: %w", err)
		}
		if !held {
			fmt.Println("no live lease")
			return nil
		}
		fmt.Printf("held by pid %d since %s\n", lease.OwnerPID, lease.AcquiredAt.Format("2006-01-02 15:04:05"))
		return nil
	},
}

func init() {
	lockStatusCmd.Flags().StringVarP(&flagConfig, "config", "c", "", "path to the YAML tunables file")
	lockCmd.AddCommand(lockStatusCmd)
	rootCmd.AddCommand(lockCmd)
}
