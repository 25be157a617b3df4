// Command godaemond is the reference entrypoint for the godaemon
// framework: it re-exec-checks itself for task/mediator child roles, then
// registers a minimal heartbeat Execute and hands off to the CLI. Real
// consumers of the framework import internal's sibling packages directly
// and supply their own execute(); this binary exists so the repository is
// runnable end to end.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/theintz/godaemon/internal/cli"
	"github.com/theintz/godaemon/internal/mediator"
	"github.com/theintz/godaemon/internal/task"
)

func main() {
	ctx := context.Background()

	if ran, code := task.RunIfChild(ctx); ran {
		os.Exit(code)
	}
	if ran, code := mediator.RunIfExecutor(ctx); ran {
		os.Exit(code)
	}

	cli.SetBootstrap(&cli.Bootstrap{
		Name:    "godaemond",
		Execute: heartbeat,
	})

	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}

var tick uint64

func heartbeat(ctx context.Context) error {
	tick++
	fmt.Fprintf(os.Stderr, "heartbeat %d\n", tick)
	return nil
}
