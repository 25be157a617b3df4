package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/theintz/godaemon/internal/bus"
	"github.com/theintz/godaemon/internal/config"
	"github.com/theintz/godaemon/internal/daemon"
	"github.com/theintz/godaemon/internal/lock"
	"github.com/theintz/godaemon/internal/logging"
	"github.com/theintz/godaemon/internal/mediator"
	"github.com/theintz/godaemon/internal/metrics"
	"github.com/theintz/godaemon/internal/sysdiag"
	"github.com/theintz/godaemon/internal/timer"
	"github.com/theintz/godaemon/internal/watch"
)

var (
	flagDaemonize bool
	flagPidFile   string
	flagConfig    string
	flagLogFile   string
)

// Bootstrap carries the caller-supplied hooks the `run` command drives: a
// framework consumer registers its own execute()/setup() the same way a
// spec.md subclass would, without this package needing to know what kind
// of daemon it is running.
type Bootstrap struct {
	Name    string
	Execute daemon.Execute
	Setup   daemon.Setup

	// WorkerKind/WorkerFactory are optional: set both to enable the Worker
	// Mediator for this daemon (spec.md §4.6).
	WorkerKind    string
	WorkerFactory mediator.WorkerFactory
}

var bootstrap *Bootstrap

// SetBootstrap registers the caller's daemon definition. Must be called
// before Execute.
func SetBootstrap(b *Bootstrap) { bootstrap = b }

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the daemon loop in the foreground (or detached with -d)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDaemon()
	},
}

func init() {
	runCmd.Flags().BoolVarP(&flagDaemonize, "detach", "d", false, "double-fork and detach")
	runCmd.Flags().StringVarP(&flagPidFile, "pid-file", "p", "", "write the daemon pid to this path")
	runCmd.Flags().StringVarP(&flagConfig, "config", "c", "", "path to the YAML tunables file")
	runCmd.Flags().StringVarP(&flagLogFile, "log-file", "l", "", "path to the log file (stderr if unset)")
	rootCmd.AddCommand(runCmd)
}

func runDaemon() error {
	if bootstrap == nil || bootstrap.Execute == nil {
		return fmt.Errorf("cli: no Bootstrap registered; call cli.SetBootstrap before cli.Execute")
	}

	if flagDaemonize {
		args := make([]string, 0, len(os.Args)-1)
		for _, a := range os.Args[1:] {
			if a == "-d" || a == "--detach" {
				continue
			}
			args = append(args, a)
		}
		if err := daemon.Daemonize(args); err != nil {
			return err
		}
		return nil
	}

	cfg, err := config.Load(flagConfig)
	if err != nil {
		return fmt.Errorf("cli: %w", err)
	}

	logger, err := newLogger(flagLogFile)
	if err != nil {
		return err
	}

	b := bus.New()
	eng := timer.New(loopIntervalDuration(cfg), cfg.IdleProbability)
	lp := buildLockProvider(cfg)
	metricsReg := metrics.New(cfg.Metrics.Enabled)

	ctrl := daemon.New(bootstrap.Name, b, logger, eng, lp, cfg)
	ctrl.PidFile = flagPidFile
	ctrl.Daemonized = flagDaemonize
	ctrl.Execute = bootstrap.Execute
	ctrl.Setup = bootstrap.Setup
	if lp != nil {
		ctrl.EnvChecks = append(ctrl.EnvChecks, lp)
	}

	var med *mediator.Mediator
	if bootstrap.WorkerKind != "" && bootstrap.WorkerFactory != nil {
		mediator.Register(bootstrap.WorkerKind, bootstrap.WorkerFactory)
		socket := mediatorSocketPath(flagPidFile, bootstrap.Name)
		med = mediator.New(bootstrap.WorkerKind, socket, bootstrap.WorkerFactory, b, logger)
		med.Workers(cfg.Mediator.PoolSize)
		med.Retries(cfg.Mediator.Retries)
		for method := range cfg.Mediator.Timeouts {
			if d := cfg.TimeoutFor(method, 0); d > 0 {
				med.Timeout(method, d)
			}
		}
		med.OnReturn(func(c *mediator.Call) { metricsReg.ObserveWorkerCall(string(c.Status())) })
		med.OnTimeout(func(c *mediator.Call) { metricsReg.ObserveWorkerCall(string(c.Status())) })
	}

	diagnose := func() string {
		var members []sysdiag.MemberStatus
		if med != nil {
			for _, m := range med.MemberStatuses() {
				members = append(members, sysdiag.MemberStatus{ID: m.ID, PID: m.PID, State: m.State, Uptime: time.Since(m.SpawnedAt), Restarts: m.Restarts})
			}
		}
		return sysdiag.Capture(eng, members).Render()
	}
	ctrl.Diagnostics = diagnose

	statsPath := statsSidecarPath(flagPidFile, bootstrap.Name)
	b.On(bus.OnIdle, func(args ...any) {
		writeStatsSidecar(statsPath, diagnose(), metricsReg)
	}, 10*time.Second)

	if med != nil {
		b.On(bus.OnPostExecute, func(args ...any) { med.Tick() }, 0)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w, err := watch.New(b, logger)
	if err == nil {
		if flagConfig != "" {
			_ = w.WatchConfig(flagConfig, func() {
				if reloaded, rerr := config.Load(flagConfig); rerr == nil {
					cfg = reloaded
					ctrl.UpdateConfig(reloaded)
				}
			})
		}
		if flagPidFile != "" {
			_ = w.WatchPidFile(flagPidFile)
		}
		w.Start()
		defer w.Close()
	}

	if err := ctrl.Init(ctx); err != nil {
		return fmt.Errorf("cli: %w", err)
	}

	if med != nil {
		if err := med.Setup(ctx); err != nil {
			ctrl.FatalError(fmt.Sprintf("mediator setup: %v", err))
		}
		defer med.Teardown(ctx)
	}

	if err := daemon.WritePidFile(flagPidFile); err != nil {
		logger.Printf(bootstrap.Name, 1, "%v", err)
	}
	defer daemon.RemovePidFile(flagPidFile)

	ctrl.Metrics = metricsReg
	return ctrl.Run(ctx)
}

func loopIntervalDuration(cfg config.Config) time.Duration {
	return time.Duration(cfg.LoopInterval * float64(time.Second))
}

func newLogger(path string) (*logging.Logger, error) {
	if path == "" {
		return logging.New(os.Stderr, "", true), nil
	}
	return logging.NewFile(path, true)
}

func buildLockProvider(cfg config.Config) lock.Provider {
	switch cfg.Lock.Backend {
	case "file":
		return lock.NewFileProvider(cfg.Lock.Path, cfg.LockTTL())
	case "redis":
		return lock.NewRedisProvider(cfg.Lock.RedisAddr, "godaemon:lock:"+bootstrapName(), cfg.LockTTL())
	default:
		return lock.NewNullProvider()
	}
}

func mediatorSocketPath(pidFile, name string) string {
	if pidFile != "" {
		return pidFile + ".mediator.sock"
	}
	return "/tmp/godaemon." + name + ".mediator.sock"
}
