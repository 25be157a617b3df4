// Package daemon implements the Lifecycle Controller (C4): the state
// machine, signal handling, and main loop that own the Event Bus and
// Timer/Idle Engine and drive a user-supplied execute() on schedule.
package daemon

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/theintz/godaemon/internal/bus"
	"github.com/theintz/godaemon/internal/config"
	"github.com/theintz/godaemon/internal/lock"
	"github.com/theintz/godaemon/internal/logging"
	"github.com/theintz/godaemon/internal/timer"
)

// EnvironmentChecker is implemented by every pluggable capability the
// Controller wires in (lock provider, worker mediator, ...) that needs to
// validate it is reachable/usable before the loop starts (spec.md §4.7).
type EnvironmentChecker interface {
	CheckEnvironment(ctx context.Context) error
}

// State is one of the Lifecycle Controller's states (spec.md §4.4).
type State int

const (
	StateNew State = iota
	StateInitializing
	StateRunning
	StateShuttingDown
	StateRestarting
	StateExited
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateInitializing:
		return "INITIALIZING"
	case StateRunning:
		return "RUNNING"
	case StateShuttingDown:
		return "SHUTTING_DOWN"
	case StateRestarting:
		return "RESTARTING"
	case StateExited:
		return "EXITED"
	default:
		return "UNKNOWN"
	}
}

// minRestartSeconds is MIN_RESTART_SECONDS from spec.md §3.
const minRestartSeconds = 10 * time.Second

// MetricsSink receives the observations a metrics.Registry exposes
// (C10), kept as an interface here so this package never imports
// prometheus.
type MetricsSink interface {
	ObserveIteration(duration, idle time.Duration)
	IncOverrun()
	IncRestart()
}

// Execute is the user's per-iteration work routine.
type Execute func(ctx context.Context) error

// Setup is the user's one-time startup hook, run after the duplicate-
// instance check (§4.1) but before the loop starts.
type Setup func(ctx context.Context) error

// Controller is the Lifecycle Controller: it owns the Bus and Timer,
// installs signal handlers, and runs the main loop.
type Controller struct {
	Name   string
	Bus    *bus.Bus
	Logger *logging.Logger
	Timer  *timer.Engine
	Lock   lock.Provider
	Config config.Config

	PidFile    string
	Daemonized bool

	Execute Execute
	Setup   Setup

	// Diagnostics renders the SIGUSR1 dump; wired by the CLI layer to the
	// sysdiag package so this package stays free of that dependency.
	Diagnostics func() string

	// Metrics, if set, is fed per-iteration observations and overrun/restart
	// counts; wired by the CLI layer to a metrics.Registry so this package
	// stays free of the prometheus dependency.
	Metrics MetricsSink

	// EnvChecks is every capability whose CheckEnvironment() must pass
	// before run() starts (spec.md §4.7). A failure from any of them is
	// fatal at startup, with every failure's message concatenated.
	EnvChecks []EnvironmentChecker

	mu          sync.Mutex
	state       State
	shutdown    bool
	startedAt   time.Time
	sig         chan os.Signal
	stopWatch   context.CancelFunc
	iterationNo uint64
}

// New builds a Controller. Callers must set Execute before calling Run.
func New(name string, b *bus.Bus, logger *logging.Logger, eng *timer.Engine, lp lock.Provider, cfg config.Config) *Controller {
	return &Controller{
		Name:   name,
		Bus:    b,
		Logger: logger,
		Timer:  eng,
		Lock:   lp,
		Config: cfg,
		state:  StateNew,
	}
}

// UpdateConfig replaces the live configuration, taking effect at the next
// auto-restart check; it never mutates mid-iteration state like
// loop_interval's already-applied priority hint.
func (c *Controller) UpdateConfig(cfg config.Config) {
	c.mu.Lock()
	c.Config = cfg
	c.mu.Unlock()
}

// State returns the controller's current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Init performs spec.md §4.4's init(): installs the lock provider as an
// ON_INIT listener, installs signal handlers, dispatches ON_INIT, enrolls
// the throttled stats_trim idle handler, runs the user Setup hook, and
// logs startup.
func (c *Controller) Init(ctx context.Context) error {
	c.setState(StateInitializing)
	c.startedAt = time.Now()

	if err := c.checkEnvironment(ctx); err != nil {
		return fmt.Errorf("daemon: environment check: %w", err)
	}

	if c.Lock != nil {
		c.Bus.On(bus.OnInit, func(args ...any) {
			if err := c.checkSingleton(ctx); err != nil {
				c.FatalError(fmt.Sprintf("singleton lock: %v", err))
			}
		}, 0)
	}

	c.installSignalHandlers()

	c.Bus.Dispatch(bus.OnInit)

	c.Bus.On(bus.OnIdle, func(args ...any) { c.Timer.TrimStats() }, 50*loopIntervalOrDefault(c.Config))

	if c.Setup != nil {
		if err := c.Setup(ctx); err != nil {
			return fmt.Errorf("daemon: setup: %w", err)
		}
	}

	c.Timer.OnOverrun(func() {
		c.Logger.Printf("timer", 1, "iteration overran loop_interval")
		c.Bus.Dispatch(bus.OnError, fmt.Errorf("iteration overrun"))
		if c.Metrics != nil {
			c.Metrics.IncOverrun()
		}
	})

	if c.Logger != nil {
		c.Logger.Printf(c.Name, 0, "startup complete, pid %d", os.Getpid())
	}
	c.setState(StateRunning)
	return nil
}

// loopIntervalOrDefault avoids a zero-duration throttle (meaning
// "unthrottled") when loop_interval is 0; stats_trim still wants to fire
// roughly every 50 iterations' worth of wall-clock time in that case.
func loopIntervalOrDefault(cfg config.Config) time.Duration {
	if cfg.LoopInterval <= 0 {
		return time.Second
	}
	return time.Duration(cfg.LoopInterval * float64(time.Second))
}

// checkEnvironment implements spec.md §4.7: collect every registered
// capability's CheckEnvironment() into a single aggregated error.
func (c *Controller) checkEnvironment(ctx context.Context) error {
	var result *multierror.Error
	for _, chk := range c.EnvChecks {
		if err := chk.CheckEnvironment(ctx); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

func (c *Controller) checkSingleton(ctx context.Context) error {
	if err := c.Lock.Setup(ctx); err != nil {
		return err
	}
	if err := c.Lock.Set(ctx); err != nil {
		return err
	}
	return nil
}

// Run executes spec.md §4.4's run(): the main loop, iterating until
// shutdown is requested. Each iteration: start timer, check auto-restart,
// dispatch ON_PREEXECUTE, call Execute, dispatch ON_POSTEXECUTE, end timer
// (spec.md §2 Composition).
func (c *Controller) Run(ctx context.Context) error {
	for !c.isShuttingDown() {
		c.Timer.StartIteration()
		c.autoRestart()

		c.Bus.Dispatch(bus.OnPreExecute)

		if c.Execute != nil {
			if err := c.Execute(ctx); err != nil {
				c.FatalError(err.Error())
				continue
			}
		}

		c.Bus.Dispatch(bus.OnPostExecute)
		if c.Timer.Idle() {
			c.Bus.Dispatch(bus.OnIdle, c.Timer.Idle)
		}
		sample := c.Timer.EndIteration()
		if c.Metrics != nil {
			c.Metrics.ObserveIteration(sample.Duration, sample.Idle)
		}
		c.mu.Lock()
		c.iterationNo++
		c.mu.Unlock()
	}
	c.setState(StateExited)
	return nil
}

func (c *Controller) isShuttingDown() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.shutdown
}

// Shutdown requests a graceful stop: the current iteration completes,
// then Run returns.
func (c *Controller) Shutdown() {
	c.mu.Lock()
	c.shutdown = true
	c.state = StateShuttingDown
	c.mu.Unlock()
	c.Bus.Dispatch(bus.OnShutdown)
}

// FatalError implements spec.md §4.4's fatal_error: log, dispatch
// ON_ERROR, then in daemon mode either restart (past minimum uptime) or
// exit 1.
func (c *Controller) FatalError(msg string) {
	if c.Logger != nil {
		c.Logger.Printf(c.Name, 1, "fatal: %s", msg)
	}
	c.Bus.Dispatch(bus.OnError, fmt.Errorf("%s", msg))

	if !c.Daemonized {
		os.Exit(1)
	}
	if time.Since(c.startedAt)+2*time.Second > minRestartSeconds {
		time.Sleep(2 * time.Second)
		c.Restart()
		return
	}
	os.Exit(1)
}

// autoRestart implements spec.md §4.4's auto_restart: if in daemon mode
// and runtime has reached auto_restart_interval, restart.
func (c *Controller) autoRestart() {
	c.mu.Lock()
	interval := c.Config.AutoRestartInterval
	c.mu.Unlock()
	if !c.Daemonized || interval <= 0 {
		return
	}
	if time.Since(c.startedAt) >= time.Duration(interval)*time.Second {
		c.Restart()
	}
}

// Restart implements spec.md §4.4's restart(): parent-only, re-execs the
// original command line preserving -d/-p, after clearing callbacks to
// prevent re-entrant dispatch during the handoff. The new process is
// responsible for waiting on the singleton lock itself (§4.1); this
// process does not wait for it to start before exiting.
func (c *Controller) Restart() {
	c.mu.Lock()
	c.state = StateRestarting
	c.shutdown = true
	c.mu.Unlock()

	c.Bus.Clear()

	if c.Logger != nil {
		c.Logger.Printf(c.Name, 0, "restarting")
	}
	if c.Metrics != nil {
		c.Metrics.IncRestart()
	}

	if err := reexec(c.Daemonized, c.PidFile); err != nil {
		if c.Logger != nil {
			c.Logger.Printf(c.Name, 2, "restart failed: %v", err)
		}
		os.Exit(1)
	}
	os.Exit(0)
}

// IterationCount reports how many loop iterations have completed, for
// diagnostics.
func (c *Controller) IterationCount() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.iterationNo
}

// Uptime reports elapsed time since Init.
func (c *Controller) Uptime() time.Duration {
	return time.Since(c.startedAt)
}
