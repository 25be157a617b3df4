// Package task implements the Task Forker (C5): one-shot child processes
// that run a user routine and exit. Go has no fork(2); a routine-bearing
// child is obtained by re-executing the current binary with an internal
// marker identifying which registered routine to run, the same
// spawn-and-stream shape the teacher uses for cluster workers
// (cluster.Worker.Spawn), narrowed to a single run with no result channel.
package task

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/theintz/godaemon/internal/bus"
	"github.com/theintz/godaemon/internal/logging"
)

// EnvTaskName is set in a forked child's environment to tell it which
// registered routine to run instead of entering the CLI.
const EnvTaskName = "GODAEMON_TASK_NAME"

// Routine is a user work function run once in a forked child.
type Routine func(ctx context.Context) error

var (
	registryMu sync.Mutex
	registry   = map[string]Routine{}
)

// Register names a routine so a re-exec'd child can find it by name. Call
// this from init() in the same binary that calls Forker.Fork.
func Register(name string, r Routine) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = r
}

// RunIfChild checks whether the current process was launched as a task
// child (EnvTaskName set) and, if so, runs the named routine and returns
// (true, exitCode). The caller's main() should os.Exit(exitCode) when the
// first return value is true, and otherwise proceed to the normal CLI.
func RunIfChild(ctx context.Context) (bool, int) {
	name := os.Getenv(EnvTaskName)
	if name == "" {
		return false, 0
	}
	registryMu.Lock()
	r, ok := registry[name]
	registryMu.Unlock()
	if !ok {
		fmt.Fprintf(os.Stderr, "task: unknown routine %q\n", name)
		return true, 1
	}
	if err := r(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "task: %s failed: %v\n", name, err)
		return true, 1
	}
	return true, 0
}

// Child tracks one forked task process. ID correlates the child's log
// lines and ON_FORK/ON_ERROR payloads across a run, the same way the
// teacher tags cluster job requests with a uuid for correlation.
type Child struct {
	ID        string
	Name      string
	PID       int
	StartedAt time.Time

	cmd  *exec.Cmd
	done chan struct{}
	err  error
}

// Forker owns the parent-side bookkeeping for one-shot task children: it
// spawns them, reaps them, and surfaces non-zero exits through ON_ERROR.
type Forker struct {
	Bus    *bus.Bus
	Logger *logging.Logger

	mu       sync.Mutex
	children []*Child
}

// NewForker builds a Forker dispatching lifecycle events on bus.
func NewForker(b *bus.Bus, logger *logging.Logger) *Forker {
	return &Forker{Bus: b, Logger: logger}
}

// Fork launches a child process to run the routine registered under name.
// The parent dispatches ON_FORK with the new Child right after the process
// starts (the re-exec'd child has no bus of its own); it records the pid
// and reaps asynchronously.
func (f *Forker) Fork(name string) (*Child, error) {
	cmd := exec.Command(os.Args[0], os.Args[1:]...)
	cmd.Env = append(os.Environ(), EnvTaskName+"="+name)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("task: stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("task: stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("task: start %s: %w", name, err)
	}

	child := &Child{ID: uuid.NewString(), Name: name, PID: cmd.Process.Pid, StartedAt: time.Now(), cmd: cmd, done: make(chan struct{})}

	go f.streamLogs(child, "INFO", stdout)
	go f.streamLogs(child, "WARN", stderr)

	go func() {
		defer close(child.done)
		child.err = cmd.Wait()
		f.reap(child)
	}()

	f.mu.Lock()
	f.children = append(f.children, child)
	f.mu.Unlock()

	if f.Bus != nil {
		f.Bus.Dispatch(bus.OnFork, child)
	}
	return child, nil
}

func (f *Forker) reap(child *Child) {
	f.mu.Lock()
	for i, c := range f.children {
		if c == child {
			f.children = append(f.children[:i], f.children[i+1:]...)
			break
		}
	}
	f.mu.Unlock()

	if child.err != nil {
		code := -1
		if exitErr, ok := child.err.(*exec.ExitError); ok {
			code = exitErr.ExitCode()
		}
		if code != 0 && f.Bus != nil {
			f.Bus.Dispatch(bus.OnError, fmt.Errorf("task %s [%s] (pid %d) exited with code %d", child.Name, child.ID, child.PID, code))
		}
	}
}

func (f *Forker) streamLogs(child *Child, level string, r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 256*1024)
	for scanner.Scan() {
		if f.Logger != nil {
			f.Logger.Printf(level, 1, "[task %s %s] %s", child.Name, child.ID, scanner.Text())
		}
	}
}

// Wait blocks until every currently-tracked child has exited.
func (f *Forker) Wait() {
	f.mu.Lock()
	children := make([]*Child, len(f.children))
	copy(children, f.children)
	f.mu.Unlock()
	for _, c := range children {
		<-c.done
	}
}
