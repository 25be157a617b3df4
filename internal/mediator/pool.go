package mediator

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/theintz/godaemon/internal/logging"
)

// Rapid-restart protection, ported from the teacher's
// cluster.ClusterManager monitor loop (same constants, same shape),
// applied per pool member instead of per cluster worker.
const (
	maxRapidRestarts   = 5
	rapidRestartWindow = 10 * time.Second
	respawnCooldown    = 30 * time.Second
)

type memberState int

const (
	memberIdle memberState = iota
	memberRunning
	memberStopped
	memberCrashed
)

// member is one pool child process (spec.md §4.6.4's "pid → {spawned_at,
// current_call_id?}").
type member struct {
	id  int
	mu  sync.RWMutex
	cmd *exec.Cmd

	state      memberState
	pid        int
	spawnedAt  time.Time
	currentCall int64 // 0 when idle

	restarts       int
	lastRespawn    time.Time
	done           chan struct{}
}

func (m *member) isAlive() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state == memberRunning
}

func (m *member) setCurrentCall(id int64) {
	m.mu.Lock()
	m.currentCall = id
	m.mu.Unlock()
}

// clearCurrentCallIfMatches resets currentCall to idle only if it still
// points at id, so a late clear for a call that already resolved doesn't
// stomp on a new call the member has since picked up.
func (m *member) clearCurrentCallIfMatches(id int64) {
	m.mu.Lock()
	if m.currentCall == id {
		m.currentCall = 0
	}
	m.mu.Unlock()
}

func (m *member) getCurrentCall() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.currentCall
}

// pool manages the mediator's child executor processes, spawned by
// re-exec'ing the current binary with EnvKind/EnvSocket set (see
// executor.go), the same way cluster.Worker.Spawn launches a managed
// child and streams its stdio.
type pool struct {
	kind       string
	socketPath string
	size       int
	respawn    bool
	logger     *logging.Logger

	mu      sync.Mutex
	members []*member
	stopped bool

	onMemberExit func(m *member) // called whenever a member exits
}

func newPool(kind, socketPath string, size int, logger *logging.Logger) *pool {
	return &pool{kind: kind, socketPath: socketPath, size: size, respawn: true, logger: logger}
}

func (p *pool) start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.members = make([]*member, p.size)
	for i := 0; i < p.size; i++ {
		m := &member{id: i}
		p.members[i] = m
		if err := p.spawn(ctx, m); err != nil {
			return fmt.Errorf("mediator: spawn pool member %d: %w", i, err)
		}
	}
	return nil
}

func (p *pool) spawn(ctx context.Context, m *member) error {
	cmd := exec.CommandContext(context.Background(), os.Args[0], os.Args[1:]...)
	cmd.Env = append(os.Environ(),
		EnvKind+"="+p.kind,
		EnvSocket+"="+p.socketPath,
	)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return err
	}

	m.mu.Lock()
	m.cmd = cmd
	m.pid = cmd.Process.Pid
	m.spawnedAt = time.Now()
	m.state = memberRunning
	m.currentCall = 0
	m.done = make(chan struct{})
	done := m.done
	m.mu.Unlock()

	go func() {
		defer close(done)
		err := cmd.Wait()

		m.mu.Lock()
		m.state = memberCrashed
		if err == nil {
			m.state = memberStopped
		}
		m.mu.Unlock()

		if p.logger != nil {
			p.logger.Printf("mediator", 1, "pool member %d (pid %d) exited: %v", m.id, m.pid, err)
		}

		if p.onMemberExit != nil {
			p.onMemberExit(m)
		}

		p.maybeRespawn(ctx, m)
	}()

	return nil
}

func (p *pool) maybeRespawn(ctx context.Context, m *member) {
	p.mu.Lock()
	stopped := p.stopped
	p.mu.Unlock()
	if stopped || !p.respawn {
		return
	}

	now := time.Now()
	m.mu.Lock()
	wasRapid := now.Sub(m.spawnedAt) < rapidRestartWindow
	if !wasRapid {
		// Ran long enough between spawns that this crash doesn't count
		// against the rapid-restart budget.
		m.restarts = 0
	}
	if m.restarts >= maxRapidRestarts {
		sinceLast := now.Sub(m.lastRespawn)
		if sinceLast < respawnCooldown {
			m.mu.Unlock()
			if p.logger != nil {
				p.logger.Printf("mediator", 1, "pool member %d in cooldown, retrying in %s", m.id, respawnCooldown-sinceLast)
			}
			time.AfterFunc(respawnCooldown-sinceLast, func() { p.maybeRespawn(ctx, m) })
			return
		}
		m.restarts = 0
	}
	m.restarts++
	m.lastRespawn = now
	m.mu.Unlock()

	if err := p.spawn(ctx, m); err != nil && p.logger != nil {
		p.logger.Printf("mediator", 1, "failed to respawn pool member %d: %v", m.id, err)
	}
}

// memberByPID finds the pool member currently running as pid, for
// attributing an incoming RUNNING frame to the child that sent it.
func (p *pool) memberByPID(pid int) *member {
	p.mu.Lock()
	members := make([]*member, len(p.members))
	copy(members, p.members)
	p.mu.Unlock()

	for _, m := range members {
		m.mu.RLock()
		match := m.pid == pid
		m.mu.RUnlock()
		if match {
			return m
		}
	}
	return nil
}

// memberByID finds a pool member by its stable slot index.
func (p *pool) memberByID(id int) *member {
	p.mu.Lock()
	defer p.mu.Unlock()
	if id < 0 || id >= len(p.members) {
		return nil
	}
	return p.members[id]
}

func (p *pool) statusStrings() []memberStatus {
	p.mu.Lock()
	members := make([]*member, len(p.members))
	copy(members, p.members)
	p.mu.Unlock()

	out := make([]memberStatus, 0, len(members))
	for _, m := range members {
		m.mu.RLock()
		st := memberStatus{
			ID:        m.id,
			PID:       m.pid,
			State:     stateName(m.state),
			SpawnedAt: m.spawnedAt,
			Restarts:  m.restarts,
		}
		m.mu.RUnlock()
		out = append(out, st)
	}
	return out
}

func stateName(s memberState) string {
	switch s {
	case memberIdle:
		return "IDLE"
	case memberRunning:
		return "RUNNING"
	case memberStopped:
		return "STOPPED"
	case memberCrashed:
		return "CRASHED"
	default:
		return "UNKNOWN"
	}
}

// memberStatus is the package-internal view of a pool member handed to
// the parent Mediator for diagnostics rendering.
type memberStatus struct {
	ID        int
	PID       int
	State     string
	SpawnedAt time.Time
	Restarts  int
}

func (p *pool) stop() {
	p.mu.Lock()
	p.stopped = true
	members := make([]*member, len(p.members))
	copy(members, p.members)
	p.mu.Unlock()

	for _, m := range members {
		m.mu.RLock()
		cmd := m.cmd
		alive := m.state == memberRunning
		m.mu.RUnlock()
		if alive && cmd != nil && cmd.Process != nil {
			_ = cmd.Process.Signal(terminateSignal())
		}
	}
	for _, m := range members {
		m.mu.RLock()
		done := m.done
		m.mu.RUnlock()
		if done == nil {
			continue
		}
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			m.mu.RLock()
			cmd := m.cmd
			m.mu.RUnlock()
			if cmd != nil && cmd.Process != nil {
				_ = cmd.Process.Kill()
			}
		}
	}
}
