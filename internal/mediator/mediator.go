// Package mediator implements the Worker Mediator (C6): it turns
// synchronous-looking method calls on a user-supplied worker object into
// asynchronous jobs executed by a pool of child processes, with timeouts,
// retries, back-pressure, and call-lifecycle tracking.
package mediator

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/theintz/godaemon/internal/bus"
	"github.com/theintz/godaemon/internal/logging"
	"github.com/theintz/godaemon/internal/via"
)

// ErrBackpressure is returned by Call when the transport is saturated
// (spec.md §4.6.2 step 5); the caller should retry later.
var ErrBackpressure = fmt.Errorf("mediator: back-pressure: queue saturated")

const (
	defaultHighWater  = 512
	defaultLowWater   = 128
	defaultGrace      = 60 * time.Second
	defaultMaxMemberMB = 0 // disabled unless configured
)

// Mediator is the parent-side object wrapping a worker: it owns the pool,
// the transport, and the Call table.
type Mediator struct {
	Kind       string
	SocketPath string
	Bus        *bus.Bus
	Logger     *logging.Logger

	MaxMemberMemoryMB int

	mu          sync.Mutex
	poolSize    int
	retries     int
	timeouts    map[string]time.Duration
	defaultTO   time.Duration

	nextID    int64
	calls     map[int64]*Call
	callMember map[int64]int // call id -> member id, for §4.6.4 supervision

	onReturn  []func(*Call)
	onTimeout []func(*Call)

	via      *via.Via
	pool     *pool
	listener net.Listener

	inlineOnce sync.Once
	inlineObj  any
	factory    WorkerFactory

	highWater     int
	lowWater      int
	backpressured bool
	grace         time.Duration
}

// New builds a Mediator for the worker kind previously registered with
// Register(kind, factory). socketPath is the Unix domain socket the pool
// members dial back into.
func New(kind, socketPath string, factory WorkerFactory, b *bus.Bus, logger *logging.Logger) *Mediator {
	return &Mediator{
		Kind:       kind,
		SocketPath: socketPath,
		Bus:        b,
		Logger:     logger,
		poolSize:   1,
		retries:    3,
		timeouts:   make(map[string]time.Duration),
		defaultTO:  30 * time.Second,
		calls:      make(map[int64]*Call),
		callMember: make(map[int64]int),
		via:        via.New(),
		factory:    factory,
		highWater:  defaultHighWater,
		lowWater:   defaultLowWater,
		grace:      defaultGrace,
	}
}

// Workers sets the pool size. Must be called before Setup.
func (m *Mediator) Workers(n int) { m.mu.Lock(); m.poolSize = n; m.mu.Unlock() }

// Retries stores the maximum transport retry count. The value is not
// consulted: a CALL whose write to a pool member fails is put back on the
// queue with no limit, and no call is marked failed for running out of
// retries.
func (m *Mediator) Retries(n int) { m.mu.Lock(); m.retries = n; m.mu.Unlock() }

// Timeout sets the per-method elapsed-time bound between CALLED and
// RETURNED.
func (m *Mediator) Timeout(method string, d time.Duration) {
	m.mu.Lock()
	m.timeouts[method] = d
	m.mu.Unlock()
}

// OnReturn registers a listener invoked exactly once per call that
// reaches RETURNED.
func (m *Mediator) OnReturn(fn func(*Call)) {
	m.mu.Lock()
	m.onReturn = append(m.onReturn, fn)
	m.mu.Unlock()
}

// OnTimeout registers a listener invoked exactly once per call that
// reaches TIMEOUT or UNCAUGHT (the latter documented as a timeout-class
// failure per spec.md §4.6.4).
func (m *Mediator) OnTimeout(fn func(*Call)) {
	m.mu.Lock()
	m.onTimeout = append(m.onTimeout, fn)
	m.mu.Unlock()
}

// Setup forks the pool: starts the Unix socket listener and spawns
// poolSize re-exec'd children, each running the executor loop (§4.6.3).
func (m *Mediator) Setup(ctx context.Context) error {
	_ = os.Remove(m.SocketPath)
	l, err := net.Listen("unix", m.SocketPath)
	if err != nil {
		return fmt.Errorf("mediator: listen %s: %w", m.SocketPath, err)
	}
	m.listener = l

	go m.acceptLoop(ctx)

	p := newPool(m.Kind, m.SocketPath, m.poolSize, m.Logger)
	p.onMemberExit = m.handleMemberExit
	if err := p.start(ctx); err != nil {
		return err
	}
	m.pool = p

	if m.MaxMemberMemoryMB > 0 {
		go m.monitorMemberMemory(ctx)
	}
	return nil
}

// Teardown signals the pool to exit, reaps all children, and releases the
// transport.
func (m *Mediator) Teardown(ctx context.Context) error {
	if m.pool != nil {
		m.pool.stop()
	}
	if m.listener != nil {
		_ = m.listener.Close()
	}
	m.via.Release()
	return nil
}

func (m *Mediator) acceptLoop(ctx context.Context) {
	for {
		conn, err := m.listener.Accept()
		if err != nil {
			return
		}
		go m.serveMember(ctx, conn)
	}
}

// serveMember pairs one pool member's connection with the shared CALL
// queue: it pulls the next CALL (work-stealing across however many
// members are currently connected) and relays RUNNING/RETURN frames back
// into the via queues for Tick to consume.
func (m *Mediator) serveMember(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	go func() {
		for {
			msg, ok := m.via.Get(ctx, via.TypeCall, true)
			if !ok {
				return
			}
			if err := via.WriteFrame(conn, msg); err != nil {
				m.via.RecordError()
				m.via.Put(msg) // put back for another member to pick up
				return
			}
		}
	}()

	for {
		env, err := via.ReadFrame(conn)
		if err != nil {
			return
		}
		switch env.Type {
		case via.TypeRunning:
			var p via.RunningPayload
			if decodePayload(env.Payload, &p) == nil {
				m.via.Put(via.Message{Type: via.TypeRunning, CallID: env.CallID, Payload: p})
			}
		case via.TypeReturn:
			var p via.ReturnPayload
			if decodePayload(env.Payload, &p) == nil {
				m.via.Put(via.Message{Type: via.TypeReturn, CallID: env.CallID, Payload: p})
			}
		}
	}
}

// Call enqueues method(args...) and returns its Call id. Returns
// ErrBackpressure instead of a new id when the transport is saturated
// (spec.md §4.6.2.5): once the queue trips highWater, Call keeps refusing
// work until the queue has drained below lowWater, not merely below
// highWater again.
func (m *Mediator) Call(method string, args ...any) (int64, error) {
	if m.backpressureActive() {
		return 0, ErrBackpressure
	}

	encoded := make([]json.RawMessage, len(args))
	for i, a := range args {
		data, err := json.Marshal(a)
		if err != nil {
			return 0, fmt.Errorf("mediator: encode arg %d: %w", i, err)
		}
		encoded[i] = data
	}

	id := atomic.AddInt64(&m.nextID, 1)
	call := newCall(id, method, encoded)
	call.setStatus(StatusCalled)
	call.mu.Lock()
	call.queuedAt = time.Now()
	call.mu.Unlock()

	m.mu.Lock()
	m.calls[id] = call
	m.mu.Unlock()

	m.via.Put(via.Message{
		Type:   via.TypeCall,
		CallID: id,
		Payload: via.CallPayload{Method: method, Args: encoded, Retries: 0, QueuedAt: call.queuedAt.Unix()},
	})
	return id, nil
}

// backpressureActive reports whether Call should currently refuse new
// work, latching at highWater and releasing only once the queue has
// drained below lowWater (the hysteresis band spec.md §4.6.2.5 requires,
// so back-pressure doesn't flap on and off at the high-water line).
func (m *Mediator) backpressureActive() bool {
	n := m.via.Stat().Messages

	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case m.backpressured && n < m.lowWater:
		m.backpressured = false
	case !m.backpressured && n >= m.highWater:
		m.backpressured = true
	}
	return m.backpressured
}

// Inline returns the underlying worker object for direct synchronous
// invocation in the parent, bypassing the queue. Timeouts do not apply.
func (m *Mediator) Inline() any {
	m.inlineOnce.Do(func() { m.inlineObj = m.factory() })
	return m.inlineObj
}

// Tick runs one parent-iteration pass over the Call table (§4.6.2): drain
// RUNNING, drain RETURN, sweep timeouts, garbage-collect terminal calls.
func (m *Mediator) Tick() {
	m.drainRunning()
	m.drainReturn()
	m.sweepTimeouts()
	m.gc()
}

func (m *Mediator) drainRunning() {
	for {
		msg, ok := m.via.Get(nil, via.TypeRunning, false)
		if !ok {
			return
		}
		m.mu.Lock()
		call := m.calls[msg.CallID]
		m.mu.Unlock()
		if call == nil {
			continue
		}
		call.setStatus(StatusRunning)
		call.mu.Lock()
		call.startedAt = time.Now()
		call.mu.Unlock()

		m.attributeToMember(msg)
	}
}

// attributeToMember records which pool member owns msg's call (by the
// RUNNING frame's reported pid), so handleMemberExit can find and fail
// the call that member was mid-processing when it dies (spec.md §4.6.4).
func (m *Mediator) attributeToMember(msg via.Message) {
	payload, ok := msg.Payload.(via.RunningPayload)
	if !ok {
		return
	}
	m.mu.Lock()
	p := m.pool
	m.mu.Unlock()
	if p == nil {
		return
	}
	mem := p.memberByPID(payload.PID)
	if mem == nil {
		return
	}
	mem.setCurrentCall(msg.CallID)
	m.mu.Lock()
	m.callMember[msg.CallID] = mem.id
	m.mu.Unlock()
}

// releaseMember clears the pool member's currentCall once callID resolves,
// so a member isn't reported (or treated by handleMemberExit) as still
// mid-call after its call has already reached a terminal status.
func (m *Mediator) releaseMember(callID int64) {
	m.mu.Lock()
	memberID, ok := m.callMember[callID]
	p := m.pool
	m.mu.Unlock()
	if !ok || p == nil {
		return
	}
	if mem := p.memberByID(memberID); mem != nil {
		mem.clearCurrentCallIfMatches(callID)
	}
}

func (m *Mediator) drainReturn() {
	for {
		msg, ok := m.via.Get(nil, via.TypeReturn, false)
		if !ok {
			return
		}
		m.mu.Lock()
		call := m.calls[msg.CallID]
		m.mu.Unlock()
		if call == nil {
			// Late return for a call we already marked TIMEOUT and GC'd:
			// log and drop (spec.md §9 open question).
			if m.Logger != nil {
				m.Logger.Printf("mediator", 1, "late RETURN for unknown call %d: dropped", msg.CallID)
			}
			continue
		}

		payload, ok := msg.Payload.(via.ReturnPayload)
		if !ok {
			continue
		}

		call.mu.Lock()
		call.returnValue = payload.ReturnValue
		call.returnedAt = time.Now()
		call.gcAt = call.returnedAt.Add(m.grace)
		wasAlreadyTerminal := call.status.terminal()
		if !wasAlreadyTerminal {
			if payload.Status == "RETURNED" {
				call.status = StatusReturned
			} else {
				call.status = StatusUncaught
			}
		}
		status := call.status
		call.mu.Unlock()

		if wasAlreadyTerminal {
			continue
		}
		m.releaseMember(call.ID)
		if status == StatusReturned {
			m.fireOnReturn(call)
		} else {
			m.fireOnTimeout(call)
		}
	}
}

func (m *Mediator) sweepTimeouts() {
	now := time.Now()
	m.mu.Lock()
	calls := make([]*Call, 0, len(m.calls))
	for _, c := range m.calls {
		calls = append(calls, c)
	}
	m.mu.Unlock()

	for _, call := range calls {
		snap := call.snapshot()
		if snap.status != StatusCalled && snap.status != StatusRunning {
			continue
		}
		timeout := m.timeoutFor(call.Method)
		reference := snap.queuedAt
		if !snap.startedAt.IsZero() {
			reference = snap.startedAt
		}
		if now.Sub(reference) <= timeout {
			continue
		}

		call.mu.Lock()
		call.status = StatusTimeout
		call.gcAt = now.Add(m.grace)
		call.mu.Unlock()

		m.via.Drop(call.ID)
		m.fireOnTimeout(call)
	}
}

func (m *Mediator) gc() {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, call := range m.calls {
		snap := call.snapshot()
		if snap.status.terminal() && !snap.gcAt.IsZero() && now.After(snap.gcAt) {
			delete(m.calls, id)
			delete(m.callMember, id)
		}
	}
}

func (m *Mediator) timeoutFor(method string) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.timeouts[method]; ok {
		return d
	}
	return m.defaultTO
}

func (m *Mediator) fireOnReturn(call *Call) {
	m.mu.Lock()
	listeners := append([]func(*Call){}, m.onReturn...)
	m.mu.Unlock()
	for _, fn := range listeners {
		fn(call)
	}
}

func (m *Mediator) fireOnTimeout(call *Call) {
	m.mu.Lock()
	listeners := append([]func(*Call){}, m.onTimeout...)
	m.mu.Unlock()
	for _, fn := range listeners {
		fn(call)
	}
}

// MemberStatus is the parent-facing view of one pool member, consumed by
// the CLI layer to build a sysdiag.Snapshot without this package
// depending on sysdiag.
type MemberStatus struct {
	ID        int
	PID       int
	State     string
	SpawnedAt time.Time
	Restarts  int
}

// MemberStatuses reports the current state of every pool member.
func (m *Mediator) MemberStatuses() []MemberStatus {
	m.mu.Lock()
	p := m.pool
	m.mu.Unlock()
	if p == nil {
		return nil
	}
	raw := p.statusStrings()
	out := make([]MemberStatus, len(raw))
	for i, r := range raw {
		out[i] = MemberStatus{ID: r.ID, PID: r.PID, State: r.State, SpawnedAt: r.SpawnedAt, Restarts: r.Restarts}
	}
	return out
}

// handleMemberExit implements spec.md §4.6.4: if a pool member died while
// holding a call (tracked via the RUNNING message's implicit assignment),
// mark that call UNCAUGHT and dispatch on_timeout.
func (m *Mediator) handleMemberExit(mem *member) {
	callID := mem.getCurrentCall()
	if callID == 0 {
		return
	}
	m.mu.Lock()
	call := m.calls[callID]
	m.mu.Unlock()
	if call == nil {
		return
	}
	call.mu.Lock()
	if call.status.terminal() {
		call.mu.Unlock()
		return
	}
	call.status = StatusUncaught
	call.gcAt = time.Now().Add(m.grace)
	call.mu.Unlock()
	m.fireOnTimeout(call)
}

// monitorMemberMemory samples each pool member's RSS via gopsutil, the
// same way cluster.ClusterManager enforces MaxMemory on cluster workers,
// and lets the member exit cleanly (for the supervisor to respawn) once it
// exceeds the configured threshold (spec.md §4.6.3's "exceeding a memory
// threshold").
func (m *Mediator) monitorMemberMemory(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	maxBytes := uint64(m.MaxMemberMemoryMB) * 1024 * 1024

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		m.mu.Lock()
		p := m.pool
		m.mu.Unlock()
		if p == nil {
			continue
		}
		p.mu.Lock()
		members := append([]*member{}, p.members...)
		p.mu.Unlock()

		for _, mem := range members {
			if !mem.isAlive() {
				continue
			}
			proc, err := process.NewProcess(int32(mem.pid))
			if err != nil {
				continue
			}
			info, err := proc.MemoryInfo()
			if err != nil || info.RSS <= maxBytes {
				continue
			}
			if m.Logger != nil {
				m.Logger.Printf("mediator", 1, "pool member %d exceeded memory threshold (%d MB), recycling", mem.id, info.RSS/1024/1024)
			}
			mem.mu.RLock()
			cmd := mem.cmd
			mem.mu.RUnlock()
			if cmd != nil && cmd.Process != nil {
				_ = cmd.Process.Signal(terminateSignal())
			}
		}
	}
}
