package mediator

import (
	"encoding/json"
	"sync"
	"time"
)

// Status is a Call's lifecycle state (spec.md §3).
type Status string

const (
	StatusUncalled  Status = "UNCALLED"
	StatusCalled    Status = "CALLED"
	StatusRunning   Status = "RUNNING"
	StatusReturned  Status = "RETURNED"
	StatusCancelled Status = "CANCELLED"
	StatusTimeout   Status = "TIMEOUT"
	StatusUncaught  Status = "UNCAUGHT"
)

// terminal reports whether s is a terminal status eligible for GC after
// the grace period.
func (s Status) terminal() bool {
	switch s {
	case StatusReturned, StatusCancelled, StatusTimeout, StatusUncaught:
		return true
	default:
		return false
	}
}

// Call is the unit of work flowing through the mediator (spec.md §3).
type Call struct {
	ID     int64
	Method string
	Args   []json.RawMessage

	mu          sync.Mutex
	retries     int
	errors      int
	queuedAt    time.Time
	startedAt   time.Time
	returnedAt  time.Time
	gcAt        time.Time
	status      Status
	returnValue json.RawMessage
}

func newCall(id int64, method string, args []json.RawMessage) *Call {
	return &Call{ID: id, Method: method, Args: args, status: StatusUncalled}
}

func (c *Call) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Call) setStatus(s Status) {
	c.mu.Lock()
	c.status = s
	c.mu.Unlock()
}

// ReturnValue returns the call's result; only meaningful once Status() is
// StatusReturned.
func (c *Call) ReturnValue() json.RawMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.returnValue
}

func (c *Call) snapshot() callSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return callSnapshot{
		status:     c.status,
		queuedAt:   c.queuedAt,
		startedAt:  c.startedAt,
		returnedAt: c.returnedAt,
		gcAt:       c.gcAt,
		retries:    c.retries,
		errors:     c.errors,
	}
}

type callSnapshot struct {
	status     Status
	queuedAt   time.Time
	startedAt  time.Time
	returnedAt time.Time
	gcAt       time.Time
	retries    int
	errors     int
}
