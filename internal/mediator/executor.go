package mediator

import (
	"context"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/theintz/godaemon/internal/via"
)

// EnvKind and EnvSocket are set in a re-exec'd pool member's environment so
// it knows which registered worker to build and which socket to dial back
// into, mirroring task.EnvTaskName's "tell the child what to be" shape.
const (
	EnvKind   = "GODAEMON_MEDIATOR_KIND"
	EnvSocket = "GODAEMON_MEDIATOR_SOCKET"
)

// WorkerFactory builds a fresh worker instance. Pool members are
// stateless across restarts, so each re-exec'd child calls this once.
type WorkerFactory func() any

var (
	registryMu sync.Mutex
	registry   = map[string]WorkerFactory{}
)

// Register names a worker factory so a re-exec'd pool member can build one
// by kind. Call this from init() in the same binary that constructs the
// Mediator.
func Register(kind string, factory WorkerFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[kind] = factory
}

// RunIfExecutor checks whether the current process was launched as a
// mediator pool member (EnvKind/EnvSocket set) and, if so, blocks running
// the child executor loop (§4.6.3) until the connection closes or ctx is
// done, then returns (true, exitCode). The caller's main() should
// os.Exit(exitCode) when the first return value is true.
func RunIfExecutor(ctx context.Context) (bool, int) {
	kind := os.Getenv(EnvKind)
	socket := os.Getenv(EnvSocket)
	if kind == "" || socket == "" {
		return false, 0
	}
	registryMu.Lock()
	factory, ok := registry[kind]
	registryMu.Unlock()
	if !ok {
		fmt.Fprintf(os.Stderr, "mediator: unknown worker kind %q\n", kind)
		return true, 1
	}

	conn, err := dialWithRetry(socket, 10, 200*time.Millisecond)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mediator: dial %s: %v\n", socket, err)
		return true, 1
	}
	defer conn.Close()

	worker := factory()
	if err := runExecutorLoop(ctx, worker, conn); err != nil {
		fmt.Fprintf(os.Stderr, "mediator: executor loop: %v\n", err)
		return true, 1
	}
	return true, 0
}

func dialWithRetry(socket string, attempts int, delay time.Duration) (net.Conn, error) {
	var lastErr error
	for i := 0; i < attempts; i++ {
		conn, err := net.Dial("unix", socket)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		time.Sleep(delay)
	}
	return nil, lastErr
}

// runExecutorLoop implements the child loop from spec.md §4.6.3: get CALL,
// ack RUNNING, invoke the method, publish RETURN. It never exits on a
// single failed call — only on socket closure (parent death / SIGTERM
// having torn down the connection) or ctx cancellation.
func runExecutorLoop(ctx context.Context, worker any, conn net.Conn) error {
	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()
	defer close(stop)

	for {
		env, err := via.ReadFrame(conn)
		if err != nil {
			return nil // parent closed the connection; clean exit
		}
		if env.Type != via.TypeCall {
			continue
		}

		var callPayload via.CallPayload
		if err := decodePayload(env.Payload, &callPayload); err != nil {
			continue
		}

		_ = via.WriteFrame(conn, via.Message{
			Type:   via.TypeRunning,
			CallID: env.CallID,
			Payload: via.RunningPayload{PID: os.Getpid(), StartedAt: time.Now().Unix()},
		})

		result, callErr := invoke(worker, callPayload.Method, callPayload.Args)
		status := "RETURNED"
		if callErr != nil {
			status = "UNCAUGHT"
			result = encodeError(callErr)
		}
		_ = via.WriteFrame(conn, via.Message{
			Type:   via.TypeReturn,
			CallID: env.CallID,
			Payload: via.ReturnPayload{
				Status:      status,
				ReturnValue: result,
				ReturnedAt:  time.Now().Unix(),
			},
		})
	}
}
