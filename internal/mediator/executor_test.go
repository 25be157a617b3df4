package mediator

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theintz/godaemon/internal/bus"
	"github.com/theintz/godaemon/internal/logging"
)

// echoWorker is the worker kind registered for the re-exec'd executor
// children started by TestPoolRoundTripsCallsThroughRealChildProcesses.
type echoWorker struct{}

func (echoWorker) Double(n int) int { return n * 2 }

// TestMain lets this test binary double as a mediator pool member: when
// re-exec'd with EnvKind/EnvSocket set, RunIfExecutor takes over and never
// reaches m.Run(), mirroring task_test.go's re-exec pattern for Forker.
func TestMain(m *testing.M) {
	Register("echo", func() any { return echoWorker{} })

	if ran, code := RunIfExecutor(context.Background()); ran {
		os.Exit(code)
	}
	os.Exit(m.Run())
}

func TestPoolRoundTripsCallsThroughRealChildProcesses(t *testing.T) {
	if testing.Short() {
		t.Skip("spawns real child processes")
	}

	socket := filepath.Join(t.TempDir(), "mediator.sock")
	b := bus.New()
	logger := logging.New(io.Discard, "", true)

	med := New("echo", socket, func() any { return echoWorker{} }, b, logger)
	med.Workers(2)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, med.Setup(ctx))
	defer med.Teardown(ctx)

	id, err := med.Call("Double", 21)
	require.NoError(t, err)

	var call *Call
	require.Eventually(t, func() bool {
		med.Tick()
		med.mu.Lock()
		call = med.calls[id]
		med.mu.Unlock()
		return call != nil && call.Status().terminal()
	}, 5*time.Second, 20*time.Millisecond)

	assert.Equal(t, StatusReturned, call.Status())
	assert.Equal(t, "42", string(call.ReturnValue()))
}

func TestDialWithRetryGivesUpAfterExhaustingAttempts(t *testing.T) {
	_, err := dialWithRetry(filepath.Join(t.TempDir(), "nothing.sock"), 2, time.Millisecond)
	assert.Error(t, err)
}

func TestRunIfExecutorNoMarkerIsNoop(t *testing.T) {
	os.Unsetenv(EnvKind)
	os.Unsetenv(EnvSocket)
	ran, _ := RunIfExecutor(context.Background())
	assert.False(t, ran)
}

func TestRunIfExecutorUnknownKindExitsNonZero(t *testing.T) {
	os.Setenv(EnvKind, "does-not-exist")
	os.Setenv(EnvSocket, "/tmp/does-not-exist.sock")
	defer os.Unsetenv(EnvKind)
	defer os.Unsetenv(EnvSocket)

	ran, code := RunIfExecutor(context.Background())
	assert.True(t, ran)
	assert.Equal(t, 1, code)
}
