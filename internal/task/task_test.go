package task

import (
	"context"
	"fmt"
	"io"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theintz/godaemon/internal/bus"
	"github.com/theintz/godaemon/internal/logging"
)

// TestMain lets this same test binary double as the forked child: when
// re-exec'd with EnvTaskName set, RunIfChild runs the named routine and
// exits immediately instead of entering the normal test run, mirroring
// how cmd/godaemond's main() checks RunIfChild before anything else.
func TestMain(m *testing.M) {
	Register("ok", func(ctx context.Context) error {
		fmt.Println("child-ok")
		return nil
	})
	Register("fail", func(ctx context.Context) error {
		return fmt.Errorf("deliberate failure")
	})

	if ran, code := RunIfChild(context.Background()); ran {
		os.Exit(code)
	}
	os.Exit(m.Run())
}

func TestRunIfChildUnknownRoutineExitsNonZero(t *testing.T) {
	os.Setenv(EnvTaskName, "does-not-exist")
	defer os.Unsetenv(EnvTaskName)
	ran, code := RunIfChild(context.Background())
	assert.True(t, ran)
	assert.Equal(t, 1, code)
}

func TestRunIfChildNoMarkerIsNoop(t *testing.T) {
	os.Unsetenv(EnvTaskName)
	ran, _ := RunIfChild(context.Background())
	assert.False(t, ran)
}

func TestForkRunsRegisteredRoutineToCompletion(t *testing.T) {
	logger := logging.New(io.Discard, "", true)
	b := bus.New()

	var forked any
	b.On(bus.OnFork, func(args ...any) {
		if len(args) > 0 {
			forked = args[0]
		}
	}, 0)

	f := NewForker(b, logger)
	child, err := f.Fork("ok")
	require.NoError(t, err)
	require.NotNil(t, child)

	f.Wait()

	assert.NotNil(t, forked)
	assert.Greater(t, child.PID, 0)
}

func TestForkOfFailingRoutineDispatchesOnError(t *testing.T) {
	b := bus.New()
	errs := make(chan any, 1)
	b.On(bus.OnError, func(args ...any) {
		if len(args) > 0 {
			select {
			case errs <- args[0]:
			default:
			}
		}
	}, 0)

	f := NewForker(b, logging.New(io.Discard, "", true))
	_, err := f.Fork("fail")
	require.NoError(t, err)
	f.Wait()

	select {
	case e := <-errs:
		assert.Error(t, e.(error))
	case <-time.After(5 * time.Second):
		t.Fatal("ON_ERROR never dispatched for a failing task")
	}
}
