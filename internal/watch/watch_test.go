package watch

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theintz/godaemon/internal/bus"
)

func TestWatchConfigFiresOnReloadOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "daemon.yaml")
	require.NoError(t, os.WriteFile(path, []byte("loop_interval: 0\n"), 0o644))

	w, err := New(bus.New(), nil)
	require.NoError(t, err)
	defer w.Close()

	reloaded := make(chan struct{}, 1)
	require.NoError(t, w.WatchConfig(path, func() {
		select {
		case reloaded <- struct{}{}:
		default:
		}
	}))
	w.Start()

	time.Sleep(20 * time.Millisecond) // let the watch registration settle
	require.NoError(t, os.WriteFile(path, []byte("loop_interval: 1\n"), 0o644))

	select {
	case <-reloaded:
	case <-time.After(2 * time.Second):
		t.Fatal("onReload never fired after config write")
	}
}

func TestWatchPidFileDispatchesOnErrorWhenRemoved(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "daemon.pid")
	require.NoError(t, os.WriteFile(path, []byte("123\n"), 0o644))

	b := bus.New()
	fired := make(chan any, 1)
	b.On(bus.OnError, func(args ...any) {
		if len(args) > 0 {
			select {
			case fired <- args[0]:
			default:
			}
		}
	}, 0)

	w, err := New(b, nil)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.WatchPidFile(path))
	w.Start()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, os.Remove(path))

	select {
	case msg := <-fired:
		assert.Contains(t, msg, "pid file removed")
	case <-time.After(2 * time.Second):
		t.Fatal("ON_ERROR never dispatched after pid file removal")
	}
}
