package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverlaysFileOntoDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon.yaml")
	yaml := []byte("loop_interval: 0.5\nlock:\n  backend: file\n  path: /tmp/d.lock\n")
	require.NoError(t, os.WriteFile(path, yaml, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0.5, cfg.LoopInterval)
	assert.Equal(t, "file", cfg.Lock.Backend)
	assert.Equal(t, "/tmp/d.lock", cfg.Lock.Path)
	// Fields not present in the file keep their Default() value.
	assert.Equal(t, Default().AutoRestartInterval, cfg.AutoRestartInterval)
}

func TestLoadMalformedFileIsAnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon.yaml")
	require.NoError(t, os.WriteFile(path, []byte("not: [valid: yaml"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLockTTLFallsBackWhenUnset(t *testing.T) {
	cfg := Config{}
	assert.Equal(t, 15*time.Second, cfg.LockTTL())

	cfg.Lock.TTLSeconds = 30
	assert.Equal(t, 30*time.Second, cfg.LockTTL())
}

func TestTimeoutForFallsBackWhenMethodUnconfigured(t *testing.T) {
	cfg := Config{Mediator: MediatorConfig{Timeouts: map[string]float64{"square": 1.5}}}
	assert.Equal(t, 1500*time.Millisecond, cfg.TimeoutFor("square", 5*time.Second))
	assert.Equal(t, 5*time.Second, cfg.TimeoutFor("unknown", 5*time.Second))
}
