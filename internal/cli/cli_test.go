package cli

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theintz/godaemon/internal/config"
	"github.com/theintz/godaemon/internal/metrics"
)

func TestStatsSidecarPathPrefersPidFile(t *testing.T) {
	assert.Equal(t, "/run/foo.pid.stats", statsSidecarPath("/run/foo.pid", "anything"))
	assert.Equal(t, "/tmp/godaemon.myapp.stats", statsSidecarPath("", "myapp"))
}

func TestMediatorSocketPathPrefersPidFile(t *testing.T) {
	assert.Equal(t, "/run/foo.pid.mediator.sock", mediatorSocketPath("/run/foo.pid", "anything"))
	assert.Equal(t, "/tmp/godaemon.myapp.mediator.sock", mediatorSocketPath("", "myapp"))
}

func TestBootstrapNameFallsBackWhenUnset(t *testing.T) {
	old := bootstrap
	defer func() { bootstrap = old }()

	bootstrap = nil
	assert.Equal(t, "godaemon", bootstrapName())

	bootstrap = &Bootstrap{Name: "myapp"}
	assert.Equal(t, "myapp", bootstrapName())
}

func TestLoopIntervalDurationConvertsSecondsToDuration(t *testing.T) {
	cfg := config.Default()
	cfg.LoopInterval = 2.5
	assert.Equal(t, 2500*time.Millisecond, loopIntervalDuration(cfg))
}

func TestBuildLockProviderDefaultsToNull(t *testing.T) {
	cfg := config.Default()
	lp := buildLockProvider(cfg)
	require.NotNil(t, lp)

	_, held, err := lp.Check(context.Background())
	require.NoError(t, err)
	assert.False(t, held)

	require.NoError(t, lp.Set(context.Background()))
	lease, held, err := lp.Check(context.Background())
	require.NoError(t, err)
	assert.True(t, held)
	assert.Greater(t, lease.OwnerPID, 0)
}

func TestBuildLockProviderFileBackend(t *testing.T) {
	cfg := config.Default()
	cfg.Lock.Backend = "file"
	cfg.Lock.Path = filepath.Join(t.TempDir(), "daemon.lock")
	lp := buildLockProvider(cfg)
	require.NotNil(t, lp)
}

func TestWriteStatsSidecarWritesDiagnosticsAndMetrics(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.stats")
	reg := metrics.New(true)
	reg.IncRestart()

	writeStatsSidecar(path, "diag line\n", reg)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "diag line")
	assert.Contains(t, string(data), "godaemon_restarts_total 1")
}

func TestWriteStatsSidecarNoopOnEmptyPath(t *testing.T) {
	assert.NotPanics(t, func() { writeStatsSidecar("", "x", metrics.New(false)) })
}

func TestNewLoggerWritesToFileWhenPathGiven(t *testing.T) {
	path := filepath.Join(t.TempDir(), "d.log")
	logger, err := newLogger(path)
	require.NoError(t, err)
	require.NotNil(t, logger)
	logger.Printf("test", 1, "hello")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello")
}

func TestStatsCommandErrorsWhenSidecarMissing(t *testing.T) {
	oldPid := flagPidFile
	defer func() { flagPidFile = oldPid }()
	flagPidFile = filepath.Join(t.TempDir(), "missing.pid")

	err := statsCmd.RunE(statsCmd, nil)
	assert.Error(t, err)
}

func TestStatsCommandPrintsSidecarContents(t *testing.T) {
	oldPid := flagPidFile
	defer func() { flagPidFile = oldPid }()
	flagPidFile = filepath.Join(t.TempDir(), "running.pid")
	require.NoError(t, os.WriteFile(flagPidFile+".stats", []byte("hello from sidecar\n"), 0o644))

	stdout := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w
	err := statsCmd.RunE(statsCmd, nil)
	w.Close()
	os.Stdout = stdout
	require.NoError(t, err)

	var buf bytes.Buffer
	_, _ = io.Copy(&buf, r)
	assert.Contains(t, buf.String(), "hello from sidecar")
}

func TestLockStatusCommandReportsNoLiveLeaseForNullProvider(t *testing.T) {
	oldCfg := flagConfig
	defer func() { flagConfig = oldCfg }()
	flagConfig = filepath.Join(t.TempDir(), "missing.yaml")

	stdout := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w
	err := lockStatusCmd.RunE(lockStatusCmd, nil)
	w.Close()
	os.Stdout = stdout
	require.NoError(t, err)

	var buf bytes.Buffer
	_, _ = io.Copy(&buf, r)
	assert.Contains(t, buf.String(), "no live lease")
}
