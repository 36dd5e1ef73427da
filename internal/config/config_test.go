package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	for _, path := range []string{"", filepath.Join(t.TempDir(), "absent.yml")} {
		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, 5, cfg.Sched.TickMS)
		assert.Equal(t, 2, cfg.Sched.Cores)
		assert.Equal(t, 2, cfg.Monitor.Units, "units default to the core count")
		assert.Equal(t, time.Second, cfg.Monitor.Window())
		assert.Equal(t, time.Second, cfg.Monitor.Delay())
		assert.Equal(t, 5, cfg.Monitor.Slack)
		assert.Equal(t, 6, cfg.Workload.SpinTasks)
		assert.Equal(t, 2, cfg.Workload.SleepTasks)
		assert.Equal(t, 1500, cfg.Workload.SleepMS)
		assert.Equal(t, "info", cfg.Log.Level)
	}
}

func TestLoadOverrides(t *testing.T) {
	path := writeFile(t, `
sched:
  tick_ms: 2
  slice_ticks: 4
  cores: 4
monitor:
  window_ms: 250
  delay_ms: 0
  slack: 8
  csv_path: /tmp/stats.csv
log:
  level: debug
  file: /tmp/runstat.log
metrics:
  addr: ":9100"
workload:
  spin_tasks: 3
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Sched.TickMS)
	assert.Equal(t, 4, cfg.Sched.SliceTicks)
	assert.Equal(t, 4, cfg.Monitor.Units)
	assert.Equal(t, 250*time.Millisecond, cfg.Monitor.Window())
	assert.Equal(t, time.Duration(0), cfg.Monitor.Delay())
	assert.Equal(t, 8, cfg.Monitor.Slack)
	assert.Equal(t, "/tmp/stats.csv", cfg.Monitor.CSVPath)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "/tmp/runstat.log", cfg.Log.File)
	assert.Equal(t, ":9100", cfg.Metrics.Addr)
	assert.Equal(t, 3, cfg.Workload.SpinTasks)
	// untouched keys keep their defaults
	assert.Equal(t, 2, cfg.Workload.Priority)
}

func TestLoadClampsInvalidValues(t *testing.T) {
	path := writeFile(t, `
sched:
  tick_ms: -1
  slice_ticks: 0
  cores: 0
monitor:
  window_ms: 0
  delay_ms: -5
  slack: -2
  max_entities: 0
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Sched.TickMS)
	assert.Equal(t, 5, cfg.Sched.SliceTicks)
	assert.Equal(t, 1, cfg.Sched.Cores)
	assert.Equal(t, 1, cfg.Monitor.Units)
	assert.Equal(t, 1000, cfg.Monitor.WindowMS)
	assert.Equal(t, 0, cfg.Monitor.DelayMS)
	assert.Equal(t, 5, cfg.Monitor.Slack)
	assert.Equal(t, 4096, cfg.Monitor.MaxEntities)
}

func TestLoadMalformed(t *testing.T) {
	path := writeFile(t, "sched: [unterminated\n")
	cfg, err := Load(path)
	require.Error(t, err)
	assert.Equal(t, 5, cfg.Sched.TickMS)
}
