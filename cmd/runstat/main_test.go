package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"runstat/internal/config"
	"runstat/internal/runstat"
	"runstat/internal/sched"
)

func TestLoadConfigAppliesChangedFlags(t *testing.T) {
	root := buildRoot()
	require.NoError(t, root.PersistentFlags().Parse([]string{
		"--config", filepath.Join(t.TempDir(), "none.yml"),
		"--cores", "3",
		"--window", "250ms",
		"--spin", "1",
		"--sleep", "0",
	}))

	var f flags
	f.ConfigPath, _ = root.PersistentFlags().GetString("config")
	f.Cores, _ = root.PersistentFlags().GetInt("cores")
	f.Window, _ = root.PersistentFlags().GetDuration("window")
	f.SpinTasks, _ = root.PersistentFlags().GetInt("spin")
	f.SleepTasks, _ = root.PersistentFlags().GetInt("sleep")

	cfg, err := loadConfig(f, root.PersistentFlags().Changed)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Sched.Cores)
	assert.Equal(t, 3, cfg.Monitor.Units)
	assert.Equal(t, 250, cfg.Monitor.WindowMS)
	assert.Equal(t, 1, cfg.Workload.SpinTasks)
	assert.Equal(t, 0, cfg.Workload.SleepTasks)
	assert.Equal(t, 1000, cfg.Monitor.DelayMS, "unset flags keep config values")
}

func TestRunOnceReportsOneCycle(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Sched.TickMS = 1
	cfg.Sched.Cores = 2
	cfg.Monitor.WindowMS = 100
	cfg.Monitor.CSVPath = filepath.Join(dir, "stats.csv")
	cfg.Workload.SpinTasks = 3
	cfg.Workload.SpinMS = 2
	cfg.Workload.RestTicks = 2
	cfg.Workload.SleepTasks = 1
	cfg.Workload.SleepMS = 20
	cfg.Log.Level = "error"
	cfg = cfg.Normalize()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var out bytes.Buffer
	require.NoError(t, runMonitor(ctx, cfg, true, &out))

	text := out.String()
	assert.Contains(t, text, "Per-core overall CPU usage:")
	assert.Contains(t, text, "Core 1:")
	for _, name := range []string{"spin0", "spin1", "spin2", "IDLE0", "IDLE1"} {
		assert.Contains(t, text, "| "+name)
	}
	assert.True(t, strings.HasSuffix(text, "Real time stats obtained\n"))

	data, err := os.ReadFile(cfg.Monitor.CSVPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), ",task,1,spin0,")
}

func TestAddWorkloadNumbersSpinThenSleepTasks(t *testing.T) {
	s := sched.NewWithClock(sched.Config{TickMS: 1, SliceTicks: 5, Cores: 1}, sched.NewTickClock(1), zaptest.NewLogger(t))
	w := config.Default().Workload
	w.SpinTasks, w.SleepTasks = 2, 2
	require.NoError(t, addWorkload(s, w))

	buf := make([]runstat.Entity, s.EntityCount())
	n, _ := s.Fill(buf)
	require.Equal(t, 5, n)
	names := make([]string, 0, n)
	for i, e := range buf[:n-1] {
		assert.Equal(t, runstat.Identity(i+1), e.Identity)
		assert.Equal(t, w.StackMargin, e.StackMargin)
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{"spin0", "spin1", "sleep0", "sleep1"}, names)
}
