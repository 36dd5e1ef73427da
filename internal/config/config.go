package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	yaml "github.com/goccy/go-yaml"

	"runstat/internal/logger"
	"runstat/internal/runstat"
	"runstat/internal/sched"
)

// Config mirrors config.yml.
type Config struct {
	Sched    sched.Config   `yaml:"sched"`
	Monitor  MonitorConfig  `yaml:"monitor"`
	Log      logger.Config  `yaml:"log"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Workload WorkloadConfig `yaml:"workload"`
}

// MonitorConfig holds the sampling cadence and capture sizing.
type MonitorConfig struct {
	WindowMS    int    `yaml:"window_ms"`    // 1000 (by default)
	DelayMS     int    `yaml:"delay_ms"`     // 1000 (by default)
	Units       int    `yaml:"units"`        // 0 = one per scheduler core
	Slack       int    `yaml:"slack"`        // 5 (by default)
	MaxEntities int    `yaml:"max_entities"` // 4096 (by default)
	CSVPath     string `yaml:"csv_path"`     // per-cycle stats log, empty = off
}

// MetricsConfig enables the Prometheus endpoint.
type MetricsConfig struct {
	Addr string `yaml:"addr"` // e.g. ":9100", empty = off
}

// WorkloadConfig describes the demo tasks: endless spinners plus sleepers
// that finish after a while.
type WorkloadConfig struct {
	SpinTasks   int    `yaml:"spin_tasks"`   // 6 (by default)
	SpinMS      int    `yaml:"spin_ms"`      // busy time per round
	RestTicks   int64  `yaml:"rest_ticks"`   // blocked time per round
	SleepTasks  int    `yaml:"sleep_tasks"`  // 2 (by default)
	SleepMS     int    `yaml:"sleep_ms"`     // lifetime of a sleep task
	Priority    int    `yaml:"priority"`     // 2 (by default)
	StackMargin uint32 `yaml:"stack_margin"` // reported watermark
	EventsCSV   string `yaml:"events_csv"`   // scheduler event log, empty = off
}

// Window returns the sampling window.
func (m MonitorConfig) Window() time.Duration { return time.Duration(m.WindowMS) * time.Millisecond }

// Delay returns the pause between cycles.
func (m MonitorConfig) Delay() time.Duration { return time.Duration(m.DelayMS) * time.Millisecond }

// If the config file is not found, we use default values
func Default() Config {
	return Config{
		Sched: sched.DefaultConfig(),
		Monitor: MonitorConfig{
			WindowMS:    1000,
			DelayMS:     1000,
			Slack:       runstat.DefaultSlack,
			MaxEntities: runstat.DefaultMaxEntities,
		},
		Log: logger.Config{Level: "info"},
		Workload: WorkloadConfig{
			SpinTasks:   6,
			SpinMS:      20,
			RestTicks:   20,
			SleepTasks:  2,
			SleepMS:     1500,
			Priority:    2,
			StackMargin: 1024,
		},
	}
}

// Load reads YAML and overrides defaults; empty path or a missing file
// yields defaults only. A malformed file is an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		return cfg.Normalize(), nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg.Normalize(), nil
	}
	if err != nil {
		return cfg.Normalize(), err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Default().Normalize(), fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg.Normalize(), nil
}

// Normalize applies sanity clamps.
func (c Config) Normalize() Config {
	c.Sched = c.Sched.Normalize()
	if c.Monitor.WindowMS <= 0 {
		c.Monitor.WindowMS = 1000
	}
	if c.Monitor.DelayMS < 0 {
		c.Monitor.DelayMS = 0
	}
	if c.Monitor.Units <= 0 {
		c.Monitor.Units = c.Sched.Cores
	}
	if c.Monitor.Slack < 0 {
		c.Monitor.Slack = runstat.DefaultSlack
	}
	if c.Monitor.MaxEntities <= 0 {
		c.Monitor.MaxEntities = runstat.DefaultMaxEntities
	}
	if c.Workload.SpinTasks < 0 {
		c.Workload.SpinTasks = 0
	}
	if c.Workload.SpinMS <= 0 {
		c.Workload.SpinMS = 20
	}
	if c.Workload.RestTicks <= 0 {
		c.Workload.RestTicks = 20
	}
	if c.Workload.SleepTasks < 0 {
		c.Workload.SleepTasks = 0
	}
	if c.Workload.SleepMS <= 0 {
		c.Workload.SleepMS = 1500
	}
	return c
}
