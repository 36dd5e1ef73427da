package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"runstat/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := buildRoot().ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// flags holds command-line overrides for the config file.
type flags struct {
	ConfigPath  string
	Cores       int
	Window      time.Duration
	Delay       time.Duration
	MetricsAddr string
	CSVPath     string
	LogLevel    string
	LogFile     string
	SpinTasks   int
	SleepTasks  int
}

func buildRoot() *cobra.Command {
	var f flags
	root := &cobra.Command{
		Use:           "runstat",
		Short:         "Per-task and per-core CPU utilization of a tick scheduler",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&f.ConfigPath, "config", "config.yml", "path to the YAML config file")
	pf.IntVar(&f.Cores, "cores", 0, "number of scheduler cores")
	pf.DurationVar(&f.Window, "window", 0, "sampling window between the two captures of a cycle")
	pf.DurationVar(&f.Delay, "delay", 0, "pause between cycles")
	pf.StringVar(&f.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	pf.StringVar(&f.CSVPath, "csv", "", "append per-cycle stats to this CSV file")
	pf.StringVar(&f.LogLevel, "log-level", "", "debug, info, warn or error")
	pf.StringVar(&f.LogFile, "log-file", "", "also write JSON logs to this rotated file")
	pf.IntVar(&f.SpinTasks, "spin", 0, "number of demo spin tasks")
	pf.IntVar(&f.SleepTasks, "sleep", 0, "number of demo tasks that sleep, then finish")

	root.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Sample the demo workload forever",
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, err := loadConfig(f, cmd.Flags().Changed)
				if err != nil {
					return err
				}
				return runMonitor(cmd.Context(), cfg, false, cmd.OutOrStdout())
			},
		},
		&cobra.Command{
			Use:   "once",
			Short: "Sample the demo workload for a single cycle and exit",
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, err := loadConfig(f, cmd.Flags().Changed)
				if err != nil {
					return err
				}
				return runMonitor(cmd.Context(), cfg, true, cmd.OutOrStdout())
			},
		},
	)
	return root
}

// loadConfig reads the config file and applies the flags that were set.
func loadConfig(f flags, changed func(name string) bool) (config.Config, error) {
	cfg, err := config.Load(f.ConfigPath)
	if err != nil {
		return cfg, err
	}

	if changed("cores") {
		cfg.Sched.Cores = f.Cores
		cfg.Monitor.Units = 0
	}
	if changed("window") {
		cfg.Monitor.WindowMS = int(f.Window.Milliseconds())
	}
	if changed("delay") {
		cfg.Monitor.DelayMS = int(f.Delay.Milliseconds())
	}
	if changed("metrics-addr") {
		cfg.Metrics.Addr = f.MetricsAddr
	}
	if changed("csv") {
		cfg.Monitor.CSVPath = f.CSVPath
	}
	if changed("log-level") {
		cfg.Log.Level = f.LogLevel
	}
	if changed("log-file") {
		cfg.Log.File = f.LogFile
	}
	if changed("spin") {
		cfg.Workload.SpinTasks = f.SpinTasks
	}
	if changed("sleep") {
		cfg.Workload.SleepTasks = f.SleepTasks
	}
	return cfg.Normalize(), nil
}
