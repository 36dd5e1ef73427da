package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"runstat/internal/config"
	"runstat/internal/job"
	"runstat/internal/logger"
	"runstat/internal/metrics"
	"runstat/internal/monitor"
	"runstat/internal/report"
	"runstat/internal/runstat"
	"runstat/internal/sched"
)

// runMonitor starts the scheduler with the demo workload and samples it,
// forever or for a single cycle.
func runMonitor(ctx context.Context, cfg config.Config, once bool, out io.Writer) error {
	log, closer, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}
	defer func() {
		_ = log.Sync()
		_ = closer.Close()
	}()

	s := sched.New(cfg.Sched, log.Named("sched"))
	if cfg.Workload.EventsCSV != "" {
		if err := s.EnableCSVLogging(cfg.Workload.EventsCSV); err != nil {
			return err
		}
	}
	if err := addWorkload(s, cfg.Workload); err != nil {
		return err
	}

	reporters := report.Multi{report.NewTable(out)}
	if cfg.Monitor.CSVPath != "" {
		c, err := report.NewCSV(cfg.Monitor.CSVPath)
		if err != nil {
			return err
		}
		defer func() { _ = c.Close() }()
		reporters = append(reporters, c)
	}
	if cfg.Metrics.Addr != "" {
		if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
			return err
		}
		reporters = append(reporters, report.Prometheus{})
	}

	capturer := &runstat.Capturer{Source: s, Slack: cfg.Monitor.Slack, MaxEntities: cfg.Monitor.MaxEntities}
	mon := monitor.New(monitor.Config{
		Window: cfg.Monitor.Window(),
		Delay:  cfg.Monitor.Delay(),
		Units:  cfg.Monitor.Units,
	}, capturer, reporters, log)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error { return s.Run(gctx) })
	if once {
		g.Go(func() error {
			defer cancel()
			_, err := mon.RunCycle(gctx)
			return err
		})
	} else {
		mon.Start(gctx)
		g.Go(func() error {
			mon.Wait()
			return nil
		})
	}
	if cfg.Metrics.Addr != "" {
		serveMetrics(gctx, g, cfg.Metrics.Addr, log)
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return nil
	}
	return err
}

// addWorkload creates the demo tasks. Spin tasks take IDs 1..SpinTasks,
// sleep tasks follow.
func addWorkload(s *sched.Scheduler, w config.WorkloadConfig) error {
	busy := time.Duration(w.SpinMS) * time.Millisecond
	tasks := make([]*sched.Task, 0, w.SpinTasks+w.SleepTasks)
	for i := 0; i < w.SpinTasks; i++ {
		id := sched.TaskID(len(tasks) + 1)
		tasks = append(tasks, sched.NewTask(id, fmt.Sprintf("spin%d", i), w.Priority, job.SpinWork(busy, w.RestTicks)))
	}
	lifetime := time.Duration(w.SleepMS) * time.Millisecond
	for i := 0; i < w.SleepTasks; i++ {
		id := sched.TaskID(len(tasks) + 1)
		tasks = append(tasks, sched.NewTask(id, fmt.Sprintf("sleep%d", i), w.Priority, job.SleepWork(lifetime)))
	}

	for _, t := range tasks {
		t.StackMargin = w.StackMargin
		if err := s.Add(t); err != nil {
			return err
		}
	}
	return nil
}

func serveMetrics(ctx context.Context, g *errgroup.Group, addr string, log *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.HandlerFor(prometheus.DefaultGatherer))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	g.Go(func() error {
		log.Info("serving metrics", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}
