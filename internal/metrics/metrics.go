package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	taskUtilization = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "runstat",
			Subsystem: "task",
			Name:      "utilization_percent",
			Help:      "Share of total capacity across all cores used by a task in the last window.",
		}, []string{"id", "name"},
	)
	taskElapsed = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "runstat",
			Subsystem: "task",
			Name:      "window_ticks",
			Help:      "Ticks a task ran during the last window.",
		}, []string{"id", "name"},
	)
	coreUtilization = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "runstat",
			Subsystem: "core",
			Name:      "utilization_percent",
			Help:      "Share of one core used by the tasks that ran on it in the last window.",
		}, []string{"core"},
	)
	cycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "runstat",
			Name:      "cycles_total",
			Help:      "Sampling cycles by result (ok or error kind).",
		}, []string{"result"},
	)
	tasksCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "runstat",
			Subsystem: "tasks",
			Name:      "created_total",
			Help:      "Tasks seen only in the end snapshot of a window.",
		},
	)
	tasksDeleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "runstat",
			Subsystem: "tasks",
			Name:      "deleted_total",
			Help:      "Tasks seen only in the start snapshot of a window.",
		},
	)
	windowTicks = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "runstat",
			Name:      "window_ticks",
			Help:      "Global runtime counter delta of the last successful window.",
		},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{taskUtilization, taskElapsed, coreUtilization, cycles, tasksCreated, tasksDeleted, windowTicks}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			// If already registered, ignore (allows double Register with default registry)
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// HandlerFor returns an http.Handler that serves the metrics of g.
// The caller is responsible for starting an HTTP server and wiring the route.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Below are lightweight helpers used by the reporter to record metrics.
// They no-op if Register hasn't been called.

// ResetTasks drops task series so tasks gone since the last window disappear.
func ResetTasks() {
	if regOK.Load() {
		taskUtilization.Reset()
		taskElapsed.Reset()
	}
}

func SetTask(id uint64, name string, percent, elapsed uint64) {
	if regOK.Load() {
		l := strconv.FormatUint(id, 10)
		taskUtilization.WithLabelValues(l, name).Set(float64(percent))
		taskElapsed.WithLabelValues(l, name).Set(float64(elapsed))
	}
}

func SetCore(core int, percent uint64) {
	if regOK.Load() {
		coreUtilization.WithLabelValues(strconv.Itoa(core)).Set(float64(percent))
	}
}

func IncCycle(result string) {
	if regOK.Load() {
		cycles.WithLabelValues(result).Inc()
	}
}

func AddCreated(n int) {
	if regOK.Load() {
		tasksCreated.Add(float64(n))
	}
}

func AddDeleted(n int) {
	if regOK.Load() {
		tasksDeleted.Add(float64(n))
	}
}

func SetWindow(ticks uint64) {
	if regOK.Load() {
		windowTicks.Set(float64(ticks))
	}
}
