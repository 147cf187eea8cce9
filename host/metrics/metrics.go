// Package metrics provides Prometheus instrumentation for the simulator
// and the telemetry monitor.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ticktoucan/core"
)

const namespace = "ticktoucan"

// Registry holds all metric instances.
type Registry struct {
	// Scheduler Metrics
	Events      *prometheus.CounterVec
	TaskRuns    *prometheus.CounterVec
	TaskPanics  *prometheus.CounterVec
	CurrentTick prometheus.Gauge
	Pending     prometheus.Gauge
	LateTicks   prometheus.Gauge

	// Telemetry Metrics
	Frames        prometheus.Counter
	FramesMissed  prometheus.Counter
	FramesCorrupt prometheus.Counter
	BytesDropped  prometheus.Counter
}

// NewRegistry creates a metrics registry with the given Prometheus registerer.
func NewRegistry(reg prometheus.Registerer) *Registry {
	factory := promauto.With(reg)

	return &Registry{
		Events: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "events_total",
				Help:      "Scheduler events by kind",
			},
			[]string{"kind"},
		),

		TaskRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "task_runs_total",
				Help:      "Completed task callbacks by task name",
			},
			[]string{"task"},
		),

		TaskPanics: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "task_panics_total",
				Help:      "Task callbacks that panicked, by task name",
			},
			[]string{"task"},
		),

		CurrentTick: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "tick",
				Help:      "Current tick counter",
			},
		),

		Pending: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "pending_tasks",
				Help:      "Task slots in use",
			},
		),

		LateTicks: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "late_ticks",
				Help:      "Timer ticks delivered late by the host clock",
			},
		),

		Frames: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "telemetry",
				Name:      "frames_total",
				Help:      "Valid telemetry frames received",
			},
		),

		FramesMissed: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "telemetry",
				Name:      "frames_missed_total",
				Help:      "Frames skipped according to sequence numbers",
			},
		),

		FramesCorrupt: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "telemetry",
				Name:      "frames_corrupt_total",
				Help:      "Malformed frame starts discarded while resynchronizing",
			},
		),

		BytesDropped: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "telemetry",
				Name:      "bytes_dropped_total",
				Help:      "Bytes discarded while resynchronizing",
			},
		),
	}
}

// ObserveEvent counts ev under its kind label.
func (r *Registry) ObserveEvent(ev core.Event) {
	r.Events.WithLabelValues(ev.Kind.Name()).Inc()
}

// Observer returns a core.Observer that feeds ObserveEvent.
func (r *Registry) Observer() core.Observer {
	return core.ObserverFunc(r.ObserveEvent)
}

// ObserveScheduler sets the gauges from a scheduler snapshot.
func (r *Registry) ObserveScheduler(now core.Tick, st core.Stats) {
	r.CurrentTick.Set(float64(now))
	r.Pending.Set(float64(st.Pending))
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
