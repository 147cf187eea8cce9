// Package simulator runs configured tasks on the scheduler with the
// simulated timer, the same way the firmware main loop does on a board.
package simulator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"ticktoucan/core"
	"ticktoucan/host/config"
	"ticktoucan/host/logx"
	"ticktoucan/host/metrics"
	"ticktoucan/platform/sim"
	"ticktoucan/protocol"
)

// Runner owns one scheduler and the simulated timer behind it.
type Runner struct {
	cfg      *config.Config
	log      zerolog.Logger
	metrics  *metrics.Registry
	platform *sim.Platform
	sched    *core.Scheduler
	reporter *protocol.Reporter

	tasks   []*task
	start   time.Time
	current string // task whose callback is running

	mu     sync.Mutex // guards the counters below
	runs   map[string]uint32
	panics uint32
}

// Option configures a Runner.
type Option func(*Runner)

// WithMetrics reports into reg instead of a private registry.
func WithMetrics(reg *metrics.Registry) Option {
	return func(r *Runner) {
		if reg != nil {
			r.metrics = reg
		}
	}
}

// WithTelemetry sends every scheduler event as a frame to w.
func WithTelemetry(w io.Writer) Option {
	return func(r *Runner) {
		if w != nil {
			r.reporter = protocol.NewReporter(w)
		}
	}
}

// New validates cfg and builds a Runner. Nothing runs until Run.
func New(cfg *config.Config, log zerolog.Logger, opts ...Option) (*Runner, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	r := &Runner{
		cfg:  cfg,
		log:  log,
		runs: make(map[string]uint32),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.metrics == nil {
		r.metrics = metrics.NewRegistry(prometheus.NewRegistry())
	}

	r.platform = sim.New(sim.WithTimeScale(cfg.TimeScale))
	r.sched = core.NewScheduler(r.platform)

	var reporter core.Observer
	if r.reporter != nil {
		reporter = r.reporter
	}
	r.sched.SetObserver(core.MultiObserver(
		r.metrics.Observer(),
		reporter,
		core.ObserverFunc(r.traceEvent),
	))

	for _, tc := range cfg.Tasks {
		r.tasks = append(r.tasks, &task{r: r, cfg: tc})
	}
	return r, nil
}

// Scheduler exposes the underlying scheduler.
func (r *Runner) Scheduler() *core.Scheduler {
	return r.sched
}

// Runs returns how many times the named task has run.
func (r *Runner) Runs(name string) uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runs[name]
}

// Panics returns how many task callbacks panicked.
func (r *Runner) Panics() uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.panics
}

// Run starts the timer, schedules the configured tasks and dispatches
// until ctx is done. The timer is stopped before Run returns.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.startup(); err != nil {
		return err
	}
	defer r.shutdown()

	idle := time.NewTicker(r.cfg.PollInterval)
	defer idle.Stop()

	for {
		if ctx.Err() != nil {
			return nil
		}
		n := r.dispatchOnce()
		r.metrics.ObserveScheduler(r.sched.Now(), r.sched.Stats())
		if n > 0 {
			continue
		}
		select {
		case <-ctx.Done():
			return nil
		case <-idle.C:
		}
	}
}

func (r *Runner) startup() error {
	if err := r.sched.Init(r.cfg.TickPeriodMs); err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	r.start = time.Now()

	if r.reporter != nil {
		if err := r.reporter.Identify(); err != nil {
			r.log.Warn().Err(err).Msg("telemetry write failed")
		}
	}

	for _, t := range r.tasks {
		if err := t.schedule(); err != nil {
			_ = r.sched.Close()
			return fmt.Errorf("schedule task %q: %w", t.cfg.Name, err)
		}
	}

	r.log.Info().
		Uint32("tick_ms", r.cfg.TickPeriodMs).
		Float64("time_scale", r.cfg.TimeScale).
		Int("tasks", len(r.tasks)).
		Msg("simulation started")
	return nil
}

func (r *Runner) shutdown() {
	_ = r.sched.Close()

	st := r.sched.Stats()
	r.metrics.ObserveScheduler(r.sched.Now(), st)
	r.metrics.LateTicks.Set(float64(r.platform.Late()))

	r.sched.DumpTrace(logx.DebugWriter(r.log))
	r.log.Info().
		Uint64("ticks", st.Ticks).
		Uint32("dispatched", st.Dispatched).
		Uint32("canceled", st.Canceled).
		Uint32("panics", r.Panics()).
		Uint64("late_ticks", r.platform.Late()).
		Msg("simulation stopped")

	if r.reporter != nil && r.reporter.Err() != nil {
		r.log.Warn().Err(r.reporter.Err()).Uint32("frames_sent", r.reporter.Sent()).Msg("telemetry stopped early")
	}
}

// dispatchOnce runs one Dispatch pass. A panicking callback is logged and
// counted; tasks still marked ready run on the next pass.
func (r *Runner) dispatchOnce() (ran int) {
	defer func() {
		if p := recover(); p != nil {
			name := r.current
			r.mu.Lock()
			r.panics++
			r.mu.Unlock()
			r.metrics.TaskPanics.WithLabelValues(name).Inc()
			r.log.Error().Str("task", name).Interface("panic", p).Msg("task panicked")
			ran = 1
		}
	}()
	return r.sched.Dispatch()
}

func (r *Runner) traceEvent(ev core.Event) {
	e := r.log.Trace().Str("event", ev.Kind.Name()).Uint32("tick", ev.Tick)
	if ev.Slot != core.NoSlot {
		e = e.Uint8("slot", ev.Slot).Uint16("gen", ev.Gen)
	}
	e.Msg("scheduler event")
}

// task adapts one configured task to core.Runnable.
type task struct {
	r      *Runner
	cfg    config.TaskConfig
	handle core.Handle
	runs   uint32
}

var errTaskPanic = errors.New("configured to panic")

func (t *task) schedule() error {
	s := t.r.sched
	var err error
	switch t.cfg.Kind() {
	case config.TaskAt:
		t.handle, err = s.ScheduleAt(*t.cfg.AtMs, t)
	case config.TaskAfter:
		t.handle, err = s.ScheduleAfter(*t.cfg.AfterMs, t)
	case config.TaskEvery:
		t.handle, err = s.ScheduleEvery(*t.cfg.EveryMs, t, t.cfg.OffsetMs)
	default:
		err = errors.New("no timing configured")
	}
	return err
}

func (t *task) Run() {
	r := t.r
	r.current = t.cfg.Name
	t.runs++

	r.mu.Lock()
	r.runs[t.cfg.Name]++
	r.mu.Unlock()
	r.metrics.TaskRuns.WithLabelValues(t.cfg.Name).Inc()

	r.log.Info().
		Str("task", t.cfg.Name).
		Uint32("tick", r.sched.Now()).
		Int64("elapsed_ms", time.Since(r.start).Milliseconds()).
		Uint32("run", t.runs).
		Msg("task fired")

	if t.cfg.MaxRuns > 0 && t.runs >= t.cfg.MaxRuns {
		r.sched.Cancel(t.handle)
		r.log.Info().Str("task", t.cfg.Name).Msg("task finished")
	}
	if t.cfg.Panic {
		panic(fmt.Errorf("task %s: %w", t.cfg.Name, errTaskPanic))
	}
}
