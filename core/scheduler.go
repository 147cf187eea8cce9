// Package core implements the TickToucan cooperative scheduler.
//
// A periodic timer interrupt calls Tick, which advances the tick counter
// and marks due tasks ready. The application's main loop calls Dispatch,
// which runs the ready callbacks outside interrupt context. Both sides
// share the fixed task table through short critical sections supplied by
// the Platform.
package core

import (
	"errors"
	"sync/atomic"
)

// MaxTasks is the capacity of the task table.
const MaxTasks = 16

var (
	ErrNotInitialized = errors.New("scheduler not initialized")
	ErrNoFreeSlot     = errors.New("no free task slot")
	ErrInvalidPeriod  = errors.New("tick period must be non-zero")
	ErrNilTask        = errors.New("task is nil")
)

// TimerError reports that the platform could not install the tick timer.
type TimerError struct {
	Err error
}

func (e *TimerError) Error() string {
	return "install tick timer: " + e.Err.Error()
}

func (e *TimerError) Unwrap() error {
	return e.Err
}

// SlotState is the externally visible state of a task slot.
type SlotState uint8

const (
	SlotFree SlotState = iota
	SlotScheduled
	SlotReady
)

func (s SlotState) String() string {
	switch s {
	case SlotFree:
		return "free"
	case SlotScheduled:
		return "scheduled"
	case SlotReady:
		return "ready"
	default:
		return "unknown"
	}
}

// slot is one entry of the task table. Every field is read and written
// under the scheduler's critical section.
type slot struct {
	active   bool // slot in use and still waiting to fire
	ready    bool // set by Tick, cleared by Dispatch
	nextTick Tick
	interval Tick // 0 = one-shot
	task     Runnable
	gen      uint16
}

// Stats is a snapshot of scheduler counters since the last Init.
type Stats struct {
	Ticks      uint64
	Scheduled  uint32
	Dispatched uint32
	Canceled   uint32
	Exhausted  uint32
	Pending    int
}

// Scheduler owns the task table and the tick counter.
//
// Create one per timer with NewScheduler and pass it by reference to the
// code that schedules work. Tick may run in interrupt context; every other
// method belongs to the main loop.
type Scheduler struct {
	platform Platform
	observer Observer

	now         atomic.Uint32
	periodMs    uint32
	initialized bool

	slots [MaxTasks]slot
	stats Stats
	trace traceRing
}

// NewScheduler creates an uninitialized scheduler. A nil platform selects
// BarePlatform.
func NewScheduler(platform Platform) *Scheduler {
	if platform == nil {
		platform = BarePlatform{}
	}
	return &Scheduler{platform: platform}
}

// SetObserver installs o to receive scheduler events; nil removes it.
// Call it before Init, from the main loop.
func (s *Scheduler) SetObserver(o Observer) {
	s.observer = o
}

// Init configures the tick period and installs the platform timer.
//
// Calling Init again stops the previous timer and starts a new time base:
// the counter restarts at zero and every outstanding task is dropped, so
// handles issued before the call no longer refer to live tasks.
func (s *Scheduler) Init(periodMs uint32) error {
	if periodMs == 0 {
		return ErrInvalidPeriod
	}
	if s.initialized {
		s.platform.CleanupTickTimer()
		s.initialized = false
	}

	state := s.platform.EnterCritical()
	s.now.Store(0)
	for i := range s.slots {
		sl := &s.slots[i]
		sl.active = false
		sl.ready = false
		sl.task = nil
	}
	s.periodMs = periodMs
	s.stats = Stats{}
	s.trace.reset()
	ev := Event{Kind: EvtInit, Slot: NoSlot}
	s.trace.put(ev)
	s.platform.ExitCritical(state)

	if err := s.platform.SetupTickTimer(periodMs, s.Tick); err != nil {
		return &TimerError{Err: err}
	}
	s.initialized = true
	s.notify(ev)
	return nil
}

// Close stops the platform timer. No ticks are delivered afterwards and
// scheduling calls fail with ErrNotInitialized until the next Init.
// Tasks already marked ready can still be dispatched.
func (s *Scheduler) Close() error {
	if !s.initialized {
		return nil
	}
	s.platform.CleanupTickTimer()
	s.initialized = false

	ev := Event{Kind: EvtClosed, Slot: NoSlot, Tick: s.now.Load()}
	state := s.platform.EnterCritical()
	s.trace.put(ev)
	s.platform.ExitCritical(state)
	s.notify(ev)
	return nil
}

// Initialized reports whether Init has completed and Close has not been called.
func (s *Scheduler) Initialized() bool {
	return s.initialized
}

// TickPeriodMs returns the configured tick period.
func (s *Scheduler) TickPeriodMs() uint32 {
	return s.periodMs
}

// Now returns the current tick count.
func (s *Scheduler) Now() Tick {
	return s.now.Load()
}

// Tick advances the counter by one and marks every due task ready.
//
// It is the interrupt-side producer: bounded, allocation-free and not
// reentrant. Periodic tasks are re-armed here, one interval at a time;
// missed periods are not caught up.
func (s *Scheduler) Tick() {
	state := s.platform.EnterCritical()
	now := s.now.Load() + 1
	s.now.Store(now)
	s.stats.Ticks++

	for i := range s.slots {
		sl := &s.slots[i]
		if !sl.active || !TickReached(now, sl.nextTick) {
			continue
		}
		sl.ready = true
		if sl.interval > 0 {
			sl.nextTick += sl.interval
		} else {
			sl.active = false // one-shot consumed
		}
		s.trace.put(Event{Kind: EvtDue, Slot: uint8(i), Gen: sl.gen, Tick: now})
	}
	s.platform.ExitCritical(state)
}

// Dispatch runs every ready task once and returns how many ran.
//
// The ready flag is cleared inside the critical section; the callback runs
// outside it, so callbacks may schedule or cancel tasks, themselves
// included. Dispatch never blocks; call it repeatedly from the main loop.
func (s *Scheduler) Dispatch() int {
	ran := 0
	for i := range s.slots {
		state := s.platform.EnterCritical()
		sl := &s.slots[i]
		if !sl.ready {
			s.platform.ExitCritical(state)
			continue
		}
		sl.ready = false
		task := sl.task
		if !sl.active {
			sl.task = nil // one-shot: slot is free again
		}
		s.stats.Dispatched++
		ev := Event{Kind: EvtDispatched, Slot: uint8(i), Gen: sl.gen, Tick: s.now.Load()}
		s.trace.put(ev)
		s.platform.ExitCritical(state)

		s.notify(ev)
		if task != nil {
			task.Run()
			ran++
		}
	}
	return ran
}

// ScheduleAt runs task once at absoluteMs milliseconds after Init.
// The time is rounded down to a whole tick; a value below one tick period
// means the next tick.
func (s *Scheduler) ScheduleAt(absoluteMs uint32, task Runnable) (Handle, error) {
	return s.allocate(MsToTicks(absoluteMs, s.periodMs), false, 0, task)
}

// ScheduleAfter runs task once, delayMs milliseconds (rounded down to whole
// ticks) from now.
func (s *Scheduler) ScheduleAfter(delayMs uint32, task Runnable) (Handle, error) {
	return s.allocate(MsToTicks(delayMs, s.periodMs), true, 0, task)
}

// ScheduleEvery runs task every intervalMs milliseconds, first at
// offsetMs from now. Both are rounded down to whole ticks. An interval
// shorter than one tick period runs the task on every tick.
func (s *Scheduler) ScheduleEvery(intervalMs uint32, task Runnable, offsetMs uint32) (Handle, error) {
	return s.ScheduleEveryTicks(MsToTicks(intervalMs, s.periodMs), MsToTicks(offsetMs, s.periodMs), task)
}

// ScheduleAtTick runs task once when the counter reaches tick.
func (s *Scheduler) ScheduleAtTick(tick Tick, task Runnable) (Handle, error) {
	return s.allocate(tick, false, 0, task)
}

// ScheduleEveryTicks runs task every interval ticks, first at Now()+offset.
func (s *Scheduler) ScheduleEveryTicks(interval, offset Tick, task Runnable) (Handle, error) {
	if interval == 0 {
		interval = 1
	}
	return s.allocate(offset, true, interval, task)
}

// allocate claims the first slot that is neither active nor ready.
// When relative is set, at is added to the counter inside the critical
// section so a concurrent tick cannot shift the first fire.
func (s *Scheduler) allocate(at Tick, relative bool, interval Tick, task Runnable) (Handle, error) {
	if !s.initialized {
		return InvalidHandle, ErrNotInitialized
	}
	if task == nil {
		return InvalidHandle, ErrNilTask
	}

	state := s.platform.EnterCritical()
	next := at
	if relative {
		next += s.now.Load()
	}
	for i := range s.slots {
		sl := &s.slots[i]
		if sl.active || sl.ready {
			continue
		}
		sl.gen++
		sl.active = true
		sl.ready = false
		sl.nextTick = next
		sl.interval = interval
		sl.task = task
		s.stats.Scheduled++

		ev := Event{Kind: EvtScheduled, Slot: uint8(i), Gen: sl.gen, Tick: next}
		s.trace.put(ev)
		s.platform.ExitCritical(state)
		s.notify(ev)
		return makeHandle(i, sl.gen), nil
	}

	s.stats.Exhausted++
	ev := Event{Kind: EvtExhausted, Slot: NoSlot, Tick: s.now.Load()}
	s.trace.put(ev)
	s.platform.ExitCritical(state)
	s.notify(ev)
	return InvalidHandle, ErrNoFreeSlot
}

// Cancel removes the task h refers to and reports whether it was live.
//
// Canceling an invalid, stale, already-canceled or already-consumed handle
// is a no-op. A task whose callback Dispatch has already picked up still
// runs that one time.
func (s *Scheduler) Cancel(h Handle) bool {
	if !h.Valid() {
		return false
	}
	i := h.Index()

	state := s.platform.EnterCritical()
	sl := &s.slots[i]
	if sl.gen != h.gen || (!sl.active && !sl.ready) {
		s.platform.ExitCritical(state)
		return false
	}
	sl.active = false
	sl.ready = false
	sl.task = nil
	s.stats.Canceled++
	ev := Event{Kind: EvtCanceled, Slot: uint8(i), Gen: sl.gen, Tick: s.now.Load()}
	s.trace.put(ev)
	s.platform.ExitCritical(state)

	s.notify(ev)
	return true
}

// State reports the state of the task h refers to. Stale handles report
// SlotFree even when their slot has been reused.
func (s *Scheduler) State(h Handle) SlotState {
	if !h.Valid() {
		return SlotFree
	}
	state := s.platform.EnterCritical()
	defer s.platform.ExitCritical(state)

	sl := &s.slots[h.Index()]
	switch {
	case sl.gen != h.gen:
		return SlotFree
	case sl.ready:
		return SlotReady
	case sl.active:
		return SlotScheduled
	default:
		return SlotFree
	}
}

// NextTick returns the tick at which the task h refers to is next due.
// ok is false when the task is no longer waiting to fire.
func (s *Scheduler) NextTick(h Handle) (tick Tick, ok bool) {
	if !h.Valid() {
		return 0, false
	}
	state := s.platform.EnterCritical()
	defer s.platform.ExitCritical(state)

	sl := &s.slots[h.Index()]
	if sl.gen != h.gen || !sl.active {
		return 0, false
	}
	return sl.nextTick, true
}

// Pending returns the number of slots in use.
func (s *Scheduler) Pending() int {
	state := s.platform.EnterCritical()
	defer s.platform.ExitCritical(state)
	return s.pendingLocked()
}

func (s *Scheduler) pendingLocked() int {
	n := 0
	for i := range s.slots {
		if s.slots[i].active || s.slots[i].ready {
			n++
		}
	}
	return n
}

// Stats returns a snapshot of the scheduler counters.
func (s *Scheduler) Stats() Stats {
	state := s.platform.EnterCritical()
	defer s.platform.ExitCritical(state)

	st := s.stats
	st.Pending = s.pendingLocked()
	return st
}

func (s *Scheduler) notify(ev Event) {
	if s.observer != nil {
		s.observer.OnEvent(ev)
	}
}
