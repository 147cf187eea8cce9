package core

// DebugWriter is a function type for writing debug lines
type DebugWriter func(string)

const (
	TraceRingSize = 32 // Keep the last 32 events for post-mortem
)

// traceRing captures recent events. Writers hold the scheduler's critical
// section, so it is safe to record from Tick.
type traceRing struct {
	events [TraceRingSize]Event
	head   uint8 // Next write position
}

func (r *traceRing) put(ev Event) {
	r.events[r.head] = ev
	r.head = (r.head + 1) % TraceRingSize
}

func (r *traceRing) reset() {
	*r = traceRing{}
}

// snapshot returns the recorded events, oldest first
func (r *traceRing) snapshot(dst []Event) []Event {
	for i := uint8(0); i < TraceRingSize; i++ {
		ev := r.events[(r.head+i)%TraceRingSize]
		if ev.Kind == 0 {
			continue // Empty slot
		}
		dst = append(dst, ev)
	}
	return dst
}

// Trace returns a copy of the trace ring, oldest event first.
func (s *Scheduler) Trace() []Event {
	out := make([]Event, 0, TraceRingSize)
	state := s.platform.EnterCritical()
	out = s.trace.snapshot(out)
	s.platform.ExitCritical(state)
	return out
}

// DumpTrace writes the trace ring to w, one line per event.
// Call it from the main loop, e.g. after a fault or on request.
func (s *Scheduler) DumpTrace(w DebugWriter) {
	if w == nil {
		return
	}
	events := s.Trace()

	w("[TRACE] === Scheduler Trace ===")
	for _, ev := range events {
		line := "[TRACE] " + ev.Kind.Name()
		if ev.Slot != NoSlot {
			line += " slot=" + itoa(int(ev.Slot)) + " gen=" + utoa(uint32(ev.Gen))
		}
		w(line + " tick=" + utoa(ev.Tick))
	}
	w("[TRACE] === End Trace ===")
}
