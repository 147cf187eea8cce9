package core

// EventKind identifies what happened to a slot.
type EventKind uint8

// Event kinds. Zero is reserved for an empty trace entry.
const (
	EvtInit       EventKind = 1 // scheduler (re)initialized
	EvtScheduled  EventKind = 2 // slot allocated
	EvtDue        EventKind = 3 // marked ready by Tick
	EvtDispatched EventKind = 4 // callback handed to the main loop
	EvtCanceled   EventKind = 5 // live task canceled
	EvtExhausted  EventKind = 6 // allocation failed, table full
	EvtClosed     EventKind = 7 // timer stopped
)

// NoSlot marks events that do not concern a particular slot.
const NoSlot = 0xFF

// Event describes one scheduler state change.
type Event struct {
	Kind EventKind
	Slot uint8
	Gen  uint16
	Tick Tick
}

// Name returns the short trace label for k.
func (k EventKind) Name() string {
	switch k {
	case EvtInit:
		return "INIT"
	case EvtScheduled:
		return "SCHED"
	case EvtDue:
		return "DUE"
	case EvtDispatched:
		return "DISPATCH"
	case EvtCanceled:
		return "CANCEL"
	case EvtExhausted:
		return "FULL!"
	case EvtClosed:
		return "CLOSE"
	default:
		return "UNKNOWN"
	}
}

// Observer receives scheduler events.
//
// OnEvent is only ever called from the main-loop context (Init, Close,
// scheduling calls, Cancel and Dispatch), never from Tick, and always
// outside the critical section.
type Observer interface {
	OnEvent(ev Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ev Event)

func (f ObserverFunc) OnEvent(ev Event) { f(ev) }

// MultiObserver fans events out to every non-nil observer in order.
func MultiObserver(obs ...Observer) Observer {
	list := make([]Observer, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			list = append(list, o)
		}
	}
	return multiObserver(list)
}

type multiObserver []Observer

func (m multiObserver) OnEvent(ev Event) {
	for _, o := range m {
		o.OnEvent(ev)
	}
}
