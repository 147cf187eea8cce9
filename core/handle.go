package core

// Handle refers to one scheduled task.
//
// The zero value is invalid. A handle stays structurally valid after its
// task completes; the scheduler compares generations to tell a stale
// handle from one that still refers to the live task in its slot.
type Handle struct {
	slot uint16 // index+1, so that the zero Handle is invalid
	gen  uint16
}

// InvalidHandle is returned by scheduling calls that could not allocate a slot.
var InvalidHandle = Handle{}

// Valid reports whether h refers to a slot inside the task table.
func (h Handle) Valid() bool {
	return h.slot != 0 && int(h.slot) <= MaxTasks
}

// Index returns the slot index, or -1 for an invalid handle.
func (h Handle) Index() int {
	if !h.Valid() {
		return -1
	}
	return int(h.slot) - 1
}

// Generation returns the slot generation captured when h was issued.
func (h Handle) Generation() uint16 {
	return h.gen
}

func makeHandle(idx int, gen uint16) Handle {
	return Handle{slot: uint16(idx + 1), gen: gen}
}

// String formats the handle as "slot/gen" without using fmt.
func (h Handle) String() string {
	if !h.Valid() {
		return "invalid"
	}
	return itoa(h.Index()) + "/" + utoa(uint32(h.gen))
}
