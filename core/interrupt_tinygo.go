//go:build tinygo

package core

import "runtime/interrupt"

// disableInterrupts masks interrupts and returns the previous state
func disableInterrupts() InterruptState {
	return InterruptState(interrupt.Disable())
}

// restoreInterrupts restores the state saved by disableInterrupts
func restoreInterrupts(state InterruptState) {
	interrupt.Restore(interrupt.State(state))
}
