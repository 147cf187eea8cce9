//go:build !tinygo

package core

// disableInterrupts has nothing to mask on a hosted build
func disableInterrupts() InterruptState {
	return 0
}

// restoreInterrupts is the matching no-op
func restoreInterrupts(state InterruptState) {
}
