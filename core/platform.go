package core

// InterruptState is the interrupt-enable state captured on entering a
// critical section and restored on leaving it.
type InterruptState uintptr

// Platform is everything the scheduler needs from the target.
type Platform interface {
	// EnterCritical masks the tick source and returns the prior state.
	EnterCritical() InterruptState

	// ExitCritical restores the state returned by the matching EnterCritical.
	ExitCritical(state InterruptState)

	// SetupTickTimer installs a periodic source calling tick every periodMs
	// milliseconds. Calling it again replaces the previous installation.
	SetupTickTimer(periodMs uint32, tick func()) error

	// CleanupTickTimer stops and releases the periodic source.
	CleanupTickTimer()
}

// BarePlatform masks interrupts with the target's primitives and leaves the
// timer to the application, which calls Scheduler.Tick from its own vector.
// On a hosted Go build the critical section is a no-op, so ticks must then
// be delivered from the same goroutine that dispatches.
type BarePlatform struct{}

func (BarePlatform) EnterCritical() InterruptState {
	return disableInterrupts()
}

func (BarePlatform) ExitCritical(state InterruptState) {
	restoreInterrupts(state)
}

func (BarePlatform) SetupTickTimer(periodMs uint32, tick func()) error {
	return nil
}

func (BarePlatform) CleanupTickTimer() {}
