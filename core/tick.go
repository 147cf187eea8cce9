package core

// Tick is the scheduler's unit of time: one firing of the periodic timer.
// It wraps at 32 bits; compare ticks with TickReached, never with <.
type Tick = uint32

// TickReached reports whether now is at or after target, treating the
// counter as modular. Valid while the two are less than 2^31 ticks apart.
func TickReached(now, target Tick) bool {
	return int32(now-target) >= 0
}

// TickBefore reports whether a happened strictly before b.
func TickBefore(a, b Tick) bool {
	return int32(a-b) < 0
}

// MsToTicks converts milliseconds to ticks, rounding down.
// A period of zero yields zero.
func MsToTicks(ms, periodMs uint32) Tick {
	if periodMs == 0 {
		return 0
	}
	return Tick(ms / periodMs)
}

// TicksToMs converts ticks back to milliseconds (truncated to 32 bits).
func TicksToMs(ticks Tick, periodMs uint32) uint32 {
	return uint32(uint64(ticks) * uint64(periodMs))
}
