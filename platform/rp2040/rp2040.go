//go:build rp2040

// Package rp2040 delivers scheduler ticks from the RP2040 hardware timer.
//
// Alarm 1 of the 1MHz system timer is re-armed from its own interrupt
// every period. Alarm 3 belongs to the TinyGo runtime and is left alone.
package rp2040

import (
	"device/rp"
	"runtime/interrupt"
	"runtime/volatile"
	"unsafe"

	"ticktoucan/core"
)

// RP2040 Timer peripheral memory map
const (
	timerBase     = 0x40054000
	timerALARM1   = timerBase + 0x14
	timerARMED    = timerBase + 0x20
	timerTIMERAWL = timerBase + 0x28 // Raw timer low word
	timerINTR     = timerBase + 0x34
	timerINTE     = timerBase + 0x38

	alarmBit = 1 << 1
)

var (
	timerAlarm = (*volatile.Register32)(unsafe.Pointer(uintptr(timerALARM1)))
	timerArmed = (*volatile.Register32)(unsafe.Pointer(uintptr(timerARMED)))
	timerRAWL  = (*volatile.Register32)(unsafe.Pointer(uintptr(timerTIMERAWL)))
	timerIntr  = (*volatile.Register32)(unsafe.Pointer(uintptr(timerINTR)))
	timerInte  = (*volatile.Register32)(unsafe.Pointer(uintptr(timerINTE)))
)

// Interrupt vectors cannot capture state, so the installed tick callback
// lives here and timerISR forwards to it. Written only with interrupts
// masked.
var (
	tickHandler func()
	periodUs    uint32
	nextAlarm   uint32
	missed      uint32
)

// Platform implements core.Platform on the RP2040.
type Platform struct {
	intr interrupt.Interrupt
}

// New registers the timer interrupt; it stays disabled until
// SetupTickTimer.
func New() *Platform {
	return &Platform{intr: interrupt.New(rp.IRQ_TIMER_IRQ_1, timerISR)}
}

func (p *Platform) EnterCritical() core.InterruptState {
	return core.InterruptState(interrupt.Disable())
}

func (p *Platform) ExitCritical(state core.InterruptState) {
	interrupt.Restore(interrupt.State(state))
}

// SetupTickTimer arms alarm 1 for periodMs milliseconds, replacing any
// previous installation.
func (p *Platform) SetupTickTimer(periodMs uint32, tick func()) error {
	if periodMs == 0 || tick == nil {
		return core.ErrInvalidPeriod
	}
	p.CleanupTickTimer()

	state := interrupt.Disable()
	tickHandler = tick
	periodUs = periodMs * 1000
	nextAlarm = timerRAWL.Get() + periodUs
	timerIntr.Set(alarmBit) // write-1-to-clear any stale request
	timerInte.SetBits(alarmBit)
	timerAlarm.Set(nextAlarm) // writing the alarm arms it
	interrupt.Restore(state)

	p.intr.Enable()
	return nil
}

// CleanupTickTimer disarms the alarm and forgets the callback.
func (p *Platform) CleanupTickTimer() {
	state := interrupt.Disable()
	timerInte.ClearBits(alarmBit)
	timerArmed.Set(alarmBit) // write-1-to-disarm
	timerIntr.Set(alarmBit)
	tickHandler = nil
	interrupt.Restore(state)

	p.intr.Disable()
}

// Missed returns how many periods were skipped because the interrupt
// ran too late to re-arm the next one in time.
func Missed() uint32 {
	return missed
}

// timerISR is the trampoline installed in the vector table.
func timerISR(interrupt.Interrupt) {
	timerIntr.Set(alarmBit)

	nextAlarm += periodUs
	now := timerRAWL.Get()
	if int32(nextAlarm-now) <= 0 {
		// Too late for the next edge; restart the cadence from now.
		missed++
		nextAlarm = now + periodUs
	}
	timerAlarm.Set(nextAlarm)

	if h := tickHandler; h != nil {
		h()
	}
}

var _ core.Platform = (*Platform)(nil)
