//go:build rp2040

package main

import (
	"machine"
	"time"

	"ticktoucan/core"
	"ticktoucan/platform/rp2040"
	"ticktoucan/protocol"
)

const (
	tickPeriodMs    = 1
	heartbeatMs     = 500
	strobeMs        = 2000
	strobeOffsetMs  = 250
	traceDumpMs     = 10000
	strobePulses    = 3
	heartbeatPin    = machine.GPIO16
	strobePin       = machine.GPIO15
	bootSettleDelay = 500 * time.Millisecond
)

var (
	sched    *core.Scheduler
	reporter *protocol.Reporter

	// Debug counters
	panics   uint32
	dispatch uint32
)

func main() {
	// Let USB CDC enumerate before the first telemetry frame.
	time.Sleep(bootSettleDelay)

	platform := rp2040.New()
	sched = core.NewScheduler(platform)

	reporter = protocol.NewReporter(machine.Serial)
	sched.SetObserver(reporter)

	if err := sched.Init(tickPeriodMs); err != nil {
		// Nothing works without the tick; blink the status LED forever.
		fatalBlink()
	}
	reporter.Identify()

	led := NewHeartbeat(heartbeatPin)
	if _, err := sched.ScheduleEvery(heartbeatMs, core.Func(led.Toggle), 0); err != nil {
		fatalBlink()
	}

	strobe := NewStrobe(0, 0)
	if err := strobe.Init(strobePin); err == nil {
		if _, err := sched.ScheduleEvery(strobeMs, core.Func(func() {
			strobe.Fire(strobePulses)
		}), strobeOffsetMs); err != nil {
			fatalBlink()
		}
	}

	_, _ = sched.ScheduleEvery(traceDumpMs, core.Func(func() {
		sched.DumpTrace(func(line string) {
			println(line)
		})
		if rp2040.Missed() > 0 {
			println("[TRACE] late alarms:", rp2040.Missed())
		}
	}), traceDumpMs)

	// Main loop
	for {
		// Recover from panics in a callback so one bad task cannot stop the loop
		func() {
			defer func() {
				if r := recover(); r != nil {
					panics++
				}
			}()
			dispatch += uint32(sched.Dispatch())
		}()
	}
}

func fatalBlink() {
	machine.LED.Configure(machine.PinConfig{Mode: machine.PinOutput})
	for {
		machine.LED.High()
		time.Sleep(100 * time.Millisecond)
		machine.LED.Low()
		time.Sleep(100 * time.Millisecond)
	}
}
