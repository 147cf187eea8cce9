//go:build rp2040

package main

import (
	"machine"

	rp2pio "github.com/tinygo-org/pio/rp2-pio"
)

// Strobe emits bursts of fixed-width pulses from a PIO state machine, so a
// scheduled task can trigger an exactly timed pulse train without busy
// waiting in the main loop.
//
// TX word: bits 0-15 hold the pulse count minus one.
type Strobe struct {
	pio    *rp2pio.PIO
	sm     rp2pio.StateMachine
	pin    machine.Pin
	offset uint8
	ready  bool
	full   uint32
}

const strobeOrigin = 0

// buildStrobeProgram returns the pulse-train program. At the configured
// clock divider each pulse is 32µs high followed by 32µs low.
func buildStrobeProgram() []uint16 {
	asm := rp2pio.AssemblerV0{SidesetBits: 0}
	return []uint16{
		// .wrap_target
		asm.Pull(false, true).Encode(),        // 0: pull block
		asm.Out(rp2pio.OutDestX, 16).Encode(), // 1: out x, 16
		// pulse:
		asm.Set(rp2pio.SetDestPins, 1).Delay(31).Encode(), // 2: set pins, 1 [31]
		asm.Set(rp2pio.SetDestPins, 0).Delay(31).Encode(), // 3: set pins, 0 [31]
		asm.Jmp(2, rp2pio.JmpXNZeroDec).Encode(),          // 4: jmp x--, 2
		// .wrap
	}
}

// NewStrobe selects PIO block pioNum and state machine smNum.
func NewStrobe(pioNum, smNum uint8) *Strobe {
	hw := rp2pio.PIO0
	if pioNum != 0 {
		hw = rp2pio.PIO1
	}
	return &Strobe{pio: hw, sm: hw.StateMachine(smNum)}
}

// Init loads the program and drives pin low.
func (s *Strobe) Init(pin machine.Pin) error {
	s.pin = pin
	s.sm.TryClaim()

	program := buildStrobeProgram()
	offset, err := s.pio.AddProgram(program, strobeOrigin)
	if err != nil {
		return err
	}
	s.offset = offset

	pin.Configure(machine.PinConfig{Mode: s.pio.PinMode()})

	cfg := rp2pio.DefaultStateMachineConfig()
	cfg.SetSetPins(pin, 1)
	cfg.SetOutShift(true, false, 32)
	cfg.SetWrap(offset+uint8(len(program))-1, offset)
	// 125MHz / 125 = 1MHz, one cycle per microsecond
	cfg.SetClkDivIntFrac(125, 0)

	// Pin direction must be set after Init
	s.sm.Init(offset, cfg)
	s.sm.SetPindirsConsecutive(pin, 1, true)
	s.sm.SetPinsConsecutive(pin, 1, false)
	s.sm.SetEnabled(true)
	s.ready = true
	return nil
}

// Fire queues a burst of n pulses. It never blocks: a burst is dropped
// when the TX FIFO is full.
func (s *Strobe) Fire(n uint16) {
	if !s.ready || n == 0 {
		return
	}
	if s.sm.IsTxFIFOFull() {
		s.full++
		return
	}
	s.sm.TxPut(uint32(n - 1))
}
