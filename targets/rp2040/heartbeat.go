//go:build rp2040

package main

import (
	"image/color"
	"machine"

	"tinygo.org/x/drivers/ws2812"
)

var (
	heartbeatOn  = color.RGBA{R: 0x00, G: 0x20, B: 0x08, A: 0xFF}
	heartbeatOff = color.RGBA{}
)

// Heartbeat drives a single WS2812 pixel from a periodic task.
type Heartbeat struct {
	dev  ws2812.Device
	buf  [1]color.RGBA
	on   bool
	errs uint32
}

// NewHeartbeat configures pin as the WS2812 data line.
func NewHeartbeat(pin machine.Pin) *Heartbeat {
	pin.Configure(machine.PinConfig{Mode: machine.PinOutput})
	return &Heartbeat{dev: ws2812.New(pin)}
}

// Toggle flips the pixel between its on and off colors.
func (h *Heartbeat) Toggle() {
	h.on = !h.on
	if h.on {
		h.buf[0] = heartbeatOn
	} else {
		h.buf[0] = heartbeatOff
	}
	if err := h.dev.WriteColors(h.buf[:]); err != nil {
		h.errs++
	}
}
