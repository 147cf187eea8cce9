// Package serial opens the UART or USB CDC port a device reports its
// scheduler telemetry on.
package serial

import (
	"io"
)

// Port represents a serial port interface
// This abstraction allows for different implementations:
// - Native serial (using github.com/tarm/serial)
// - In-memory pipes (for testing)
type Port interface {
	io.ReadWriteCloser

	// Flush discards unread input and unsent output
	Flush() error
}

// Config holds serial port configuration
type Config struct {
	// Device path (e.g., "/dev/ttyACM0", "COM3")
	Device string `yaml:"device"`

	// Baud rate (USB CDC ignores this)
	Baud int `yaml:"baud"`

	// Read timeout in milliseconds (0 = blocking)
	ReadTimeoutMs int `yaml:"read_timeout_ms"`
}

// DefaultConfig returns the telemetry port defaults
func DefaultConfig(device string) *Config {
	return &Config{
		Device:        device,
		Baud:          115200,
		ReadTimeoutMs: 100,
	}
}
