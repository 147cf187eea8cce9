// Package protocol frames scheduler events for transmission over a byte
// stream, using the Klipper message block layout: length, sequence,
// VLQ-encoded payload, CRC16 and a trailing sync byte.
package protocol

// Version of the telemetry wire format
const Version = "1"

// Frame layout constants
const (
	FrameHeader  = 2 // length + sequence
	FrameTrailer = 3 // CRC16 + sync
	FrameMin     = FrameHeader + FrameTrailer
	FrameMax     = 64

	FramePosLen = 0
	FramePosSeq = 1

	FrameSync = 0x7E
	FrameDest = 0x10 // high nibble of every sequence byte

	SeqMask = 0x0F
)

// Message IDs carried as the first VLQ of a payload
const (
	MsgEvent    = 1 // kind slot gen tick
	MsgIdentify = 2 // version string
)
