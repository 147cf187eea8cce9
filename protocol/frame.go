package protocol

import (
	"errors"

	"ticktoucan/core"
)

var (
	ErrFrameTooLarge = errors.New("payload exceeds frame size")
	ErrUnknownMsg    = errors.New("unknown message id")
)

// EncodeFrame wraps payload in a message block with the given sequence
// number and appends it to dst.
func EncodeFrame(dst []byte, seq uint8, payload []byte) ([]byte, error) {
	total := len(payload) + FrameMin
	if total > FrameMax {
		return dst, ErrFrameTooLarge
	}
	start := len(dst)
	dst = append(dst, byte(total), FrameDest|seq&SeqMask)
	dst = append(dst, payload...)
	crc := CRC16(dst[start:])
	return append(dst, byte(crc>>8), byte(crc), FrameSync), nil
}

// AppendEvent appends the payload of an event message.
func AppendEvent(dst []byte, ev core.Event) []byte {
	dst = AppendVLQUint(dst, MsgEvent)
	dst = AppendVLQUint(dst, uint32(ev.Kind))
	dst = AppendVLQUint(dst, uint32(ev.Slot))
	dst = AppendVLQUint(dst, uint32(ev.Gen))
	return AppendVLQUint(dst, ev.Tick)
}

// Message is a decoded payload.
type Message struct {
	ID      uint32
	Event   core.Event // MsgEvent
	Version string     // MsgIdentify
}

// DecodeMessage decodes a frame payload.
func DecodeMessage(payload []byte) (Message, error) {
	data := payload
	id, err := DecodeVLQUint(&data)
	if err != nil {
		return Message{}, err
	}
	msg := Message{ID: id}

	switch id {
	case MsgEvent:
		var fields [4]uint32
		for i := range fields {
			if fields[i], err = DecodeVLQUint(&data); err != nil {
				return Message{}, err
			}
		}
		msg.Event = core.Event{
			Kind: core.EventKind(fields[0]),
			Slot: uint8(fields[1]),
			Gen:  uint16(fields[2]),
			Tick: fields[3],
		}
	case MsgIdentify:
		if msg.Version, err = DecodeVLQString(&data); err != nil {
			return Message{}, err
		}
	default:
		return Message{}, ErrUnknownMsg
	}
	return msg, nil
}
