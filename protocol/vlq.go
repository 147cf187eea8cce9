package protocol

import "errors"

var (
	ErrInvalidVLQ     = errors.New("invalid VLQ encoding")
	ErrBufferTooSmall = errors.New("buffer too small for VLQ")
)

// AppendVLQ appends v in Klipper's signed VLQ encoding: seven bits per
// byte, most significant group first, high bit set on all but the last.
// Small negative and positive values both fit in one byte.
func AppendVLQ(dst []byte, v int32) []byte {
	for shift := uint(28); shift > 0; shift -= 7 {
		lo := -(int32(1) << (shift - 2))
		hi := int32(3) << (shift - 2)
		if v < lo || v >= hi {
			dst = append(dst, byte((v>>shift)&0x7F)|0x80)
		}
	}
	return append(dst, byte(v&0x7F))
}

// AppendVLQUint appends an unsigned value; the full 32-bit range round-trips.
func AppendVLQUint(dst []byte, v uint32) []byte {
	return AppendVLQ(dst, int32(v))
}

// AppendVLQString appends a length-prefixed string.
func AppendVLQString(dst []byte, s string) []byte {
	dst = AppendVLQUint(dst, uint32(len(s)))
	return append(dst, s...)
}

// DecodeVLQ decodes one value from the front of data and advances it.
func DecodeVLQ(data *[]byte) (int32, error) {
	buf := *data
	if len(buf) == 0 {
		return 0, ErrBufferTooSmall
	}

	c := uint32(buf[0])
	v := c & 0x7F
	if c&0x60 == 0x60 {
		v |= ^uint32(0x1F) // sign extend
	}
	n := 1
	for c&0x80 != 0 {
		if n >= len(buf) {
			return 0, ErrBufferTooSmall
		}
		if n >= 5 {
			return 0, ErrInvalidVLQ
		}
		c = uint32(buf[n])
		v = v<<7 | c&0x7F
		n++
	}
	*data = buf[n:]
	return int32(v), nil
}

// DecodeVLQUint decodes an unsigned value.
func DecodeVLQUint(data *[]byte) (uint32, error) {
	v, err := DecodeVLQ(data)
	return uint32(v), err
}

// DecodeVLQString decodes a length-prefixed string.
func DecodeVLQString(data *[]byte) (string, error) {
	n, err := DecodeVLQUint(data)
	if err != nil {
		return "", err
	}
	if uint32(len(*data)) < n {
		return "", ErrBufferTooSmall
	}
	s := string((*data)[:n])
	*data = (*data)[n:]
	return s, nil
}
