package protocol

import (
	"bytes"
	"io"
)

// FrameReader extracts frames from a byte stream. Corrupt data is skipped
// up to the next sync byte and counted in Dropped.
type FrameReader struct {
	r       io.Reader
	buf     []byte
	chunk   [FrameMax]byte
	dropped int
	bad     int
	lastSeq int
}

// NewFrameReader creates a FrameReader over r.
func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{r: r, lastSeq: -1}
}

// Frame is one validated message block.
type Frame struct {
	Seq     uint8
	Payload []byte
	Gap     int // frames missing since the previous one, by sequence number
}

// Next returns the next valid frame, or the reader's error once no
// complete frame is buffered. A partial frame is kept, so Next can be
// called again after a read timeout.
func (fr *FrameReader) Next() (Frame, error) {
	for {
		if f, ok := fr.parse(); ok {
			return f, nil
		}
		n, err := fr.r.Read(fr.chunk[:])
		fr.buf = append(fr.buf, fr.chunk[:n]...)
		if err != nil {
			if f, ok := fr.parse(); ok {
				return f, nil
			}
			return Frame{}, err
		}
	}
}

// parse tries to take one frame off the front of the buffer.
func (fr *FrameReader) parse() (Frame, bool) {
	for {
		// Skip leading sync bytes
		for len(fr.buf) > 0 && fr.buf[0] == FrameSync {
			fr.buf = fr.buf[1:]
		}
		if len(fr.buf) < FrameMin {
			return Frame{}, false
		}

		n := int(fr.buf[FramePosLen])
		seq := fr.buf[FramePosSeq]
		if n < FrameMin || n > FrameMax || seq&^SeqMask != FrameDest {
			fr.resync()
			continue
		}
		if len(fr.buf) < n {
			return Frame{}, false
		}
		if fr.buf[n-1] != FrameSync {
			fr.resync()
			continue
		}
		crc := uint16(fr.buf[n-3])<<8 | uint16(fr.buf[n-2])
		if crc != CRC16(fr.buf[:n-FrameTrailer]) {
			fr.resync()
			continue
		}

		payload := make([]byte, n-FrameMin)
		copy(payload, fr.buf[FrameHeader:n-FrameTrailer])
		fr.buf = fr.buf[n:]

		f := Frame{Seq: seq & SeqMask, Payload: payload}
		if fr.lastSeq >= 0 {
			f.Gap = int((f.Seq - uint8(fr.lastSeq) - 1) & SeqMask)
		}
		fr.lastSeq = int(f.Seq)
		return f, true
	}
}

// resync drops the current frame start and everything up to the next
// sync byte.
func (fr *FrameReader) resync() {
	fr.bad++
	i := bytes.IndexByte(fr.buf[1:], FrameSync)
	if i < 0 {
		fr.dropped += len(fr.buf)
		fr.buf = fr.buf[:0]
		return
	}
	fr.dropped += i + 2
	fr.buf = fr.buf[i+2:]
}

// Dropped returns the number of bytes discarded while resynchronizing.
func (fr *FrameReader) Dropped() int {
	return fr.dropped
}

// Corrupt returns the number of malformed frame starts seen.
func (fr *FrameReader) Corrupt() int {
	return fr.bad
}
