package protocol

import (
	"io"

	"ticktoucan/core"
)

// Reporter sends scheduler events as frames to w. It implements
// core.Observer, so it runs on the main loop and may block on w.
type Reporter struct {
	w    io.Writer
	seq  uint8
	buf  [FrameMax]byte
	sent uint32
	err  error
}

// NewReporter creates a Reporter writing to w.
func NewReporter(w io.Writer) *Reporter {
	return &Reporter{w: w}
}

// Identify sends the wire format version so a monitor can check it.
func (r *Reporter) Identify() error {
	payload := AppendVLQUint(r.buf[:0], MsgIdentify)
	payload = AppendVLQString(payload, Version)
	return r.send(payload)
}

// OnEvent encodes ev and writes it. After the first write error the
// reporter stays silent; Err returns that error.
func (r *Reporter) OnEvent(ev core.Event) {
	_ = r.send(AppendEvent(r.buf[:0], ev))
}

func (r *Reporter) send(payload []byte) error {
	if r.err != nil {
		return r.err
	}
	var frame [FrameMax]byte
	out, err := EncodeFrame(frame[:0], r.seq, payload)
	if err != nil {
		return err
	}
	r.seq = (r.seq + 1) & SeqMask
	if _, err := r.w.Write(out); err != nil {
		r.err = err
		return err
	}
	r.sent++
	return nil
}

// Sent returns the number of frames written.
func (r *Reporter) Sent() uint32 {
	return r.sent
}

// Err returns the first write error, if any.
func (r *Reporter) Err() error {
	return r.err
}

var _ core.Observer = (*Reporter)(nil)
