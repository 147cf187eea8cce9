// Package monitor decodes scheduler telemetry frames from a device and
// logs them.
package monitor

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"ticktoucan/core"
	"ticktoucan/host/metrics"
	"ticktoucan/protocol"
)

// Monitor turns a telemetry stream into log lines and metrics.
type Monitor struct {
	log     zerolog.Logger
	metrics *metrics.Registry
	warn    *rate.Limiter

	// Follow keeps reading after io.EOF, which a serial port with a read
	// timeout returns whenever the line is idle.
	Follow bool

	events  uint64
	corrupt int
	dropped int
}

// New creates a Monitor. A nil registry selects a private one.
func New(log zerolog.Logger, reg *metrics.Registry) *Monitor {
	if reg == nil {
		reg = metrics.NewRegistry(prometheus.NewRegistry())
	}
	return &Monitor{
		log:     log,
		metrics: reg,
		warn:    rate.NewLimiter(rate.Every(time.Second), 3),
	}
}

// Events returns the number of event messages decoded.
func (m *Monitor) Events() uint64 {
	return m.events
}

// Run reads frames from r until ctx is done or the stream ends. The end
// of a stream is not an error unless Follow is set and r fails otherwise.
func (m *Monitor) Run(ctx context.Context, r io.Reader) error {
	fr := protocol.NewFrameReader(r)
	for {
		if ctx.Err() != nil {
			return nil
		}
		f, err := fr.Next()
		m.observeReader(fr)
		if err != nil {
			if errors.Is(err, io.EOF) {
				if m.Follow {
					continue
				}
				return nil
			}
			return err
		}
		m.handle(f)
	}
}

func (m *Monitor) observeReader(fr *protocol.FrameReader) {
	if n := fr.Dropped() - m.dropped; n > 0 {
		m.metrics.BytesDropped.Add(float64(n))
		m.dropped = fr.Dropped()
	}
	n := fr.Corrupt() - m.corrupt
	if n <= 0 {
		return
	}
	m.metrics.FramesCorrupt.Add(float64(n))
	m.corrupt = fr.Corrupt()
	if m.warn.Allow() {
		m.log.Warn().Int("corrupt", m.corrupt).Int("dropped_bytes", m.dropped).Msg("corrupt telemetry skipped")
	}
}

func (m *Monitor) handle(f protocol.Frame) {
	m.metrics.Frames.Inc()
	if f.Gap > 0 {
		m.metrics.FramesMissed.Add(float64(f.Gap))
		if m.warn.Allow() {
			m.log.Warn().Int("missed", f.Gap).Uint8("seq", f.Seq).Msg("telemetry frames lost")
		}
	}

	msg, err := protocol.DecodeMessage(f.Payload)
	if err != nil {
		m.log.Debug().Err(err).Uint8("seq", f.Seq).Msg("undecodable frame")
		return
	}

	switch msg.ID {
	case protocol.MsgIdentify:
		lvl := zerolog.InfoLevel
		if msg.Version != protocol.Version {
			lvl = zerolog.WarnLevel
		}
		m.log.WithLevel(lvl).Str("version", msg.Version).Str("want", protocol.Version).Msg("device identified")
	case protocol.MsgEvent:
		m.events++
		ev := msg.Event
		m.metrics.ObserveEvent(ev)
		m.logEvent(ev)
	}
}

func (m *Monitor) logEvent(ev core.Event) {
	var e *zerolog.Event
	switch ev.Kind {
	case core.EvtExhausted:
		e = m.log.Warn()
	case core.EvtDispatched:
		e = m.log.Debug()
	default:
		e = m.log.Info()
	}
	e = e.Str("event", ev.Kind.Name()).Uint32("tick", ev.Tick)
	if ev.Slot != core.NoSlot {
		e = e.Uint8("slot", ev.Slot).Uint16("gen", ev.Gen)
	}
	e.Msg("scheduler event")
}
