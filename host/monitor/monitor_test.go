package monitor

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticktoucan/core"
	"ticktoucan/host/metrics"
	"ticktoucan/protocol"
)

func recordStream(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	rep := protocol.NewReporter(&buf)

	s := core.NewScheduler(nil)
	s.SetObserver(rep)
	require.NoError(t, s.Init(10))
	require.NoError(t, rep.Identify())

	_, err := s.ScheduleEvery(10, core.Func(func() {}), 0)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		s.Tick()
		s.Dispatch()
	}
	require.NoError(t, s.Close())
	require.NoError(t, rep.Err())
	return buf.Bytes()
}

func TestMonitorDecodesStream(t *testing.T) {
	var logs bytes.Buffer
	reg := metrics.NewRegistry(prometheus.NewRegistry())
	m := New(zerolog.New(&logs), reg)

	require.NoError(t, m.Run(context.Background(), bytes.NewReader(recordStream(t))))

	// INIT, SCHED, 3x DISPATCH, CLOSE
	assert.Equal(t, uint64(6), m.Events())
	assert.Equal(t, 7.0, testutil.ToFloat64(reg.Frames))
	assert.Equal(t, 3.0, testutil.ToFloat64(reg.Events.WithLabelValues("DISPATCH")))
	assert.Equal(t, 0.0, testutil.ToFloat64(reg.FramesCorrupt))

	out := logs.String()
	assert.Contains(t, out, `"message":"device identified"`)
	assert.Contains(t, out, `"event":"SCHED"`)
	assert.Contains(t, out, `"event":"CLOSE"`)
}

func TestMonitorCountsCorruption(t *testing.T) {
	stream := recordStream(t)
	noisy := append([]byte{0x01, 0x02, protocol.FrameSync}, stream...)

	reg := metrics.NewRegistry(prometheus.NewRegistry())
	m := New(zerolog.Nop(), reg)
	require.NoError(t, m.Run(context.Background(), bytes.NewReader(noisy)))

	assert.Equal(t, uint64(6), m.Events())
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.FramesCorrupt))
	assert.Equal(t, 3.0, testutil.ToFloat64(reg.BytesDropped))
}

func TestMonitorCountsMissedFrames(t *testing.T) {
	var stream []byte
	for _, seq := range []uint8{0, 1, 4} {
		payload := protocol.AppendEvent(nil, core.Event{Kind: core.EvtDispatched, Slot: 0, Gen: 1, Tick: uint32(seq)})
		var err error
		stream, err = protocol.EncodeFrame(stream, seq, payload)
		require.NoError(t, err)
	}

	reg := metrics.NewRegistry(prometheus.NewRegistry())
	m := New(zerolog.Nop(), reg)
	require.NoError(t, m.Run(context.Background(), bytes.NewReader(stream)))

	assert.Equal(t, 2.0, testutil.ToFloat64(reg.FramesMissed))
}

func TestMonitorWarnsOnVersionMismatch(t *testing.T) {
	payload := protocol.AppendVLQUint(nil, protocol.MsgIdentify)
	payload = protocol.AppendVLQString(payload, "99")
	stream, err := protocol.EncodeFrame(nil, 0, payload)
	require.NoError(t, err)

	var logs bytes.Buffer
	m := New(zerolog.New(&logs), nil)
	require.NoError(t, m.Run(context.Background(), bytes.NewReader(stream)))
	assert.Contains(t, logs.String(), `"level":"warn"`)
	assert.Contains(t, logs.String(), `"version":"99"`)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("device gone") }

func TestMonitorReturnsReadError(t *testing.T) {
	m := New(zerolog.Nop(), nil)
	err := m.Run(context.Background(), failingReader{})
	assert.EqualError(t, err, "device gone")
}

// idleReader returns the stream and then io.EOF forever, like an idle
// serial port with a read timeout.
type idleReader struct {
	r      io.Reader
	cancel context.CancelFunc
	idle   int
}

func (i *idleReader) Read(p []byte) (int, error) {
	n, err := i.r.Read(p)
	if err == io.EOF {
		i.idle++
		if i.idle == 5 {
			i.cancel()
		}
	}
	return n, err
}

func TestMonitorFollowSurvivesIdle(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := New(zerolog.Nop(), nil)
	m.Follow = true
	r := &idleReader{r: bytes.NewReader(recordStream(t)), cancel: cancel}

	require.NoError(t, m.Run(ctx, r))
	assert.Equal(t, uint64(6), m.Events())
	assert.Equal(t, 5, r.idle)
}

func TestMonitorStopsOnCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m := New(zerolog.Nop(), nil)
	require.NoError(t, m.Run(ctx, bytes.NewReader(recordStream(t))))
	assert.Zero(t, m.Events())
}
