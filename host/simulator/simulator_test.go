package simulator

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticktoucan/core"
	"ticktoucan/host/config"
	"ticktoucan/host/metrics"
	"ticktoucan/protocol"
)

func u32(v uint32) *uint32 { return &v }

// syncBuffer lets the test read what the main loop wrote.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.buf.Bytes()...)
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.TickPeriodMs = 1
	cfg.PollInterval = 100 * time.Microsecond
	cfg.Tasks = []config.TaskConfig{
		{Name: "blink", EveryMs: u32(5), MaxRuns: 3},
		{Name: "once", AfterMs: u32(10)},
		{Name: "boom", AtMs: u32(3), Panic: true},
	}
	return cfg
}

// runUntil runs r in the background until cond holds, then stops it.
func runUntil(t *testing.T, r *Runner, cond func() bool) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, cond, 2*time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRunnerRunsConfiguredTasks(t *testing.T) {
	reg := metrics.NewRegistry(prometheus.NewRegistry())
	r, err := New(testConfig(), zerolog.Nop(), WithMetrics(reg))
	require.NoError(t, err)

	runUntil(t, r, func() bool {
		return r.Runs("blink") == 3 && r.Runs("once") == 1 && r.Runs("boom") == 1
	})

	assert.Equal(t, uint32(3), r.Runs("blink"), "max_runs cancels the periodic task")
	assert.Equal(t, uint32(1), r.Panics())
	assert.False(t, r.Scheduler().Initialized(), "timer stopped on return")

	assert.Equal(t, 3.0, testutil.ToFloat64(reg.TaskRuns.WithLabelValues("blink")))
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.TaskPanics.WithLabelValues("boom")))
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.Events.WithLabelValues("CANCEL")))
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.Events.WithLabelValues("CLOSE")))
	assert.Equal(t, 0.0, testutil.ToFloat64(reg.Pending))
}

func TestRunnerPeriodicKeepsRunning(t *testing.T) {
	cfg := testConfig()
	cfg.Tasks = []config.TaskConfig{{Name: "tick", EveryMs: u32(2)}}
	r, err := New(cfg, zerolog.Nop())
	require.NoError(t, err)

	runUntil(t, r, func() bool { return r.Runs("tick") >= 5 })
	assert.Equal(t, uint32(0), r.Scheduler().Stats().Canceled)
}

func TestRunnerTelemetry(t *testing.T) {
	var out syncBuffer
	cfg := testConfig()
	cfg.Tasks = []config.TaskConfig{{Name: "once", AfterMs: u32(2)}}
	r, err := New(cfg, zerolog.Nop(), WithTelemetry(&out))
	require.NoError(t, err)

	runUntil(t, r, func() bool { return r.Runs("once") == 1 })

	fr := protocol.NewFrameReader(bytes.NewReader(out.Bytes()))
	var kinds []core.EventKind
	var version string
	for {
		f, err := fr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		assert.Zero(t, f.Gap)

		msg, err := protocol.DecodeMessage(f.Payload)
		require.NoError(t, err)
		switch msg.ID {
		case protocol.MsgIdentify:
			version = msg.Version
		case protocol.MsgEvent:
			kinds = append(kinds, msg.Event.Kind)
		}
	}

	assert.Equal(t, protocol.Version, version)
	assert.Equal(t, []core.EventKind{core.EvtInit, core.EvtScheduled, core.EvtDispatched, core.EvtClosed}, kinds)
	assert.Zero(t, fr.Corrupt())
}

func TestRunnerLogsFirings(t *testing.T) {
	var out syncBuffer
	log := zerolog.New(&out).Level(zerolog.InfoLevel)
	cfg := testConfig()
	cfg.Tasks = []config.TaskConfig{{Name: "once", AtMs: u32(1)}}
	r, err := New(cfg, log)
	require.NoError(t, err)

	runUntil(t, r, func() bool { return r.Runs("once") == 1 })

	logs := string(out.Bytes())
	assert.Contains(t, logs, `"message":"simulation started"`)
	assert.Contains(t, logs, `"task":"once"`)
	assert.Contains(t, logs, `"message":"task fired"`)
	assert.Contains(t, logs, `"message":"simulation stopped"`)
	assert.NotContains(t, logs, "[TRACE]", "trace dump is debug level")
}

func TestRunnerDumpsTraceAtDebug(t *testing.T) {
	var out syncBuffer
	log := zerolog.New(&out).Level(zerolog.DebugLevel)
	cfg := testConfig()
	cfg.Tasks = []config.TaskConfig{{Name: "once", AtMs: u32(1)}}
	r, err := New(cfg, log)
	require.NoError(t, err)

	runUntil(t, r, func() bool { return r.Runs("once") == 1 })
	assert.Contains(t, string(out.Bytes()), "=== Scheduler Trace ===")
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.TickPeriodMs = 0
	_, err := New(cfg, zerolog.Nop())
	assert.ErrorIs(t, err, core.ErrInvalidPeriod)
}

func TestNewNilConfigUsesDefault(t *testing.T) {
	r, err := New(nil, zerolog.Nop())
	require.NoError(t, err)
	assert.Len(t, r.tasks, 1)
}
