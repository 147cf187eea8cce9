package sim

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticktoucan/core"
)

func TestTickerDeliversTicks(t *testing.T) {
	p := New()
	var ticks atomic.Int32
	require.NoError(t, p.SetupTickTimer(2, func() { ticks.Add(1) }))
	assert.True(t, p.Running())
	assert.Equal(t, 2*time.Millisecond, p.Period())

	require.Eventually(t, func() bool { return ticks.Load() >= 5 }, time.Second, time.Millisecond)

	p.CleanupTickTimer()
	assert.False(t, p.Running())
	stopped := ticks.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, stopped, ticks.Load(), "tick delivered after cleanup")
}

func TestSetupReplacesPreviousTimer(t *testing.T) {
	p := New()
	var first, second atomic.Int32
	require.NoError(t, p.SetupTickTimer(1, func() { first.Add(1) }))
	require.Eventually(t, func() bool { return first.Load() > 0 }, time.Second, time.Millisecond)

	require.NoError(t, p.SetupTickTimer(1, func() { second.Add(1) }))
	before := first.Load()
	require.Eventually(t, func() bool { return second.Load() >= 3 }, time.Second, time.Millisecond)
	assert.Equal(t, before, first.Load(), "old ticker still running")

	p.CleanupTickTimer()
	p.CleanupTickTimer()
}

func TestSetupRejectsZeroPeriod(t *testing.T) {
	p := New()
	assert.ErrorIs(t, p.SetupTickTimer(0, func() {}), core.ErrInvalidPeriod)
	assert.False(t, p.Running())
}

func TestTimeScale(t *testing.T) {
	p := New(WithTimeScale(0.5))
	require.NoError(t, p.SetupTickTimer(20, func() {}))
	defer p.CleanupTickTimer()
	assert.Equal(t, 10*time.Millisecond, p.Period())
}

// The scheduler tests in core drive ticks by hand; these run the same
// engine against the real ticker goroutine.
func TestSchedulerOnSimulatedTimer(t *testing.T) {
	p := New(WithTimeScale(0.25))
	s := core.NewScheduler(p)
	require.NoError(t, s.Init(20))
	defer s.Close()

	var oneShotAt atomic.Uint32
	_, err := s.ScheduleAt(100, core.Func(func() { oneShotAt.Store(s.Now()) }))
	require.NoError(t, err)

	var periodic atomic.Int32
	h, err := s.ScheduleEvery(40, core.Func(func() { periodic.Add(1) }), 200)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		s.Dispatch()
		return periodic.Load() >= 3
	}, 5*time.Second, 100*time.Microsecond)

	assert.GreaterOrEqual(t, oneShotAt.Load(), uint32(5))
	assert.True(t, s.Cancel(h))

	require.NoError(t, s.Close())
	assert.False(t, p.Running())
	now := s.Now()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, now, s.Now(), "ticks continued after Close")
}

func TestCriticalSectionExcludesTicks(t *testing.T) {
	p := New()
	s := core.NewScheduler(p)
	require.NoError(t, s.Init(1))
	defer s.Close()

	state := p.EnterCritical()
	before := s.Now()
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, before, s.Now(), "tick ran while masked")
	p.ExitCritical(state)

	require.Eventually(t, func() bool { return s.Now() > before }, time.Second, time.Millisecond)
}
