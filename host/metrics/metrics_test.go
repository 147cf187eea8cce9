package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticktoucan/core"
)

func TestObserverCountsByKind(t *testing.T) {
	r := NewRegistry(prometheus.NewRegistry())
	obs := r.Observer()

	obs.OnEvent(core.Event{Kind: core.EvtScheduled})
	obs.OnEvent(core.Event{Kind: core.EvtDispatched})
	obs.OnEvent(core.Event{Kind: core.EvtDispatched})

	assert.Equal(t, 1.0, testutil.ToFloat64(r.Events.WithLabelValues("SCHED")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.Events.WithLabelValues("DISPATCH")))
	assert.Equal(t, 0.0, testutil.ToFloat64(r.Events.WithLabelValues("CANCEL")))
}

func TestObserveScheduler(t *testing.T) {
	r := NewRegistry(prometheus.NewRegistry())
	r.ObserveScheduler(42, core.Stats{Pending: 3})

	assert.Equal(t, 42.0, testutil.ToFloat64(r.CurrentTick))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.Pending))
}

func TestSchedulerDrivesMetrics(t *testing.T) {
	r := NewRegistry(prometheus.NewRegistry())
	s := core.NewScheduler(nil)
	s.SetObserver(r.Observer())
	require.NoError(t, s.Init(10))

	_, err := s.ScheduleAfter(20, core.Func(func() {}))
	require.NoError(t, err)
	s.Tick()
	s.Tick()
	s.Dispatch()

	assert.Equal(t, 1.0, testutil.ToFloat64(r.Events.WithLabelValues("INIT")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.Events.WithLabelValues("SCHED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.Events.WithLabelValues("DISPATCH")))
	assert.Equal(t, 0.0, testutil.ToFloat64(r.Events.WithLabelValues("DUE")), "Tick never notifies observers")
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRegistry(reg)
	r.Frames.Add(7)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ticktoucan_telemetry_frames_total 7")
}

func TestDuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewRegistry(reg)
	assert.Panics(t, func() { NewRegistry(reg) })
}
