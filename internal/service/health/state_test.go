package health

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Aduersarius/polybet-sub009/pkg/monitor"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time           { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestState(c *fakeClock) *State {
	return NewState(30*time.Second, 5, WithClock(c.now))
}

func TestState_HealthyAtStart(t *testing.T) {
	c := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	s := newTestState(c)

	snap := s.Snapshot()
	assert.True(t, snap.Healthy)
	assert.Equal(t, c.t, snap.LastSuccessfulCycle)
	assert.Nil(t, snap.LastSuccessfulSweep)
}

func TestState_StaleCycleIsUnhealthy(t *testing.T) {
	c := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	s := newTestState(c)

	c.advance(89 * time.Second)
	assert.True(t, s.Snapshot().Healthy)

	c.advance(time.Second)
	assert.False(t, s.Snapshot().Healthy, "exactly 3x interval is no longer fresh")

	s.CycleSucceeded()
	assert.True(t, s.Snapshot().Healthy)
}

func TestState_ThresholdReachedOnce(t *testing.T) {
	c := &fakeClock{t: time.Now()}
	s := newTestState(c)

	var reached int
	for i := 1; i <= 7; i++ {
		n, hit := s.CycleFailed()
		assert.Equal(t, i, n)
		if hit {
			reached++
			assert.Equal(t, 5, n)
		}
		assert.Equal(t, i < 5, s.Snapshot().Healthy)
	}
	assert.Equal(t, 1, reached)

	s.CycleSucceeded()
	assert.Equal(t, 0, s.ConsecutiveFailures())
	assert.True(t, s.Snapshot().Healthy)
}

func TestState_Counters(t *testing.T) {
	c := &fakeClock{t: time.Now()}
	s := newTestState(c)

	s.RecordAttempt()
	s.RecordAttempt()
	s.RecordSuccess()
	s.RecordFailure()
	s.RecordNotifyFailure()
	s.RecordUnresolved()

	snap := s.Snapshot()
	assert.Equal(t, uint64(2), snap.Attempts)
	assert.Equal(t, uint64(1), snap.Successes)
	assert.Equal(t, uint64(1), snap.Failures)
	assert.Equal(t, uint64(1), snap.NotifyFailures)
	assert.Equal(t, uint64(1), snap.UnresolvedAddresses)
	require.NotNil(t, snap.LastSuccessfulSweep)
	assert.Equal(t, c.t, *snap.LastSuccessfulSweep)
}

func TestReporter_Emit(t *testing.T) {
	c := &fakeClock{t: time.Now()}
	s := newTestState(c)
	core, logs := observer.New(zapcore.InfoLevel)
	metrics := monitor.NewSweeperMetrics(prometheus.NewRegistry())
	r := NewReporter(s, zap.New(core), metrics)

	snap := r.Emit("interval")
	assert.True(t, snap.Healthy)
	require.Equal(t, 1, logs.FilterMessage("归集服务健康状态").Len())

	for i := 0; i < 5; i++ {
		s.CycleFailed()
	}
	snap = r.Emit("shutdown")
	assert.False(t, snap.Healthy)
	entries := logs.FilterMessage("归集服务不健康").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Equal(t, "shutdown", entries[0].ContextMap()["reason"])
	assert.Equal(t, float64(5), testutil.ToFloat64(metrics.ConsecutiveFailures))
}
