package health

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PRYePR/moreyudeals-sub000/internal/models"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newMonitor(t *testing.T) (*Monitor, *fakeClock, *[]string) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	var changes []string
	m := New("sparhamster", Config{
		FailureThreshold: 3,
		DegradedDuration: time.Hour,
		OnChange: func(_ string, from, to models.HealthMode) {
			changes = append(changes, string(from)+"->"+string(to))
		},
	}, WithClock(clock.Now))
	return m, clock, &changes
}

func TestMonitor_DegradesAtThreshold(t *testing.T) {
	m, clock, changes := newMonitor(t)
	errBoom := errors.New("boom")

	m.RecordFailure(errBoom)
	m.RecordFailure(errBoom)
	assert.Equal(t, models.ModeNormal, m.CheckHealth())

	m.RecordFailure(errBoom)
	assert.Equal(t, models.ModeDegraded, m.CheckHealth())
	state := m.State()
	assert.Equal(t, 3, state.ConsecutiveFailures)
	require.NotNil(t, state.DegradedUntil)
	assert.Equal(t, clock.Now().Add(time.Hour), *state.DegradedUntil)
	assert.Equal(t, []string{"normal->degraded"}, *changes)
}

func TestMonitor_OptimisticRecoveryAfterCooldown(t *testing.T) {
	m, clock, changes := newMonitor(t)
	for range 3 {
		m.RecordFailure(errors.New("blocked"))
	}

	clock.Advance(59 * time.Minute)
	assert.Equal(t, models.ModeDegraded, m.CheckHealth())

	clock.Advance(time.Minute)
	assert.Equal(t, models.ModeNormal, m.CheckHealth())
	assert.Equal(t, 0, m.State().ConsecutiveFailures)
	assert.Nil(t, m.State().DegradedUntil)
	assert.Equal(t, []string{"normal->degraded", "degraded->normal"}, *changes)
}

func TestMonitor_SuccessResets(t *testing.T) {
	m, _, _ := newMonitor(t)
	for range 3 {
		m.RecordFailure(nil)
	}
	require.Equal(t, models.ModeDegraded, m.CheckHealth())

	m.RecordSuccess()
	assert.Equal(t, models.ModeNormal, m.CheckHealth())
	assert.Equal(t, 0, m.State().ConsecutiveFailures)

	m.RecordFailure(errors.New("once"))
	m.RecordSuccess()
	m.RecordFailure(errors.New("again"))
	assert.Equal(t, 1, m.State().ConsecutiveFailures, "success breaks the consecutive run")
}

func TestMonitor_FailureHistoryRing(t *testing.T) {
	m, _, _ := newMonitor(t)
	for i := range 60 {
		m.RecordFailure(fmt.Errorf("err %d", i))
	}
	history := m.Failures()
	require.Len(t, history, 50)
	assert.Equal(t, "err 10", history[0].Error)
	assert.Equal(t, "err 59", history[49].Error)
}

func TestNew_Defaults(t *testing.T) {
	m := New("preisjaeger", Config{FailureThreshold: -1})
	assert.Equal(t, DefaultFailureThreshold, m.cfg.FailureThreshold)
	assert.Equal(t, DefaultDegradedDuration, m.cfg.DegradedDuration)
	assert.Equal(t, models.ModeNormal, m.CheckHealth())
}
