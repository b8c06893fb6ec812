package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RejectsBadBounds(t *testing.T) {
	tests := []struct {
		name     string
		min, max time.Duration
		wantErr  bool
	}{
		{"zero min", 0, time.Second, true},
		{"negative min", -time.Second, time.Second, true},
		{"max below min", 2 * time.Second, time.Second, true},
		{"fixed interval", time.Second, time.Second, false},
		{"range", time.Second, 5 * time.Second, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.min, tt.max)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidInterval)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNextDelay_WithinBounds(t *testing.T) {
	s, err := New(10*time.Minute, 20*time.Minute, WithRand(func() float64 { return 0 }))
	require.NoError(t, err)
	assert.Equal(t, 10*time.Minute, s.NextDelay())

	s, err = New(10*time.Minute, 20*time.Minute, WithRand(func() float64 { return 0.9999999999 }))
	require.NoError(t, err)
	assert.LessOrEqual(t, s.NextDelay(), 20*time.Minute)
	assert.Greater(t, s.NextDelay(), 19*time.Minute)

	s, err = New(10*time.Minute, 20*time.Minute)
	require.NoError(t, err)
	for range 1000 {
		d := s.NextDelay()
		assert.GreaterOrEqual(t, d, 10*time.Minute)
		assert.LessOrEqual(t, d, 20*time.Minute)
	}

	fixed, err := New(time.Minute, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, time.Minute, fixed.NextDelay())
}

func TestScheduler_RunsImmediatelyAndRearms(t *testing.T) {
	s, err := New(5*time.Millisecond, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, StateIdle, s.State())

	var runs atomic.Int32
	s.Start(context.Background(), func(context.Context) error {
		runs.Add(1)
		return nil
	})
	require.Eventually(t, func() bool { return runs.Load() >= 3 }, 2*time.Second, time.Millisecond)

	s.Stop()
	s.Wait()
	assert.Equal(t, StateStopped, s.State())

	after := runs.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, runs.Load(), "no run may start after Stop")
}

func TestScheduler_NoOverlap(t *testing.T) {
	s, err := New(time.Millisecond, time.Millisecond)
	require.NoError(t, err)

	var active, maxActive, runs atomic.Int32
	s.Start(context.Background(), func(context.Context) error {
		n := active.Add(1)
		if n > maxActive.Load() {
			maxActive.Store(n)
		}
		time.Sleep(10 * time.Millisecond)
		active.Add(-1)
		runs.Add(1)
		return nil
	})
	require.Eventually(t, func() bool { return runs.Load() >= 3 }, 2*time.Second, time.Millisecond)
	s.Stop()
	s.Wait()
	assert.Equal(t, int32(1), maxActive.Load())
}

func TestScheduler_StopInsideRun(t *testing.T) {
	s, err := New(time.Millisecond, time.Millisecond)
	require.NoError(t, err)

	var runs atomic.Int32
	done := make(chan struct{})
	s.Start(context.Background(), func(context.Context) error {
		runs.Add(1)
		s.Stop()
		s.Stop()
		close(done)
		return nil
	})
	<-done
	s.Wait()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), runs.Load())
	assert.Equal(t, StateStopped, s.State())
}

func TestScheduler_SurvivesErrorsAndPanics(t *testing.T) {
	var hookErrs atomic.Int32
	s, err := New(time.Millisecond, 2*time.Millisecond, WithName("flaky"),
		WithRunHook(func(_ string, _ time.Duration, err error) {
			if err != nil {
				hookErrs.Add(1)
			}
		}))
	require.NoError(t, err)

	var runs atomic.Int32
	s.Start(context.Background(), func(context.Context) error {
		switch runs.Add(1) {
		case 1:
			panic("boom")
		case 2:
			return errors.New("transient")
		}
		return nil
	})
	require.Eventually(t, func() bool { return runs.Load() >= 3 }, 2*time.Second, time.Millisecond)
	s.Stop()
	s.Wait()
	assert.Equal(t, int32(2), hookErrs.Load())
}

func TestScheduler_StopBeforeStart(t *testing.T) {
	s, err := New(time.Millisecond, time.Millisecond)
	require.NoError(t, err)
	s.Stop()

	var runs atomic.Int32
	s.Start(context.Background(), func(context.Context) error {
		runs.Add(1)
		return nil
	})
	s.Wait()
	assert.Equal(t, int32(0), runs.Load())
	assert.Equal(t, StateStopped, s.State())
}

func TestScheduler_ContextCancelStopsRearming(t *testing.T) {
	s, err := New(time.Millisecond, time.Millisecond)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())

	var runs atomic.Int32
	s.Start(ctx, func(context.Context) error {
		if runs.Add(1) == 2 {
			cancel()
		}
		return nil
	})
	require.Eventually(t, func() bool { return s.State() == StateStopped }, 2*time.Second, time.Millisecond)
	s.Wait()
	assert.Equal(t, int32(2), runs.Load())
}
