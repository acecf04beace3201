package engine

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSchedulerTicksOnCadence(t *testing.T) {
	sched := NewScheduler(0, 0, nil)

	var ticks atomic.Int64
	require.True(t, sched.Start(5*time.Millisecond, func(ctx context.Context) {
		ticks.Add(1)
	}))
	defer sched.Cancel()

	require.Eventually(t, func() bool {
		return ticks.Load() >= 3
	}, time.Second, time.Millisecond)
}

func TestSchedulerStartWhileRunning(t *testing.T) {
	sched := NewScheduler(0, 0, nil)

	require.True(t, sched.Start(time.Hour, func(ctx context.Context) {}))
	defer sched.Cancel()

	require.False(t, sched.Start(time.Hour, func(ctx context.Context) {}))
	require.True(t, sched.Active())
}

func TestSchedulerCancelStopsFutureTicks(t *testing.T) {
	sched := NewScheduler(0, 0, nil)

	var ticks atomic.Int64
	require.True(t, sched.Start(5*time.Millisecond, func(ctx context.Context) {
		ticks.Add(1)
	}))

	require.Eventually(t, func() bool {
		return ticks.Load() >= 1
	}, time.Second, time.Millisecond)

	sched.Cancel()
	sched.Wait()
	require.False(t, sched.Active())

	settled := ticks.Load()
	time.Sleep(30 * time.Millisecond)
	require.Equal(t, settled, ticks.Load())
}

func TestSchedulerCancelIsIdempotent(t *testing.T) {
	sched := NewScheduler(0, 0, nil)
	require.True(t, sched.Start(time.Hour, func(ctx context.Context) {}))
	sched.Cancel()
	sched.Cancel()
	require.False(t, sched.Active())
}

func TestSchedulerSurvivesPanickingTick(t *testing.T) {
	sched := NewScheduler(0, 0, nil)

	var ticks atomic.Int64
	require.True(t, sched.Start(5*time.Millisecond, func(ctx context.Context) {
		n := ticks.Add(1)
		if n == 2 {
			panic("cycle blew up")
		}
	}))
	defer sched.Cancel()

	// The tick after the panic must still fire on schedule.
	require.Eventually(t, func() bool {
		return ticks.Load() >= 3
	}, time.Second, time.Millisecond)
}

func TestSchedulerJitterDelaysFirstTickOnly(t *testing.T) {
	sched := NewScheduler(20*time.Millisecond, 20*time.Millisecond, nil)

	var sleeps []time.Duration
	sched.Sleep = func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		if len(sleeps) >= 3 {
			return context.Canceled
		}
		return nil
	}

	var ticks atomic.Int64
	require.True(t, sched.Start(100*time.Millisecond, func(ctx context.Context) {
		ticks.Add(1)
	}))
	sched.Wait()

	require.Len(t, sleeps, 3)
	require.Equal(t, 120*time.Millisecond, sleeps[0])
	require.Equal(t, 100*time.Millisecond, sleeps[1])
	require.Equal(t, 100*time.Millisecond, sleeps[2])
	require.Equal(t, int64(2), ticks.Load())
}
