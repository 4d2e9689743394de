package scheduler_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alejandrodnm/bnplbot/internal/application/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockRemote struct {
	run atomic.Bool
	err error
}

func (m *mockRemote) CheckRemoteControlState(context.Context) (bool, error) {
	if m.err != nil {
		return true, m.err
	}
	return m.run.Load(), nil
}

func fixedInterval(d time.Duration) scheduler.Config {
	return scheduler.Config{MinInterval: d, MaxInterval: d}
}

func TestWithinActiveHours(t *testing.T) {
	overnight := scheduler.ActiveHours{Enabled: true, Start: 22, End: 6}
	assert.True(t, scheduler.WithinActiveHours(overnight, 23))
	assert.True(t, scheduler.WithinActiveHours(overnight, 22))
	assert.True(t, scheduler.WithinActiveHours(overnight, 5))
	assert.False(t, scheduler.WithinActiveHours(overnight, 6))
	assert.False(t, scheduler.WithinActiveHours(overnight, 10))

	day := scheduler.ActiveHours{Enabled: true, Start: 9, End: 18}
	assert.True(t, scheduler.WithinActiveHours(day, 9))
	assert.False(t, scheduler.WithinActiveHours(day, 18))

	assert.True(t, scheduler.WithinActiveHours(scheduler.ActiveHours{Enabled: true, Start: 8, End: 8}, 3))
	assert.True(t, scheduler.WithinActiveHours(scheduler.ActiveHours{Start: 22, End: 6}, 10), "disabled window")
}

func TestNextDelay(t *testing.T) {
	cfg := scheduler.Config{
		MinInterval: 2 * time.Minute,
		MaxInterval: 10 * time.Minute,
		ActiveHours: scheduler.ActiveHours{Enabled: true, Start: 22, End: 6},
	}
	s := scheduler.New(cfg, nil)

	inside := time.Date(2026, 6, 1, 23, 0, 0, 0, time.Local)
	for i := 0; i < 20; i++ {
		d := s.NextDelay(inside)
		assert.GreaterOrEqual(t, d, 2*time.Minute)
		assert.LessOrEqual(t, d, 10*time.Minute)
	}

	outside := time.Date(2026, 6, 1, 10, 0, 0, 0, time.Local)
	for i := 0; i < 20; i++ {
		d := s.NextDelay(outside)
		assert.GreaterOrEqual(t, d, 12*time.Hour)
		assert.Less(t, d, 12*time.Hour+30*time.Minute)
	}
}

func TestTicksRepeat(t *testing.T) {
	s := scheduler.New(fixedInterval(10*time.Millisecond), nil)
	var calls atomic.Int32
	require.NoError(t, s.Start(context.Background(), func(context.Context) error {
		calls.Add(1)
		return nil
	}))
	defer s.Stop()

	assert.Eventually(t, func() bool { return calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
}

func TestStartTwiceFails(t *testing.T) {
	s := scheduler.New(fixedInterval(time.Hour), nil)
	noop := func(context.Context) error { return nil }
	require.NoError(t, s.Start(context.Background(), noop))
	defer s.Stop()
	assert.Error(t, s.Start(context.Background(), noop))
}

func TestCallbackPanicKeepsLoopAlive(t *testing.T) {
	s := scheduler.New(fixedInterval(10*time.Millisecond), nil)
	var calls atomic.Int32
	require.NoError(t, s.Start(context.Background(), func(context.Context) error {
		if calls.Add(1) == 1 {
			panic("boom")
		}
		return errors.New("plain failure")
	}))
	defer s.Stop()

	assert.Eventually(t, func() bool { return calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
}

func TestPause_TimerFiringWhilePausedDoesNothing(t *testing.T) {
	s := scheduler.New(fixedInterval(20*time.Millisecond), nil)
	var calls atomic.Int32
	require.NoError(t, s.Start(context.Background(), func(context.Context) error {
		calls.Add(1)
		return nil
	}))
	defer s.Stop()

	s.Pause()
	time.Sleep(80 * time.Millisecond)
	assert.Zero(t, calls.Load())
	assert.True(t, s.Status().NextTickAt.IsZero(), "the fired timer left no pending tick")
}

func TestResumeAfterMissedTick_SchedulesExactlyOne(t *testing.T) {
	s := scheduler.New(fixedInterval(100*time.Millisecond), nil)
	var calls atomic.Int32
	require.NoError(t, s.Start(context.Background(), func(context.Context) error {
		calls.Add(1)
		return nil
	}))
	defer s.Stop()

	s.Pause()
	time.Sleep(150 * time.Millisecond) // the original tick fires while paused
	require.Zero(t, calls.Load())

	s.Resume()
	s.Resume()
	assert.False(t, s.Status().NextTickAt.IsZero())

	require.Eventually(t, func() bool { return calls.Load() == 1 }, 170*time.Millisecond, 5*time.Millisecond)
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load(), "double resume must not arm two timers")
}

func TestStop_NoMoreTicks(t *testing.T) {
	s := scheduler.New(fixedInterval(10*time.Millisecond), nil)
	var calls atomic.Int32
	require.NoError(t, s.Start(context.Background(), func(context.Context) error {
		calls.Add(1)
		return nil
	}))
	require.Eventually(t, func() bool { return calls.Load() >= 1 }, time.Second, 5*time.Millisecond)

	s.Stop()
	after := calls.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, calls.Load())
	assert.False(t, s.Status().Running)
}

func TestPollRemote(t *testing.T) {
	remote := &mockRemote{}
	remote.run.Store(true)
	s := scheduler.New(fixedInterval(time.Hour), remote)
	require.NoError(t, s.Start(context.Background(), func(context.Context) error { return nil }))
	defer s.Stop()
	ctx := context.Background()

	s.PollRemote(ctx)
	assert.False(t, s.IsPaused())

	remote.run.Store(false)
	s.PollRemote(ctx)
	assert.True(t, s.IsPaused())

	remote.run.Store(true)
	s.PollRemote(ctx)
	assert.False(t, s.IsPaused())

	remote.err = errors.New("store unreachable")
	remote.run.Store(false)
	s.PollRemote(ctx)
	assert.False(t, s.IsPaused(), "poll errors never change local state")
}

func TestPollRemote_RespectsHold(t *testing.T) {
	remote := &mockRemote{}
	remote.run.Store(true)
	s := scheduler.New(fixedInterval(time.Hour), remote)
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.Local)
	s.SetClock(func() time.Time { return now })
	require.NoError(t, s.Start(context.Background(), func(context.Context) error { return nil }))
	defer s.Stop()

	s.PauseUntil(now.Add(5 * time.Minute))
	s.PollRemote(context.Background())
	assert.True(t, s.IsPaused(), "hold wins over the remote flag")

	now = now.Add(6 * time.Minute)
	s.PollRemote(context.Background())
	assert.False(t, s.IsPaused())
}

func TestOutsideActiveHours_CallbackNotInvoked(t *testing.T) {
	cfg := fixedInterval(10 * time.Millisecond)
	cfg.ActiveHours = scheduler.ActiveHours{Enabled: true, Start: 22, End: 6}
	s := scheduler.New(cfg, nil)
	now := time.Date(2026, 6, 1, 23, 0, 0, 0, time.Local)
	s.SetClock(func() time.Time { return now })

	var calls atomic.Int32
	require.NoError(t, s.Start(context.Background(), func(context.Context) error {
		calls.Add(1)
		return nil
	}))
	defer s.Stop()
	require.Eventually(t, func() bool { return calls.Load() >= 1 }, time.Second, 5*time.Millisecond)

	// the window closes while a tick is pending
	s.SetClock(func() time.Time { return now.Add(11 * time.Hour) })
	s.SetActiveHours(cfg.ActiveHours)
	seen := calls.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, seen, calls.Load())
	assert.True(t, s.Status().NextTickAt.After(now.Add(11*time.Hour)))
}
