package clock

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, time.January, 1, 12, 0, 0, 0, time.UTC)

func TestTimers_Start(t *testing.T) {
	t.Run("FiresNotEarlierThanDuration", func(t *testing.T) {
		manual := NewManual(epoch)
		timers := NewTimers(manual)

		// Given: a turn timer of 30 seconds
		var fired []Handle
		handle := timers.Start(Turn, 30*time.Second, func(h Handle) { fired = append(fired, h) })

		// When: 29 seconds pass
		manual.Advance(29 * time.Second)

		// Then: nothing fired yet
		assert.Empty(t, fired)

		// When: one more second passes
		manual.Advance(time.Second)

		// Then: the callback fired exactly once with the started handle
		require.Len(t, fired, 1)
		assert.Equal(t, handle, fired[0])
		assert.Equal(t, epoch.Add(30*time.Second), handle.Deadline)
		assert.True(t, timers.Current(handle))
	})

	t.Run("RestartReplacesPreviousTimer", func(t *testing.T) {
		manual := NewManual(epoch)
		timers := NewTimers(manual)

		var fired []Handle
		onExpire := func(h Handle) { fired = append(fired, h) }

		// Given: a turn timer restarted after 20 seconds
		first := timers.Start(Turn, 30*time.Second, onExpire)
		manual.Advance(20 * time.Second)
		second := timers.Start(Turn, 30*time.Second, onExpire)

		// When: the original deadline passes
		manual.Advance(15 * time.Second)

		// Then: the replaced timer did not fire and is no longer current
		assert.Empty(t, fired)
		assert.False(t, timers.Current(first))
		assert.True(t, timers.Current(second))
		assert.Greater(t, second.Generation, first.Generation)

		// When: the new deadline passes
		manual.Advance(15 * time.Second)

		// Then: only the new timer fired
		require.Len(t, fired, 1)
		assert.Equal(t, second, fired[0])
	})

	t.Run("ConcernsAreIndependent", func(t *testing.T) {
		manual := NewManual(epoch)
		timers := NewTimers(manual)

		var fired []Concern
		onExpire := func(h Handle) { fired = append(fired, h.Concern) }

		// Given: a turn timer and two grace timers
		timers.Start(Turn, 30*time.Second, onExpire)
		timers.Start(Grace(0), 10*time.Second, onExpire)
		timers.Start(Grace(1), 20*time.Second, onExpire)

		// When: all deadlines pass
		manual.Advance(time.Minute)

		// Then: each fired once in deadline order
		assert.Equal(t, []Concern{"grace:0", "grace:1", Turn}, fired)
	})
}

func TestTimers_Cancel(t *testing.T) {
	manual := NewManual(epoch)
	timers := NewTimers(manual)

	// Given: a started challenge timer
	var fired int
	handle := timers.Start(Challenge, 10*time.Second, func(Handle) { fired++ })

	// When: it is cancelled before the deadline
	timers.Cancel(Challenge)
	manual.Advance(time.Minute)

	// Then: it never fires and is not current
	assert.Zero(t, fired)
	assert.False(t, timers.Current(handle))
	_, ok := timers.Active(Challenge)
	assert.False(t, ok)
	assert.Zero(t, manual.Pending())
}

func TestTimers_CancelDuringCallback(t *testing.T) {
	manual := NewManual(epoch)
	timers := NewTimers(manual)

	// Given: a callback that cancels its own concern while running
	var fired int
	timers.Start(Turn, time.Second, func(h Handle) {
		fired++
		timers.Cancel(h.Concern)
	})

	// When: the deadline passes twice over
	manual.Advance(time.Second)
	manual.Advance(time.Second)

	// Then: the running callback completed exactly once
	assert.Equal(t, 1, fired)
}

func TestTimers_Stop(t *testing.T) {
	manual := NewManual(epoch)
	timers := NewTimers(manual)

	var fired int
	timers.Start(Turn, time.Second, func(Handle) { fired++ })

	// When: timers are stopped
	timers.Stop()
	handle := timers.Start(Turn, time.Second, func(Handle) { fired++ })
	manual.Advance(time.Minute)

	// Then: nothing fires and new timers are refused
	assert.Zero(t, fired)
	assert.Zero(t, handle.Generation)
}

func TestTimers_RealScheduler(t *testing.T) {
	timers := NewTimers(Real{})

	var fired atomic.Int32
	started := time.Now()
	var firedAt atomic.Int64

	timers.Start(Turn, 20*time.Millisecond, func(Handle) {
		firedAt.Store(time.Since(started).Nanoseconds())
		fired.Add(1)
	})

	require.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, time.Duration(firedAt.Load()), 20*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), fired.Load())
}

func TestManual_Advance(t *testing.T) {
	manual := NewManual(epoch)

	// Given: a callback that schedules another one
	var order []string
	manual.AfterFunc(time.Second, func() {
		order = append(order, "first")
		manual.AfterFunc(time.Second, func() { order = append(order, "second") })
	})
	stopped := manual.AfterFunc(500*time.Millisecond, func() { order = append(order, "stopped") })
	require.True(t, stopped.Stop())
	require.False(t, stopped.Stop())

	// When: the clock advances past both deadlines
	manual.Advance(3 * time.Second)

	// Then: both ran in order and the clock is at the target
	assert.Equal(t, []string{"first", "second"}, order)
	assert.Equal(t, epoch.Add(3*time.Second), manual.Now())
	assert.Zero(t, manual.Pending())
}
