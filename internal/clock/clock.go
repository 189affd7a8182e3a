// Package clock schedules the per-session countdowns: the challenge window, the turn
// timeout and the reconnect grace of each seat.
package clock

import (
	"fmt"
	"sync"
	"time"
)

type Stopper interface {
	Stop() bool
}

// Scheduler is the time source behind Timers.
type Scheduler interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Stopper
}

type Real struct{}

func (Real) Now() time.Time {
	return time.Now()
}

func (Real) AfterFunc(d time.Duration, f func()) Stopper {
	return time.AfterFunc(d, f)
}

type Concern string

const (
	Challenge Concern = "challenge"
	Turn      Concern = "turn"
)

// Grace is the reconnect-grace concern of a seat.
func Grace(seat int) Concern {
	return Concern(fmt.Sprintf("grace:%d", seat))
}

// Handle identifies one started timer. A newer Start of the same concern gets a higher generation.
type Handle struct {
	Concern    Concern
	Generation uint64
	Deadline   time.Time
}

type entry struct {
	handle  Handle
	stopper Stopper
	fired   bool
}

// Timers keeps at most one active timer per concern.
type Timers struct {
	mu         sync.Mutex
	scheduler  Scheduler
	generation uint64
	active     map[Concern]*entry
	stopped    bool
}

func NewTimers(scheduler Scheduler) *Timers {
	return &Timers{
		scheduler: scheduler,
		active:    make(map[Concern]*entry),
	}
}

func (that *Timers) Now() time.Time {
	return that.scheduler.Now()
}

// Start replaces any timer of the same concern. onExpire runs at most once, not earlier
// than d, and only if the timer was not cancelled or replaced before it fired.
func (that *Timers) Start(concern Concern, d time.Duration, onExpire func(Handle)) Handle {
	that.mu.Lock()
	defer that.mu.Unlock()

	if that.stopped {
		return Handle{}
	}

	if prev, ok := that.active[concern]; ok {
		prev.stopper.Stop()
	}

	that.generation++
	e := &entry{
		handle: Handle{
			Concern:    concern,
			Generation: that.generation,
			Deadline:   that.scheduler.Now().Add(d),
		},
	}
	that.active[concern] = e
	e.stopper = that.scheduler.AfterFunc(d, func() { that.fire(e, onExpire) })

	return e.handle
}

func (that *Timers) fire(e *entry, onExpire func(Handle)) {
	that.mu.Lock()
	if e.fired || that.active[e.handle.Concern] != e {
		that.mu.Unlock()
		return
	}
	e.fired = true
	that.mu.Unlock()

	onExpire(e.handle)
}

// Cancel stops the timer of concern. A callback that already started keeps running;
// its owner is expected to check Current before acting.
func (that *Timers) Cancel(concern Concern) {
	that.mu.Lock()
	defer that.mu.Unlock()

	if e, ok := that.active[concern]; ok {
		e.stopper.Stop()
		delete(that.active, concern)
	}
}

// Current reports whether handle is still the live timer of its concern.
func (that *Timers) Current(handle Handle) bool {
	that.mu.Lock()
	defer that.mu.Unlock()

	e, ok := that.active[handle.Concern]

	return ok && e.handle.Generation == handle.Generation
}

func (that *Timers) Active(concern Concern) (Handle, bool) {
	that.mu.Lock()
	defer that.mu.Unlock()

	e, ok := that.active[concern]
	if !ok || e.fired {
		return Handle{}, false
	}

	return e.handle, true
}

// Stop cancels every timer and refuses new ones.
func (that *Timers) Stop() {
	that.mu.Lock()
	defer that.mu.Unlock()

	for concern, e := range that.active {
		e.stopper.Stop()
		delete(that.active, concern)
	}
	that.stopped = true
}
