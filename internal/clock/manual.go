package clock

import (
	"sync"
	"time"
)

// Manual is a Scheduler that only moves when Advance is called. Due callbacks run
// synchronously on the goroutine calling Advance, in deadline order.
type Manual struct {
	mu    sync.Mutex
	now   time.Time
	seq   int
	tasks []*manualTask
}

type manualTask struct {
	owner *Manual
	at    time.Time
	seq   int
	f     func()
	done  bool
}

func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

func (that *Manual) Now() time.Time {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.now
}

func (that *Manual) AfterFunc(d time.Duration, f func()) Stopper {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.seq++
	task := &manualTask{owner: that, at: that.now.Add(d), seq: that.seq, f: f}
	that.tasks = append(that.tasks, task)

	return task
}

func (that *manualTask) Stop() bool {
	that.owner.mu.Lock()
	defer that.owner.mu.Unlock()

	if that.done {
		return false
	}
	that.done = true

	return true
}

// Advance moves the clock forward by d, firing every callback that falls due.
func (that *Manual) Advance(d time.Duration) {
	that.mu.Lock()
	target := that.now.Add(d)
	that.mu.Unlock()

	for {
		task := that.nextDue(target)
		if task == nil {
			return
		}

		task.f()
	}
}

func (that *Manual) nextDue(target time.Time) *manualTask {
	that.mu.Lock()
	defer that.mu.Unlock()

	var next *manualTask
	pending := that.tasks[:0]
	for _, task := range that.tasks {
		if task.done {
			continue
		}
		pending = append(pending, task)

		if task.at.After(target) {
			continue
		}
		if next == nil || task.at.Before(next.at) || (task.at.Equal(next.at) && task.seq < next.seq) {
			next = task
		}
	}
	that.tasks = pending

	if next == nil {
		that.now = target
		return nil
	}

	next.done = true
	if next.at.After(that.now) {
		that.now = next.at
	}

	return next
}

// Pending returns the number of scheduled callbacks that have not fired or been stopped.
func (that *Manual) Pending() int {
	that.mu.Lock()
	defer that.mu.Unlock()

	n := 0
	for _, task := range that.tasks {
		if !task.done {
			n++
		}
	}

	return n
}
