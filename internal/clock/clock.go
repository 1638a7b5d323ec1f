// Package clock abstracts time so the session waiters can be driven by a
// fake clock in tests.
package clock

import (
	"container/heap"
	"sync"
	"time"
)

// Clock is the subset of the time package the waiters depend on.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives the current time after d
	// elapses. If d <= 0, the channel receives immediately.
	After(d time.Duration) <-chan time.Time
}

// Real returns a Clock backed by the standard time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// FakeClock only moves when Advance is called. Channels returned by After
// receive the clock's time once it reaches their deadline.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	timers  timerQueue
	seq     uint64
	changed chan struct{}
}

type pendingTimer struct {
	at  time.Time
	seq uint64
	ch  chan time.Time
}

// timerQueue orders pending timers by deadline, then by registration.
type timerQueue []*pendingTimer

func (q timerQueue) Len() int { return len(q) }
func (q timerQueue) Less(i, j int) bool {
	if q[i].at.Equal(q[j].at) {
		return q[i].seq < q[j].seq
	}
	return q[i].at.Before(q[j].at)
}
func (q timerQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *timerQueue) Push(x any)   { *q = append(*q, x.(*pendingTimer)) }
func (q *timerQueue) Pop() any {
	old := *q
	t := old[len(old)-1]
	old[len(old)-1] = nil
	*q = old[:len(old)-1]
	return t
}

// Fake returns a FakeClock reading start.
func Fake(start time.Time) *FakeClock {
	return &FakeClock{now: start, changed: make(chan struct{})}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)

	c.mu.Lock()
	defer c.mu.Unlock()
	if d <= 0 {
		ch <- c.now
		return ch
	}
	c.seq++
	heap.Push(&c.timers, &pendingTimer{at: c.now.Add(d), seq: c.seq, ch: ch})
	c.notifyLocked()
	return ch
}

// notifyLocked wakes every WaitForTimers caller. c.mu must be held.
func (c *FakeClock) notifyLocked() {
	close(c.changed)
	c.changed = make(chan struct{})
}

// Advance moves the clock forward by d and releases the timers that are
// now due, earliest first.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	var due []*pendingTimer
	for c.timers.Len() > 0 && !c.timers[0].at.After(now) {
		due = append(due, heap.Pop(&c.timers).(*pendingTimer))
	}
	if len(due) > 0 {
		c.notifyLocked()
	}
	c.mu.Unlock()

	// Each channel has room for its single value.
	for _, t := range due {
		t.ch <- now
	}
}

// WaitForTimers blocks until at least n timers are pending, so a test can
// advance time only after the code under test armed its deadline.
func (c *FakeClock) WaitForTimers(n int) {
	for {
		c.mu.Lock()
		pending, changed := c.timers.Len(), c.changed
		c.mu.Unlock()
		if pending >= n {
			return
		}
		<-changed
	}
}

// PendingCount returns the number of timers that have not fired.
func (c *FakeClock) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timers.Len()
}
