// Package stream provides the small publish/subscribe primitives the
// channels expose to their consumers:
//
//   - Value holds a latest value. Subscribers receive the current value
//     immediately and then only the newest value; intermediate updates a
//     slow subscriber missed are coalesced.
//   - Feed is a multicast event stream. Every subscriber gets its own
//     buffer; events are dropped for a subscriber whose buffer is full.
//   - Signal is a single-fire event observed through a Done channel.
package stream

import "sync"

// Value is a latest-value subject.
type Value[T any] struct {
	mu      sync.Mutex
	current T
	subs    map[uint64]chan T
	next    uint64
}

// NewValue returns a Value seeded with initial.
func NewValue[T any](initial T) *Value[T] {
	return &Value[T]{
		current: initial,
		subs:    make(map[uint64]chan T),
	}
}

// Get returns the latest value.
func (v *Value[T]) Get() T {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.current
}

// Set stores x and delivers it to every subscriber, replacing any value
// the subscriber has not consumed yet.
func (v *Value[T]) Set(x T) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.current = x
	for _, ch := range v.subs {
		select {
		case <-ch:
		default:
		}
		ch <- x
	}
}

// Subscribe returns a channel primed with the current value and a cancel
// function that must be called to release the subscription.
func (v *Value[T]) Subscribe() (<-chan T, func()) {
	v.mu.Lock()
	defer v.mu.Unlock()

	id := v.next
	v.next++
	ch := make(chan T, 1)
	ch <- v.current
	v.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			v.mu.Lock()
			delete(v.subs, id)
			v.mu.Unlock()
		})
	}
}

// Subscribers reports the number of live subscriptions.
func (v *Value[T]) Subscribers() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.subs)
}

// Feed is a multicast event stream.
type Feed[T any] struct {
	mu     sync.Mutex
	subs   map[uint64]chan T
	next   uint64
	buffer int
	closed bool
}

// NewFeed returns a Feed whose subscribers buffer up to buffer events.
func NewFeed[T any](buffer int) *Feed[T] {
	if buffer < 1 {
		buffer = 1
	}
	return &Feed[T]{
		subs:   make(map[uint64]chan T),
		buffer: buffer,
	}
}

// Publish delivers x to every subscriber without blocking.
func (f *Feed[T]) Publish(x T) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return
	}
	for _, ch := range f.subs {
		select {
		case ch <- x:
		default:
			// Subscriber buffer full, skip.
		}
	}
}

// Subscribe registers a new subscriber. The channel is closed when the
// feed is closed or the cancel function is called.
func (f *Feed[T]) Subscribe() (<-chan T, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()

	ch := make(chan T, f.buffer)
	if f.closed {
		close(ch)
		return ch, func() {}
	}

	id := f.next
	f.next++
	f.subs[id] = ch

	return ch, func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if sub, ok := f.subs[id]; ok {
			delete(f.subs, id)
			close(sub)
		}
	}
}

// Subscribers returns the number of live subscriptions.
func (f *Feed[T]) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// Close ends the feed and closes every subscriber channel.
func (f *Feed[T]) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return
	}
	f.closed = true
	for id, ch := range f.subs {
		delete(f.subs, id)
		close(ch)
	}
}

// Signal is a single-fire event.
type Signal struct {
	once sync.Once
	ch   chan struct{}
}

// NewSignal returns an unfired Signal.
func NewSignal() *Signal {
	return &Signal{ch: make(chan struct{})}
}

// Fire fires the signal. It reports whether this call was the one that
// fired it.
func (s *Signal) Fire() bool {
	fired := false
	s.once.Do(func() {
		close(s.ch)
		fired = true
	})
	return fired
}

// Done is closed once the signal fires.
func (s *Signal) Done() <-chan struct{} {
	return s.ch
}

// Fired reports whether the signal has fired.
func (s *Signal) Fired() bool {
	select {
	case <-s.ch:
		return true
	default:
		return false
	}
}
