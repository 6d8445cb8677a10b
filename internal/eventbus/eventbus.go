// ABOUTME: Typed fan-out bus with buffered channel subscriptions
// ABOUTME: Publish never blocks; slow subscribers lose events and the drops are counted

package eventbus

import (
	"sync"
	"sync/atomic"
)

// Subscription receives events on C until Unsubscribe or Close.
type Subscription[T any] struct {
	C <-chan T

	bus     *Bus[T]
	id      int
	ch      chan T
	dropped atomic.Int64
	once    sync.Once
}

// Dropped returns how many events this subscriber missed.
func (s *Subscription[T]) Dropped() int64 {
	return s.dropped.Load()
}

// Unsubscribe detaches the subscription and closes C.
func (s *Subscription[T]) Unsubscribe() {
	s.once.Do(func() {
		s.bus.remove(s.id)
		close(s.ch)
	})
}

// Bus is a typed event bus.
type Bus[T any] struct {
	mu     sync.RWMutex
	subs   map[int]*Subscription[T]
	nextID int
	closed bool

	published atomic.Int64
	dropped   atomic.Int64
}

// New creates a new event bus.
func New[T any]() *Bus[T] {
	return &Bus[T]{subs: make(map[int]*Subscription[T])}
}

// Subscribe registers a subscriber with the given channel buffer. On a
// closed bus the returned subscription's channel is already closed.
func (b *Bus[T]) Subscribe(buffer int) *Subscription[T] {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan T, buffer)
	s := &Subscription[T]{C: ch, bus: b, ch: ch}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		s.once.Do(func() { close(ch) })
		return s
	}
	s.id = b.nextID
	b.nextID++
	b.subs[s.id] = s
	return s
}

func (b *Bus[T]) remove(id int) {
	b.mu.Lock()
	delete(b.subs, id)
	b.mu.Unlock()
}

// Publish delivers event to every subscriber with buffer space.
func (b *Bus[T]) Publish(event T) {
	if b == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	b.published.Add(1)
	for _, s := range b.subs {
		select {
		case s.ch <- event:
		default:
			s.dropped.Add(1)
			b.dropped.Add(1)
		}
	}
}

// Count returns the number of active subscribers.
func (b *Bus[T]) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Stats returns total published and dropped deliveries.
func (b *Bus[T]) Stats() (published, dropped int64) {
	return b.published.Load(), b.dropped.Load()
}

// Close detaches all subscribers and closes their channels.
func (b *Bus[T]) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := make([]*Subscription[T], 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.subs = map[int]*Subscription[T]{}
	b.mu.Unlock()

	for _, s := range subs {
		s.once.Do(func() { close(s.ch) })
	}
}
