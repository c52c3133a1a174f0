package events

import "sync"

const defaultSubscriberBuffer = 64

// Broadcaster fans emitted events out to in-process subscribers such as the
// websocket stream. Slow subscribers lose events rather than stalling the
// emitter; the drop count is exposed per subscription.
type Broadcaster struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[uint64]*Subscription
}

// Subscription is a single consumer of a Broadcaster.
type Subscription struct {
	C <-chan Record

	ch      chan Record
	mu      sync.Mutex
	dropped uint64
	closed  bool
}

// Dropped reports how many records were discarded because the subscriber's
// buffer was full.
func (s *Subscription) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

func (s *Subscription) offer(rec Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- rec:
	default:
		s.dropped++
	}
}

func (s *Subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

// NewBroadcaster constructs an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[uint64]*Subscription)}
}

// Subscribe registers a new consumer. The returned cancel function removes the
// subscription and closes its channel; it is safe to call more than once.
func (b *Broadcaster) Subscribe(buffer int) (*Subscription, func()) {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	ch := make(chan Record, buffer)
	sub := &Subscription{C: ch, ch: ch}
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = sub
	b.mu.Unlock()
	cancel := func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
		sub.close()
	}
	return sub, cancel
}

// Len returns the number of active subscriptions.
func (b *Broadcaster) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Emit implements the Emitter interface.
func (b *Broadcaster) Emit(evt Event) {
	if b == nil || evt == nil {
		return
	}
	rec := ToRecord(evt)
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		sub.offer(rec)
	}
}
