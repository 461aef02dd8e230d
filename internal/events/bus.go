package events

import (
	"sync"
	"sync/atomic"
)

const defaultBufferSize = 100

// subscription is one subscriber channel with its type filter
type subscription struct {
	ch      chan Event
	types   map[EventType]struct{} // empty means every type
	dropped atomic.Uint64
}

func (s *subscription) wants(t EventType) bool {
	if len(s.types) == 0 {
		return true
	}
	_, ok := s.types[t]
	return ok
}

// Bus fans events out to subscribers without ever blocking the publisher.
// Client threads publish latency reports from inside their event loop, so a
// slow subscriber loses events instead of stalling a worker.
type Bus struct {
	mu         sync.RWMutex
	subs       map[<-chan Event]*subscription
	bufferSize int
	dropped    atomic.Uint64
}

// NewBus creates a bus with the default per-subscriber buffer
func NewBus() *Bus {
	return NewBusWithBuffer(defaultBufferSize)
}

// NewBusWithBuffer creates a bus whose subscriber channels hold size events
func NewBusWithBuffer(size int) *Bus {
	if size <= 0 {
		size = defaultBufferSize
	}
	return &Bus{
		subs:       make(map[<-chan Event]*subscription),
		bufferSize: size,
	}
}

// Subscribe returns a channel receiving events of the given types, or all events when none are given
func (b *Bus) Subscribe(types ...EventType) <-chan Event {
	sub := &subscription{ch: make(chan Event, b.bufferSize)}
	if len(types) > 0 {
		sub.types = make(map[EventType]struct{}, len(types))
		for _, t := range types {
			sub.types[t] = struct{}{}
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[sub.ch] = sub
	return sub.ch
}

// Unsubscribe removes and closes a subscriber channel
func (b *Bus) Unsubscribe(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sub, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(sub.ch)
	}
}

// Publish delivers event to every subscriber whose filter accepts it.
// A full subscriber skips the event and the drop is counted.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs {
		if !sub.wants(event.Type) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			sub.dropped.Add(1)
			b.dropped.Add(1)
		}
	}
}

// SubscriberCount returns the number of active subscribers
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Dropped returns how many deliveries were skipped across all subscribers
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// DroppedFor returns how many deliveries ch missed, or 0 for an unknown channel
func (b *Bus) DroppedFor(ch <-chan Event) uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if sub, ok := b.subs[ch]; ok {
		return sub.dropped.Load()
	}
	return 0
}

// Close closes all subscriber channels
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for ch, sub := range b.subs {
		close(sub.ch)
		delete(b.subs, ch)
	}
}
