package events

import "sync"

// DefaultBuffer is the per-subscriber channel buffer size.
const DefaultBuffer = 64

// Bus is an in-process fan-out of engine events.
//
// Delivery is at-least-once to each live subscriber, in publish order per
// publisher goroutine. There is no persistence: events published while no
// subscriber is registered for that kind are dropped. All consumers are
// live UI-adjacent components, not durable log readers, so dropped events
// are acceptable by design of the callers.
type Bus struct {
	mu   sync.RWMutex
	subs map[Kind][]*subscription
}

type subscription struct {
	ch   chan Event
	done chan struct{}
	once sync.Once
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[Kind][]*subscription)}
}

// Subscribe registers for events of the given kind. The returned cancel
// function detaches the subscriber; after cancel returns no further events
// are delivered and the channel is eventually garbage collected.
func (b *Bus) Subscribe(kind Kind) (<-chan Event, func()) {
	sub := &subscription{
		ch:   make(chan Event, DefaultBuffer),
		done: make(chan struct{}),
	}

	b.mu.Lock()
	b.subs[kind] = append(b.subs[kind], sub)
	b.mu.Unlock()

	cancel := func() {
		sub.once.Do(func() { close(sub.done) })
		b.mu.Lock()
		defer b.mu.Unlock()
		live := b.subs[kind][:0]
		for _, s := range b.subs[kind] {
			if s != sub {
				live = append(live, s)
			}
		}
		b.subs[kind] = live
	}
	return sub.ch, cancel
}

// Publish delivers ev to every current subscriber of its kind. Publish
// blocks on a full subscriber buffer rather than dropping, preserving
// per-publisher ordering; a cancelled subscriber never blocks delivery.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	targets := make([]*subscription, len(b.subs[ev.Kind()]))
	copy(targets, b.subs[ev.Kind()])
	b.mu.RUnlock()

	for _, sub := range targets {
		select {
		case sub.ch <- ev:
		case <-sub.done:
		}
	}
}

// SubscriberCount reports how many subscribers are registered for kind.
func (b *Bus) SubscriberCount(kind Kind) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[kind])
}
