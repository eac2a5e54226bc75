package storage

import (
	"log/slog"
	"sync"
)

// Event describes a single change to the shared store. Value is nil for
// removals. Key is empty when the whole store was cleared. Origin names the
// writer so subscribers can skip their own changes, the way browser storage
// events only fire in other tabs.
type Event struct {
	Key    string
	Value  *string
	Origin string
}

const subscriberBuffer = 16

// Broker fans store change events out to every subscriber except the writer.
// Delivery is best effort: a subscriber that stops draining its channel loses
// events rather than blocking writers.
type Broker struct {
	mu   sync.RWMutex
	subs map[string]chan Event
}

// NewBroker returns an empty broker.
func NewBroker() *Broker {
	return &Broker{subs: make(map[string]chan Event)}
}

// Subscribe registers id and returns its event channel. Subscribing the same
// id twice replaces the previous channel.
func (b *Broker) Subscribe(id string) <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	if old, ok := b.subs[id]; ok {
		close(old)
	}
	ch := make(chan Event, subscriberBuffer)
	b.subs[id] = ch
	return ch
}

// Unsubscribe removes id and closes its channel.
func (b *Broker) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subs[id]; ok {
		close(ch)
		delete(b.subs, id)
	}
}

// Publish delivers ev to every subscriber other than its origin.
func (b *Broker) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for id, ch := range b.subs {
		if id == ev.Origin {
			continue
		}
		select {
		case ch <- ev:
		default:
			slog.Warn("Dropping store event for slow subscriber", "subscriber", id, "key", ev.Key)
		}
	}
}
