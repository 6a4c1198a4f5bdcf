package events

import (
	"sync"

	"github.com/golang/glog"

	"ideasync/internal/models"
)

// Subscription identifies a registered listener.
type Subscription uint64

// Listener receives events published on a Bus.
type Listener func(models.Event)

type entry struct {
	id  Subscription
	typ models.EventType // empty for every type
	fn  Listener
}

// Bus is the local publish/subscribe channel for domain events. Listeners
// run synchronously on the publishing goroutine, in subscription order.
type Bus struct {
	mu      sync.RWMutex
	nextID  Subscription
	entries []entry
}

func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers fn for one event type.
func (b *Bus) Subscribe(typ models.EventType, fn Listener) Subscription {
	return b.add(typ, fn)
}

// SubscribeAll registers fn for every event type.
func (b *Bus) SubscribeAll(fn Listener) Subscription {
	return b.add("", fn)
}

func (b *Bus) add(typ models.EventType, fn Listener) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.entries = append(b.entries, entry{id: b.nextID, typ: typ, fn: fn})
	return b.nextID
}

// Unsubscribe removes a listener. Unknown subscriptions are ignored.
func (b *Bus) Unsubscribe(id Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, e := range b.entries {
		if e.id == id {
			b.entries = append(b.entries[:i:i], b.entries[i+1:]...)
			return
		}
	}
}

// Clear drops every listener.
func (b *Bus) Clear() {
	b.mu.Lock()
	b.entries = nil
	b.mu.Unlock()
}

// Publish notifies the listeners registered for ev.Type. A panicking
// listener is logged and does not stop delivery to the others.
func (b *Bus) Publish(ev models.Event) {
	b.mu.RLock()
	targets := make([]Listener, 0, len(b.entries))
	for _, e := range b.entries {
		if e.typ == "" || e.typ == ev.Type {
			targets = append(targets, e.fn)
		}
	}
	b.mu.RUnlock()

	for _, fn := range targets {
		deliver(fn, ev)
	}
}

func deliver(fn Listener, ev models.Event) {
	defer func() {
		if r := recover(); r != nil {
			glog.Errorf("[bus]listener for %s panicked: %v", ev.Type, r)
		}
	}()
	fn(ev)
}
