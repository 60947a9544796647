package event

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Handler processes a single published event payload.
type Handler func(payload any)

type subscription struct {
	id      uint64
	handler Handler
}

// Bus is a typed publish/subscribe registry. Handlers for the same event
// are invoked in subscription order; publishing with no subscribers is a
// no-op. Bus is safe for concurrent use.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string][]*subscription
	nextID uint64
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{
		subs: make(map[string][]*subscription),
	}
}

// Subscribe registers a handler for the named event and returns a function
// that removes exactly that handler. Unsubscribing twice is harmless.
func (b *Bus) Subscribe(name string, handler Handler) func() {
	if handler == nil {
		return func() {}
	}

	b.mu.Lock()
	b.nextID++
	sub := &subscription{id: b.nextID, handler: handler}
	b.subs[name] = append(b.subs[name], sub)
	b.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "Subscribe",
		"event":    name,
		"sub_id":   sub.id,
	}).Debug("Handler subscribed")

	return func() {
		b.remove(name, sub.id)
	}
}

// Publish dispatches payload to every handler subscribed to name, in
// subscription order. A handler panic is recovered and logged without
// interrupting dispatch to the remaining handlers.
func (b *Bus) Publish(name string, payload any) {
	b.mu.RLock()
	subs := b.subs[name]
	snapshot := make([]*subscription, len(subs))
	copy(snapshot, subs)
	b.mu.RUnlock()

	for _, sub := range snapshot {
		b.dispatch(name, sub, payload)
	}
}

// UnsubscribeAll removes every handler subscribed to the named event.
func (b *Bus) UnsubscribeAll(name string) {
	b.mu.Lock()
	delete(b.subs, name)
	b.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "UnsubscribeAll",
		"event":    name,
	}).Debug("All handlers removed")
}

func (b *Bus) dispatch(name string, sub *subscription, payload any) {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithFields(logrus.Fields{
				"function": "dispatch",
				"event":    name,
				"sub_id":   sub.id,
				"panic":    r,
			}).Error("Event handler panicked")
		}
	}()

	sub.handler(payload)
}

func (b *Bus) remove(name string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[name]
	for i, sub := range subs {
		if sub.id == id {
			b.subs[name] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(b.subs[name]) == 0 {
		delete(b.subs, name)
	}
}
