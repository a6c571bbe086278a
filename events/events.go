package events

import (
	"sync"
)

// EventHandler defines a callback invoked with published event data. Returning an error stops the remaining
// handlers and surfaces the error to the publisher.
type EventHandler[T any] func(T) error

// EventEmitter describes a provider which can subscribe EventHandler methods for callback when an event of type T is
// published. The zero value is ready to use and safe for concurrent use.
type EventEmitter[T any] struct {
	// subscriptions defines the EventHandler methods which should be invoked when a new event is published.
	subscriptions []EventHandler[T]

	// lock guards subscriptions against concurrent Subscribe/Publish calls.
	lock sync.RWMutex
}

// Publish emits the provided event by calling every subscribed EventHandler in subscription order.
// Returns the first error returned by a handler.
func (e *EventEmitter[T]) Publish(event T) error {
	e.lock.RLock()
	subscriptions := make([]EventHandler[T], len(e.subscriptions))
	copy(subscriptions, e.subscriptions)
	e.lock.RUnlock()

	for _, subscription := range subscriptions {
		if err := subscription(event); err != nil {
			return err
		}
	}
	return nil
}

// Subscribe adds an EventHandler to the list of subscribed EventHandler objects for this emitter.
func (e *EventEmitter[T]) Subscribe(callback EventHandler[T]) {
	e.lock.Lock()
	defer e.lock.Unlock()
	e.subscriptions = append(e.subscriptions, callback)
}

// SubscriptionCount returns the number of handlers currently subscribed.
func (e *EventEmitter[T]) SubscriptionCount() int {
	e.lock.RLock()
	defer e.lock.RUnlock()
	return len(e.subscriptions)
}
