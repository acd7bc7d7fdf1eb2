// Package notifier provides a typed broadcast mechanism for data source
// change events.
package notifier

import (
	"sync"
	"sync/atomic"
)

// DefaultBuffer is the per-subscriber channel capacity used by New.
const DefaultBuffer = 16

// Subscription is one listener. Events arrive on C until the subscription is
// removed or the notifier is closed, after which C is closed.
type Subscription[T any] struct {
	C       <-chan T
	ch      chan T
	dropped atomic.Uint64
}

// Dropped returns how many events were skipped because C was full.
func (s *Subscription[T]) Dropped() uint64 {
	return s.dropped.Load()
}

// Notifier broadcasts events to all subscribed listeners.
// Late subscribers only see events broadcast after they subscribed.
type Notifier[T any] struct {
	mu        sync.RWMutex
	listeners map[*Subscription[T]]struct{}
	buffer    int
	closed    bool
}

// New creates a new Notifier with DefaultBuffer capacity per subscriber.
func New[T any]() *Notifier[T] {
	return NewWithBuffer[T](DefaultBuffer)
}

// NewWithBuffer creates a new Notifier with the given per-subscriber capacity.
func NewWithBuffer[T any](buffer int) *Notifier[T] {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Notifier[T]{
		listeners: make(map[*Subscription[T]]struct{}),
		buffer:    buffer,
	}
}

// Subscribe returns a new listener.
// The caller must call Unsubscribe when done to release it.
func (n *Notifier[T]) Subscribe() *Subscription[T] {
	ch := make(chan T, n.buffer)
	sub := &Subscription[T]{C: ch, ch: ch}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		close(ch)
		return sub
	}
	n.listeners[sub] = struct{}{}
	return sub
}

// Unsubscribe removes a listener and closes its channel.
// Unsubscribing twice, or after Close, is a no-op.
func (n *Notifier[T]) Unsubscribe(sub *Subscription[T]) {
	if sub == nil {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.listeners[sub]; !ok {
		return
	}
	delete(n.listeners, sub)
	close(sub.ch)
}

// Broadcast sends an event to all listeners.
// Non-blocking: if a listener's channel is full, the event is dropped for it.
func (n *Notifier[T]) Broadcast(event T) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	for sub := range n.listeners {
		select {
		case sub.ch <- event:
		default:
			sub.dropped.Add(1)
		}
	}
}

// Len returns the number of active listeners.
func (n *Notifier[T]) Len() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.listeners)
}

// Close closes every listener channel. Later subscriptions are born closed.
func (n *Notifier[T]) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	n.closed = true
	for sub := range n.listeners {
		delete(n.listeners, sub)
		close(sub.ch)
	}
}
