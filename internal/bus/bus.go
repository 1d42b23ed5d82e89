// Package bus provides a fan-out publish/subscribe primitive with bounded
// per-subscriber buffers. Publishing never blocks: when a subscriber's
// buffer is full the oldest buffered value is dropped, preferring liveness
// over completeness. A nil *Bus is safe to publish to.
package bus

import (
	"sync"

	"github.com/google/uuid"
)

const defaultBuffer = 64

// Bus fans values out to any number of subscribers.
type Bus[T any] struct {
	mu     sync.Mutex
	subs   map[string]chan T
	buffer int
}

// New creates a bus whose subscribers each get a buffer of the given size.
func New[T any](buffer int) *Bus[T] {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Bus[T]{
		subs:   make(map[string]chan T),
		buffer: buffer,
	}
}

// Subscribe registers a new subscriber and returns its token and channel.
// The channel is closed by Unsubscribe.
func (b *Bus[T]) Subscribe() (string, <-chan T) {
	ch := make(chan T, b.buffer)
	id := uuid.NewString()

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel. Unknown tokens
// are ignored.
func (b *Bus[T]) Unsubscribe(id string) {
	b.mu.Lock()
	ch, ok := b.subs[id]
	if ok {
		delete(b.subs, id)
	}
	b.mu.Unlock()
	if ok {
		close(ch)
	}
}

// Publish delivers v to every subscriber, dropping each subscriber's oldest
// buffered value on overflow.
func (b *Bus[T]) Publish(v T) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- v:
			continue
		default:
		}
		// Buffer full: evict the oldest, then retry once. A concurrent
		// reader may have raced the eviction; losing v in that case is
		// acceptable under drop semantics.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- v:
		default:
		}
	}
}

// Subscribers returns the current subscriber count.
func (b *Bus[T]) Subscribers() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
