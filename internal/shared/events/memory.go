package events

import (
	"context"
	"sync"
)

// MemoryBus is an in-process EventBus used in tests and when no
// EventStoreDB is configured. Publish dispatches synchronously so callers
// observe subscriber effects (audit entries, refresh bumps) immediately.
type MemoryBus struct {
	mu   sync.RWMutex
	subs []memorySubscription
}

type memorySubscription struct {
	pattern string
	handler Handler
}

// NewMemoryBus creates a new in-process bus
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{}
}

// Publish delivers the event to every matching subscriber in registration
// order. Handler errors do not stop delivery to later subscribers; the
// first error is returned.
func (b *MemoryBus) Publish(ctx context.Context, event Event) error {
	b.mu.RLock()
	subs := make([]memorySubscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	var firstErr error
	for _, s := range subs {
		if !matchesPattern(event.Type, s.pattern) {
			continue
		}
		if err := s.handler(ctx, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Subscribe registers a handler for events matching the pattern
func (b *MemoryBus) Subscribe(_ context.Context, pattern string, _ string, handler Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, memorySubscription{pattern: pattern, handler: handler})
	return nil
}

// Close is a no-op for the in-process bus
func (b *MemoryBus) Close() {}

// Health always succeeds
func (b *MemoryBus) Health() error { return nil }

var _ EventBus = (*MemoryBus)(nil)
