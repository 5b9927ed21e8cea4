package signaling

import (
	"context"
	"sync"

	"commerce-calls/internal/calls"
)

// Bus fans signaling messages out to every relay node. Each node delivers a message to
// the recipient's connections it holds and ignores the rest.
type Bus interface {
	Publish(ctx context.Context, tenantID string, msg calls.Message) error
	// Subscribe calls fn for every published message until ctx is done.
	Subscribe(ctx context.Context, fn func(tenantID string, msg calls.Message)) error
}

// MemoryBus connects the hubs of a single process.
type MemoryBus struct {
	mu   sync.RWMutex
	next int
	subs map[int]func(string, calls.Message)
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[int]func(string, calls.Message))}
}

func (b *MemoryBus) Publish(_ context.Context, tenantID string, msg calls.Message) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, fn := range b.subs {
		fn(tenantID, msg)
	}
	return nil
}

func (b *MemoryBus) Subscribe(ctx context.Context, fn func(string, calls.Message)) error {
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = fn
	b.mu.Unlock()

	<-ctx.Done()

	b.mu.Lock()
	delete(b.subs, id)
	b.mu.Unlock()
	return nil
}

func (b *MemoryBus) subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
