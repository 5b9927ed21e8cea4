package signaling

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"commerce-calls/pkg/utils"
)

// Gate caps concurrent calls per tenant. A call holds its slot from offer until the
// first reject, busy or end the relay sees for it.
type Gate interface {
	Acquire(ctx context.Context, tenantID, callID string) (bool, error)
	Release(ctx context.Context, tenantID, callID string) error
	Limit() int
}

type MemoryGate struct {
	limit int

	mu     sync.Mutex
	active map[string]map[string]struct{}
}

func NewMemoryGate(limit int) *MemoryGate {
	return &MemoryGate{limit: limit, active: make(map[string]map[string]struct{})}
}

func (g *MemoryGate) Limit() int { return g.limit }

func (g *MemoryGate) Acquire(_ context.Context, tenantID, callID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	held := g.active[tenantID]
	if _, ok := held[callID]; ok {
		return true, nil
	}
	if len(held) >= g.limit {
		return false, nil
	}
	if held == nil {
		held = make(map[string]struct{})
		g.active[tenantID] = held
	}
	held[callID] = struct{}{}
	return true, nil
}

func (g *MemoryGate) Release(_ context.Context, tenantID, callID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.active[tenantID], callID)
	if len(g.active[tenantID]) == 0 {
		delete(g.active, tenantID)
	}
	return nil
}

const gateKeyPrefix = "calls:active:"

// RedisGate shares the cap across relay nodes using the call slot script in pkg/utils.
type RedisGate struct {
	rdb   *redis.Client
	limit int
	ttl   time.Duration
	now   func() time.Time
}

// NewRedisGate builds a gate whose slots expire after ttl if no end is ever seen.
func NewRedisGate(rdb *redis.Client, limit int, ttl time.Duration) *RedisGate {
	if ttl <= 0 {
		ttl = 4 * time.Hour
	}
	return &RedisGate{rdb: rdb, limit: limit, ttl: ttl, now: time.Now}
}

func (g *RedisGate) Limit() int { return g.limit }

func (g *RedisGate) Acquire(ctx context.Context, tenantID, callID string) (bool, error) {
	return utils.AcquireCallSlot(ctx, g.rdb, gateKeyPrefix+tenantID, callID, g.limit, g.ttl, g.now())
}

func (g *RedisGate) Release(ctx context.Context, tenantID, callID string) error {
	return utils.ReleaseCallSlot(ctx, g.rdb, gateKeyPrefix+tenantID, callID)
}
