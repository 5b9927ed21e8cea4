package signaling

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Presence tracks which users hold at least one live signaling connection.
type Presence interface {
	// Add registers or refreshes one connection of a user.
	Add(ctx context.Context, tenantID, userID, connID string) error
	Remove(ctx context.Context, tenantID, userID, connID string) error
	Online(ctx context.Context, tenantID, userID string) (bool, error)
}

type MemoryPresence struct {
	mu    sync.Mutex
	conns map[string]map[string]struct{}
}

func NewMemoryPresence() *MemoryPresence {
	return &MemoryPresence{conns: make(map[string]map[string]struct{})}
}

func userKey(tenantID, userID string) string { return tenantID + ":" + userID }

func (p *MemoryPresence) Add(_ context.Context, tenantID, userID, connID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	k := userKey(tenantID, userID)
	if p.conns[k] == nil {
		p.conns[k] = make(map[string]struct{})
	}
	p.conns[k][connID] = struct{}{}
	return nil
}

func (p *MemoryPresence) Remove(_ context.Context, tenantID, userID, connID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	k := userKey(tenantID, userID)
	delete(p.conns[k], connID)
	if len(p.conns[k]) == 0 {
		delete(p.conns, k)
	}
	return nil
}

func (p *MemoryPresence) Online(_ context.Context, tenantID, userID string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.conns[userKey(tenantID, userID)]) > 0, nil
}

const presenceKeyPrefix = "calls:presence:"

// RedisPresence keeps one sorted set per user, members are connection ids scored by
// expiry. Connections refresh themselves while alive, so a crashed node's entries age out.
type RedisPresence struct {
	rdb redis.Cmdable
	ttl time.Duration
	now func() time.Time
}

func NewRedisPresence(rdb redis.Cmdable, ttl time.Duration) *RedisPresence {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &RedisPresence{rdb: rdb, ttl: ttl, now: time.Now}
}

func (p *RedisPresence) Add(ctx context.Context, tenantID, userID, connID string) error {
	key := presenceKeyPrefix + userKey(tenantID, userID)
	expires := p.now().Add(p.ttl).UnixMilli()
	_, err := p.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, key, redis.Z{Score: float64(expires), Member: connID})
		pipe.PExpire(ctx, key, p.ttl)
		return nil
	})
	return err
}

func (p *RedisPresence) Remove(ctx context.Context, tenantID, userID, connID string) error {
	return p.rdb.ZRem(ctx, presenceKeyPrefix+userKey(tenantID, userID), connID).Err()
}

func (p *RedisPresence) Online(ctx context.Context, tenantID, userID string) (bool, error) {
	key := presenceKeyPrefix + userKey(tenantID, userID)
	var card *redis.IntCmd
	_, err := p.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, key, "-inf", formatMillis(p.now()))
		card = pipe.ZCard(ctx, key)
		return nil
	})
	if err != nil {
		return false, err
	}
	return card.Val() > 0, nil
}

func formatMillis(t time.Time) string { return strconv.FormatInt(t.UnixMilli(), 10) }
