package signaling

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"

	"commerce-calls/internal/calls"
)

const busChannelPrefix = "calls:signal:"

// RedisBus fans messages out over Redis pub/sub, one channel per tenant.
// Delivery is at-most-once, matching the best-effort contract of calls.Transport.
type RedisBus struct {
	rdb *redis.Client
	log *slog.Logger
}

func NewRedisBus(rdb *redis.Client, log *slog.Logger) *RedisBus {
	if log == nil {
		log = slog.Default()
	}
	return &RedisBus{rdb: rdb, log: log}
}

func (b *RedisBus) Publish(ctx context.Context, tenantID string, msg calls.Message) error {
	data, err := calls.Encode(msg)
	if err != nil {
		return err
	}
	if err := b.rdb.Publish(ctx, busChannelPrefix+tenantID, data).Err(); err != nil {
		return fmt.Errorf("signaling: publish: %w", err)
	}
	return nil
}

func (b *RedisBus) Subscribe(ctx context.Context, fn func(string, calls.Message)) error {
	ps := b.rdb.PSubscribe(ctx, busChannelPrefix+"*")
	defer ps.Close()

	// Wait for the subscription to be confirmed so no message published after this
	// returns is missed.
	if _, err := ps.Receive(ctx); err != nil {
		return fmt.Errorf("signaling: subscribe: %w", err)
	}

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			msg, err := calls.Decode([]byte(m.Payload))
			if err != nil {
				b.log.Warn("signaling: bad bus payload", "channel", m.Channel, "err", err)
				continue
			}
			fn(strings.TrimPrefix(m.Channel, busChannelPrefix), msg)
		}
	}
}
