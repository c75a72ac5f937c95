package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisInFlight = "inflight"
	redisDone     = "done"
)

// RedisGuard shares event keys between replicas through SET NX with a TTL.
type RedisGuard struct {
	client redis.Cmdable
	prefix string
	window time.Duration
}

// NewRedisGuard returns a guard storing keys under prefix.
func NewRedisGuard(client redis.Cmdable, prefix string, window time.Duration) *RedisGuard {
	if prefix == "" {
		prefix = "webhook:event:"
	}
	return &RedisGuard{client: client, prefix: prefix, window: window}
}

func (g *RedisGuard) Claim(ctx context.Context, key string) (Claim, error) {
	k := g.prefix + key
	for attempt := 0; attempt < 2; attempt++ {
		ok, err := g.client.SetNX(ctx, k, redisInFlight, g.window).Result()
		if err != nil {
			return InFlight, fmt.Errorf("claim event key: %w", err)
		}
		if ok {
			return Claimed, nil
		}
		state, err := g.client.Get(ctx, k).Result()
		if errors.Is(err, redis.Nil) {
			// expired between SETNX and GET
			continue
		}
		if err != nil {
			return InFlight, fmt.Errorf("read event key: %w", err)
		}
		if state == redisDone {
			return Processed, nil
		}
		return InFlight, nil
	}
	return InFlight, nil
}

func (g *RedisGuard) Complete(ctx context.Context, key string) error {
	if err := g.client.Set(ctx, g.prefix+key, redisDone, g.window).Err(); err != nil {
		return fmt.Errorf("complete event key: %w", err)
	}
	return nil
}

func (g *RedisGuard) Release(ctx context.Context, key string) error {
	if err := g.client.Del(ctx, g.prefix+key).Err(); err != nil {
		return fmt.Errorf("release event key: %w", err)
	}
	return nil
}
