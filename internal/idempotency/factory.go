package idempotency

import (
	"fmt"

	"github.com/redis/go-redis/v9"

	"contentgen/internal/infra"
)

// FromConfig builds the guard selected by IDEMPOTENCY_BACKEND. Durable
// backends are fronted by a memory cache.
func FromConfig(cfg *infra.Config, db infra.SQLExecutor, client redis.Cmdable) (Guard, error) {
	fast := NewMemoryGuard(cfg.IdempotencyWindow)
	switch cfg.IdempotencyBackend {
	case infra.IdempotencyMemory, "":
		return fast, nil
	case infra.IdempotencyRedis:
		if client == nil {
			return nil, fmt.Errorf("redis idempotency backend requires a redis client")
		}
		return NewLayered(fast, NewRedisGuard(client, "", cfg.IdempotencyWindow)), nil
	case infra.IdempotencyPostgres:
		if db == nil {
			return nil, fmt.Errorf("postgres idempotency backend requires a database")
		}
		return NewLayered(fast, NewPostgresGuard(db, cfg.IdempotencyWindow)), nil
	}
	return nil, fmt.Errorf("unsupported idempotency backend %q", cfg.IdempotencyBackend)
}
