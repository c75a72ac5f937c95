package idempotency

import "context"

// Layered answers repeated claims from a process-local cache and consults the
// durable guard only for keys this process has not seen.
type Layered struct {
	Fast    *MemoryGuard
	Durable Guard
}

// NewLayered stacks fast over durable.
func NewLayered(fast *MemoryGuard, durable Guard) *Layered {
	return &Layered{Fast: fast, Durable: durable}
}

func (l *Layered) Claim(ctx context.Context, key string) (Claim, error) {
	c, err := l.Fast.Claim(ctx, key)
	if err != nil || c != Claimed {
		return c, err
	}
	d, err := l.Durable.Claim(ctx, key)
	if err != nil {
		_ = l.Fast.Release(ctx, key)
		return d, err
	}
	switch d {
	case Processed:
		_ = l.Fast.Complete(ctx, key)
	case InFlight:
		_ = l.Fast.Release(ctx, key)
	}
	return d, nil
}

func (l *Layered) Complete(ctx context.Context, key string) error {
	if err := l.Durable.Complete(ctx, key); err != nil {
		_ = l.Fast.Release(ctx, key)
		return err
	}
	return l.Fast.Complete(ctx, key)
}

func (l *Layered) Release(ctx context.Context, key string) error {
	_ = l.Fast.Release(ctx, key)
	return l.Durable.Release(ctx, key)
}

// Sweep sweeps the cache and, when supported, the durable store.
func (l *Layered) Sweep(ctx context.Context) (int, error) {
	removed, _ := l.Fast.Sweep(ctx)
	if s, ok := l.Durable.(Sweeper); ok {
		n, err := s.Sweep(ctx)
		return removed + n, err
	}
	return removed, nil
}
