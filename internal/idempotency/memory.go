package idempotency

import (
	"context"
	"sync"
	"time"
)

type entryState int

const (
	stateInFlight entryState = iota
	stateDone
)

type entry struct {
	state   entryState
	expires time.Time
}

// MemoryGuard keeps event keys in a process-local map. Entries are lost on
// restart and are not shared between replicas.
type MemoryGuard struct {
	mu      sync.Mutex
	entries map[string]entry
	window  time.Duration
	now     func() time.Time
}

// NewMemoryGuard returns a guard whose keys live for window.
func NewMemoryGuard(window time.Duration) *MemoryGuard {
	return &MemoryGuard{
		entries: make(map[string]entry),
		window:  window,
		now:     time.Now,
	}
}

// SetClock overrides the time source.
func (g *MemoryGuard) SetClock(now func() time.Time) {
	g.mu.Lock()
	g.now = now
	g.mu.Unlock()
}

func (g *MemoryGuard) Claim(_ context.Context, key string) (Claim, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	if e, ok := g.entries[key]; ok && e.expires.After(now) {
		if e.state == stateDone {
			return Processed, nil
		}
		return InFlight, nil
	}
	g.entries[key] = entry{state: stateInFlight, expires: now.Add(g.window)}
	return Claimed, nil
}

func (g *MemoryGuard) Complete(_ context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.entries[key] = entry{state: stateDone, expires: g.now().Add(g.window)}
	return nil
}

func (g *MemoryGuard) Release(_ context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.entries, key)
	return nil
}

// Sweep drops expired entries and reports how many were removed.
func (g *MemoryGuard) Sweep(_ context.Context) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	removed := 0
	for key, e := range g.entries {
		if !e.expires.After(now) {
			delete(g.entries, key)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of tracked keys, expired or not.
func (g *MemoryGuard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.entries)
}
