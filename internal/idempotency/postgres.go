package idempotency

import (
	"context"
	"fmt"
	"time"

	"contentgen/internal/infra"
	"contentgen/internal/sqlinline"
)

// PostgresGuard stores event keys in webhook_event_keys. The primary key makes
// the claim atomic across replicas; expired keys are taken over in place.
type PostgresGuard struct {
	db     infra.SQLExecutor
	window time.Duration
}

// NewPostgresGuard returns a guard backed by db.
func NewPostgresGuard(db infra.SQLExecutor, window time.Duration) *PostgresGuard {
	return &PostgresGuard{db: db, window: window}
}

func (g *PostgresGuard) Claim(ctx context.Context, key string) (Claim, error) {
	var claimed string
	err := g.db.QueryRow(ctx, sqlinline.QClaimEventKey, key, g.window.Seconds()).Scan(&claimed)
	if err == nil {
		return Claimed, nil
	}
	if !infra.IsNoRows(err) {
		return InFlight, fmt.Errorf("claim event key: %w", err)
	}

	var state string
	if err := g.db.QueryRow(ctx, sqlinline.QSelectEventKeyState, key).Scan(&state); err != nil {
		if infra.IsNoRows(err) {
			return InFlight, nil
		}
		return InFlight, fmt.Errorf("read event key: %w", err)
	}
	if state == "done" {
		return Processed, nil
	}
	return InFlight, nil
}

func (g *PostgresGuard) Complete(ctx context.Context, key string) error {
	if _, err := g.db.Exec(ctx, sqlinline.QCompleteEventKey, key, g.window.Seconds()); err != nil {
		return fmt.Errorf("complete event key: %w", err)
	}
	return nil
}

func (g *PostgresGuard) Release(ctx context.Context, key string) error {
	if _, err := g.db.Exec(ctx, sqlinline.QDeleteEventKey, key); err != nil {
		return fmt.Errorf("release event key: %w", err)
	}
	return nil
}

// Sweep deletes expired keys.
func (g *PostgresGuard) Sweep(ctx context.Context) (int, error) {
	tag, err := g.db.Exec(ctx, sqlinline.QSweepEventKeys)
	if err != nil {
		return 0, fmt.Errorf("sweep event keys: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
