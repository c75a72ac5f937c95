package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"contentgen/internal/domain"
	"contentgen/internal/infra"
	"contentgen/internal/sqlinline"
)

// NotificationRepositoryPG stores notifications and serves them as a dispatch outbox.
type NotificationRepositoryPG struct {
	db infra.SQLExecutor
}

// NewNotificationRepository constructs the repository.
func NewNotificationRepository(db infra.SQLExecutor) *NotificationRepositoryPG {
	return &NotificationRepositoryPG{db: db}
}

// Insert stores n unless a row with the same dedupe key exists.
func (r *NotificationRepositoryPG) Insert(ctx context.Context, n *domain.Notification) (bool, error) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	var id string
	err := r.db.QueryRow(ctx, sqlinline.QInsertNotification,
		n.ID,
		n.UserID,
		n.JobID,
		string(n.Type),
		n.Title,
		n.Message,
		nullableBytes(n.Metadata),
		n.DedupeKey,
	).Scan(&id)
	if err != nil {
		if infra.IsNoRows(err) {
			return false, nil
		}
		return false, fmt.Errorf("insert notification: %w", err)
	}
	return true, nil
}

// ClaimPending leases up to limit undispatched notifications.
func (r *NotificationRepositoryPG) ClaimPending(ctx context.Context, limit int, lease time.Duration) ([]domain.Notification, error) {
	rows, err := r.db.Query(ctx, sqlinline.QClaimPendingNotifications, limit, lease.Seconds())
	if err != nil {
		return nil, fmt.Errorf("claim notifications: %w", err)
	}
	return scanNotifications(rows)
}

// MarkDispatched records a successful handoff.
func (r *NotificationRepositoryPG) MarkDispatched(ctx context.Context, id string, at time.Time) error {
	if _, err := r.db.Exec(ctx, sqlinline.QMarkNotificationDispatched, id, at); err != nil {
		return fmt.Errorf("mark notification dispatched: %w", err)
	}
	return nil
}

// Release drops the lease so another worker can retry.
func (r *NotificationRepositoryPG) Release(ctx context.Context, id string) error {
	if _, err := r.db.Exec(ctx, sqlinline.QReleaseNotification, id); err != nil {
		return fmt.Errorf("release notification: %w", err)
	}
	return nil
}

// ListPending returns undispatched notifications without leasing them.
func (r *NotificationRepositoryPG) ListPending(ctx context.Context, limit int) ([]domain.Notification, error) {
	rows, err := r.db.Query(ctx, sqlinline.QListPendingNotifications, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return scanNotifications(rows)
}

func scanNotifications(rows pgx.Rows) ([]domain.Notification, error) {
	defer rows.Close()
	var out []domain.Notification
	for rows.Next() {
		var (
			n          domain.Notification
			typ        string
			metadata   []byte
			dispatched *time.Time
		)
		if err := rows.Scan(
			&n.ID,
			&n.UserID,
			&n.JobID,
			&typ,
			&n.Title,
			&n.Message,
			&metadata,
			&n.Read,
			&n.DedupeKey,
			&dispatched,
			&n.DispatchAttempts,
			&n.CreatedAt,
		); err != nil {
			return nil, err
		}
		n.Type = domain.NotificationType(typ)
		n.Metadata = metadata
		n.DispatchedAt = dispatched
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
