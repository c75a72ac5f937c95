package domain

import (
	"context"
	"time"
)

// JobRepository defines job lookups and correlation writes performed outside
// of a materialization transaction.
type JobRepository interface {
	GetByID(ctx context.Context, id string) (*Job, error)
	FindByExternalID(ctx context.Context, d Domain, externalID string) (*Job, error)
	// FindRecentOpen returns the newest PENDING or RUNNING job of the domain
	// created at or after since that is not bound to a different external id.
	FindRecentOpen(ctx context.Context, d Domain, since time.Time, externalID string) (*Job, error)
	// Adopt binds externalID to the job only while it is still open and not
	// bound to a different external id; otherwise it returns ErrAlreadyBound.
	Adopt(ctx context.Context, jobID string, d Domain, externalID string) error
	// CreateIfAbsent inserts the job unless one already exists for its
	// (domain, external id) pair. It returns the stored job and whether it was created.
	CreateIfAbsent(ctx context.Context, job *Job) (*Job, bool, error)
}

// UserDirectory resolves ownership candidates.
type UserDirectory interface {
	Exists(ctx context.Context, userID string) (bool, error)
	Earliest(ctx context.Context) (*User, error)
}

// ContentReader exposes materialized content for polling and inspection.
type ContentReader interface {
	ContentByJob(ctx context.Context, jobID string) (*ContentEntity, error)
	Artifacts(ctx context.Context, contentID string) ([]Artifact, error)
}

// NotificationRepository persists notifications and serves the dispatch outbox.
type NotificationRepository interface {
	// Insert stores the notification unless its dedupe key already exists.
	Insert(ctx context.Context, n *Notification) (bool, error)
	ClaimPending(ctx context.Context, limit int, lease time.Duration) ([]Notification, error)
	MarkDispatched(ctx context.Context, id string, at time.Time) error
	Release(ctx context.Context, id string) error
	ListPending(ctx context.Context, limit int) ([]Notification, error)
}

// Tx groups the writes that must commit or roll back together.
type Tx interface {
	LockJob(ctx context.Context, jobID string) (*Job, error)
	SaveJob(ctx context.Context, job *Job) error
	UpsertContent(ctx context.Context, entity *ContentEntity) (*ContentEntity, error)
	DeleteArtifacts(ctx context.Context, contentID string) (int, error)
	InsertArtifacts(ctx context.Context, contentID string, artifacts []Artifact) error
}

// Store bundles the repositories with a transaction boundary.
type Store interface {
	Jobs() JobRepository
	Users() UserDirectory
	Content() ContentReader
	Notifications() NotificationRepository
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}
