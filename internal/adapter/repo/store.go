package repo

import (
	"context"
	"errors"

	"contentgen/internal/domain"
	"contentgen/internal/infra"
)

// PostgresStore implements domain.Store over the marker-checked SQL runner.
type PostgresStore struct {
	db infra.SQLExecutor
	tx infra.TxRunner
}

// NewPostgresStore wires the repositories to db; transactions run through tx.
func NewPostgresStore(db infra.SQLExecutor, tx infra.TxRunner) *PostgresStore {
	return &PostgresStore{db: db, tx: tx}
}

func (s *PostgresStore) Jobs() domain.JobRepository { return NewJobRepository(s.db) }

func (s *PostgresStore) Users() domain.UserDirectory { return NewUserDirectory(s.db) }

func (s *PostgresStore) Content() domain.ContentReader { return NewContentRepository(s.db) }

func (s *PostgresStore) Notifications() domain.NotificationRepository {
	return NewNotificationRepository(s.db)
}

// WithTx runs fn in a database transaction.
func (s *PostgresStore) WithTx(ctx context.Context, fn func(tx domain.Tx) error) error {
	if s.tx == nil {
		return errors.New("postgres store has no transaction runner")
	}
	return s.tx.WithTx(ctx, func(exec infra.SQLExecutor) error {
		return fn(&pgTx{db: exec})
	})
}

type pgTx struct {
	db infra.SQLExecutor
}

func (t *pgTx) LockJob(ctx context.Context, jobID string) (*domain.Job, error) {
	return lockJob(ctx, t.db, jobID)
}

func (t *pgTx) SaveJob(ctx context.Context, job *domain.Job) error {
	return saveJob(ctx, t.db, job)
}

func (t *pgTx) UpsertContent(ctx context.Context, entity *domain.ContentEntity) (*domain.ContentEntity, error) {
	return upsertContent(ctx, t.db, entity)
}

func (t *pgTx) DeleteArtifacts(ctx context.Context, contentID string) (int, error) {
	return deleteArtifacts(ctx, t.db, contentID)
}

func (t *pgTx) InsertArtifacts(ctx context.Context, contentID string, artifacts []domain.Artifact) error {
	if len(artifacts) == 0 {
		return nil
	}
	return insertArtifacts(ctx, t.db, contentID, artifacts[0].Domain, artifacts)
}

var (
	_ domain.Store = (*PostgresStore)(nil)
	_ domain.Tx    = (*pgTx)(nil)
)
