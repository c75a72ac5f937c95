package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"contentgen/internal/domain"
	"contentgen/internal/infra"
	"contentgen/internal/sqlinline"
)

// JobRepositoryPG implements domain.JobRepository.
type JobRepositoryPG struct {
	db infra.SQLExecutor
}

// NewJobRepository creates a new job repository backed by PostgreSQL.
func NewJobRepository(db infra.SQLExecutor) *JobRepositoryPG {
	return &JobRepositoryPG{db: db}
}

// GetByID fetches a job by its identifier.
func (r *JobRepositoryPG) GetByID(ctx context.Context, id string) (*domain.Job, error) {
	if !isUUID(id) {
		return nil, domain.ErrNotFound
	}
	return scanJob(r.db.QueryRow(ctx, sqlinline.QSelectJobByID, id))
}

// FindByExternalID matches the external id directly or through an alias.
func (r *JobRepositoryPG) FindByExternalID(ctx context.Context, d domain.Domain, externalID string) (*domain.Job, error) {
	return scanJob(r.db.QueryRow(ctx, sqlinline.QSelectJobByExternalID, string(d), externalID))
}

// FindRecentOpen returns the fallback correlation candidate.
func (r *JobRepositoryPG) FindRecentOpen(ctx context.Context, d domain.Domain, since time.Time, externalID string) (*domain.Job, error) {
	return scanJob(r.db.QueryRow(ctx, sqlinline.QSelectRecentOpenJob, string(d), since, externalID))
}

// Adopt claims the job for externalID. The update re-checks that the job is
// open and unbound, so concurrent adopters of one job cannot both win.
func (r *JobRepositoryPG) Adopt(ctx context.Context, jobID string, d domain.Domain, externalID string) error {
	var id string
	err := r.db.QueryRow(ctx, sqlinline.QAdoptJob, jobID, string(d), externalID).Scan(&id)
	if infra.IsNoRows(err) {
		return domain.ErrAlreadyBound
	}
	if err != nil {
		return fmt.Errorf("adopt job: %w", err)
	}
	return nil
}

// CreateIfAbsent inserts the job; a concurrent insert for the same external id wins.
func (r *JobRepositoryPG) CreateIfAbsent(ctx context.Context, job *domain.Job) (*domain.Job, bool, error) {
	var id string
	err := r.db.QueryRow(ctx, sqlinline.QInsertJobIfAbsent,
		job.ID,
		string(job.Domain),
		job.ExternalJobID,
		string(job.Status),
		job.Progress,
		job.OwnerID,
		job.OrganizationID,
		nullableBytes(job.InputData),
		nullableBytes(job.Result),
		job.Error,
		string(job.Correlation),
		job.LastEventAt,
		job.StartedAt,
		job.CompletedAt,
	).Scan(&id)
	switch {
	case err == nil:
		stored, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, false, err
		}
		return stored, true, nil
	case infra.IsNoRows(err):
		stored, err := r.FindByExternalID(ctx, job.Domain, job.ExternalJobID)
		if err != nil {
			return nil, false, fmt.Errorf("reread job after conflict: %w", err)
		}
		return stored, false, nil
	default:
		return nil, false, fmt.Errorf("insert job: %w", err)
	}
}

// lockJob reads the job row under FOR UPDATE.
func lockJob(ctx context.Context, db infra.SQLExecutor, id string) (*domain.Job, error) {
	if !isUUID(id) {
		return nil, domain.ErrNotFound
	}
	return scanJob(db.QueryRow(ctx, sqlinline.QLockJobByID, id))
}

// saveJob writes the lifecycle columns of the job.
func saveJob(ctx context.Context, db infra.SQLExecutor, job *domain.Job) error {
	tag, err := db.Exec(ctx, sqlinline.QUpdateJobState,
		job.ID,
		string(job.Status),
		job.Progress,
		nullableBytes(job.Result),
		job.Error,
		job.LastEventAt,
		job.StartedAt,
		job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanJob(row pgx.Row) (*domain.Job, error) {
	var (
		job                           domain.Job
		dom, status, correlation      string
		inputData, result             []byte
		lastEvent, started, completed *time.Time
	)
	if err := row.Scan(
		&job.ID,
		&dom,
		&job.ExternalJobID,
		&status,
		&job.Progress,
		&job.OwnerID,
		&job.OrganizationID,
		&inputData,
		&result,
		&job.Error,
		&correlation,
		&lastEvent,
		&started,
		&completed,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	job.Domain = domain.Domain(dom)
	job.Status = domain.JobStatus(status)
	job.Correlation = domain.Correlation(correlation)
	job.InputData = inputData
	job.Result = result
	job.LastEventAt = lastEvent
	job.StartedAt = started
	job.CompletedAt = completed
	return &job, nil
}

func nullableBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return b
}
