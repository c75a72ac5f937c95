package repo

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"contentgen/internal/domain"
	"contentgen/internal/infra"
	"contentgen/internal/sqlinline"
)

// ContentRepositoryPG reads and writes content entities and their artifacts.
type ContentRepositoryPG struct {
	db infra.SQLExecutor
}

// NewContentRepository constructs the repository.
func NewContentRepository(db infra.SQLExecutor) *ContentRepositoryPG {
	return &ContentRepositoryPG{db: db}
}

// ContentByJob returns the content entity materialized for the job.
func (r *ContentRepositoryPG) ContentByJob(ctx context.Context, jobID string) (*domain.ContentEntity, error) {
	if !isUUID(jobID) {
		return nil, domain.ErrNotFound
	}
	var (
		c        domain.ContentEntity
		dom      string
		metadata []byte
	)
	err := r.db.QueryRow(ctx, sqlinline.QSelectContentByJob, jobID).Scan(
		&c.ID,
		&c.JobID,
		&dom,
		&c.OwnerID,
		&c.OrganizationID,
		&c.Title,
		&c.Summary,
		&metadata,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("select content: %w", err)
	}
	c.Domain = domain.Domain(dom)
	c.Metadata = metadata
	return &c, nil
}

// Artifacts lists the artifacts of a content entity ordered by position.
func (r *ContentRepositoryPG) Artifacts(ctx context.Context, contentID string) ([]domain.Artifact, error) {
	if !isUUID(contentID) {
		return nil, nil
	}
	rows, err := r.db.Query(ctx, sqlinline.QSelectArtifactsByContent, contentID)
	if err != nil {
		return nil, fmt.Errorf("select artifacts: %w", err)
	}
	defer rows.Close()

	var artifacts []domain.Artifact
	for rows.Next() {
		var (
			a        domain.Artifact
			dom      string
			metadata []byte
		)
		if err := rows.Scan(
			&a.ID,
			&a.ContentID,
			&dom,
			&a.Position,
			&a.Title,
			&a.Body,
			&a.StorageKey,
			&a.URL,
			&a.MIME,
			&a.Width,
			&a.Height,
			&a.DurationSeconds,
			&a.Bytes,
			&metadata,
			&a.CreatedAt,
		); err != nil {
			return nil, err
		}
		a.Domain = domain.Domain(dom)
		a.Metadata = metadata
		artifacts = append(artifacts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return artifacts, nil
}

func upsertContent(ctx context.Context, db infra.SQLExecutor, entity *domain.ContentEntity) (*domain.ContentEntity, error) {
	out := *entity
	if out.ID == "" {
		out.ID = uuid.NewString()
	}
	err := db.QueryRow(ctx, sqlinline.QUpsertContentEntity,
		out.ID,
		out.JobID,
		string(out.Domain),
		out.OwnerID,
		out.OrganizationID,
		out.Title,
		out.Summary,
		nullableBytes(out.Metadata),
	).Scan(&out.ID, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("upsert content: %w", err)
	}
	return &out, nil
}

func deleteArtifacts(ctx context.Context, db infra.SQLExecutor, contentID string) (int, error) {
	tag, err := db.Exec(ctx, sqlinline.QDeleteArtifactsByContent, contentID)
	if err != nil {
		return 0, fmt.Errorf("delete artifacts: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// insertArtifacts writes every artifact in one statement through unnest.
func insertArtifacts(ctx context.Context, db infra.SQLExecutor, contentID string, d domain.Domain, artifacts []domain.Artifact) error {
	if len(artifacts) == 0 {
		return nil
	}
	n := len(artifacts)
	var (
		ids       = make([]string, n)
		positions = make([]int32, n)
		titles    = make([]string, n)
		bodies    = make([]string, n)
		keys      = make([]string, n)
		urls      = make([]string, n)
		mimes     = make([]string, n)
		widths    = make([]int32, n)
		heights   = make([]int32, n)
		durations = make([]float64, n)
		sizes     = make([]int64, n)
		metadata  = make([]string, n)
	)
	for i, a := range artifacts {
		ids[i] = a.ID
		if ids[i] == "" {
			ids[i] = uuid.NewString()
		}
		positions[i] = int32(a.Position)
		titles[i] = a.Title
		bodies[i] = a.Body
		keys[i] = a.StorageKey
		urls[i] = a.URL
		mimes[i] = a.MIME
		widths[i] = int32(a.Width)
		heights[i] = int32(a.Height)
		durations[i] = a.DurationSeconds
		sizes[i] = a.Bytes
		metadata[i] = "{}"
		if len(a.Metadata) > 0 {
			metadata[i] = string(a.Metadata)
		}
	}
	if _, err := db.Exec(ctx, sqlinline.QInsertArtifactsBulk,
		contentID, string(d),
		ids, positions, titles, bodies, keys, urls, mimes, widths, heights, durations, sizes, metadata,
	); err != nil {
		return fmt.Errorf("insert artifacts: %w", err)
	}
	return nil
}
