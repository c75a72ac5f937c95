package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"contentgen/internal/domain"
	"contentgen/internal/infra"
	"contentgen/internal/sqlinline"
)

type stubRow struct {
	scan func(dest ...any) error
}

func (r stubRow) Scan(dest ...any) error {
	if r.scan == nil {
		return pgx.ErrNoRows
	}
	return r.scan(dest...)
}

type execCall struct {
	query string
	args  []any
}

type stubDB struct {
	rows  map[string]func(args []any) pgx.Row
	execs []execCall
	tags  map[string]string
}

func newStubDB() *stubDB {
	return &stubDB{rows: make(map[string]func([]any) pgx.Row), tags: make(map[string]string)}
}

func (s *stubDB) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	s.execs = append(s.execs, execCall{query: query, args: args})
	if tag, ok := s.tags[query]; ok {
		return pgconn.NewCommandTag(tag), nil
	}
	return pgconn.NewCommandTag("UPDATE 1"), nil
}

func (s *stubDB) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	if fn, ok := s.rows[query]; ok {
		return fn(args)
	}
	return stubRow{scan: func(dest ...any) error { return fmt.Errorf("unexpected query: %s", query) }}
}

func (s *stubDB) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	return nil, fmt.Errorf("unexpected query: %s", query)
}

type stubTxRunner struct {
	db        infra.SQLExecutor
	committed bool
}

func (s *stubTxRunner) WithTx(ctx context.Context, fn func(infra.SQLExecutor) error) error {
	if err := fn(s.db); err != nil {
		return err
	}
	s.committed = true
	return nil
}

func jobRow(j domain.Job) pgx.Row {
	return stubRow{scan: func(dest ...any) error {
		if len(dest) != 16 {
			return fmt.Errorf("expected 16 columns, got %d", len(dest))
		}
		*dest[0].(*string) = j.ID
		*dest[1].(*string) = string(j.Domain)
		*dest[2].(*string) = j.ExternalJobID
		*dest[3].(*string) = string(j.Status)
		*dest[4].(*int) = j.Progress
		*dest[5].(*string) = j.OwnerID
		*dest[6].(*string) = j.OrganizationID
		*dest[7].(*[]byte) = j.InputData
		*dest[8].(*[]byte) = j.Result
		*dest[9].(*string) = j.Error
		*dest[10].(*string) = string(j.Correlation)
		*dest[11].(**time.Time) = j.LastEventAt
		*dest[12].(**time.Time) = j.StartedAt
		*dest[13].(**time.Time) = j.CompletedAt
		*dest[14].(*time.Time) = j.CreatedAt
		*dest[15].(*time.Time) = j.UpdatedAt
		return nil
	}}
}

func TestJobRepositoryFindByExternalIDNotFound(t *testing.T) {
	db := newStubDB()
	db.rows[sqlinline.QSelectJobByExternalID] = func(args []any) pgx.Row { return stubRow{} }

	_, err := NewJobRepository(db).FindByExternalID(context.Background(), domain.DomainBook, "ext-1")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestJobRepositoryAdoptClaimsOnlyUnboundJobs(t *testing.T) {
	const jobID = "5b1c6f0e-3f38-4a5e-9a4e-2f3f8f0b7c11"
	bound := map[string]string{}
	db := newStubDB()
	db.rows[sqlinline.QAdoptJob] = func(args []any) pgx.Row {
		ext := args[2].(string)
		if cur, ok := bound[args[0].(string)]; ok && cur != ext {
			return stubRow{}
		}
		bound[args[0].(string)] = ext
		return stubRow{scan: func(dest ...any) error {
			*dest[0].(*string) = jobID
			return nil
		}}
	}
	jobs := NewJobRepository(db)

	if err := jobs.Adopt(context.Background(), jobID, domain.DomainBook, "ext-A"); err != nil {
		t.Fatalf("Adopt ext-A: %v", err)
	}
	if err := jobs.Adopt(context.Background(), jobID, domain.DomainBook, "ext-B"); !errors.Is(err, domain.ErrAlreadyBound) {
		t.Fatalf("Adopt ext-B = %v, want ErrAlreadyBound", err)
	}
	for _, clause := range []string{"status in ('PENDING', 'RUNNING')", "external_job_id is null or j.external_job_id = $3", "from claimed c"} {
		if !strings.Contains(sqlinline.QAdoptJob, clause) {
			t.Fatalf("adopt statement lacks %q", clause)
		}
	}
}

func TestJobRepositoryCreateIfAbsentConflictRereads(t *testing.T) {
	existing := domain.Job{
		ID:            "5b1c6f0e-3f38-4a5e-9a4e-2f3f8f0b7c11",
		Domain:        domain.DomainImage,
		ExternalJobID: "ext-9",
		Status:        domain.JobStatusRunning,
		OwnerID:       "0d6f2f0a-7d7b-4f3b-8a8e-6b9c1c2d3e4f",
		Correlation:   domain.CorrelationSynthesized,
		CreatedAt:     time.Now(),
	}
	db := newStubDB()
	db.rows[sqlinline.QInsertJobIfAbsent] = func(args []any) pgx.Row { return stubRow{} }
	db.rows[sqlinline.QSelectJobByExternalID] = func(args []any) pgx.Row {
		if args[0] != "IMAGE" || args[1] != "ext-9" {
			return stubRow{scan: func(...any) error { return fmt.Errorf("bad args %v", args) }}
		}
		return jobRow(existing)
	}

	job, created, err := NewJobRepository(db).CreateIfAbsent(context.Background(), &domain.Job{
		ID:            "8f0b1a2c-3d4e-4f50-8a6b-7c8d9e0f1a2b",
		Domain:        domain.DomainImage,
		ExternalJobID: "ext-9",
		Status:        domain.JobStatusRunning,
		OwnerID:       existing.OwnerID,
		Correlation:   domain.CorrelationSynthesized,
	})
	if err != nil {
		t.Fatalf("CreateIfAbsent: %v", err)
	}
	if created {
		t.Fatal("expected existing job to win the conflict")
	}
	if job.ID != existing.ID || job.Status != domain.JobStatusRunning {
		t.Fatalf("unexpected job %+v", job)
	}
}

func TestUserDirectoryRejectsMalformedIDs(t *testing.T) {
	db := newStubDB()
	ok, err := NewUserDirectory(db).Exists(context.Background(), "not-a-uuid")
	if err != nil || ok {
		t.Fatalf("Exists = %v, %v; want false, nil", ok, err)
	}
}

func TestPostgresStoreTxWritesArtifactsInOneStatement(t *testing.T) {
	db := newStubDB()
	db.tags[sqlinline.QDeleteArtifactsByContent] = "DELETE 2"
	runner := &stubTxRunner{db: db}
	store := NewPostgresStore(db, runner)

	var replaced int
	err := store.WithTx(context.Background(), func(tx domain.Tx) error {
		var err error
		replaced, err = tx.DeleteArtifacts(context.Background(), "c0ffee00-0000-4000-8000-000000000001")
		if err != nil {
			return err
		}
		return tx.InsertArtifacts(context.Background(), "c0ffee00-0000-4000-8000-000000000001", []domain.Artifact{
			{Domain: domain.DomainBook, Position: 1, Title: "One"},
			{Domain: domain.DomainBook, Position: 2, Title: "Two"},
			{Domain: domain.DomainBook, Position: 3, Title: "Three"},
		})
	})
	if err != nil {
		t.Fatalf("WithTx: %v", err)
	}
	if !runner.committed {
		t.Fatal("expected commit")
	}
	if replaced != 2 {
		t.Fatalf("replaced = %d, want 2", replaced)
	}

	var inserts []execCall
	for _, c := range db.execs {
		if c.query == sqlinline.QInsertArtifactsBulk {
			inserts = append(inserts, c)
		}
	}
	if len(inserts) != 1 {
		t.Fatalf("expected one bulk insert, got %d", len(inserts))
	}
	args := inserts[0].args
	if args[1] != "BOOK" {
		t.Fatalf("domain arg = %v", args[1])
	}
	positions := args[3].([]int32)
	titles := args[4].([]string)
	if len(positions) != 3 || positions[0] != 1 || positions[2] != 3 {
		t.Fatalf("positions = %v", positions)
	}
	if titles[1] != "Two" {
		t.Fatalf("titles = %v", titles)
	}
}

func TestPostgresStoreTxPropagatesErrors(t *testing.T) {
	db := newStubDB()
	runner := &stubTxRunner{db: db}
	store := NewPostgresStore(db, runner)
	boom := errors.New("boom")

	err := store.WithTx(context.Background(), func(tx domain.Tx) error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if runner.committed {
		t.Fatal("failed transaction must not commit")
	}
}

func TestNotificationInsertDuplicate(t *testing.T) {
	db := newStubDB()
	db.rows[sqlinline.QInsertNotification] = func(args []any) pgx.Row { return stubRow{} }

	inserted, err := NewNotificationRepository(db).Insert(context.Background(), &domain.Notification{
		UserID:    "0d6f2f0a-7d7b-4f3b-8a8e-6b9c1c2d3e4f",
		JobID:     "5b1c6f0e-3f38-4a5e-9a4e-2f3f8f0b7c11",
		Type:      "BOOK_COMPLETED",
		DedupeKey: "k",
	})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if inserted {
		t.Fatal("conflicting dedupe key must not insert")
	}
}
