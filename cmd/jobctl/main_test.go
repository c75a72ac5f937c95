package main

import (
	stdzip "archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"contentgen/internal/adapter/repo"
	"contentgen/internal/domain"
	"contentgen/internal/infra"
)

const ownerID = "00000000-0000-4000-8000-000000000001"

func useMemoryEnv(t *testing.T, store *repo.MemoryStore) {
	t.Helper()
	prev := openEnv
	openEnv = func(context.Context) (*env, error) {
		return &env{
			cfg:    &infra.Config{WorkerBatchSize: 10, WorkerMaxAttempts: 1, NotificationStream: "notifications"},
			logger: zerolog.Nop(),
			store:  store,
			close:  func() {},
		}, nil
	}
	t.Cleanup(func() { openEnv = prev })
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func seedBook(t *testing.T, store *repo.MemoryStore) *domain.Job {
	t.Helper()
	ctx := context.Background()
	job := store.PutJob(&domain.Job{Domain: domain.DomainBook, ExternalJobID: "ext-7", Status: domain.JobStatusCompleted, Progress: 100, OwnerID: ownerID})
	err := store.WithTx(ctx, func(tx domain.Tx) error {
		content, err := tx.UpsertContent(ctx, &domain.ContentEntity{JobID: job.ID, Domain: domain.DomainBook, OwnerID: ownerID, Title: "Field Notes"})
		if err != nil {
			return err
		}
		return tx.InsertArtifacts(ctx, content.ID, []domain.Artifact{
			{Domain: domain.DomainBook, Position: 1, Title: "One", Body: "first chapter"},
			{Domain: domain.DomainBook, Position: 2, Title: "Two", Body: "second chapter"},
		})
	})
	if err != nil {
		t.Fatalf("seed content: %v", err)
	}
	return job
}

func TestJobExportWritesManifestAndChapters(t *testing.T) {
	store := repo.NewMemoryStore()
	job := seedBook(t, store)
	useMemoryEnv(t, store)

	path := filepath.Join(t.TempDir(), "book.zip")
	out, err := execute(t, "job", "export", job.ID, "-o", path)
	if err != nil {
		t.Fatalf("export: %v (%s)", err, out)
	}
	if !strings.Contains(out, "2 artifacts") {
		t.Fatalf("output = %q", out)
	}

	r, err := stdzip.OpenReader(path)
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	defer r.Close()

	files := map[string]string{}
	for _, f := range r.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("open %s: %v", f.Name, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatalf("read %s: %v", f.Name, err)
		}
		files[f.Name] = string(data)
	}
	if len(files) != 3 {
		t.Fatalf("entries = %v", files)
	}
	if files["chapters/001.md"] != "first chapter" || files["chapters/002.md"] != "second chapter" {
		t.Fatalf("chapters = %q, %q", files["chapters/001.md"], files["chapters/002.md"])
	}
	var manifest struct {
		Content   domain.ContentEntity `json:"content"`
		Artifacts []domain.Artifact    `json:"artifacts"`
	}
	if err := json.Unmarshal([]byte(files["manifest.json"]), &manifest); err != nil {
		t.Fatalf("manifest: %v", err)
	}
	if manifest.Content.Title != "Field Notes" || len(manifest.Artifacts) != 2 {
		t.Fatalf("manifest = %+v", manifest)
	}
}

func TestJobExportWithoutContentFails(t *testing.T) {
	store := repo.NewMemoryStore()
	job := store.PutJob(&domain.Job{Domain: domain.DomainImage, Status: domain.JobStatusRunning, OwnerID: ownerID})
	useMemoryEnv(t, store)

	if _, err := execute(t, "job", "export", job.ID, "-o", filepath.Join(t.TempDir(), "x.zip")); err == nil {
		t.Fatal("expected error for a job without content")
	}
}

func TestNotificationsDispatchDrainsOutbox(t *testing.T) {
	store := repo.NewMemoryStore()
	ctx := context.Background()
	for i, key := range []string{"job-1:BOOK_COMPLETED:1", "job-2:VIDEO_FAILED:2"} {
		n := &domain.Notification{UserID: ownerID, JobID: []string{"job-1", "job-2"}[i], Type: "BOOK_COMPLETED", Title: "Book ready", DedupeKey: key}
		if _, err := store.Notifications().Insert(ctx, n); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}
	useMemoryEnv(t, store)

	out, err := execute(t, "notifications", "pending", "--limit", "10")
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	var pending []domain.Notification
	if err := json.Unmarshal([]byte(out), &pending); err != nil || len(pending) != 2 {
		t.Fatalf("pending = %q (%v)", out, err)
	}

	out, err = execute(t, "notifications", "dispatch")
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if !strings.Contains(out, "dispatched 2 notifications") {
		t.Fatalf("output = %q", out)
	}
	left, err := store.Notifications().ListPending(ctx, 10)
	if err != nil || len(left) != 0 {
		t.Fatalf("pending after dispatch = %d, %v", len(left), err)
	}
	for _, n := range store.NotificationRecords() {
		if n.DispatchedAt == nil {
			t.Fatalf("notification %s not dispatched: %+v", n.ID, n)
		}
	}
}

func TestJobShowByExternalID(t *testing.T) {
	store := repo.NewMemoryStore()
	job := seedBook(t, store)
	useMemoryEnv(t, store)

	out, err := execute(t, "job", "show", "ext-7", "--domain", "book")
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	var body struct {
		Job       domain.Job        `json:"job"`
		Artifacts []domain.Artifact `json:"artifacts"`
	}
	if err := json.Unmarshal([]byte(out), &body); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if body.Job.ID != job.ID || len(body.Artifacts) != 2 {
		t.Fatalf("show = %+v", body)
	}
}
