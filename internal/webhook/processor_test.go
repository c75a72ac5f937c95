package webhook

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"contentgen/internal/domain"
	"contentgen/internal/idempotency"
)

func TestProcessCompletesPendingBook(t *testing.T) {
	h := newHarness(t, defaultConfig())
	job := h.store.PutJob(&domain.Job{Domain: domain.DomainBook, ExternalJobID: "book-1", Status: domain.JobStatusPending, OwnerID: ownerID})

	ev := h.decode(t, domain.DomainBook, bookPayload(t, "book-1", "completed", baseStamp, 3))
	out, err := h.processor.Process(context.Background(), ev)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if out.Duplicate || out.Ignored || out.Status != domain.JobStatusCompleted {
		t.Fatalf("outcome = %+v", out)
	}

	stored := h.store.JobSnapshot(job.ID)
	if stored.Status != domain.JobStatusCompleted || stored.Progress != 100 {
		t.Fatalf("job = %s/%d", stored.Status, stored.Progress)
	}
	if stored.CompletedAt == nil || stored.LastEventAt == nil {
		t.Fatal("expected completed_at and last_event_at")
	}

	content, err := h.store.Content().ContentByJob(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("ContentByJob: %v", err)
	}
	if content.Title != "Go Tales" || content.OwnerID != ownerID {
		t.Fatalf("content = %+v", content)
	}
	artifacts, _ := h.store.Content().Artifacts(context.Background(), content.ID)
	if len(artifacts) != 3 {
		t.Fatalf("artifacts = %d, want 3", len(artifacts))
	}
	for i, a := range artifacts {
		if a.Position != i+1 {
			t.Fatalf("artifact %d position = %d", i, a.Position)
		}
	}

	notes := h.store.NotificationRecords()
	if len(notes) != 1 || notes[0].Type != "BOOK_COMPLETED" || notes[0].UserID != ownerID {
		t.Fatalf("notifications = %+v", notes)
	}
}

func TestProcessRedeliveryIsDuplicate(t *testing.T) {
	h := newHarness(t, defaultConfig())
	h.store.PutJob(&domain.Job{Domain: domain.DomainBook, ExternalJobID: "book-2", Status: domain.JobStatusRunning, OwnerID: ownerID})
	body := bookPayload(t, "book-2", "completed", baseStamp, 3)

	if _, err := h.processor.Process(context.Background(), h.decode(t, domain.DomainBook, body)); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	out, err := h.processor.Process(context.Background(), h.decode(t, domain.DomainBook, body))
	if err != nil {
		t.Fatalf("second delivery: %v", err)
	}
	if !out.Duplicate {
		t.Fatalf("expected duplicate, got %+v", out)
	}
	if out.Job == nil || out.Job.Status != domain.JobStatusCompleted {
		t.Fatalf("duplicate outcome job = %+v", out.Job)
	}
	if got := h.store.ArtifactCount(); got != 3 {
		t.Fatalf("artifacts = %d, want 3", got)
	}
	if got := len(h.store.NotificationRecords()); got != 1 {
		t.Fatalf("notifications = %d, want 1", got)
	}
}

func TestProcessRedeliveryAfterGuardWindowStillDuplicate(t *testing.T) {
	h := newHarness(t, defaultConfig())
	h.store.PutJob(&domain.Job{Domain: domain.DomainImage, ExternalJobID: "img-1", Status: domain.JobStatusRunning, OwnerID: ownerID})
	body := imagePayload(t, "img-1", "completed", baseStamp, 2)
	if _, err := h.processor.Process(context.Background(), h.decode(t, domain.DomainImage, body)); err != nil {
		t.Fatalf("first delivery: %v", err)
	}

	// A fresh guard has forgotten the key; the job timestamp still rejects the replay.
	emitter := h.processor.materializer.notifier
	fresh := NewProcessor(h.store, idempotency.NewMemoryGuard(time.Minute), emitter, defaultConfig(), h.processor.logger)
	out, err := fresh.Process(context.Background(), h.decode(t, domain.DomainImage, body))
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !out.Duplicate {
		t.Fatalf("expected duplicate, got %+v", out)
	}
	if got := h.store.ArtifactCount(); got != 2 {
		t.Fatalf("artifacts = %d, want 2", got)
	}
	if got := h.store.ContentCount(); got != 1 {
		t.Fatalf("content = %d, want 1", got)
	}
}

func TestProcessRegenerationReplacesArtifacts(t *testing.T) {
	h := newHarness(t, defaultConfig())
	job := h.store.PutJob(&domain.Job{Domain: domain.DomainBook, ExternalJobID: "book-3", Status: domain.JobStatusRunning, OwnerID: ownerID})

	if _, err := h.processor.Process(context.Background(), h.decode(t, domain.DomainBook, bookPayload(t, "book-3", "completed", baseStamp, 3))); err != nil {
		t.Fatalf("first completion: %v", err)
	}
	first, _ := h.store.Content().ContentByJob(context.Background(), job.ID)

	out, err := h.processor.Process(context.Background(), h.decode(t, domain.DomainBook, bookPayload(t, "book-3", "done", stampAfter(time.Hour), 2)))
	if err != nil {
		t.Fatalf("regeneration: %v", err)
	}
	if out.Duplicate || out.Status != domain.JobStatusCompleted {
		t.Fatalf("outcome = %+v", out)
	}

	second, _ := h.store.Content().ContentByJob(context.Background(), job.ID)
	if second.ID != first.ID {
		t.Fatalf("content id changed: %s -> %s", first.ID, second.ID)
	}
	if got := h.store.ContentCount(); got != 1 {
		t.Fatalf("content = %d, want 1", got)
	}
	if got := h.store.ArtifactCount(); got != 2 {
		t.Fatalf("artifacts = %d, want 2", got)
	}
	if got := countType(h.store.NotificationRecords(), "BOOK_COMPLETED"); got != 2 {
		t.Fatalf("completion notifications = %d, want 2", got)
	}
}

func TestProcessOlderCompletionDoesNotRegenerate(t *testing.T) {
	h := newHarness(t, defaultConfig())
	h.store.PutJob(&domain.Job{Domain: domain.DomainBook, ExternalJobID: "book-4", Status: domain.JobStatusRunning, OwnerID: ownerID})

	if _, err := h.processor.Process(context.Background(), h.decode(t, domain.DomainBook, bookPayload(t, "book-4", "completed", stampAfter(time.Hour), 2))); err != nil {
		t.Fatalf("completion: %v", err)
	}
	out, err := h.processor.Process(context.Background(), h.decode(t, domain.DomainBook, bookPayload(t, "book-4", "complete", baseStamp, 5)))
	if err != nil {
		t.Fatalf("stale completion: %v", err)
	}
	if !out.Duplicate {
		t.Fatalf("expected duplicate, got %+v", out)
	}
	if got := h.store.ArtifactCount(); got != 2 {
		t.Fatalf("artifacts = %d, want 2", got)
	}
}

func TestProcessProgressForImageSet(t *testing.T) {
	h := newHarness(t, defaultConfig())
	job := h.store.PutJob(&domain.Job{Domain: domain.DomainImage, ExternalJobID: "img-2", Status: domain.JobStatusPending, OwnerID: ownerID})

	out, err := h.processor.Process(context.Background(), h.decode(t, domain.DomainImage, imagePayload(t, "img-2", "generating", baseStamp, 0)))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if out.Status != domain.JobStatusRunning {
		t.Fatalf("status = %s", out.Status)
	}
	stored := h.store.JobSnapshot(job.ID)
	if stored.Status != domain.JobStatusRunning || stored.Progress != 60 {
		t.Fatalf("job = %s/%d, want RUNNING/60", stored.Status, stored.Progress)
	}
	if stored.StartedAt == nil {
		t.Fatal("expected started_at")
	}
	if got := len(h.store.NotificationRecords()); got != 0 {
		t.Fatalf("notifications = %d, want 0", got)
	}
	if got := h.store.ContentCount(); got != 0 {
		t.Fatalf("content = %d, want 0", got)
	}
}

func TestProcessProgressIsMonotonic(t *testing.T) {
	h := newHarness(t, defaultConfig())
	job := h.store.PutJob(&domain.Job{Domain: domain.DomainBook, ExternalJobID: "book-5", Status: domain.JobStatusPending, OwnerID: ownerID})

	steps := []struct {
		status       string
		stamp        string
		wantStatus   domain.JobStatus
		wantProgress int
	}{
		{status: "writing", stamp: stampAfter(time.Minute), wantStatus: domain.JobStatusRunning, wantProgress: 60},
		{status: "outlining", stamp: stampAfter(2 * time.Minute), wantStatus: domain.JobStatusRunning, wantProgress: 60},
		{status: "queued", stamp: stampAfter(3 * time.Minute), wantStatus: domain.JobStatusRunning, wantProgress: 60},
		{status: "formatting", stamp: stampAfter(4 * time.Minute), wantStatus: domain.JobStatusRunning, wantProgress: 80},
	}
	for _, step := range steps {
		if _, err := h.processor.Process(context.Background(), h.decode(t, domain.DomainBook, bookPayload(t, "book-5", step.status, step.stamp, 0))); err != nil {
			t.Fatalf("%s: %v", step.status, err)
		}
		stored := h.store.JobSnapshot(job.ID)
		if stored.Status != step.wantStatus || stored.Progress != step.wantProgress {
			t.Fatalf("after %s: job = %s/%d, want %s/%d", step.status, stored.Status, stored.Progress, step.wantStatus, step.wantProgress)
		}
	}
}

func TestProcessFailsVideoJob(t *testing.T) {
	h := newHarness(t, defaultConfig())
	job := h.store.PutJob(&domain.Job{Domain: domain.DomainVideo, ExternalJobID: "vid-1", Status: domain.JobStatusRunning, OwnerID: ownerID, Progress: 50})

	out, err := h.processor.Process(context.Background(), h.decode(t, domain.DomainVideo, videoPayload(t, "vid-1", "failed", baseStamp, "quota exceeded")))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if out.Status != domain.JobStatusFailed {
		t.Fatalf("status = %s", out.Status)
	}
	stored := h.store.JobSnapshot(job.ID)
	if stored.Status != domain.JobStatusFailed || stored.Error != "quota exceeded" || stored.Progress != 0 {
		t.Fatalf("job = %+v", stored)
	}
	notes := h.store.NotificationRecords()
	if len(notes) != 1 || notes[0].Type != "VIDEO_FAILED" {
		t.Fatalf("notifications = %+v", notes)
	}

	again, err := h.processor.Process(context.Background(), h.decode(t, domain.DomainVideo, videoPayload(t, "vid-1", "error", stampAfter(time.Minute), "")))
	if err != nil {
		t.Fatalf("second failure: %v", err)
	}
	if !again.Duplicate {
		t.Fatalf("expected duplicate failure, got %+v", again)
	}
	if got := len(h.store.NotificationRecords()); got != 1 {
		t.Fatalf("notifications = %d, want 1", got)
	}
}

func TestProcessFailureWithoutMessageUsesDefault(t *testing.T) {
	h := newHarness(t, defaultConfig())
	job := h.store.PutJob(&domain.Job{Domain: domain.DomainImage, ExternalJobID: "img-3", Status: domain.JobStatusPending, OwnerID: ownerID})

	if _, err := h.processor.Process(context.Background(), h.decode(t, domain.DomainImage, imagePayload(t, "img-3", "failed", baseStamp, 0))); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if got := h.store.JobSnapshot(job.ID).Error; got != DefaultFailureMessage {
		t.Fatalf("error = %q", got)
	}
}

func TestProcessLateFailureKeepsCompletion(t *testing.T) {
	h := newHarness(t, defaultConfig())
	job := h.store.PutJob(&domain.Job{Domain: domain.DomainBook, ExternalJobID: "book-6", Status: domain.JobStatusRunning, OwnerID: ownerID})
	if _, err := h.processor.Process(context.Background(), h.decode(t, domain.DomainBook, bookPayload(t, "book-6", "completed", baseStamp, 2))); err != nil {
		t.Fatalf("completion: %v", err)
	}

	out, err := h.processor.Process(context.Background(), h.decode(t, domain.DomainBook, bookPayload(t, "book-6", "failed", stampAfter(time.Minute), 0)))
	if err != nil {
		t.Fatalf("late failure: %v", err)
	}
	if !out.Ignored || out.Status != domain.JobStatusCompleted {
		t.Fatalf("outcome = %+v", out)
	}
	stored := h.store.JobSnapshot(job.ID)
	if stored.Status != domain.JobStatusCompleted || stored.Error != "" {
		t.Fatalf("job = %+v", stored)
	}
	if got := h.store.ArtifactCount(); got != 2 {
		t.Fatalf("artifacts = %d, want 2", got)
	}
	if got := countType(h.store.NotificationRecords(), "BOOK_FAILED"); got != 0 {
		t.Fatalf("failure notifications = %d, want 0", got)
	}
}

func TestProcessCompletionForFailedJobIgnored(t *testing.T) {
	h := newHarness(t, defaultConfig())
	job := h.store.PutJob(&domain.Job{Domain: domain.DomainVideo, ExternalJobID: "vid-2", Status: domain.JobStatusFailed, OwnerID: ownerID, Error: "boom"})
	body := `{"job_id":"vid-2","status":"completed","timestamp":"2026-01-02T03:04:05Z","result":{"videos":[{"url":"https://v.example.com/a.mp4"}]}}`

	out, err := h.processor.Process(context.Background(), h.decode(t, domain.DomainVideo, []byte(body)))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !out.Ignored {
		t.Fatalf("expected ignored, got %+v", out)
	}
	if h.store.JobSnapshot(job.ID).Status != domain.JobStatusFailed {
		t.Fatal("failed job must stay failed")
	}
	if got := h.store.ContentCount(); got != 0 {
		t.Fatalf("content = %d, want 0", got)
	}
}

func TestProcessProgressAfterCompletionIgnored(t *testing.T) {
	h := newHarness(t, defaultConfig())
	job := h.store.PutJob(&domain.Job{Domain: domain.DomainImage, ExternalJobID: "img-4", Status: domain.JobStatusRunning, OwnerID: ownerID})
	if _, err := h.processor.Process(context.Background(), h.decode(t, domain.DomainImage, imagePayload(t, "img-4", "completed", baseStamp, 1))); err != nil {
		t.Fatalf("completion: %v", err)
	}
	out, err := h.processor.Process(context.Background(), h.decode(t, domain.DomainImage, imagePayload(t, "img-4", "uploading", stampAfter(time.Minute), 0)))
	if err != nil {
		t.Fatalf("progress: %v", err)
	}
	if !out.Ignored {
		t.Fatalf("expected ignored, got %+v", out)
	}
	if stored := h.store.JobSnapshot(job.ID); stored.Status != domain.JobStatusCompleted || stored.Progress != 100 {
		t.Fatalf("job = %s/%d", stored.Status, stored.Progress)
	}
}

func TestProcessSynthesizesUnknownJob(t *testing.T) {
	h := newHarness(t, defaultConfig())

	out, err := h.processor.Process(context.Background(), h.decode(t, domain.DomainBook, bookPayload(t, "orphan-1", "writing", baseStamp, 0)))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if out.Job.Correlation != domain.CorrelationSynthesized {
		t.Fatalf("correlation = %s", out.Job.Correlation)
	}
	if out.Job.OwnerID != earliest {
		t.Fatalf("owner = %s, want earliest user", out.Job.OwnerID)
	}
	if out.Job.ExternalJobID != "orphan-1" || out.Status != domain.JobStatusRunning {
		t.Fatalf("job = %+v", out.Job)
	}

	done, err := h.processor.Process(context.Background(), h.decode(t, domain.DomainBook, bookPayload(t, "orphan-1", "completed", stampAfter(time.Minute), 2)))
	if err != nil {
		t.Fatalf("completion: %v", err)
	}
	if done.Job.ID != out.Job.ID || done.Status != domain.JobStatusCompleted {
		t.Fatalf("completion outcome = %+v", done)
	}
	if got := h.store.JobCount(); got != 1 {
		t.Fatalf("jobs = %d, want 1", got)
	}
}

func TestProcessSynthesizesWithPayloadOwner(t *testing.T) {
	h := newHarness(t, defaultConfig())
	body := []byte(`{"job_id":"orphan-2","status":"generating","timestamp":"2026-01-02T03:04:05Z","user_id":"` + ownerID + `","organization_id":"` + orgID + `"}`)

	out, err := h.processor.Process(context.Background(), h.decode(t, domain.DomainImage, body))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if out.Job.OwnerID != ownerID || out.Job.OrganizationID != orgID {
		t.Fatalf("job = %+v", out.Job)
	}
}

func TestProcessAdoptsRecentOpenJob(t *testing.T) {
	h := newHarness(t, defaultConfig())
	open := h.store.PutJob(&domain.Job{Domain: domain.DomainVideo, Status: domain.JobStatusPending, OwnerID: ownerID})
	h.store.PutJob(&domain.Job{Domain: domain.DomainVideo, ExternalJobID: "other", Status: domain.JobStatusRunning, OwnerID: ownerID})

	out, err := h.processor.Process(context.Background(), h.decode(t, domain.DomainVideo, videoPayload(t, "vid-new", "rendering", baseStamp, "")))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if out.Job.ID != open.ID {
		t.Fatalf("adopted %s, want %s", out.Job.ID, open.ID)
	}
	if out.Job.Correlation != domain.CorrelationAdopted {
		t.Fatalf("correlation = %s", out.Job.Correlation)
	}
	found, err := h.store.Jobs().FindByExternalID(context.Background(), domain.DomainVideo, "vid-new")
	if err != nil || found.ID != open.ID {
		t.Fatalf("FindByExternalID = %+v, %v", found, err)
	}
	if got := h.store.JobCount(); got != 2 {
		t.Fatalf("jobs = %d, want 2", got)
	}
}

func TestProcessCorrelationFailure(t *testing.T) {
	cfg := ResolverConfig{FallbackEnabled: false, Lookback: time.Hour, OwnerFallback: "none"}
	h := newHarness(t, cfg)
	h.store.PutJob(&domain.Job{Domain: domain.DomainBook, Status: domain.JobStatusPending, OwnerID: ownerID})

	_, err := h.processor.Process(context.Background(), h.decode(t, domain.DomainBook, bookPayload(t, "nobody", "writing", baseStamp, 0)))
	if !errors.Is(err, domain.ErrCorrelationFailed) {
		t.Fatalf("expected correlation failure, got %v", err)
	}
	if got := h.store.JobCount(); got != 1 {
		t.Fatalf("jobs = %d, want 1", got)
	}

	// The key was released, so a retry is processed again rather than skipped.
	claim, err := h.guard.Claim(context.Background(), idempotency.Key(domain.DomainBook, "nobody", "writing"))
	if err != nil || claim != idempotency.Claimed {
		t.Fatalf("claim after failure = %v, %v", claim, err)
	}
}

func TestProcessRollsBackOnWriteFailure(t *testing.T) {
	h := newHarness(t, defaultConfig())
	job := h.store.PutJob(&domain.Job{Domain: domain.DomainBook, ExternalJobID: "book-7", Status: domain.JobStatusRunning, OwnerID: ownerID, Progress: 60})
	h.store.FailOn = func(op string) error {
		if op == "InsertArtifacts" {
			return errors.New("disk full")
		}
		return nil
	}
	body := bookPayload(t, "book-7", "completed", baseStamp, 3)

	_, err := h.processor.Process(context.Background(), h.decode(t, domain.DomainBook, body))
	if !errors.Is(err, domain.ErrPersistence) {
		t.Fatalf("expected persistence error, got %v", err)
	}
	stored := h.store.JobSnapshot(job.ID)
	if stored.Status != domain.JobStatusRunning || stored.Progress != 60 {
		t.Fatalf("job = %s/%d, want RUNNING/60", stored.Status, stored.Progress)
	}
	if h.store.ContentCount() != 0 || h.store.ArtifactCount() != 0 {
		t.Fatalf("content = %d artifacts = %d, want none", h.store.ContentCount(), h.store.ArtifactCount())
	}
	if got := len(h.store.NotificationRecords()); got != 0 {
		t.Fatalf("notifications = %d, want 0", got)
	}

	h.store.FailOn = nil
	out, err := h.processor.Process(context.Background(), h.decode(t, domain.DomainBook, body))
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if out.Duplicate || out.Status != domain.JobStatusCompleted {
		t.Fatalf("retry outcome = %+v", out)
	}
	if got := h.store.ArtifactCount(); got != 3 {
		t.Fatalf("artifacts = %d, want 3", got)
	}
}

type failingGuard struct{}

func (failingGuard) Claim(context.Context, string) (idempotency.Claim, error) {
	return idempotency.Claimed, errors.New("redis down")
}
func (failingGuard) Complete(context.Context, string) error { return nil }
func (failingGuard) Release(context.Context, string) error  { return nil }

func TestProcessProceedsWhenGuardUnavailable(t *testing.T) {
	h := newHarness(t, defaultConfig())
	h.store.PutJob(&domain.Job{Domain: domain.DomainImage, ExternalJobID: "img-5", Status: domain.JobStatusRunning, OwnerID: ownerID})
	p := NewProcessor(h.store, failingGuard{}, h.processor.materializer.notifier, defaultConfig(), h.processor.logger)

	body := imagePayload(t, "img-5", "completed", baseStamp, 2)
	if _, err := p.Process(context.Background(), h.decode(t, domain.DomainImage, body)); err != nil {
		t.Fatalf("Process: %v", err)
	}
	out, err := p.Process(context.Background(), h.decode(t, domain.DomainImage, body))
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !out.Duplicate {
		t.Fatalf("expected duplicate, got %+v", out)
	}
	if got := h.store.ArtifactCount(); got != 2 {
		t.Fatalf("artifacts = %d, want 2", got)
	}
}

func TestProcessInFlightDelivery(t *testing.T) {
	h := newHarness(t, defaultConfig())
	h.store.PutJob(&domain.Job{Domain: domain.DomainBook, ExternalJobID: "book-8", Status: domain.JobStatusRunning, OwnerID: ownerID})
	ev := h.decode(t, domain.DomainBook, bookPayload(t, "book-8", "completed", baseStamp, 1))

	if _, err := h.guard.Claim(context.Background(), idempotency.Key(ev.Domain, ev.ExternalJobID, ev.Status)); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	_, err := h.processor.Process(context.Background(), ev)
	if !errors.Is(err, domain.ErrInFlight) {
		t.Fatalf("expected in-flight error, got %v", err)
	}
	if got := h.store.ContentCount(); got != 0 {
		t.Fatalf("content = %d, want 0", got)
	}
}

func TestProcessConcurrentDeliveries(t *testing.T) {
	h := newHarness(t, defaultConfig())
	job := h.store.PutJob(&domain.Job{Domain: domain.DomainImage, ExternalJobID: "img-6", Status: domain.JobStatusRunning, OwnerID: ownerID})
	body := imagePayload(t, "img-6", "completed", baseStamp, 4)

	const workers = 16
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ev, err := h.decoder.Decode(domain.DomainImage, body)
			if err != nil {
				errs <- err
				return
			}
			if _, err := h.processor.Process(context.Background(), ev); err != nil && !errors.Is(err, domain.ErrInFlight) {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := h.store.JobSnapshot(job.ID).Status; got != domain.JobStatusCompleted {
		t.Fatalf("status = %s", got)
	}
	if got := h.store.ArtifactCount(); got != 4 {
		t.Fatalf("artifacts = %d, want 4", got)
	}
	if got := len(h.store.NotificationRecords()); got != 1 {
		t.Fatalf("notifications = %d, want 1", got)
	}
}
