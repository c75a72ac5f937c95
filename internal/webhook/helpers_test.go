package webhook

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"contentgen/internal/adapter/repo"
	"contentgen/internal/domain"
	"contentgen/internal/idempotency"
	"contentgen/internal/infra"
	"contentgen/internal/notify"
	"contentgen/internal/storage"
)

const (
	ownerID   = "11111111-1111-4111-8111-111111111111"
	earliest  = "00000000-0000-4000-8000-000000000001"
	orgID     = "22222222-2222-4222-8222-222222222222"
	baseStamp = "2026-01-02T03:04:05Z"
)

type harness struct {
	store     *repo.MemoryStore
	guard     *idempotency.MemoryGuard
	decoder   *Decoder
	processor *Processor
}

func newHarness(t *testing.T, cfg ResolverConfig) *harness {
	t.Helper()
	store := repo.NewMemoryStore()
	store.AddUser(domain.User{ID: earliest, Email: "first@example.com", CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)})
	store.AddUser(domain.User{ID: ownerID, Email: "owner@example.com", CreatedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)})

	locator, err := storage.NewLocator("https://cdn.example.com")
	if err != nil {
		t.Fatalf("NewLocator: %v", err)
	}
	decoder, err := NewDecoder(locator)
	if err != nil {
		t.Fatalf("NewDecoder: %v", err)
	}
	guard := idempotency.NewMemoryGuard(5 * time.Minute)
	emitter := notify.NewEmitter(store.Notifications(), zerolog.Nop())
	return &harness{
		store:     store,
		guard:     guard,
		decoder:   decoder,
		processor: NewProcessor(store, guard, emitter, cfg, zerolog.Nop()),
	}
}

func defaultConfig() ResolverConfig {
	return ResolverConfig{FallbackEnabled: true, Lookback: time.Hour, OwnerFallback: infra.OwnerFallbackEarliestUser}
}

func (h *harness) decode(t *testing.T, d domain.Domain, body []byte) *Event {
	t.Helper()
	ev, err := h.decoder.Decode(d, body)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	return ev
}

func mustMarshal(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func bookPayload(t *testing.T, jobID, status, stamp string, chapters int) []byte {
	t.Helper()
	body := map[string]any{
		"job_id":      jobID,
		"status":      status,
		"timestamp":   stamp,
		"environment": "test",
	}
	if chapters > 0 {
		list := make([]map[string]any, chapters)
		for i := range list {
			list[i] = map[string]any{
				"order":       i + 1,
				"title":       fmt.Sprintf("Chapter %d", i+1),
				"content":     "once upon a time",
				"storage_key": fmt.Sprintf("books/%s/chapter-%d.md", jobID, i+1),
			}
		}
		body["result"] = map[string]any{"title": "Go Tales", "description": "a book", "chapters": list}
	}
	return mustMarshal(t, body)
}

func imagePayload(t *testing.T, jobID, status, stamp string, images int) []byte {
	t.Helper()
	body := map[string]any{"job_id": jobID, "status": status, "timestamp": stamp}
	if images > 0 {
		list := make([]map[string]any, images)
		for i := range list {
			list[i] = map[string]any{
				"index":       i,
				"storage_key": fmt.Sprintf("images/%s/%d.png", jobID, i),
				"width":       1024,
				"height":      1024,
				"mime":        "image/png",
			}
		}
		body["result"] = map[string]any{"prompt": "a cat", "images": list}
	}
	return mustMarshal(t, body)
}

func videoPayload(t *testing.T, jobID, status, stamp, errMsg string) []byte {
	t.Helper()
	body := map[string]any{"job_id": jobID, "status": status, "timestamp": stamp}
	if errMsg != "" {
		body["error"] = errMsg
	}
	return mustMarshal(t, body)
}

func stampAfter(d time.Duration) string {
	base, _ := time.Parse(time.RFC3339, baseStamp)
	return base.Add(d).Format(time.RFC3339)
}

func countType(list []domain.Notification, typ domain.NotificationType) int {
	n := 0
	for _, item := range list {
		if item.Type == typ {
			n++
		}
	}
	return n
}
