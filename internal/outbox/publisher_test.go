package outbox

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"contentgen/internal/domain"
)

func TestStreamPublisherAgainstServer(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}

	stream := "test:notifications:" + uuid.NewString()
	defer client.Del(ctx, stream)

	p := NewStreamPublisher(client, stream)
	n := domain.Notification{ID: "n1", UserID: "u1", JobID: "j1", Type: "VIDEO_COMPLETED", CreatedAt: time.Now()}
	if err := p.Publish(ctx, n); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	msgs, err := client.XRange(ctx, stream, "-", "+").Result()
	if err != nil {
		t.Fatalf("XRange: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Values["notification_id"] != "n1" {
		t.Fatalf("messages = %+v", msgs)
	}
}
