package events_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/glizzus/voice-rooms/internal/events"
	"github.com/google/go-cmp/cmp"
	"github.com/redis/go-redis/v9"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

func startRedis(t *testing.T) *redis.Client {
	t.Helper()
	ctx := t.Context()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Fatalf("failed to start redis container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Errorf("failed to terminate redis container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}
	opts, err := redis.ParseURL(connStr)
	if err != nil {
		t.Fatalf("failed to parse redis url: %v", err)
	}
	client := redis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisStream(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping redis container test in short mode")
	}
	client := startRedis(t)

	at := time.Date(2024, 3, 1, 18, 0, 0, 0, time.UTC)
	published := []events.Event{
		{Type: events.RoomCreated, ChannelID: "200", GuildID: "1", UserID: "10", Name: "🔊 Alice", At: at},
		{Type: events.RoomDeleted, ChannelID: "200", GuildID: "1", At: at.Add(time.Minute)},
	}

	consumer, err := events.NewRedisConsumer(t.Context(), client, "test-consumer")
	if err != nil {
		t.Fatalf("failed to create consumer: %v", err)
	}
	// Joining an existing group must succeed.
	if _, err := events.NewRedisConsumer(t.Context(), client, "test-consumer-2"); err != nil {
		t.Fatalf("second consumer failed to join group: %v", err)
	}

	if err := events.NewRedisPublisher(client).Publish(t.Context(), published...); err != nil {
		t.Fatalf("failed to publish: %v", err)
	}

	ctx, cancel := context.WithTimeout(t.Context(), 30*time.Second)
	defer cancel()

	var mu sync.Mutex
	var received []events.Event
	err = consumer.Run(ctx, events.HandlerFunc(func(ctx context.Context, batch ...events.Event) error {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, batch...)
		if len(received) >= len(published) {
			cancel()
		}
		return nil
	}))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if diff := cmp.Diff(published, received); diff != "" {
		t.Errorf("received events mismatch (-want +got):\n%s", diff)
	}

	pending, err := client.XPending(t.Context(), events.Stream, events.ConsumerGroup).Result()
	if err != nil {
		t.Fatalf("failed to read pending: %v", err)
	}
	if pending.Count != 0 {
		t.Errorf("expected all events acknowledged, %d pending", pending.Count)
	}
}
