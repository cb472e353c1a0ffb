package worker_test

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/glizzus/voice-rooms/internal/datalayer"
	"github.com/glizzus/voice-rooms/internal/events"
	"github.com/glizzus/voice-rooms/internal/worker"
	"github.com/google/go-cmp/cmp"
)

var t0 = time.Date(2024, 3, 1, 18, 0, 0, 0, time.UTC)

func at(minutes int) time.Time {
	return t0.Add(time.Duration(minutes) * time.Minute)
}

type failingStorage struct {
	*datalayer.MemoryStorage
	failures int
}

func (s *failingStorage) Put(ctx context.Context, key string, data io.Reader, opts datalayer.PutOptions) error {
	if s.failures > 0 {
		s.failures--
		return errors.New("storage unavailable")
	}
	return s.MemoryStorage.Put(ctx, key, data, opts)
}

func TestSessionKey(t *testing.T) {
	if got := worker.SessionKey("g", "c"); got != "sessions/g/c.json" {
		t.Errorf("unexpected key %q", got)
	}
}

func TestArchiverFoldsSession(t *testing.T) {
	ctx := context.Background()
	storage := datalayer.NewMemoryStorage()
	archiver := worker.NewArchiver(storage)

	created := events.Event{Type: events.RoomCreated, ChannelID: "c", GuildID: "g", UserID: "u", Name: "🔊 u", At: at(0)}
	batch := []events.Event{
		created,
		{Type: events.RoomLimit, ChannelID: "c", GuildID: "g", UserID: "u", Limit: 5, At: at(1)},
		{Type: events.RoomPrivate, ChannelID: "c", GuildID: "g", UserID: "u", At: at(2)},
		{Type: events.RoomRenamed, ChannelID: "c", GuildID: "g", UserID: "admin", Name: "игры", At: at(3)},
		created, // redelivered
		{Type: events.RoomPublic, ChannelID: "c", GuildID: "g", UserID: "u", At: at(4)},
	}
	if err := archiver.HandleEvents(ctx, batch...); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if archiver.Open() != 1 || len(storage.Keys()) != 0 {
		t.Fatalf("session should stay open until the room is deleted")
	}

	deleted := events.Event{Type: events.RoomDeleted, ChannelID: "c", GuildID: "g", Name: "игры", At: at(10)}
	if err := archiver.HandleEvents(ctx, deleted); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if archiver.Open() != 0 {
		t.Errorf("session still open after deletion")
	}

	got, err := worker.LoadSession(ctx, storage, "g", "c")
	if err != nil {
		t.Fatalf("failed to load session: %v", err)
	}
	expected := worker.Session{
		ChannelID: "c",
		GuildID:   "g",
		CreatorID: "u",
		Names:     []string{"🔊 u", "игры"},
		CreatedAt: at(0),
		DeletedAt: at(10),
		Limits:    []worker.LimitChange{{Limit: 5, By: "u", At: at(1)}},
		PrivacyChanges: []worker.PrivacyChange{
			{Private: true, By: "u", At: at(2)},
			{Private: false, By: "u", At: at(4)},
		},
	}
	if diff := cmp.Diff(expected, got); diff != "" {
		t.Errorf("session mismatch (-want +got):\n%s", diff)
	}
}

func TestArchiverWithoutCreation(t *testing.T) {
	ctx := context.Background()
	storage := datalayer.NewMemoryStorage()
	archiver := worker.NewArchiver(storage)

	err := archiver.HandleEvents(ctx, events.Event{Type: events.RoomDeleted, ChannelID: "c", GuildID: "g", UserID: "u", Name: "🔊 u", At: at(5)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := worker.LoadSession(ctx, storage, "g", "c")
	if err != nil {
		t.Fatalf("failed to load session: %v", err)
	}
	if got.DeletedBy != "u" || !got.CreatedAt.IsZero() || len(got.Names) != 1 {
		t.Errorf("unexpected partial session %+v", got)
	}
}

func TestArchiverRetriesFailedStore(t *testing.T) {
	ctx := context.Background()
	storage := &failingStorage{MemoryStorage: datalayer.NewMemoryStorage(), failures: 1}
	archiver := worker.NewArchiver(storage)

	batch := []events.Event{
		{Type: events.RoomCreated, ChannelID: "c", GuildID: "g", UserID: "u", Name: "a", At: at(0)},
		{Type: events.RoomDeleted, ChannelID: "c", GuildID: "g", Name: "a", At: at(1)},
	}
	if err := archiver.HandleEvents(ctx, batch...); err == nil {
		t.Fatalf("expected the store failure to be returned")
	}
	// The consumer redelivers the whole batch.
	if err := archiver.HandleEvents(ctx, batch...); err != nil {
		t.Fatalf("unexpected error on retry: %v", err)
	}

	got, err := worker.LoadSession(ctx, storage, "g", "c")
	if err != nil {
		t.Fatalf("failed to load session: %v", err)
	}
	if diff := cmp.Diff([]string{"a"}, got.Names); diff != "" {
		t.Errorf("names mismatch after retry (-want +got):\n%s", diff)
	}
}

func TestArchiverKeepsArchivedSession(t *testing.T) {
	ctx := context.Background()
	storage := datalayer.NewMemoryStorage()
	archiver := worker.NewArchiver(storage)

	deleted := events.Event{Type: events.RoomDeleted, ChannelID: "c", GuildID: "g", Name: "a", At: at(1)}
	full := []events.Event{
		{Type: events.RoomCreated, ChannelID: "c", GuildID: "g", UserID: "u", Name: "a", At: at(0)},
		deleted,
	}
	if err := archiver.HandleEvents(ctx, full...); err != nil {
		t.Fatal(err)
	}
	// A redelivered deletion must not replace the full session.
	if err := archiver.HandleEvents(ctx, deleted); err != nil {
		t.Fatal(err)
	}

	got, err := worker.LoadSession(ctx, storage, "g", "c")
	if err != nil {
		t.Fatal(err)
	}
	if got.CreatorID != "u" {
		t.Errorf("archived session was overwritten: %+v", got)
	}
	if archiver.Open() != 0 {
		t.Errorf("expected no open sessions")
	}
}

func TestLoadSessionMissing(t *testing.T) {
	_, err := worker.LoadSession(context.Background(), datalayer.NewMemoryStorage(), "g", "c")
	if !errors.Is(err, datalayer.ErrBlobNotFound) {
		t.Errorf("expected ErrBlobNotFound, got %v", err)
	}
}
