package repository_test

import (
	"errors"
	"testing"
	"time"

	"github.com/glizzus/voice-rooms/internal/datalayer"
	"github.com/glizzus/voice-rooms/internal/repository"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

// exerciseRoomRepository runs the behaviour every RoomRepository must share.
func exerciseRoomRepository(t *testing.T, repo repository.RoomRepository) {
	t.Helper()
	ctx := t.Context()

	base := time.Date(2024, 3, 1, 18, 0, 0, 0, time.UTC)
	rooms := []repository.Room{
		{ChannelID: "300", GuildID: "1", CreatorID: "10", Name: "🔊 Alice", CreatedAt: base.Add(2 * time.Minute)},
		{ChannelID: "100", GuildID: "1", CreatorID: "11", Name: "🔊 Bob", CreatedAt: base},
		{ChannelID: "200", GuildID: "2", CreatorID: "12", Name: "🔊 Carol", CreatedAt: base.Add(time.Minute)},
	}
	for _, room := range rooms {
		if err := repo.Save(ctx, room); err != nil {
			t.Fatalf("failed to save room %s: %v", room.ChannelID, err)
		}
	}

	timeEqual := cmp.Comparer(func(a, b time.Time) bool { return a.Equal(b) })

	t.Run("Get returns a saved room", func(t *testing.T) {
		got, err := repo.Get(ctx, "300")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if diff := cmp.Diff(rooms[0], got, timeEqual); diff != "" {
			t.Errorf("Get() mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("Get of an unknown room is ErrRoomNotFound", func(t *testing.T) {
		_, err := repo.Get(ctx, "missing")
		if !errors.Is(err, repository.ErrRoomNotFound) {
			t.Errorf("expected ErrRoomNotFound, got %v", err)
		}
	})

	t.Run("List filters by guild and orders by creation", func(t *testing.T) {
		got, err := repo.List(ctx, "1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := []repository.Room{rooms[1], rooms[0]}
		if diff := cmp.Diff(want, got, timeEqual); diff != "" {
			t.Errorf("List() mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("List with no guild returns every room", func(t *testing.T) {
		got, err := repo.List(ctx, "")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := []repository.Room{rooms[1], rooms[2], rooms[0]}
		if diff := cmp.Diff(want, got, timeEqual); diff != "" {
			t.Errorf("List() mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("SetControlMessage and Rename update the room", func(t *testing.T) {
		if err := repo.SetControlMessage(ctx, "200", "999"); err != nil {
			t.Fatalf("SetControlMessage: %v", err)
		}
		if err := repo.Rename(ctx, "200", "quiet corner"); err != nil {
			t.Fatalf("Rename: %v", err)
		}
		got, err := repo.Get(ctx, "200")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.ControlMessageID != "999" || got.Name != "quiet corner" {
			t.Errorf("room not updated: %+v", got)
		}
	})

	t.Run("updates of an unknown room fail", func(t *testing.T) {
		if err := repo.Rename(ctx, "missing", "x"); !errors.Is(err, repository.ErrRoomNotFound) {
			t.Errorf("Rename: expected ErrRoomNotFound, got %v", err)
		}
		if err := repo.SetControlMessage(ctx, "missing", "x"); !errors.Is(err, repository.ErrRoomNotFound) {
			t.Errorf("SetControlMessage: expected ErrRoomNotFound, got %v", err)
		}
	})

	t.Run("Delete removes a room exactly once", func(t *testing.T) {
		deleted, err := repo.Delete(ctx, "100")
		if err != nil || !deleted {
			t.Fatalf("first Delete = (%v, %v), want (true, nil)", deleted, err)
		}
		deleted, err = repo.Delete(ctx, "100")
		if err != nil || deleted {
			t.Fatalf("second Delete = (%v, %v), want (false, nil)", deleted, err)
		}
		got, err := repo.List(ctx, "1")
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		ids := make([]string, 0, len(got))
		for _, room := range got {
			ids = append(ids, room.ChannelID)
		}
		if diff := cmp.Diff([]string{"300"}, ids, cmpopts.EquateEmpty()); diff != "" {
			t.Errorf("remaining rooms mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestMemoryRoomRepository(t *testing.T) {
	exerciseRoomRepository(t, repository.NewMemoryRoomRepository())
}

func TestPostgresRoomRepository(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping postgres container test in short mode")
	}

	ctx := t.Context()
	postgresContainer, err := postgres.Run(
		ctx,
		"postgres",
		postgres.WithDatabase("voicerooms"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}
	defer func() {
		if err := postgresContainer.Terminate(ctx); err != nil {
			t.Fatalf("failed to terminate postgres container: %v", err)
		}
	}()

	connStr, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatalf("failed to create postgres pool: %v", err)
	}
	defer pool.Close()

	if err := datalayer.MigratePostgres(pool); err != nil {
		t.Fatalf("failed to migrate postgres: %v", err)
	}

	exerciseRoomRepository(t, repository.NewPostgresRoomRepository(pool))
}
