package e2e

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/glizzus/voice-rooms/internal/datalayer"
	"github.com/glizzus/voice-rooms/internal/generator"
	"github.com/glizzus/voice-rooms/internal/repository"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

// SnowflakeGenerator yields increasing Discord-sized ids.
type SnowflakeGenerator struct {
	counter atomic.Uint64
}

func (g *SnowflakeGenerator) Next() (string, error) {
	const min = 1e17
	g.counter.CompareAndSwap(0, min)
	return fmt.Sprintf("%d", g.counter.Add(1)), nil
}

var _ generator.Generator[string] = (*SnowflakeGenerator)(nil)

var seedOnce sync.Once

// SeedGlobalNoise fills the store with rooms of unrelated guilds, once per run.
func SeedGlobalNoise(t *testing.T, repo repository.RoomPersister) {
	t.Helper()
	seedOnce.Do(func() {
		ids := SnowflakeGenerator{}
		for i := range 100 {
			guildID, _ := ids.Next()
			channelID, _ := ids.Next()
			room := repository.Room{
				ChannelID: channelID,
				GuildID:   guildID,
				CreatorID: "1",
				Name:      fmt.Sprintf("🔊 noise-%d", i),
				CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
			}
			if err := repo.Save(t.Context(), room); err != nil {
				t.Fatalf("failed to save room: %v", err)
			}
		}
	})
}

var (
	postgresOnce      sync.Once
	postgresContainer *postgres.PostgresContainer
	connStr           string
	postgresErr       error

	redisOnce      sync.Once
	redisContainer *tcredis.RedisContainer
	redisURL       string
	redisErr       error

	wg sync.WaitGroup
)

// UsePostgres signals that the test is using Postgres as its database.
// This will either provision or reuse a Postgres container for the test.
// Do not expect a clean state in the database; it is shared across tests
// to simulate real-world usage.
func UsePostgres(t *testing.T) string {
	t.Helper()

	postgresOnce.Do(func() {
		ctx := context.Background()
		postgresContainer, postgresErr = postgres.Run(
			ctx,
			"postgres",
			postgres.WithDatabase("voicerooms"),
			postgres.WithUsername("user"),
			postgres.WithPassword("password"),
			postgres.BasicWaitStrategies(),
		)
		if postgresErr != nil {
			return
		}
		connStr, postgresErr = postgresContainer.ConnectionString(ctx)
		if postgresErr != nil {
			return
		}

		var pool *pgxpool.Pool
		pool, postgresErr = pgxpool.New(ctx, connStr)
		if postgresErr != nil {
			return
		}
		defer pool.Close()

		postgresErr = datalayer.MigratePostgres(pool)
	})

	if postgresErr != nil {
		t.Fatalf("failed to start postgres container: %v", postgresErr)
	}
	wg.Add(1)
	t.Cleanup(wg.Done)

	return connStr
}

// GetRepository creates a new PostgresRoomRepository for testing.
// It uses the provided connection string to connect to the database.
// It performs no modifications or migrations on the database schema.
func GetRepository(t *testing.T, connStr string) *repository.PostgresRoomRepository {
	t.Helper()
	pool, err := pgxpool.New(t.Context(), connStr)
	if err != nil {
		t.Fatalf("failed to create postgres pool: %v", err)
	}

	t.Cleanup(pool.Close)
	return repository.NewPostgresRoomRepository(pool)
}

// UseRedis provisions or reuses a Redis container and returns a client for it.
// The event stream is shared across tests.
func UseRedis(t *testing.T) *redis.Client {
	t.Helper()

	redisOnce.Do(func() {
		ctx := context.Background()
		redisContainer, redisErr = tcredis.Run(ctx, "redis:7-alpine")
		if redisErr != nil {
			return
		}
		redisURL, redisErr = redisContainer.ConnectionString(ctx)
	})

	if redisErr != nil {
		t.Fatalf("failed to start redis container: %v", redisErr)
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		t.Fatalf("failed to parse redis url: %v", err)
	}
	client := redis.NewClient(opts)
	wg.Add(1)
	t.Cleanup(func() {
		_ = client.Close()
		wg.Done()
	})
	return client
}

func TerminatePostgresForE2E() {
	wg.Wait()
	if postgresContainer != nil {
		err := postgresContainer.Terminate(context.Background())
		if err != nil {
			fmt.Printf("failed to terminate postgres container: %v", err)
		}
	}
}

func TerminateRedisForE2E() {
	wg.Wait()
	if redisContainer != nil {
		err := redisContainer.Terminate(context.Background())
		if err != nil {
			fmt.Printf("failed to terminate redis container: %v", err)
		}
	}
}
