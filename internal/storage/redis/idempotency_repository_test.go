package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/orderstock/internal/domain"
)

func openRedisForIntegrationTest(t *testing.T) goredis.UniversalClient {
	t.Helper()

	addr := os.Getenv("ORDERSTOCK_REDIS_TEST_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	client := goredis.NewClient(&goredis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		t.Skipf("redis is not available for integration tests: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

// testRepository использует уникальный префикс, чтобы параллельные прогоны не пересекались.
func testRepository(t *testing.T) (domain.IdempotencyRepository, goredis.UniversalClient, string) {
	t.Helper()

	client := openRedisForIntegrationTest(t)
	prefix := "orderstock-test:" + uuid.NewString() + ":"
	t.Cleanup(func() {
		ctx := context.Background()
		keys, err := client.Keys(ctx, prefix+"*").Result()
		if err == nil && len(keys) > 0 {
			client.Del(ctx, keys...)
		}
	})
	return NewIdempotencyRepository(client, prefix), client, prefix
}

func TestIdempotencyRepository_RedisCreateGetAndMarkDone(t *testing.T) {
	repo, client, prefix := testRepository(t)
	ctx := context.Background()

	ttl := time.Now().UTC().Add(2 * time.Hour).Round(time.Second)
	created, err := repo.CreateProcessing(ctx, "key-done", "hash-1", ttl)
	require.NoError(t, err)
	require.Equal(t, domain.IdempotencyStatusProcessing, created.Status)

	require.NoError(t, repo.MarkDone(ctx, "key-done", []byte(`{"result":"ok"}`), 201))

	got, err := repo.Get(ctx, "key-done")
	require.NoError(t, err)
	require.Equal(t, domain.IdempotencyStatusDone, got.Status)
	require.Equal(t, 201, got.HTTPStatus)
	require.JSONEq(t, `{"result":"ok"}`, string(got.ResponseBody))
	require.True(t, got.TTLAt.Equal(ttl))

	remaining, err := client.TTL(ctx, prefix+"key-done").Result()
	require.NoError(t, err)
	require.Greater(t, remaining, time.Hour, "completion must keep the key TTL")
}

func TestIdempotencyRepository_RedisConflictAndHashMismatch(t *testing.T) {
	repo, _, _ := testRepository(t)
	ctx := context.Background()
	ttl := time.Now().UTC().Add(time.Hour)

	_, err := repo.CreateProcessing(ctx, "key-conflict", "hash-a", ttl)
	require.NoError(t, err)

	_, err = repo.CreateProcessing(ctx, "key-conflict", "hash-a", ttl)
	require.ErrorIs(t, err, domain.ErrIdempotencyKeyAlreadyExists)

	existing, err := repo.CreateProcessing(ctx, "key-conflict", "hash-b", ttl)
	require.ErrorIs(t, err, domain.ErrIdempotencyHashMismatch)
	require.Equal(t, "hash-a", existing.RequestHash)
}

func TestIdempotencyRepository_RedisMissingAndInvalidKeys(t *testing.T) {
	repo, _, _ := testRepository(t)
	ctx := context.Background()

	_, err := repo.Get(ctx, "missing")
	require.ErrorIs(t, err, domain.ErrIdempotencyKeyNotFound)
	require.ErrorIs(t, repo.MarkFailed(ctx, "missing", nil, 500), domain.ErrIdempotencyKeyNotFound)

	_, err = repo.CreateProcessing(ctx, " ", "hash", time.Time{})
	require.ErrorIs(t, err, domain.ErrIdempotencyKeyRequired)
	_, err = repo.CreateProcessing(ctx, "key", "", time.Time{})
	require.ErrorIs(t, err, domain.ErrIdempotencyRequestHashRequired)

	removed, err := repo.DeleteExpired(ctx, time.Now(), 10)
	require.NoError(t, err)
	require.Zero(t, removed)
}

func TestIdempotencyRepository_RedisExpiresByTTL(t *testing.T) {
	repo, _, _ := testRepository(t)
	ctx := context.Background()

	_, err := repo.CreateProcessing(ctx, "key-short", "hash", time.Now().UTC().Add(50*time.Millisecond))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, err := repo.Get(ctx, "key-short")
		return err != nil
	}, 2*time.Second, 20*time.Millisecond)
}
