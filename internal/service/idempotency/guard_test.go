package idempotency_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/orderstock/internal/domain"
	"github.com/vladislavdragonenkov/orderstock/internal/service/idempotency"
	"github.com/vladislavdragonenkov/orderstock/internal/storage/memory"
)

func TestGuard_FirstRequestProceeds(t *testing.T) {
	guard := idempotency.NewGuard(memory.NewIdempotencyRepository(), 0, nil)

	replay, err := guard.Begin(context.Background(), "key-1", "hash-1")

	require.NoError(t, err)
	assert.Nil(t, replay)
}

func TestGuard_InProgressAndReplay(t *testing.T) {
	ctx := context.Background()
	guard := idempotency.NewGuard(memory.NewIdempotencyRepository(), 0, nil)
	_, err := guard.Begin(ctx, "key-1", "hash-1")
	require.NoError(t, err)

	_, err = guard.Begin(ctx, "key-1", "hash-1")
	assert.ErrorIs(t, err, idempotency.ErrRequestInProgress)

	guard.Finish(ctx, "key-1", http.StatusCreated, []byte(`{"id":"item-1"}`))

	replay, err := guard.Begin(ctx, "key-1", "hash-1")
	require.NoError(t, err)
	require.NotNil(t, replay)
	assert.Equal(t, http.StatusCreated, replay.Status)
	assert.JSONEq(t, `{"id":"item-1"}`, string(replay.Body))
}

func TestGuard_FailedResponseIsReplayed(t *testing.T) {
	ctx := context.Background()
	guard := idempotency.NewGuard(memory.NewIdempotencyRepository(), 0, nil)
	_, err := guard.Begin(ctx, "key-1", "hash-1")
	require.NoError(t, err)
	guard.Finish(ctx, "key-1", http.StatusUnprocessableEntity, []byte(`{"error":{}}`))

	replay, err := guard.Begin(ctx, "key-1", "hash-1")

	require.NoError(t, err)
	assert.Equal(t, http.StatusUnprocessableEntity, replay.Status)
}

func TestGuard_HashMismatch(t *testing.T) {
	ctx := context.Background()
	guard := idempotency.NewGuard(memory.NewIdempotencyRepository(), 0, nil)
	_, err := guard.Begin(ctx, "key-1", "hash-1")
	require.NoError(t, err)

	_, err = guard.Begin(ctx, "key-1", "hash-2")

	assert.True(t, errors.Is(err, domain.ErrIdempotencyHashMismatch))
}

func TestGuard_ExpiredKeyRunsRequestAgain(t *testing.T) {
	ctx := context.Background()
	clock := time.Now().UTC()
	repo := memory.NewIdempotencyRepository(memory.WithIdempotencyClock(func() time.Time { return clock }))
	logger, hook := logtest.NewNullLogger()
	guard := idempotency.NewGuard(repo, time.Minute, log.NewEntry(logger))

	_, err := guard.Begin(ctx, "key-1", "hash-1")
	require.NoError(t, err)
	guard.Finish(ctx, "key-1", http.StatusCreated, []byte(`{"id":"order-1"}`))

	replay, err := guard.Begin(ctx, "key-1", "hash-1")
	require.NoError(t, err)
	require.NotNil(t, replay)
	assert.Empty(t, hook.AllEntries())

	clock = clock.Add(time.Hour)
	replay, err = guard.Begin(ctx, "key-1", "hash-2")
	require.NoError(t, err)
	assert.Nil(t, replay, "expired key must not replay the old response")

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, log.InfoLevel, entry.Level)
	assert.Equal(t, "key-1", entry.Data["idempotency_key"])

	_, err = guard.Begin(ctx, "key-1", "hash-2")
	assert.ErrorIs(t, err, idempotency.ErrRequestInProgress)
}

func TestRequestHash(t *testing.T) {
	a := idempotency.RequestHash(http.MethodPost, "/v1/items", []byte(`{"sku":"A"}`))
	b := idempotency.RequestHash(http.MethodPost, "/v1/items", []byte(`{"sku":"A"}`))
	c := idempotency.RequestHash(http.MethodPost, "/v1/items", []byte(`{"sku":"B"}`))
	d := idempotency.RequestHash(http.MethodPost, "/v1/item", []byte(`s{"sku":"A"}`))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.NotEqual(t, a, d)
	assert.Len(t, a, 64)
}
