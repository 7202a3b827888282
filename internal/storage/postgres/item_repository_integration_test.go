package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/orderstock/internal/domain"
)

func TestItemRepository_PostgresCreateGetAndSave(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewItemRepository(store)
	ctx := context.Background()

	now := time.Now().UTC().Round(time.Microsecond)
	item := sampleItem(t, "item-1", "WID-001", 10, now)
	require.NoError(t, repo.Create(ctx, item))

	loaded, err := repo.Get(ctx, "item-1")
	require.NoError(t, err)
	require.Equal(t, item.Snapshot().Price.String(), loaded.Snapshot().Price.String())
	require.Equal(t, int64(1), loaded.Version())

	bySKU, err := repo.GetBySKU(ctx, loaded.SKU())
	require.NoError(t, err)
	require.Equal(t, "item-1", bySKU.ID())

	require.NoError(t, loaded.ReserveStock(4, now.Add(time.Second)))
	require.NoError(t, repo.Save(ctx, loaded, 1))

	reloaded, err := repo.Get(ctx, "item-1")
	require.NoError(t, err)
	require.Equal(t, 6, reloaded.Stock().Available())
	require.Equal(t, 4, reloaded.Stock().Reserved())
	require.Equal(t, int64(2), reloaded.Version())
	require.Empty(t, reloaded.PendingEvents())
}

func TestItemRepository_PostgresConflictsAndDuplicates(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewItemRepository(store)
	ctx := context.Background()
	now := time.Now().UTC().Round(time.Microsecond)

	require.NoError(t, repo.Create(ctx, sampleItem(t, "item-1", "WID-001", 10, now)))

	err := repo.Create(ctx, sampleItem(t, "item-2", "WID-001", 5, now))
	require.ErrorIs(t, err, domain.ErrDuplicate)
	require.Contains(t, err.Error(), "sku_unique")

	first, err := repo.Get(ctx, "item-1")
	require.NoError(t, err)
	second, err := repo.Get(ctx, "item-1")
	require.NoError(t, err)

	require.NoError(t, first.ReserveStock(3, now))
	require.NoError(t, second.ReserveStock(2, now))
	require.NoError(t, repo.Save(ctx, first, 1))

	err = repo.Save(ctx, second, 1)
	var conflict *domain.ConcurrencyConflictError
	require.True(t, errors.As(err, &conflict), "expected conflict, got %v", err)
	require.Equal(t, int64(2), conflict.ActualVersion)

	missing := sampleItem(t, "item-missing", "WID-404", 1, now)
	require.ErrorIs(t, repo.Save(ctx, missing, 1), domain.ErrNotFound)

	_, err = repo.Get(ctx, "item-missing")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestItemRepository_PostgresListFilters(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewItemRepository(store)
	ctx := context.Background()
	now := time.Now().UTC().Round(time.Microsecond)

	require.NoError(t, repo.Create(ctx, sampleItem(t, "item-b", "WID-B", 1, now)))
	require.NoError(t, repo.Create(ctx, sampleItem(t, "item-a", "WID-A", 1, now)))

	inactive := sampleItem(t, "item-c", "WID-C", 1, now)
	require.NoError(t, repo.Create(ctx, inactive))
	inactive.Deactivate(now)
	require.NoError(t, repo.Save(ctx, inactive, 1))

	all, err := repo.List(ctx, domain.ItemFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, "WID-A", all[0].SKU)

	active, err := repo.List(ctx, domain.ItemFilter{Category: "widgets", ActiveOnly: true})
	require.NoError(t, err)
	require.Len(t, active, 2)

	page, err := repo.List(ctx, domain.ItemFilter{Page: domain.Page{Limit: 1, Offset: 1}})
	require.NoError(t, err)
	require.Len(t, page, 1)
	require.Equal(t, "WID-B", page[0].SKU)
}
