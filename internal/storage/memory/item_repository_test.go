package memory_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/orderstock/internal/domain"
	"github.com/vladislavdragonenkov/orderstock/internal/storage/memory"
)

var now = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func newItem(t *testing.T, id, sku string, available int) *domain.Item {
	t.Helper()
	item, err := domain.NewItem(domain.NewItemParams{
		ID:        id,
		SKU:       sku,
		Name:      "Item " + id,
		Price:     decimal.NewFromInt(10),
		Currency:  "USD",
		Category:  "tools",
		Available: available,
	}, now)
	if err != nil {
		t.Fatalf("new item: %v", err)
	}
	return item
}

func TestItemRepository_CreateGet(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewItemRepository()
	item := newItem(t, "item-1", "SKU-1", 5)

	if err := repo.Create(ctx, item); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	stored, err := repo.Get(ctx, "item-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if stored == item {
		t.Fatal("get must return an independent copy")
	}
	if stored.Stock().Available() != 5 || len(stored.PendingEvents()) != 0 {
		t.Fatalf("unexpected stored item %+v", stored.Snapshot())
	}

	sku, _ := domain.NewSKU("sku-1")
	bySKU, err := repo.GetBySKU(ctx, sku)
	if err != nil || bySKU.ID() != "item-1" {
		t.Fatalf("get by sku: %v", err)
	}

	if _, err := repo.Get(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestItemRepository_CreateDuplicate(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewItemRepository()
	if err := repo.Create(ctx, newItem(t, "item-1", "SKU-1", 1)); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if err := repo.Create(ctx, newItem(t, "item-2", "SKU-1", 1)); !errors.Is(err, domain.ErrDuplicate) {
		t.Fatalf("expected duplicate sku, got %v", err)
	}
	if err := repo.Create(ctx, newItem(t, "item-1", "SKU-2", 1)); !errors.Is(err, domain.ErrDuplicate) {
		t.Fatalf("expected duplicate id, got %v", err)
	}
}

func TestItemRepository_SaveChecksVersion(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewItemRepository()
	if err := repo.Create(ctx, newItem(t, "item-1", "SKU-1", 10)); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	first, _ := repo.Get(ctx, "item-1")
	second, _ := repo.Get(ctx, "item-1")

	if err := first.ReserveStock(2, now); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := repo.Save(ctx, first, 1); err != nil {
		t.Fatalf("save first: %v", err)
	}

	if err := second.AdjustStock(50, now); err != nil {
		t.Fatalf("adjust: %v", err)
	}
	err := repo.Save(ctx, second, 1)
	var conflict *domain.ConcurrencyConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if conflict.ExpectedVersion != 1 || conflict.ActualVersion != 2 {
		t.Fatalf("unexpected conflict details %+v", conflict)
	}

	stored, _ := repo.Get(ctx, "item-1")
	if stored.Stock().Available() != 8 || stored.Stock().Reserved() != 2 {
		t.Fatalf("losing write must not be applied, got %+v", stored.Snapshot())
	}
}

// Сценарий: две параллельные корректировки одной версии, выигрывает ровно одна.
func TestItemRepository_ConcurrentSaveExactlyOneWins(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewItemRepository()
	if err := repo.Create(ctx, newItem(t, "item-1", "SKU-1", 10)); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	const writers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		wins      int
		conflicts int
	)
	loaded := make([]*domain.Item, writers)
	for i := range loaded {
		loaded[i], _ = repo.Get(ctx, "item-1")
	}

	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			item := loaded[i]
			if err := item.AdjustStock(100+i, now); err != nil {
				t.Errorf("adjust: %v", err)
				return
			}
			err := repo.Save(ctx, item, 1)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case domain.IsVersionConflict(err):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if wins != 1 || conflicts != writers-1 {
		t.Fatalf("wins=%d conflicts=%d", wins, conflicts)
	}
	stored, _ := repo.Get(ctx, "item-1")
	if stored.Version() != 2 {
		t.Fatalf("expected version 2, got %d", stored.Version())
	}
}

func TestItemRepository_List(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewItemRepository()
	for _, sku := range []string{"C-1", "A-1", "B-1"} {
		if err := repo.Create(ctx, newItem(t, "id-"+sku, sku, 1)); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	inactive, _ := repo.Get(ctx, "id-B-1")
	inactive.Deactivate(now)
	if err := repo.Save(ctx, inactive, 1); err != nil {
		t.Fatalf("save: %v", err)
	}

	all, err := repo.List(ctx, domain.ItemFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 || all[0].SKU != "A-1" || all[2].SKU != "C-1" {
		t.Fatalf("unexpected list %+v", all)
	}

	active, _ := repo.List(ctx, domain.ItemFilter{ActiveOnly: true})
	if len(active) != 2 {
		t.Fatalf("expected 2 active items, got %d", len(active))
	}

	page, _ := repo.List(ctx, domain.ItemFilter{Page: domain.Page{Limit: 1, Offset: 1}})
	if len(page) != 1 || page[0].SKU != "B-1" {
		t.Fatalf("unexpected page %+v", page)
	}

	empty, _ := repo.List(ctx, domain.ItemFilter{Category: "other"})
	if len(empty) != 0 {
		t.Fatalf("expected no items, got %d", len(empty))
	}
}
