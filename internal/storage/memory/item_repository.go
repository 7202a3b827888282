package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/orderstock/internal/domain"
)

// itemRepositoryInMemory хранит снимки товаров; каждый Get собирает новый агрегат.
type itemRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.ItemSnapshot
	bySKU map[string]string
}

// NewItemRepository возвращает in-memory репозиторий для локальной разработки и тестов.
func NewItemRepository() domain.ItemRepository {
	return &itemRepositoryInMemory{
		items: make(map[string]domain.ItemSnapshot),
		bySKU: make(map[string]string),
	}
}

// Create сохраняет новый товар, если свободны ID и SKU.
func (r *itemRepositoryInMemory) Create(ctx context.Context, item *domain.Item) error {
	snapshot := item.Snapshot()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[snapshot.ID]; exists {
		return domain.NewDuplicateError("item_id_unique", "item "+snapshot.ID+" already exists")
	}
	if _, exists := r.bySKU[snapshot.SKU]; exists {
		return domain.NewDuplicateError("sku_unique", "sku "+snapshot.SKU+" is already used")
	}
	r.items[snapshot.ID] = snapshot
	r.bySKU[snapshot.SKU] = snapshot.ID
	onRollback(ctx, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.items, snapshot.ID)
		delete(r.bySKU, snapshot.SKU)
	})
	return nil
}

// Get возвращает товар или *domain.NotFoundError.
func (r *itemRepositoryInMemory) Get(_ context.Context, id string) (*domain.Item, error) {
	r.mu.RLock()
	snapshot, ok := r.items[id]
	r.mu.RUnlock()

	if !ok {
		return nil, &domain.NotFoundError{Aggregate: domain.AggregateItem, ID: id}
	}
	return domain.RestoreItem(snapshot)
}

func (r *itemRepositoryInMemory) GetBySKU(ctx context.Context, sku domain.SKU) (*domain.Item, error) {
	r.mu.RLock()
	id, ok := r.bySKU[sku.String()]
	r.mu.RUnlock()

	if !ok {
		return nil, &domain.NotFoundError{Aggregate: domain.AggregateItem, ID: sku.String()}
	}
	return r.Get(ctx, id)
}

// Save перезаписывает товар, если версия в хранилище равна expectedVersion.
func (r *itemRepositoryInMemory) Save(ctx context.Context, item *domain.Item, expectedVersion int64) error {
	snapshot := item.Snapshot()

	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.items[snapshot.ID]
	if !ok {
		return &domain.NotFoundError{Aggregate: domain.AggregateItem, ID: snapshot.ID}
	}
	if current.Version != expectedVersion {
		return &domain.ConcurrencyConflictError{
			Aggregate:       domain.AggregateItem,
			ID:              snapshot.ID,
			ExpectedVersion: expectedVersion,
			ActualVersion:   current.Version,
		}
	}
	r.items[snapshot.ID] = snapshot
	onRollback(ctx, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.items[snapshot.ID].Version == snapshot.Version {
			r.items[snapshot.ID] = current
		}
	})
	return nil
}

// List возвращает товары, отсортированные по SKU.
func (r *itemRepositoryInMemory) List(_ context.Context, filter domain.ItemFilter) ([]domain.ItemSnapshot, error) {
	page := filter.Page.Normalize()

	r.mu.RLock()
	result := make([]domain.ItemSnapshot, 0, len(r.items))
	for _, item := range r.items {
		if filter.Category != "" && item.Category != filter.Category {
			continue
		}
		if filter.ActiveOnly && !item.Active {
			continue
		}
		result = append(result, item)
	}
	r.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		return result[i].SKU < result[j].SKU
	})
	return paginate(result, page), nil
}

func paginate[T any](items []T, page domain.Page) []T {
	if page.Offset >= len(items) {
		return []T{}
	}
	items = items[page.Offset:]
	if len(items) > page.Limit {
		items = items[:page.Limit]
	}
	return items
}

var _ domain.ItemRepository = (*itemRepositoryInMemory)(nil)
