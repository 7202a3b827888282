package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/orderstock/internal/domain"
)

// orderRepositoryInMemory — простая in-memory реализация OrderRepository.
type orderRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.OrderSnapshot
}

// NewOrderRepository возвращает in-memory репозиторий для локальной разработки и тестов.
func NewOrderRepository() domain.OrderRepository {
	return &orderRepositoryInMemory{
		items: make(map[string]domain.OrderSnapshot),
	}
}

// Create сохраняет новый заказ, если ID ещё не занят.
func (r *orderRepositoryInMemory) Create(ctx context.Context, order *domain.Order) error {
	snapshot := order.Snapshot()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[snapshot.ID]; exists {
		return domain.NewDuplicateError("order_id_unique", "order "+snapshot.ID+" already exists")
	}
	r.items[snapshot.ID] = snapshot
	onRollback(ctx, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.items, snapshot.ID)
	})
	return nil
}

// Get возвращает заказ или *domain.NotFoundError.
func (r *orderRepositoryInMemory) Get(_ context.Context, id string) (*domain.Order, error) {
	r.mu.RLock()
	snapshot, ok := r.items[id]
	r.mu.RUnlock()

	if !ok {
		return nil, &domain.NotFoundError{Aggregate: domain.AggregateOrder, ID: id}
	}
	return domain.RestoreOrder(snapshot)
}

// Save перезаписывает заказ, проверяя версию (optimistic locking).
func (r *orderRepositoryInMemory) Save(ctx context.Context, order *domain.Order, expectedVersion int64) error {
	snapshot := order.Snapshot()

	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.items[snapshot.ID]
	if !ok {
		return &domain.NotFoundError{Aggregate: domain.AggregateOrder, ID: snapshot.ID}
	}
	if current.Version != expectedVersion {
		return &domain.ConcurrencyConflictError{
			Aggregate:       domain.AggregateOrder,
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

// ListByCustomer возвращает заказы клиента без удалённых, новые первыми.
func (r *orderRepositoryInMemory) ListByCustomer(_ context.Context, customerID string, page domain.Page) ([]domain.OrderSnapshot, error) {
	return r.filter(page, func(o domain.OrderSnapshot) bool {
		return o.CustomerID == customerID && o.Status != domain.OrderStatusDeleted
	}), nil
}

func (r *orderRepositoryInMemory) ListByStatus(_ context.Context, status domain.OrderStatus, page domain.Page) ([]domain.OrderSnapshot, error) {
	return r.filter(page, func(o domain.OrderSnapshot) bool {
		return o.Status == status
	}), nil
}

func (r *orderRepositoryInMemory) List(_ context.Context, page domain.Page) ([]domain.OrderSnapshot, error) {
	return r.filter(page, func(domain.OrderSnapshot) bool { return true }), nil
}

func (r *orderRepositoryInMemory) filter(page domain.Page, keep func(domain.OrderSnapshot) bool) []domain.OrderSnapshot {
	r.mu.RLock()
	result := make([]domain.OrderSnapshot, 0, len(r.items))
	for _, order := range r.items {
		if keep(order) {
			result = append(result, cloneOrderSnapshot(order))
		}
	}
	r.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})
	return paginate(result, page.Normalize())
}

func cloneOrderSnapshot(src domain.OrderSnapshot) domain.OrderSnapshot {
	dst := src
	dst.Lines = append([]domain.OrderLineSnapshot(nil), src.Lines...)
	return dst
}

var _ domain.OrderRepository = (*orderRepositoryInMemory)(nil)
