package inventory

import (
	"context"
	"time"

	"github.com/vladislavdragonenkov/orderstock/internal/domain"
	"github.com/vladislavdragonenkov/orderstock/internal/service/command"
)

// ItemView — представление товара для клиентов.
type ItemView struct {
	ID          string       `json:"id"`
	SKU         string       `json:"sku"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Price       domain.Money `json:"price"`
	Currency    string       `json:"currency"`
	Available   int          `json:"available"`
	Reserved    int          `json:"reserved"`
	Category    string       `json:"category"`
	Active      bool         `json:"active"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
	Version     int64        `json:"version"`
}

// ListItemsQuery — фильтр и окно выборки.
type ListItemsQuery struct {
	Category   string
	ActiveOnly bool
	Limit      int
	Offset     int
}

func view(item *domain.Item) ItemView {
	if item == nil {
		return ItemView{}
	}
	return viewFromSnapshot(item.Snapshot())
}

func viewFromSnapshot(s domain.ItemSnapshot) ItemView {
	price, _ := domain.NewMoney(s.Price)
	return ItemView{
		ID:          s.ID,
		SKU:         s.SKU,
		Name:        s.Name,
		Description: s.Description,
		Price:       price,
		Currency:    s.Currency,
		Available:   s.Available,
		Reserved:    s.Reserved,
		Category:    s.Category,
		Active:      s.Active,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
		Version:     s.Version,
	}
}

func (s *Service) GetItem(ctx context.Context, id string) (ItemView, error) {
	item, err := s.items.Get(ctx, id)
	if err != nil {
		return ItemView{}, err
	}
	return view(item), nil
}

// GetItemBySKU нормализует артикул так же, как при создании товара.
func (s *Service) GetItemBySKU(ctx context.Context, raw string) (ItemView, error) {
	sku, err := domain.NewSKU(raw)
	if err != nil {
		return ItemView{}, err
	}
	item, err := s.items.GetBySKU(ctx, sku)
	if err != nil {
		return ItemView{}, err
	}
	return view(item), nil
}

func (s *Service) ListItems(ctx context.Context, q ListItemsQuery) ([]ItemView, error) {
	snapshots, err := s.items.List(ctx, domain.ItemFilter{
		Category:   q.Category,
		ActiveOnly: q.ActiveOnly,
		Page:       domain.Page{Limit: q.Limit, Offset: q.Offset},
	})
	if err != nil {
		return nil, err
	}
	out := make([]ItemView, 0, len(snapshots))
	for _, snapshot := range snapshots {
		out = append(out, viewFromSnapshot(snapshot))
	}
	return out, nil
}

// ItemHistory возвращает журнал событий существующего товара.
func (s *Service) ItemHistory(ctx context.Context, id string) ([]command.HistoryEntry, error) {
	if _, err := s.items.Get(ctx, id); err != nil {
		return nil, err
	}
	return command.History(ctx, s.timeline, domain.AggregateItem, id)
}
