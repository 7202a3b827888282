package ordering

import (
	"context"
	"time"

	"github.com/vladislavdragonenkov/orderstock/internal/domain"
	"github.com/vladislavdragonenkov/orderstock/internal/service/command"
)

// OrderLineView описывает позицию заказа в ответах.
type OrderLineView struct {
	ID        string       `json:"id"`
	ProductID string       `json:"product_id"`
	Quantity  int          `json:"quantity"`
	UnitPrice domain.Money `json:"unit_price"`
	Subtotal  domain.Money `json:"subtotal"`
}

// OrderView — представление заказа для клиентов.
type OrderView struct {
	ID                 string             `json:"id"`
	CustomerID         string             `json:"customer_id"`
	OrderDate          time.Time          `json:"order_date"`
	Status             domain.OrderStatus `json:"status"`
	Currency           string             `json:"currency"`
	Total              domain.Money       `json:"total"`
	Lines              []OrderLineView    `json:"lines"`
	CancellationReason string             `json:"cancellation_reason,omitempty"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
	Version            int64              `json:"version"`
}

// ListOrdersQuery выбирает заказы клиента, заказы в статусе либо все подряд.
// CustomerID имеет приоритет над Status.
type ListOrdersQuery struct {
	CustomerID string
	Status     string
	Limit      int
	Offset     int
}

func view(order *domain.Order) OrderView {
	if order == nil {
		return OrderView{}
	}
	lines := make([]OrderLineView, 0, len(order.Lines()))
	for _, l := range order.Lines() {
		lines = append(lines, OrderLineView{
			ID:        l.ID,
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
			Subtotal:  l.Subtotal(),
		})
	}
	return OrderView{
		ID:                 order.ID(),
		CustomerID:         order.CustomerID(),
		OrderDate:          order.OrderDate(),
		Status:             order.Status(),
		Currency:           order.Currency(),
		Total:              order.Total(),
		Lines:              lines,
		CancellationReason: order.CancellationReason(),
		CreatedAt:          order.CreatedAt(),
		UpdatedAt:          order.UpdatedAt(),
		Version:            order.Version(),
	}
}

func (s *Service) GetOrder(ctx context.Context, id string) (OrderView, error) {
	order, err := s.orders.Get(ctx, id)
	if err != nil {
		return OrderView{}, err
	}
	return view(order), nil
}

func (s *Service) ListOrders(ctx context.Context, q ListOrdersQuery) ([]OrderView, error) {
	page := domain.Page{Limit: q.Limit, Offset: q.Offset}

	var (
		snapshots []domain.OrderSnapshot
		err       error
	)
	switch {
	case q.CustomerID != "":
		snapshots, err = s.orders.ListByCustomer(ctx, q.CustomerID, page)
	case q.Status != "":
		status := domain.OrderStatus(q.Status)
		if !status.Valid() {
			return nil, domain.NewValidationError("status", q.Status, "unknown order status")
		}
		snapshots, err = s.orders.ListByStatus(ctx, status, page)
	default:
		snapshots, err = s.orders.List(ctx, page)
	}
	if err != nil {
		return nil, err
	}

	out := make([]OrderView, 0, len(snapshots))
	for _, snapshot := range snapshots {
		order, err := domain.RestoreOrder(snapshot)
		if err != nil {
			return nil, err
		}
		out = append(out, view(order))
	}
	return out, nil
}

// OrderHistory возвращает журнал событий существующего заказа.
func (s *Service) OrderHistory(ctx context.Context, id string) ([]command.HistoryEntry, error) {
	if _, err := s.orders.Get(ctx, id); err != nil {
		return nil, err
	}
	return command.History(ctx, s.timeline, domain.AggregateOrder, id)
}
