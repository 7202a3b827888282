// Package ordering обрабатывает команды жизненного цикла заказа.
package ordering

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/orderstock/internal/domain"
	"github.com/vladislavdragonenkov/orderstock/internal/service/command"
)

// Имена команд в метриках, логах и трейсах.
const (
	CommandCreateOrder     = "create_order"
	CommandValidateOrder   = "validate_order"
	CommandStartPayment    = "start_payment"
	CommandCompletePayment = "complete_payment"
	CommandShipOrder       = "ship_order"
	CommandDeliverOrder    = "deliver_order"
	CommandCancelOrder     = "cancel_order"
	CommandDeleteOrder     = "delete_order"
)

// Service — обработчики команд над заказами.
type Service struct {
	orders   domain.OrderRepository
	timeline domain.TimelineRepository
	payments domain.PaymentGateway
	carrier  domain.ShippingCarrier
	pipeline *command.Pipeline
	now      func() time.Time
	newID    func() string
}

// Option настраивает Service.
type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func WithIDGenerator(newID func() string) Option {
	return func(s *Service) {
		s.newID = newID
	}
}

func WithTimeline(timeline domain.TimelineRepository) Option {
	return func(s *Service) {
		s.timeline = timeline
	}
}

// NewService создаёт обработчики. Платёжный шлюз и служба доставки обязательны.
func NewService(
	orders domain.OrderRepository,
	payments domain.PaymentGateway,
	carrier domain.ShippingCarrier,
	pipeline *command.Pipeline,
	options ...Option,
) *Service {
	s := &Service{
		orders:   orders,
		payments: payments,
		carrier:  carrier,
		pipeline: pipeline,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// OrderLineInput описывает позицию нового заказа.
type OrderLineInput struct {
	ProductID string          `json:"product_id" validate:"required"`
	Quantity  int             `json:"quantity" validate:"gt=0,lte=2147483647"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// CreateOrderInput содержит данные нового заказа.
type CreateOrderInput struct {
	CustomerID string           `json:"customer_id" validate:"required,max=100"`
	Currency   string           `json:"currency" validate:"required,len=3"`
	Lines      []OrderLineInput `json:"lines" validate:"required,min=1,dive"`
}

// OrderIDInput используется командами без параметров.
type OrderIDInput struct {
	OrderID string `json:"order_id" validate:"required"`
}

// CancelOrderInput — отмена с причиной.
type CancelOrderInput struct {
	OrderID string `json:"order_id" validate:"required"`
	Reason  string `json:"reason" validate:"max=500"`
}

// CreateOrder создаёт заказ в статусе pending.
func (s *Service) CreateOrder(ctx context.Context, in CreateOrderInput) (OrderView, error) {
	order, err := command.Create(ctx, s.pipeline, command.Creation[*domain.Order]{
		Command:   CommandCreateOrder,
		Aggregate: domain.AggregateOrder,
		Input:     in,
		Build: func() (*domain.Order, error) {
			lines := make([]domain.NewOrderLine, 0, len(in.Lines))
			for _, l := range in.Lines {
				lines = append(lines, domain.NewOrderLine{
					ID:        s.newID(),
					ProductID: l.ProductID,
					Quantity:  l.Quantity,
					UnitPrice: l.UnitPrice,
				})
			}
			return domain.NewOrder(domain.NewOrderParams{
				ID:         s.newID(),
				CustomerID: in.CustomerID,
				Currency:   in.Currency,
				Lines:      lines,
			}, s.now())
		},
		Create: s.orders.Create,
	})
	return view(order), err
}

// ValidateOrder переводит заказ в validated либо отменяет пустой заказ.
func (s *Service) ValidateOrder(ctx context.Context, in OrderIDInput) (OrderView, error) {
	return s.update(ctx, CommandValidateOrder, in.OrderID, in, func(order *domain.Order) error {
		return order.Validate(s.now())
	})
}

func (s *Service) StartPayment(ctx context.Context, in OrderIDInput) (OrderView, error) {
	return s.update(ctx, CommandStartPayment, in.OrderID, in, func(order *domain.Order) error {
		return order.StartPayment(s.now())
	})
}

// CompletePayment списывает оплату у провайдера и отмечает заказ оплаченным.
// Списание выполняется только если переход в paid допустим. Ключ списания привязан
// к загруженной версии заказа: конкурирующие вызовы и повтор после конфликта версий
// получают одну и ту же квитанцию, а не второе списание.
func (s *Service) CompletePayment(ctx context.Context, in OrderIDInput) (OrderView, error) {
	return s.update(ctx, CommandCompletePayment, in.OrderID, in, func(order *domain.Order) error {
		if err := order.CheckTransition(domain.OrderStatusPaid); err != nil {
			return err
		}
		receipt, err := s.payments.Charge(ctx, domain.ChargeRequest{
			OrderID:        order.ID(),
			Amount:         order.Total(),
			Currency:       order.Currency(),
			IdempotencyKey: chargeKey(order),
		})
		if err != nil {
			if errors.Is(err, domain.ErrPaymentDeclined) {
				return domain.NewPaymentDeclinedError(order.ID(), err)
			}
			return fmt.Errorf("charge payment: %w", err)
		}
		return order.MarkAsPaid(receipt.Reference, s.now())
	})
}

func chargeKey(order *domain.Order) string {
	return fmt.Sprintf("%s:v%d", order.ID(), order.Version())
}

// ShipOrder передаёт оплаченный заказ в доставку.
func (s *Service) ShipOrder(ctx context.Context, in OrderIDInput) (OrderView, error) {
	return s.update(ctx, CommandShipOrder, in.OrderID, in, func(order *domain.Order) error {
		if err := order.CheckTransition(domain.OrderStatusShipped); err != nil {
			return err
		}
		shipment, err := s.carrier.Dispatch(ctx, order.ID(), order.CustomerID())
		if err != nil {
			return fmt.Errorf("dispatch shipment: %w", err)
		}
		return order.MarkAsShipped(shipment.TrackingNumber, s.now())
	})
}

func (s *Service) DeliverOrder(ctx context.Context, in OrderIDInput) (OrderView, error) {
	return s.update(ctx, CommandDeliverOrder, in.OrderID, in, func(order *domain.Order) error {
		return order.MarkAsDelivered(s.now())
	})
}

func (s *Service) CancelOrder(ctx context.Context, in CancelOrderInput) (OrderView, error) {
	return s.update(ctx, CommandCancelOrder, in.OrderID, in, func(order *domain.Order) error {
		return order.Cancel(in.Reason, s.now())
	})
}

// DeleteOrder выполняет административное мягкое удаление.
func (s *Service) DeleteOrder(ctx context.Context, in OrderIDInput) (OrderView, error) {
	return s.update(ctx, CommandDeleteOrder, in.OrderID, in, func(order *domain.Order) error {
		return order.Delete(s.now())
	})
}

func (s *Service) update(ctx context.Context, name, id string, in any, apply func(*domain.Order) error) (OrderView, error) {
	order, err := command.Execute(ctx, s.pipeline, command.Update[*domain.Order]{
		Command:   name,
		Aggregate: domain.AggregateOrder,
		ID:        id,
		Input:     in,
		Load:      s.orders.Get,
		Apply:     apply,
		Save:      s.orders.Save,
	})
	return view(order), err
}
