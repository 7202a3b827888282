package integration

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/vladislavdragonenkov/orderstock/internal/domain"
	"github.com/vladislavdragonenkov/orderstock/internal/service/command"
	"github.com/vladislavdragonenkov/orderstock/internal/service/inventory"
	"github.com/vladislavdragonenkov/orderstock/internal/service/ordering"
	"github.com/vladislavdragonenkov/orderstock/internal/service/outbox"
	"github.com/vladislavdragonenkov/orderstock/internal/service/payment"
	"github.com/vladislavdragonenkov/orderstock/internal/service/shipping"
	"github.com/vladislavdragonenkov/orderstock/internal/storage/memory"
	"github.com/vladislavdragonenkov/orderstock/internal/storage/postgres"
)

// capturePublisher запоминает всё, что outbox worker доставил брокеру.
type capturePublisher struct {
	mu       sync.Mutex
	messages []domain.OutboxMessage
}

func (p *capturePublisher) Publish(_ context.Context, msg domain.OutboxMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, msg)
	return nil
}

func (p *capturePublisher) eventTypesFor(aggregateID string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	var types []string
	for _, msg := range p.messages {
		if msg.AggregateID == aggregateID {
			types = append(types, msg.EventType)
		}
	}
	return types
}

// flakyOutbox отказывает в Enqueue, пока выставлен failing.
type flakyOutbox struct {
	domain.OutboxRepository
	failing atomic.Bool
}

func (o *flakyOutbox) Enqueue(ctx context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	if o.failing.Load() {
		return domain.OutboxMessage{}, errors.New("outbox unavailable")
	}
	return o.OutboxRepository.Enqueue(ctx, msg)
}

type repositories struct {
	items      domain.ItemRepository
	orders     domain.OrderRepository
	outbox     domain.OutboxRepository
	timeline   domain.TimelineRepository
	transactor domain.Transactor
}

// OrderLifecycleTestSuite прогоняет сценарии заказа и склада через сервисы, outbox и worker.
type OrderLifecycleTestSuite struct {
	suite.Suite

	newRepositories func(t *testing.T) repositories

	repos     repositories
	outbox    *flakyOutbox
	inventory *inventory.Service
	ordering  *ordering.Service
	worker    *outbox.Worker
	delivered *capturePublisher
}

func (s *OrderLifecycleTestSuite) SetupTest() {
	logger := log.New()
	logger.SetOutput(io.Discard)
	entry := log.NewEntry(logger)

	s.repos = s.newRepositories(s.T())
	s.outbox = &flakyOutbox{OutboxRepository: s.repos.outbox}
	pipeline := command.NewPipeline(outbox.NewEventRecorder(s.outbox, s.repos.timeline, entry),
		command.WithLogger(entry),
		command.WithTransactor(s.repos.transactor),
	)

	s.inventory = inventory.NewService(s.repos.items, pipeline, inventory.WithTimeline(s.repos.timeline))
	s.ordering = ordering.NewService(s.repos.orders, payment.NewStubGateway(), shipping.NewStubCarrier(),
		pipeline, ordering.WithTimeline(s.repos.timeline))
	s.delivered = &capturePublisher{}
	s.worker = outbox.NewWorker(s.repos.outbox, s.delivered, outbox.WithLogger(entry), outbox.WithBatchSize(1000))
}

func (s *OrderLifecycleTestSuite) createItem(ctx context.Context, available int) inventory.ItemView {
	item, err := s.inventory.CreateItem(ctx, inventory.CreateItemInput{
		SKU:       "SKU-" + uuid.NewString()[:8],
		Name:      "Mechanical keyboard",
		Price:     decimal.RequireFromString("50.00"),
		Currency:  "USD",
		Category:  "peripherals",
		Available: available,
	})
	s.Require().NoError(err)
	return item
}

func (s *OrderLifecycleTestSuite) createOrder(ctx context.Context, item inventory.ItemView, quantity int) ordering.OrderView {
	order, err := s.ordering.CreateOrder(ctx, ordering.CreateOrderInput{
		CustomerID: "customer-" + uuid.NewString()[:8],
		Currency:   "USD",
		Lines: []ordering.OrderLineInput{
			{ProductID: item.ID, Quantity: quantity, UnitPrice: decimal.RequireFromString("50.00")},
		},
	})
	s.Require().NoError(err)
	return order
}

func (s *OrderLifecycleTestSuite) TestFulfilledOrderConsumesReservedStock() {
	ctx := context.Background()
	item := s.createItem(ctx, 10)
	order := s.createOrder(ctx, item, 3)
	s.Equal(domain.OrderStatusPending, order.Status)
	s.Equal("150.00", order.Total.String())

	_, err := s.inventory.ReserveStock(ctx, inventory.StockMovementInput{ItemID: item.ID, Quantity: 3})
	s.Require().NoError(err)

	id := ordering.OrderIDInput{OrderID: order.ID}
	steps := []func(context.Context, ordering.OrderIDInput) (ordering.OrderView, error){
		s.ordering.ValidateOrder,
		s.ordering.StartPayment,
		s.ordering.CompletePayment,
		s.ordering.ShipOrder,
	}
	for _, step := range steps {
		_, err := step(ctx, id)
		s.Require().NoError(err)
	}

	stock, err := s.inventory.CommitStock(ctx, inventory.StockMovementInput{ItemID: item.ID, Quantity: 3})
	s.Require().NoError(err)
	s.Equal(7, stock.Available)
	s.Equal(0, stock.Reserved)

	delivered, err := s.ordering.DeliverOrder(ctx, id)
	s.Require().NoError(err)
	s.Equal(domain.OrderStatusDelivered, delivered.Status)

	history, err := s.ordering.OrderHistory(ctx, order.ID)
	s.Require().NoError(err)
	s.Len(history, 5)

	s.worker.ProcessOnce(ctx)
	s.Equal([]string{
		"order.created", "order.validated", "order.payment_started", "order.paid", "order.shipped",
	}, s.delivered.eventTypesFor(order.ID))
	s.Equal([]string{
		"inventory.item_created", "inventory.stock_reserved", "inventory.stock_committed",
	}, s.delivered.eventTypesFor(item.ID))
}

func (s *OrderLifecycleTestSuite) TestCancelledOrderReleasesReservation() {
	ctx := context.Background()
	item := s.createItem(ctx, 5)
	order := s.createOrder(ctx, item, 2)

	_, err := s.inventory.ReserveStock(ctx, inventory.StockMovementInput{ItemID: item.ID, Quantity: 2})
	s.Require().NoError(err)
	_, err = s.ordering.ValidateOrder(ctx, ordering.OrderIDInput{OrderID: order.ID})
	s.Require().NoError(err)

	cancelled, err := s.ordering.CancelOrder(ctx, ordering.CancelOrderInput{OrderID: order.ID, Reason: "customer changed mind"})
	s.Require().NoError(err)
	s.Equal(domain.OrderStatusCancelled, cancelled.Status)
	s.Equal("customer changed mind", cancelled.CancellationReason)

	stock, err := s.inventory.ReleaseStock(ctx, inventory.StockMovementInput{ItemID: item.ID, Quantity: 2})
	s.Require().NoError(err)
	s.Equal(5, stock.Available)
	s.Equal(0, stock.Reserved)

	_, err = s.ordering.ShipOrder(ctx, ordering.OrderIDInput{OrderID: order.ID})
	s.Require().ErrorIs(err, domain.ErrInvalidTransition)
}

func (s *OrderLifecycleTestSuite) TestOverReservationIsRejectedWithoutSideEffects() {
	ctx := context.Background()
	item := s.createItem(ctx, 2)

	_, err := s.inventory.ReserveStock(ctx, inventory.StockMovementInput{ItemID: item.ID, Quantity: 3})
	s.Require().ErrorIs(err, domain.ErrStockViolation)
	s.Equal(domain.KindInvariant, domain.KindOf(err))

	current, err := s.inventory.GetItem(ctx, item.ID)
	s.Require().NoError(err)
	s.Equal(2, current.Available)
	s.Equal(0, current.Reserved)
	s.Equal(item.Version, current.Version)

	history, err := s.inventory.ItemHistory(ctx, item.ID)
	s.Require().NoError(err)
	s.Len(history, 1)
}

func (s *OrderLifecycleTestSuite) TestDeactivatedItemRejectsReservation() {
	ctx := context.Background()
	item := s.createItem(ctx, 4)

	_, err := s.inventory.DeactivateItem(ctx, inventory.ItemIDInput{ItemID: item.ID})
	s.Require().NoError(err)

	_, err = s.inventory.ReserveStock(ctx, inventory.StockMovementInput{ItemID: item.ID, Quantity: 1})
	s.Require().ErrorIs(err, domain.ErrItemInactive)

	_, err = s.inventory.ActivateItem(ctx, inventory.ItemIDInput{ItemID: item.ID})
	s.Require().NoError(err)
	reserved, err := s.inventory.ReserveStock(ctx, inventory.StockMovementInput{ItemID: item.ID, Quantity: 1})
	s.Require().NoError(err)
	s.Equal(1, reserved.Reserved)
}

func (s *OrderLifecycleTestSuite) TestDeletedOrderDisappearsFromCustomerListing() {
	ctx := context.Background()
	item := s.createItem(ctx, 1)
	order := s.createOrder(ctx, item, 1)

	_, err := s.ordering.CancelOrder(ctx, ordering.CancelOrderInput{OrderID: order.ID})
	s.Require().NoError(err)
	deleted, err := s.ordering.DeleteOrder(ctx, ordering.OrderIDInput{OrderID: order.ID})
	s.Require().NoError(err)
	s.Equal(domain.OrderStatusDeleted, deleted.Status)

	orders, err := s.ordering.ListOrders(ctx, ordering.ListOrdersQuery{CustomerID: order.CustomerID})
	s.Require().NoError(err)
	s.Empty(orders)
}

func (s *OrderLifecycleTestSuite) TestFailedOutboxWriteLeavesNoCommittedState() {
	ctx := context.Background()
	item := s.createItem(ctx, 10)

	s.outbox.failing.Store(true)
	_, err := s.inventory.ReserveStock(ctx, inventory.StockMovementInput{ItemID: item.ID, Quantity: 2})
	s.Require().Error(err)
	s.Equal(domain.KindUnexpected, domain.KindOf(err))

	current, err := s.inventory.GetItem(ctx, item.ID)
	s.Require().NoError(err)
	s.Equal(0, current.Reserved)
	s.Equal(item.Version, current.Version)

	history, err := s.inventory.ItemHistory(ctx, item.ID)
	s.Require().NoError(err)
	s.Len(history, 1)

	s.outbox.failing.Store(false)
	_, err = s.inventory.ReserveStock(ctx, inventory.StockMovementInput{ItemID: item.ID, Quantity: 2})
	s.Require().NoError(err)
	_, err = s.inventory.ReleaseStock(ctx, inventory.StockMovementInput{ItemID: item.ID, Quantity: 1})
	s.Require().NoError(err)

	s.worker.ProcessOnce(ctx)
	s.Equal([]string{
		"inventory.item_created", "inventory.stock_reserved", "inventory.stock_released",
	}, s.delivered.eventTypesFor(item.ID))
}

func TestOrderLifecycleInMemory(t *testing.T) {
	suite.Run(t, &OrderLifecycleTestSuite{
		newRepositories: func(*testing.T) repositories {
			return repositories{
				items:      memory.NewItemRepository(),
				orders:     memory.NewOrderRepository(),
				outbox:     memory.NewOutboxRepository(),
				timeline:   memory.NewTimelineRepository(),
				transactor: memory.NewTransactor(),
			}
		},
	})
}

func TestOrderLifecyclePostgres(t *testing.T) {
	dsn := os.Getenv("ORDERSTOCK_POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("ORDERSTOCK_POSTGRES_TEST_DSN is not set")
	}

	ctx := context.Background()
	store, err := postgres.Open(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.MigrateUp(ctx, 0))

	suite.Run(t, &OrderLifecycleTestSuite{
		newRepositories: func(*testing.T) repositories {
			return repositories{
				items:      postgres.NewItemRepository(store),
				orders:     postgres.NewOrderRepository(store),
				outbox:     postgres.NewOutboxRepository(store),
				timeline:   postgres.NewTimelineRepository(store),
				transactor: postgres.NewTransactor(store),
			}
		},
	})
}
