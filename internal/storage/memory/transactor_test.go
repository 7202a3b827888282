package memory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/vladislavdragonenkov/orderstock/internal/domain"
	"github.com/vladislavdragonenkov/orderstock/internal/storage/memory"
)

func TestTransactor_RollbackRestoresEveryRepository(t *testing.T) {
	ctx := context.Background()
	items := memory.NewItemRepository()
	outbox := memory.NewOutboxRepository()
	timeline := memory.NewTimelineRepository()
	tx := memory.NewTransactor()

	if err := items.Create(ctx, newItem(t, "item-1", "SKU-1", 10)); err != nil {
		t.Fatalf("create: %v", err)
	}
	loaded, err := items.Get(ctx, "item-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if err := loaded.ReserveStock(4, now); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	failure := errors.New("timeline unavailable")
	err = tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := items.Save(ctx, loaded, 1); err != nil {
			return err
		}
		if err := items.Create(ctx, newItem(t, "item-2", "SKU-2", 1)); err != nil {
			return err
		}
		if _, err := outbox.Enqueue(ctx, domain.OutboxMessage{AggregateType: domain.AggregateItem, AggregateID: "item-1", EventType: "inventory.stock_reserved"}); err != nil {
			return err
		}
		if err := timeline.Append(ctx, domain.TimelineEvent{AggregateType: domain.AggregateItem, AggregateID: "item-1", Type: "inventory.stock_reserved", Occurred: now}); err != nil {
			return err
		}
		return failure
	})
	if !errors.Is(err, failure) {
		t.Fatalf("expected the failure to propagate, got %v", err)
	}

	current, err := items.Get(ctx, "item-1")
	if err != nil {
		t.Fatalf("get after rollback: %v", err)
	}
	if current.Version() != 1 || current.Stock().Reserved() != 0 {
		t.Fatalf("save must be rolled back, got version %d reserved %d", current.Version(), current.Stock().Reserved())
	}
	if _, err := items.Get(ctx, "item-2"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("created item must be rolled back, got %v", err)
	}
	sku, err := domain.NewSKU("SKU-2")
	if err != nil {
		t.Fatalf("sku: %v", err)
	}
	if _, err := items.GetBySKU(ctx, sku); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("sku index must be rolled back, got %v", err)
	}
	if pending := outbox.AllPending(); len(pending) != 0 {
		t.Fatalf("outbox must be empty after rollback, got %d", len(pending))
	}
	history, _ := timeline.List(ctx, domain.AggregateItem, "item-1")
	if len(history) != 0 {
		t.Fatalf("timeline must be empty after rollback, got %d", len(history))
	}

	// Откат не мешает следующему сохранению с той же версией.
	if err := items.Save(ctx, loaded, 1); err != nil {
		t.Fatalf("save after rollback: %v", err)
	}
}

func TestTransactor_CommitKeepsWrites(t *testing.T) {
	ctx := context.Background()
	orders := memory.NewOrderRepository()
	outbox := memory.NewOutboxRepository()
	tx := memory.NewTransactor()

	order := newOrder(t, "order-1", "customer-1", now)
	err := tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := orders.Create(ctx, order); err != nil {
			return err
		}
		// Вложенный вызов присоединяется к внешней транзакции.
		return tx.WithinTx(ctx, func(ctx context.Context) error {
			_, err := outbox.Enqueue(ctx, domain.OutboxMessage{AggregateType: domain.AggregateOrder, AggregateID: "order-1", EventType: "order.created"})
			return err
		})
	})
	if err != nil {
		t.Fatalf("within tx: %v", err)
	}

	if _, err := orders.Get(ctx, "order-1"); err != nil {
		t.Fatalf("order must be committed: %v", err)
	}
	if pending := outbox.AllPending(); len(pending) != 1 {
		t.Fatalf("expected 1 pending message, got %d", len(pending))
	}
}

func TestTransactor_RollbackOfOrderSave(t *testing.T) {
	ctx := context.Background()
	orders := memory.NewOrderRepository()
	tx := memory.NewTransactor()

	if err := orders.Create(ctx, newOrder(t, "order-1", "customer-1", now)); err != nil {
		t.Fatalf("create: %v", err)
	}
	loaded, err := orders.Get(ctx, "order-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if err := loaded.Validate(now); err != nil {
		t.Fatalf("validate: %v", err)
	}

	_ = tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := orders.Save(ctx, loaded, 1); err != nil {
			return err
		}
		return errors.New("outbox unavailable")
	})

	current, err := orders.Get(ctx, "order-1")
	if err != nil {
		t.Fatalf("get after rollback: %v", err)
	}
	if current.Status() != domain.OrderStatusPending || current.Version() != 1 {
		t.Fatalf("expected pending v1 after rollback, got %s v%d", current.Status(), current.Version())
	}
}
