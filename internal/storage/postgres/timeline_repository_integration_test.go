package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/orderstock/internal/domain"
)

func TestTimelineRepository_PostgresAppendAndList(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	timelineRepo := NewTimelineRepository(store)
	ctx := context.Background()

	createdAt := time.Now().UTC().Add(-time.Minute).Round(time.Microsecond)

	// Нулевое время подставляется при записи.
	if err := timelineRepo.Append(ctx, domain.TimelineEvent{
		AggregateType: domain.AggregateOrder,
		AggregateID:   "timeline-order",
		Type:          "order.validated",
	}); err != nil {
		t.Fatalf("append timeline event with zero occurred: %v", err)
	}

	if err := timelineRepo.Append(ctx, domain.TimelineEvent{
		AggregateType: domain.AggregateOrder,
		AggregateID:   "timeline-order",
		Type:          "order.created",
		Payload:       []byte(`{"lines":2}`),
		Occurred:      createdAt,
	}); err != nil {
		t.Fatalf("append timeline event with explicit occurred: %v", err)
	}

	// Та же пара id под другим типом агрегата не смешивается.
	if err := timelineRepo.Append(ctx, domain.TimelineEvent{
		AggregateType: domain.AggregateItem,
		AggregateID:   "timeline-order",
		Type:          "inventory.item_created",
		Occurred:      createdAt,
	}); err != nil {
		t.Fatalf("append item event: %v", err)
	}

	events, err := timelineRepo.List(ctx, domain.AggregateOrder, "timeline-order")
	if err != nil {
		t.Fatalf("list timeline events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 timeline events, got %d", len(events))
	}
	if events[0].Type != "order.created" || events[1].Type != "order.validated" {
		t.Fatalf("events should be sorted by occurred asc: %+v", events)
	}
	if string(events[0].Payload) != `{"lines":2}` {
		t.Fatalf("unexpected payload: %s", events[0].Payload)
	}
}

func TestTimelineRepository_PostgresUnknownAggregate(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	timelineRepo := NewTimelineRepository(store)

	events, err := timelineRepo.List(context.Background(), domain.AggregateItem, "missing-item")
	if err != nil {
		t.Fatalf("list for missing aggregate should not fail: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected no events for missing aggregate, got %d", len(events))
	}
}
