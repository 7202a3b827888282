package command

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/orderstock/internal/domain"
)

// HistoryEntry — событие из журнала агрегата в виде для клиентов.
type HistoryEntry struct {
	Type       string          `json:"type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// History читает журнал агрегата. Пустой журнал не считается ошибкой.
func History(ctx context.Context, timeline domain.TimelineRepository, aggregateType, aggregateID string) ([]HistoryEntry, error) {
	if timeline == nil {
		return []HistoryEntry{}, nil
	}
	events, err := timeline.List(ctx, aggregateType, aggregateID)
	if err != nil {
		return nil, fmt.Errorf("list %s history: %w", aggregateType, err)
	}
	out := make([]HistoryEntry, 0, len(events))
	for _, e := range events {
		entry := HistoryEntry{Type: e.Type, OccurredAt: e.Occurred}
		if json.Valid(e.Payload) {
			entry.Payload = json.RawMessage(e.Payload)
		}
		out = append(out, entry)
	}
	return out, nil
}
