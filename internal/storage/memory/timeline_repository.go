package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/orderstock/internal/domain"
)

// timelineEntry хранит событие с порядковым номером вставки: по нему снимается
// запись при откате транзакции.
type timelineEntry struct {
	seq   uint64
	event domain.TimelineEvent
}

// timelineRepositoryInMemory хранит историю агрегатов в памяти (для разработки/тестов).
type timelineRepositoryInMemory struct {
	mu     sync.RWMutex
	seq    uint64
	events map[string][]timelineEntry
}

// NewTimelineRepository создаёт in-memory реализацию TimelineRepository.
func NewTimelineRepository() domain.TimelineRepository {
	return &timelineRepositoryInMemory{events: make(map[string][]timelineEntry)}
}

func timelineKey(aggregateType, aggregateID string) string {
	return aggregateType + "/" + aggregateID
}

// Append добавляет событие; порядок по времени сохраняется, равные метки остаются в порядке вставки.
func (r *timelineRepositoryInMemory) Append(ctx context.Context, event domain.TimelineEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := timelineKey(event.AggregateType, event.AggregateID)
	r.seq++
	seq := r.seq
	event.Payload = append([]byte(nil), event.Payload...)

	events := append(r.events[key], timelineEntry{seq: seq, event: event})
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].event.Occurred.Before(events[j].event.Occurred)
	})
	r.events[key] = events

	onRollback(ctx, func() { r.remove(key, seq) })
	return nil
}

func (r *timelineRepositoryInMemory) remove(key string, seq uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	events := r.events[key]
	for i, entry := range events {
		if entry.seq == seq {
			r.events[key] = append(events[:i], events[i+1:]...)
			return
		}
	}
}

// List возвращает события агрегата в хронологическом порядке.
func (r *timelineRepositoryInMemory) List(_ context.Context, aggregateType, aggregateID string) ([]domain.TimelineEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := r.events[timelineKey(aggregateType, aggregateID)]
	result := make([]domain.TimelineEvent, len(entries))
	for i, entry := range entries {
		result[i] = entry.event
	}
	return result, nil
}

var _ domain.TimelineRepository = (*timelineRepositoryInMemory)(nil)
