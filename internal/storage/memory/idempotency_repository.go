package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/orderstock/internal/domain"
)

// IdempotencyOption настраивает in-memory хранилище ключей.
type IdempotencyOption func(*idempotencyKeys)

// WithIdempotencyClock подменяет источник времени, по которому истекают ключи.
func WithIdempotencyClock(now func() time.Time) IdempotencyOption {
	return func(r *idempotencyKeys) { r.now = now }
}

// idempotencyKeys держит ключи идемпотентности в одной карте под мьютексом.
type idempotencyKeys struct {
	mu      sync.Mutex
	now     func() time.Time
	records map[string]domain.IdempotencyRecord
}

// NewIdempotencyRepository создаёт in-memory реализацию IdempotencyRepository.
func NewIdempotencyRepository(opts ...IdempotencyOption) domain.IdempotencyRepository {
	r := &idempotencyKeys{
		now:     func() time.Time { return time.Now().UTC() },
		records: make(map[string]domain.IdempotencyRecord),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CreateProcessing занимает ключ. Просроченную запись прежнего запроса заменяет
// новой и помечает её Reclaimed, не дожидаясь фоновой очистки.
func (r *idempotencyKeys) CreateProcessing(_ context.Context, key, requestHash string, ttlAt time.Time) (domain.IdempotencyRecord, error) {
	now := r.now()
	claim, err := domain.ClaimIdempotencyKey(key, requestHash, ttlAt, now)
	if err != nil {
		return domain.IdempotencyRecord{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if held, ok := r.records[claim.Key]; ok {
		if err := held.CheckClaim(claim.RequestHash, now); err != nil {
			return copyRecord(held), err
		}
		claim.Reclaimed = true
	}
	r.records[claim.Key] = claim
	return copyRecord(claim), nil
}

func (r *idempotencyKeys) Get(_ context.Context, key string) (domain.IdempotencyRecord, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.records[key]
	if !ok {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyNotFound
	}
	return copyRecord(record), nil
}

func (r *idempotencyKeys) MarkDone(_ context.Context, key string, responseBody []byte, httpStatus int) error {
	return r.finish(key, domain.IdempotencyStatusDone, responseBody, httpStatus)
}

func (r *idempotencyKeys) MarkFailed(_ context.Context, key string, responseBody []byte, httpStatus int) error {
	return r.finish(key, domain.IdempotencyStatusFailed, responseBody, httpStatus)
}

// DeleteExpired удаляет до limit просроченных записей; limit <= 0 снимает ограничение.
func (r *idempotencyKeys) DeleteExpired(_ context.Context, before time.Time, limit int) (int, error) {
	if before.IsZero() {
		before = r.now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for key, record := range r.records {
		if limit > 0 && removed >= limit {
			break
		}
		if record.Expired(before) {
			delete(r.records, key)
			removed++
		}
	}
	return removed, nil
}

func (r *idempotencyKeys) finish(key string, status domain.IdempotencyStatus, responseBody []byte, httpStatus int) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrIdempotencyKeyRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.records[key]
	if !ok {
		return domain.ErrIdempotencyKeyNotFound
	}
	record.Status = status
	record.ResponseBody = append([]byte(nil), responseBody...)
	record.HTTPStatus = httpStatus
	record.UpdatedAt = r.now()
	record.Reclaimed = false
	r.records[key] = record
	return nil
}

func copyRecord(src domain.IdempotencyRecord) domain.IdempotencyRecord {
	dst := src
	dst.ResponseBody = append([]byte(nil), src.ResponseBody...)
	return dst
}

var _ domain.IdempotencyRepository = (*idempotencyKeys)(nil)
