// Package redis хранит ключи идемпотентности в Redis; срок жизни записей
// обеспечивается TTL ключа, а не фоновой очисткой.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/vladislavdragonenkov/orderstock/internal/domain"
)

const (
	// DefaultKeyPrefix отделяет ключи сервиса от чужих данных в общей базе Redis.
	DefaultKeyPrefix = "orderstock:idempotency:"

	opTimeout = 2 * time.Second
)

// completeScript перезаписывает запись, сохраняя оставшийся TTL; отсутствующий ключ не создаёт.
var completeScript = goredis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return 0
end
redis.call('SET', KEYS[1], ARGV[1], 'KEEPTTL')
return 1
`)

type storedRecord struct {
	RequestHash  string    `json:"request_hash"`
	ResponseBody []byte    `json:"response_body,omitempty"`
	HTTPStatus   int       `json:"http_status,omitempty"`
	Status       string    `json:"status"`
	TTLAt        time.Time `json:"ttl_at"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type idempotencyRepository struct {
	client goredis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewIdempotencyRepository создаёт Redis-реализацию IdempotencyRepository.
// Пустой prefix заменяется на DefaultKeyPrefix.
func NewIdempotencyRepository(client goredis.UniversalClient, prefix string) domain.IdempotencyRepository {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &idempotencyRepository{client: client, prefix: prefix, now: func() time.Time { return time.Now().UTC() }}
}

func (r *idempotencyRepository) redisKey(key string) string {
	return r.prefix + key
}

func (r *idempotencyRepository) CreateProcessing(ctx context.Context, key, requestHash string, ttlAt time.Time) (domain.IdempotencyRecord, error) {
	now := r.now()
	claim, err := domain.ClaimIdempotencyKey(key, requestHash, ttlAt, now)
	if err != nil {
		return domain.IdempotencyRecord{}, err
	}
	key, ttlAt = claim.Key, claim.TTLAt
	ttl := ttlAt.Sub(now)
	if ttl <= 0 {
		// Уже истёкшая запись сразу исчезла бы; держим её минимально возможное время.
		ttl = time.Millisecond
	}

	record := storedRecord{
		RequestHash: claim.RequestHash,
		Status:      string(domain.IdempotencyStatusProcessing),
		TTLAt:       ttlAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return domain.IdempotencyRecord{}, fmt.Errorf("encode idempotency record: %w", err)
	}

	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	created, err := r.client.SetNX(opCtx, r.redisKey(key), payload, ttl).Result()
	if err != nil {
		return domain.IdempotencyRecord{}, fmt.Errorf("create idempotency record: %w", err)
	}
	if !created {
		existing, getErr := r.Get(ctx, key)
		if getErr != nil {
			return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyAlreadyExists
		}
		// Живой ключ Redis держит запись до её ttl_at, поэтому уступить ключ она не может.
		if err := existing.CheckClaim(claim.RequestHash, now); err != nil {
			return existing, err
		}
		return existing, domain.ErrIdempotencyKeyAlreadyExists
	}

	return record.toDomain(key), nil
}

func (r *idempotencyRepository) Get(ctx context.Context, key string) (domain.IdempotencyRecord, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	}

	record, err := r.load(ctx, key)
	if err != nil {
		return domain.IdempotencyRecord{}, err
	}
	return record.toDomain(key), nil
}

func (r *idempotencyRepository) MarkDone(ctx context.Context, key string, responseBody []byte, httpStatus int) error {
	return r.markStatus(ctx, key, domain.IdempotencyStatusDone, responseBody, httpStatus)
}

func (r *idempotencyRepository) MarkFailed(ctx context.Context, key string, responseBody []byte, httpStatus int) error {
	return r.markStatus(ctx, key, domain.IdempotencyStatusFailed, responseBody, httpStatus)
}

// DeleteExpired ничего не делает: Redis удаляет ключи по TTL сам.
func (r *idempotencyRepository) DeleteExpired(context.Context, time.Time, int) (int, error) {
	return 0, nil
}

func (r *idempotencyRepository) markStatus(ctx context.Context, key string, status domain.IdempotencyStatus, responseBody []byte, httpStatus int) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrIdempotencyKeyRequired
	}

	record, err := r.load(ctx, key)
	if err != nil {
		return err
	}
	record.Status = string(status)
	record.ResponseBody = append([]byte(nil), responseBody...)
	record.HTTPStatus = httpStatus
	record.UpdatedAt = r.now()

	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode idempotency record: %w", err)
	}

	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	updated, err := completeScript.Run(opCtx, r.client, []string{r.redisKey(key)}, payload).Int()
	if err != nil {
		return fmt.Errorf("mark idempotency key status: %w", err)
	}
	if updated == 0 {
		return domain.ErrIdempotencyKeyNotFound
	}
	return nil
}

func (r *idempotencyRepository) load(ctx context.Context, key string) (storedRecord, error) {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	raw, err := r.client.Get(opCtx, r.redisKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return storedRecord{}, domain.ErrIdempotencyKeyNotFound
		}
		return storedRecord{}, fmt.Errorf("get idempotency record: %w", err)
	}

	var record storedRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return storedRecord{}, fmt.Errorf("decode idempotency record %s: %w", key, err)
	}
	if !domain.IdempotencyStatus(record.Status).Valid() {
		return storedRecord{}, fmt.Errorf("invalid idempotency status %q for key %s", record.Status, key)
	}
	return record, nil
}

func (s storedRecord) toDomain(key string) domain.IdempotencyRecord {
	return domain.IdempotencyRecord{
		Key:          key,
		RequestHash:  s.RequestHash,
		ResponseBody: append([]byte(nil), s.ResponseBody...),
		HTTPStatus:   s.HTTPStatus,
		Status:       domain.IdempotencyStatus(s.Status),
		TTLAt:        s.TTLAt,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
	}
}

var _ domain.IdempotencyRepository = (*idempotencyRepository)(nil)
