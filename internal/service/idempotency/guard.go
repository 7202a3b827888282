// Package idempotency обслуживает ключи идемпотентности: регистрацию запроса,
// воспроизведение сохранённого ответа и очистку просроченных ключей.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderstock/internal/domain"
)

// DefaultTTL используется, если срок жизни ключа не задан в конфигурации.
const DefaultTTL = 24 * time.Hour

// ErrRequestInProgress возвращается, пока запрос с тем же ключом ещё выполняется.
var ErrRequestInProgress = errors.New("request with the same idempotency key is still processing")

// Replay — сохранённый ответ на повторный запрос.
type Replay struct {
	Status int
	Body   []byte
}

// Guard регистрирует запросы по ключу и сохраняет их итог.
type Guard struct {
	repo   domain.IdempotencyRepository
	ttl    time.Duration
	now    func() time.Time
	logger *log.Entry
}

// NewGuard создаёт Guard. Нулевой ttl заменяется DefaultTTL.
func NewGuard(repo domain.IdempotencyRepository, ttl time.Duration, logger *log.Entry) *Guard {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = log.WithField("component", "idempotency-guard")
	}
	return &Guard{
		repo:   repo,
		ttl:    ttl,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger,
	}
}

// RequestHash считает отпечаток запроса по методу, пути и телу.
func RequestHash(method, path string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte{0})
	h.Write([]byte(path))
	h.Write([]byte{0})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// Begin занимает ключ под новый запрос.
// Возвращает (nil, nil), если запрос нужно выполнить, и *Replay, если ответ уже сохранён.
// Ключ, занятый другим запросом, даёт domain.ErrIdempotencyHashMismatch;
// незавершённый запрос с тем же ключом даёт ErrRequestInProgress.
func (g *Guard) Begin(ctx context.Context, key, requestHash string) (*Replay, error) {
	record, err := g.repo.CreateProcessing(ctx, key, requestHash, g.now().Add(g.ttl))
	if err == nil {
		if record.Reclaimed {
			g.logger.WithField("idempotency_key", key).Info("expired idempotency key reclaimed by a new request")
		}
		return nil, nil
	}
	if !errors.Is(err, domain.ErrIdempotencyKeyAlreadyExists) {
		return nil, err
	}

	switch record.Status {
	case domain.IdempotencyStatusProcessing:
		return nil, ErrRequestInProgress
	case domain.IdempotencyStatusDone, domain.IdempotencyStatusFailed:
		status := record.HTTPStatus
		if status == 0 {
			status = http.StatusInternalServerError
		}
		g.logger.WithFields(log.Fields{
			"idempotency_key": key,
			"status":          status,
		}).Debug("replaying stored response")
		return &Replay{Status: status, Body: record.ResponseBody}, nil
	default:
		return nil, fmt.Errorf("idempotency key %s has unknown status %q", key, record.Status)
	}
}

// Finish сохраняет итог запроса: 2xx как done, остальное как failed.
// Ошибка сохранения только логируется, ответ клиенту уже сформирован.
func (g *Guard) Finish(ctx context.Context, key string, status int, body []byte) {
	var err error
	if status >= 200 && status < 300 {
		err = g.repo.MarkDone(ctx, key, body, status)
	} else {
		err = g.repo.MarkFailed(ctx, key, body, status)
	}
	if err != nil {
		g.logger.WithError(err).WithField("idempotency_key", key).Warn("failed to store idempotent response")
	}
}
