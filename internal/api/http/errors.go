package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vladislavdragonenkov/orderstock/internal/domain"
)

// Тело ответа с ошибкой: {"error": {"kind": ..., "message": ..., "details": {...}}}.
type errorResponse struct {
	Error errorPayload `json:"error"`
}

type errorPayload struct {
	Kind    string         `json:"kind"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// KindIdempotency — ошибки ключа идемпотентности, до вызова обработчика.
const KindIdempotency = "idempotency"

// StatusFor сопоставляет категорию ошибки с HTTP-статусом.
func StatusFor(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindInvariant:
		return http.StatusUnprocessableEntity
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindConcurrency:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// errorDetails раскрывает структурированные поля типизированных доменных ошибок.
func errorDetails(err error) map[string]any {
	var (
		validation *domain.ValidationError
		stock      *domain.StockViolationError
		transition *domain.InvalidTransitionError
		rule       *domain.RuleError
		notFound   *domain.NotFoundError
		conflict   *domain.ConcurrencyConflictError
	)
	switch {
	case errors.As(err, &validation):
		return map[string]any{"field": validation.Field, "reason": validation.Reason}
	case errors.As(err, &stock):
		return map[string]any{
			"item_id":   stock.ItemID,
			"operation": stock.Operation,
			"requested": stock.Requested,
			"available": stock.Available,
			"reserved":  stock.Reserved,
		}
	case errors.As(err, &transition):
		return map[string]any{"order_id": transition.OrderID, "from": transition.From, "to": transition.To}
	case errors.As(err, &rule):
		return map[string]any{"rule": rule.Rule}
	case errors.As(err, &notFound):
		return map[string]any{"aggregate": notFound.Aggregate, "id": notFound.ID}
	case errors.As(err, &conflict):
		details := map[string]any{
			"aggregate":        conflict.Aggregate,
			"id":               conflict.ID,
			"expected_version": conflict.ExpectedVersion,
		}
		if conflict.ActualVersion >= 0 {
			details["actual_version"] = conflict.ActualVersion
		}
		return details
	default:
		return nil
	}
}

// abortWithError пишет ошибку домена. Текст неожиданных ошибок клиенту не отдаётся.
func (h *handler) abortWithError(c *gin.Context, err error) {
	kind := domain.KindOf(err)
	status := StatusFor(kind)

	payload := errorPayload{Kind: string(kind), Message: err.Error(), Details: errorDetails(err)}
	if kind == domain.KindUnexpected {
		h.logger.WithError(err).WithField("route", c.FullPath()).Error("request failed")
		payload.Message = "internal error"
		payload.Details = nil
	}
	c.AbortWithStatusJSON(status, errorResponse{Error: payload})
}

func abortWithStatus(c *gin.Context, status int, kind, message string) {
	c.AbortWithStatusJSON(status, errorResponse{Error: errorPayload{Kind: kind, Message: message}})
}
