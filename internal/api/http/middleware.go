package httpapi

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderstock/internal/domain"
	"github.com/vladislavdragonenkov/orderstock/internal/metrics"
	"github.com/vladislavdragonenkov/orderstock/internal/service/idempotency"
)

// Заголовки протокола идемпотентности и трассировки запросов.
const (
	HeaderIdempotencyKey = "Idempotency-Key"
	HeaderReplayed       = "Idempotent-Replayed"
	HeaderRequestID      = "X-Request-Id"

	maxIdempotencyKeyLength = 255
)

// requestLogger пишет access log через logrus и проставляет X-Request-Id.
func requestLogger(logger *log.Entry) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		reqID := c.GetHeader(HeaderRequestID)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Header(HeaderRequestID, reqID)

		c.Next()

		entry := logger.WithFields(log.Fields{
			"request_id": reqID,
			"method":     c.Request.Method,
			"route":      c.FullPath(),
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"latency_ms": time.Since(start).Milliseconds(),
			"client_ip":  c.ClientIP(),
		})
		switch status := c.Writer.Status(); {
		case status >= http.StatusInternalServerError:
			entry.Error("http request")
		case status >= http.StatusBadRequest:
			entry.Info("http request")
		default:
			entry.Debug("http request")
		}
	}
}

// observe пишет метрики по шаблону маршрута, а не по фактическому пути.
func observe(m *metrics.HTTPMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		m.Observe(c.Request.Method, c.FullPath(), c.Writer.Status(), time.Since(start))
	}
}

// capturingWriter копирует тело ответа, чтобы сохранить его под ключом идемпотентности.
type capturingWriter struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *capturingWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *capturingWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

func mutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}

// idempotent обрабатывает заголовок Idempotency-Key у изменяющих запросов.
// Запрос без заголовка выполняется как обычно.
func idempotent(guard *idempotency.Guard, logger *log.Entry) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" || !mutating(c.Request.Method) {
			c.Next()
			return
		}
		if len(key) > maxIdempotencyKeyLength {
			abortWithStatus(c, http.StatusBadRequest, string(domain.KindValidation), "idempotency key is too long")
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			abortWithStatus(c, http.StatusBadRequest, string(domain.KindValidation), "cannot read request body")
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		hash := idempotency.RequestHash(c.Request.Method, c.Request.URL.Path, body)
		replay, err := guard.Begin(c.Request.Context(), key, hash)
		switch {
		case errors.Is(err, idempotency.ErrRequestInProgress):
			abortWithStatus(c, http.StatusConflict, KindIdempotency, err.Error())
			return
		case errors.Is(err, domain.ErrIdempotencyHashMismatch):
			abortWithStatus(c, http.StatusUnprocessableEntity, KindIdempotency, err.Error())
			return
		case err != nil:
			logger.WithError(err).WithField("idempotency_key", key).Error("idempotency guard failed")
			abortWithStatus(c, http.StatusInternalServerError, string(domain.KindUnexpected), "internal error")
			return
		case replay != nil:
			c.Header(HeaderReplayed, "true")
			c.Data(replay.Status, "application/json; charset=utf-8", replay.Body)
			c.Abort()
			return
		}

		writer := &capturingWriter{ResponseWriter: c.Writer}
		c.Writer = writer
		c.Next()

		// Клиент мог отключиться, а итог всё равно нужно сохранить.
		guard.Finish(context.WithoutCancel(c.Request.Context()), key, writer.Status(), writer.body.Bytes())
	}
}
