package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation возвращается при некорректных входных данных; агрегат при этом не загружался.
	ErrValidation = errors.New("validation failed")
	// ErrInvariantViolation возвращается, когда агрегат отклонил операцию. Состояние не изменилось.
	ErrInvariantViolation = errors.New("invariant violation")
	// ErrStockViolation возвращается, если операция нарушает инварианты складского остатка.
	ErrStockViolation = errors.New("stock violation")
	// ErrInvalidTransition сигнализирует о запрещённом переходе статуса заказа.
	ErrInvalidTransition = errors.New("invalid order status transition")
	// ErrItemInactive возвращается для операций над деактивированным товаром.
	ErrItemInactive = errors.New("item is inactive")
	// ErrDuplicate: агрегат с таким ключом уже существует.
	ErrDuplicate = errors.New("duplicate aggregate")
	// ErrNotFound возвращается, если агрегат не найден в репозитории.
	ErrNotFound = errors.New("not found")
	// ErrConcurrencyConflict сигнализирует о конфликте версий при сохранении.
	ErrConcurrencyConflict = errors.New("concurrency conflict")
	// ErrIdempotencyKeyRequired возвращается для пустого ключа.
	ErrIdempotencyKeyRequired = errors.New("idempotency key is required")
	// ErrIdempotencyRequestHashRequired возвращается, если запись ключа пришла без хеша тела запроса.
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	// ErrIdempotencyKeyAlreadyExists: ключ уже занят запросом с тем же хешем.
	ErrIdempotencyKeyAlreadyExists = errors.New("idempotency key already exists")
	// ErrIdempotencyHashMismatch: ключ переиспользован для другого запроса.
	ErrIdempotencyHashMismatch = errors.New("idempotency key reused with different request")
	// ErrIdempotencyKeyNotFound: запись идемпотентности не найдена.
	ErrIdempotencyKeyNotFound = errors.New("idempotency key not found")
	// ErrOutboxPublish оборачивает ошибки публикации сообщений из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
	// ErrPaymentDeclined: платёж отклонён провайдером.
	ErrPaymentDeclined = errors.New("payment declined")
)

// ErrorKind — категория ошибки, по которой вызывающая сторона выбирает реакцию.
type ErrorKind string

const (
	KindValidation  ErrorKind = "validation"
	KindInvariant   ErrorKind = "invariant"
	KindNotFound    ErrorKind = "not_found"
	KindConcurrency ErrorKind = "concurrency"
	KindUnexpected  ErrorKind = "unexpected"
)

// KindOf классифицирует ошибку. Для nil возвращает пустую строку.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrConcurrencyConflict):
		return KindConcurrency
	case errors.Is(err, ErrInvariantViolation):
		return KindInvariant
	default:
		return KindUnexpected
	}
}

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict)
}

// IsNotFound проверяет, что агрегат не найден.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// ValidationError описывает некорректное поле входных данных.
type ValidationError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NewValidationError используется value objects.
func NewValidationError(field string, value any, reason string) *ValidationError {
	return &ValidationError{Field: field, Value: value, Reason: reason}
}

// StockViolationError содержит запрошенное количество и остатки на момент отказа.
type StockViolationError struct {
	ItemID    string
	Operation string
	Requested int
	Available int
	Reserved  int
}

func (e *StockViolationError) Error() string {
	if e.ItemID == "" {
		return fmt.Sprintf("stock %s rejected: requested %d, available %d, reserved %d",
			e.Operation, e.Requested, e.Available, e.Reserved)
	}
	return fmt.Sprintf("stock %s rejected for item %s: requested %d, available %d, reserved %d",
		e.Operation, e.ItemID, e.Requested, e.Available, e.Reserved)
}

func (e *StockViolationError) Is(target error) bool {
	return target == ErrStockViolation || target == ErrInvariantViolation
}

// InvalidTransitionError возвращается при попытке перевести заказ в статус не из допустимого предшественника.
type InvalidTransitionError struct {
	OrderID string
	From    OrderStatus
	To      OrderStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("order %s: cannot transition from %s to %s", e.OrderID, e.From, e.To)
}

func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition || target == ErrInvariantViolation
}

// RuleError — нарушение бизнес-правила, не связанного со складом или статусом.
type RuleError struct {
	Rule   string
	Detail string
	cause  error
}

func (e *RuleError) Error() string {
	return fmt.Sprintf("rule %s violated: %s", e.Rule, e.Detail)
}

func (e *RuleError) Is(target error) bool {
	return target == ErrInvariantViolation || (e.cause != nil && target == e.cause)
}

func (e *RuleError) Unwrap() error {
	return e.cause
}

// NewItemInactiveError возвращает отказ для операций над деактивированным товаром.
func NewItemInactiveError(itemID string) *RuleError {
	return &RuleError{Rule: "item_active", Detail: fmt.Sprintf("item %s is inactive", itemID), cause: ErrItemInactive}
}

// NewDuplicateError сообщает о нарушении уникальности ключа.
func NewDuplicateError(rule, detail string) *RuleError {
	return &RuleError{Rule: rule, Detail: detail, cause: ErrDuplicate}
}

// NewPaymentDeclinedError: провайдер отказал в списании, заказ остаётся в payment_processing.
func NewPaymentDeclinedError(orderID string, cause error) *RuleError {
	return &RuleError{Rule: "payment_accepted", Detail: fmt.Sprintf("payment for order %s declined: %v", orderID, cause), cause: ErrPaymentDeclined}
}

// NotFoundError возвращается, если агрегата с указанным идентификатором нет.
type NotFoundError struct {
	Aggregate string
	ID        string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Aggregate, e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// ConcurrencyConflictError — версия в хранилище отличается от версии, прочитанной при загрузке.
// ActualVersion равен -1, если хранилище не сообщает текущую версию.
type ConcurrencyConflictError struct {
	Aggregate       string
	ID              string
	ExpectedVersion int64
	ActualVersion   int64
}

func (e *ConcurrencyConflictError) Error() string {
	if e.ActualVersion < 0 {
		return fmt.Sprintf("%s %s: version %d is stale", e.Aggregate, e.ID, e.ExpectedVersion)
	}
	return fmt.Sprintf("%s %s: expected version %d, actual %d", e.Aggregate, e.ID, e.ExpectedVersion, e.ActualVersion)
}

func (e *ConcurrencyConflictError) Is(target error) bool {
	return target == ErrConcurrencyConflict
}
