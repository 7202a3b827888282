// Package command содержит общий конвейер обработчиков команд:
// загрузка агрегата, одна доменная операция, сохранение с проверкой версии
// и публикация накопленных событий.
package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vladislavdragonenkov/orderstock/internal/domain"
	"github.com/vladislavdragonenkov/orderstock/internal/metrics"
)

const tracerName = "github.com/vladislavdragonenkov/orderstock/internal/service/command"

// Результаты команды для метрик и логов.
const (
	ResultCommitted  = "committed"
	ResultNoop       = "noop"
	ResultValidation = "validation"
	ResultRejected   = "rejected"
	ResultNotFound   = "not_found"
	ResultConflict   = "conflict"
	ResultError      = "error"
)

// ErrEventsNotPublished означает, что изменения сохранены, а события публикатору не переданы.
var ErrEventsNotPublished = errors.New("events not published")

// PublishError возвращается вместе с сохранённым агрегатом, если конвейер работает без
// Transactor и публикация после сохранения не удалась. События остаются в буфере агрегата.
type PublishError struct {
	Aggregate string
	ID        string
	Err       error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("%s %s committed, events not published: %v", e.Aggregate, e.ID, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }

func (e *PublishError) Is(target error) bool { return target == ErrEventsNotPublished }

// Aggregate — то, что конвейер знает об агрегате.
type Aggregate interface {
	ID() string
	Version() int64
	PendingEvents() []domain.Event
	ClearEvents()
}

// Pipeline выполняет команды. Безопасен для конкурентного использования: состояния не хранит.
type Pipeline struct {
	publisher  domain.EventPublisher
	transactor domain.Transactor
	metrics   *metrics.CommandMetrics
	tracer    trace.Tracer
	logger    *log.Entry
}

// Option настраивает Pipeline.
type Option func(*Pipeline)

// WithLogger задаёт logger конвейера.
func WithLogger(logger *log.Entry) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithTransactor объединяет сохранение агрегата и публикацию его событий в одну транзакцию.
func WithTransactor(t domain.Transactor) Option {
	return func(p *Pipeline) {
		p.transactor = t
	}
}

// WithMetrics включает метрики команд.
func WithMetrics(m *metrics.CommandMetrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// WithTracer заменяет tracer из глобального провайдера.
func WithTracer(tracer trace.Tracer) Option {
	return func(p *Pipeline) {
		p.tracer = tracer
	}
}

// NewPipeline создаёт конвейер с публикатором событий.
func NewPipeline(publisher domain.EventPublisher, options ...Option) *Pipeline {
	p := &Pipeline{publisher: publisher}
	for _, option := range options {
		option(p)
	}
	if p.logger == nil {
		p.logger = log.WithField("component", "command-pipeline")
	}
	if p.tracer == nil {
		p.tracer = otel.Tracer(tracerName)
	}
	return p
}

// Update описывает команду над существующим агрегатом.
type Update[A Aggregate] struct {
	Command   string
	Aggregate string
	ID        string
	// Input проверяется по тегам `validate` до загрузки агрегата.
	Input any
	Load      func(ctx context.Context, id string) (A, error)
	// Apply вызывает ровно одну операцию агрегата.
	Apply func(agg A) error
	// Save обязан вернуть *domain.ConcurrencyConflictError, если версия в хранилище не равна expectedVersion.
	Save func(ctx context.Context, agg A, expectedVersion int64) error
}

// Creation описывает команду, создающую агрегат.
type Creation[A Aggregate] struct {
	Command   string
	Aggregate string
	Input     any
	Build     func() (A, error)
	Create    func(ctx context.Context, agg A) error
}

// Execute загружает агрегат, применяет операцию и сохраняет его с версией, прочитанной
// при загрузке. Повторов нет: конфликт версий возвращается вызывающему.
// Если операция не изменила версию, сохранение и публикация пропускаются.
func Execute[A Aggregate](ctx context.Context, p *Pipeline, u Update[A]) (A, error) {
	var zero A
	ctx, span := p.tracer.Start(ctx, "command "+u.Command, trace.WithAttributes(
		attribute.String("command.name", u.Command),
		attribute.String("aggregate.type", u.Aggregate),
		attribute.String("aggregate.id", u.ID),
	))
	defer span.End()
	run := p.begin(u.Command, u.Aggregate, u.ID, span)

	if u.Input != nil {
		if err := ValidateInput(u.Input); err != nil {
			return zero, run.fail(err)
		}
	}
	agg, err := u.Load(ctx, u.ID)
	if err != nil {
		return zero, run.fail(err)
	}
	expected := agg.Version()
	span.SetAttributes(attribute.Int64("aggregate.version", expected))

	if err := u.Apply(agg); err != nil {
		return zero, run.fail(err)
	}
	if agg.Version() == expected {
		run.done(ResultNoop)
		return agg, nil
	}

	err = p.commit(ctx, run, u.Aggregate, agg, func(ctx context.Context) error {
		return u.Save(ctx, agg, expected)
	})
	if err != nil {
		if errors.Is(err, ErrEventsNotPublished) {
			return agg, err
		}
		return zero, err
	}
	run.done(ResultCommitted)
	return agg, nil
}

// Create строит новый агрегат, сохраняет его и публикует события создания.
func Create[A Aggregate](ctx context.Context, p *Pipeline, c Creation[A]) (A, error) {
	var zero A
	ctx, span := p.tracer.Start(ctx, "command "+c.Command, trace.WithAttributes(
		attribute.String("command.name", c.Command),
		attribute.String("aggregate.type", c.Aggregate),
	))
	defer span.End()
	run := p.begin(c.Command, c.Aggregate, "", span)

	if c.Input != nil {
		if err := ValidateInput(c.Input); err != nil {
			return zero, run.fail(err)
		}
	}
	agg, err := c.Build()
	if err != nil {
		return zero, run.fail(err)
	}
	run.aggregateID = agg.ID()
	span.SetAttributes(attribute.String("aggregate.id", agg.ID()))

	err = p.commit(ctx, run, c.Aggregate, agg, func(ctx context.Context) error {
		return c.Create(ctx, agg)
	})
	if err != nil {
		if errors.Is(err, ErrEventsNotPublished) {
			return agg, err
		}
		return zero, err
	}
	run.done(ResultCommitted)
	return agg, nil
}

// commit сохраняет агрегат и передаёт его события публикатору. С Transactor оба шага
// выполняются в одной транзакции: ошибка публикации откатывает сохранение, и команда
// завершается ошибкой без частичного результата. Без Transactor события публикуются
// после фиксации, а их потеря возвращается как *PublishError.
func (p *Pipeline) commit(ctx context.Context, run *execution, aggregate string, agg Aggregate, persist func(ctx context.Context) error) error {
	events := agg.PendingEvents()

	if p.transactor == nil {
		if err := persist(ctx); err != nil {
			return run.fail(err)
		}
		if err := p.publish(ctx, events); err != nil {
			err = &PublishError{Aggregate: aggregate, ID: agg.ID(), Err: err}
			run.publishFailed(err)
			return err
		}
	} else {
		err := p.transactor.WithinTx(ctx, func(ctx context.Context) error {
			if err := persist(ctx); err != nil {
				return err
			}
			if err := p.publish(ctx, events); err != nil {
				return fmt.Errorf("record events of %s %s: %w", aggregate, agg.ID(), err)
			}
			return nil
		})
		if err != nil {
			return run.fail(err)
		}
	}

	agg.ClearEvents()
	if p.metrics != nil {
		for _, event := range events {
			p.metrics.RecordEvent(event.EventType())
		}
	}
	return nil
}

// publish передаёт события в порядке записи.
func (p *Pipeline) publish(ctx context.Context, events []domain.Event) error {
	if len(events) == 0 || p.publisher == nil {
		return nil
	}
	return p.publisher.Publish(ctx, events)
}

type execution struct {
	p           *Pipeline
	command     string
	aggregate   string
	aggregateID string
	started     time.Time
	span        trace.Span
}

func (p *Pipeline) begin(command, aggregate, id string, span trace.Span) *execution {
	return &execution{p: p, command: command, aggregate: aggregate, aggregateID: id, started: time.Now(), span: span}
}

func (e *execution) entry() *log.Entry {
	return e.p.logger.WithFields(log.Fields{
		"command":      e.command,
		"aggregate":    e.aggregate,
		"aggregate_id": e.aggregateID,
	})
}

func (e *execution) record(result string) {
	e.span.SetAttributes(attribute.String("command.result", result))
	if e.p.metrics != nil {
		e.p.metrics.RecordCommand(e.command, result, time.Since(e.started))
	}
}

func (e *execution) done(result string) {
	e.record(result)
	e.entry().WithField("result", result).Debug("command executed")
}

// fail классифицирует ошибку, пишет лог и метрики и возвращает её без изменений.
func (e *execution) fail(err error) error {
	entry := e.entry().WithError(err)
	switch domain.KindOf(err) {
	case domain.KindValidation:
		e.record(ResultValidation)
		entry.Info("command rejected: invalid input")
	case domain.KindInvariant:
		e.record(ResultRejected)
		entry.Info("command rejected by aggregate")
	case domain.KindNotFound:
		e.record(ResultNotFound)
		entry.Info("command target not found")
	case domain.KindConcurrency:
		e.record(ResultConflict)
		if e.p.metrics != nil {
			e.p.metrics.RecordConflict(e.aggregate)
		}
		entry.Warn("command lost optimistic concurrency race")
	default:
		e.record(ResultError)
		e.span.RecordError(err)
		e.span.SetStatus(codes.Error, err.Error())
		entry.Error("command failed")
	}
	return err
}

func (e *execution) publishFailed(err error) {
	e.record(ResultCommitted)
	e.span.RecordError(err)
	e.span.SetStatus(codes.Error, "events not published")
	if e.p.metrics != nil {
		e.p.metrics.RecordPublishFailure()
	}
	e.entry().WithError(err).Error("command committed but events were not published")
}
