// Package inventory обрабатывает команды и запросы над товарами и их остатками.
package inventory

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/orderstock/internal/domain"
	"github.com/vladislavdragonenkov/orderstock/internal/service/command"
)

// Имена команд в метриках, логах и трейсах.
const (
	CommandCreateItem     = "create_item"
	CommandUpdateDetails  = "update_item_details"
	CommandChangePrice    = "change_item_price"
	CommandAdjustStock    = "adjust_stock"
	CommandReserveStock   = "reserve_stock"
	CommandReleaseStock   = "release_stock"
	CommandCommitStock    = "commit_stock"
	CommandDeactivateItem = "deactivate_item"
	CommandActivateItem   = "activate_item"
)

// Service — обработчики команд над товарами.
type Service struct {
	items    domain.ItemRepository
	timeline domain.TimelineRepository
	pipeline *command.Pipeline
	now      func() time.Time
	newID    func() string
}

// Option настраивает Service.
type Option func(*Service)

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithIDGenerator подменяет генератор идентификаторов товаров.
func WithIDGenerator(newID func() string) Option {
	return func(s *Service) {
		s.newID = newID
	}
}

// WithTimeline подключает журнал для запросов истории.
func WithTimeline(timeline domain.TimelineRepository) Option {
	return func(s *Service) {
		s.timeline = timeline
	}
}

// NewService создаёт обработчики поверх репозитория и конвейера команд.
func NewService(items domain.ItemRepository, pipeline *command.Pipeline, options ...Option) *Service {
	s := &Service{
		items:    items,
		pipeline: pipeline,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// CreateItemInput содержит данные нового товара.
type CreateItemInput struct {
	SKU         string          `json:"sku" validate:"required,max=50"`
	Name        string          `json:"name" validate:"required,max=200"`
	Description string          `json:"description" validate:"max=1000"`
	Price       decimal.Decimal `json:"price"`
	Currency    string          `json:"currency" validate:"required,len=3"`
	Category    string          `json:"category" validate:"required,max=100"`
	Available   int             `json:"available" validate:"lte=2147483647"`
}

// UpdateDetailsInput задаёт новые название, описание и категорию.
type UpdateDetailsInput struct {
	ItemID      string `json:"item_id" validate:"required"`
	Name        string `json:"name" validate:"required,max=200"`
	Description string `json:"description" validate:"max=1000"`
	Category    string `json:"category" validate:"required,max=100"`
}

// ChangePriceInput задаёт новую цену.
type ChangePriceInput struct {
	ItemID   string          `json:"item_id" validate:"required"`
	Price    decimal.Decimal `json:"price"`
	Currency string          `json:"currency" validate:"required,len=3"`
}

// AdjustStockInput несёт результат инвентаризации. Знак и итог с резервом проверяет сам агрегат.
type AdjustStockInput struct {
	ItemID       string `json:"item_id" validate:"required"`
	NewAvailable int    `json:"new_available" validate:"lte=2147483647"`
}

// StockMovementInput задаёт количество для резерва, возврата или списания.
type StockMovementInput struct {
	ItemID   string `json:"item_id" validate:"required"`
	Quantity int    `json:"quantity" validate:"lte=2147483647"`
}

// ItemIDInput используется командами без параметров.
type ItemIDInput struct {
	ItemID string `json:"item_id" validate:"required"`
}

// CreateItem заводит товар. SKU должен быть уникальным.
func (s *Service) CreateItem(ctx context.Context, in CreateItemInput) (ItemView, error) {
	item, err := command.Create(ctx, s.pipeline, command.Creation[*domain.Item]{
		Command:   CommandCreateItem,
		Aggregate: domain.AggregateItem,
		Input:     in,
		Build: func() (*domain.Item, error) {
			return domain.NewItem(domain.NewItemParams{
				ID:          s.newID(),
				SKU:         in.SKU,
				Name:        in.Name,
				Description: in.Description,
				Price:       in.Price,
				Currency:    in.Currency,
				Category:    in.Category,
				Available:   in.Available,
			}, s.now())
		},
		Create: s.items.Create,
	})
	return view(item), err
}

func (s *Service) UpdateDetails(ctx context.Context, in UpdateDetailsInput) (ItemView, error) {
	return s.update(ctx, CommandUpdateDetails, in.ItemID, in, func(item *domain.Item) error {
		return item.UpdateDetails(in.Name, in.Description, in.Category, s.now())
	})
}

func (s *Service) ChangePrice(ctx context.Context, in ChangePriceInput) (ItemView, error) {
	return s.update(ctx, CommandChangePrice, in.ItemID, in, func(item *domain.Item) error {
		amount, err := domain.NewMoney(in.Price)
		if err != nil {
			return err
		}
		price, err := domain.NewPrice(amount, in.Currency)
		if err != nil {
			return err
		}
		return item.ChangePrice(price, s.now())
	})
}

// AdjustStock выставляет свободный остаток независимо от резерва.
func (s *Service) AdjustStock(ctx context.Context, in AdjustStockInput) (ItemView, error) {
	return s.update(ctx, CommandAdjustStock, in.ItemID, in, func(item *domain.Item) error {
		return item.AdjustStock(in.NewAvailable, s.now())
	})
}

func (s *Service) ReserveStock(ctx context.Context, in StockMovementInput) (ItemView, error) {
	return s.update(ctx, CommandReserveStock, in.ItemID, in, func(item *domain.Item) error {
		return item.ReserveStock(in.Quantity, s.now())
	})
}

func (s *Service) ReleaseStock(ctx context.Context, in StockMovementInput) (ItemView, error) {
	return s.update(ctx, CommandReleaseStock, in.ItemID, in, func(item *domain.Item) error {
		return item.ReleaseStock(in.Quantity, s.now())
	})
}

func (s *Service) CommitStock(ctx context.Context, in StockMovementInput) (ItemView, error) {
	return s.update(ctx, CommandCommitStock, in.ItemID, in, func(item *domain.Item) error {
		return item.CommitStock(in.Quantity, s.now())
	})
}

// DeactivateItem идемпотентна: повторный вызов ничего не сохраняет.
func (s *Service) DeactivateItem(ctx context.Context, in ItemIDInput) (ItemView, error) {
	return s.update(ctx, CommandDeactivateItem, in.ItemID, in, func(item *domain.Item) error {
		item.Deactivate(s.now())
		return nil
	})
}

// ActivateItem идемпотентна: повторный вызов ничего не сохраняет.
func (s *Service) ActivateItem(ctx context.Context, in ItemIDInput) (ItemView, error) {
	return s.update(ctx, CommandActivateItem, in.ItemID, in, func(item *domain.Item) error {
		item.Activate(s.now())
		return nil
	})
}

func (s *Service) update(ctx context.Context, name, id string, in any, apply func(*domain.Item) error) (ItemView, error) {
	item, err := command.Execute(ctx, s.pipeline, command.Update[*domain.Item]{
		Command:   name,
		Aggregate: domain.AggregateItem,
		ID:        id,
		Input:     in,
		Load:      s.items.Get,
		Apply:     apply,
		Save:      s.items.Save,
	})
	return view(item), err
}
