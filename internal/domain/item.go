package domain

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

const (
	maxItemNameLength        = 200
	maxItemDescriptionLength = 1000
	maxItemCategoryLength    = 100
)

// Item — товар каталога вместе со складским остатком.
// Изменяется только через методы; каждая изменяющая операция увеличивает версию
// и записывает ровно одно событие.
type Item struct {
	eventLog

	id          string
	sku         SKU
	name        string
	description string
	price       Price
	stock       StockLevel
	category    string
	active      bool
	createdAt   time.Time
	updatedAt   time.Time
	version     int64
}

// NewItemParams содержит данные для заведения товара.
type NewItemParams struct {
	ID          string
	SKU         string
	Name        string
	Description string
	Price       decimal.Decimal
	Currency    string
	Category    string
	Available   int
}

// NewItem создаёт активный товар с версией 1 и событием ItemCreated.
func NewItem(p NewItemParams, now time.Time) (*Item, error) {
	if strings.TrimSpace(p.ID) == "" {
		return nil, NewValidationError("id", p.ID, "is required")
	}
	sku, err := NewSKU(p.SKU)
	if err != nil {
		return nil, err
	}
	amount, err := NewMoney(p.Price)
	if err != nil {
		return nil, err
	}
	price, err := NewPrice(amount, p.Currency)
	if err != nil {
		return nil, err
	}
	stock, err := NewStockLevel(p.Available, 0)
	if err != nil {
		return nil, err
	}
	name, description, category, err := validateItemDetails(p.Name, p.Description, p.Category)
	if err != nil {
		return nil, err
	}

	item := &Item{
		id:          p.ID,
		sku:         sku,
		name:        name,
		description: description,
		price:       price,
		stock:       stock,
		category:    category,
		active:      true,
		createdAt:   now,
		updatedAt:   now,
		version:     1,
	}
	item.record(ItemCreated{
		itemEvent: newItemEvent(item.id, now),
		SKU:       sku.String(),
		Name:      name,
		Category:  category,
		Price:     amount,
		Currency:  price.Currency(),
		Available: stock.Available(),
	})
	return item, nil
}

func validateItemDetails(name, description, category string) (string, string, string, error) {
	name = strings.TrimSpace(name)
	category = strings.TrimSpace(category)
	switch n := utf8.RuneCountInString(name); {
	case n == 0:
		return "", "", "", NewValidationError("name", name, "is required")
	case n > maxItemNameLength:
		return "", "", "", NewValidationError("name", name, "must be at most 200 characters")
	}
	if utf8.RuneCountInString(description) > maxItemDescriptionLength {
		return "", "", "", NewValidationError("description", description, "must be at most 1000 characters")
	}
	switch n := utf8.RuneCountInString(category); {
	case n == 0:
		return "", "", "", NewValidationError("category", category, "is required")
	case n > maxItemCategoryLength:
		return "", "", "", NewValidationError("category", category, "must be at most 100 characters")
	}
	return name, description, category, nil
}

func (i *Item) ID() string { return i.id }
func (i *Item) SKU() SKU { return i.sku }
func (i *Item) Name() string { return i.name }
func (i *Item) Description() string { return i.description }
func (i *Item) Price() Price { return i.price }
func (i *Item) Stock() StockLevel { return i.stock }
func (i *Item) Category() string { return i.category }
func (i *Item) Active() bool { return i.active }
func (i *Item) CreatedAt() time.Time { return i.createdAt }
func (i *Item) UpdatedAt() time.Time { return i.updatedAt }
func (i *Item) Version() int64 { return i.version }

func (i *Item) ensureActive() error {
	if !i.active {
		return NewItemInactiveError(i.id)
	}
	return nil
}

func (i *Item) touch(now time.Time) {
	i.updatedAt = now
	i.version++
}

// UpdateDetails меняет название, описание и категорию.
func (i *Item) UpdateDetails(name, description, category string, now time.Time) error {
	if err := i.ensureActive(); err != nil {
		return err
	}
	name, description, category, err := validateItemDetails(name, description, category)
	if err != nil {
		return err
	}
	i.name, i.description, i.category = name, description, category
	i.touch(now)
	i.record(ItemDetailsUpdated{
		itemEvent:   newItemEvent(i.id, now),
		Name:        name,
		Description: description,
		Category:    category,
	})
	return nil
}

// ChangePrice выставляет новую цену.
func (i *Item) ChangePrice(price Price, now time.Time) error {
	if err := i.ensureActive(); err != nil {
		return err
	}
	previous := i.price
	i.price = price
	i.touch(now)
	i.record(ItemPriceChanged{
		itemEvent:     newItemEvent(i.id, now),
		PreviousPrice: previous.Amount(),
		Price:         price.Amount(),
		Currency:      price.Currency(),
	})
	return nil
}

// AdjustStock выставляет свободный остаток. Резерв не проверяется: инвентаризация
// может опустить available ниже reserved.
func (i *Item) AdjustStock(newAvailable int, now time.Time) error {
	if err := i.ensureActive(); err != nil {
		return err
	}
	next, err := i.stock.Adjust(newAvailable)
	if err != nil {
		return i.stockError(err)
	}
	previous := i.stock.Available()
	i.stock = next
	i.touch(now)
	i.record(StockAdjusted{
		itemEvent:         newItemEvent(i.id, now),
		PreviousAvailable: previous,
		NewAvailable:      next.Available(),
		Reserved:          next.Reserved(),
	})
	return nil
}

// ReserveStock резервирует qty единиц.
func (i *Item) ReserveStock(qty int, now time.Time) error {
	if err := i.ensureActive(); err != nil {
		return err
	}
	next, err := i.stock.Reserve(qty)
	if err != nil {
		return i.stockError(err)
	}
	i.stock = next
	i.touch(now)
	i.record(StockReserved{itemEvent: newItemEvent(i.id, now), StockMovement: i.movement(qty)})
	return nil
}

// ReleaseStock снимает резерв qty единиц.
func (i *Item) ReleaseStock(qty int, now time.Time) error {
	if err := i.ensureActive(); err != nil {
		return err
	}
	next, err := i.stock.Release(qty)
	if err != nil {
		return i.stockError(err)
	}
	i.stock = next
	i.touch(now)
	i.record(StockReleased{itemEvent: newItemEvent(i.id, now), StockMovement: i.movement(qty)})
	return nil
}

// CommitStock списывает qty зарезервированных единиц.
func (i *Item) CommitStock(qty int, now time.Time) error {
	if err := i.ensureActive(); err != nil {
		return err
	}
	next, err := i.stock.Commit(qty)
	if err != nil {
		return i.stockError(err)
	}
	i.stock = next
	i.touch(now)
	i.record(StockCommitted{itemEvent: newItemEvent(i.id, now), StockMovement: i.movement(qty)})
	return nil
}

// Deactivate выводит товар из оборота. Повторный вызов ничего не меняет.
func (i *Item) Deactivate(now time.Time) {
	if !i.active {
		return
	}
	i.active = false
	i.touch(now)
	i.record(ItemDeactivated{newItemEvent(i.id, now)})
}

// Activate возвращает товар в оборот. Повторный вызов ничего не меняет.
func (i *Item) Activate(now time.Time) {
	if i.active {
		return
	}
	i.active = true
	i.touch(now)
	i.record(ItemActivated{newItemEvent(i.id, now)})
}

func (i *Item) movement(qty int) StockMovement {
	return StockMovement{Quantity: qty, Available: i.stock.Available(), Reserved: i.stock.Reserved()}
}

func (i *Item) stockError(err error) error {
	if v, ok := err.(*StockViolationError); ok {
		v.ItemID = i.id
	}
	return err
}

// ItemSnapshot — плоское представление товара для хранилищ и запросов.
type ItemSnapshot struct {
	ID          string
	SKU         string
	Name        string
	Description string
	Price       decimal.Decimal
	Currency    string
	Available   int
	Reserved    int
	Category    string
	Active      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Version     int64
}

// Snapshot возвращает текущее состояние без накопленных событий.
func (i *Item) Snapshot() ItemSnapshot {
	return ItemSnapshot{
		ID:          i.id,
		SKU:         i.sku.String(),
		Name:        i.name,
		Description: i.description,
		Price:       i.price.Amount().Decimal(),
		Currency:    i.price.Currency(),
		Available:   i.stock.Available(),
		Reserved:    i.stock.Reserved(),
		Category:    i.category,
		Active:      i.active,
		CreatedAt:   i.createdAt,
		UpdatedAt:   i.updatedAt,
		Version:     i.version,
	}
}

// RestoreItem собирает агрегат из снимка хранилища с пустым буфером событий.
func RestoreItem(s ItemSnapshot) (*Item, error) {
	sku, err := NewSKU(s.SKU)
	if err != nil {
		return nil, err
	}
	amount, err := NewMoney(s.Price)
	if err != nil {
		return nil, err
	}
	price, err := NewPrice(amount, s.Currency)
	if err != nil {
		return nil, err
	}
	stock, err := NewStockLevel(s.Available, s.Reserved)
	if err != nil {
		return nil, err
	}
	return &Item{
		id:          s.ID,
		sku:         sku,
		name:        s.Name,
		description: s.Description,
		price:       price,
		stock:       stock,
		category:    s.Category,
		active:      s.Active,
		createdAt:   s.CreatedAt,
		updatedAt:   s.UpdatedAt,
		version:     s.Version,
	}, nil
}
