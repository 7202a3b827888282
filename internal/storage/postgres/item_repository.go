package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/vladislavdragonenkov/orderstock/internal/domain"
)

const itemColumns = `id, sku, name, description, price, currency, available, reserved, category, active, version, created_at, updated_at`

type itemRepository struct {
	db *sql.DB
}

// NewItemRepository создаёт PostgreSQL-реализацию ItemRepository.
func NewItemRepository(store *Store) domain.ItemRepository {
	return &itemRepository{db: store.DB()}
}

func (r *itemRepository) Create(ctx context.Context, item *domain.Item) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	s := item.Snapshot()
	_, err := conn(ctx, r.db).ExecContext(ctx, `
		INSERT INTO items (`+itemColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`,
		s.ID, s.SKU, s.Name, s.Description, s.Price, s.Currency,
		s.Available, s.Reserved, s.Category, s.Active, s.Version, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			if violatedConstraint(err) == "items_sku_key" {
				return domain.NewDuplicateError("sku_unique", "sku "+s.SKU+" is already used")
			}
			return domain.NewDuplicateError("item_id_unique", "item "+s.ID+" already exists")
		}
		return fmt.Errorf("insert item: %w", err)
	}
	return nil
}

func (r *itemRepository) Get(ctx context.Context, id string) (*domain.Item, error) {
	return r.getBy(ctx, "id", id)
}

func (r *itemRepository) GetBySKU(ctx context.Context, sku domain.SKU) (*domain.Item, error) {
	return r.getBy(ctx, "sku", sku.String())
}

func (r *itemRepository) getBy(ctx context.Context, column, value string) (*domain.Item, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	row := conn(ctx, r.db).QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE `+column+` = $1`, value)
	snapshot, err := scanItem(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &domain.NotFoundError{Aggregate: domain.AggregateItem, ID: value}
		}
		return nil, fmt.Errorf("select item by %s: %w", column, err)
	}
	return domain.RestoreItem(snapshot)
}

// Save обновляет строку только при совпадении версии; иначе сообщает фактическую версию.
func (r *itemRepository) Save(ctx context.Context, item *domain.Item, expectedVersion int64) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	s := item.Snapshot()
	res, err := conn(ctx, r.db).ExecContext(ctx, `
		UPDATE items
		SET name = $1,
		    description = $2,
		    price = $3,
		    currency = $4,
		    available = $5,
		    reserved = $6,
		    category = $7,
		    active = $8,
		    version = $9,
		    updated_at = $10
		WHERE id = $11
		  AND version = $12
	`,
		s.Name, s.Description, s.Price, s.Currency, s.Available, s.Reserved,
		s.Category, s.Active, s.Version, s.UpdatedAt, s.ID, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("update item: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return versionConflict(ctx, conn(ctx, r.db), "items", domain.AggregateItem, s.ID, expectedVersion)
	}
	return nil
}

// List возвращает товары, отсортированные по SKU.
func (r *itemRepository) List(ctx context.Context, filter domain.ItemFilter) ([]domain.ItemSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	page := filter.Page.Normalize()
	var (
		conds []string
		args  []any
	)
	if filter.Category != "" {
		args = append(args, filter.Category)
		conds = append(conds, fmt.Sprintf("category = $%d", len(args)))
	}
	if filter.ActiveOnly {
		conds = append(conds, "active")
	}

	query := `SELECT ` + itemColumns + ` FROM items`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	args = append(args, page.Limit, page.Offset)
	query += fmt.Sprintf(` ORDER BY sku LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := conn(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	result := make([]domain.ItemSnapshot, 0)
	for rows.Next() {
		snapshot, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item row: %w", err)
		}
		result = append(result, snapshot)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate item rows: %w", err)
	}
	return result, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// queryRower — общее у *sql.DB и *sql.Tx.
type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func scanItem(row rowScanner) (domain.ItemSnapshot, error) {
	var s domain.ItemSnapshot
	err := row.Scan(
		&s.ID, &s.SKU, &s.Name, &s.Description, &s.Price, &s.Currency,
		&s.Available, &s.Reserved, &s.Category, &s.Active, &s.Version, &s.CreatedAt, &s.UpdatedAt,
	)
	s.CreatedAt = s.CreatedAt.UTC()
	s.UpdatedAt = s.UpdatedAt.UTC()
	return s, err
}

// versionConflict различает отсутствующую строку и устаревшую версию после неудачного CAS.
func versionConflict(ctx context.Context, q queryRower, table, aggregate, id string, expected int64) error {
	var actual int64
	err := q.QueryRowContext(ctx, `SELECT version FROM `+table+` WHERE id = $1`, id).Scan(&actual)
	return casMiss(table, aggregate, id, expected, actual, err)
}

// casMiss переводит результат чтения версии в ошибку. Сбой самого чтения не конфликт:
// он возвращается как есть, чтобы не превратиться в повод для повтора.
func casMiss(table, aggregate, id string, expected, actual int64, readErr error) error {
	switch {
	case errors.Is(readErr, sql.ErrNoRows):
		return &domain.NotFoundError{Aggregate: aggregate, ID: id}
	case readErr != nil:
		return fmt.Errorf("read %s version: %w", table, readErr)
	default:
		return &domain.ConcurrencyConflictError{Aggregate: aggregate, ID: id, ExpectedVersion: expected, ActualVersion: actual}
	}
}

var _ domain.ItemRepository = (*itemRepository)(nil)
