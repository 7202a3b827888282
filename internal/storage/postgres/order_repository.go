package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/orderstock/internal/domain"
)

const orderColumns = `id, customer_id, order_date, status, currency, total, cancellation_reason, version, created_at, updated_at`

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository создаёт PostgreSQL-реализацию OrderRepository.
// Позиции заказа пишутся один раз при создании; Save меняет только строку orders.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{db: store.DB()}
}

func (r *orderRepository) Create(ctx context.Context, order *domain.Order) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	s := order.Snapshot()
	return inTx(ctx, r.db, func(tx executor) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO orders (`+orderColumns+`)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		`,
			s.ID, s.CustomerID, s.OrderDate, string(s.Status), s.Currency, s.Total,
			s.CancellationReason, s.Version, s.CreatedAt, s.UpdatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return domain.NewDuplicateError("order_id_unique", "order "+s.ID+" already exists")
			}
			return fmt.Errorf("insert order: %w", err)
		}

		for i, line := range s.Lines {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO order_lines (id, order_id, position, product_id, quantity, unit_price)
				VALUES ($1,$2,$3,$4,$5,$6)
			`, line.ID, s.ID, i, line.ProductID, line.Quantity, line.UnitPrice); err != nil {
				return fmt.Errorf("insert order line: %w", err)
			}
		}
		return nil
	})
}

func (r *orderRepository) Get(ctx context.Context, id string) (*domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	snapshot, err := scanOrder(conn(ctx, r.db).QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &domain.NotFoundError{Aggregate: domain.AggregateOrder, ID: id}
		}
		return nil, fmt.Errorf("select order: %w", err)
	}

	lines, err := r.loadLines(ctx, id)
	if err != nil {
		return nil, err
	}
	snapshot.Lines = lines
	return domain.RestoreOrder(snapshot)
}

// Save обновляет статус и служебные поля, если версия в базе равна expectedVersion.
func (r *orderRepository) Save(ctx context.Context, order *domain.Order, expectedVersion int64) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	s := order.Snapshot()
	res, err := conn(ctx, r.db).ExecContext(ctx, `
		UPDATE orders
		SET status = $1,
		    total = $2,
		    cancellation_reason = $3,
		    version = $4,
		    updated_at = $5
		WHERE id = $6
		  AND version = $7
	`,
		string(s.Status), s.Total, s.CancellationReason, s.Version, s.UpdatedAt, s.ID, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return versionConflict(ctx, conn(ctx, r.db), "orders", domain.AggregateOrder, s.ID, expectedVersion)
	}
	return nil
}

func (r *orderRepository) ListByCustomer(ctx context.Context, customerID string, page domain.Page) ([]domain.OrderSnapshot, error) {
	return r.list(ctx, `WHERE customer_id = $1 AND status <> 'deleted'`, page, customerID)
}

func (r *orderRepository) ListByStatus(ctx context.Context, status domain.OrderStatus, page domain.Page) ([]domain.OrderSnapshot, error) {
	return r.list(ctx, `WHERE status = $1`, page, string(status))
}

func (r *orderRepository) List(ctx context.Context, page domain.Page) ([]domain.OrderSnapshot, error) {
	return r.list(ctx, ``, page)
}

// list выбирает страницу заказов от новых к старым и подгружает позиции одним запросом.
func (r *orderRepository) list(ctx context.Context, where string, page domain.Page, args ...any) ([]domain.OrderSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	page = page.Normalize()
	args = append(args, page.Limit, page.Offset)
	query := fmt.Sprintf(`SELECT %s FROM orders %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		orderColumns, where, len(args)-1, len(args))

	rows, err := conn(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := make([]domain.OrderSnapshot, 0)
	ids := make([]string, 0)
	for rows.Next() {
		snapshot, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, snapshot)
		ids = append(ids, snapshot.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}
	if len(orders) == 0 {
		return orders, nil
	}

	lines, err := r.loadLinesFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Lines = lines[orders[i].ID]
	}
	return orders, nil
}

func (r *orderRepository) loadLines(ctx context.Context, orderID string) ([]domain.OrderLineSnapshot, error) {
	lines, err := r.loadLinesFor(ctx, []string{orderID})
	if err != nil {
		return nil, err
	}
	return lines[orderID], nil
}

func (r *orderRepository) loadLinesFor(ctx context.Context, orderIDs []string) (map[string][]domain.OrderLineSnapshot, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx, `
		SELECT order_id, id, product_id, quantity, unit_price
		FROM order_lines
		WHERE order_id = ANY($1)
		ORDER BY order_id, position
	`, orderIDs)
	if err != nil {
		return nil, fmt.Errorf("load order lines: %w", err)
	}
	defer rows.Close()

	result := make(map[string][]domain.OrderLineSnapshot, len(orderIDs))
	for rows.Next() {
		var (
			orderID string
			line    domain.OrderLineSnapshot
		)
		if err := rows.Scan(&orderID, &line.ID, &line.ProductID, &line.Quantity, &line.UnitPrice); err != nil {
			return nil, fmt.Errorf("scan order line: %w", err)
		}
		result[orderID] = append(result[orderID], line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order lines: %w", err)
	}
	return result, nil
}

func scanOrder(row rowScanner) (domain.OrderSnapshot, error) {
	var (
		s      domain.OrderSnapshot
		status string
	)
	err := row.Scan(
		&s.ID, &s.CustomerID, &s.OrderDate, &status, &s.Currency, &s.Total,
		&s.CancellationReason, &s.Version, &s.CreatedAt, &s.UpdatedAt,
	)
	s.Status = domain.OrderStatus(status)
	s.OrderDate = s.OrderDate.UTC()
	s.CreatedAt = s.CreatedAt.UTC()
	s.UpdatedAt = s.UpdatedAt.UTC()
	return s, err
}

var _ domain.OrderRepository = (*orderRepository)(nil)
