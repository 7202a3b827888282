package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/vladislavdragonenkov/orderstock/internal/domain"
)

type txKey struct{}

// executor — общее у *sql.DB и *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func txFrom(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(*sql.Tx)
	return tx, ok
}

// conn возвращает транзакцию Transactor из ctx, а вне её пул соединений.
func conn(ctx context.Context, db *sql.DB) executor {
	if tx, ok := txFrom(ctx); ok {
		return tx
	}
	return db
}

// inTx выполняет fn в транзакции. Если ctx уже несёт транзакцию Transactor,
// fn работает в ней, а фиксирует её внешний вызов.
func inTx(ctx context.Context, db *sql.DB, fn func(exec executor) error) error {
	if tx, ok := txFrom(ctx); ok {
		return fn(tx)
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type transactor struct {
	db *sql.DB
}

// NewTransactor возвращает Transactor поверх транзакций PostgreSQL. Репозитории этого
// пакета, вызванные с ctx из WithinTx, выполняют запросы в открытой транзакции.
func NewTransactor(store *Store) domain.Transactor {
	return &transactor{db: store.DB()}
}

func (t *transactor) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := txFrom(ctx); ok {
		return fn(ctx)
	}
	return inTx(ctx, t.db, func(exec executor) error {
		return fn(context.WithValue(ctx, txKey{}, exec))
	})
}

var _ domain.Transactor = (*transactor)(nil)
