package memory

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/orderstock/internal/domain"
)

type journalKey struct{}

// journal копит откаты записей, сделанных репозиториями внутри WithinTx.
type journal struct {
	undo []func()
}

func (j *journal) rollback() {
	for i := len(j.undo) - 1; i >= 0; i-- {
		j.undo[i]()
	}
}

// onRollback регистрирует откат записи, если ctx принадлежит транзакции.
// Откат вызывается без удерживаемых блокировок репозитория.
func onRollback(ctx context.Context, undo func()) {
	if j, ok := ctx.Value(journalKey{}).(*journal); ok {
		j.undo = append(j.undo, undo)
	}
}

// Transactor выполняет транзакции по одной и при ошибке fn откатывает записи
// репозиториев этого пакета в обратном порядке. Чтения вне транзакции могут увидеть
// ещё не зафиксированное состояние; CAS по версии не даёт построить на нём запись.
type Transactor struct {
	mu sync.Mutex
}

// NewTransactor создаёт in-memory Transactor.
func NewTransactor() *Transactor {
	return &Transactor{}
}

func (t *Transactor) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(journalKey{}).(*journal); ok {
		return fn(ctx)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	j := &journal{}
	if err := fn(context.WithValue(ctx, journalKey{}, j)); err != nil {
		j.rollback()
		return err
	}
	return nil
}

var _ domain.Transactor = (*Transactor)(nil)
