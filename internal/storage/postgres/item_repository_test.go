package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/vladislavdragonenkov/orderstock/internal/domain"
)

func TestCASMiss(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		readErr  error
		wantKind domain.ErrorKind
	}{
		{name: "row gone", readErr: sql.ErrNoRows, wantKind: domain.KindNotFound},
		{name: "stale version", readErr: nil, wantKind: domain.KindConcurrency},
		{name: "deadline while reading version", readErr: context.DeadlineExceeded, wantKind: domain.KindUnexpected},
		{name: "connection lost", readErr: errors.New("conn closed"), wantKind: domain.KindUnexpected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := casMiss("items", domain.AggregateItem, "item-1", 3, 5, tt.readErr)
			if got := domain.KindOf(err); got != tt.wantKind {
				t.Fatalf("expected kind %s, got %s (%v)", tt.wantKind, got, err)
			}
		})
	}
}

func TestCASMiss_ReadFailureIsNotConflict(t *testing.T) {
	t.Parallel()

	err := casMiss("orders", domain.AggregateOrder, "order-1", 2, 0, context.DeadlineExceeded)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected wrapped deadline error, got %v", err)
	}
	if domain.IsVersionConflict(err) {
		t.Fatalf("read failure must not be reported as version conflict: %v", err)
	}
}

func TestCASMiss_ReportsActualVersion(t *testing.T) {
	t.Parallel()

	err := casMiss("items", domain.AggregateItem, "item-1", 3, 5, nil)
	var conflict *domain.ConcurrencyConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConcurrencyConflictError, got %T", err)
	}
	if conflict.ExpectedVersion != 3 || conflict.ActualVersion != 5 {
		t.Fatalf("unexpected versions: %+v", conflict)
	}
}
