// Package shipping содержит заглушку службы доставки.
package shipping

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/orderstock/internal/domain"
)

// StubCarrier выдаёт последовательные трек-номера.
type StubCarrier struct {
	mu          sync.Mutex
	DispatchErr error
	seq         int
}

// NewStubCarrier возвращает заглушку с успешным сценарием по умолчанию.
func NewStubCarrier() *StubCarrier {
	return &StubCarrier{}
}

// Dispatch возвращает трек-номер вида TRK-000001.
func (c *StubCarrier) Dispatch(ctx context.Context, orderID, customerID string) (domain.Shipment, error) {
	if err := ctx.Err(); err != nil {
		return domain.Shipment{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.DispatchErr != nil {
		return domain.Shipment{}, c.DispatchErr
	}
	c.seq++
	return domain.Shipment{
		TrackingNumber: fmt.Sprintf("TRK-%06d", c.seq),
		OrderID:        orderID,
		CustomerID:     customerID,
		DispatchedAt:   time.Now().UTC(),
	}, nil
}

var _ domain.ShippingCarrier = (*StubCarrier)(nil)
