package ordering_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/orderstock/internal/domain"
	"github.com/vladislavdragonenkov/orderstock/internal/service/ordering"
)

func TestService_ListOrders(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	first := createOrder(t, f)
	second := createOrder(t, f)
	_, err := f.svc.ValidateOrder(ctx, orderID(second.ID))
	require.NoError(t, err)
	_, err = f.svc.DeleteOrder(ctx, orderID(first.ID))
	require.NoError(t, err)

	byCustomer, err := f.svc.ListOrders(ctx, ordering.ListOrdersQuery{CustomerID: "customer-1"})
	require.NoError(t, err)
	require.Len(t, byCustomer, 1)
	assert.Equal(t, second.ID, byCustomer[0].ID)

	deleted, err := f.svc.ListOrders(ctx, ordering.ListOrdersQuery{Status: "deleted"})
	require.NoError(t, err)
	require.Len(t, deleted, 1)
	assert.Equal(t, first.ID, deleted[0].ID)

	all, err := f.svc.ListOrders(ctx, ordering.ListOrdersQuery{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, all, 1)

	_, err = f.svc.ListOrders(ctx, ordering.ListOrdersQuery{Status: "lost"})
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))
}

func TestService_OrderHistoryRequiresOrder(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.OrderHistory(context.Background(), "missing")

	assert.True(t, domain.IsNotFound(err))
}
