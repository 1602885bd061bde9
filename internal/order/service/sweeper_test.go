package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	inventoryDomain "github.com/sakashimaa/go-marketplace/internal/inventory/domain"
	"github.com/sakashimaa/go-marketplace/internal/order/domain"
	"github.com/sakashimaa/go-marketplace/internal/order/service"
	generalDomain "github.com/sakashimaa/go-marketplace/pkg/domain"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type unconfirmedLedger struct {
	service.StockLedger
}

func (unconfirmedLedger) Confirm(context.Context, string) error {
	return errors.New("ledger unavailable")
}

func TestSweeper_SettlesStaleHolds(t *testing.T) {
	h := newHarness(t, 10, 10)
	h.ledger.SetClock(func() time.Time { return time.Now().Add(-time.Hour) })

	// an order whose confirmation was lost keeps its holds
	svc := service.NewOrderService(h.orders, unconfirmedLedger{h.ledgerSvc}, h.catalog, zap.NewNop())
	placed, err := svc.CreateOrder(h.ctx, alice, domain.CreateOrderInput{
		Lines: []domain.OrderLine{
			{ProductID: keyboardID, Quantity: 2},
			{ProductID: mouseID, Quantity: 1},
		},
		ShippingAddress: "221B Baker Street",
	})
	require.NoError(t, err)

	// a reservation whose order was never written
	require.NoError(t, h.ledgerSvc.Reserve(h.ctx, inventoryDomain.Reservation{
		EventID:   generalDomain.NewEventID(),
		OrderID:   "5f0c7a43-4c1e-4c39-8d7c-0e5a1f3c2b11",
		ProductID: keyboardID,
		Quantity:  3,
	}))

	require.Equal(t, 3, h.ledger.HoldCount())
	require.Equal(t, int64(5), h.stock(keyboardID))

	sweeper := service.NewSweeper(h.ledgerSvc, h.orders, 10*time.Minute, time.Minute, zap.NewNop())
	confirmed, released, err := sweeper.Sweep(h.ctx)
	require.NoError(t, err)
	require.Equal(t, 1, confirmed)
	require.Equal(t, 1, released)

	require.Zero(t, h.ledger.HoldCount())
	require.Equal(t, int64(8), h.stock(keyboardID))
	require.Equal(t, int64(9), h.stock(mouseID))

	stored, err := h.svc.GetOrder(h.ctx, alice, placed.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusPending, stored.Status)

	// a second pass finds nothing left to do
	confirmed, released, err = sweeper.Sweep(h.ctx)
	require.NoError(t, err)
	require.Zero(t, confirmed)
	require.Zero(t, released)
}

func TestSweeper_LeavesFreshHolds(t *testing.T) {
	h := newHarness(t, 10, 10)

	require.NoError(t, h.ledgerSvc.Reserve(h.ctx, inventoryDomain.Reservation{
		EventID:   generalDomain.NewEventID(),
		OrderID:   "in-flight",
		ProductID: mouseID,
		Quantity:  4,
	}))

	sweeper := service.NewSweeper(h.ledgerSvc, h.orders, 10*time.Minute, time.Minute, zap.NewNop())
	confirmed, released, err := sweeper.Sweep(h.ctx)
	require.NoError(t, err)
	require.Zero(t, confirmed)
	require.Zero(t, released)

	require.Equal(t, 1, h.ledger.HoldCount())
	require.Equal(t, int64(6), h.stock(mouseID))
}

func TestSweeper_StartStopsWithContext(t *testing.T) {
	h := newHarness(t, 10, 10)
	h.ledger.SetClock(func() time.Time { return time.Now().Add(-time.Hour) })

	require.NoError(t, h.ledgerSvc.Reserve(h.ctx, inventoryDomain.Reservation{
		EventID:   generalDomain.NewEventID(),
		OrderID:   "abandoned",
		ProductID: mouseID,
		Quantity:  2,
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		service.NewSweeper(h.ledgerSvc, h.orders, time.Minute, 5*time.Millisecond, zap.NewNop()).Start(ctx)
	}()

	require.Eventually(t, func() bool {
		return h.ledger.HoldCount() == 0
	}, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, int64(10), h.stock(mouseID))

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
