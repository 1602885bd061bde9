//go:build integration

package tests

import (
	"errors"
	"sync"
	"time"

	"github.com/sakashimaa/go-marketplace/internal/order/domain"
	generalDomain "github.com/sakashimaa/go-marketplace/pkg/domain"
)

func (s *IntegrationTestSuite) TestCreateOrder_PersistsOrderAndFacts() {
	keyboard := s.seedProduct("Keyboard", 1000, 10)
	mouse := s.seedProduct("Mouse", 250, 10)

	order, err := s.OrderService.CreateOrder(s.Ctx, customer, domain.CreateOrderInput{
		Lines: []domain.OrderLine{
			{ProductID: keyboard, Quantity: 2},
			{ProductID: mouse, Quantity: 2},
		},
		ShippingAddress: "221B Baker Street",
		Notes:           "leave at the door",
	})
	s.Require().NoError(err)
	s.Require().Equal(int64(2500), order.TotalAmount)

	stored, err := s.OrderService.GetOrder(s.Ctx, customer, order.ID)
	s.Require().NoError(err)
	s.Require().Equal(domain.OrderStatusPending, stored.Status)
	s.Require().Len(stored.Items, 2)
	s.Require().Equal("leave at the door", stored.Notes)

	var facts int
	s.Require().NoError(s.DbPool.QueryRow(s.Ctx, `SELECT COUNT(*) FROM outbox`).Scan(&facts))
	s.Require().Equal(3, facts)

	var holds int
	s.Require().NoError(s.DbPool.QueryRow(s.Ctx, `SELECT COUNT(*) FROM reservation_holds`).Scan(&holds))
	s.Require().Zero(holds)

	s.Require().Eventually(func() bool { return s.unpublished() == 0 }, 30*time.Second, 100*time.Millisecond)

	// the decrease facts reach the reconciler as no-ops
	time.Sleep(2 * time.Second)
	s.Require().Equal(int64(8), s.stock(keyboard))
	s.Require().Equal(int64(8), s.stock(mouse))
}

func (s *IntegrationTestSuite) TestCreateOrder_ConcurrentNeverOversells() {
	product := s.seedProduct("Limited", 500, 5)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			_, err := s.OrderService.CreateOrder(s.Ctx, customer, domain.CreateOrderInput{
				Lines:           []domain.OrderLine{{ProductID: product, Quantity: 1}},
				ShippingAddress: "somewhere",
			})
			if err != nil && !errors.Is(err, generalDomain.ErrInsufficientStock) {
				s.T().Errorf("unexpected error: %v", err)
				return
			}

			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	s.Require().Equal(5, succeeded)
	s.Require().Zero(s.stock(product))
}

func (s *IntegrationTestSuite) TestCancelOrder_RestoresStockThroughKafka() {
	keyboard := s.seedProduct("Keyboard", 1000, 10)
	mouse := s.seedProduct("Mouse", 250, 10)

	order, err := s.OrderService.CreateOrder(s.Ctx, customer, domain.CreateOrderInput{
		Lines: []domain.OrderLine{
			{ProductID: keyboard, Quantity: 3},
			{ProductID: mouse, Quantity: 2},
		},
		ShippingAddress: "221B Baker Street",
	})
	s.Require().NoError(err)
	s.Require().Equal(int64(7), s.stock(keyboard))

	_, err = s.OrderService.UpdateStatus(s.Ctx, admin, order.ID, domain.OrderStatusCancelled)
	s.Require().NoError(err)

	s.Require().Eventually(func() bool {
		return s.stock(keyboard) == 10 && s.stock(mouse) == 10
	}, 60*time.Second, 200*time.Millisecond)

	_, err = s.OrderService.UpdateStatus(s.Ctx, admin, order.ID, domain.OrderStatusConfirmed)
	s.Require().ErrorIs(err, generalDomain.ErrInvalidTransition)
}

func (s *IntegrationTestSuite) TestLedger_ApplyDeltaIsIdempotent() {
	product := s.seedProduct("Cable", 100, 4)

	applied, err := s.Ledger.ApplyDelta(s.Ctx, "evt-1", product, 3)
	s.Require().NoError(err)
	s.Require().True(applied)

	applied, err = s.Ledger.ApplyDelta(s.Ctx, "evt-1", product, 3)
	s.Require().NoError(err)
	s.Require().False(applied)

	_, err = s.Ledger.ApplyDelta(s.Ctx, "evt-2", product, -100)
	s.Require().ErrorIs(err, generalDomain.ErrInsufficientStock)

	s.Require().Equal(int64(7), s.stock(product))
}
