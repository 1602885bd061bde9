package service

import (
	"context"
	"fmt"
	"time"

	inventoryDomain "github.com/sakashimaa/go-marketplace/internal/inventory/domain"
	"github.com/sakashimaa/go-marketplace/internal/order/repository"
	"github.com/sakashimaa/go-marketplace/pkg/mylogger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type HoldLedger interface {
	StockLedger
	ExpiredHolds(ctx context.Context, before time.Time) ([]inventoryDomain.Hold, error)
}

// Sweeper settles reservation holds older than ttl. A hold whose order exists
// is confirmed; any other hold belongs to an order that was never created and
// is released. ttl must exceed the longest order placement.
type Sweeper struct {
	ledger   HoldLedger
	orders   repository.OrderRepository
	ttl      time.Duration
	interval time.Duration
	logger   *zap.Logger
	tracer   trace.Tracer
}

func NewSweeper(
	ledger HoldLedger,
	orders repository.OrderRepository,
	ttl, interval time.Duration,
	logger *zap.Logger,
) *Sweeper {
	return &Sweeper{
		ledger:   ledger,
		orders:   orders,
		ttl:      ttl,
		interval: interval,
		logger:   logger,
		tracer:   otel.Tracer("reservation_sweeper"),
	}
}

func (s *Sweeper) Start(ctx context.Context) {
	mylogger.Info(
		ctx,
		s.logger,
		"Starting reservation sweeper",
		zap.Duration("ttl", s.ttl),
		zap.Duration("interval", s.interval),
	)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			mylogger.Info(ctx, s.logger, "Reservation sweeper stopping")
			return
		case <-ticker.C:
			if _, _, err := s.Sweep(ctx); err != nil {
				mylogger.Error(ctx, s.logger, "Error sweeping reservations", zap.Error(err))
			}
		}
	}
}

// Sweep runs one pass and reports how many orders had their holds confirmed
// and how many holds were released.
func (s *Sweeper) Sweep(ctx context.Context) (confirmed, released int, err error) {
	ctx, span := s.tracer.Start(ctx, "Sweeper.Sweep")
	defer span.End()

	holds, err := s.ledger.ExpiredHolds(ctx, time.Now().Add(-s.ttl))
	if err != nil {
		span.RecordError(err)
		return 0, 0, err
	}
	if len(holds) == 0 {
		return 0, 0, nil
	}

	byOrder := make(map[string][]inventoryDomain.Hold)
	var orderIDs []string
	for _, h := range holds {
		if _, ok := byOrder[h.OrderID]; !ok {
			orderIDs = append(orderIDs, h.OrderID)
		}
		byOrder[h.OrderID] = append(byOrder[h.OrderID], h)
	}

	for _, orderID := range orderIDs {
		exists, err := s.orders.Exists(ctx, orderID)
		if err != nil {
			span.RecordError(err)
			return confirmed, released, fmt.Errorf("check order %s: %w", orderID, err)
		}

		if exists {
			if err := s.ledger.Confirm(ctx, orderID); err != nil {
				return confirmed, released, err
			}
			confirmed++
			continue
		}

		for _, h := range byOrder[orderID] {
			if err := s.ledger.Release(ctx, h.Reservation); err != nil {
				return confirmed, released, err
			}
			released++
		}

		mylogger.Warn(
			ctx,
			s.logger,
			"Released reservations of an order that was never created",
			zap.String("order_id", orderID),
			zap.Int("holds", len(byOrder[orderID])),
		)
	}

	span.SetAttributes(
		attribute.Int("orders_confirmed", confirmed),
		attribute.Int("holds_released", released),
	)

	return confirmed, released, nil
}
