package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sakashimaa/go-marketplace/internal/inventory/domain"
	"github.com/sakashimaa/go-marketplace/internal/inventory/repository"
	generalDomain "github.com/sakashimaa/go-marketplace/pkg/domain"
	"github.com/sakashimaa/go-marketplace/pkg/metrics"
	"github.com/sakashimaa/go-marketplace/pkg/mylogger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type LedgerService interface {
	// CheckAvailable is advisory only; Reserve re-checks atomically.
	CheckAvailable(ctx context.Context, productID, quantity int64) (bool, error)
	Reserve(ctx context.Context, r domain.Reservation) error
	Release(ctx context.Context, r domain.Reservation) error
	Confirm(ctx context.Context, orderID string) error
	ApplyDelta(ctx context.Context, eventID string, productID, delta int64) (bool, error)
	ExpiredHolds(ctx context.Context, before time.Time) ([]domain.Hold, error)
}

const expiredHoldsBatch = 500

type ledgerService struct {
	repo   repository.LedgerRepository
	logger *zap.Logger
	tracer trace.Tracer
}

func NewLedgerService(repo repository.LedgerRepository, logger *zap.Logger) LedgerService {
	return &ledgerService{
		repo:   repo,
		logger: logger,
		tracer: otel.Tracer("inventory_service"),
	}
}

func (s *ledgerService) CheckAvailable(ctx context.Context, productID, quantity int64) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "LedgerService.CheckAvailable")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("product_id", productID),
		attribute.Int64("quantity", quantity),
	)

	if quantity <= 0 {
		return false, fmt.Errorf("quantity must be positive: %w", generalDomain.ErrInvalidInput)
	}

	rec, err := s.repo.Stock(ctx, productID)
	if err != nil {
		return false, err
	}

	return rec.Available(quantity), nil
}

func (s *ledgerService) Reserve(ctx context.Context, r domain.Reservation) error {
	ctx, span := s.tracer.Start(ctx, "LedgerService.Reserve")
	defer span.End()

	span.SetAttributes(
		attribute.String("event_id", r.EventID),
		attribute.Int64("product_id", r.ProductID),
		attribute.Int64("quantity", r.Quantity),
	)

	if r.Quantity <= 0 || r.EventID == "" {
		return fmt.Errorf("reservation needs an event id and a positive quantity: %w", generalDomain.ErrInvalidInput)
	}

	if err := s.repo.Reserve(ctx, r); err != nil {
		span.RecordError(err)

		switch {
		case errors.Is(err, generalDomain.ErrInsufficientStock):
			metrics.ReservationsFailedTotal.WithLabelValues("insufficient_stock").Inc()
		case errors.Is(err, generalDomain.ErrNotFound):
			metrics.ReservationsFailedTotal.WithLabelValues("not_found").Inc()
		default:
			metrics.ReservationsFailedTotal.WithLabelValues("error").Inc()
		}

		mylogger.Warn(
			ctx,
			s.logger,
			"Reservation rejected",
			zap.Int64("product_id", r.ProductID),
			zap.Int64("quantity", r.Quantity),
			zap.Error(err),
		)

		return fmt.Errorf("reserve product %d: %w", r.ProductID, err)
	}

	return nil
}

func (s *ledgerService) Release(ctx context.Context, r domain.Reservation) error {
	ctx, span := s.tracer.Start(ctx, "LedgerService.Release")
	defer span.End()

	span.SetAttributes(
		attribute.String("event_id", r.EventID),
		attribute.Int64("product_id", r.ProductID),
	)

	released, err := s.repo.Release(ctx, r.EventID)
	if err != nil {
		span.RecordError(err)
		mylogger.Error(
			ctx,
			s.logger,
			"Failed to release reservation",
			zap.String("event_id", r.EventID),
			zap.Int64("product_id", r.ProductID),
			zap.Error(err),
		)

		return fmt.Errorf("release reservation %s: %w", r.EventID, err)
	}

	if released {
		metrics.ReservationsReleasedTotal.Inc()
		mylogger.Info(
			ctx,
			s.logger,
			"Reservation released",
			zap.String("event_id", r.EventID),
			zap.String("order_id", r.OrderID),
			zap.Int64("product_id", r.ProductID),
			zap.Int64("quantity", r.Quantity),
		)
	}

	return nil
}

func (s *ledgerService) Confirm(ctx context.Context, orderID string) error {
	ctx, span := s.tracer.Start(ctx, "LedgerService.Confirm")
	defer span.End()

	span.SetAttributes(attribute.String("order_id", orderID))

	n, err := s.repo.Confirm(ctx, orderID)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("confirm holds of order %s: %w", orderID, err)
	}

	span.SetAttributes(attribute.Int64("holds_confirmed", n))
	return nil
}

func (s *ledgerService) ApplyDelta(ctx context.Context, eventID string, productID, delta int64) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "LedgerService.ApplyDelta")
	defer span.End()

	span.SetAttributes(
		attribute.String("event_id", eventID),
		attribute.Int64("product_id", productID),
		attribute.Int64("delta", delta),
	)

	if eventID == "" {
		return false, fmt.Errorf("empty event id: %w", generalDomain.ErrInvalidInput)
	}

	applied, err := s.repo.ApplyDelta(ctx, eventID, productID, delta)
	if err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("apply delta %s to product %d: %w", eventID, productID, err)
	}

	span.SetAttributes(attribute.Bool("applied", applied))
	return applied, nil
}

func (s *ledgerService) ExpiredHolds(ctx context.Context, before time.Time) ([]domain.Hold, error) {
	ctx, span := s.tracer.Start(ctx, "LedgerService.ExpiredHolds")
	defer span.End()

	holds, err := s.repo.ExpiredHolds(ctx, before, expiredHoldsBatch)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("list expired holds: %w", err)
	}

	return holds, nil
}
