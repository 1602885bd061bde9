package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sakashimaa/go-marketplace/internal/catalog"
	inventoryDomain "github.com/sakashimaa/go-marketplace/internal/inventory/domain"
	"github.com/sakashimaa/go-marketplace/internal/order/domain"
	"github.com/sakashimaa/go-marketplace/internal/order/repository"
	generalDomain "github.com/sakashimaa/go-marketplace/pkg/domain"
	"github.com/sakashimaa/go-marketplace/pkg/metrics"
	"github.com/sakashimaa/go-marketplace/pkg/mylogger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	maxStatusAttempts = 3
	defaultListLimit  = 20
	maxListLimit      = 100
)

type OrderService interface {
	CreateOrder(ctx context.Context, caller domain.Identity, input domain.CreateOrderInput) (*domain.Order, error)
	GetOrder(ctx context.Context, caller domain.Identity, id string) (*domain.Order, error)
	ListOrders(ctx context.Context, caller domain.Identity, limit, offset int) ([]domain.Order, error)
	UpdateStatus(ctx context.Context, caller domain.Identity, id string, status domain.OrderStatus) (*domain.Order, error)
}

// StockLedger is the part of the inventory ledger order placement needs.
type StockLedger interface {
	Reserve(ctx context.Context, r inventoryDomain.Reservation) error
	Release(ctx context.Context, r inventoryDomain.Reservation) error
	Confirm(ctx context.Context, orderID string) error
}

type orderService struct {
	orderRepo repository.OrderRepository
	ledger    StockLedger
	catalog   catalog.Catalog
	logger    *zap.Logger
	tracer    trace.Tracer
}

func NewOrderService(
	orderRepo repository.OrderRepository,
	ledger StockLedger,
	catalog catalog.Catalog,
	logger *zap.Logger,
) OrderService {
	return &orderService{
		orderRepo: orderRepo,
		ledger:    ledger,
		catalog:   catalog,
		logger:    logger,
		tracer:    otel.Tracer("order_service"),
	}
}

func (s *orderService) CreateOrder(ctx context.Context, caller domain.Identity, input domain.CreateOrderInput) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.CreateOrder")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("user_id", caller.UserID),
		attribute.Int("lines_count", len(input.Lines)),
	)

	if err := validateCreateInput(input); err != nil {
		return nil, err
	}

	order := &domain.Order{
		ID:              uuid.NewString(),
		UserID:          caller.UserID,
		Status:          domain.OrderStatusPending,
		ShippingAddress: strings.TrimSpace(input.ShippingAddress),
		Notes:           strings.TrimSpace(input.Notes),
		Items:           make([]domain.OrderItem, 0, len(input.Lines)),
	}
	span.SetAttributes(attribute.String("order_id", order.ID))

	for _, line := range input.Lines {
		product, err := s.catalog.Product(ctx, line.ProductID)
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("look up product %d: %w", line.ProductID, err)
		}

		order.Items = append(order.Items, domain.OrderItem{
			ProductID: product.ID,
			Name:      product.Name,
			UnitPrice: product.Price,
			Quantity:  line.Quantity,
		})
	}

	if err := order.CalculateTotal(); err != nil {
		return nil, err
	}

	reservations, err := s.reserveAll(ctx, order)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	// From here on the order is committed to completing; a caller that gives
	// up now must not leave reservations without their order.
	persistCtx := context.WithoutCancel(ctx)

	now := time.Now().UTC()
	order.CreatedAt = now
	order.UpdatedAt = now

	facts, err := createdFacts(order, reservations)
	if err != nil {
		s.releaseAll(persistCtx, reservations)
		return nil, err
	}

	if err := s.orderRepo.Create(persistCtx, order, facts); err != nil {
		span.RecordError(err)
		mylogger.Error(
			ctx,
			s.logger,
			"Failed to create order",
			zap.String("order_id", order.ID),
			zap.Int64("user_id", caller.UserID),
			zap.Error(err),
		)

		// The write may have committed before the error surfaced. Stock is
		// only handed back once the order is known to be absent.
		exists, existsErr := s.orderRepo.Exists(persistCtx, order.ID)
		switch {
		case existsErr != nil:
			mylogger.Error(
				ctx,
				s.logger,
				"Order outcome unknown, leaving reservations to recovery",
				zap.String("order_id", order.ID),
				zap.Error(existsErr),
			)

			return nil, fmt.Errorf("failed to create order: %w", err)
		case exists:
			s.confirm(persistCtx, order.ID)
			return order, nil
		}

		s.releaseAll(persistCtx, reservations)
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	s.confirm(persistCtx, order.ID)
	metrics.OrdersCreatedTotal.Inc()

	mylogger.Info(
		ctx,
		s.logger,
		"Order created",
		zap.String("order_id", order.ID),
		zap.Int64("user_id", order.UserID),
		zap.Int64("total_amount", order.TotalAmount),
	)

	return order, nil
}

// reserveAll reserves every line in order. On the first failure, or when
// ctx ends between two lines, everything acquired so far is released.
func (s *orderService) reserveAll(ctx context.Context, order *domain.Order) ([]inventoryDomain.Reservation, error) {
	reservations := make([]inventoryDomain.Reservation, 0, len(order.Items))

	for _, item := range order.Items {
		if err := ctx.Err(); err != nil {
			s.releaseAll(context.WithoutCancel(ctx), reservations)
			return nil, fmt.Errorf("order placement interrupted: %w", err)
		}

		r := inventoryDomain.Reservation{
			EventID:   generalDomain.NewEventID(),
			OrderID:   order.ID,
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
		}

		if err := s.ledger.Reserve(ctx, r); err != nil {
			mylogger.Warn(
				ctx,
				s.logger,
				"Reservation failed, compensating",
				zap.String("order_id", order.ID),
				zap.Int64("product_id", item.ProductID),
				zap.Int("acquired", len(reservations)),
				zap.Error(err),
			)

			s.releaseAll(context.WithoutCancel(ctx), reservations)
			return nil, err
		}

		reservations = append(reservations, r)
	}

	return reservations, nil
}

// releaseAll gives every reservation back. Failures are left to the recovery
// sweep.
func (s *orderService) releaseAll(ctx context.Context, reservations []inventoryDomain.Reservation) {
	for _, r := range reservations {
		if err := s.ledger.Release(ctx, r); err != nil {
			mylogger.Error(
				ctx,
				s.logger,
				"Failed to release reservation, leaving it to recovery",
				zap.String("order_id", r.OrderID),
				zap.String("event_id", r.EventID),
				zap.Error(err),
			)
		}
	}
}

func (s *orderService) confirm(ctx context.Context, orderID string) {
	if err := s.ledger.Confirm(ctx, orderID); err != nil {
		mylogger.Warn(
			ctx,
			s.logger,
			"Failed to confirm reservations, leaving it to recovery",
			zap.String("order_id", orderID),
			zap.Error(err),
		)
	}
}

func createdFacts(order *domain.Order, reservations []inventoryDomain.Reservation) ([]generalDomain.Fact, error) {
	facts := make([]generalDomain.Fact, 0, len(reservations)+1)

	for _, r := range reservations {
		fact, err := generalDomain.NewStockAdjustedFact(r.EventID, generalDomain.StockAdjustedEvent{
			ProductID: r.ProductID,
			OrderID:   order.ID,
			Quantity:  r.Quantity,
			Direction: generalDomain.StockDecrease,
		})
		if err != nil {
			return nil, err
		}
		facts = append(facts, fact)
	}

	items := make([]generalDomain.OrderItemEvent, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, generalDomain.OrderItemEvent{
			ProductID:   item.ProductID,
			ProductName: item.Name,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
		})
	}

	created, err := generalDomain.NewOrderCreatedFact(generalDomain.OrderCreatedEvent{
		OrderID:         order.ID,
		UserID:          order.UserID,
		TotalAmount:     order.TotalAmount,
		ShippingAddress: order.ShippingAddress,
		Items:           items,
		CreatedAt:       order.CreatedAt,
	})
	if err != nil {
		return nil, err
	}

	return append(facts, created), nil
}

func (s *orderService) GetOrder(ctx context.Context, caller domain.Identity, id string) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.GetOrder")
	defer span.End()

	span.SetAttributes(attribute.String("order_id", id))

	order, err := s.orderRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if !caller.CanView(order.UserID) {
		mylogger.Warn(
			ctx,
			s.logger,
			"Order access denied",
			zap.String("order_id", id),
			zap.Int64("user_id", caller.UserID),
		)

		return nil, fmt.Errorf("order %s: %w", id, generalDomain.ErrForbidden)
	}

	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, caller domain.Identity, limit, offset int) ([]domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.ListOrders")
	defer span.End()

	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	filter := repository.ListFilter{Limit: limit, Offset: offset}
	if !caller.IsAdmin() {
		userID := caller.UserID
		filter.UserID = &userID
	}

	span.SetAttributes(
		attribute.Int("limit", limit),
		attribute.Int("offset", offset),
		attribute.Bool("admin", caller.IsAdmin()),
	)

	return s.orderRepo.List(ctx, filter)
}

func (s *orderService) UpdateStatus(ctx context.Context, caller domain.Identity, id string, status domain.OrderStatus) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.UpdateStatus")
	defer span.End()

	span.SetAttributes(
		attribute.String("order_id", id),
		attribute.String("status", string(status)),
	)

	if !caller.IsAdmin() {
		return nil, fmt.Errorf("changing order status: %w", generalDomain.ErrForbidden)
	}

	for attempt := 1; attempt <= maxStatusAttempts; attempt++ {
		order, err := s.orderRepo.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}

		if err := domain.ValidateTransition(order.Status, status); err != nil {
			return nil, fmt.Errorf("order %s: %w", id, err)
		}

		updatedAt := time.Now().UTC()
		facts, err := statusFacts(order, status, updatedAt)
		if err != nil {
			return nil, err
		}

		err = s.orderRepo.UpdateStatus(ctx, id, order.Status, status, updatedAt, facts)
		if errors.Is(err, generalDomain.ErrConflict) {
			mylogger.Info(
				ctx,
				s.logger,
				"Order status changed concurrently, retrying",
				zap.String("order_id", id),
				zap.Int("attempt", attempt),
			)

			continue
		}
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to update order status: %w", err)
		}

		previous := order.Status
		order.Status = status
		order.UpdatedAt = updatedAt
		metrics.OrderStatusChangesTotal.WithLabelValues(string(status)).Inc()

		mylogger.Info(
			ctx,
			s.logger,
			"Order status changed",
			zap.String("order_id", id),
			zap.String("previous_status", string(previous)),
			zap.String("status", string(status)),
		)

		return order, nil
	}

	return nil, fmt.Errorf("order %s kept changing concurrently: %w", id, generalDomain.ErrConflict)
}

// statusFacts describes a transition. Cancelling gives every line's stock
// back through one increase fact per line.
func statusFacts(order *domain.Order, next domain.OrderStatus, updatedAt time.Time) ([]generalDomain.Fact, error) {
	var facts []generalDomain.Fact

	if next == domain.OrderStatusCancelled {
		for _, item := range order.Items {
			fact, err := generalDomain.NewStockAdjustedFact(generalDomain.NewEventID(), generalDomain.StockAdjustedEvent{
				ProductID: item.ProductID,
				OrderID:   order.ID,
				Quantity:  item.Quantity,
				Direction: generalDomain.StockIncrease,
			})
			if err != nil {
				return nil, err
			}
			facts = append(facts, fact)
		}
	}

	changed, err := generalDomain.NewOrderStatusChangedFact(generalDomain.OrderStatusChangedEvent{
		OrderID:        order.ID,
		UserID:         order.UserID,
		PreviousStatus: string(order.Status),
		NewStatus:      string(next),
		UpdatedAt:      updatedAt,
	})
	if err != nil {
		return nil, err
	}

	return append(facts, changed), nil
}

func validateCreateInput(input domain.CreateOrderInput) error {
	if len(input.Lines) == 0 {
		return fmt.Errorf("order needs at least one line: %w", generalDomain.ErrInvalidInput)
	}

	for i, line := range input.Lines {
		if line.ProductID <= 0 {
			return fmt.Errorf("line %d: product id must be positive: %w", i, generalDomain.ErrInvalidInput)
		}
		if line.Quantity <= 0 || line.Quantity > domain.MaxLineQuantity {
			return fmt.Errorf("line %d: quantity must be between 1 and %d: %w", i, domain.MaxLineQuantity, generalDomain.ErrInvalidInput)
		}
	}

	if strings.TrimSpace(input.ShippingAddress) == "" {
		return fmt.Errorf("shipping address is required: %w", generalDomain.ErrInvalidInput)
	}

	return nil
}
