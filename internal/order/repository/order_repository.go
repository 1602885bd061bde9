package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sakashimaa/go-marketplace/internal/order/domain"
	"github.com/sakashimaa/go-marketplace/pkg/db"
	generalDomain "github.com/sakashimaa/go-marketplace/pkg/domain"
	"github.com/sakashimaa/go-marketplace/pkg/mylogger"
	outboxRepository "github.com/sakashimaa/go-marketplace/pkg/outbox/repository"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type orderRepo struct {
	pool       *pgxpool.Pool
	outboxRepo outboxRepository.OutboxRepository
	logger     *zap.Logger
	tracer     trace.Tracer
}

func NewOrderRepository(pool *pgxpool.Pool, outboxRepo outboxRepository.OutboxRepository, logger *zap.Logger) OrderRepository {
	return &orderRepo{
		pool:       pool,
		outboxRepo: outboxRepo,
		logger:     logger,
		tracer:     otel.Tracer("order_repository"),
	}
}

func (r *orderRepo) Create(ctx context.Context, order *domain.Order, facts []generalDomain.Fact) error {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.Create")
	defer span.End()

	span.SetAttributes(
		attribute.String("order_id", order.ID),
		attribute.Int64("user_id", order.UserID),
		attribute.Int("items_count", len(order.Items)),
	)

	uid, err := uuid.Parse(order.ID)
	if err != nil {
		return fmt.Errorf("malformed order id %q: %w", order.ID, generalDomain.ErrInvalidInput)
	}

	return r.inTx(ctx, "Create", func(tx pgx.Tx) error {
		queryOrder := `
			INSERT INTO orders (id, user_id, status, total_amount, shipping_address, notes, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`

		if _, err := tx.Exec(
			ctx,
			queryOrder,
			uid,
			order.UserID,
			string(order.Status),
			order.TotalAmount,
			order.ShippingAddress,
			order.Notes,
			order.CreatedAt,
			order.UpdatedAt,
		); err != nil {
			if db.IsUniqueViolation(err) {
				return fmt.Errorf("order %s already exists: %w", order.ID, generalDomain.ErrConflict)
			}

			span.RecordError(err)
			mylogger.Warn(
				ctx,
				r.logger,
				"Failed to insert order",
				zap.Error(err),
			)

			return fmt.Errorf("failed to insert order: %w", err)
		}

		queryItem := `
			INSERT INTO order_items (order_id, product_id, name, price, quantity, subtotal)
			VALUES ($1, $2, $3, $4, $5, $6)
		`

		for _, item := range order.Items {
			if _, err := tx.Exec(
				ctx,
				queryItem,
				uid,
				item.ProductID,
				item.Name,
				item.UnitPrice,
				item.Quantity,
				item.Subtotal,
			); err != nil {
				span.RecordError(err)
				mylogger.Error(
					ctx,
					r.logger,
					"Failed to insert item",
					zap.Error(err),
				)

				return fmt.Errorf("failed to insert order item: %w", err)
			}
		}

		return r.outboxRepo.SaveFacts(ctx, tx, facts...)
	})
}

func (r *orderRepo) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.GetByID")
	defer span.End()

	span.SetAttributes(attribute.String("order_id", id))

	query := `
		SELECT id::text, user_id, status, total_amount, shipping_address, notes, created_at, updated_at
		FROM orders
		WHERE id = $1;
	`

	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrOrderNotFound
	}

	order, err := scanOrder(r.pool.QueryRow(ctx, query, uid))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}

		span.RecordError(err)
		mylogger.Error(
			ctx,
			r.logger,
			"Error get by id",
			zap.String("order_id", id),
			zap.Error(err),
		)

		return nil, fmt.Errorf("error getting order: %w", err)
	}

	items, err := r.itemsOf(ctx, []string{order.ID})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	order.Items = items[order.ID]

	return order, nil
}

func (r *orderRepo) List(ctx context.Context, filter ListFilter) ([]domain.Order, error) {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.List")
	defer span.End()

	span.SetAttributes(
		attribute.Int("limit", filter.Limit),
		attribute.Int("offset", filter.Offset),
	)

	baseQuery := `SELECT id::text, user_id, status, total_amount, shipping_address, notes, created_at, updated_at
		FROM orders`

	var args []any
	argID := 1
	if filter.UserID != nil {
		baseQuery += fmt.Sprintf(" WHERE user_id = $%d", argID)
		args = append(args, *filter.UserID)
		argID++
	}

	baseQuery += fmt.Sprintf(" ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d", argID, argID+1)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.pool.Query(ctx, baseQuery, args...)
	if err != nil {
		span.RecordError(err)
		mylogger.Error(
			ctx,
			r.logger,
			"Error getting orders",
			zap.Int("limit", filter.Limit),
			zap.Int("offset", filter.Offset),
			zap.Error(err),
		)

		return nil, fmt.Errorf("error selecting orders: %w", err)
	}
	defer rows.Close()

	var (
		orders []domain.Order
		ids    []string
	)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("error scanning order: %w", err)
		}

		orders = append(orders, *order)
		ids = append(ids, order.ID)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("error reading orders: %w", err)
	}

	if len(ids) == 0 {
		return orders, nil
	}

	items, err := r.itemsOf(ctx, ids)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	for i := range orders {
		orders[i].Items = items[orders[i].ID]
	}

	return orders, nil
}

func (r *orderRepo) UpdateStatus(
	ctx context.Context,
	id string,
	prev, next domain.OrderStatus,
	updatedAt time.Time,
	facts []generalDomain.Fact,
) error {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.UpdateStatus")
	defer span.End()

	span.SetAttributes(
		attribute.String("order_id", id),
		attribute.String("previous_status", string(prev)),
		attribute.String("status", string(next)),
	)

	uid, err := uuid.Parse(id)
	if err != nil {
		return ErrOrderNotFound
	}

	return r.inTx(ctx, "UpdateStatus", func(tx pgx.Tx) error {
		query := `
			UPDATE orders
			SET status = $1, updated_at = $2
			WHERE id = $3 AND status = $4;
		`

		commandTag, err := tx.Exec(ctx, query, string(next), updatedAt, uid, string(prev))
		if err != nil {
			span.RecordError(err)
			mylogger.Error(
				ctx,
				r.logger,
				"Failed to update order",
				zap.Error(err),
			)

			return fmt.Errorf("failed to update order: %w", err)
		}

		if commandTag.RowsAffected() == 0 {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, uid).Scan(&exists); err != nil {
				return fmt.Errorf("failed to check order: %w", err)
			}
			if !exists {
				return ErrOrderNotFound
			}

			mylogger.Warn(
				ctx,
				r.logger,
				"Order status changed concurrently",
				zap.String("order_id", id),
				zap.String("expected_status", string(prev)),
			)

			return ErrStatusChanged
		}

		return r.outboxRepo.SaveFacts(ctx, tx, facts...)
	})
}

func (r *orderRepo) Exists(ctx context.Context, id string) (bool, error) {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.Exists")
	defer span.End()

	uid, err := uuid.Parse(id)
	if err != nil {
		return false, nil
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, uid).Scan(&exists); err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("failed to check order %s: %w", id, err)
	}

	return exists, nil
}

func (r *orderRepo) itemsOf(ctx context.Context, orderIDs []string) (map[string][]domain.OrderItem, error) {
	query := `
		SELECT order_id::text, product_id, name, price, quantity, subtotal
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY id;
	`

	uids := make([]uuid.UUID, 0, len(orderIDs))
	for _, id := range orderIDs {
		uid, err := uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("malformed order id %q: %w", id, err)
		}
		uids = append(uids, uid)
	}

	rows, err := r.pool.Query(ctx, query, uids)
	if err != nil {
		mylogger.Error(
			ctx,
			r.logger,
			"Failed to query order_items",
			zap.Error(err),
		)

		return nil, fmt.Errorf("failed to query order items: %w", err)
	}
	defer rows.Close()

	result := make(map[string][]domain.OrderItem, len(orderIDs))
	for rows.Next() {
		var (
			orderID string
			item    domain.OrderItem
		)
		if err := rows.Scan(
			&orderID,
			&item.ProductID,
			&item.Name,
			&item.UnitPrice,
			&item.Quantity,
			&item.Subtotal,
		); err != nil {
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}

		result[orderID] = append(result[orderID], item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read order items: %w", err)
	}

	return result, nil
}

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var (
		o      domain.Order
		status string
	)
	if err := row.Scan(
		&o.ID,
		&o.UserID,
		&status,
		&o.TotalAmount,
		&o.ShippingAddress,
		&o.Notes,
		&o.CreatedAt,
		&o.UpdatedAt,
	); err != nil {
		return nil, err
	}
	o.Status = domain.OrderStatus(status)

	return &o, nil
}

func (r *orderRepo) inTx(ctx context.Context, method string, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		mylogger.Error(
			ctx,
			r.logger,
			"Failed to begin transaction",
			zap.String("method_name", method),
			zap.Error(err),
		)

		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		shutdownCtx := context.WithoutCancel(ctx)

		err := tx.Rollback(shutdownCtx)
		if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			mylogger.Warn(
				shutdownCtx,
				r.logger,
				"Error rolling back transaction",
				zap.String("method_name", method),
				zap.Error(err),
			)
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		mylogger.Error(
			ctx,
			r.logger,
			"Failed to commit transaction",
			zap.String("method_name", method),
			zap.Error(err),
		)

		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}
