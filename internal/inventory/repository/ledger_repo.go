package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sakashimaa/go-marketplace/internal/inventory/domain"
	"github.com/sakashimaa/go-marketplace/pkg/mylogger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type ledgerRepo struct {
	pool   *pgxpool.Pool
	tracer trace.Tracer
	logger *zap.Logger
}

func NewLedgerRepository(pool *pgxpool.Pool, logger *zap.Logger) LedgerRepository {
	return &ledgerRepo{
		pool:   pool,
		logger: logger,
		tracer: otel.Tracer("inventory/ledger_repo"),
	}
}

func (r *ledgerRepo) Stock(ctx context.Context, productID int64) (*domain.StockRecord, error) {
	ctx, span := r.tracer.Start(ctx, "LedgerRepository.Stock")
	defer span.End()

	span.SetAttributes(attribute.Int64("product_id", productID))

	query := `
		SELECT id, seller_id, name, price, stock, status
		FROM products
		WHERE id = $1;
	`

	var res domain.StockRecord
	var status string
	if err := r.pool.QueryRow(ctx, query, productID).Scan(
		&res.ProductID,
		&res.SellerID,
		&res.Name,
		&res.Price,
		&res.Stock,
		&status,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProductNotFound
		}

		span.RecordError(err)
		mylogger.Error(
			ctx,
			r.logger,
			"Error getting stock",
			zap.Int64("product_id", productID),
			zap.Error(err),
		)

		return nil, fmt.Errorf("error getting stock: %w", err)
	}
	res.Status = domain.ProductStatus(status)

	return &res, nil
}

func (r *ledgerRepo) Reserve(ctx context.Context, res domain.Reservation) error {
	ctx, span := r.tracer.Start(ctx, "LedgerRepository.Reserve")
	defer span.End()

	span.SetAttributes(
		attribute.String("event_id", res.EventID),
		attribute.String("order_id", res.OrderID),
		attribute.Int64("product_id", res.ProductID),
		attribute.Int64("quantity", res.Quantity),
	)

	return r.inTx(ctx, "Reserve", func(tx pgx.Tx) error {
		recorded, err := r.recordApplied(ctx, tx, res.EventID, res.ProductID, -res.Quantity)
		if err != nil {
			return err
		}
		if !recorded {
			mylogger.Info(
				ctx,
				r.logger,
				"Reservation already recorded, skipping",
				zap.String("event_id", res.EventID),
			)

			return nil
		}

		query := `
			UPDATE products
			SET stock = stock - $2, updated_at = NOW()
			WHERE id = $1
				AND stock >= $2
				AND status = 'ACTIVE';
		`

		commandTag, err := tx.Exec(ctx, query, res.ProductID, res.Quantity)
		if err != nil {
			span.RecordError(err)
			mylogger.Error(
				ctx,
				r.logger,
				"Error decreasing stock",
				zap.Int64("product_id", res.ProductID),
				zap.Int64("quantity", res.Quantity),
				zap.Error(err),
			)

			return fmt.Errorf("error decreasing stock for product %d: %w", res.ProductID, err)
		}

		if commandTag.RowsAffected() == 0 {
			return r.missingOrShort(ctx, tx, res.ProductID)
		}

		holdQuery := `
			INSERT INTO reservation_holds (event_id, order_id, product_id, quantity)
			VALUES ($1, $2, $3, $4);
		`

		if _, err := tx.Exec(ctx, holdQuery, res.EventID, res.OrderID, res.ProductID, res.Quantity); err != nil {
			span.RecordError(err)
			return fmt.Errorf("error recording hold: %w", err)
		}

		return nil
	})
}

func (r *ledgerRepo) Release(ctx context.Context, eventID string) (bool, error) {
	ctx, span := r.tracer.Start(ctx, "LedgerRepository.Release")
	defer span.End()

	span.SetAttributes(attribute.String("event_id", eventID))

	released := false
	err := r.inTx(ctx, "Release", func(tx pgx.Tx) error {
		holdQuery := `
			DELETE FROM reservation_holds
			WHERE event_id = $1
			RETURNING product_id, quantity;
		`

		var productID, quantity int64
		if err := tx.QueryRow(ctx, holdQuery, eventID).Scan(&productID, &quantity); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil
			}

			span.RecordError(err)
			return fmt.Errorf("error removing hold: %w", err)
		}

		query := `
			UPDATE products
			SET stock = stock + $2, updated_at = NOW()
			WHERE id = $1;
		`

		commandTag, err := tx.Exec(ctx, query, productID, quantity)
		if err != nil {
			span.RecordError(err)
			mylogger.Warn(ctx, r.logger, "Failed to increase stock", zap.Error(err))

			return fmt.Errorf("error increasing stock for product %d: %w", productID, err)
		}
		if commandTag.RowsAffected() == 0 {
			return ErrProductNotFound
		}

		released = true
		return nil
	})

	return released, err
}

func (r *ledgerRepo) Confirm(ctx context.Context, orderID string) (int64, error) {
	ctx, span := r.tracer.Start(ctx, "LedgerRepository.Confirm")
	defer span.End()

	span.SetAttributes(attribute.String("order_id", orderID))

	query := `
		DELETE FROM reservation_holds
		WHERE order_id = $1;
	`

	commandTag, err := r.pool.Exec(ctx, query, orderID)
	if err != nil {
		span.RecordError(err)
		mylogger.Error(
			ctx,
			r.logger,
			"Error confirming holds",
			zap.String("order_id", orderID),
			zap.Error(err),
		)

		return 0, fmt.Errorf("error confirming holds: %w", err)
	}

	return commandTag.RowsAffected(), nil
}

func (r *ledgerRepo) ApplyDelta(ctx context.Context, eventID string, productID, delta int64) (bool, error) {
	ctx, span := r.tracer.Start(ctx, "LedgerRepository.ApplyDelta")
	defer span.End()

	span.SetAttributes(
		attribute.String("event_id", eventID),
		attribute.Int64("product_id", productID),
		attribute.Int64("delta", delta),
	)

	applied := false
	err := r.inTx(ctx, "ApplyDelta", func(tx pgx.Tx) error {
		recorded, err := r.recordApplied(ctx, tx, eventID, productID, delta)
		if err != nil || !recorded {
			return err
		}

		query := `
			UPDATE products
			SET stock = stock + $2, updated_at = NOW()
			WHERE id = $1
				AND stock + $2 >= 0;
		`

		commandTag, err := tx.Exec(ctx, query, productID, delta)
		if err != nil {
			span.RecordError(err)
			return fmt.Errorf("error applying delta to product %d: %w", productID, err)
		}
		if commandTag.RowsAffected() == 0 {
			return r.missingOrShort(ctx, tx, productID)
		}

		applied = true
		return nil
	})

	return applied, err
}

func (r *ledgerRepo) ExpiredHolds(ctx context.Context, before time.Time, limit int) ([]domain.Hold, error) {
	ctx, span := r.tracer.Start(ctx, "LedgerRepository.ExpiredHolds")
	defer span.End()

	span.SetAttributes(
		attribute.String("before", before.Format(time.RFC3339)),
		attribute.Int("limit", limit),
	)

	query := `
		SELECT event_id, order_id, product_id, quantity, created_at
		FROM reservation_holds
		WHERE created_at < $1
		ORDER BY created_at ASC
		LIMIT $2;
	`

	rows, err := r.pool.Query(ctx, query, before, limit)
	if err != nil {
		span.RecordError(err)
		mylogger.Error(ctx, r.logger, "Error selecting expired holds", zap.Error(err))

		return nil, fmt.Errorf("error selecting expired holds: %w", err)
	}
	defer rows.Close()

	var holds []domain.Hold
	for rows.Next() {
		var h domain.Hold
		if err := rows.Scan(&h.EventID, &h.OrderID, &h.ProductID, &h.Quantity, &h.CreatedAt); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("error scanning hold: %w", err)
		}

		holds = append(holds, h)
	}

	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("error reading holds: %w", err)
	}

	return holds, nil
}

// recordApplied reports false when eventID was already recorded.
func (r *ledgerRepo) recordApplied(ctx context.Context, tx pgx.Tx, eventID string, productID, delta int64) (bool, error) {
	query := `
		INSERT INTO applied_events (event_id, product_id, delta)
		VALUES ($1, $2, $3)
		ON CONFLICT (event_id) DO NOTHING;
	`

	commandTag, err := tx.Exec(ctx, query, eventID, productID, delta)
	if err != nil {
		return false, fmt.Errorf("error recording event %s: %w", eventID, err)
	}

	return commandTag.RowsAffected() == 1, nil
}

func (r *ledgerRepo) missingOrShort(ctx context.Context, tx pgx.Tx, productID int64) error {
	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, productID).Scan(&exists); err != nil {
		return fmt.Errorf("error checking product %d: %w", productID, err)
	}
	if !exists {
		return ErrProductNotFound
	}

	return ErrInsufficientStock
}

func (r *ledgerRepo) inTx(ctx context.Context, method string, fn func(tx pgx.Tx) error) error {
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
