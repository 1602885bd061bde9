package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sakashimaa/go-marketplace/pkg/mylogger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type postgresCatalog struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
	tracer trace.Tracer
}

func NewPostgresCatalog(pool *pgxpool.Pool, logger *zap.Logger) Catalog {
	return &postgresCatalog{
		pool:   pool,
		logger: logger,
		tracer: otel.Tracer("catalog/postgres"),
	}
}

func (c *postgresCatalog) Product(ctx context.Context, id int64) (*Product, error) {
	ctx, span := c.tracer.Start(ctx, "Catalog.Product")
	defer span.End()

	span.SetAttributes(attribute.Int64("product_id", id))

	query := `
		SELECT id, seller_id, name, price, status
		FROM products
		WHERE id = $1;
	`

	var p Product
	var status string
	if err := c.pool.QueryRow(ctx, query, id).Scan(&p.ID, &p.SellerID, &p.Name, &p.Price, &status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProductNotFound
		}

		span.RecordError(err)
		mylogger.Error(
			ctx,
			c.logger,
			"Error get by id",
			zap.Int64("product_id", id),
			zap.Error(err),
		)

		return nil, fmt.Errorf("error getting product: %w", err)
	}
	p.Status = Status(status)

	return &p, nil
}
