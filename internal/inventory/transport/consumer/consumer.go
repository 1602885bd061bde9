package consumer

import (
	"context"
	"errors"

	"github.com/sakashimaa/go-marketplace/internal/inventory/service"
	"github.com/sakashimaa/go-marketplace/pkg/bus"
	generalDomain "github.com/sakashimaa/go-marketplace/pkg/domain"
	"github.com/sakashimaa/go-marketplace/pkg/metrics"
	"github.com/sakashimaa/go-marketplace/pkg/mylogger"
	"go.uber.org/zap"
)

const GroupID = "inventory-reconciler"

// Consumer reconciles stock with the stock-update facts it receives.
type Consumer struct {
	service    service.LedgerService
	subscriber bus.Subscriber
	logger     *zap.Logger
}

func NewConsumer(service service.LedgerService, subscriber bus.Subscriber, logger *zap.Logger) *Consumer {
	return &Consumer{
		service:    service,
		subscriber: subscriber,
		logger:     logger,
	}
}

func (c *Consumer) Start(ctx context.Context) error {
	return c.subscriber.Subscribe(ctx, GroupID, []string{generalDomain.TopicStockUpdate}, c.HandleFact)
}

// HandleFact returns an error only for failures a redelivery may fix.
// Facts that can never apply are logged and acknowledged.
func (c *Consumer) HandleFact(ctx context.Context, fact generalDomain.Fact) error {
	mylogger.Debug(
		ctx,
		c.logger,
		"Processing message",
		zap.String("topic", fact.Topic),
		zap.String("event_id", fact.EventID),
	)

	if fact.Type != generalDomain.FactStockAdjusted {
		mylogger.Warn(ctx, c.logger, "Ignored event type", zap.String("event_type", string(fact.Type)))
		return nil
	}

	var event generalDomain.StockAdjustedEvent
	if err := fact.Decode(&event); err != nil {
		c.poison(ctx, fact, err)
		return nil
	}

	applied, err := c.service.ApplyDelta(ctx, fact.EventID, event.ProductID, event.Delta)
	if err != nil {
		if errors.Is(err, generalDomain.ErrNotFound) ||
			errors.Is(err, generalDomain.ErrInsufficientStock) ||
			errors.Is(err, generalDomain.ErrInvalidInput) {
			c.poison(ctx, fact, err)
			return nil
		}

		metrics.StockDeltasTotal.WithLabelValues("retry").Inc()
		mylogger.Warn(
			ctx,
			c.logger,
			"Error applying stock delta",
			zap.String("event_id", fact.EventID),
			zap.Int64("product_id", event.ProductID),
			zap.Error(err),
		)

		return err
	}

	if !applied {
		metrics.StockDeltasTotal.WithLabelValues("duplicate").Inc()
		mylogger.Debug(
			ctx,
			c.logger,
			"Stock delta already applied, skipping",
			zap.String("event_id", fact.EventID),
		)

		return nil
	}

	metrics.StockDeltasTotal.WithLabelValues("applied").Inc()
	mylogger.Info(
		ctx,
		c.logger,
		"Stock delta applied",
		zap.String("event_id", fact.EventID),
		zap.String("order_id", event.OrderID),
		zap.Int64("product_id", event.ProductID),
		zap.Int64("delta", event.Delta),
	)

	return nil
}

func (c *Consumer) poison(ctx context.Context, fact generalDomain.Fact, err error) {
	metrics.StockDeltasTotal.WithLabelValues("poison").Inc()
	mylogger.Error(
		ctx,
		c.logger,
		"Dropping stock-update fact that cannot apply",
		zap.String("event_id", fact.EventID),
		zap.String("partition_key", fact.PartitionKey),
		zap.Error(err),
	)
}
