package consumer

import (
	"context"

	"github.com/sakashimaa/go-marketplace/internal/notification/service"
	"github.com/sakashimaa/go-marketplace/pkg/bus"
	generalDomain "github.com/sakashimaa/go-marketplace/pkg/domain"
	"github.com/sakashimaa/go-marketplace/pkg/mylogger"
	"go.uber.org/zap"
)

const GroupID = "notification-dispatcher"

type Consumer struct {
	service    service.NotificationService
	subscriber bus.Subscriber
	logger     *zap.Logger
}

func NewConsumer(service service.NotificationService, subscriber bus.Subscriber, logger *zap.Logger) *Consumer {
	return &Consumer{
		service:    service,
		subscriber: subscriber,
		logger:     logger,
	}
}

func (c *Consumer) Start(ctx context.Context) error {
	return c.subscriber.Subscribe(
		ctx,
		GroupID,
		[]string{generalDomain.TopicOrderCreated, generalDomain.TopicOrderStatusChanged},
		c.HandleFact,
	)
}

// HandleFact always acknowledges: a notification that cannot be sent is
// logged and dropped.
func (c *Consumer) HandleFact(ctx context.Context, fact generalDomain.Fact) error {
	mylogger.Info(
		ctx,
		c.logger,
		"Processing message",
		zap.String("topic", fact.Topic),
		zap.String("event_type", string(fact.Type)),
		zap.String("event_id", fact.EventID),
	)

	var err error
	switch fact.Type {
	case generalDomain.FactOrderCreated:
		var event generalDomain.OrderCreatedEvent
		if err = fact.Decode(&event); err == nil {
			err = c.service.HandleOrderCreated(ctx, fact.EventID, event)
		}
	case generalDomain.FactOrderStatusChanged:
		var event generalDomain.OrderStatusChangedEvent
		if err = fact.Decode(&event); err == nil {
			err = c.service.HandleOrderStatusChanged(ctx, fact.EventID, event)
		}
	default:
		mylogger.Warn(ctx, c.logger, "Ignored event type", zap.String("event_type", string(fact.Type)))
		return nil
	}

	if err != nil {
		mylogger.Error(
			ctx,
			c.logger,
			"Failed to deliver notification",
			zap.String("event_id", fact.EventID),
			zap.String("event_type", string(fact.Type)),
			zap.Error(err),
		)
	}

	return nil
}
