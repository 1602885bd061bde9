package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/IBM/sarama"
	"github.com/sakashimaa/go-marketplace/pkg/bus"
	"github.com/sakashimaa/go-marketplace/pkg/domain"
	"github.com/sakashimaa/go-marketplace/pkg/mylogger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type ConsumerGroup struct {
	brokers []string
	opts    bus.DeliveryOptions
	logger  *zap.Logger
}

func NewConsumerGroup(brokers []string, opts bus.DeliveryOptions, logger *zap.Logger) *ConsumerGroup {
	return &ConsumerGroup{
		brokers: brokers,
		opts:    opts,
		logger:  logger,
	}
}

func NewConsumerConfig() *sarama.Config {
	config := sarama.NewConfig()
	config.Version = sarama.V3_0_0_0
	config.Consumer.Return.Errors = true
	config.Consumer.Offsets.Initial = sarama.OffsetOldest
	config.Consumer.Offsets.AutoCommit.Enable = true
	config.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.BalanceStrategyRoundRobin}

	return config
}

// Subscribe joins group and consumes topics until ctx is done. Rebalances
// and broker errors restart the session; uncommitted messages are consumed
// again by whichever member owns the partition next.
func (c *ConsumerGroup) Subscribe(ctx context.Context, group string, topics []string, handler bus.Handler) error {
	cg, err := sarama.NewConsumerGroup(c.brokers, group, NewConsumerConfig())
	if err != nil {
		return fmt.Errorf("error creating consumer group %s: %w", group, err)
	}

	defer func() {
		if err := cg.Close(); err != nil {
			mylogger.Error(ctx, c.logger, "Error closing consumer group", zap.String("group", group), zap.Error(err))
		}
	}()

	go func() {
		for err := range cg.Errors() {
			mylogger.Error(ctx, c.logger, "Consumer group error", zap.String("group", group), zap.Error(err))
		}
	}()

	consumer := &saramaHandler{
		handler: handler,
		opts:    c.withLogging(group),
		logger:  c.logger,
		tracer:  otel.Tracer("pkg/kafka/consumer"),
	}

	for {
		err := cg.Consume(ctx, topics, consumer)
		if err != nil && !errors.Is(err, sarama.ErrClosedConsumerGroup) {
			mylogger.Error(ctx, c.logger, "Error consuming in consumer loop", zap.String("group", group), zap.Error(err))
		}

		if ctx.Err() != nil {
			mylogger.Info(ctx, c.logger, "Context cancelled, shutting down consumer", zap.String("group", group))
			return nil
		}
	}
}

func (c *ConsumerGroup) withLogging(group string) bus.DeliveryOptions {
	opts := c.opts
	onError := opts.OnError
	opts.OnError = func(fact domain.Fact, attempt int, err error) {
		c.logger.Warn(
			"Handler failed, message will be retried",
			zap.String("group", group),
			zap.String("topic", fact.Topic),
			zap.String("event_id", fact.EventID),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if onError != nil {
			onError(fact, attempt, err)
		}
	}

	return opts
}

type saramaHandler struct {
	handler bus.Handler
	opts    bus.DeliveryOptions
	logger  *zap.Logger
	tracer  trace.Tracer
}

func (h *saramaHandler) Setup(_ sarama.ConsumerGroupSession) error   { return nil }
func (h *saramaHandler) Cleanup(_ sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim retries each message until its handler succeeds and only then
// marks it, so a failing message blocks the rest of its partition instead of
// being skipped.
func (h *saramaHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if err := h.process(session.Context(), msg); err != nil {
				return nil
			}
			session.MarkMessage(msg, "")
		case <-session.Context().Done():
			return nil
		}
	}
}

func (h *saramaHandler) process(ctx context.Context, msg *sarama.ConsumerMessage) error {
	ctx, span := h.extractTracing(ctx, msg)
	defer span.End()

	fact, err := decodeMessage(msg)
	if err != nil {
		span.RecordError(err)
		mylogger.Error(
			ctx,
			h.logger,
			"Dropping undecodable message",
			zap.String("topic", msg.Topic),
			zap.Int32("partition", msg.Partition),
			zap.Int64("offset", msg.Offset),
			zap.Error(err),
		)

		return nil
	}

	span.SetAttributes(attribute.String("event_id", fact.EventID))

	return bus.Deliver(ctx, fact, h.handler, h.opts)
}

func decodeMessage(msg *sarama.ConsumerMessage) (domain.Fact, error) {
	var fact domain.Fact
	if err := json.Unmarshal(msg.Value, &fact); err != nil {
		return domain.Fact{}, fmt.Errorf("unmarshal fact: %w", err)
	}
	if fact.Topic == "" {
		fact.Topic = msg.Topic
	}
	if fact.PartitionKey == "" {
		fact.PartitionKey = string(msg.Key)
	}

	return fact, nil
}

func (h *saramaHandler) extractTracing(ctx context.Context, msg *sarama.ConsumerMessage) (context.Context, trace.Span) {
	carrier := propagation.MapCarrier{}
	for _, header := range msg.Headers {
		carrier[string(header.Key)] = string(header.Value)
	}

	ctx = otel.GetTextMapPropagator().Extract(ctx, carrier)

	return h.tracer.Start(ctx, "kafka_process",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.destination", msg.Topic),
			attribute.Int("messaging.kafka.partition", int(msg.Partition)),
			attribute.Int64("messaging.kafka.offset", msg.Offset),
		),
	)
}
