package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"
	"github.com/sakashimaa/go-marketplace/pkg/domain"
	"github.com/sakashimaa/go-marketplace/pkg/mylogger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	headerEventID   = "event_id"
	headerEventType = "event_type"
)

type Producer struct {
	syncProducer sarama.SyncProducer
	logger       *zap.Logger
	tracer       trace.Tracer
}

func NewProducerConfig() *sarama.Config {
	config := sarama.NewConfig()
	config.Version = sarama.V3_0_0_0
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Idempotent = true
	config.Producer.Partitioner = sarama.NewHashPartitioner
	// retries must not reorder messages of the same key
	config.Net.MaxOpenRequests = 1

	return config
}

func NewProducer(brokers []string, logger *zap.Logger) (*Producer, error) {
	p, err := sarama.NewSyncProducer(brokers, NewProducerConfig())
	if err != nil {
		return nil, fmt.Errorf("error creating producer: %w", err)
	}

	return &Producer{
		syncProducer: p,
		logger:       logger,
		tracer:       otel.Tracer("pkg/kafka/producer"),
	}, nil
}

// Publish sends facts one by one and stops at the first failure, so a caller
// retrying the remainder never publishes a later fact of a key before an
// earlier one.
func (p *Producer) Publish(ctx context.Context, facts ...domain.Fact) error {
	for _, fact := range facts {
		if err := p.send(ctx, fact); err != nil {
			return err
		}
	}

	return nil
}

func (p *Producer) send(ctx context.Context, fact domain.Fact) error {
	ctx, span := p.tracer.Start(ctx, "kafka_produce", trace.WithSpanKind(trace.SpanKindProducer))
	defer span.End()

	span.SetAttributes(
		attribute.String("messaging.destination", fact.Topic),
		attribute.String("event_id", fact.EventID),
	)

	msg, err := toProducerMessage(ctx, fact)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "encode failed")
		return err
	}

	partition, offset, err := p.syncProducer.SendMessage(msg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "send failed")
		return fmt.Errorf("error sending event %s to %s: %w", fact.EventID, fact.Topic, err)
	}

	mylogger.Debug(
		ctx,
		p.logger,
		"Message sent",
		zap.String("topic", fact.Topic),
		zap.String("event_id", fact.EventID),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
	)

	return nil
}

func toProducerMessage(ctx context.Context, fact domain.Fact) (*sarama.ProducerMessage, error) {
	value, err := json.Marshal(fact)
	if err != nil {
		return nil, fmt.Errorf("marshal event %s: %w", fact.EventID, err)
	}

	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)

	headers := []sarama.RecordHeader{
		{Key: []byte(headerEventID), Value: []byte(fact.EventID)},
		{Key: []byte(headerEventType), Value: []byte(fact.Type)},
	}
	for k, v := range carrier {
		headers = append(headers, sarama.RecordHeader{
			Key:   []byte(k),
			Value: []byte(v),
		})
	}

	return &sarama.ProducerMessage{
		Topic:   fact.Topic,
		Key:     sarama.StringEncoder(fact.PartitionKey),
		Value:   sarama.ByteEncoder(value),
		Headers: headers,
	}, nil
}

func (p *Producer) Close() error {
	return p.syncProducer.Close()
}
