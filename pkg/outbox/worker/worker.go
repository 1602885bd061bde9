package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sakashimaa/go-marketplace/pkg/bus"
	"github.com/sakashimaa/go-marketplace/pkg/metrics"
	"github.com/sakashimaa/go-marketplace/pkg/mylogger"
	"github.com/sakashimaa/go-marketplace/pkg/outbox/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var ErrBatchClosed = errors.New("outbox batch already closed")

type OutboxRepository interface {
	// Claim locks up to batchSize unpublished events, oldest first. The
	// returned batch must be committed or rolled back.
	Claim(ctx context.Context, batchSize int) (Batch, error)
}

type Batch interface {
	Events() []*domain.OutboxEvent
	MarkPublished(ctx context.Context, eventID int64) error
	MarkFailed(ctx context.Context, eventID int64, errMsg string) error
	Commit(ctx context.Context) error
	// Rollback is a no-op after Commit.
	Rollback(ctx context.Context) error
}

type OutboxProcessor struct {
	repo      OutboxRepository
	publisher bus.Publisher
	logger    *zap.Logger
	batchSize int
	interval  time.Duration
	tracer    trace.Tracer
}

func NewOutboxProcessor(
	repo OutboxRepository,
	publisher bus.Publisher,
	logger *zap.Logger,
	batchSize int,
	interval time.Duration,
) *OutboxProcessor {
	if batchSize <= 0 {
		batchSize = 50
	}
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}

	return &OutboxProcessor{
		repo:      repo,
		publisher: publisher,
		logger:    logger,
		batchSize: batchSize,
		interval:  interval,
		tracer:    otel.Tracer("outbox-worker"),
	}
}

func (p *OutboxProcessor) Start(ctx context.Context) {
	mylogger.Info(
		ctx,
		p.logger,
		"Starting outbox processor",
		zap.Int("batch_size", p.batchSize),
		zap.Duration("interval", p.interval),
	)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			mylogger.Info(
				ctx,
				p.logger,
				"Outbox processor stopping",
			)

			return
		case <-ticker.C:
			if _, err := p.ProcessBatch(ctx); err != nil {
				mylogger.Error(
					ctx,
					p.logger,
					"Error processing outbox batch",
					zap.Error(err),
				)
			}
		}
	}
}

// ProcessBatch forwards one batch of pending events and reports how many were
// published. Once an event of some partition key fails, the later events of
// that key in the batch are left pending so they cannot overtake it.
func (p *OutboxProcessor) ProcessBatch(ctx context.Context) (int, error) {
	ctx, span := p.tracer.Start(ctx, "OutboxProcessor.ProcessBatch")
	defer span.End()

	batch, err := p.repo.Claim(ctx, p.batchSize)
	if err != nil {
		span.RecordError(err)
		mylogger.Error(
			ctx,
			p.logger,
			"outbox worker failed to claim batch",
			zap.Error(err),
		)

		return 0, fmt.Errorf("error claiming outbox batch: %w", err)
	}
	defer func() {
		cleanupCtx := context.WithoutCancel(ctx)

		if err := batch.Rollback(cleanupCtx); err != nil {
			mylogger.Error(
				cleanupCtx,
				p.logger,
				"Outbox worker failed to rollback batch",
				zap.Error(err),
				zap.String("method_name", "ProcessBatch"),
			)
		}
	}()

	events := batch.Events()
	if len(events) == 0 {
		return 0, nil
	}

	span.SetAttributes(attribute.Int("outbox.batch_len", len(events)))
	mylogger.Debug(
		ctx,
		p.logger,
		"Processing outbox events",
		zap.Int("count", len(events)),
	)

	published := 0
	blocked := make(map[string]struct{})
	for _, event := range events {
		key := event.Fact.Topic + "/" + event.Fact.PartitionKey
		if _, ok := blocked[key]; ok {
			continue
		}

		if err := p.publisher.Publish(ctx, event.Fact); err != nil {
			blocked[key] = struct{}{}
			metrics.OutboxFailedTotal.Inc()

			mylogger.Error(
				ctx,
				p.logger,
				"outbox worker publish failed",
				zap.Int64("id", event.ID),
				zap.String("event_id", event.Fact.EventID),
				zap.Error(err),
			)
			if dbErr := batch.MarkFailed(ctx, event.ID, err.Error()); dbErr != nil {
				mylogger.Error(
					ctx,
					p.logger,
					"outbox worker mark event failed failed",
					zap.Int64("id", event.ID),
					zap.Error(dbErr),
				)
			}

			continue
		}

		if err := batch.MarkPublished(ctx, event.ID); err != nil {
			span.RecordError(err)
			mylogger.Error(
				ctx,
				p.logger,
				"Outbox worker failed to mark event published",
				zap.Int64("id", event.ID),
				zap.Error(err),
			)

			return published, err
		}

		published++
		metrics.OutboxPublishedTotal.Inc()
		mylogger.Debug(
			ctx,
			p.logger,
			"outbox worker event published successfully",
			zap.Int64("id", event.ID),
			zap.String("event_id", event.Fact.EventID),
		)
	}

	if err := batch.Commit(ctx); err != nil {
		span.RecordError(err)
		return published, fmt.Errorf("error committing outbox batch: %w", err)
	}

	return published, nil
}

// Drain runs batches until nothing is left to publish or a batch publishes
// nothing, e.g. because every remaining key is failing.
func (p *OutboxProcessor) Drain(ctx context.Context) error {
	for {
		n, err := p.ProcessBatch(ctx)
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
	}
}
