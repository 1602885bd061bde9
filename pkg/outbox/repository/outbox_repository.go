package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	generalDomain "github.com/sakashimaa/go-marketplace/pkg/domain"
	"github.com/sakashimaa/go-marketplace/pkg/mylogger"
	"github.com/sakashimaa/go-marketplace/pkg/outbox/domain"
	"github.com/sakashimaa/go-marketplace/pkg/outbox/worker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// relayLockID serializes relays across processes. Two relays working on
// disjoint row sets could otherwise publish facts of one key out of order.
const relayLockID = 727100

type OutboxRepository interface {
	worker.OutboxRepository
	SaveFacts(ctx context.Context, tx pgx.Tx, facts ...generalDomain.Fact) error
}

type outboxRepo struct {
	pool   *pgxpool.Pool
	tracer trace.Tracer
	logger *zap.Logger
}

func NewOutboxRepository(pool *pgxpool.Pool, logger *zap.Logger) OutboxRepository {
	return &outboxRepo{
		pool:   pool,
		tracer: otel.Tracer("pkg/outbox_repo"),
		logger: logger,
	}
}

func (r *outboxRepo) SaveFacts(ctx context.Context, tx pgx.Tx, facts ...generalDomain.Fact) error {
	ctx, span := r.tracer.Start(ctx, "OutboxRepository.SaveFacts")
	defer span.End()

	span.SetAttributes(attribute.Int("facts_count", len(facts)))

	query := `
		INSERT INTO outbox (event_id, topic, partition_key, event_type, payload, produced_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	for _, fact := range facts {
		_, err := tx.Exec(
			ctx,
			query,
			fact.EventID,
			fact.Topic,
			fact.PartitionKey,
			string(fact.Type),
			[]byte(fact.Payload),
			fact.ProducedAt,
		)
		if err != nil {
			span.RecordError(err)
			mylogger.Error(
				ctx,
				r.logger,
				"Failed to save outbox event",
				zap.String("event_id", fact.EventID),
				zap.Error(err),
			)

			return fmt.Errorf("failed to save outbox event %s: %w", fact.EventID, err)
		}
	}

	return nil
}

func (r *outboxRepo) Claim(ctx context.Context, batchSize int) (worker.Batch, error) {
	ctx, span := r.tracer.Start(ctx, "OutboxRepository.Claim")
	defer span.End()

	span.SetAttributes(attribute.Int("batch_size", batchSize))

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("error beginning transaction: %w", err)
	}

	batch := &pgBatch{tx: tx, repo: r}

	var locked bool
	if err := tx.QueryRow(ctx, `SELECT pg_try_advisory_xact_lock($1)`, relayLockID).Scan(&locked); err != nil {
		span.RecordError(err)
		_ = batch.Rollback(context.WithoutCancel(ctx))

		return nil, fmt.Errorf("failed to acquire relay lock: %w", err)
	}
	if !locked {
		return batch, nil
	}

	query := `
		SELECT id, event_id, topic, partition_key, event_type, payload, produced_at, created_at, attempts, last_error
		FROM outbox
		WHERE published_at IS NULL
		ORDER BY id ASC
		LIMIT $1
		FOR UPDATE
	`

	rows, err := tx.Query(ctx, query, batchSize)
	if err != nil {
		span.RecordError(err)
		_ = batch.Rollback(context.WithoutCancel(ctx))

		return nil, fmt.Errorf("failed to query unpublished events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			e         domain.OutboxEvent
			eventType string
			payload   []byte
		)
		if err := rows.Scan(
			&e.ID,
			&e.Fact.EventID,
			&e.Fact.Topic,
			&e.Fact.PartitionKey,
			&eventType,
			&payload,
			&e.Fact.ProducedAt,
			&e.CreatedAt,
			&e.Attempts,
			&e.LastError,
		); err != nil {
			span.RecordError(err)
			rows.Close()
			_ = batch.Rollback(context.WithoutCancel(ctx))

			return nil, fmt.Errorf("error scanning event: %w", err)
		}

		e.Fact.Type = generalDomain.FactType(eventType)
		e.Fact.Payload = payload
		batch.events = append(batch.events, &e)
	}

	if err := rows.Err(); err != nil {
		span.RecordError(err)
		_ = batch.Rollback(context.WithoutCancel(ctx))

		return nil, fmt.Errorf("error reading events: %w", err)
	}

	span.SetAttributes(attribute.Int("result_count", len(batch.events)))

	return batch, nil
}

type pgBatch struct {
	tx     pgx.Tx
	repo   *outboxRepo
	events []*domain.OutboxEvent
}

func (b *pgBatch) Events() []*domain.OutboxEvent {
	return b.events
}

func (b *pgBatch) MarkPublished(ctx context.Context, eventID int64) error {
	ctx, span := b.repo.tracer.Start(ctx, "OutboxRepository.MarkEventPublished")
	defer span.End()

	span.SetAttributes(attribute.Int64("outbox.id", eventID))

	query := `
		UPDATE outbox
		SET published_at = NOW(), last_error = NULL
		WHERE id = $1;
	`

	if _, err := b.tx.Exec(ctx, query, eventID); err != nil {
		span.RecordError(err)
		return err
	}

	return nil
}

func (b *pgBatch) MarkFailed(ctx context.Context, eventID int64, errMsg string) error {
	ctx, span := b.repo.tracer.Start(ctx, "OutboxRepository.MarkEventFailed")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("outbox.id", eventID),
		attribute.String("outbox.error_message", errMsg),
	)

	query := `
		UPDATE outbox
		SET published_at = NULL,
			last_error = $1,
			attempts = attempts + 1
		WHERE id = $2;
	`

	if _, err := b.tx.Exec(ctx, query, errMsg, eventID); err != nil {
		span.RecordError(err)
		return err
	}

	return nil
}

func (b *pgBatch) Commit(ctx context.Context) error {
	return b.tx.Commit(ctx)
}

func (b *pgBatch) Rollback(ctx context.Context) error {
	err := b.tx.Rollback(ctx)
	if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return err
	}

	return nil
}
