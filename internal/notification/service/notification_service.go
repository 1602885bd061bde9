package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sakashimaa/go-marketplace/internal/notification/dedup"
	"github.com/sakashimaa/go-marketplace/internal/notification/email"
	generalDomain "github.com/sakashimaa/go-marketplace/pkg/domain"
	"github.com/sakashimaa/go-marketplace/pkg/metrics"
	"github.com/sakashimaa/go-marketplace/pkg/mylogger"
	"github.com/sakashimaa/go-marketplace/pkg/utils"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type NotificationService interface {
	HandleOrderCreated(ctx context.Context, eventID string, event generalDomain.OrderCreatedEvent) error
	HandleOrderStatusChanged(ctx context.Context, eventID string, event generalDomain.OrderStatusChangedEvent) error
}

// RetryPolicy bounds how hard a single notification is pushed before it is
// given up on.
type RetryPolicy struct {
	Attempts        uint64
	InitialInterval time.Duration
}

var DefaultRetryPolicy = RetryPolicy{Attempts: 3, InitialInterval: 500 * time.Millisecond}

type notificationService struct {
	sender    email.Sender
	store     dedup.Store
	recipient string
	retry     RetryPolicy
	cb        *gobreaker.CircuitBreaker
	logger    *zap.Logger
	tracer    trace.Tracer
}

func NewNotificationService(
	sender email.Sender,
	store dedup.Store,
	recipient string,
	retry RetryPolicy,
	logger *zap.Logger,
) NotificationService {
	if retry.Attempts == 0 {
		retry.Attempts = 1
	}

	return &notificationService{
		sender:    sender,
		store:     store,
		recipient: recipient,
		retry:     retry,
		cb:        utils.NewBreaker("SMTP", logger),
		logger:    logger,
		tracer:    otel.Tracer("notification_service"),
	}
}

func (s *notificationService) HandleOrderCreated(ctx context.Context, eventID string, event generalDomain.OrderCreatedEvent) error {
	ctx, span := s.tracer.Start(ctx, "NotificationService.HandleOrderCreated")
	defer span.End()

	span.SetAttributes(
		attribute.String("event_id", eventID),
		attribute.String("order_id", event.OrderID),
	)

	return s.dispatch(ctx, eventID, email.OrderCreated(s.recipient, event))
}

func (s *notificationService) HandleOrderStatusChanged(ctx context.Context, eventID string, event generalDomain.OrderStatusChangedEvent) error {
	ctx, span := s.tracer.Start(ctx, "NotificationService.HandleOrderStatusChanged")
	defer span.End()

	span.SetAttributes(
		attribute.String("event_id", eventID),
		attribute.String("order_id", event.OrderID),
		attribute.String("status", event.NewStatus),
	)

	return s.dispatch(ctx, eventID, email.OrderStatusChanged(s.recipient, event))
}

func (s *notificationService) dispatch(ctx context.Context, eventID string, msg email.Message) error {
	claimed, err := s.store.Claim(ctx, eventID)
	switch {
	case err != nil:
		mylogger.Warn(
			ctx,
			s.logger,
			"Dedup store unavailable, sending anyway",
			zap.String("event_id", eventID),
			zap.Error(err),
		)
	case !claimed:
		metrics.NotificationsTotal.WithLabelValues("duplicate").Inc()
		mylogger.Info(
			ctx,
			s.logger,
			"Event already notified, skipping",
			zap.String("event_id", eventID),
		)

		return nil
	}

	if err := s.send(ctx, msg); err != nil {
		metrics.NotificationsTotal.WithLabelValues("failed").Inc()

		if claimed {
			if forgetErr := s.store.Forget(context.WithoutCancel(ctx), eventID); forgetErr != nil {
				mylogger.Warn(ctx, s.logger, "Failed to forget event", zap.String("event_id", eventID), zap.Error(forgetErr))
			}
		}

		return fmt.Errorf("notify event %s: %w", eventID, err)
	}

	metrics.NotificationsTotal.WithLabelValues("sent").Inc()
	mylogger.Info(
		ctx,
		s.logger,
		"Notification sent",
		zap.String("event_id", eventID),
		zap.String("subject", msg.Subject),
	)

	return nil
}

func (s *notificationService) send(ctx context.Context, msg email.Message) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.retry.InitialInterval
	b.MaxElapsedTime = 0

	operation := func() error {
		_, err := utils.ExecuteWithBreaker(s.cb, func() (struct{}, error) {
			return struct{}{}, s.sender.Send(ctx, msg)
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return backoff.Permanent(err)
		}

		return err
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(b, s.retry.Attempts-1), ctx)

	return backoff.Retry(operation, policy)
}
