// Package bus defines the publish/subscribe contract the services rely on.
//
// Delivery is at-least-once: a fact whose handler fails is delivered again,
// without limit, until a handler call returns nil. Facts sharing a partition
// key are delivered to a consumer group in the order they were published;
// nothing is promised across keys. Handlers must therefore be idempotent per
// event id and must not assume any cross-key ordering.
package bus

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sakashimaa/go-marketplace/pkg/domain"
)

type Handler func(ctx context.Context, fact domain.Fact) error

type Publisher interface {
	Publish(ctx context.Context, facts ...domain.Fact) error
}

type Subscriber interface {
	// Subscribe consumes topics as a member of group and blocks until ctx
	// is done.
	Subscribe(ctx context.Context, group string, topics []string, handler Handler) error
}

type DeliveryOptions struct {
	// AttemptTimeout bounds one handler call. Zero means no bound.
	AttemptTimeout  time.Duration
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// OnError observes failed attempts, e.g. for logging.
	OnError func(fact domain.Fact, attempt int, err error)
}

func (o DeliveryOptions) withDefaults() DeliveryOptions {
	if o.InitialInterval <= 0 {
		o.InitialInterval = 100 * time.Millisecond
	}
	if o.MaxInterval <= 0 {
		o.MaxInterval = 30 * time.Second
	}

	return o
}

// Deliver calls handler until it returns nil. It only gives up when ctx is
// done, in which case the fact stays unacknowledged and ctx.Err() is returned.
func Deliver(ctx context.Context, fact domain.Fact, handler Handler, opts DeliveryOptions) error {
	opts = opts.withDefaults()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = opts.InitialInterval
	b.MaxInterval = opts.MaxInterval
	b.MaxElapsedTime = 0

	attempt := 0
	operation := func() error {
		attempt++

		attemptCtx := ctx
		if opts.AttemptTimeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, opts.AttemptTimeout)
			defer cancel()
		}

		err := handler(attemptCtx, fact)
		if err != nil && opts.OnError != nil {
			opts.OnError(fact, attempt, err)
		}

		return err
	}

	return backoff.Retry(operation, backoff.WithContext(b, ctx))
}
