package repository

import (
	"context"
	"sync"
	"time"

	generalDomain "github.com/sakashimaa/go-marketplace/pkg/domain"
	"github.com/sakashimaa/go-marketplace/pkg/outbox/domain"
	"github.com/sakashimaa/go-marketplace/pkg/outbox/worker"
)

// MemoryOutbox keeps pending events in process. A claimed batch holds the
// outbox lock until it is committed or rolled back, the same way the relay
// lock serializes relays in Postgres.
type MemoryOutbox struct {
	claim  sync.Mutex
	mu     sync.Mutex
	nextID int64
	events []*domain.OutboxEvent
}

func NewMemoryOutbox() *MemoryOutbox {
	return &MemoryOutbox{}
}

func (o *MemoryOutbox) Append(facts ...generalDomain.Fact) {
	o.mu.Lock()
	defer o.mu.Unlock()

	now := time.Now().UTC()
	for _, fact := range facts {
		o.nextID++
		o.events = append(o.events, &domain.OutboxEvent{
			ID:        o.nextID,
			Fact:      fact,
			CreatedAt: now,
		})
	}
}

// Pending returns the facts not yet published, oldest first.
func (o *MemoryOutbox) Pending() []generalDomain.Fact {
	o.mu.Lock()
	defer o.mu.Unlock()

	var facts []generalDomain.Fact
	for _, e := range o.events {
		if e.PublishedAt == nil {
			facts = append(facts, e.Fact)
		}
	}

	return facts
}

func (o *MemoryOutbox) Claim(ctx context.Context, batchSize int) (worker.Batch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	o.claim.Lock()

	o.mu.Lock()
	var events []*domain.OutboxEvent
	for _, e := range o.events {
		if len(events) == batchSize {
			break
		}
		if e.PublishedAt == nil {
			cp := *e
			events = append(events, &cp)
		}
	}
	o.mu.Unlock()

	return &memoryBatch{
		outbox:    o,
		events:    events,
		published: make(map[int64]struct{}),
		failed:    make(map[int64]string),
	}, nil
}

type memoryBatch struct {
	outbox    *MemoryOutbox
	events    []*domain.OutboxEvent
	published map[int64]struct{}
	failed    map[int64]string
	closed    bool
}

func (b *memoryBatch) Events() []*domain.OutboxEvent {
	return b.events
}

func (b *memoryBatch) MarkPublished(_ context.Context, eventID int64) error {
	if b.closed {
		return worker.ErrBatchClosed
	}

	b.published[eventID] = struct{}{}
	return nil
}

func (b *memoryBatch) MarkFailed(_ context.Context, eventID int64, errMsg string) error {
	if b.closed {
		return worker.ErrBatchClosed
	}

	b.failed[eventID] = errMsg
	return nil
}

func (b *memoryBatch) Commit(_ context.Context) error {
	if b.closed {
		return worker.ErrBatchClosed
	}

	b.outbox.mu.Lock()
	now := time.Now().UTC()
	for _, e := range b.outbox.events {
		if _, ok := b.published[e.ID]; ok {
			e.PublishedAt = &now
			e.LastError = nil
		}
		if msg, ok := b.failed[e.ID]; ok {
			e.Attempts++
			e.LastError = &msg
		}
	}
	b.outbox.mu.Unlock()

	b.close()
	return nil
}

func (b *memoryBatch) Rollback(_ context.Context) error {
	if !b.closed {
		b.close()
	}

	return nil
}

func (b *memoryBatch) close() {
	b.closed = true
	b.outbox.claim.Unlock()
}
