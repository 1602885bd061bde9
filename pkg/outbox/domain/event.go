package domain

import (
	"time"

	generalDomain "github.com/sakashimaa/go-marketplace/pkg/domain"
)

// OutboxEvent is a fact persisted in the same transaction as the state change
// it describes, waiting to be forwarded to the bus.
type OutboxEvent struct {
	ID          int64              `db:"id"`
	Fact        generalDomain.Fact `db:"-"`
	CreatedAt   time.Time          `db:"created_at"`
	PublishedAt *time.Time         `db:"published_at"`
	Attempts    int64              `db:"attempts"`
	LastError   *string            `db:"last_error"`
}
