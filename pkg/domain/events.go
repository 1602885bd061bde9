package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

const (
	TopicOrderCreated       = "order-created"
	TopicOrderStatusChanged = "order-status-changed"
	TopicStockUpdate        = "stock-update"
)

type FactType string

const (
	FactOrderCreated       FactType = "OrderCreated"
	FactOrderStatusChanged FactType = "OrderStatusChanged"
	FactStockAdjusted      FactType = "StockAdjusted"
)

type StockDirection string

const (
	StockDecrease StockDirection = "DECREASE"
	StockIncrease StockDirection = "INCREASE"
)

// Fact is the envelope every message on the bus travels in. Facts are
// immutable once produced; consumers deduplicate on EventID.
type Fact struct {
	Topic        string          `json:"topic"`
	PartitionKey string          `json:"partition_key"`
	EventID      string          `json:"event_id"`
	Type         FactType        `json:"type"`
	Payload      json.RawMessage `json:"payload"`
	ProducedAt   time.Time       `json:"produced_at"`
}

func (f Fact) Decode(v any) error {
	if err := json.Unmarshal(f.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload of event %s: %w", f.Type, f.EventID, err)
	}

	return nil
}

type OrderItemEvent struct {
	ProductID   int64  `json:"product_id"`
	ProductName string `json:"product_name"`
	Quantity    int64  `json:"quantity"`
	UnitPrice   int64  `json:"unit_price"`
}

type OrderCreatedEvent struct {
	OrderID         string           `json:"order_id"`
	UserID          int64            `json:"user_id"`
	TotalAmount     int64            `json:"total_amount"`
	ShippingAddress string           `json:"shipping_address"`
	Items           []OrderItemEvent `json:"items"`
	CreatedAt       time.Time        `json:"created_at"`
}

type OrderStatusChangedEvent struct {
	OrderID        string    `json:"order_id"`
	UserID         int64     `json:"user_id"`
	PreviousStatus string    `json:"previous_status"`
	NewStatus      string    `json:"new_status"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type StockAdjustedEvent struct {
	ProductID int64          `json:"product_id"`
	OrderID   string         `json:"order_id"`
	Quantity  int64          `json:"quantity"`
	Delta     int64          `json:"delta"`
	Direction StockDirection `json:"direction"`
}

func NewEventID() string {
	return uuid.NewString()
}

func NewOrderCreatedFact(event OrderCreatedEvent) (Fact, error) {
	return newFact(TopicOrderCreated, event.OrderID, NewEventID(), FactOrderCreated, event)
}

func NewOrderStatusChangedFact(event OrderStatusChangedEvent) (Fact, error) {
	return newFact(TopicOrderStatusChanged, event.OrderID, NewEventID(), FactOrderStatusChanged, event)
}

// NewStockAdjustedFact keys the fact by product so every adjustment of one
// product is delivered in order. The caller chooses the event id because a
// decrease fact reuses the id its reservation was recorded under.
func NewStockAdjustedFact(eventID string, event StockAdjustedEvent) (Fact, error) {
	switch event.Direction {
	case StockDecrease:
		event.Delta = -event.Quantity
	case StockIncrease:
		event.Delta = event.Quantity
	default:
		return Fact{}, fmt.Errorf("unknown stock direction %q", event.Direction)
	}

	return newFact(TopicStockUpdate, strconv.FormatInt(event.ProductID, 10), eventID, FactStockAdjusted, event)
}

func newFact(topic, key, eventID string, factType FactType, payload any) (Fact, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Fact{}, fmt.Errorf("marshal %s payload: %w", factType, err)
	}

	return Fact{
		Topic:        topic,
		PartitionKey: key,
		EventID:      eventID,
		Type:         factType,
		Payload:      raw,
		ProducedAt:   time.Now().UTC(),
	}, nil
}
