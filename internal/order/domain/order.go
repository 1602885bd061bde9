package domain

import (
	"fmt"
	"math"
	"time"

	generalDomain "github.com/sakashimaa/go-marketplace/pkg/domain"
)

// MaxLineQuantity caps a single order line.
const MaxLineQuantity int64 = 10_000

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusConfirmed OrderStatus = "CONFIRMED"
	OrderStatusShipped   OrderStatus = "SHIPPED"
	OrderStatusDelivered OrderStatus = "DELIVERED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

var transitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:   {OrderStatusConfirmed, OrderStatusCancelled},
	OrderStatusConfirmed: {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:   {OrderStatusDelivered, OrderStatusCancelled},
}

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled:
		return true
	}

	return false
}

func (s OrderStatus) Terminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}

	return false
}

// ValidateTransition returns ErrInvalidTransition for every move outside the
// lifecycle graph, including unknown statuses and self-transitions.
func ValidateTransition(from, to OrderStatus) error {
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("%s -> %s: %w", from, to, generalDomain.ErrInvalidTransition)
	}

	return nil
}

type Order struct {
	ID              string      `json:"id"`
	UserID          int64       `json:"user_id"`
	Status          OrderStatus `json:"status"`
	Items           []OrderItem `json:"items"`
	TotalAmount     int64       `json:"total_amount"`
	ShippingAddress string      `json:"shipping_address"`
	Notes           string      `json:"notes,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type OrderItem struct {
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int64  `json:"quantity"`
	Subtotal  int64  `json:"subtotal"`
}

// CalculateTotal fills every subtotal and the order total. Amounts that do
// not fit in int64 are rejected with ErrInvalidInput and leave o untouched.
func (o *Order) CalculateTotal() error {
	subtotals := make([]int64, len(o.Items))
	var total int64
	for i, item := range o.Items {
		if item.UnitPrice < 0 || item.Quantity <= 0 {
			return fmt.Errorf("product %d: negative price or non-positive quantity: %w", item.ProductID, generalDomain.ErrInvalidInput)
		}
		if item.UnitPrice > math.MaxInt64/item.Quantity {
			return fmt.Errorf("product %d: subtotal overflows: %w", item.ProductID, generalDomain.ErrInvalidInput)
		}
		subtotals[i] = item.UnitPrice * item.Quantity
		if total > math.MaxInt64-subtotals[i] {
			return fmt.Errorf("order total overflows: %w", generalDomain.ErrInvalidInput)
		}
		total += subtotals[i]
	}

	for i := range o.Items {
		o.Items[i].Subtotal = subtotals[i]
	}
	o.TotalAmount = total

	return nil
}

type OrderLine struct {
	ProductID int64
	Quantity  int64
}

type CreateOrderInput struct {
	Lines           []OrderLine
	ShippingAddress string
	Notes           string
}
