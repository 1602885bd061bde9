package email

import (
	"testing"
	"time"

	generalDomain "github.com/sakashimaa/go-marketplace/pkg/domain"
	"github.com/stretchr/testify/require"
)

func TestOrderCreated(t *testing.T) {
	msg := OrderCreated("ops@example.com", generalDomain.OrderCreatedEvent{
		OrderID:         "o-1",
		UserID:          42,
		TotalAmount:     2500,
		ShippingAddress: "221B Baker Street",
		CreatedAt:       time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		Items: []generalDomain.OrderItemEvent{
			{ProductID: 1, ProductName: "Keyboard", Quantity: 2, UnitPrice: 1000},
			{ProductID: 2, ProductName: "Mouse", Quantity: 2, UnitPrice: 250},
		},
	})

	require.Equal(t, "ops@example.com", msg.To)
	require.Contains(t, msg.Subject, "Order #o-1")
	require.Contains(t, msg.Body, "NEW ORDER NOTIFICATION")
	require.Contains(t, msg.Body, "• Keyboard (ID: 1)\n  Quantity: 2 x $10.00")
	require.Contains(t, msg.Body, "  Quantity: 2 x $2.50")
	require.Contains(t, msg.Body, "TOTAL AMOUNT: $25.00")
	require.Contains(t, msg.Body, "Created At: 2024-05-01T10:00:00Z")
}

func TestOrderStatusChanged(t *testing.T) {
	msg := OrderStatusChanged("ops@example.com", generalDomain.OrderStatusChangedEvent{
		OrderID:        "o-1",
		UserID:         42,
		PreviousStatus: "PENDING",
		NewStatus:      "CANCELLED",
	})

	require.Contains(t, msg.Subject, "Order Status Updated")
	require.Contains(t, msg.Body, "Previous Status: PENDING\nNew Status: CANCELLED")
}

func TestCompose(t *testing.T) {
	raw := string(compose("shop@example.com", Message{To: "a@b.c", Subject: "Hi", Body: "one\ntwo"}))

	require.Contains(t, raw, "From: shop@example.com\r\n")
	require.Contains(t, raw, "Subject: Hi\r\n")
	require.Contains(t, raw, "\r\n\r\none\r\ntwo")
}

func TestFormatCents(t *testing.T) {
	require.Equal(t, "0.05", formatCents(5))
	require.Equal(t, "25.00", formatCents(2500))
	require.Equal(t, "-1.50", formatCents(-150))
}
