package email

import (
	"fmt"
	"strings"
	"time"

	generalDomain "github.com/sakashimaa/go-marketplace/pkg/domain"
)

const (
	banner    = "===========================================\n"
	separator = "-------------------------------------------\n"
	signature = "Thank you for using Marketplace Lite!\n"
)

func OrderCreated(to string, event generalDomain.OrderCreatedEvent) Message {
	var b strings.Builder

	b.WriteString(banner)
	b.WriteString("         NEW ORDER NOTIFICATION\n")
	b.WriteString(banner + "\n")
	fmt.Fprintf(&b, "Order ID: #%s\n", event.OrderID)
	fmt.Fprintf(&b, "User ID: %d\n", event.UserID)
	fmt.Fprintf(&b, "Created At: %s\n", event.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "Shipping Address: %s\n\n", event.ShippingAddress)

	b.WriteString(separator)
	b.WriteString("ORDER ITEMS:\n")
	b.WriteString(separator)
	for _, item := range event.Items {
		fmt.Fprintf(&b, "• %s (ID: %d)\n", item.ProductName, item.ProductID)
		fmt.Fprintf(&b, "  Quantity: %d x $%s\n", item.Quantity, formatCents(item.UnitPrice))
	}

	b.WriteString("\n" + separator)
	fmt.Fprintf(&b, "TOTAL AMOUNT: $%s\n", formatCents(event.TotalAmount))
	b.WriteString(separator + "\n")
	b.WriteString(signature)

	return Message{
		To:      to,
		Subject: fmt.Sprintf("🛒 New Order Created - Order #%s", event.OrderID),
		Body:    b.String(),
	}
}

func OrderStatusChanged(to string, event generalDomain.OrderStatusChangedEvent) Message {
	var b strings.Builder

	b.WriteString(banner)
	b.WriteString("      ORDER STATUS UPDATE NOTIFICATION\n")
	b.WriteString(banner + "\n")
	fmt.Fprintf(&b, "Order ID: #%s\n", event.OrderID)
	fmt.Fprintf(&b, "User ID: %d\n", event.UserID)
	fmt.Fprintf(&b, "Updated At: %s\n\n", event.UpdatedAt.Format(time.RFC3339))

	b.WriteString(separator)
	b.WriteString("STATUS CHANGE:\n")
	b.WriteString(separator)
	fmt.Fprintf(&b, "Previous Status: %s\n", event.PreviousStatus)
	fmt.Fprintf(&b, "New Status: %s\n", event.NewStatus)
	b.WriteString(separator + "\n")
	b.WriteString(signature)

	return Message{
		To:      to,
		Subject: fmt.Sprintf("📦 Order Status Updated - Order #%s", event.OrderID),
		Body:    b.String(),
	}
}

// formatCents renders 2500 as "25.00".
func formatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}

	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}
