package model

import (
	"time"

	"github.com/google/uuid"
)

// CheckoutRequest is the cart submission payload. Client-asserted prices and
// totals are carried only so discrepancies can be logged; they are never used
// in any computation.
type CheckoutRequest struct {
	SessionID           string                `json:"sessionId"`
	Items               []CheckoutItemRequest `json:"items"`
	ShippingAddress     Address               `json:"shippingAddress"`
	BillingAddress      *Address              `json:"billingAddress,omitempty"`
	ShippingMethodID    string                `json:"shippingMethodId"`
	PaymentMethod       PaymentMethod         `json:"paymentMethod"`
	PaymentConfirmation PaymentConfirmation   `json:"paymentConfirmation"`
	ClientSubtotal      float64               `json:"clientSubtotal,omitempty"`
	ClientTotal         float64               `json:"clientTotal,omitempty"`
	UserID              string                `json:"-"`
	GuestEmail          string                `json:"guestEmail,omitempty"`
	CustomerNotes       string                `json:"customerNotes,omitempty"`
}

// CheckoutItemRequest is a single cart line as submitted by the client.
type CheckoutItemRequest struct {
	ProductID           string  `json:"productId"`
	Quantity            int     `json:"quantity"`
	ClientAssertedPrice float64 `json:"clientAssertedPrice,omitempty"`
}

// PaymentConfirmation is the result of the payment authorization the client
// already executed against the gateway. The checkout path only verifies and
// records it.
type PaymentConfirmation struct {
	Success         bool   `json:"success"`
	TransactionID   string `json:"transactionId,omitempty"`
	PaymentIntentID string `json:"paymentIntentId,omitempty"`
	Pending         bool   `json:"pending,omitempty"`
}

// CheckoutResponse is the success payload for a committed order.
type CheckoutResponse struct {
	OrderID       uuid.UUID     `json:"orderId"`
	OrderNumber   string        `json:"orderNumber"`
	Total         string        `json:"total"`
	Currency      string        `json:"currency"`
	Status        OrderStatus   `json:"status"`
	PaymentStatus PaymentStatus `json:"paymentStatus"`
	CreatedAt     time.Time     `json:"createdAt"`
}

// CheckoutResponseFromOrder projects a persisted order into the response
// shape.
func CheckoutResponseFromOrder(o Order) CheckoutResponse {
	return CheckoutResponse{
		OrderID:       o.ID,
		OrderNumber:   o.OrderNumber,
		Total:         o.Total().AmountString(),
		Currency:      o.Currency(),
		Status:        o.Status,
		PaymentStatus: o.PaymentStatus,
		CreatedAt:     o.CreatedAt,
	}
}

// RefundEvent is the audit record written when the gateway reports a refund.
// Partial refunds never change order status; the row is the only trace.
type RefundEvent struct {
	ID             uuid.UUID `json:"id"`
	OrderID        uuid.UUID `json:"orderId"`
	EventID        string    `json:"eventId"`
	ChargeID       string    `json:"chargeId"`
	AmountRefunded Money     `json:"amountRefunded"`
	FullRefund     bool      `json:"fullRefund"`
	CreatedAt      time.Time `json:"createdAt"`
}
