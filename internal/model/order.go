package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderStatus is the fulfilment state of an order.
type OrderStatus string

const (
	StatusPending    OrderStatus = "pending"
	StatusProcessing OrderStatus = "processing"
	StatusShipped    OrderStatus = "shipped"
	StatusDelivered  OrderStatus = "delivered"
	StatusCancelled  OrderStatus = "cancelled"
)

// PaymentStatus is the payment state of an order.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

// PaymentMethod identifies how the customer chose to pay.
type PaymentMethod string

const (
	PaymentMethodCreditCard   PaymentMethod = "credit_card"
	PaymentMethodPayPal       PaymentMethod = "paypal"
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
)

// ValidPaymentMethod reports whether m is a known payment method.
func ValidPaymentMethod(m PaymentMethod) bool {
	switch m {
	case PaymentMethodCreditCard, PaymentMethodPayPal, PaymentMethodBankTransfer:
		return true
	}
	return false
}

// OrderItem is a priced product line captured as an immutable snapshot at
// purchase time.
type OrderItem struct {
	ID        uuid.UUID       `json:"-"`
	OrderID   uuid.UUID       `json:"-"`
	ProductID string          `json:"productId"`
	Snapshot  ProductSnapshot `json:"productSnapshot"`
	Quantity  int             `json:"quantity"`
	UnitPrice Money           `json:"unitPrice"`
}

// NewOrderItem builds an order line from the server-verified catalog product.
// The unit price always comes from the catalog, never from the client.
func NewOrderItem(product Product, quantity int) (OrderItem, error) {
	if quantity <= 0 {
		return OrderItem{}, ErrInvalidQuantity
	}
	return OrderItem{
		ID:        uuid.New(),
		ProductID: product.ID,
		Snapshot:  product.Snapshot(),
		Quantity:  quantity,
		UnitPrice: product.Price,
	}, nil
}

// Subtotal returns unit price multiplied by quantity.
func (i OrderItem) Subtotal() Money {
	return i.UnitPrice.Multiply(i.Quantity)
}

// Order is the aggregate root for a customer order. All consistency-sensitive
// mutations go through the named transition methods, each of which returns a
// new Order value instead of mutating in place, so a precondition failure is
// an ordinary error return.
type Order struct {
	ID              uuid.UUID     `json:"id"`
	OrderNumber     string        `json:"orderNumber"`
	UserID          string        `json:"userId,omitempty"`
	GuestEmail      string        `json:"guestEmail,omitempty"`
	Items           []OrderItem   `json:"items"`
	ShippingAddress Address       `json:"shippingAddress"`
	BillingAddress  Address       `json:"billingAddress"`
	ShippingCost    Money         `json:"shippingCost"`
	Tax             Money         `json:"tax"`
	Status          OrderStatus   `json:"status"`
	PaymentStatus   PaymentStatus `json:"paymentStatus"`
	PaymentMethod   PaymentMethod `json:"paymentMethod"`
	PaymentIntentID string        `json:"paymentIntentId,omitempty"`
	TransactionID   string        `json:"transactionId,omitempty"`
	CustomerNotes   string        `json:"customerNotes,omitempty"`
	CreatedAt       time.Time     `json:"createdAt"`
	UpdatedAt       time.Time     `json:"updatedAt"`
}

// OrderParams carries the inputs for constructing a new order.
type OrderParams struct {
	OrderNumber     string
	UserID          string
	GuestEmail      string
	Items           []OrderItem
	ShippingAddress Address
	BillingAddress  Address
	ShippingCost    Money
	Tax             Money
	PaymentMethod   PaymentMethod
	PaymentIntentID string
	CustomerNotes   string
}

// NewOrder constructs a pending order. It enforces a non-empty item list,
// exactly one customer identity path (user id or guest email) and a single
// currency across all monetary components.
func NewOrder(p OrderParams) (Order, error) {
	if len(p.Items) == 0 {
		return Order{}, ErrEmptyOrder
	}
	if (p.UserID == "") == (p.GuestEmail == "") {
		return Order{}, NewDomainError(ErrCodeValidationFailed, "Exactly one of userId or guestEmail is required")
	}

	currency := p.Items[0].UnitPrice.Currency()
	for _, item := range p.Items {
		if item.UnitPrice.Currency() != currency {
			return Order{}, ErrCurrencyMismatch
		}
	}
	if p.ShippingCost.Currency() != currency || p.Tax.Currency() != currency {
		return Order{}, ErrCurrencyMismatch
	}

	now := time.Now().UTC()
	return Order{
		ID:              uuid.New(),
		OrderNumber:     p.OrderNumber,
		UserID:          p.UserID,
		GuestEmail:      p.GuestEmail,
		Items:           p.Items,
		ShippingAddress: p.ShippingAddress,
		BillingAddress:  p.BillingAddress,
		ShippingCost:    p.ShippingCost,
		Tax:             p.Tax,
		Status:          StatusPending,
		PaymentStatus:   PaymentPending,
		PaymentMethod:   p.PaymentMethod,
		PaymentIntentID: p.PaymentIntentID,
		CustomerNotes:   p.CustomerNotes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// Currency returns the order's currency, taken from its first item.
func (o Order) Currency() string {
	if len(o.Items) == 0 {
		return ""
	}
	return o.Items[0].UnitPrice.Currency()
}

// Subtotal returns the sum of all item subtotals.
func (o Order) Subtotal() Money {
	sum := decimal.Zero
	for _, item := range o.Items {
		sum = sum.Add(item.Subtotal().Amount())
	}
	return NewMoney(sum, o.Currency())
}

// Total returns subtotal + shipping cost + tax. It is always recomputed from
// the components, never stored, so it cannot drift from them.
func (o Order) Total() Money {
	total := o.Subtotal().Amount().
		Add(o.ShippingCost.Amount()).
		Add(o.Tax.Amount())
	return NewMoney(total, o.Currency())
}

// ConfirmPayment records a successful payment capture. It is legal only when
// the payment has not already been confirmed; the AlreadyConfirmed failure is
// the idempotency guard the webhook reconciler relies on.
func (o Order) ConfirmPayment(transactionID string) (Order, error) {
	if o.PaymentStatus == PaymentPaid {
		return o, ErrAlreadyConfirmed
	}
	if o.PaymentStatus == PaymentRefunded {
		return o, ErrInvalidTransition
	}
	o.PaymentStatus = PaymentPaid
	o.Status = StatusProcessing
	o.TransactionID = transactionID
	o.UpdatedAt = time.Now().UTC()
	return o, nil
}

// MarkPaymentFailed records a failed payment attempt. It never overwrites a
// paid or refunded order (a failure event for an already-settled intent is
// stale) and is a no-op when the payment already failed. The second return
// reports whether the state actually advanced.
func (o Order) MarkPaymentFailed() (Order, bool) {
	if o.PaymentStatus != PaymentPending {
		return o, false
	}
	o.PaymentStatus = PaymentFailed
	o.UpdatedAt = time.Now().UTC()
	return o, true
}

// MarkAsShipped transitions the order to shipped. Requires a paid order that
// has not shipped yet.
func (o Order) MarkAsShipped() (Order, error) {
	if o.PaymentStatus != PaymentPaid {
		return o, ErrUnpaidOrder
	}
	if o.Status == StatusShipped || o.Status == StatusDelivered {
		return o, ErrAlreadyShipped
	}
	o.Status = StatusShipped
	o.UpdatedAt = time.Now().UTC()
	return o, nil
}

// MarkAsDelivered transitions the order to delivered. Legal only from
// shipped; delivered is terminal.
func (o Order) MarkAsDelivered() (Order, error) {
	if o.Status != StatusShipped {
		return o, ErrInvalidTransition
	}
	o.Status = StatusDelivered
	o.UpdatedAt = time.Now().UTC()
	return o, nil
}

// Cancel transitions the order to cancelled. Legal only while the order is
// pending or processing.
func (o Order) Cancel() (Order, error) {
	if o.Status != StatusPending && o.Status != StatusProcessing {
		return o, ErrNotCancellable
	}
	o.Status = StatusCancelled
	o.UpdatedAt = time.Now().UTC()
	return o, nil
}

// Refund records a full refund. Legal only for a paid order; refunded is
// terminal and also cancels the order.
func (o Order) Refund() (Order, error) {
	if o.PaymentStatus != PaymentPaid {
		return o, ErrUnpaidOrder
	}
	o.PaymentStatus = PaymentRefunded
	o.Status = StatusCancelled
	o.UpdatedAt = time.Now().UTC()
	return o, nil
}
