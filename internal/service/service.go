package service

import (
	"context"

	"storefront/internal/model"
	"storefront/internal/payment"

	"github.com/google/uuid"
)

// CheckoutService defines the order-creation flow: every price and stock level
// is verified against the catalog before anything is committed.
type CheckoutService interface {
	// Checkout validates the cart, reprices it from the catalog, and commits
	// the order together with the stock decrement in one transaction.
	Checkout(ctx context.Context, req model.CheckoutRequest) (model.CheckoutResponse, error)

	// GetOrder retrieves an order by its ID. Returns (nil, nil) when the
	// order does not exist.
	GetOrder(ctx context.Context, id uuid.UUID) (*model.Order, error)
}

// ReconcileService applies payment gateway events to orders. Application is
// idempotent: redelivered and out-of-order events never corrupt payment
// state.
type ReconcileService interface {
	// HandleEvent applies a verified, parsed gateway event. A nil return
	// means the event was consumed, including benign no-op cases; errors are
	// reserved for persistence failures the gateway should retry.
	HandleEvent(ctx context.Context, event payment.Event) error
}
