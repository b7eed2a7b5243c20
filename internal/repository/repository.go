package repository

import (
	"context"

	"storefront/internal/model"

	"github.com/google/uuid"
)

// ProductRepository defines the catalog read operations the checkout path
// needs. Catalog management itself lives elsewhere; this core only verifies
// against live rows.
type ProductRepository interface {
	// GetByIDs retrieves products by their IDs. Missing IDs are simply
	// absent from the result; callers decide what absence means.
	GetByIDs(ctx context.Context, ids []string) ([]model.Product, error)
}

// OrderRepository defines order persistence. The create path is a single
// atomic operation combining the order insert with the inventory decrement;
// there is no way to do one without the other.
type OrderRepository interface {
	// CreateOrderWithInventory inserts the order and its items and decrements
	// stock for every line, all in one transaction. Product rows are locked
	// in ascending id order; stock and availability are re-checked under the
	// lock. Failures are typed: *model.StockError for stock conflicts and
	// lock contention, *model.ProductUnavailableError for inactive or
	// vanished products.
	CreateOrderWithInventory(ctx context.Context, order model.Order) error

	// GetByID retrieves an order with its items. Returns (nil, nil) when the
	// order does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*model.Order, error)

	// GetByPaymentIntentID locates the order a gateway event references.
	// Returns (nil, nil) when no order carries the intent id yet.
	GetByPaymentIntentID(ctx context.Context, paymentIntentID string) (*model.Order, error)

	// UpdatePaymentState persists a payment transition. The update is a
	// compare-and-swap on the previous payment status so two concurrent
	// webhook deliveries cannot both apply; applied is false when another
	// writer got there first.
	UpdatePaymentState(ctx context.Context, order model.Order, expected model.PaymentStatus) (bool, error)

	// RecordRefundEvent appends a refund audit row. Partial refunds leave the
	// order untouched; this row is their only trace.
	RecordRefundEvent(ctx context.Context, ev model.RefundEvent) error
}
