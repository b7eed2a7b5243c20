package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"storefront/internal/model"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// pgLockNotAvailable is the PostgreSQL error code raised by FOR UPDATE NOWAIT
// when another transaction already holds the row lock.
const pgLockNotAvailable = "55P03"

// orderRepository implements the OrderRepository interface using PostgreSQL.
type orderRepository struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewOrderRepository creates a new PostgreSQL-backed order repository.
func NewOrderRepository(pool *pgxpool.Pool, logger zerolog.Logger) OrderRepository {
	return &orderRepository{
		pool:   pool,
		logger: logger.With().Str("repository", "order").Logger(),
	}
}

// CreateOrderWithInventory inserts the order, its items and the inventory
// decrements as one transaction. Product rows are locked with FOR UPDATE
// NOWAIT in ascending id order; availability and stock are re-checked under
// the lock, so two concurrent checkouts cannot both take the last unit.
func (r *orderRepository) CreateOrderWithInventory(ctx context.Context, order model.Order) error {
	quantities := make(map[string]int, len(order.Items))
	for _, item := range order.Items {
		quantities[item.ProductID] += item.Quantity
	}
	ids := make([]string, 0, len(quantities))
	for id := range quantities {
		ids = append(ids, id)
	}
	// Deterministic lock order avoids deadlock between carts sharing products.
	sort.Strings(ids)

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to begin transaction")
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			r.logger.Error().Err(rbErr).Msg("failed to rollback transaction")
		}
	}()

	if err := r.lockAndDecrementStock(ctx, tx, ids, quantities); err != nil {
		return err
	}

	if err := r.insertOrder(ctx, tx, order); err != nil {
		return err
	}

	if err := r.insertOrderItems(ctx, tx, order); err != nil {
		return err
	}

	if err := r.insertInventoryLogs(ctx, tx, order, ids, quantities); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		r.logger.Error().Err(err).Str("order_id", order.ID.String()).Msg("failed to commit order transaction")
		return fmt.Errorf("failed to commit order transaction: %w", err)
	}

	r.logger.Debug().
		Str("order_id", order.ID.String()).
		Str("order_number", order.OrderNumber).
		Int("item_count", len(order.Items)).
		Msg("order committed with inventory decrement")

	return nil
}

// lockAndDecrementStock acquires row locks for every product, re-checks
// availability and stock at commit time, and applies the decrements.
func (r *orderRepository) lockAndDecrementStock(ctx context.Context, tx pgx.Tx, ids []string, quantities map[string]int) error {
	query := `
		SELECT id, is_active, stock_quantity
		FROM products
		WHERE id = ANY($1)
		ORDER BY id
		FOR UPDATE NOWAIT
	`

	rows, err := tx.Query(ctx, query, ids)
	if err != nil {
		return r.classifyLockError(err, ids)
	}

	type lockedProduct struct {
		active bool
		stock  int
	}
	locked := make(map[string]lockedProduct, len(ids))
	for rows.Next() {
		var (
			id     string
			active bool
			stock  int
		)
		if err := rows.Scan(&id, &active, &stock); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan locked product: %w", err)
		}
		locked[id] = lockedProduct{active: active, stock: stock}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return r.classifyLockError(err, ids)
	}

	var insufficient []string
	for _, id := range ids {
		p, ok := locked[id]
		if !ok || !p.active {
			r.logger.Warn().Str("product_id", id).Msg("product unavailable at commit time")
			return &model.ProductUnavailableError{ProductID: id}
		}
		if p.stock < quantities[id] {
			insufficient = append(insufficient, id)
		}
	}
	if len(insufficient) > 0 {
		r.logger.Warn().Strs("product_ids", insufficient).Msg("insufficient stock at commit time")
		return model.NewInsufficientStockError(insufficient)
	}

	batch := &pgx.Batch{}
	for _, id := range ids {
		batch.Queue(`UPDATE products SET stock_quantity = stock_quantity - $2 WHERE id = $1`, id, quantities[id])
	}
	results := tx.SendBatch(ctx, batch)
	defer results.Close()
	for range ids {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to decrement stock: %w", err)
		}
	}

	return nil
}

// classifyLockError translates lock contention into the typed retryable
// failure; anything else stays an internal error.
func (r *orderRepository) classifyLockError(err error, ids []string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgLockNotAvailable {
		r.logger.Warn().Strs("product_ids", ids).Msg("product rows locked by concurrent order")
		return model.NewProductLockedError(ids)
	}
	r.logger.Error().Err(err).Msg("failed to lock product rows")
	return fmt.Errorf("failed to lock product rows: %w", err)
}

func (r *orderRepository) insertOrder(ctx context.Context, tx pgx.Tx, order model.Order) error {
	shippingAddr, err := json.Marshal(order.ShippingAddress)
	if err != nil {
		return fmt.Errorf("failed to marshal shipping address: %w", err)
	}
	billingAddr, err := json.Marshal(order.BillingAddress)
	if err != nil {
		return fmt.Errorf("failed to marshal billing address: %w", err)
	}

	query := `
		INSERT INTO orders (
			id, order_number, user_id, guest_email, status, payment_status,
			payment_method, payment_intent_id, transaction_id, currency,
			shipping_cost, tax, shipping_address, billing_address,
			customer_notes, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`

	_, err = tx.Exec(ctx, query,
		order.ID,
		order.OrderNumber,
		nullString(order.UserID),
		nullString(order.GuestEmail),
		string(order.Status),
		string(order.PaymentStatus),
		string(order.PaymentMethod),
		nullString(order.PaymentIntentID),
		nullString(order.TransactionID),
		order.Currency(),
		order.ShippingCost.AmountString(),
		order.Tax.AmountString(),
		shippingAddr,
		billingAddr,
		nullString(order.CustomerNotes),
		order.CreatedAt,
		order.UpdatedAt,
	)
	if err != nil {
		r.logger.Error().Err(err).Str("order_id", order.ID.String()).Msg("failed to insert order")
		return fmt.Errorf("failed to insert order: %w", err)
	}

	return nil
}

func (r *orderRepository) insertOrderItems(ctx context.Context, tx pgx.Tx, order model.Order) error {
	query := `
		INSERT INTO order_items (id, order_id, product_id, product_snapshot, quantity, unit_price)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	batch := &pgx.Batch{}
	for _, item := range order.Items {
		snapshot, err := json.Marshal(item.Snapshot)
		if err != nil {
			return fmt.Errorf("failed to marshal product snapshot: %w", err)
		}
		batch.Queue(query, item.ID, order.ID, item.ProductID, snapshot, item.Quantity, item.UnitPrice.AmountString())
	}

	results := tx.SendBatch(ctx, batch)
	defer results.Close()

	for i := range order.Items {
		if _, err := results.Exec(); err != nil {
			r.logger.Error().
				Err(err).
				Str("order_id", order.ID.String()).
				Str("product_id", order.Items[i].ProductID).
				Msg("failed to insert order item")
			return fmt.Errorf("failed to insert order item: %w", err)
		}
	}

	return nil
}

func (r *orderRepository) insertInventoryLogs(ctx context.Context, tx pgx.Tx, order model.Order, ids []string, quantities map[string]int) error {
	query := `
		INSERT INTO inventory_logs (id, product_id, quantity_change, quantity_after, reason, reference_id, created_at)
		SELECT $1, $2, $3, stock_quantity, 'sale', $4, $5 FROM products WHERE id = $2
	`

	batch := &pgx.Batch{}
	for _, id := range ids {
		batch.Queue(query, uuid.New(), id, -quantities[id], order.ID, order.CreatedAt)
	}

	results := tx.SendBatch(ctx, batch)
	defer results.Close()

	for range ids {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to insert inventory log: %w", err)
		}
	}

	return nil
}

// GetByID retrieves an order by its ID along with its items.
func (r *orderRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	return r.getOrder(ctx, `WHERE id = $1`, id)
}

// GetByPaymentIntentID locates the order referenced by a gateway event.
func (r *orderRepository) GetByPaymentIntentID(ctx context.Context, paymentIntentID string) (*model.Order, error) {
	return r.getOrder(ctx, `WHERE payment_intent_id = $1`, paymentIntentID)
}

func (r *orderRepository) getOrder(ctx context.Context, where string, arg any) (*model.Order, error) {
	query := `
		SELECT id, order_number, user_id, guest_email, status, payment_status,
		       payment_method, payment_intent_id, transaction_id, currency,
		       shipping_cost, tax, shipping_address, billing_address,
		       customer_notes, created_at, updated_at
		FROM orders
	` + where

	var (
		order           model.Order
		userID          *string
		guestEmail      *string
		status          string
		paymentStatus   string
		paymentMethod   string
		paymentIntentID *string
		transactionID   *string
		currency        string
		shippingCost    string
		tax             string
		shippingAddr    []byte
		billingAddr     []byte
		customerNotes   *string
	)

	err := r.pool.QueryRow(ctx, query, arg).Scan(
		&order.ID,
		&order.OrderNumber,
		&userID,
		&guestEmail,
		&status,
		&paymentStatus,
		&paymentMethod,
		&paymentIntentID,
		&transactionID,
		&currency,
		&shippingCost,
		&tax,
		&shippingAddr,
		&billingAddr,
		&customerNotes,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error().Err(err).Msg("failed to query order")
		return nil, fmt.Errorf("failed to query order: %w", err)
	}

	order.UserID = deref(userID)
	order.GuestEmail = deref(guestEmail)
	order.Status = model.OrderStatus(status)
	order.PaymentStatus = model.PaymentStatus(paymentStatus)
	order.PaymentMethod = model.PaymentMethod(paymentMethod)
	order.PaymentIntentID = deref(paymentIntentID)
	order.TransactionID = deref(transactionID)
	order.CustomerNotes = deref(customerNotes)

	if order.ShippingCost, err = model.NewMoneyFromString(shippingCost, currency); err != nil {
		return nil, fmt.Errorf("invalid shipping cost on order %s: %w", order.ID, err)
	}
	if order.Tax, err = model.NewMoneyFromString(tax, currency); err != nil {
		return nil, fmt.Errorf("invalid tax on order %s: %w", order.ID, err)
	}
	if err := json.Unmarshal(shippingAddr, &order.ShippingAddress); err != nil {
		return nil, fmt.Errorf("invalid shipping address on order %s: %w", order.ID, err)
	}
	if err := json.Unmarshal(billingAddr, &order.BillingAddress); err != nil {
		return nil, fmt.Errorf("invalid billing address on order %s: %w", order.ID, err)
	}

	items, err := r.getOrderItems(ctx, order.ID, currency)
	if err != nil {
		return nil, err
	}
	order.Items = items

	return &order, nil
}

func (r *orderRepository) getOrderItems(ctx context.Context, orderID uuid.UUID, currency string) ([]model.OrderItem, error) {
	query := `
		SELECT id, order_id, product_id, product_snapshot, quantity, unit_price
		FROM order_items
		WHERE order_id = $1
		ORDER BY id
	`

	rows, err := r.pool.Query(ctx, query, orderID)
	if err != nil {
		r.logger.Error().Err(err).Str("order_id", orderID.String()).Msg("failed to query order items")
		return nil, fmt.Errorf("failed to query order items: %w", err)
	}
	defer rows.Close()

	var items []model.OrderItem
	for rows.Next() {
		var (
			item      model.OrderItem
			snapshot  []byte
			unitPrice string
		)
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &snapshot, &item.Quantity, &unitPrice); err != nil {
			r.logger.Error().Err(err).Msg("failed to scan order item row")
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		if err := json.Unmarshal(snapshot, &item.Snapshot); err != nil {
			return nil, fmt.Errorf("invalid product snapshot on item %s: %w", item.ID, err)
		}
		if item.UnitPrice, err = model.NewMoneyFromString(unitPrice, currency); err != nil {
			return nil, fmt.Errorf("invalid unit price on item %s: %w", item.ID, err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error().Err(err).Msg("error iterating order item rows")
		return nil, fmt.Errorf("error iterating order items: %w", err)
	}

	return items, nil
}

// UpdatePaymentState persists a payment transition with a compare-and-swap on
// the previous payment status. A concurrent writer that already moved the
// order leaves the update with zero affected rows; the caller treats that as
// an idempotent no-op.
func (r *orderRepository) UpdatePaymentState(ctx context.Context, order model.Order, expected model.PaymentStatus) (bool, error) {
	query := `
		UPDATE orders
		SET status = $2, payment_status = $3, transaction_id = $4, updated_at = $5
		WHERE id = $1 AND payment_status = $6
	`

	tag, err := r.pool.Exec(ctx, query,
		order.ID,
		string(order.Status),
		string(order.PaymentStatus),
		nullString(order.TransactionID),
		order.UpdatedAt,
		string(expected),
	)
	if err != nil {
		r.logger.Error().
			Err(err).
			Str("order_id", order.ID.String()).
			Str("payment_status", string(order.PaymentStatus)).
			Msg("failed to update payment state")
		return false, fmt.Errorf("failed to update payment state: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// RecordRefundEvent appends the refund audit row.
func (r *orderRepository) RecordRefundEvent(ctx context.Context, ev model.RefundEvent) error {
	query := `
		INSERT INTO refund_events (id, order_id, event_id, charge_id, amount_refunded, currency, full_refund, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (event_id) DO NOTHING
	`

	_, err := r.pool.Exec(ctx, query,
		ev.ID,
		ev.OrderID,
		ev.EventID,
		ev.ChargeID,
		ev.AmountRefunded.AmountString(),
		ev.AmountRefunded.Currency(),
		ev.FullRefund,
		ev.CreatedAt,
	)
	if err != nil {
		r.logger.Error().
			Err(err).
			Str("order_id", ev.OrderID.String()).
			Str("event_id", ev.EventID).
			Msg("failed to record refund event")
		return fmt.Errorf("failed to record refund event: %w", err)
	}

	return nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
