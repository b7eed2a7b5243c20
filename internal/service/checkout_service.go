package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"storefront/internal/config"
	"storefront/internal/model"
	"storefront/internal/repository"
	"storefront/internal/shipping"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// checkoutService implements CheckoutService.
type checkoutService struct {
	orderRepo   repository.OrderRepository
	productRepo repository.ProductRepository
	rates       shipping.Table
	cfg         config.CheckoutConfig
	logger      zerolog.Logger
}

// NewCheckoutService creates a new checkout service.
func NewCheckoutService(
	orderRepo repository.OrderRepository,
	productRepo repository.ProductRepository,
	rates shipping.Table,
	cfg config.CheckoutConfig,
	logger zerolog.Logger,
) CheckoutService {
	return &checkoutService{
		orderRepo:   orderRepo,
		productRepo: productRepo,
		rates:       rates,
		cfg:         cfg,
		logger:      logger.With().Str("service", "checkout").Logger(),
	}
}

// Checkout validates the cart, rebuilds every price from the catalog, and
// commits the order atomically with the stock decrement. Client-submitted
// prices and totals are never trusted; discrepancies are logged and the
// verified values win.
func (s *checkoutService) Checkout(ctx context.Context, req model.CheckoutRequest) (model.CheckoutResponse, error) {
	if err := s.validateRequest(req); err != nil {
		return model.CheckoutResponse{}, err
	}

	method, ok := s.rates.Lookup(req.ShippingMethodID)
	if !ok {
		return model.CheckoutResponse{}, model.NewDomainError(
			model.ErrCodeValidationFailed,
			fmt.Sprintf("Unknown shipping method: %s", req.ShippingMethodID),
		)
	}

	items, err := s.verifyItems(ctx, req)
	if err != nil {
		return model.CheckoutResponse{}, err
	}

	billing := req.ShippingAddress
	if req.BillingAddress != nil {
		billing = *req.BillingAddress
	}

	subtotal := model.Zero(s.cfg.Currency)
	for _, item := range items {
		subtotal, err = subtotal.Add(item.Subtotal())
		if err != nil {
			return model.CheckoutResponse{}, err
		}
	}
	tax := subtotal.MultiplyRate(s.cfg.TaxRate)

	order, err := model.NewOrder(model.OrderParams{
		OrderNumber:     generateOrderNumber(),
		UserID:          req.UserID,
		GuestEmail:      req.GuestEmail,
		Items:           items,
		ShippingAddress: model.NewAddress(req.ShippingAddress),
		BillingAddress:  model.NewAddress(billing),
		ShippingCost:    method.Price,
		Tax:             tax,
		PaymentMethod:   req.PaymentMethod,
		PaymentIntentID: req.PaymentConfirmation.PaymentIntentID,
		CustomerNotes:   req.CustomerNotes,
	})
	if err != nil {
		return model.CheckoutResponse{}, err
	}

	s.logClientTotalMismatch(req, order)

	if err := s.orderRepo.CreateOrderWithInventory(ctx, order); err != nil {
		s.logger.Warn().
			Err(err).
			Str("order_number", order.OrderNumber).
			Int("item_count", len(order.Items)).
			Msg("order commit failed")
		return model.CheckoutResponse{}, err
	}

	s.logger.Info().
		Str("order_id", order.ID.String()).
		Str("order_number", order.OrderNumber).
		Str("total", order.Total().String()).
		Int("item_count", len(order.Items)).
		Msg("order created successfully")

	return model.CheckoutResponseFromOrder(order), nil
}

// GetOrder retrieves an order by its ID.
func (s *checkoutService) GetOrder(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	order, err := s.orderRepo.GetByID(ctx, id)
	if err != nil {
		s.logger.Error().Err(err).Str("order_id", id.String()).Msg("failed to get order")
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	if order == nil {
		s.logger.Debug().Str("order_id", id.String()).Msg("order not found")
		return nil, nil
	}
	return order, nil
}

// validateRequest checks request shape before any catalog access.
func (s *checkoutService) validateRequest(req model.CheckoutRequest) error {
	var problems []string

	if len(req.Items) == 0 {
		problems = append(problems, "order must contain at least one item")
	}
	for i, item := range req.Items {
		if item.ProductID == "" {
			problems = append(problems, fmt.Sprintf("item %d: product ID is required", i))
		}
		if item.Quantity <= 0 {
			problems = append(problems, fmt.Sprintf("item %d: quantity must be a positive integer", i))
		}
	}

	if (req.UserID == "") == (req.GuestEmail == "") {
		problems = append(problems, "exactly one of user or guest email is required")
	}

	shippingAddr := model.NewAddress(req.ShippingAddress)
	for _, msg := range shippingAddr.ValidationErrors() {
		problems = append(problems, "shipping address: "+msg)
	}
	if req.BillingAddress != nil {
		billingAddr := model.NewAddress(*req.BillingAddress)
		for _, msg := range billingAddr.ValidationErrors() {
			problems = append(problems, "billing address: "+msg)
		}
	}

	if !model.ValidPaymentMethod(req.PaymentMethod) {
		problems = append(problems, fmt.Sprintf("unknown payment method: %s", req.PaymentMethod))
	}

	if len(problems) > 0 {
		return model.NewDomainError(model.ErrCodeValidationFailed, strings.Join(problems, "; "))
	}

	if !req.PaymentConfirmation.Success {
		return model.ErrPaymentNotConfirmed
	}

	return nil
}

// verifyItems fetches catalog rows for every cart line and rebuilds prices
// from them. A missing or inactive product fails the whole checkout.
func (s *checkoutService) verifyItems(ctx context.Context, req model.CheckoutRequest) ([]model.OrderItem, error) {
	ids := make([]string, len(req.Items))
	for i, item := range req.Items {
		ids[i] = item.ProductID
	}

	products, err := s.productRepo.GetByIDs(ctx, ids)
	if err != nil {
		s.logger.Error().Err(err).Int("product_count", len(ids)).Msg("catalog lookup failed")
		return nil, fmt.Errorf("failed to verify products: %w", err)
	}

	byID := make(map[string]model.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	items := make([]model.OrderItem, 0, len(req.Items))
	for _, line := range req.Items {
		product, found := byID[line.ProductID]
		if !found || !product.IsActive {
			s.logger.Warn().Str("product_id", line.ProductID).Msg("product unavailable at checkout")
			return nil, &model.ProductUnavailableError{ProductID: line.ProductID}
		}

		if line.ClientAssertedPrice != 0 {
			asserted := model.NewMoneyFromFloat(line.ClientAssertedPrice, product.Price.Currency())
			if !asserted.Equals(product.Price) {
				s.logger.Warn().
					Str("product_id", line.ProductID).
					Str("client_price", asserted.String()).
					Str("catalog_price", product.Price.String()).
					Msg("client price differs from catalog, using catalog price")
			}
		}

		item, err := model.NewOrderItem(product, line.Quantity)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	return items, nil
}

// logClientTotalMismatch compares the client's totals with the verified ones.
// Mismatches are expected when catalog prices changed mid-session and are
// informational only.
func (s *checkoutService) logClientTotalMismatch(req model.CheckoutRequest, order model.Order) {
	if req.ClientTotal == 0 {
		return
	}
	clientTotal := model.NewMoneyFromFloat(req.ClientTotal, order.Currency())
	if !clientTotal.Equals(order.Total()) {
		s.logger.Warn().
			Str("order_number", order.OrderNumber).
			Str("client_total", clientTotal.String()).
			Str("verified_total", order.Total().String()).
			Msg("client total differs from verified total")
	}
}

// generateOrderNumber produces a human-readable order reference, unique via a
// uuid fragment.
func generateOrderNumber() string {
	fragment := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("ORD-%s-%s", time.Now().UTC().Format("20060102"), fragment)
}
