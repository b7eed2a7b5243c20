package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"storefront/internal/config"
	"storefront/internal/model"
	"storefront/internal/shipping"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func testCheckoutConfig() config.CheckoutConfig {
	return config.CheckoutConfig{
		Currency:    "EUR",
		TaxRate:     decimal.Zero,
		TokenSecret: "test-secret",
	}
}

func testProduct(id string, price string, stock int) model.Product {
	p, err := model.NewMoneyFromString(price, "EUR")
	if err != nil {
		panic(err)
	}
	return model.Product{
		ID:            id,
		SKU:           "SKU-" + id,
		Name:          "Product " + id,
		Price:         p,
		StockQuantity: stock,
		IsActive:      true,
		CreatedAt:     time.Now().UTC(),
	}
}

func testAddress() model.Address {
	return model.Address{
		FirstName:  "Ada",
		LastName:   "Lovelace",
		Street:     "12 Analytical Way",
		City:       "London",
		PostalCode: "N1 9GU",
		Country:    "GB",
	}
}

func testCheckoutRequest() model.CheckoutRequest {
	return model.CheckoutRequest{
		SessionID: "sess-1",
		Items: []model.CheckoutItemRequest{
			{ProductID: "prod-1", Quantity: 2},
		},
		ShippingAddress:  testAddress(),
		ShippingMethodID: "standard",
		PaymentMethod:    model.PaymentMethodCreditCard,
		PaymentConfirmation: model.PaymentConfirmation{
			Success:         true,
			TransactionID:   "txn_123",
			PaymentIntentID: "pi_123",
		},
		GuestEmail: "ada@example.com",
	}
}

func newCheckoutService(orderRepo *MockOrderRepository, productRepo *MockProductRepository) CheckoutService {
	return NewCheckoutService(orderRepo, productRepo, shipping.DefaultTable("EUR"), testCheckoutConfig(), zerolog.Nop())
}

func TestCheckout_Success(t *testing.T) {
	orderRepo := new(MockOrderRepository)
	productRepo := new(MockProductRepository)
	svc := newCheckoutService(orderRepo, productRepo)

	productRepo.On("GetByIDs", mock.Anything, []string{"prod-1"}).
		Return([]model.Product{testProduct("prod-1", "12.50", 10)}, nil)

	var committed model.Order
	orderRepo.On("CreateOrderWithInventory", mock.Anything, mock.AnythingOfType("model.Order")).
		Run(func(args mock.Arguments) {
			committed = args.Get(1).(model.Order)
		}).
		Return(nil)

	resp, err := svc.Checkout(context.Background(), testCheckoutRequest())
	require.NoError(t, err)

	// 12.50 × 2 + 5.99 standard shipping, zero tax.
	assert.Equal(t, "30.99", resp.Total)
	assert.Equal(t, "EUR", resp.Currency)
	assert.Equal(t, model.StatusPending, resp.Status)
	assert.Equal(t, model.PaymentPending, resp.PaymentStatus)
	assert.NotEmpty(t, resp.OrderNumber)

	require.Len(t, committed.Items, 1)
	assert.Equal(t, "12.50", committed.Items[0].UnitPrice.AmountString())
	assert.Equal(t, 2, committed.Items[0].Quantity)
	assert.Equal(t, "pi_123", committed.PaymentIntentID)
	assert.Equal(t, "5.99", committed.ShippingCost.AmountString())

	orderRepo.AssertExpectations(t)
	productRepo.AssertExpectations(t)
}

func TestCheckout_TaxApplied(t *testing.T) {
	orderRepo := new(MockOrderRepository)
	productRepo := new(MockProductRepository)
	cfg := testCheckoutConfig()
	cfg.TaxRate = decimal.NewFromFloat(0.20)
	svc := NewCheckoutService(orderRepo, productRepo, shipping.DefaultTable("EUR"), cfg, zerolog.Nop())

	productRepo.On("GetByIDs", mock.Anything, mock.Anything).
		Return([]model.Product{testProduct("prod-1", "10.00", 10)}, nil)
	orderRepo.On("CreateOrderWithInventory", mock.Anything, mock.Anything).Return(nil)

	resp, err := svc.Checkout(context.Background(), testCheckoutRequest())
	require.NoError(t, err)

	// subtotal 20.00 + tax 4.00 + shipping 5.99
	assert.Equal(t, "29.99", resp.Total)
}

func TestCheckout_ClientPriceIgnored(t *testing.T) {
	orderRepo := new(MockOrderRepository)
	productRepo := new(MockProductRepository)
	svc := newCheckoutService(orderRepo, productRepo)

	productRepo.On("GetByIDs", mock.Anything, mock.Anything).
		Return([]model.Product{testProduct("prod-1", "12.50", 10)}, nil)

	var committed model.Order
	orderRepo.On("CreateOrderWithInventory", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			committed = args.Get(1).(model.Order)
		}).
		Return(nil)

	req := testCheckoutRequest()
	req.Items[0].ClientAssertedPrice = 0.01
	req.ClientTotal = 5.00

	resp, err := svc.Checkout(context.Background(), req)
	require.NoError(t, err)

	// The catalog price wins regardless of what the client asserted.
	assert.Equal(t, "30.99", resp.Total)
	assert.Equal(t, "12.50", committed.Items[0].UnitPrice.AmountString())
}

func TestCheckout_ValidationFailures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*model.CheckoutRequest)
	}{
		{
			name:   "No items",
			mutate: func(r *model.CheckoutRequest) { r.Items = nil },
		},
		{
			name:   "Zero quantity",
			mutate: func(r *model.CheckoutRequest) { r.Items[0].Quantity = 0 },
		},
		{
			name:   "Negative quantity",
			mutate: func(r *model.CheckoutRequest) { r.Items[0].Quantity = -3 },
		},
		{
			name:   "Missing product id",
			mutate: func(r *model.CheckoutRequest) { r.Items[0].ProductID = "" },
		},
		{
			name:   "No identity",
			mutate: func(r *model.CheckoutRequest) { r.GuestEmail = "" },
		},
		{
			name: "Both identities",
			mutate: func(r *model.CheckoutRequest) {
				r.UserID = "user-1"
				r.GuestEmail = "ada@example.com"
			},
		},
		{
			name:   "Incomplete shipping address",
			mutate: func(r *model.CheckoutRequest) { r.ShippingAddress.City = "" },
		},
		{
			name: "Incomplete billing address",
			mutate: func(r *model.CheckoutRequest) {
				billing := testAddress()
				billing.Country = ""
				r.BillingAddress = &billing
			},
		},
		{
			name:   "Unknown payment method",
			mutate: func(r *model.CheckoutRequest) { r.PaymentMethod = "cheque" },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orderRepo := new(MockOrderRepository)
			productRepo := new(MockProductRepository)
			svc := newCheckoutService(orderRepo, productRepo)

			req := testCheckoutRequest()
			tt.mutate(&req)

			_, err := svc.Checkout(context.Background(), req)
			require.Error(t, err)

			var domainErr *model.DomainError
			require.ErrorAs(t, err, &domainErr)
			assert.Equal(t, model.ErrCodeValidationFailed, domainErr.Code)

			orderRepo.AssertNotCalled(t, "CreateOrderWithInventory", mock.Anything, mock.Anything)
		})
	}
}

func TestCheckout_PaymentNotConfirmed(t *testing.T) {
	orderRepo := new(MockOrderRepository)
	productRepo := new(MockProductRepository)
	svc := newCheckoutService(orderRepo, productRepo)

	req := testCheckoutRequest()
	req.PaymentConfirmation.Success = false

	_, err := svc.Checkout(context.Background(), req)
	assert.ErrorIs(t, err, model.ErrPaymentNotConfirmed)
	orderRepo.AssertNotCalled(t, "CreateOrderWithInventory", mock.Anything, mock.Anything)
}

func TestCheckout_UnknownShippingMethod(t *testing.T) {
	orderRepo := new(MockOrderRepository)
	productRepo := new(MockProductRepository)
	svc := newCheckoutService(orderRepo, productRepo)

	req := testCheckoutRequest()
	req.ShippingMethodID = "drone"

	_, err := svc.Checkout(context.Background(), req)
	var domainErr *model.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, model.ErrCodeValidationFailed, domainErr.Code)
}

func TestCheckout_ProductUnavailable(t *testing.T) {
	tests := []struct {
		name     string
		products []model.Product
	}{
		{
			name:     "Product missing from catalog",
			products: []model.Product{},
		},
		{
			name: "Product inactive",
			products: func() []model.Product {
				p := testProduct("prod-1", "12.50", 10)
				p.IsActive = false
				return []model.Product{p}
			}(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orderRepo := new(MockOrderRepository)
			productRepo := new(MockProductRepository)
			svc := newCheckoutService(orderRepo, productRepo)

			productRepo.On("GetByIDs", mock.Anything, mock.Anything).Return(tt.products, nil)

			_, err := svc.Checkout(context.Background(), testCheckoutRequest())
			var unavailable *model.ProductUnavailableError
			require.ErrorAs(t, err, &unavailable)
			assert.Equal(t, "prod-1", unavailable.ProductID)
			orderRepo.AssertNotCalled(t, "CreateOrderWithInventory", mock.Anything, mock.Anything)
		})
	}
}

func TestCheckout_StockConflictPropagates(t *testing.T) {
	orderRepo := new(MockOrderRepository)
	productRepo := new(MockProductRepository)
	svc := newCheckoutService(orderRepo, productRepo)

	productRepo.On("GetByIDs", mock.Anything, mock.Anything).
		Return([]model.Product{testProduct("prod-1", "12.50", 1)}, nil)
	orderRepo.On("CreateOrderWithInventory", mock.Anything, mock.Anything).
		Return(model.NewInsufficientStockError([]string{"prod-1"}))

	_, err := svc.Checkout(context.Background(), testCheckoutRequest())
	var stockErr *model.StockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, model.ErrCodeInsufficientStock, stockErr.Code)
	assert.False(t, stockErr.Retryable())
}

func TestCheckout_CatalogLookupError(t *testing.T) {
	orderRepo := new(MockOrderRepository)
	productRepo := new(MockProductRepository)
	svc := newCheckoutService(orderRepo, productRepo)

	productRepo.On("GetByIDs", mock.Anything, mock.Anything).
		Return(nil, errors.New("connection refused"))

	_, err := svc.Checkout(context.Background(), testCheckoutRequest())
	require.Error(t, err)
	orderRepo.AssertNotCalled(t, "CreateOrderWithInventory", mock.Anything, mock.Anything)
}

func TestGetOrder(t *testing.T) {
	orderRepo := new(MockOrderRepository)
	productRepo := new(MockProductRepository)
	svc := newCheckoutService(orderRepo, productRepo)

	id := uuid.New()
	stored := &model.Order{ID: id, OrderNumber: "ORD-20250601-ABCD1234"}
	orderRepo.On("GetByID", mock.Anything, id).Return(stored, nil)

	order, err := svc.GetOrder(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, order)
	assert.Equal(t, stored.OrderNumber, order.OrderNumber)
}

func TestGetOrder_NotFound(t *testing.T) {
	orderRepo := new(MockOrderRepository)
	productRepo := new(MockProductRepository)
	svc := newCheckoutService(orderRepo, productRepo)

	id := uuid.New()
	orderRepo.On("GetByID", mock.Anything, id).Return(nil, nil)

	order, err := svc.GetOrder(context.Background(), id)
	require.NoError(t, err)
	assert.Nil(t, order)
}
