package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"storefront/internal/config"
	"storefront/internal/handler"
	"storefront/internal/middleware"
	"storefront/internal/model"
	"storefront/internal/payment"
	"storefront/internal/repository"
	"storefront/internal/router"
	"storefront/internal/service"
	"storefront/internal/shipping"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	tokenSecret   = "integration-token-secret"
	webhookSecret = "integration-webhook-secret"
)

// memoryDedup is an in-process EventDedup so the API tests need no Redis.
type memoryDedup struct {
	mu   sync.Mutex
	seen map[string]bool
}

func newMemoryDedup() *memoryDedup {
	return &memoryDedup{seen: make(map[string]bool)}
}

func (d *memoryDedup) Seen(ctx context.Context, eventID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.seen[eventID], nil
}

func (d *memoryDedup) MarkProcessed(ctx context.Context, eventID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen[eventID] = true
	return nil
}

type testAPI struct {
	server   *httptest.Server
	verifier *payment.Verifier
	orders   repository.OrderRepository
}

func setupAPI(t *testing.T, testDB *TestDB) *testAPI {
	t.Helper()

	logger := zerolog.Nop()
	productRepo := repository.NewProductRepository(testDB.Pool, logger)
	orderRepo := repository.NewOrderRepository(testDB.Pool, logger)

	cfg := config.CheckoutConfig{
		Currency:    "EUR",
		TaxRate:     decimal.Zero,
		TokenSecret: tokenSecret,
	}
	checkoutService := service.NewCheckoutService(orderRepo, productRepo, shipping.DefaultTable("EUR"), cfg, logger)

	verifier := payment.NewVerifier(webhookSecret, 5*time.Minute)
	reconcileService := service.NewReconcileService(orderRepo, newMemoryDedup(), logger)

	mux := router.New(
		handler.NewCheckoutHandler(checkoutService, logger),
		handler.NewOrderHandler(checkoutService, logger),
		handler.NewWebhookHandler(verifier, reconcileService, logger),
		tokenSecret,
		logger,
	)

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return &testAPI{server: server, verifier: verifier, orders: orderRepo}
}

func (a *testAPI) checkout(t *testing.T, intentID string, items []map[string]interface{}) *http.Response {
	t.Helper()

	body, err := json.Marshal(map[string]interface{}{
		"sessionId": "sess-1",
		"items":     items,
		"shippingAddress": map[string]string{
			"firstName": "Ada", "lastName": "Lovelace", "street": "12 Analytical Way",
			"city": "London", "postalCode": "N1 9GU", "country": "GB",
		},
		"shippingMethodId": "standard",
		"paymentMethod":    "credit_card",
		"paymentConfirmation": map[string]interface{}{
			"success":         true,
			"paymentIntentId": intentID,
		},
		"guestEmail": "ada@example.com",
	})
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, a.server.URL+"/api/checkout", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Session-ID", "sess-1")
	req.Header.Set("X-Checkout-Token", middleware.GenerateCheckoutToken(tokenSecret, "sess-1"))

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func (a *testAPI) deliverEvent(t *testing.T, eventBody string) *http.Response {
	t.Helper()

	body := []byte(eventBody)
	req, err := http.NewRequest(http.MethodPost, a.server.URL+"/api/webhooks/payment", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set(payment.SignatureHeader, a.verifier.Sign(body, time.Now()))

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func succeededBody(eventID, intentID string, amountCents int64) string {
	return fmt.Sprintf(`{
		"id": %q,
		"type": "payment_intent.succeeded",
		"data": {"object": {"id": %q, "amount_received": %d, "currency": "eur"}}
	}`, eventID, intentID, amountCents)
}

func TestCheckoutAPI_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	testDB := SetupTestDB(t)
	api := setupAPI(t, testDB)
	ctx := context.Background()

	t.Run("Checkout then payment confirmation", func(t *testing.T) {
		CleanupDB(t, testDB.Pool)
		SeedProducts(t, testDB.Pool)

		resp := api.checkout(t, "pi_api_1", []map[string]interface{}{
			{"productId": "P001", "quantity": 2},
		})
		defer resp.Body.Close()
		require.Equal(t, http.StatusCreated, resp.StatusCode)

		var created model.CheckoutResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
		assert.Equal(t, "30.99", created.Total)
		assert.Equal(t, model.PaymentPending, created.PaymentStatus)
		assert.Equal(t, 8, StockQuantity(t, testDB.Pool, "P001"))

		// Gateway confirms the payment.
		whResp := api.deliverEvent(t, succeededBody("evt_api_1", "pi_api_1", 3099))
		defer whResp.Body.Close()
		require.Equal(t, http.StatusOK, whResp.StatusCode)

		stored, err := api.orders.GetByID(ctx, created.OrderID)
		require.NoError(t, err)
		assert.Equal(t, model.PaymentPaid, stored.PaymentStatus)
		assert.Equal(t, model.StatusProcessing, stored.Status)

		// Redelivery of the same event changes nothing.
		dup := api.deliverEvent(t, succeededBody("evt_api_1", "pi_api_1", 3099))
		defer dup.Body.Close()
		require.Equal(t, http.StatusOK, dup.StatusCode)

		again, err := api.orders.GetByID(ctx, created.OrderID)
		require.NoError(t, err)
		assert.Equal(t, stored.UpdatedAt, again.UpdatedAt)
	})

	t.Run("Webhook arriving before checkout is acknowledged", func(t *testing.T) {
		CleanupDB(t, testDB.Pool)
		SeedProducts(t, testDB.Pool)

		// No order carries this intent yet.
		resp := api.deliverEvent(t, succeededBody("evt_api_race", "pi_api_race", 3099))
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		// The checkout commits after the early webhook.
		checkoutResp := api.checkout(t, "pi_api_race", []map[string]interface{}{
			{"productId": "P001", "quantity": 2},
		})
		defer checkoutResp.Body.Close()
		require.Equal(t, http.StatusCreated, checkoutResp.StatusCode)
		var created model.CheckoutResponse
		require.NoError(t, json.NewDecoder(checkoutResp.Body).Decode(&created))

		// The gateway redelivers the same event id; it must not be dropped
		// as a duplicate of the early delivery.
		retry := api.deliverEvent(t, succeededBody("evt_api_race", "pi_api_race", 3099))
		defer retry.Body.Close()
		require.Equal(t, http.StatusOK, retry.StatusCode)

		stored, err := api.orders.GetByID(ctx, created.OrderID)
		require.NoError(t, err)
		assert.Equal(t, model.PaymentPaid, stored.PaymentStatus)
		assert.Equal(t, model.StatusProcessing, stored.Status)
	})

	t.Run("Checkout without token is forbidden", func(t *testing.T) {
		CleanupDB(t, testDB.Pool)
		SeedProducts(t, testDB.Pool)

		body := []byte(`{"items": []}`)
		req, err := http.NewRequest(http.MethodPost, api.server.URL+"/api/checkout", bytes.NewReader(body))
		require.NoError(t, err)

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("Insufficient stock returns typed conflict", func(t *testing.T) {
		CleanupDB(t, testDB.Pool)
		SeedProducts(t, testDB.Pool)

		resp := api.checkout(t, "pi_api_2", []map[string]interface{}{
			{"productId": "P004", "quantity": 2},
		})
		defer resp.Body.Close()
		require.Equal(t, http.StatusConflict, resp.StatusCode)

		var errResp model.ErrorResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&errResp))
		assert.Equal(t, model.ErrCodeInsufficientStock, errResp.Error)
		assert.Equal(t, 1, StockQuantity(t, testDB.Pool, "P004"))
	})

	t.Run("Webhook with bad signature is rejected", func(t *testing.T) {
		CleanupDB(t, testDB.Pool)
		SeedProducts(t, testDB.Pool)

		body := []byte(succeededBody("evt_api_3", "pi_api_3", 1000))
		forger := payment.NewVerifier("wrong-secret", 5*time.Minute)
		req, err := http.NewRequest(http.MethodPost, api.server.URL+"/api/webhooks/payment", bytes.NewReader(body))
		require.NoError(t, err)
		req.Header.Set(payment.SignatureHeader, forger.Sign(body, time.Now()))

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("Partial then full refund", func(t *testing.T) {
		CleanupDB(t, testDB.Pool)
		SeedProducts(t, testDB.Pool)

		resp := api.checkout(t, "pi_api_4", []map[string]interface{}{
			{"productId": "P001", "quantity": 2},
		})
		defer resp.Body.Close()
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		var created model.CheckoutResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))

		confirm := api.deliverEvent(t, succeededBody("evt_api_4a", "pi_api_4", 3099))
		confirm.Body.Close()

		// Partial refund leaves the order paid.
		partial := api.deliverEvent(t, `{
			"id": "evt_api_4b",
			"type": "charge.refunded",
			"data": {"object": {"id": "ch_4", "payment_intent": "pi_api_4", "amount": 3099, "amount_refunded": 1000, "currency": "eur", "refunded": false}}
		}`)
		partial.Body.Close()

		stored, err := api.orders.GetByID(ctx, created.OrderID)
		require.NoError(t, err)
		assert.Equal(t, model.PaymentPaid, stored.PaymentStatus)

		var refundCount int
		require.NoError(t, testDB.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM refund_events WHERE order_id = $1`, created.OrderID).Scan(&refundCount))
		assert.Equal(t, 1, refundCount)

		// Full refund cancels the order.
		full := api.deliverEvent(t, `{
			"id": "evt_api_4c",
			"type": "charge.refunded",
			"data": {"object": {"id": "ch_4", "payment_intent": "pi_api_4", "amount": 3099, "amount_refunded": 3099, "currency": "eur", "refunded": true}}
		}`)
		full.Body.Close()

		stored, err = api.orders.GetByID(ctx, created.OrderID)
		require.NoError(t, err)
		assert.Equal(t, model.PaymentRefunded, stored.PaymentStatus)
		assert.Equal(t, model.StatusCancelled, stored.Status)
	})

	t.Run("Order lookup", func(t *testing.T) {
		CleanupDB(t, testDB.Pool)
		SeedProducts(t, testDB.Pool)

		resp := api.checkout(t, "pi_api_5", []map[string]interface{}{
			{"productId": "P003", "quantity": 1},
		})
		defer resp.Body.Close()
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		var created model.CheckoutResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))

		lookup, err := http.Get(api.server.URL + "/api/orders/" + created.OrderID.String())
		require.NoError(t, err)
		defer lookup.Body.Close()
		require.Equal(t, http.StatusOK, lookup.StatusCode)

		var order model.Order
		require.NoError(t, json.NewDecoder(lookup.Body).Decode(&order))
		assert.Equal(t, created.OrderNumber, order.OrderNumber)
	})
}
