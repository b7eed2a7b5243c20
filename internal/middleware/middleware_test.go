package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
}

func TestCheckoutToken(t *testing.T) {
	const secret = "checkout-secret"
	guarded := CheckoutToken(secret, zerolog.Nop())(okHandler())

	tests := []struct {
		name           string
		method         string
		path           string
		sessionID      string
		token          string
		expectedStatus int
	}{
		{
			name:           "Valid token",
			method:         http.MethodPost,
			path:           "/api/checkout",
			sessionID:      "sess-1",
			token:          GenerateCheckoutToken(secret, "sess-1"),
			expectedStatus: http.StatusOK,
		},
		{
			name:           "Missing token",
			method:         http.MethodPost,
			path:           "/api/checkout",
			sessionID:      "sess-1",
			expectedStatus: http.StatusForbidden,
		},
		{
			name:           "Missing session",
			method:         http.MethodPost,
			path:           "/api/checkout",
			token:          GenerateCheckoutToken(secret, "sess-1"),
			expectedStatus: http.StatusForbidden,
		},
		{
			name:           "Token for another session",
			method:         http.MethodPost,
			path:           "/api/checkout",
			sessionID:      "sess-1",
			token:          GenerateCheckoutToken(secret, "sess-2"),
			expectedStatus: http.StatusForbidden,
		},
		{
			name:           "Forged token",
			method:         http.MethodPost,
			path:           "/api/checkout",
			sessionID:      "sess-1",
			token:          "deadbeef",
			expectedStatus: http.StatusForbidden,
		},
		{
			name:           "Webhook route not guarded",
			method:         http.MethodPost,
			path:           "/api/webhooks/payment",
			expectedStatus: http.StatusOK,
		},
		{
			name:           "Order lookup not guarded",
			method:         http.MethodGet,
			path:           "/api/orders/123",
			expectedStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.sessionID != "" {
				req.Header.Set("X-Session-ID", tt.sessionID)
			}
			if tt.token != "" {
				req.Header.Set("X-Checkout-Token", tt.token)
			}
			rec := httptest.NewRecorder()
			guarded.ServeHTTP(rec, req)

			assert.Equal(t, tt.expectedStatus, rec.Code)
		})
	}
}

func TestCORS_Preflight(t *testing.T) {
	handler := CORS(okHandler())

	req := httptest.NewRequest(http.MethodOptions, "/api/checkout", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "X-Checkout-Token")
	// The gateway-owned identity header is not offered to browsers.
	assert.NotContains(t, rec.Header().Get("Access-Control-Allow-Headers"), "X-User-ID")
}

func TestRecovery(t *testing.T) {
	handler := Recovery(zerolog.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "INTERNAL_ERROR")
}

func TestLogging_PassesThrough(t *testing.T) {
	handler := Logging(zerolog.Nop())(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}
