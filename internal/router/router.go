package router

import (
	"net/http"

	"storefront/internal/handler"
	"storefront/internal/middleware"

	"github.com/rs/zerolog"
)

// New creates the HTTP router with all routes and middleware configured.
//
// Identity contract: the checkout handler reads the authenticated user id
// from the X-User-ID header and trusts it as-is. The fronting gateway that
// performs authentication must strip any client-supplied X-User-ID before
// setting its own value (or none, for guest checkouts); this server must not
// be exposed to clients directly.
func New(
	checkoutHandler *handler.CheckoutHandler,
	orderHandler *handler.OrderHandler,
	webhookHandler *handler.WebhookHandler,
	checkoutTokenSecret string,
	logger zerolog.Logger,
) http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint (not guarded)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status": "healthy"}`))
	})

	mux.HandleFunc("/api/checkout", checkoutHandler.Create)

	// Order lookup only has the {id} form; the collection is not exposed.
	mux.HandleFunc("/api/orders/", orderHandler.GetByID)

	mux.HandleFunc("/api/webhooks/payment", webhookHandler.HandlePaymentEvent)

	// Apply middleware in order: Recovery -> Logging -> CORS -> CheckoutToken
	var h http.Handler = mux
	h = middleware.CheckoutToken(checkoutTokenSecret, logger)(h)
	h = middleware.CORS(h)
	h = middleware.Logging(logger)(h)
	h = middleware.Recovery(logger)(h)

	return h
}
