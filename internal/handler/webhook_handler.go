package handler

import (
	"io"
	"net/http"

	"storefront/internal/model"
	"storefront/internal/payment"
	"storefront/internal/service"

	"github.com/rs/zerolog"
)

// maxWebhookBody bounds how much of a webhook request body is read.
const maxWebhookBody = 1 << 20

// WebhookHandler receives payment gateway events.
type WebhookHandler struct {
	verifier  *payment.Verifier
	reconcile service.ReconcileService
	logger    zerolog.Logger
}

// NewWebhookHandler creates a new webhook handler.
func NewWebhookHandler(verifier *payment.Verifier, reconcile service.ReconcileService, logger zerolog.Logger) *WebhookHandler {
	return &WebhookHandler{
		verifier:  verifier,
		reconcile: reconcile,
		logger:    logger.With().Str("handler", "webhook").Logger(),
	}
}

// webhookAck is the acknowledgement the gateway expects.
type webhookAck struct {
	Received  bool   `json:"received"`
	EventID   string `json:"eventId"`
	EventType string `json:"eventType"`
}

// HandlePaymentEvent handles POST /api/webhooks/payment requests. The
// signature is verified over the raw body before any parsing.
func (h *WebhookHandler) HandlePaymentEvent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, model.ErrCodeValidationFailed, "method not allowed", h.logger)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, model.ErrCodeInvalidJSON, "failed to read request body", h.logger)
		return
	}
	if len(body) == 0 {
		writeError(w, http.StatusBadRequest, model.ErrCodeInvalidJSON, "empty request body", h.logger)
		return
	}

	header := r.Header.Get(payment.SignatureHeader)
	if header == "" {
		writeError(w, http.StatusBadRequest, model.ErrCodeInvalidSignature, "missing signature header", h.logger)
		return
	}
	if err := h.verifier.Verify(body, header); err != nil {
		h.logger.Warn().Err(err).Msg("webhook signature rejected")
		writeError(w, http.StatusUnauthorized, model.ErrCodeInvalidSignature, "signature verification failed", h.logger)
		return
	}

	event, err := payment.ParseEvent(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, model.ErrCodeInvalidJSON, "invalid event payload", h.logger)
		return
	}

	if err := h.reconcile.HandleEvent(r.Context(), event); err != nil {
		// Surfacing a 500 makes the gateway redeliver; the dedup store and
		// state guards keep the retry safe.
		h.logger.Error().Err(err).Str("event_id", event.ID).Msg("event application failed")
		writeJSON(w, http.StatusInternalServerError, model.ErrorResponse{
			Error:   model.ErrCodeInternalError,
			Message: "failed to process event",
		})
		return
	}

	writeJSON(w, http.StatusOK, webhookAck{
		Received:  true,
		EventID:   event.ID,
		EventType: event.Type,
	})
}
