package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"storefront/internal/model"
	"storefront/internal/payment"
	"storefront/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// amountToleranceCents is the largest captured-amount discrepancy that is
// attributed to rounding rather than flagged.
const amountToleranceCents = 1

// reconcileService implements ReconcileService.
type reconcileService struct {
	orderRepo repository.OrderRepository
	dedup     payment.EventDedup
	logger    zerolog.Logger
}

// NewReconcileService creates a new payment reconcile service.
func NewReconcileService(
	orderRepo repository.OrderRepository,
	dedup payment.EventDedup,
	logger zerolog.Logger,
) ReconcileService {
	return &reconcileService{
		orderRepo: orderRepo,
		dedup:     dedup,
		logger:    logger.With().Str("service", "reconcile").Logger(),
	}
}

// HandleEvent applies one gateway event. The event id is recorded in the
// dedup store only after its work finished: an event acknowledged without
// effect, because the webhook outran the checkout commit, stays unclaimed and
// the gateway's redelivery is applied normally, and a persistence failure
// leaves the id unclaimed so the retried delivery is not dropped. On top of
// the dedup store, every transition is guarded by the order state machine and
// a compare-and-swap write, so a duplicate that is processed concurrently is
// still a no-op.
func (s *reconcileService) HandleEvent(ctx context.Context, event payment.Event) error {
	seen, err := s.dedup.Seen(ctx, event.ID)
	if err != nil {
		// Dedup store outage: process anyway, the state guards below keep
		// duplicate application harmless.
		s.logger.Warn().Err(err).Str("event_id", event.ID).Msg("event dedup unavailable, relying on state guards")
	} else if seen {
		s.logger.Info().
			Str("event_id", event.ID).
			Str("event_type", event.Type).
			Msg("duplicate event delivery, skipping")
		return nil
	}

	var done bool
	switch event.Type {
	case payment.EventPaymentSucceeded:
		done, err = s.handlePaymentSucceeded(ctx, event)
	case payment.EventPaymentFailed:
		done, err = s.handlePaymentFailed(ctx, event)
	case payment.EventChargeRefunded:
		done, err = s.handleChargeRefunded(ctx, event)
	default:
		s.logger.Info().
			Str("event_id", event.ID).
			Str("event_type", event.Type).
			Msg("unhandled event type, ignoring")
		return nil
	}
	if err != nil {
		return err
	}
	if done {
		s.markProcessed(ctx, event)
	}
	return nil
}

// markProcessed records the event id once its work is finished. Best effort:
// a lost marker only costs a redundant redelivery that the state guards
// absorb.
func (s *reconcileService) markProcessed(ctx context.Context, event payment.Event) {
	if err := s.dedup.MarkProcessed(ctx, event.ID); err != nil {
		s.logger.Warn().Err(err).Str("event_id", event.ID).Msg("failed to record processed event id")
	}
}

// Event handlers report whether the event's work is done so HandleEvent can
// record the id. They return done=false without an error exactly when a
// redelivery of the same id should be processed again.

func (s *reconcileService) handlePaymentSucceeded(ctx context.Context, event payment.Event) (bool, error) {
	intent, err := event.PaymentIntent()
	if err != nil {
		// A malformed payload will not improve on retry.
		s.logger.Error().Err(err).Str("event_id", event.ID).Msg("unparseable payment intent payload")
		return true, nil
	}

	order, err := s.lookupOrder(ctx, event, intent.ID)
	if err != nil || order == nil {
		return false, err
	}

	s.checkCapturedAmount(event, intent, *order)

	confirmed, err := order.ConfirmPayment(intent.ID)
	if err != nil {
		var domainErr *model.DomainError
		if errors.As(err, &domainErr) {
			// Already confirmed or refunded: stale or duplicate delivery.
			s.logger.Info().
				Str("event_id", event.ID).
				Str("order_id", order.ID.String()).
				Str("code", domainErr.Code).
				Msg("payment confirmation is a no-op")
			return true, nil
		}
		return false, err
	}

	return s.applyTransition(ctx, event, confirmed, order.PaymentStatus, "payment confirmed")
}

func (s *reconcileService) handlePaymentFailed(ctx context.Context, event payment.Event) (bool, error) {
	intent, err := event.PaymentIntent()
	if err != nil {
		s.logger.Error().Err(err).Str("event_id", event.ID).Msg("unparseable payment intent payload")
		return true, nil
	}

	order, err := s.lookupOrder(ctx, event, intent.ID)
	if err != nil || order == nil {
		return false, err
	}

	failed, changed := order.MarkPaymentFailed()
	if !changed {
		// A failure event arriving after success is stale; paid stays paid.
		s.logger.Info().
			Str("event_id", event.ID).
			Str("order_id", order.ID.String()).
			Str("payment_status", string(order.PaymentStatus)).
			Msg("failure event does not apply to current payment state")
		return true, nil
	}

	if intent.LastPaymentError != nil {
		s.logger.Info().
			Str("order_id", order.ID.String()).
			Str("decline_code", intent.LastPaymentError.Code).
			Msg("payment declined by gateway")
	}

	return s.applyTransition(ctx, event, failed, order.PaymentStatus, "payment marked failed")
}

func (s *reconcileService) handleChargeRefunded(ctx context.Context, event payment.Event) (bool, error) {
	charge, err := event.Charge()
	if err != nil {
		s.logger.Error().Err(err).Str("event_id", event.ID).Msg("charge payload has no usable payment intent reference")
		return true, nil
	}

	order, err := s.lookupOrder(ctx, event, charge.PaymentIntent)
	if err != nil || order == nil {
		return false, err
	}

	fullRefund := charge.Refunded || charge.AmountRefunded >= charge.Amount
	refundAmount := model.NewMoneyFromCents(charge.AmountRefunded, strings.ToUpper(charge.Currency))

	if err := s.orderRepo.RecordRefundEvent(ctx, model.RefundEvent{
		ID:             uuid.New(),
		OrderID:        order.ID,
		EventID:        event.ID,
		ChargeID:       charge.ID,
		AmountRefunded: refundAmount,
		FullRefund:     fullRefund,
		CreatedAt:      time.Now().UTC(),
	}); err != nil {
		s.logger.Error().Err(err).Str("event_id", event.ID).Msg("failed to record refund event")
		return false, fmt.Errorf("failed to record refund event: %w", err)
	}

	if !fullRefund {
		// Partial refunds leave the order paid; the audit row is the trace.
		s.logger.Info().
			Str("order_id", order.ID.String()).
			Str("amount_refunded", refundAmount.String()).
			Msg("partial refund recorded")
		return true, nil
	}

	refunded, err := order.Refund()
	if err != nil {
		var domainErr *model.DomainError
		if errors.As(err, &domainErr) {
			s.logger.Warn().
				Str("event_id", event.ID).
				Str("order_id", order.ID.String()).
				Str("code", domainErr.Code).
				Msg("refund event does not apply to current payment state")
			return true, nil
		}
		return false, err
	}

	return s.applyTransition(ctx, event, refunded, order.PaymentStatus, "order refunded")
}

// lookupOrder resolves the order a gateway event references. A missing order
// is the benign race where the webhook outran the checkout commit; the
// gateway will redeliver.
func (s *reconcileService) lookupOrder(ctx context.Context, event payment.Event, intentID string) (*model.Order, error) {
	order, err := s.orderRepo.GetByPaymentIntentID(ctx, intentID)
	if err != nil {
		s.logger.Error().Err(err).Str("event_id", event.ID).Str("payment_intent_id", intentID).Msg("order lookup failed")
		return nil, fmt.Errorf("failed to look up order for payment intent %s: %w", intentID, err)
	}
	if order == nil {
		s.logger.Info().
			Str("event_id", event.ID).
			Str("payment_intent_id", intentID).
			Msg("no order for payment intent yet, acknowledging for redelivery")
		return nil, nil
	}
	return order, nil
}

// applyTransition persists a payment transition with a compare-and-swap on
// the previous status. Losing the swap means another delivery applied first.
func (s *reconcileService) applyTransition(ctx context.Context, event payment.Event, updated model.Order, expected model.PaymentStatus, action string) (bool, error) {
	applied, err := s.orderRepo.UpdatePaymentState(ctx, updated, expected)
	if err != nil {
		s.logger.Error().Err(err).Str("event_id", event.ID).Str("order_id", updated.ID.String()).Msg("failed to persist payment transition")
		return false, fmt.Errorf("failed to persist payment transition: %w", err)
	}
	if !applied {
		s.logger.Info().
			Str("event_id", event.ID).
			Str("order_id", updated.ID.String()).
			Msg("concurrent delivery already applied this transition")
		return true, nil
	}

	s.logger.Info().
		Str("event_id", event.ID).
		Str("order_id", updated.ID.String()).
		Str("payment_status", string(updated.PaymentStatus)).
		Msg(action)
	return true, nil
}

// checkCapturedAmount compares what the gateway captured against the order
// total. Small differences are rounding; anything larger, a reported zero
// capture included, is flagged for manual review but never blocks
// confirmation. A payload that omits the field entirely carries nothing to
// reconcile.
func (s *reconcileService) checkCapturedAmount(event payment.Event, intent payment.PaymentIntent, order model.Order) {
	if intent.AmountReceived == nil {
		return
	}
	diff := *intent.AmountReceived - order.Total().Cents()
	if diff < 0 {
		diff = -diff
	}
	if diff > amountToleranceCents {
		s.logger.Warn().
			Str("event_id", event.ID).
			Str("order_id", order.ID.String()).
			Int64("captured_cents", *intent.AmountReceived).
			Int64("order_total_cents", order.Total().Cents()).
			Msg("captured amount differs from order total")
	}
}
