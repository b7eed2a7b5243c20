// Package payment parses and verifies provider webhook events and guards
// against duplicate delivery.
package payment

import (
	"encoding/json"
	"fmt"
)

// Event types delivered by the payment provider that the reconciler acts on.
// Anything else is acknowledged and ignored.
const (
	EventPaymentSucceeded = "payment_intent.succeeded"
	EventPaymentFailed    = "payment_intent.payment_failed"
	EventChargeRefunded   = "charge.refunded"
)

// Event is the webhook envelope. Data.Object is kept raw so that each event
// type can decode its own payload shape.
type Event struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// PaymentIntent is the payload of payment_intent.* events. AmountReceived is
// a pointer so a payload that omits the field is distinguishable from one
// reporting a zero capture.
type PaymentIntent struct {
	ID               string            `json:"id"`
	AmountReceived   *int64            `json:"amount_received"`
	Currency         string            `json:"currency"`
	LastPaymentError *PaymentIntentErr `json:"last_payment_error"`
}

// PaymentIntentErr carries the provider's failure detail on a declined
// payment.
type PaymentIntentErr struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Charge is the payload of charge.refunded events. Amounts are in the
// currency's smallest unit.
type Charge struct {
	ID             string `json:"id"`
	PaymentIntent  string `json:"payment_intent"`
	Amount         int64  `json:"amount"`
	AmountRefunded int64  `json:"amount_refunded"`
	Currency       string `json:"currency"`
	Refunded       bool   `json:"refunded"`
}

// ParseEvent decodes the webhook envelope. It rejects events without an id or
// type since both are required for dedup and dispatch.
func ParseEvent(payload []byte) (Event, error) {
	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return Event{}, fmt.Errorf("failed to parse webhook event: %w", err)
	}
	if event.ID == "" {
		return Event{}, fmt.Errorf("webhook event is missing an id")
	}
	if event.Type == "" {
		return Event{}, fmt.Errorf("webhook event is missing a type")
	}
	return event, nil
}

// PaymentIntent decodes the event payload as a payment intent.
func (e Event) PaymentIntent() (PaymentIntent, error) {
	var intent PaymentIntent
	if err := json.Unmarshal(e.Data.Object, &intent); err != nil {
		return PaymentIntent{}, fmt.Errorf("failed to parse payment intent from event %s: %w", e.ID, err)
	}
	if intent.ID == "" {
		return PaymentIntent{}, fmt.Errorf("event %s payment intent is missing an id", e.ID)
	}
	return intent, nil
}

// Charge decodes the event payload as a charge.
func (e Event) Charge() (Charge, error) {
	var charge Charge
	if err := json.Unmarshal(e.Data.Object, &charge); err != nil {
		return Charge{}, fmt.Errorf("failed to parse charge from event %s: %w", e.ID, err)
	}
	if charge.PaymentIntent == "" {
		return Charge{}, fmt.Errorf("event %s charge is missing a payment intent reference", e.ID)
	}
	return charge, nil
}
