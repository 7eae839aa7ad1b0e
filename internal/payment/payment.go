// Package payment raises payment intents for created orders and turns
// gateway webhooks into payment-succeeded / payment-failed events.
package payment

import (
	"context"
	"errors"
)

// Domain-level error values returned by the payment service and its store.
var (
	ErrUnknownPayment   = errors.New("unknown payment")
	ErrPaymentExists    = errors.New("payment already exists")
	ErrPaymentSettled   = errors.New("payment already settled")
	ErrInvalidSignature = errors.New("invalid webhook signature")
)

// Status is the payment lifecycle state. Pending is the only non-terminal
// state: once a payment settles it never changes again.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusSucceeded Status = "SUCCEEDED"
	StatusFailed    Status = "FAILED"
)

// Payment is one intent raised for one order. OrderID is unique: the intent
// for an order is created at most once no matter how often order-created is
// redelivered.
type Payment struct {
	PaymentID   string
	OrderID     string
	IntentID    string
	AmountCents int64
	Status      Status
}

// Store persists payments. Create reports ErrPaymentExists when the order
// already has one; UpdateStatus applies only from StatusPending and reports
// ErrPaymentSettled otherwise.
type Store interface {
	Create(ctx context.Context, payment Payment) error
	GetByOrder(ctx context.Context, orderID string) (Payment, error)
	UpdateStatus(ctx context.Context, orderID string, to Status) error
}

// Gateway is the external payment provider: it turns an amount into a
// provider-side intent that the shopper completes out of band.
type Gateway interface {
	CreateIntent(ctx context.Context, orderID string, email string, amountCents int64) (intentID string, err error)
}

// WebhookEvent is the settled outcome carried by a verified gateway webhook.
type WebhookEvent struct {
	OrderID   string
	IntentID  string
	Succeeded bool
	Reason    string
}

// WebhookVerifier authenticates a raw webhook body and extracts its event.
// An unverifiable body yields ErrInvalidSignature.
type WebhookVerifier interface {
	Verify(body []byte) (WebhookEvent, error)
}
