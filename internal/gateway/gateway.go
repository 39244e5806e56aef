// Package gateway talks to the external card payment platform. Calls are never
// retried here beyond what the platform client does with an idempotency key;
// callers own retry policy.
package gateway

import (
	"context"
)

// Payment intent statuses reported by the platform.
const (
	StatusRequiresPaymentMethod = "requires_payment_method"
	StatusRequiresConfirmation  = "requires_confirmation"
	StatusProcessing            = "processing"
	StatusSucceeded             = "succeeded"
	StatusCanceled              = "canceled"
)

// Webhook event types the backend acts on.
const (
	EventPaymentSucceeded = "payment_intent.succeeded"
	EventPaymentFailed    = "payment_intent.payment_failed"
)

type PaymentIntentRequest struct {
	AmountCents        int64
	Currency           string
	FeeCents           int64
	DestinationAccount string
	// IdempotencyKey is the local transaction id.
	IdempotencyKey string
	Metadata       map[string]string
}

type PaymentIntent struct {
	ID           string
	ClientSecret string
	Status       string
	ChargeRef    string
	LastError    string
}

type RefundRequest struct {
	ChargeRef   string
	AmountCents int64
	// IdempotencyKey is the local refund transaction id.
	IdempotencyKey string
	Metadata       map[string]string
}

type Gateway interface {
	CreatePaymentIntent(ctx context.Context, req PaymentIntentRequest) (*PaymentIntent, error)
	RetrievePaymentIntent(ctx context.Context, intentID string) (*PaymentIntent, error)
	CreateRefund(ctx context.Context, req RefundRequest) (string, error)
}

// WebhookEvent is the subset of a platform event the ledger needs.
type WebhookEvent struct {
	ID              string
	Type            string
	PaymentIntentID string
	ChargeRef       string
	FailureMessage  string
}

type WebhookVerifier interface {
	ParseWebhook(payload []byte, signature string) (*WebhookEvent, error)
}
