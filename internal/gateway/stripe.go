package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"

	"tillpoint/backend/internal/domain"
)

type StripeConfig struct {
	SecretKey         string
	WebhookSecret     string
	Timeout           time.Duration
	MaxNetworkRetries int64
	// BackendURL overrides the API endpoint. Empty uses the platform default.
	BackendURL string
}

type Stripe struct {
	api           *client.API
	webhookSecret string
	timeout       time.Duration
	breaker       *gobreaker.CircuitBreaker[any]
}

func NewStripe(cfg StripeConfig) *Stripe {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}

	backendCfg := &stripe.BackendConfig{
		MaxNetworkRetries: stripe.Int64(cfg.MaxNetworkRetries),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelWarn},
	}
	if cfg.BackendURL != "" {
		backendCfg.URL = stripe.String(cfg.BackendURL)
	}

	breaker := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "payment-gateway",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: isBreakerSuccess,
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Printf("[gateway] circuit %s: %s -> %s", name, from, to)
		},
	})

	return &Stripe{
		api:           client.New(cfg.SecretKey, stripe.NewBackendsWithConfig(backendCfg)),
		webhookSecret: cfg.WebhookSecret,
		timeout:       cfg.Timeout,
		breaker:       breaker,
	}
}

// isBreakerSuccess keeps card declines and other client errors from opening
// the circuit; only transport failures and 5xx responses count.
func isBreakerSuccess(err error) bool {
	if err == nil {
		return true
	}
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return stripeErr.HTTPStatusCode > 0 && stripeErr.HTTPStatusCode < 500
	}
	return false
}

func (s *Stripe) call(ctx context.Context, op string, fn func(ctx context.Context) (any, error)) (any, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	result, err := s.breaker.Execute(func() (any, error) {
		return fn(callCtx)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %s", domain.ErrPaymentGateway, op, gatewayMessage(err))
	}
	return result, nil
}

func gatewayMessage(err error) string {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) && stripeErr.Msg != "" {
		return stripeErr.Msg
	}
	return err.Error()
}

func (s *Stripe) CreatePaymentIntent(ctx context.Context, req PaymentIntentRequest) (*PaymentIntent, error) {
	result, err := s.call(ctx, "create payment intent", func(ctx context.Context) (any, error) {
		params := &stripe.PaymentIntentParams{
			Params:   stripe.Params{Context: ctx},
			Amount:   stripe.Int64(req.AmountCents),
			Currency: stripe.String(req.Currency),
			PaymentMethodTypes: stripe.StringSlice([]string{
				"card_present",
			}),
			CaptureMethod: stripe.String(string(stripe.PaymentIntentCaptureMethodAutomatic)),
		}
		if req.DestinationAccount != "" {
			params.ApplicationFeeAmount = stripe.Int64(req.FeeCents)
			params.TransferData = &stripe.PaymentIntentTransferDataParams{
				Destination: stripe.String(req.DestinationAccount),
			}
		}
		for k, v := range req.Metadata {
			params.AddMetadata(k, v)
		}
		if req.IdempotencyKey != "" {
			params.SetIdempotencyKey("pi-" + req.IdempotencyKey)
		}
		return s.api.PaymentIntents.New(params)
	})
	if err != nil {
		return nil, err
	}
	return toPaymentIntent(result.(*stripe.PaymentIntent)), nil
}

func (s *Stripe) RetrievePaymentIntent(ctx context.Context, intentID string) (*PaymentIntent, error) {
	result, err := s.call(ctx, "retrieve payment intent", func(ctx context.Context) (any, error) {
		return s.api.PaymentIntents.Get(intentID, &stripe.PaymentIntentParams{Params: stripe.Params{Context: ctx}})
	})
	if err != nil {
		return nil, err
	}
	return toPaymentIntent(result.(*stripe.PaymentIntent)), nil
}

func (s *Stripe) CreateRefund(ctx context.Context, req RefundRequest) (string, error) {
	result, err := s.call(ctx, "create refund", func(ctx context.Context) (any, error) {
		params := &stripe.RefundParams{
			Params: stripe.Params{Context: ctx},
			Charge: stripe.String(req.ChargeRef),
			Amount: stripe.Int64(req.AmountCents),
			Reason: stripe.String(string(stripe.RefundReasonRequestedByCustomer)),
		}
		for k, v := range req.Metadata {
			params.AddMetadata(k, v)
		}
		if req.IdempotencyKey != "" {
			params.SetIdempotencyKey("re-" + req.IdempotencyKey)
		}
		return s.api.Refunds.New(params)
	})
	if err != nil {
		return "", err
	}
	return result.(*stripe.Refund).ID, nil
}

func (s *Stripe) ParseWebhook(payload []byte, signature string) (*WebhookEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, s.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: webhook signature verification failed", domain.ErrValidation)
	}

	out := &WebhookEvent{ID: event.ID, Type: string(event.Type)}
	if event.Data == nil || (out.Type != EventPaymentSucceeded && out.Type != EventPaymentFailed) {
		return out, nil
	}
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return nil, fmt.Errorf("%w: malformed payment intent payload", domain.ErrValidation)
	}
	intent := toPaymentIntent(&pi)
	out.PaymentIntentID = intent.ID
	out.ChargeRef = intent.ChargeRef
	out.FailureMessage = intent.LastError
	return out, nil
}

func toPaymentIntent(pi *stripe.PaymentIntent) *PaymentIntent {
	out := &PaymentIntent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       string(pi.Status),
	}
	if pi.LatestCharge != nil {
		out.ChargeRef = pi.LatestCharge.ID
	}
	if pi.LastPaymentError != nil {
		out.LastError = pi.LastPaymentError.Msg
	}
	return out
}
