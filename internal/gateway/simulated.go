package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"tillpoint/backend/internal/domain"
	"tillpoint/backend/internal/xid"
)

// Simulated is an in-process gateway for development and tests. Intents start
// in requires_payment_method and succeed once Settle is called, or on the
// first retrieval when AutoSettle is set.
type Simulated struct {
	mu         sync.Mutex
	intents    map[string]*simulatedIntent
	refunds    map[string]RefundRequest
	idem       map[string]string
	AutoSettle bool

	// Injected failures, returned wrapped as gateway errors.
	FailCreate   error
	FailRetrieve error
	FailRefund   error
}

type simulatedIntent struct {
	req    PaymentIntentRequest
	intent PaymentIntent
}

func NewSimulated(autoSettle bool) *Simulated {
	return &Simulated{
		intents:    make(map[string]*simulatedIntent),
		refunds:    make(map[string]RefundRequest),
		idem:       make(map[string]string),
		AutoSettle: autoSettle,
	}
}

func (s *Simulated) CreatePaymentIntent(_ context.Context, req PaymentIntentRequest) (*PaymentIntent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailCreate != nil {
		return nil, fmt.Errorf("%w: create payment intent: %v", domain.ErrPaymentGateway, s.FailCreate)
	}
	if req.AmountCents <= 0 {
		return nil, fmt.Errorf("%w: create payment intent: amount must be positive", domain.ErrPaymentGateway)
	}
	if id, ok := s.idem["pi-"+req.IdempotencyKey]; ok && req.IdempotencyKey != "" {
		intent := s.intents[id].intent
		return &intent, nil
	}

	id := xid.New("pi_sim")
	entry := &simulatedIntent{
		req: req,
		intent: PaymentIntent{
			ID:           id,
			ClientSecret: id + "_secret",
			Status:       StatusRequiresPaymentMethod,
		},
	}
	s.intents[id] = entry
	if req.IdempotencyKey != "" {
		s.idem["pi-"+req.IdempotencyKey] = id
	}
	intent := entry.intent
	return &intent, nil
}

func (s *Simulated) RetrievePaymentIntent(_ context.Context, intentID string) (*PaymentIntent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailRetrieve != nil {
		return nil, fmt.Errorf("%w: retrieve payment intent: %v", domain.ErrPaymentGateway, s.FailRetrieve)
	}
	entry, ok := s.intents[intentID]
	if !ok {
		return nil, fmt.Errorf("%w: retrieve payment intent: no such intent %s", domain.ErrPaymentGateway, intentID)
	}
	if s.AutoSettle && entry.intent.Status == StatusRequiresPaymentMethod {
		settle(entry)
	}
	intent := entry.intent
	return &intent, nil
}

func (s *Simulated) CreateRefund(_ context.Context, req RefundRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailRefund != nil {
		return "", fmt.Errorf("%w: create refund: %v", domain.ErrPaymentGateway, s.FailRefund)
	}
	if id, ok := s.idem["re-"+req.IdempotencyKey]; ok && req.IdempotencyKey != "" {
		return id, nil
	}
	if req.ChargeRef == "" || req.AmountCents <= 0 {
		return "", fmt.Errorf("%w: create refund: charge and positive amount are required", domain.ErrPaymentGateway)
	}
	id := xid.New("re_sim")
	s.refunds[id] = req
	if req.IdempotencyKey != "" {
		s.idem["re-"+req.IdempotencyKey] = id
	}
	return id, nil
}

// Settle marks an intent as succeeded, as if the card reader collected payment.
func (s *Simulated) Settle(intentID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.intents[intentID]
	if !ok {
		return false
	}
	settle(entry)
	return true
}

// Decline marks an intent as failed with the given message.
func (s *Simulated) Decline(intentID string, message string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.intents[intentID]
	if !ok {
		return false
	}
	entry.intent.Status = StatusRequiresPaymentMethod
	entry.intent.LastError = message
	return true
}

// Intent returns the request an intent was created with.
func (s *Simulated) Intent(intentID string) (PaymentIntentRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.intents[intentID]
	if !ok {
		return PaymentIntentRequest{}, false
	}
	return entry.req, true
}

// Refunds returns every refund issued, keyed by refund id.
func (s *Simulated) Refunds() map[string]RefundRequest {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]RefundRequest, len(s.refunds))
	for id, req := range s.refunds {
		out[id] = req
	}
	return out
}

// ParseWebhook accepts unsigned JSON events of the form
// {"id": "...", "type": "...", "payment_intent_id": "...", "charge_ref": "...", "failure_message": "..."}.
func (s *Simulated) ParseWebhook(payload []byte, _ string) (*WebhookEvent, error) {
	var body struct {
		ID              string `json:"id"`
		Type            string `json:"type"`
		PaymentIntentID string `json:"payment_intent_id"`
		ChargeRef       string `json:"charge_ref"`
		FailureMessage  string `json:"failure_message"`
	}
	if err := json.Unmarshal(payload, &body); err != nil || body.Type == "" {
		return nil, fmt.Errorf("%w: malformed webhook payload", domain.ErrValidation)
	}
	return &WebhookEvent{
		ID:              body.ID,
		Type:            body.Type,
		PaymentIntentID: body.PaymentIntentID,
		ChargeRef:       body.ChargeRef,
		FailureMessage:  body.FailureMessage,
	}, nil
}

func settle(entry *simulatedIntent) {
	entry.intent.Status = StatusSucceeded
	entry.intent.LastError = ""
	if entry.intent.ChargeRef == "" {
		entry.intent.ChargeRef = xid.New("ch_sim")
	}
}
