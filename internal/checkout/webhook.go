package checkout

import (
	"context"
	"errors"
	"log"

	"tillpoint/backend/internal/domain"
	"tillpoint/backend/internal/gateway"
	"tillpoint/backend/internal/store"
)

// ApplyPaymentEvent settles or fails the pending sale an intent belongs to.
// Events for unknown intents or already-settled sales are acknowledged so the
// platform stops redelivering them.
func (o *Orchestrator) ApplyPaymentEvent(ctx context.Context, event gateway.WebhookEvent) error {
	switch event.Type {
	case gateway.EventPaymentSucceeded, gateway.EventPaymentFailed:
	default:
		log.Printf("[webhook] ignoring event id=%s type=%s", event.ID, event.Type)
		return nil
	}

	tx, err := o.repo.FindTransactionByPaymentRef(ctx, event.PaymentIntentID)
	if errors.Is(err, domain.ErrNotFound) {
		log.Printf("[webhook] WARN no sale for intent=%s event=%s", event.PaymentIntentID, event.ID)
		return nil
	}
	if err != nil {
		return err
	}

	now := o.now().UTC()
	if event.Type == gateway.EventPaymentSucceeded {
		_, err = o.repo.CompleteTransaction(ctx, tx.ID, event.ChargeRef, now)
		if err == nil {
			o.metrics.ObservePayment(string(domain.PaymentMethodCard), "completed")
			log.Printf("[webhook] sale completed tx=%s intent=%s", tx.ID, event.PaymentIntentID)
		}
	} else {
		_, err = o.repo.FailTransaction(ctx, tx.ID, event.FailureMessage)
		if err == nil {
			o.metrics.ObservePayment(string(domain.PaymentMethodCard), "failed")
			log.Printf("[webhook] sale failed tx=%s intent=%s: %s", tx.ID, event.PaymentIntentID, event.FailureMessage)
		}
	}
	if errors.Is(err, store.ErrConflict) {
		log.Printf("[webhook] tx=%s already %s, event=%s ignored", tx.ID, tx.Status, event.ID)
		return nil
	}
	return err
}
