package checkout

import (
	"context"
	"fmt"
	"log"

	"tillpoint/backend/internal/domain"
	"tillpoint/backend/internal/service"
)

// advance walks the session through path, skipping steps it is already at.
// Sessions are informational: a missing session, one owned by another
// cashier, or a disallowed step is logged and the sale carries on.
func (o *Orchestrator) advance(ctx context.Context, sessionID string, path ...State) State {
	if len(path) == 0 {
		return ""
	}
	final := path[len(path)-1]
	if sessionID == "" || o.sessions == nil {
		return final
	}

	session, ok, err := o.sessions.GetSession(ctx, sessionID)
	if err != nil {
		log.Printf("[checkout] WARN session read failed session=%s: %v", sessionID, err)
		return final
	}
	if !ok {
		log.Printf("[checkout] session %s not found or expired", sessionID)
		return final
	}
	actor, _ := service.ActorFromContext(ctx)
	if !ownsSession(actor, *session) {
		log.Printf("[checkout] WARN session=%s is not owned by user=%s business=%s", sessionID, actor.UserID, actor.BusinessID)
		return final
	}

	current := State(session.State)
	if !current.Valid() {
		log.Printf("[checkout] WARN session=%s has unknown state %q", sessionID, current)
		return final
	}
	for _, next := range path {
		if current == next {
			continue
		}
		if err := step(current, next); err != nil {
			log.Printf("[checkout] WARN session=%s: %v", sessionID, err)
			break
		}
		current = next
	}

	session.State = string(current)
	session.UpdatedAt = o.now().UTC()
	if err := o.sessions.SaveSession(ctx, *session, o.cfg.SessionTTL); err != nil {
		log.Printf("[checkout] WARN session write failed session=%s: %v", sessionID, err)
	}
	return current
}

func ownsSession(actor domain.Actor, session domain.CheckoutSession) bool {
	return actor.UserID != "" && session.BusinessID == actor.BusinessID && session.CashierID == actor.UserID
}

func step(from, to State) error {
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, from, to)
	}
	return nil
}
