// Package service holds the request-scoped helpers shared by the checkout,
// ledger and shift services: the authenticated actor carried on the context
// and the audit trail.
package service

import (
	"context"
	"fmt"
	"slices"

	"tillpoint/backend/internal/domain"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// RequireActor returns the caller, who must belong to a business.
func RequireActor(ctx context.Context) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.UserID == "" {
		return domain.Actor{}, domain.ErrUnauthenticated
	}
	if actor.BusinessID == "" {
		return domain.Actor{}, fmt.Errorf("%w: user %s has no business", domain.ErrForbidden, actor.Username)
	}
	return actor, nil
}

// RequireRole is RequireActor plus a role check. With no roles it only
// requires an actor.
func RequireRole(ctx context.Context, roles ...string) (domain.Actor, error) {
	actor, err := RequireActor(ctx)
	if err != nil {
		return domain.Actor{}, err
	}
	if len(roles) > 0 && !slices.Contains(roles, actor.Role) {
		return domain.Actor{}, fmt.Errorf("%w: %s", domain.ErrForbidden, actor.Role)
	}
	return actor, nil
}

// DisplayName is what receipts and transactions show for the cashier.
func DisplayName(actor domain.Actor) string {
	if actor.Name != "" {
		return actor.Name
	}
	return actor.Username
}
