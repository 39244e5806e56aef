package service

import (
	"context"
	"log"
	"time"

	"tillpoint/backend/internal/domain"
	"tillpoint/backend/internal/store"
	"tillpoint/backend/internal/xid"
)

// Auditor appends audit entries. A failed write is logged and never fails the
// operation being audited.
type Auditor struct {
	repo store.AuditLogs
	now  func() time.Time
}

func NewAuditor(repo store.AuditLogs) *Auditor {
	return &Auditor{repo: repo, now: time.Now}
}

func (a *Auditor) Log(ctx context.Context, businessID string, action string, entityType string, entityID string, detail string) {
	if a == nil || a.repo == nil {
		return
	}

	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{UserID: "system", Role: "system"}
	}
	if businessID == "" {
		businessID = actor.BusinessID
	}

	if err := a.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:         xid.New("audit"),
		BusinessID: businessID,
		ActorID:    actor.UserID,
		ActorRole:  actor.Role,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Detail:     detail,
		CreatedAt:  a.now().UTC(),
	}); err != nil {
		log.Printf("[audit] WARN: failed to write audit log action=%s entity=%s/%s: %v", action, entityType, entityID, err)
	}
}
