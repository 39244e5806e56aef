package cache

import (
	"context"
	"sync"
	"time"

	"tillpoint/backend/internal/domain"
)

// CatalogCache holds catalog lookups keyed by business. A miss is reported as
// (nil, false, nil); errors are reserved for backend failures.
type CatalogCache interface {
	GetProduct(ctx context.Context, businessID string, upc string) (*domain.Product, bool, error)
	SetProduct(ctx context.Context, product domain.Product, ttl time.Duration) error
	GetDepartment(ctx context.Context, businessID string, departmentID string) (*domain.Department, bool, error)
	SetDepartment(ctx context.Context, dept domain.Department, ttl time.Duration) error
}

// SessionStore tracks checkout sessions for observability. Sessions expire on their own.
type SessionStore interface {
	SaveSession(ctx context.Context, session domain.CheckoutSession, ttl time.Duration) error
	GetSession(ctx context.Context, sessionID string) (*domain.CheckoutSession, bool, error)
}

type NoopCatalogCache struct{}

func (NoopCatalogCache) GetProduct(_ context.Context, _ string, _ string) (*domain.Product, bool, error) {
	return nil, false, nil
}

func (NoopCatalogCache) SetProduct(_ context.Context, _ domain.Product, _ time.Duration) error {
	return nil
}

func (NoopCatalogCache) GetDepartment(_ context.Context, _ string, _ string) (*domain.Department, bool, error) {
	return nil, false, nil
}

func (NoopCatalogCache) SetDepartment(_ context.Context, _ domain.Department, _ time.Duration) error {
	return nil
}

type memorySession struct {
	session   domain.CheckoutSession
	expiresAt time.Time
}

// MemorySessionStore is the SessionStore used when redis is not configured.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]memorySession
	now      func() time.Time
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]memorySession),
		now:      time.Now,
	}
}

func (m *MemorySessionStore) SaveSession(_ context.Context, session domain.CheckoutSession, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for id, entry := range m.sessions {
		if now.After(entry.expiresAt) {
			delete(m.sessions, id)
		}
	}
	m.sessions[session.ID] = memorySession{session: session, expiresAt: now.Add(ttl)}
	return nil
}

func (m *MemorySessionStore) GetSession(_ context.Context, sessionID string) (*domain.CheckoutSession, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.sessions[sessionID]
	if !ok || m.now().After(entry.expiresAt) {
		return nil, false, nil
	}
	session := entry.session
	return &session, true, nil
}
