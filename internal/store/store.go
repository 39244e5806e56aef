package store

import (
	"context"
	"time"

	"tillpoint/backend/internal/domain"
)

// Aliases for the store-level sentinels. Implementations return these; the
// service layers wrap them with domain-specific errors where needed.
var (
	ErrNotFound = domain.ErrNotFound
	ErrConflict = domain.ErrConflict
)

type Catalog interface {
	GetBusiness(ctx context.Context, businessID string) (*domain.Business, error)
	GetProductByUPC(ctx context.Context, businessID string, upc string) (*domain.Product, error)
	GetDepartment(ctx context.Context, businessID string, departmentID string) (*domain.Department, error)
}

type Ledger interface {
	// CreateTransaction inserts a transaction and its items atomically.
	CreateTransaction(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error)
	// DeleteTransaction removes a transaction and its items. Only used to roll
	// back a sale whose payment could not be started.
	DeleteTransaction(ctx context.Context, id string) error
	FindTransaction(ctx context.Context, businessID string, id string) (*domain.Transaction, error)
	FindTransactionByPaymentRef(ctx context.Context, paymentRef string) (*domain.Transaction, error)
	ListTransactions(ctx context.Context, filter domain.TransactionFilter) ([]domain.Transaction, int, error)
	// ListTransactionsSince returns transactions with created_at >= since,
	// oldest first, restricted to types when non-empty. Items are included.
	ListTransactionsSince(ctx context.Context, businessID string, since time.Time, types []domain.TxType) ([]domain.Transaction, error)

	AttachPaymentIntent(ctx context.Context, id string, paymentRef string, feeCents int64, netCents int64) error
	// CompleteTransaction moves a pending transaction to completed. It returns
	// ErrConflict when the transaction is no longer pending.
	CompleteTransaction(ctx context.Context, id string, chargeRef string, at time.Time) (*domain.Transaction, error)
	FailTransaction(ctx context.Context, id string, message string) (*domain.Transaction, error)

	// CreateRefund claims the original sale (refunded=false -> true) and
	// inserts the refund transaction in one atomic step.
	CreateRefund(ctx context.Context, originalID string, refund domain.Transaction, at time.Time) (*domain.Transaction, error)
	// RollbackRefund deletes the refund transaction and releases the claim.
	RollbackRefund(ctx context.Context, originalID string, refundID string) error
	CompleteRefund(ctx context.Context, refundID string, refundRef string, at time.Time) (*domain.Transaction, error)

	// VoidTransaction marks a completed, unrefunded, unvoided transaction
	// created at or after notBefore as voided.
	VoidTransaction(ctx context.Context, businessID string, id string, by string, reason string, at time.Time, notBefore time.Time) (*domain.Transaction, error)
}

type Shifts interface {
	// CreateShift fails with domain.ErrShiftAlreadyOpen if the cashier has an open shift.
	CreateShift(ctx context.Context, shift domain.Shift) (*domain.Shift, error)
	GetOpenShift(ctx context.Context, businessID string, cashierID string) (*domain.Shift, error)
	// CloseShift persists closing aggregates on a still-open shift exactly once.
	CloseShift(ctx context.Context, shift domain.Shift) (*domain.Shift, error)
}

type Businesses interface {
	MarkDayClosed(ctx context.Context, businessID string, at time.Time, summarySent bool) error
	MarkSummarySent(ctx context.Context, businessID string, at time.Time) error
	// ListBusinessesPendingSummary returns businesses that neither closed the
	// day nor received a summary since dayStart.
	ListBusinessesPendingSummary(ctx context.Context, dayStart time.Time) ([]domain.Business, error)
}

type AuditLogs interface {
	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
}

type Users interface {
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

type Repository interface {
	Catalog
	Ledger
	Shifts
	Businesses
	AuditLogs
	Users
}
