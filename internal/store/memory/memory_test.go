package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tillpoint/backend/internal/domain"
)

func completedSale(t *testing.T, s *Store, createdAt time.Time) *domain.Transaction {
	t.Helper()
	tx, err := s.CreateTransaction(context.Background(), domain.Transaction{
		BusinessID:    DemoBusinessID,
		CashierID:     "usr_cashier",
		Type:          domain.TxTypeSale,
		PaymentMethod: domain.PaymentMethodCash,
		SubtotalCents: 1000,
		TaxCents:      80,
		TotalCents:    1080,
		NetCents:      1080,
		Status:        domain.TxStatusCompleted,
		CreatedAt:     createdAt,
		Items: []domain.TransactionItem{
			{ProductID: "prd_water", ProductName: "Spring Water 24pk", Quantity: 2, UnitPriceCents: 500, TaxCents: 80, TotalCents: 1080},
		},
	})
	require.NoError(t, err)
	return tx
}

func TestCreateTransactionAssignsIDs(t *testing.T) {
	s := New()
	tx := completedSale(t, s, time.Now().UTC())

	require.NotEmpty(t, tx.ID)
	require.Len(t, tx.Items, 1)
	assert.NotEmpty(t, tx.Items[0].ID)
	assert.Equal(t, tx.ID, tx.Items[0].TransactionID)

	stored, err := s.FindTransaction(context.Background(), DemoBusinessID, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, tx.Items, stored.Items)

	_, err = s.FindTransaction(context.Background(), "biz_other", tx.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestConcurrentRefundClaimsOnlyOnce(t *testing.T) {
	s := New()
	sale := completedSale(t, s, time.Now().UTC())

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.CreateRefund(context.Background(), sale.ID, domain.Transaction{
				BusinessID: DemoBusinessID,
				Type:       domain.TxTypeRefund,
				TotalCents: -1080,
				Status:     domain.TxStatusCompleted,
			}, time.Now().UTC())
			if err == nil {
				wins.Add(1)
				return
			}
			if !errors.Is(err, domain.ErrAlreadyRefunded) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	original, err := s.FindTransaction(context.Background(), DemoBusinessID, sale.ID)
	require.NoError(t, err)
	assert.True(t, original.Refunded)
	assert.Equal(t, int64(1080), original.RefundedCents)
}

func TestRollbackRefundReleasesClaim(t *testing.T) {
	s := New()
	sale := completedSale(t, s, time.Now().UTC())
	ctx := context.Background()

	refund, err := s.CreateRefund(ctx, sale.ID, domain.Transaction{BusinessID: DemoBusinessID, Type: domain.TxTypeRefund, TotalCents: -1080, Status: domain.TxStatusPending}, time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, s.RollbackRefund(ctx, sale.ID, refund.ID))

	_, err = s.FindTransaction(ctx, DemoBusinessID, refund.ID)
	assert.ErrorIs(t, err, domain.ErrTransactionNotFound)
	original, err := s.FindTransaction(ctx, DemoBusinessID, sale.ID)
	require.NoError(t, err)
	assert.False(t, original.Refunded)
	assert.Nil(t, original.RefundedAt)
}

func TestVoidTransactionRules(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now().UTC()

	old := completedSale(t, s, now.Add(-25*time.Hour))
	_, err := s.VoidTransaction(ctx, DemoBusinessID, old.ID, "usr_manager", "", now, now.Add(-24*time.Hour))
	assert.ErrorIs(t, err, domain.ErrVoidWindowExpired)

	recent := completedSale(t, s, now.Add(-time.Hour))
	voided, err := s.VoidTransaction(ctx, DemoBusinessID, recent.ID, "usr_manager", "wrong item", now, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.True(t, voided.Voided)
	assert.Equal(t, "wrong item", voided.VoidReason)

	_, err = s.VoidTransaction(ctx, DemoBusinessID, recent.ID, "usr_manager", "", now, now.Add(-24*time.Hour))
	assert.ErrorIs(t, err, domain.ErrNotVoidable)

	_, err = s.CreateRefund(ctx, recent.ID, domain.Transaction{BusinessID: DemoBusinessID, Type: domain.TxTypeRefund}, now)
	assert.ErrorIs(t, err, domain.ErrNotRefundable)
}

func TestShiftLifecycle(t *testing.T) {
	s := New()
	ctx := context.Background()

	opened, err := s.CreateShift(ctx, domain.Shift{BusinessID: DemoBusinessID, CashierID: "usr_cashier", StartingCashCents: 10000})
	require.NoError(t, err)

	_, err = s.CreateShift(ctx, domain.Shift{BusinessID: DemoBusinessID, CashierID: "usr_cashier"})
	assert.ErrorIs(t, err, domain.ErrShiftAlreadyOpen)

	// Another cashier may open their own drawer.
	_, err = s.CreateShift(ctx, domain.Shift{BusinessID: DemoBusinessID, CashierID: "usr_manager"})
	require.NoError(t, err)

	endedAt := time.Now().UTC()
	closing := *opened
	closing.EndingCashCents = 12000
	closing.EndedAt = &endedAt
	closed, err := s.CloseShift(ctx, closing)
	require.NoError(t, err)
	assert.False(t, closed.IsOpen())

	_, err = s.CloseShift(ctx, closing)
	assert.ErrorIs(t, err, domain.ErrNoActiveShift)
	_, err = s.GetOpenShift(ctx, DemoBusinessID, "usr_cashier")
	assert.ErrorIs(t, err, domain.ErrNoActiveShift)

	_, err = s.CreateShift(ctx, domain.Shift{BusinessID: DemoBusinessID, CashierID: "usr_cashier"})
	require.NoError(t, err)
}

func TestListTransactionsFiltersAndPages(t *testing.T) {
	s := New()
	ctx := context.Background()
	base := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		completedSale(t, s, base.Add(time.Duration(i)*time.Minute))
	}
	_, err := s.CreateTransaction(ctx, domain.Transaction{BusinessID: DemoBusinessID, Type: domain.TxTypePayIn, PaymentMethod: domain.PaymentMethodCash, TotalCents: 500, Status: domain.TxStatusCompleted, CreatedAt: base})
	require.NoError(t, err)

	page, total, err := s.ListTransactions(ctx, domain.TransactionFilter{BusinessID: DemoBusinessID, Type: domain.TxTypeSale, Limit: 2, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, page, 2)
	assert.Equal(t, base.Add(3*time.Minute), page[0].CreatedAt)

	since, err := s.ListTransactionsSince(ctx, DemoBusinessID, base.Add(2*time.Minute), []domain.TxType{domain.TxTypeSale})
	require.NoError(t, err)
	require.Len(t, since, 3)
	assert.True(t, since[0].CreatedAt.Before(since[2].CreatedAt))
}

func TestSeededCatalog(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	product, err := s.GetProductByUPC(ctx, DemoBusinessID, UPCLager)
	require.NoError(t, err)
	dept, err := s.GetDepartment(ctx, DemoBusinessID, product.DepartmentID)
	require.NoError(t, err)
	require.NotNil(t, dept.AgeRestriction)
	assert.Equal(t, 21, *dept.AgeRestriction)
	require.NotNil(t, dept.TimeRestriction)

	business, err := s.GetBusiness(ctx, DemoBusinessID)
	require.NoError(t, err)
	assert.True(t, business.CanAcceptCards())

	_, err = s.GetProductByUPC(ctx, DemoBusinessID, "000000000000")
	assert.ErrorIs(t, err, domain.ErrProductNotFound)

	users, err := s.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 3)
}

func TestBusinessesPendingSummary(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()
	dayStart := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)

	pending, err := s.ListBusinessesPendingSummary(ctx, dayStart)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	require.NoError(t, s.MarkDayClosed(ctx, DemoBusinessID, dayStart.Add(20*time.Hour), false))
	pending, err = s.ListBusinessesPendingSummary(ctx, dayStart)
	require.NoError(t, err)
	assert.Empty(t, pending)

	pending, err = s.ListBusinessesPendingSummary(ctx, dayStart.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}
