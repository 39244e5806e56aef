package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"tillpoint/backend/internal/domain"
)

func newIntegrationStore(t *testing.T) (*Store, string) {
	t.Helper()
	databaseURL := os.Getenv("TILLPOINT_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set TILLPOINT_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	if err := s.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	businessID := fmt.Sprintf("biz-it-%d", time.Now().UnixNano())
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO businesses (id, name, tax_rate, timezone)
		VALUES ($1, 'Integration Market', 0.08, 'UTC')
	`, businessID); err != nil {
		t.Fatalf("insert business: %v", err)
	}
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM transactions WHERE business_id = $1 AND type = 'refund'`, businessID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM transactions WHERE business_id = $1`, businessID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM shifts WHERE business_id = $1`, businessID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM businesses WHERE id = $1`, businessID)
	})
	return s, businessID
}

func createSale(t *testing.T, s *Store, businessID string, createdAt time.Time) *domain.Transaction {
	t.Helper()
	tx, err := s.CreateTransaction(context.Background(), domain.Transaction{
		BusinessID:    businessID,
		CashierID:     "usr-it",
		CashierName:   "Integration Cashier",
		Type:          domain.TxTypeSale,
		PaymentMethod: domain.PaymentMethodCash,
		SubtotalCents: 1000,
		TaxCents:      80,
		TotalCents:    1080,
		NetCents:      1080,
		Status:        domain.TxStatusCompleted,
		CreatedAt:     createdAt,
		Items: []domain.TransactionItem{
			{ProductName: "Spring Water 24pk", DepartmentID: "dept_grocery", Quantity: 2, UnitPriceCents: 500, TaxCents: 80, TotalCents: 1080},
		},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	return tx
}

func TestRefundClaimIsAtomic(t *testing.T) {
	s, businessID := newIntegrationStore(t)
	ctx := context.Background()
	sale := createSale(t, s, businessID, time.Now().UTC())

	var wg sync.WaitGroup
	results := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.CreateRefund(ctx, sale.ID, domain.Transaction{
				BusinessID:    businessID,
				CashierID:     "usr-it",
				Type:          domain.TxTypeRefund,
				PaymentMethod: domain.PaymentMethodCash,
				TotalCents:    -1080,
				Status:        domain.TxStatusCompleted,
			}, time.Now().UTC())
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	wins := 0
	for err := range results {
		if err == nil {
			wins++
			continue
		}
		if !errors.Is(err, domain.ErrAlreadyRefunded) {
			t.Fatalf("expected losing refund to report already refunded, got %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one refund to win, got %d", wins)
	}

	original, err := s.FindTransaction(ctx, businessID, sale.ID)
	if err != nil {
		t.Fatalf("find original: %v", err)
	}
	if !original.Refunded || original.RefundedCents != 1080 {
		t.Fatalf("unexpected refund state: refunded=%v cents=%d", original.Refunded, original.RefundedCents)
	}
	if len(original.Items) != 1 {
		t.Fatalf("expected items to be loaded, got %d", len(original.Items))
	}
}

func TestVoidTransactionWindow(t *testing.T) {
	s, businessID := newIntegrationStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	old := createSale(t, s, businessID, now.Add(-25*time.Hour))
	_, err := s.VoidTransaction(ctx, businessID, old.ID, "usr-it", "", now, now.Add(-24*time.Hour))
	if !errors.Is(err, domain.ErrVoidWindowExpired) {
		t.Fatalf("expected void window expired, got %v", err)
	}

	recent := createSale(t, s, businessID, now.Add(-time.Minute))
	voided, err := s.VoidTransaction(ctx, businessID, recent.ID, "usr-it", "keyed twice", now, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("void: %v", err)
	}
	if !voided.Voided || voided.VoidReason != "keyed twice" {
		t.Fatalf("unexpected void state: %+v", voided)
	}

	_, err = s.VoidTransaction(ctx, businessID, recent.ID, "usr-it", "", now, now.Add(-24*time.Hour))
	if !errors.Is(err, domain.ErrNotVoidable) {
		t.Fatalf("expected not voidable on second void, got %v", err)
	}
}

func TestOneOpenShiftPerCashier(t *testing.T) {
	s, businessID := newIntegrationStore(t)
	ctx := context.Background()

	opened, err := s.CreateShift(ctx, domain.Shift{BusinessID: businessID, CashierID: "usr-it", StartingCashCents: 10000, StartingCounts: domain.CashCounts{"twenties": 5}})
	if err != nil {
		t.Fatalf("open shift: %v", err)
	}
	if _, err := s.CreateShift(ctx, domain.Shift{BusinessID: businessID, CashierID: "usr-it"}); !errors.Is(err, domain.ErrShiftAlreadyOpen) {
		t.Fatalf("expected shift already open, got %v", err)
	}

	endedAt := time.Now().UTC()
	opened.EndingCashCents = 9800
	opened.ExpectedCashCents = 10000
	opened.CashDifferenceCents = -200
	opened.EndedAt = &endedAt
	closed, err := s.CloseShift(ctx, *opened)
	if err != nil {
		t.Fatalf("close shift: %v", err)
	}
	if closed.StartingCounts["twenties"] != 5 || closed.CashDifferenceCents != -200 {
		t.Fatalf("unexpected closed shift: %+v", closed)
	}
	if _, err := s.CloseShift(ctx, *opened); !errors.Is(err, domain.ErrNoActiveShift) {
		t.Fatalf("expected second close to fail, got %v", err)
	}
}
