package shift

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
	"tillpoint/backend/internal/metrics"
	"tillpoint/backend/internal/service"
	"tillpoint/backend/internal/store/memory"
)

// 09:00 in New York.
var base = time.Date(2026, 3, 14, 13, 0, 0, 0, time.UTC)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []domain.DailySummary
	err  error
}

func (n *recordingNotifier) SendDailySummary(_ context.Context, _ domain.Business, summary domain.DailySummary) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, summary)
	return nil
}

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func newTestService(t *testing.T) (*Service, *memory.Store, *recordingNotifier, *clock) {
	t.Helper()
	repo := memory.NewSeeded()
	notifier := &recordingNotifier{}
	clk := &clock{now: base}
	svc := New(repo, service.NewAuditor(repo), notifier, metrics.New())
	svc.now = clk.Now
	return svc, repo, notifier, clk
}

func actorCtx(userID string, role string) context.Context {
	return service.WithActor(context.Background(), domain.Actor{
		UserID:     userID,
		Username:   userID,
		Role:       role,
		BusinessID: memory.DemoBusinessID,
	})
}

func record(t *testing.T, repo *memory.Store, tx domain.Transaction) {
	t.Helper()
	tx.BusinessID = memory.DemoBusinessID
	if tx.Status == "" {
		tx.Status = domain.TxStatusCompleted
	}
	_, err := repo.CreateTransaction(context.Background(), tx)
	require.NoError(t, err)
}

func TestCountCash(t *testing.T) {
	total, err := CountCash(domain.CashCounts{"twenties": 5, "ones": 10, "quarters": 4, "pennies": 3})
	require.NoError(t, err)
	assert.Equal(t, int64(11103), total)

	total, err = CountCash(domain.CashCounts{})
	require.NoError(t, err)
	assert.Zero(t, total)

	_, err = CountCash(domain.CashCounts{"doubloons": 1})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = CountCash(domain.CashCounts{"tens": -1})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestStartDayOnlyOncePerCashier(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	cashier := actorCtx("usr_cashier", domain.RoleCashier)

	resp, err := svc.StartDay(cashier, domain.StartDayRequest{CashCounts: domain.CashCounts{"hundreds": 1, "fives": 4}})
	require.NoError(t, err)
	assert.Equal(t, int64(12000), resp.StartingCashCents)
	assert.Equal(t, base, resp.Shift.StartedAt)
	assert.True(t, resp.Shift.IsOpen())

	_, err = svc.StartDay(cashier, domain.StartDayRequest{CashCounts: domain.CashCounts{"hundreds": 1}})
	assert.ErrorIs(t, err, domain.ErrShiftAlreadyOpen)

	_, err = svc.StartDay(actorCtx("usr_manager", domain.RoleManager), domain.StartDayRequest{CashCounts: domain.CashCounts{}})
	assert.NoError(t, err)

	active, err := svc.ActiveShift(cashier)
	require.NoError(t, err)
	assert.Equal(t, resp.Shift.ID, active.ID)
}

func TestConcurrentStartDayOpensOneShift(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	cashier := actorCtx("usr_cashier", domain.RoleCashier)

	var opened atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.StartDay(cashier, domain.StartDayRequest{CashCounts: domain.CashCounts{"tens": 10}})
			if err == nil {
				opened.Add(1)
				return
			}
			assert.ErrorIs(t, err, domain.ErrShiftAlreadyOpen)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), opened.Load())
}

func TestEndDayReconcilesDrawer(t *testing.T) {
	svc, repo, notifier, clk := newTestService(t)
	cashier := actorCtx("usr_cashier", domain.RoleCashier)

	// Before the shift opened: not part of this drawer.
	record(t, repo, domain.Transaction{Type: domain.TxTypeSale, PaymentMethod: domain.PaymentMethodCash, TotalCents: 999, CreatedAt: base.Add(-time.Hour)})

	_, err := svc.StartDay(cashier, domain.StartDayRequest{CashCounts: domain.CashCounts{"hundreds": 1}})
	require.NoError(t, err)

	at := base.Add(time.Hour)
	record(t, repo, domain.Transaction{Type: domain.TxTypeSale, PaymentMethod: domain.PaymentMethodCash, TotalCents: 1080, CreatedAt: at})
	record(t, repo, domain.Transaction{Type: domain.TxTypeSale, PaymentMethod: domain.PaymentMethodCard, TotalCents: 2211, CreatedAt: at})
	record(t, repo, domain.Transaction{Type: domain.TxTypeSale, PaymentMethod: domain.PaymentMethodCard, TotalCents: 900, Status: domain.TxStatusPending, CreatedAt: at})
	record(t, repo, domain.Transaction{Type: domain.TxTypeSale, PaymentMethod: domain.PaymentMethodCash, TotalCents: 500, Voided: true, CreatedAt: at})
	record(t, repo, domain.Transaction{Type: domain.TxTypeRefund, PaymentMethod: domain.PaymentMethodCash, TotalCents: -377, CreatedAt: at})
	record(t, repo, domain.Transaction{Type: domain.TxTypeRefund, PaymentMethod: domain.PaymentMethodCard, TotalCents: -100, CreatedAt: at})

	clk.now = base.Add(2 * time.Hour)
	_, err = svc.PayIn(cashier, domain.CashMovementRequest{AmountCents: 2000})
	require.NoError(t, err)
	payOut, err := svc.PayOut(cashier, domain.CashMovementRequest{AmountCents: 500, Note: "ice delivery"})
	require.NoError(t, err)
	assert.Equal(t, "ice delivery", payOut.Transaction.Note)

	clk.now = base.Add(8 * time.Hour)
	// expected = 10000 + 1080 - 377 + 2000 - 500 = 12203; counted 12200.
	resp, err := svc.EndDay(cashier, domain.EndDayRequest{CashCounts: domain.CashCounts{"hundreds": 1, "twenties": 1, "ones": 2}})
	require.NoError(t, err)

	assert.Equal(t, int64(12203), resp.Summary.ExpectedCashCents)
	assert.Equal(t, int64(12200), resp.Summary.ActualCashCents)
	assert.Equal(t, int64(-3), resp.Summary.DifferenceCents)
	assert.True(t, resp.Summary.IsShort)
	assert.False(t, resp.Summary.IsOver)

	closed := resp.Shift
	assert.False(t, closed.IsOpen())
	assert.Equal(t, int64(1080), closed.CashSalesCents)
	assert.Equal(t, int64(2211), closed.CardSalesCents)
	assert.Equal(t, int64(477), closed.RefundsCents)
	assert.Equal(t, int64(2000), closed.PayInsCents)
	assert.Equal(t, int64(500), closed.PayOutsCents)

	require.Len(t, notifier.sent, 1)
	assert.Equal(t, 3, notifier.sent[0].TransactionCount)
	business, err := repo.GetBusiness(context.Background(), memory.DemoBusinessID)
	require.NoError(t, err)
	assert.True(t, business.DailySummarySent)
	require.NotNil(t, business.LastDayClosedAt)

	_, err = svc.EndDay(cashier, domain.EndDayRequest{CashCounts: domain.CashCounts{}})
	assert.ErrorIs(t, err, domain.ErrNoActiveShift)
	_, err = svc.ActiveShift(cashier)
	assert.ErrorIs(t, err, domain.ErrNoActiveShift)

	actions := map[string]int{}
	for _, entry := range repo.AuditLogs() {
		actions[entry.Action]++
	}
	assert.Equal(t, map[string]int{"shift_open": 1, "pay_in": 1, "pay_out": 1, "shift_close": 1}, actions)
}

func TestEndDayBalancedSkippingSummary(t *testing.T) {
	svc, repo, notifier, _ := newTestService(t)
	cashier := actorCtx("usr_cashier", domain.RoleCashier)

	_, err := svc.StartDay(cashier, domain.StartDayRequest{CashCounts: domain.CashCounts{"fifties": 2}})
	require.NoError(t, err)

	resp, err := svc.EndDay(cashier, domain.EndDayRequest{CashCounts: domain.CashCounts{"hundreds": 1}, SkipEmailSummary: true})
	require.NoError(t, err)
	assert.Zero(t, resp.Summary.DifferenceCents)
	assert.False(t, resp.Summary.IsOver)
	assert.False(t, resp.Summary.IsShort)
	assert.Empty(t, notifier.sent)

	business, err := repo.GetBusiness(context.Background(), memory.DemoBusinessID)
	require.NoError(t, err)
	assert.False(t, business.DailySummarySent)
	assert.NotNil(t, business.LastDayClosedAt)
}

func TestEndDayFailedSummaryStaysUnsent(t *testing.T) {
	svc, repo, notifier, _ := newTestService(t)
	notifier.err = errors.New("broker down")
	cashier := actorCtx("usr_cashier", domain.RoleCashier)

	_, err := svc.StartDay(cashier, domain.StartDayRequest{CashCounts: domain.CashCounts{"hundreds": 1}})
	require.NoError(t, err)

	resp, err := svc.EndDay(cashier, domain.EndDayRequest{CashCounts: domain.CashCounts{"hundreds": 1}})
	require.NoError(t, err)
	assert.False(t, resp.Shift.IsOpen())
	assert.Empty(t, notifier.sent)

	business, err := repo.GetBusiness(context.Background(), memory.DemoBusinessID)
	require.NoError(t, err)
	assert.NotNil(t, business.LastDayClosedAt)
	assert.False(t, business.DailySummarySent)
	assert.Nil(t, business.LastSummarySentAt)
}

func TestEndDayWithoutShift(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	_, err := svc.EndDay(actorCtx("usr_cashier", domain.RoleCashier), domain.EndDayRequest{CashCounts: domain.CashCounts{"ones": 1}})
	assert.ErrorIs(t, err, domain.ErrNoActiveShift)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCashMovements(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	cashier := actorCtx("usr_cashier", domain.RoleCashier)

	_, err := svc.PayOut(cashier, domain.CashMovementRequest{AmountCents: 0})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	in, err := svc.PayIn(cashier, domain.CashMovementRequest{AmountCents: 2500, Note: "  "})
	require.NoError(t, err)
	assert.Equal(t, domain.TxTypePayIn, in.Transaction.Type)
	assert.Equal(t, "Cash added to register", in.Transaction.Note)
	assert.Equal(t, domain.TxStatusCompleted, in.Transaction.Status)
	assert.Empty(t, in.Transaction.Items)

	out, err := svc.PayOut(cashier, domain.CashMovementRequest{AmountCents: 1000})
	require.NoError(t, err)
	assert.Equal(t, "Cash removed from register", out.Transaction.Note)
	assert.Equal(t, int64(1000), out.Transaction.TotalCents)
}

func TestAggregateIgnoresUnsettled(t *testing.T) {
	totals := Aggregate([]domain.Transaction{
		{Type: domain.TxTypeSale, PaymentMethod: domain.PaymentMethodCash, TotalCents: 1000, Status: domain.TxStatusCompleted},
		{Type: domain.TxTypeSale, PaymentMethod: domain.PaymentMethodCard, TotalCents: 700, Status: domain.TxStatusFailed},
		{Type: domain.TxTypeRefund, PaymentMethod: domain.PaymentMethodCash, TotalCents: -250, Status: domain.TxStatusPending},
	})
	assert.Equal(t, Totals{CashSalesCents: 1000}, totals)
}
