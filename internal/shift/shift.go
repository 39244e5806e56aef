// Package shift manages the cash drawer: opening and closing a cashier's
// shift, pay-ins and pay-outs, and the end-of-day reconciliation.
package shift

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"tillpoint/backend/internal/domain"
	"tillpoint/backend/internal/metrics"
	"tillpoint/backend/internal/money"
	"tillpoint/backend/internal/notify"
	"tillpoint/backend/internal/report"
	"tillpoint/backend/internal/service"
	"tillpoint/backend/internal/store"
	"tillpoint/backend/internal/xid"
)

const (
	defaultPayInNote  = "Cash added to register"
	defaultPayOutNote = "Cash removed from register"
)

var reconciledTypes = []domain.TxType{domain.TxTypeSale, domain.TxTypeRefund, domain.TxTypePayIn, domain.TxTypePayOut}

type Repository interface {
	store.Shifts
	store.Ledger
	store.Businesses
	store.Catalog
}

type Service struct {
	repo          Repository
	audit         *service.Auditor
	notifier      notify.Notifier
	metrics       *metrics.Metrics
	notifyTimeout time.Duration
	now           func() time.Time
}

func New(repo Repository, audit *service.Auditor, notifier notify.Notifier, m *metrics.Metrics) *Service {
	if notifier == nil {
		notifier = notify.Log{}
	}
	return &Service{
		repo:          repo,
		audit:         audit,
		notifier:      notifier,
		metrics:       m,
		notifyTimeout: 10 * time.Second,
		now:           time.Now,
	}
}

func (s *Service) StartDay(ctx context.Context, req domain.StartDayRequest) (domain.StartDayResponse, error) {
	actor, err := service.RequireActor(ctx)
	if err != nil {
		return domain.StartDayResponse{}, err
	}
	starting, err := CountCash(req.CashCounts)
	if err != nil {
		return domain.StartDayResponse{}, err
	}

	opened, err := s.repo.CreateShift(ctx, domain.Shift{
		ID:                xid.New("shf"),
		BusinessID:        actor.BusinessID,
		CashierID:         actor.UserID,
		StartingCashCents: starting,
		StartingCounts:    req.CashCounts,
		StartedAt:         s.now().UTC(),
	})
	if err != nil {
		return domain.StartDayResponse{}, err
	}

	s.audit.Log(ctx, actor.BusinessID, "shift_open", "shift", opened.ID, fmt.Sprintf("starting_cash=%d", starting))
	log.Printf("[shift] opened shift=%s cashier=%s starting=%s", opened.ID, actor.UserID, money.Format(starting))
	return domain.StartDayResponse{Shift: *opened, StartingCashCents: starting}, nil
}

// EndDay counts the drawer, reconciles it against the cash movements since
// the shift opened and closes the shift.
func (s *Service) EndDay(ctx context.Context, req domain.EndDayRequest) (domain.EndDayResponse, error) {
	actor, err := service.RequireActor(ctx)
	if err != nil {
		return domain.EndDayResponse{}, err
	}
	ending, err := CountCash(req.CashCounts)
	if err != nil {
		return domain.EndDayResponse{}, err
	}

	open, err := s.repo.GetOpenShift(ctx, actor.BusinessID, actor.UserID)
	if err != nil {
		return domain.EndDayResponse{}, err
	}

	txs, err := s.repo.ListTransactionsSince(ctx, actor.BusinessID, open.StartedAt, reconciledTypes)
	if err != nil {
		return domain.EndDayResponse{}, err
	}
	totals := Aggregate(txs)

	now := s.now().UTC()
	closing := *open
	closing.EndingCashCents = ending
	closing.EndingCounts = req.CashCounts
	closing.CashSalesCents = totals.CashSalesCents
	closing.CardSalesCents = totals.CardSalesCents
	closing.RefundsCents = totals.RefundsCents
	closing.PayInsCents = totals.PayInsCents
	closing.PayOutsCents = totals.PayOutsCents
	closing.ExpectedCashCents = open.StartingCashCents + totals.CashSalesCents - totals.CashRefundsCents + totals.PayInsCents - totals.PayOutsCents
	closing.CashDifferenceCents = ending - closing.ExpectedCashCents
	closing.EndedAt = &now

	closed, err := s.repo.CloseShift(ctx, closing)
	if err != nil {
		return domain.EndDayResponse{}, err
	}

	if err := s.repo.MarkDayClosed(ctx, actor.BusinessID, now, false); err != nil {
		log.Printf("[shift] WARN failed to mark day closed business=%s: %v", actor.BusinessID, err)
	}
	if !req.SkipEmailSummary {
		if err := s.sendSummary(ctx, actor.BusinessID, now); err != nil {
			log.Printf("[shift] WARN daily summary not delivered business=%s: %v", actor.BusinessID, err)
		}
	}

	diff := closed.CashDifferenceCents
	s.metrics.ObserveVariance(diff)
	s.audit.Log(ctx, actor.BusinessID, "shift_close", "shift", closed.ID,
		fmt.Sprintf("expected=%d,actual=%d,difference=%d", closed.ExpectedCashCents, ending, diff))
	log.Printf("[shift] closed shift=%s expected=%s actual=%s difference=%s",
		closed.ID, money.Format(closed.ExpectedCashCents), money.Format(ending), money.Format(diff))

	return domain.EndDayResponse{
		Shift: *closed,
		Summary: domain.ReconciliationSummary{
			ExpectedCashCents: closed.ExpectedCashCents,
			ActualCashCents:   ending,
			DifferenceCents:   diff,
			IsOver:            diff > 0,
			IsShort:           diff < 0,
		},
	}, nil
}

func (s *Service) PayIn(ctx context.Context, req domain.CashMovementRequest) (domain.CashMovementResponse, error) {
	return s.cashMovement(ctx, domain.TxTypePayIn, req, defaultPayInNote)
}

func (s *Service) PayOut(ctx context.Context, req domain.CashMovementRequest) (domain.CashMovementResponse, error) {
	return s.cashMovement(ctx, domain.TxTypePayOut, req, defaultPayOutNote)
}

func (s *Service) ActiveShift(ctx context.Context) (domain.Shift, error) {
	actor, err := service.RequireActor(ctx)
	if err != nil {
		return domain.Shift{}, err
	}
	open, err := s.repo.GetOpenShift(ctx, actor.BusinessID, actor.UserID)
	if err != nil {
		return domain.Shift{}, err
	}
	return *open, nil
}

func (s *Service) cashMovement(ctx context.Context, txType domain.TxType, req domain.CashMovementRequest, defaultNote string) (domain.CashMovementResponse, error) {
	actor, err := service.RequireActor(ctx)
	if err != nil {
		return domain.CashMovementResponse{}, err
	}
	if req.AmountCents <= 0 {
		return domain.CashMovementResponse{}, domain.ErrInvalidAmount
	}
	note := strings.TrimSpace(req.Note)
	if note == "" {
		note = defaultNote
	}

	now := s.now().UTC()
	created, err := s.repo.CreateTransaction(ctx, domain.Transaction{
		ID:            xid.New("txn"),
		BusinessID:    actor.BusinessID,
		CashierID:     actor.UserID,
		CashierName:   service.DisplayName(actor),
		Type:          txType,
		PaymentMethod: domain.PaymentMethodCash,
		SubtotalCents: req.AmountCents,
		TotalCents:    req.AmountCents,
		NetCents:      req.AmountCents,
		Status:        domain.TxStatusCompleted,
		Note:          note,
		CreatedAt:     now,
		CompletedAt:   &now,
		Items:         []domain.TransactionItem{},
	})
	if err != nil {
		return domain.CashMovementResponse{}, err
	}

	s.audit.Log(ctx, actor.BusinessID, string(txType), "transaction", created.ID, fmt.Sprintf("amount=%d,note=%s", req.AmountCents, note))
	return domain.CashMovementResponse{Transaction: *created}, nil
}

// sendSummary delivers today's summary and records it as sent only once the
// notifier accepted it.
func (s *Service) sendSummary(ctx context.Context, businessID string, now time.Time) error {
	business, err := s.repo.GetBusiness(ctx, businessID)
	if err != nil {
		return err
	}
	summary, err := report.Summarize(ctx, s.repo, *business, now)
	if err != nil {
		return err
	}

	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.notifyTimeout)
	defer cancel()
	if err := s.notifier.SendDailySummary(sendCtx, *business, summary); err != nil {
		return err
	}
	return s.repo.MarkSummarySent(context.WithoutCancel(ctx), businessID, now)
}
