// Package ledger handles what happens to a sale after checkout: refunds,
// voids, history queries and receipts.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"tillpoint/backend/internal/domain"
	"tillpoint/backend/internal/gateway"
	"tillpoint/backend/internal/metrics"
	"tillpoint/backend/internal/money"
	"tillpoint/backend/internal/service"
	"tillpoint/backend/internal/store"
	"tillpoint/backend/internal/xid"
)

const (
	DefaultVoidWindow = 24 * time.Hour
	DefaultListLimit  = 50
	MaxListLimit      = 100
)

type Repository interface {
	store.Ledger
	store.Catalog
}

type Service struct {
	repo       Repository
	gateway    gateway.Gateway
	audit      *service.Auditor
	metrics    *metrics.Metrics
	voidWindow time.Duration
	now        func() time.Time
}

func New(repo Repository, gw gateway.Gateway, audit *service.Auditor, m *metrics.Metrics, voidWindow time.Duration) *Service {
	if voidWindow <= 0 {
		voidWindow = DefaultVoidWindow
	}
	return &Service{
		repo:       repo,
		gateway:    gw,
		audit:      audit,
		metrics:    m,
		voidWindow: voidWindow,
		now:        time.Now,
	}
}

// Refund reverses a completed sale, in full when no items are given or
// line by line otherwise. A sale can be refunded once; card refunds go
// through the gateway before the refund is completed locally.
func (s *Service) Refund(ctx context.Context, req domain.RefundRequest) (domain.RefundResponse, error) {
	actor, err := service.RequireRole(ctx, domain.RoleOwner, domain.RoleManager)
	if err != nil {
		return domain.RefundResponse{}, err
	}

	original, err := s.repo.FindTransaction(ctx, actor.BusinessID, req.TransactionID)
	if err != nil {
		return domain.RefundResponse{}, err
	}
	if original.Type != domain.TxTypeSale {
		return domain.RefundResponse{}, domain.ErrNotRefundable
	}
	if original.Refunded {
		return domain.RefundResponse{}, domain.ErrAlreadyRefunded
	}

	var lines []domain.TransactionItem
	if len(req.Items) == 0 {
		lines = fullRefundLines(original.Items)
	} else {
		lines, err = partialRefundLines(original.Items, req.Items)
		if err != nil {
			return domain.RefundResponse{}, err
		}
	}

	var subtotal, tax, total int64
	for _, line := range lines {
		tax += line.TaxCents
		total += line.TotalCents
	}
	subtotal = total - tax
	if len(req.Items) == 0 {
		// Full refunds mirror the recorded totals, including sales without items.
		subtotal, tax, total = -original.SubtotalCents, -original.TaxCents, -original.TotalCents
	}
	amount := -total
	if amount <= 0 {
		return domain.RefundResponse{}, domain.ErrInvalidAmount
	}

	viaGateway := original.PaymentMethod == domain.PaymentMethodCard && original.ChargeRef != ""
	now := s.now().UTC()
	refund := domain.Transaction{
		ID:            xid.New("txn"),
		BusinessID:    original.BusinessID,
		CashierID:     actor.UserID,
		CashierName:   service.DisplayName(actor),
		Type:          domain.TxTypeRefund,
		PaymentMethod: original.PaymentMethod,
		SubtotalCents: subtotal,
		TaxCents:      tax,
		TotalCents:    total,
		NetCents:      total,
		Status:        domain.TxStatusCompleted,
		Note:          strings.TrimSpace(req.Reason),
		CreatedAt:     now,
		CompletedAt:   &now,
		Items:         lines,
	}
	if viaGateway {
		refund.Status = domain.TxStatusPending
		refund.CompletedAt = nil
	}

	created, err := s.repo.CreateRefund(ctx, original.ID, refund, now)
	if err != nil {
		s.metrics.ObserveRefund(string(original.PaymentMethod), "rejected")
		return domain.RefundResponse{}, err
	}

	if viaGateway {
		refundRef, err := s.gateway.CreateRefund(ctx, gateway.RefundRequest{
			ChargeRef:      original.ChargeRef,
			AmountCents:    amount,
			IdempotencyKey: created.ID,
			Metadata: map[string]string{
				"original_transaction_id": original.ID,
				"refund_transaction_id":   created.ID,
				"reason":                  refund.Note,
			},
		})
		if err != nil {
			if rbErr := s.repo.RollbackRefund(context.WithoutCancel(ctx), original.ID, created.ID); rbErr != nil {
				log.Printf("[ledger] ERROR rollback of refund=%s for tx=%s failed: %v", created.ID, original.ID, rbErr)
			}
			s.metrics.ObserveRefund(string(original.PaymentMethod), "gateway_error")
			if !errors.Is(err, domain.ErrPaymentGateway) {
				err = fmt.Errorf("%w: %v", domain.ErrPaymentGateway, err)
			}
			return domain.RefundResponse{}, err
		}

		created, err = s.repo.CompleteRefund(ctx, created.ID, refundRef, now)
		if err != nil {
			log.Printf("[ledger] ERROR gateway refund %s issued but refund tx=%s not completed: %v", refundRef, refund.ID, err)
			return domain.RefundResponse{}, err
		}
	}

	s.metrics.ObserveRefund(string(original.PaymentMethod), "completed")
	s.audit.Log(ctx, original.BusinessID, "refund_transaction", "transaction", original.ID,
		fmt.Sprintf("refund=%s,amount=%d,items=%d,reason=%s", created.ID, amount, len(req.Items), refund.Note))

	return domain.RefundResponse{
		RefundTransaction: *created,
		RefundCents:       amount,
	}, nil
}

// Void marks a recent completed sale as voided. Nothing is sent to the
// gateway; older sales must be refunded instead.
func (s *Service) Void(ctx context.Context, req domain.VoidRequest) (domain.VoidResponse, error) {
	actor, err := service.RequireRole(ctx, domain.RoleOwner, domain.RoleManager)
	if err != nil {
		return domain.VoidResponse{}, err
	}

	now := s.now().UTC()
	reason := strings.TrimSpace(req.Reason)
	tx, err := s.repo.VoidTransaction(ctx, actor.BusinessID, req.TransactionID, actor.UserID, reason, now, now.Add(-s.voidWindow))
	if err != nil {
		s.metrics.ObserveVoid("rejected")
		return domain.VoidResponse{}, err
	}

	s.metrics.ObserveVoid("voided")
	s.audit.Log(ctx, tx.BusinessID, "void_transaction", "transaction", tx.ID, reason)
	return domain.VoidResponse{
		TransactionID: tx.ID,
		VoidedAt:      now,
		Reason:        reason,
	}, nil
}

func (s *Service) Get(ctx context.Context, id string) (domain.Transaction, error) {
	actor, err := service.RequireActor(ctx)
	if err != nil {
		return domain.Transaction{}, err
	}
	tx, err := s.repo.FindTransaction(ctx, actor.BusinessID, id)
	if err != nil {
		return domain.Transaction{}, err
	}
	return *tx, nil
}

// List returns the caller's business transactions, newest first.
func (s *Service) List(ctx context.Context, filter domain.TransactionFilter) (domain.TransactionListResponse, error) {
	actor, err := service.RequireActor(ctx)
	if err != nil {
		return domain.TransactionListResponse{}, err
	}
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return domain.TransactionListResponse{}, fmt.Errorf("%w: end date before start date", domain.ErrValidation)
	}

	filter.BusinessID = actor.BusinessID
	switch {
	case filter.Limit < 1:
		filter.Limit = DefaultListLimit
	case filter.Limit > MaxListLimit:
		filter.Limit = MaxListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	txs, total, err := s.repo.ListTransactions(ctx, filter)
	if err != nil {
		return domain.TransactionListResponse{}, err
	}
	if txs == nil {
		txs = []domain.Transaction{}
	}
	return domain.TransactionListResponse{
		Transactions: txs,
		Total:        total,
		Limit:        filter.Limit,
		Offset:       filter.Offset,
	}, nil
}

func (s *Service) Receipt(ctx context.Context, id string) (domain.Receipt, error) {
	tx, err := s.Get(ctx, id)
	if err != nil {
		return domain.Receipt{}, err
	}
	business, err := s.repo.GetBusiness(ctx, tx.BusinessID)
	if err != nil {
		return domain.Receipt{}, err
	}

	receipt := domain.Receipt{
		BusinessName:    business.Name,
		BusinessAddress: business.Address,
		TaxRate:         business.TaxRate.Shift(2).String() + "%",
		TransactionID:   tx.ID,
		Date:            tx.CreatedAt,
		Cashier:         tx.CashierName,
		Type:            tx.Type,
		PaymentMethod:   tx.PaymentMethod,
		Items:           tx.Items,
		SubtotalCents:   tx.SubtotalCents,
		TaxCents:        tx.TaxCents,
		TotalCents:      tx.TotalCents,
		Voided:          tx.Voided,
	}
	if tx.Refunded {
		receipt.Refund = &domain.ReceiptRefund{
			AmountCents: tx.RefundedCents,
			RefundedAt:  tx.RefundedAt,
		}
	}
	return receipt, nil
}

func fullRefundLines(items []domain.TransactionItem) []domain.TransactionItem {
	lines := make([]domain.TransactionItem, 0, len(items))
	for _, item := range items {
		lines = append(lines, negate(item, item.Quantity, item.TaxCents, item.TotalCents))
	}
	return lines
}

// partialRefundLines prorates each requested line from the original line
// total, so rounding already applied at sale time carries over.
func partialRefundLines(items []domain.TransactionItem, requested []domain.RefundItemRequest) ([]domain.TransactionItem, error) {
	byID := make(map[string]domain.TransactionItem, len(items))
	for _, item := range items {
		byID[item.ID] = item
	}

	order := make([]string, 0, len(requested))
	quantities := make(map[string]int, len(requested))
	for _, r := range requested {
		item, ok := byID[r.ItemID]
		if !ok {
			return nil, fmt.Errorf("%w: %s", domain.ErrInvalidRefundItem, r.ItemID)
		}
		if r.Quantity <= 0 {
			return nil, domain.ErrInvalidQuantity
		}
		if _, seen := quantities[r.ItemID]; !seen {
			order = append(order, r.ItemID)
		}
		quantities[r.ItemID] += r.Quantity
		if quantities[r.ItemID] > item.Quantity {
			return nil, fmt.Errorf("%w: %s has %d, requested %d", domain.ErrExcessiveRefundQuantity, item.ProductName, item.Quantity, quantities[r.ItemID])
		}
	}

	lines := make([]domain.TransactionItem, 0, len(order))
	for _, id := range order {
		item, qty := byID[id], quantities[id]
		total, err := money.Prorate(item.TotalCents, item.Quantity, qty)
		if err != nil {
			return nil, err
		}
		tax, err := money.Prorate(item.TaxCents, item.Quantity, qty)
		if err != nil {
			return nil, err
		}
		lines = append(lines, negate(item, qty, tax, total))
	}
	return lines, nil
}

func negate(item domain.TransactionItem, quantity int, taxCents int64, totalCents int64) domain.TransactionItem {
	return domain.TransactionItem{
		ProductID:      item.ProductID,
		ProductName:    item.ProductName,
		DepartmentID:   item.DepartmentID,
		Quantity:       -quantity,
		UnitPriceCents: item.UnitPriceCents,
		TaxCents:       -taxCents,
		TotalCents:     -totalCents,
	}
}
