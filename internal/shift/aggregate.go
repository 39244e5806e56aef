package shift

import "tillpoint/backend/internal/domain"

// Totals are the drawer-relevant sums over a shift. Refund amounts are
// magnitudes.
type Totals struct {
	CashSalesCents   int64
	CardSalesCents   int64
	RefundsCents     int64
	CashRefundsCents int64
	PayInsCents      int64
	PayOutsCents     int64
}

// Aggregate sums completed, unvoided transactions. Pending card sales and
// voided corrections never reached the drawer.
func Aggregate(txs []domain.Transaction) Totals {
	var t Totals
	for _, tx := range txs {
		if tx.Status != domain.TxStatusCompleted || tx.Voided {
			continue
		}
		switch tx.Type {
		case domain.TxTypeSale:
			if tx.PaymentMethod == domain.PaymentMethodCash {
				t.CashSalesCents += tx.TotalCents
			} else {
				t.CardSalesCents += tx.TotalCents
			}
		case domain.TxTypeRefund:
			amount := tx.TotalCents
			if amount < 0 {
				amount = -amount
			}
			t.RefundsCents += amount
			if tx.PaymentMethod == domain.PaymentMethodCash {
				t.CashRefundsCents += amount
			}
		case domain.TxTypePayIn:
			t.PayInsCents += tx.TotalCents
		case domain.TxTypePayOut:
			t.PayOutsCents += tx.TotalCents
		}
	}
	return t
}
