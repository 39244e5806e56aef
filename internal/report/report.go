// Package report builds the end-of-day sales summary and runs the job that
// sends it for businesses that never closed their day.
package report

import (
	"context"
	"sort"
	"time"

	"tillpoint/backend/internal/domain"
	"tillpoint/backend/internal/restriction"
)

const topProductLimit = 10

type TransactionSource interface {
	ListTransactionsSince(ctx context.Context, businessID string, since time.Time, types []domain.TxType) ([]domain.Transaction, error)
}

// DayStart is local midnight of now's day in the business's time zone.
func DayStart(now time.Time, timezone string) time.Time {
	local := restriction.LocalTime(now, timezone)
	y, m, d := local.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, local.Location())
}

// Summarize loads the business's sales and refunds for the local day
// containing now.
func Summarize(ctx context.Context, src TransactionSource, business domain.Business, now time.Time) (domain.DailySummary, error) {
	start := DayStart(now, business.Timezone)
	txs, err := src.ListTransactionsSince(ctx, business.ID, start.UTC(), []domain.TxType{domain.TxTypeSale, domain.TxTypeRefund})
	if err != nil {
		return domain.DailySummary{}, err
	}
	return BuildDailySummary(business, start, txs), nil
}

// BuildDailySummary totals completed, unvoided sales and refunds created on
// the local day starting at dayStart.
func BuildDailySummary(business domain.Business, dayStart time.Time, txs []domain.Transaction) domain.DailySummary {
	dayEnd := dayStart.AddDate(0, 0, 1)
	summary := domain.DailySummary{
		BusinessID:   business.ID,
		BusinessName: business.Name,
		Date:         dayStart.Format("2006-01-02"),
		TopProducts:  []domain.ProductSales{},
	}

	type productKey struct{ id, name string }
	products := make(map[productKey]*domain.ProductSales)
	order := make([]productKey, 0, 16)
	sales := 0

	for _, tx := range txs {
		if tx.Status != domain.TxStatusCompleted || tx.Voided {
			continue
		}
		if tx.CreatedAt.Before(dayStart) || !tx.CreatedAt.Before(dayEnd) {
			continue
		}

		switch tx.Type {
		case domain.TxTypeRefund:
			summary.TotalRefundsCents += abs(tx.TotalCents)
		case domain.TxTypeSale:
			sales++
			summary.TotalSalesCents += tx.TotalCents
			switch tx.PaymentMethod {
			case domain.PaymentMethodCash:
				summary.CashSalesCents += tx.TotalCents
			case domain.PaymentMethodCard:
				summary.CardSalesCents += tx.TotalCents
				summary.CardFeesCents += tx.ProcessingFeeCents
			}
			summary.HourlySalesCents[tx.CreatedAt.In(dayStart.Location()).Hour()] += tx.TotalCents

			for _, item := range tx.Items {
				key := productKey{id: item.ProductID}
				if key.id == "" {
					key.name = item.ProductName
				}
				entry, ok := products[key]
				if !ok {
					entry = &domain.ProductSales{Name: item.ProductName}
					products[key] = entry
					order = append(order, key)
				}
				entry.Quantity += item.Quantity
				entry.RevenueCents += item.TotalCents
			}
		}
	}

	summary.TransactionCount = sales
	summary.NetSalesCents = summary.TotalSalesCents - summary.TotalRefundsCents
	summary.NetCardCents = summary.CardSalesCents - summary.CardFeesCents
	if sales > 0 {
		summary.AverageSaleCents = (summary.TotalSalesCents + int64(sales)/2) / int64(sales)
	}

	for _, key := range order {
		summary.TopProducts = append(summary.TopProducts, *products[key])
	}
	sort.SliceStable(summary.TopProducts, func(i, j int) bool {
		return summary.TopProducts[i].RevenueCents > summary.TopProducts[j].RevenueCents
	})
	if len(summary.TopProducts) > topProductLimit {
		summary.TopProducts = summary.TopProducts[:topProductLimit]
	}
	return summary
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
