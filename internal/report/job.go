package report

import (
	"context"
	"log"
	"time"

	"tillpoint/backend/internal/domain"
	"tillpoint/backend/internal/notify"
)

type JobRepository interface {
	TransactionSource
	ListBusinessesPendingSummary(ctx context.Context, dayStart time.Time) ([]domain.Business, error)
	MarkSummarySent(ctx context.Context, businessID string, at time.Time) error
}

// SummaryJob periodically sends the daily summary for businesses that had
// activity today but have neither closed the day nor received a summary.
type SummaryJob struct {
	repo        JobRepository
	notifier    notify.Notifier
	interval    time.Duration
	sendTimeout time.Duration
	now         func() time.Time
}

func NewSummaryJob(repo JobRepository, notifier notify.Notifier, interval time.Duration) *SummaryJob {
	if interval <= 0 {
		interval = time.Hour
	}
	return &SummaryJob{
		repo:        repo,
		notifier:    notifier,
		interval:    interval,
		sendTimeout: 10 * time.Second,
		now:         time.Now,
	}
}

func (j *SummaryJob) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			j.RunOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// RunOnce sends pending summaries and returns how many were sent.
func (j *SummaryJob) RunOnce(ctx context.Context) int {
	now := j.now().UTC()

	// Local midnight is never after now, so filtering on now returns every
	// candidate; each business is then checked against its own day start.
	businesses, err := j.repo.ListBusinessesPendingSummary(ctx, now)
	if err != nil {
		log.Printf("[summary-job] failed to list businesses: %v", err)
		return 0
	}

	sent := 0
	for _, business := range businesses {
		dayStart := DayStart(now, business.Timezone)
		if after(business.LastDayClosedAt, dayStart) || after(business.LastSummarySentAt, dayStart) {
			continue
		}

		summary, err := Summarize(ctx, j.repo, business, now)
		if err != nil {
			log.Printf("[summary-job] failed to summarize business=%s: %v", business.ID, err)
			continue
		}
		if summary.TransactionCount == 0 && summary.TotalRefundsCents == 0 {
			continue
		}

		sendCtx, cancel := context.WithTimeout(ctx, j.sendTimeout)
		err = j.notifier.SendDailySummary(sendCtx, business, summary)
		cancel()
		if err != nil {
			log.Printf("[summary-job] failed to send summary business=%s: %v", business.ID, err)
			continue
		}

		if err := j.repo.MarkSummarySent(ctx, business.ID, now); err != nil {
			log.Printf("[summary-job] failed to mark summary sent business=%s: %v", business.ID, err)
			continue
		}
		sent++
		log.Printf("[summary-job] daily summary sent business=%s date=%s", business.ID, summary.Date)
	}
	return sent
}

func after(at *time.Time, dayStart time.Time) bool {
	return at != nil && !at.Before(dayStart)
}
