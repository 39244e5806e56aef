// Package notify delivers end-of-day summaries to the business owner. The
// summary is published as an event; mail delivery happens downstream.
package notify

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"tillpoint/backend/internal/domain"
	"tillpoint/backend/internal/money"
)

const EventDailySummary = "daily_summary"

type Notifier interface {
	SendDailySummary(ctx context.Context, business domain.Business, summary domain.DailySummary) error
}

// DailySummaryEvent is the message value published for each summary.
type DailySummaryEvent struct {
	Type         string              `json:"type"`
	BusinessID   string              `json:"business_id"`
	BusinessName string              `json:"business_name"`
	Recipient    string              `json:"recipient,omitempty"`
	Subject      string              `json:"subject"`
	Summary      domain.DailySummary `json:"summary"`
	SentAt       time.Time           `json:"sent_at"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Kafka struct {
	writer messageWriter
}

// ParseBrokers splits a comma separated broker list, dropping blanks.
func ParseBrokers(csv string) []string {
	brokers := []string{}
	for _, b := range strings.Split(csv, ",") {
		b = strings.TrimSpace(b)
		if b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

func NewKafka(brokers []string, topic string) *Kafka {
	return &Kafka{writer: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}}
}

func (k *Kafka) SendDailySummary(ctx context.Context, business domain.Business, summary domain.DailySummary) error {
	now := time.Now().UTC()
	data, err := json.Marshal(newEvent(business, summary, now))
	if err != nil {
		return err
	}
	return k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(business.ID),
		Value: data,
		Time:  now,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(EventDailySummary)},
		},
	})
}

func (k *Kafka) Close() error {
	return k.writer.Close()
}

// Log writes summaries to the process log. Used when no broker is configured.
type Log struct{}

func (Log) SendDailySummary(_ context.Context, business domain.Business, summary domain.DailySummary) error {
	log.Printf("[notify] daily summary business=%s date=%s sales=%s refunds=%s net=%s transactions=%d",
		business.ID, summary.Date, money.Format(summary.TotalSalesCents), money.Format(summary.TotalRefundsCents),
		money.Format(summary.NetSalesCents), summary.TransactionCount)
	return nil
}

func newEvent(business domain.Business, summary domain.DailySummary, now time.Time) DailySummaryEvent {
	return DailySummaryEvent{
		Type:         EventDailySummary,
		BusinessID:   business.ID,
		BusinessName: business.Name,
		Recipient:    business.NotificationEmail,
		Subject:      "Daily Summary for " + summary.Date,
		Summary:      summary,
		SentAt:       now,
	}
}
