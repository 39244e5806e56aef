package notify

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tillpoint/backend/internal/domain"
)

type recordingWriter struct {
	messages []kafka.Message
	closed   bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaPublishesSummaryKeyedByBusiness(t *testing.T) {
	writer := &recordingWriter{}
	notifier := &Kafka{writer: writer}
	business := domain.Business{ID: "biz_demo", Name: "Corner Market", NotificationEmail: "owner@example.com"}
	summary := domain.DailySummary{BusinessID: "biz_demo", Date: "2026-03-14", TotalSalesCents: 2211, NetSalesCents: 2211, TransactionCount: 1}

	require.NoError(t, notifier.SendDailySummary(context.Background(), business, summary))
	require.Len(t, writer.messages, 1)

	msg := writer.messages[0]
	assert.Equal(t, "biz_demo", string(msg.Key))
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, EventDailySummary, string(msg.Headers[0].Value))

	var event DailySummaryEvent
	require.NoError(t, json.Unmarshal(msg.Value, &event))
	assert.Equal(t, "owner@example.com", event.Recipient)
	assert.Equal(t, "Daily Summary for 2026-03-14", event.Subject)
	assert.Equal(t, int64(2211), event.Summary.TotalSalesCents)

	require.NoError(t, notifier.Close())
	assert.True(t, writer.closed)
}

func TestParseBrokers(t *testing.T) {
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, ParseBrokers(" kafka-1:9092, ,kafka-2:9092,"))
	assert.Empty(t, ParseBrokers(""))
}

func TestLogNotifier(t *testing.T) {
	assert.NoError(t, Log{}.SendDailySummary(context.Background(), domain.Business{ID: "biz_demo"}, domain.DailySummary{}))
}
