// Package kafka publishes resolved stock records and notification
// events to Kafka topics.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/geohash-dispatch/internal/config"
	"github.com/couchcryptid/geohash-dispatch/internal/domain"
)

// Writer produces destination broadcast messages. It implements
// coordinator.Broadcaster.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the destination topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaDestinationTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// Broadcast publishes a freshly resolved stock record so downstream
// consumers can derive destinations without re-fetching the source.
func (w *Writer) Broadcast(ctx context.Context, rec domain.StockRecord, class domain.StockClass) error {
	msg, err := serializeToMessage(rec, class)
	if err != nil {
		return err
	}
	return w.writer.WriteMessages(ctx, msg)
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a stock record into a Kafka message keyed
// by (effective date, class) so replays compact to one record per key.
func serializeToMessage(rec domain.StockRecord, class domain.StockClass) (kafkago.Message, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize stock record: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(rec.Date.Format("2006-01-02") + "/" + class.String()),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "class", Value: []byte(class.String())},
			{Key: "fetched_at", Value: []byte(rec.FetchedAt.Format(time.RFC3339))},
		},
	}, nil
}
