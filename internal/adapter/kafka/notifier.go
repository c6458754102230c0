package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/geohash-dispatch/internal/config"
	"github.com/couchcryptid/geohash-dispatch/internal/match"
)

// notification event kinds.
const (
	eventPost   = "post"
	eventCancel = "cancel"
)

// notificationEvent is the wire form of a notification surface change.
// A cancel carries only the slot; consumers treat the slot as the
// compaction key, so the latest event per slot wins.
type notificationEvent struct {
	Kind    string         `json:"kind"`
	Slot    string         `json:"slot"`
	Title   string         `json:"title,omitempty"`
	Body    string         `json:"body,omitempty"`
	Matches []matchPayload `json:"matches,omitempty"`
}

type matchPayload struct {
	Location   string  `json:"location"`
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
	DistanceKm float64 `json:"distance_km"`
}

// Notifier publishes notification events to the notification topic. It
// implements match.Notifier.
type Notifier struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewNotifier creates a Kafka producer for the notification topic.
func NewNotifier(cfg *config.Config, logger *slog.Logger) *Notifier {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaNotificationTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Notifier{writer: w, logger: logger}
}

func (n *Notifier) Post(ctx context.Context, notif match.Notification) error {
	ev := notificationEvent{
		Kind:  eventPost,
		Slot:  notif.Slot,
		Title: notif.Title,
		Body:  notif.Body,
	}
	for _, r := range notif.Results {
		ev.Matches = append(ev.Matches, matchPayload{
			Location:   r.Location.Name,
			Lat:        r.Destination.Lat,
			Lon:        r.Destination.Lon,
			DistanceKm: r.DistanceKm,
		})
	}
	return n.publish(ctx, ev)
}

func (n *Notifier) Cancel(ctx context.Context, slot string) error {
	return n.publish(ctx, notificationEvent{Kind: eventCancel, Slot: slot})
}

func (n *Notifier) Close() error {
	return n.writer.Close()
}

func (n *Notifier) publish(ctx context.Context, ev notificationEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("serialize notification event: %w", err)
	}
	return n.writer.WriteMessages(ctx, kafkago.Message{
		Key:   []byte(ev.Slot),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "kind", Value: []byte(ev.Kind)},
		},
	})
}
