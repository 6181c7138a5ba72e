package publish

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"ppe-monitor-service/internal/domain/ppe"
)

// Kind tags published messages so consumers can route without parsing
// the event body.
const (
	KindStarted      = "violation.started"
	KindResolved     = "violation.resolved"
	KindAutoResolved = "violation.auto_resolved"
)

type message struct {
	Kind  string             `json:"kind"`
	Event ppe.ViolationEvent `json:"event"`
}

// KafkaPublisher writes violation lifecycle events to a topic, keyed by
// camera so per-camera ordering survives partitioning. Publish failures
// are logged and swallowed: the event stream is best-effort and must
// never block frame processing.
type KafkaPublisher struct {
	writer *kafka.Writer
	log    zerolog.Logger
}

func NewKafkaPublisher(brokers []string, topic string, log zerolog.Logger) *KafkaPublisher {
	if len(brokers) == 0 {
		return nil
	}
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			WriteTimeout: 5 * time.Second,
		},
		log: log,
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, kind string, ev ppe.ViolationEvent) {
	if p == nil {
		return
	}
	value, err := json.Marshal(message{Kind: kind, Event: ev})
	if err != nil {
		p.log.Error().Err(err).Str("event_id", ev.EventID).Msg("failed to encode event")
		return
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.CameraID),
		Value: value,
	})
	if err != nil {
		p.log.Warn().
			Err(err).
			Str("kind", kind).
			Str("event_id", ev.EventID).
			Msg("failed to publish event")
	}
}

func (p *KafkaPublisher) Close() error {
	if p == nil {
		return nil
	}
	return p.writer.Close()
}
