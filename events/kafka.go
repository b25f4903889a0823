package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/eddielth/air-monitor/airquality"
	"github.com/eddielth/air-monitor/metrics"
)

// Event types
const (
	TypeEvaluation = "evaluation"
	TypeFanState   = "fan_state"
)

// Event is what downstream consumers (alerting, dashboards) receive
type Event struct {
	Type          string                    `json:"type"`
	Time          time.Time                 `json:"time"`
	Mode          airquality.Mode           `json:"mode,omitempty"`
	Sample        *airquality.SensorSample  `json:"sample,omitempty"`
	Notifications []airquality.Notification `json:"notifications,omitempty"`
	Summary       *airquality.Summary       `json:"summary,omitempty"`
	Decision      *airquality.Decision      `json:"decision,omitempty"`
	State         *airquality.ActuatorState `json:"state,omitempty"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events as JSON, keyed by event type
type KafkaPublisher struct {
	writer messageWriter
}

// NewKafkaPublisher creates a synchronous writer for topic
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			BatchTimeout: 50 * time.Millisecond,
		},
	}
}

// Publish writes one event
func (p *KafkaPublisher) Publish(ctx context.Context, e Event) error {
	value, err := json.Marshal(e)
	if err != nil {
		metrics.EventsPublished.WithLabelValues("error").Inc()
		return fmt.Errorf("marshal %s event: %w", e.Type, err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(e.Type),
		Value: value,
		Time:  e.Time,
	})
	if err != nil {
		metrics.EventsPublished.WithLabelValues("error").Inc()
		return fmt.Errorf("write %s event: %w", e.Type, err)
	}

	metrics.EventsPublished.WithLabelValues("ok").Inc()
	return nil
}

// Close flushes and closes the writer
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
