// Package ingest moves driver records and confirmed bookings through Kafka.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/example/trip-matching/internal/models"
)

const publishTimeout = 2 * time.Second

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaProducer publishes driver records and booking events. Topics are set
// per message so one writer serves both.
type KafkaProducer struct {
	writer       messageWriter
	driverTopic  string
	bookingTopic string
}

func NewKafkaProducer(brokers []string, driverTopic, bookingTopic string) *KafkaProducer {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
	}
	return &KafkaProducer{writer: w, driverTopic: driverTopic, bookingTopic: bookingTopic}
}

// BookingEvent is the payload published on the booking topic.
type BookingEvent struct {
	SessionID string         `json:"session_id"`
	Booking   models.Booking `json:"booking"`
}

func (k *KafkaProducer) publish(ctx context.Context, topic, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s message: %w", topic, err)
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := k.writer.WriteMessages(ctx, kafka.Message{Topic: topic, Key: []byte(key), Value: b}); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

// PublishDriver sends a driver record, keyed by driver id.
func (k *KafkaProducer) PublishDriver(ctx context.Context, d models.Driver) error {
	return k.publish(ctx, k.driverTopic, d.ID, d)
}

func (k *KafkaProducer) BookingConfirmed(ctx context.Context, sessionID string, b models.Booking) error {
	return k.publish(ctx, k.bookingTopic, b.ID, BookingEvent{SessionID: sessionID, Booking: b})
}

func (k *KafkaProducer) Close() error {
	if k.writer == nil {
		return nil
	}
	return k.writer.Close()
}
