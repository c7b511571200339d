package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/tair/heat-service/pkg/logger"
)

// Publisher wraps Kafka producer
type Publisher struct {
	producer sarama.SyncProducer
	topic    string
}

// NewPublisher creates a new Kafka publisher for the favorite activity topic
func NewPublisher(brokers []string, topic string) (*Publisher, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.Retry.Max = 3
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.MaxMessageBytes = 1000000

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	logger.Logger.Info().
		Strs("brokers", brokers).
		Str("topic", topic).
		Msg("Kafka publisher initialized")

	return NewPublisherWithProducer(producer, topic), nil
}

// NewPublisherWithProducer builds a publisher over an existing producer
func NewPublisherWithProducer(producer sarama.SyncProducer, topic string) *Publisher {
	if topic == "" {
		topic = TopicFavoriteActivity
	}
	return &Publisher{producer: producer, topic: topic}
}

// PublishFavoriteToggled publishes a favorite toggled event with tracing.
// Messages are keyed by item so one item's events stay ordered.
func (p *Publisher) PublishFavoriteToggled(ctx context.Context, event FavoriteToggledEvent) error {
	tracer := otel.Tracer("kafka-publisher")
	ctx, span := tracer.Start(ctx, "kafka.publish.favorite_toggled",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination", p.topic),
			attribute.String("messaging.destination_kind", "topic"),
			attribute.String("event.type", EventTypeFavoriteToggled),
			attribute.String("item.id", event.ItemID),
			attribute.Bool("favorite.favorited", event.Favorited),
		),
	)
	defer span.End()

	if event.EventID == "" {
		event.EventID = uuid.NewString()
	}
	event.EventType = EventTypeFavoriteToggled
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	span.SetAttributes(attribute.String("event.id", event.EventID))

	eventBytes, err := json.Marshal(event)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to marshal event")
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	// Inject trace context into Kafka headers
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)

	headers := []sarama.RecordHeader{
		{Key: []byte(headerEventType), Value: []byte(EventTypeFavoriteToggled)},
		{Key: []byte(headerEventID), Value: []byte(event.EventID)},
	}
	for key, value := range carrier {
		headers = append(headers, sarama.RecordHeader{
			Key:   []byte(key),
			Value: []byte(value),
		})
	}

	msg := &sarama.ProducerMessage{
		Topic:   p.topic,
		Key:     sarama.StringEncoder("item_" + event.ItemID),
		Value:   sarama.ByteEncoder(eventBytes),
		Headers: headers,
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to send message")
		logger.Error(ctx).
			Err(err).
			Str("topic", p.topic).
			Str("item_id", event.ItemID).
			Msg("Failed to publish event")
		return fmt.Errorf("failed to send message to Kafka: %w", err)
	}

	span.SetAttributes(
		attribute.Int("messaging.kafka.partition", int(partition)),
		attribute.Int64("messaging.kafka.offset", offset),
	)
	span.SetStatus(codes.Ok, "Event published successfully")

	logger.Debug(ctx).
		Str("event_id", event.EventID).
		Str("topic", p.topic).
		Int32("partition", partition).
		Int64("offset", offset).
		Str("item_id", event.ItemID).
		Msg("Favorite toggled event published")

	return nil
}

// Close closes the Kafka producer
func (p *Publisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
