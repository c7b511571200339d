package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/tair/heat-service/pkg/logger"
)

// CatalogHandler applies one catalog feed record. Returning an error wrapping
// ErrUnprocessable skips the record; any other error is retried and, if it
// persists, leaves the offset uncommitted.
type CatalogHandler func(ctx context.Context, event CatalogItemUpsertedEvent) error

// ErrUnprocessable marks a record that can never be applied
var ErrUnprocessable = errors.New("unprocessable record")

// Retry policy for records that fail with a transient error
const (
	defaultHandleAttempts = 3
	defaultRetryDelay     = 200 * time.Millisecond
)

// Consumer wraps Kafka consumer group reading the catalog feed
type Consumer struct {
	consumer sarama.ConsumerGroup
	groupID  string
	topics   []string
	handler  CatalogHandler
	wg       sync.WaitGroup
}

// NewConsumer creates a new Kafka consumer
func NewConsumer(brokers []string, groupID string, topics []string, handler CatalogHandler) (*Consumer, error) {
	config := sarama.NewConfig()
	config.Version = sarama.V2_6_0_0
	config.Consumer.Group.Rebalance.Strategy = sarama.NewBalanceStrategyRoundRobin()
	config.Consumer.Offsets.Initial = sarama.OffsetOldest
	config.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(brokers, groupID, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka consumer: %w", err)
	}

	logger.Logger.Info().
		Strs("brokers", brokers).
		Str("group_id", groupID).
		Strs("topics", topics).
		Msg("Kafka consumer initialized")

	return &Consumer{
		consumer: group,
		groupID:  groupID,
		topics:   topics,
		handler:  handler,
	}, nil
}

// Start starts consuming messages until ctx is cancelled
func (c *Consumer) Start(ctx context.Context) {
	handler := &consumerGroupHandler{
		handle:     c.handler,
		attempts:   defaultHandleAttempts,
		retryDelay: defaultRetryDelay,
	}

	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		for {
			if err := c.consumer.Consume(ctx, c.topics, handler); err != nil {
				if errors.Is(err, sarama.ErrClosedConsumerGroup) {
					return
				}
				logger.Logger.Error().
					Err(err).
					Msg("Error from consumer")
			}
			if ctx.Err() != nil {
				logger.Logger.Info().Msg("Consumer context cancelled, stopping...")
				return
			}
		}
	}()

	go func() {
		defer c.wg.Done()
		for err := range c.consumer.Errors() {
			logger.Logger.Error().
				Err(err).
				Msg("Consumer error")
		}
	}()

	logger.Logger.Info().
		Strs("topics", c.topics).
		Str("group_id", c.groupID).
		Msg("Kafka consumer started")
}

// Close closes the consumer group and waits for its goroutines
func (c *Consumer) Close() error {
	if c.consumer == nil {
		return nil
	}
	err := c.consumer.Close()
	c.wg.Wait()
	return err
}

// consumerGroupHandler implements sarama.ConsumerGroupHandler
type consumerGroupHandler struct {
	handle     CatalogHandler
	attempts   int
	retryDelay time.Duration
}

func (h *consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error {
	return nil
}

func (h *consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for message := range claim.Messages() {
		if err := h.process(session.Context(), message); err != nil {
			// Unmarked: the record is redelivered from the last committed offset
			return err
		}
		session.MarkMessage(message, "")
	}
	return nil
}

// process applies a record, skipping unprocessable ones and retrying the rest
func (h *consumerGroupHandler) process(ctx context.Context, message *sarama.ConsumerMessage) error {
	attempts := h.attempts
	if attempts <= 0 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = h.handleMessage(ctx, message)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrUnprocessable) {
			logger.Warn(ctx).
				Err(err).
				Str("topic", message.Topic).
				Int64("offset", message.Offset).
				Msg("Skipping unprocessable record")
			return nil
		}
		if attempt == attempts {
			break
		}

		timer := time.NewTimer(time.Duration(attempt) * h.retryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	logger.Error(ctx).
		Err(err).
		Str("topic", message.Topic).
		Int32("partition", message.Partition).
		Int64("offset", message.Offset).
		Int("attempts", attempts).
		Msg("Record failed, leaving offset uncommitted")
	return err
}

var (
	errMissingEventType = fmt.Errorf("%w: message without event_type header", ErrUnprocessable)
	errUnknownEventType = fmt.Errorf("%w: unknown event type", ErrUnprocessable)
)

func (h *consumerGroupHandler) handleMessage(ctx context.Context, message *sarama.ConsumerMessage) error {
	carrier := propagation.MapCarrier{}
	var eventType, eventID string
	for _, header := range message.Headers {
		switch key := string(header.Key); key {
		case "traceparent", "tracestate":
			carrier[key] = string(header.Value)
		case headerEventType:
			eventType = string(header.Value)
		case headerEventID:
			eventID = string(header.Value)
		}
	}

	ctx = otel.GetTextMapPropagator().Extract(ctx, carrier)

	tracer := otel.Tracer("kafka-consumer")
	ctx, span := tracer.Start(ctx, "kafka.consume.catalog_item",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.source", message.Topic),
			attribute.String("messaging.source_kind", "topic"),
			attribute.Int("messaging.kafka.partition", int(message.Partition)),
			attribute.Int64("messaging.kafka.offset", message.Offset),
		),
	)
	defer span.End()

	logger.Debug(ctx).
		Str("topic", message.Topic).
		Int32("partition", message.Partition).
		Int64("offset", message.Offset).
		Msg("Received message")

	if eventType == "" {
		span.SetStatus(codes.Error, errMissingEventType.Error())
		logger.Warn(ctx).Str("topic", message.Topic).Msg("Message without event_type header")
		return errMissingEventType
	}

	span.SetAttributes(
		attribute.String("event.type", eventType),
		attribute.String("event.id", eventID),
	)

	if eventType != EventTypeCatalogItemUpserted {
		span.SetStatus(codes.Error, "Unknown event type")
		logger.Warn(ctx).
			Str("event_type", eventType).
			Msg("Unknown event type")
		return fmt.Errorf("%w: %s", errUnknownEventType, eventType)
	}

	var event CatalogItemUpsertedEvent
	if err := json.Unmarshal(message.Value, &event); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to unmarshal event")
		logger.Error(ctx).
			Err(err).
			Str("event_type", eventType).
			Msg("Failed to unmarshal event")
		return fmt.Errorf("%w: failed to unmarshal event: %v", ErrUnprocessable, err)
	}

	span.SetAttributes(
		attribute.String("item.id", event.ItemID),
		attribute.Bool("item.trending", event.Trending),
	)

	if err := h.handle(ctx, event); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to handle event")
		logger.Error(ctx).
			Err(err).
			Str("event_id", event.EventID).
			Str("item_id", event.ItemID).
			Msg("Failed to handle event")
		return err
	}

	span.SetStatus(codes.Ok, "Event handled successfully")
	logger.Info(ctx).
		Str("event_id", event.EventID).
		Str("item_id", event.ItemID).
		Msg("Catalog item applied")
	return nil
}
