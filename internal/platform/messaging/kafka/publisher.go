// Package kafka publishes the engine's lifecycle events best-effort:
// publish failures never fail the workflow or node operation that
// produced the event, matching the fire-and-forget async-producer
// pattern this codebase uses for every other bounded context's event
// stream.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"

	"github.com/linkflow-ai/workflow-engine/internal/platform/events"
)

// EventPublisher publishes lifecycle events to Kafka.
type EventPublisher struct {
	producer sarama.AsyncProducer
	config   *Config
	errors   chan error
}

// Config holds Kafka configuration.
type Config struct {
	Brokers []string
}

// NewEventPublisher creates a new Kafka event publisher.
func NewEventPublisher(config *Config) (*EventPublisher, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Producer.RequiredAcks = sarama.WaitForAll
	saramaConfig.Producer.Retry.Max = 5
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true
	saramaConfig.Producer.Compression = sarama.CompressionSnappy
	saramaConfig.Version = sarama.V3_3_1_0

	producer, err := sarama.NewAsyncProducer(config.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create producer: %w", err)
	}

	publisher := &EventPublisher{
		producer: producer,
		config:   config,
		errors:   make(chan error, 100),
	}

	go publisher.handleErrors()
	go publisher.handleSuccesses()

	return publisher, nil
}

// Publish sends an event asynchronously; callers should treat a nil error
// as "enqueued," not "durably delivered."
func (p *EventPublisher) Publish(ctx context.Context, event *events.Event) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to serialize event: %w", err)
	}

	topic := p.getTopicForEvent(event.Type)

	message := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(event.AggregateID),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte("eventType"), Value: []byte(event.Type)},
			{Key: []byte("aggregateType"), Value: []byte(event.AggregateType)},
			{Key: []byte("correlationId"), Value: []byte(event.Metadata.CorrelationID)},
		},
		Timestamp: event.Timestamp,
	}

	select {
	case p.producer.Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case err := <-p.errors:
		return fmt.Errorf("producer error: %w", err)
	}
}

// Close closes the publisher.
func (p *EventPublisher) Close() error {
	if err := p.producer.Close(); err != nil {
		return fmt.Errorf("failed to close producer: %w", err)
	}
	close(p.errors)
	return nil
}

func (p *EventPublisher) handleErrors() {
	for err := range p.producer.Errors() {
		select {
		case p.errors <- fmt.Errorf("kafka producer error: %w", err.Err):
		default:
		}
	}
}

func (p *EventPublisher) handleSuccesses() {
	for range p.producer.Successes() {
	}
}

// getTopicForEvent maps event types to Kafka topics.
func (p *EventPublisher) getTopicForEvent(eventType events.EventType) string {
	switch eventType {
	case events.WorkflowCreated, events.WorkflowUpdated, events.WorkflowDeleted, events.WorkflowActivated, events.WorkflowArchived:
		return "workflow-events"
	case events.ExecutionStarted, events.ExecutionCompleted, events.ExecutionFailed, events.ExecutionCancelled:
		return "execution-events"
	case events.NodeExecutionStarted, events.NodeExecutionCompleted, events.NodeExecutionFailed:
		return "node-events"
	default:
		return "default-events"
	}
}
