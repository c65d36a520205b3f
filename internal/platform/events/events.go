// Package events defines the Kafka-facing envelope for the engine's
// best-effort lifecycle events. It is distinct from workflow/model's DomainEvent, which is
// the aggregate's own uncommitted-event buffer — this package is what that
// buffer gets published as once committed.
package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType identifies the kind of lifecycle event.
type EventType string

const (
	WorkflowCreated   EventType = "workflow.created"
	WorkflowUpdated   EventType = "workflow.updated"
	WorkflowDeleted   EventType = "workflow.deleted"
	WorkflowActivated EventType = "workflow.activated"
	WorkflowArchived  EventType = "workflow.archived"

	ExecutionStarted   EventType = "execution.started"
	ExecutionCompleted EventType = "execution.completed"
	ExecutionFailed    EventType = "execution.failed"
	ExecutionCancelled EventType = "execution.cancelled"

	NodeExecutionStarted   EventType = "node.execution.started"
	NodeExecutionCompleted EventType = "node.execution.completed"
	NodeExecutionFailed    EventType = "node.execution.failed"
)

// Event is the wire envelope published to Kafka.
type Event struct {
	ID            string          `json:"id"`
	Type          EventType       `json:"type"`
	AggregateID   string          `json:"aggregateId"`
	AggregateType string          `json:"aggregateType"`
	Timestamp     time.Time       `json:"timestamp"`
	Data          json.RawMessage `json:"data"`
	Metadata      Metadata        `json:"metadata"`
}

// Metadata carries correlation/tracing context alongside the event.
type Metadata struct {
	CorrelationID string `json:"correlationId,omitempty"`
	TraceID       string `json:"traceId,omitempty"`
	Source        string `json:"source,omitempty"`
}

// NewEvent builds an Event, marshaling data into its Data field.
func NewEvent(eventType EventType, aggregateID, aggregateType string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Event{
		ID:            uuid.New().String(),
		Type:          eventType,
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		Timestamp:     time.Now().UTC(),
		Data:          dataBytes,
		Metadata:      Metadata{},
	}, nil
}

func (e *Event) WithCorrelation(correlationID string) *Event {
	e.Metadata.CorrelationID = correlationID
	return e
}

// WorkflowEventData is the payload for workflow.* events.
type WorkflowEventData struct {
	WorkflowID string `json:"workflowId"`
	Name       string `json:"name"`
}

// ExecutionStartedData is the payload for execution.started.
type ExecutionStartedData struct {
	ExecutionID string                 `json:"executionId"`
	WorkflowID  string                 `json:"workflowId"`
	TriggerType string                 `json:"triggerType"`
	InputData   map[string]interface{} `json:"inputData"`
}

// ExecutionCompletedData is the payload for execution.completed.
type ExecutionCompletedData struct {
	ExecutionID string                 `json:"executionId"`
	WorkflowID  string                 `json:"workflowId"`
	Status      string                 `json:"status"`
	DurationMs  int64                  `json:"durationMs"`
	OutputData  map[string]interface{} `json:"outputData"`
}

// ExecutionFailedData is the payload for execution.failed.
type ExecutionFailedData struct {
	ExecutionID string `json:"executionId"`
	WorkflowID  string `json:"workflowId"`
	Error       string `json:"error"`
	FailedNode  string `json:"failedNode,omitempty"`
}
