package model

import "time"

// EventType enumerates the domain events a Workflow aggregate emits,
// trimmed from this codebase's internal/shared/events catalog to the subset
// this aggregate actually raises.
type EventType string

const (
	EventWorkflowCreated     EventType = "workflow.created"
	EventWorkflowUpdated     EventType = "workflow.updated"
	EventWorkflowActivated   EventType = "workflow.activated"
	EventWorkflowDeactivated EventType = "workflow.deactivated"
	EventWorkflowDeleted     EventType = "workflow.deleted"
)

// DomainEvent is a fact recorded against a Workflow aggregate. It is
// published best-effort by the service layer via the Kafka event publisher;
// the engine's own correctness never depends on delivery.
type DomainEvent struct {
	Type        EventType
	WorkflowID  string
	OccurredAt  time.Time
	Payload     map[string]interface{}
}

// NewEvent builds a DomainEvent stamped with the current time.
func NewEvent(t EventType, workflowID string, payload map[string]interface{}) DomainEvent {
	return DomainEvent{
		Type:       t,
		WorkflowID: workflowID,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	}
}
