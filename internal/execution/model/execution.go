package model

import (
	"time"

	"github.com/google/uuid"
)

// WorkflowExecution is one run of a workflow. Lifecycle:
// created in Running with StartedAt=now, FinishedAt=nil; transitions
// exactly once to a terminal state.
type WorkflowExecution struct {
	ID         string
	WorkflowID string
	Status     Status
	StartedAt  time.Time
	FinishedAt *time.Time
	UpdatedAt  time.Time
	InputData  map[string]interface{}
	OutputData map[string]interface{}
	Error      string
}

// NewWorkflowExecution creates a fresh run record in status Running.
func NewWorkflowExecution(workflowID string, input map[string]interface{}) *WorkflowExecution {
	now := time.Now().UTC()
	return &WorkflowExecution{
		ID:         uuid.New().String(),
		WorkflowID: workflowID,
		Status:     StatusRunning,
		StartedAt:  now,
		UpdatedAt:  now,
		InputData:  input,
	}
}

// Complete transitions the run to Success, recording the output.
func (e *WorkflowExecution) Complete(output map[string]interface{}) {
	e.finish(StatusSuccess, output, "")
}

// Fail transitions the run to Failed, recording the error message.
func (e *WorkflowExecution) Fail(message string) {
	e.finish(StatusFailed, nil, message)
}

// Cancel transitions the run to Cancelled.
func (e *WorkflowExecution) Cancel() {
	e.finish(StatusCancelled, nil, "cancelled")
}

func (e *WorkflowExecution) finish(status Status, output map[string]interface{}, errMsg string) {
	now := time.Now().UTC()
	e.Status = status
	e.FinishedAt = &now
	e.UpdatedAt = now
	e.OutputData = output
	e.Error = errMsg
}

// NodeExecution is the per-node execution trail entry.
type NodeExecution struct {
	ID          string
	ExecutionID string
	NodeID      string
	Status      Status
	StartedAt   time.Time
	FinishedAt  *time.Time
	InputData   map[string]interface{}
	OutputData  map[string]interface{}
	Error       string
}

// NewNodeExecution creates a fresh per-node record in status Running,
// "created immediately before the node's execute is invoked".
func NewNodeExecution(executionID, nodeID string, input map[string]interface{}) *NodeExecution {
	return &NodeExecution{
		ID:          uuid.New().String(),
		ExecutionID: executionID,
		NodeID:      nodeID,
		Status:      StatusRunning,
		StartedAt:   time.Now().UTC(),
		InputData:   input,
	}
}

// Complete transitions the node execution to Success.
func (n *NodeExecution) Complete(output map[string]interface{}) {
	now := time.Now().UTC()
	n.Status = StatusSuccess
	n.FinishedAt = &now
	n.OutputData = output
}

// Fail transitions the node execution to Failed.
func (n *NodeExecution) Fail(message string) {
	now := time.Now().UTC()
	n.Status = StatusFailed
	n.FinishedAt = &now
	if message == "" {
		message = "Unknown error"
	}
	n.Error = message
}
