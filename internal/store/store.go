// Package store defines the durable-persistence capability the engine
// consumes. The capability is storage-agnostic by design, leaving the
// relational persistence layer's SQL dialect out of scope, so this
// package holds only the interface and its errors; concrete adapters
// live in store/postgres and store/mysql.
package store

import (
	"context"
	"errors"

	execmodel "github.com/linkflow-ai/workflow-engine/internal/execution/model"
	"github.com/linkflow-ai/workflow-engine/internal/workflow/model"
)

// ErrNotFound is returned by lookups that find nothing, matching the
// engine's NotFound error kind.
var ErrNotFound = errors.New("not found")

// Store is the capability the engine consumes. Every
// operation returns an error on I/O failure; atomicity is per-operation,
// not cross-operation (the engine never requires multi-operation
// transactions).
type Store interface {
	CreateWorkflow(ctx context.Context, w *model.Workflow) error
	GetWorkflow(ctx context.Context, id string) (*model.Workflow, error)
	GetWorkflowByName(ctx context.Context, name string) (*model.Workflow, error)
	ListWorkflows(ctx context.Context, activeOnly bool) ([]*model.Workflow, error)
	UpdateWorkflow(ctx context.Context, w *model.Workflow) error
	DeleteWorkflow(ctx context.Context, id string) error
	ImportWorkflow(ctx context.Context, def model.WorkflowDefinition) (*model.Workflow, error)

	CreateWorkflowExecution(ctx context.Context, e *execmodel.WorkflowExecution) error
	GetWorkflowExecution(ctx context.Context, id string) (*execmodel.WorkflowExecution, error)
	ListWorkflowExecutions(ctx context.Context, workflowID string, limit int) ([]*execmodel.WorkflowExecution, error)
	UpdateWorkflowExecutionStatus(ctx context.Context, id string, status execmodel.Status, output map[string]interface{}, errMsg string) (*execmodel.WorkflowExecution, error)

	CreateNodeExecution(ctx context.Context, n *execmodel.NodeExecution) error
	UpdateNodeExecutionStatus(ctx context.Context, id string, status execmodel.Status, output map[string]interface{}, errMsg string) (*execmodel.NodeExecution, error)
	ListNodeExecutions(ctx context.Context, executionID string) ([]*execmodel.NodeExecution, error)
}
