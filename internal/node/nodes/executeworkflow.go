package nodes

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/linkflow-ai/workflow-engine/internal/node/contract"
	"github.com/linkflow-ai/workflow-engine/internal/node/registry"
)

func init() {
	registry.Register(NewExecuteWorkflowNode)
}

// SubWorkflowRunner is implemented by the execution engine and installed
// via SetSubWorkflowRunner; it is how the execute_workflow node reaches
// the engine without the nodes package importing it back (the engine
// already imports the node registry to populate itself).
type SubWorkflowRunner interface {
	// Resolve looks up a workflow by id or name and reports whether it is
	// active. resolvedID is filled in even when the lookup was by workflowName.
	Resolve(ctx context.Context, workflowID, workflowName string) (resolvedID, resolvedName string, active bool, err error)
	// RunSync executes the target workflow to completion and returns the
	// sub-run's execution id, its terminal status ("success", "failed",
	// "cancelled"), and its output.
	RunSync(ctx context.Context, workflowID string, input map[string]interface{}) (executionID, status string, output map[string]interface{}, err error)
	// RunAsync starts the target workflow in the background; the engine
	// persists its WorkflowExecution record itself.
	RunAsync(workflowID string, input map[string]interface{})
}

var subWorkflowRunner SubWorkflowRunner

// SetSubWorkflowRunner installs the engine's runner. Must be called during
// process wiring before any workflow using execute_workflow is run.
func SetSubWorkflowRunner(r SubWorkflowRunner) {
	subWorkflowRunner = r
}

// ExecuteWorkflowNode invokes another workflow by id, synchronously or
// fire-and-forget, through the installed SubWorkflowRunner.
type ExecuteWorkflowNode struct{}

func NewExecuteWorkflowNode() contract.Node { return &ExecuteWorkflowNode{} }

func (n *ExecuteWorkflowNode) TypeName() string            { return "execute_workflow" }
func (n *ExecuteWorkflowNode) Category() contract.Category { return contract.CategoryControl }
func (n *ExecuteWorkflowNode) Subcategory() contract.Subcategory {
	return contract.SubcategoryFlowControl
}
func (n *ExecuteWorkflowNode) RequiredCredentialType() string { return "" }

func (n *ExecuteWorkflowNode) Metadata() contract.Metadata {
	return contract.Metadata{
		TypeName:    n.TypeName(),
		Name:        "Execute Workflow",
		Description: "Invoke another workflow as a sub-run",
		Category:    contract.CategoryControl,
		Subcategory: contract.SubcategoryFlowControl,
		Version:     "1.0.0",
		Properties: []contract.PropertyDefinition{
			{Name: "workflow_id", Type: "string"},
			{Name: "workflow_name", Type: "string"},
			{Name: "input", Type: "json"},
			{Name: "wait", Type: "boolean", Default: true},
		},
	}
}

func (n *ExecuteWorkflowNode) ParameterSchema() map[string]interface{} {
	return map[string]interface{}{
		"workflow_id":   map[string]interface{}{"type": "string"},
		"workflow_name": map[string]interface{}{"type": "string"},
		"input":         map[string]interface{}{"type": "object"},
		"wait":          map[string]interface{}{"type": "boolean"},
	}
}

func (n *ExecuteWorkflowNode) ValidateParameters(params map[string]interface{}) error {
	id, hasID := params["workflow_id"].(string)
	name, hasName := params["workflow_name"].(string)
	hasID = hasID && id != ""
	hasName = hasName && name != ""
	if hasID == hasName {
		return fmt.Errorf("execute_workflow: exactly one of workflow_id or workflow_name is required")
	}
	if hasID {
		if _, err := uuid.Parse(id); err != nil {
			return fmt.Errorf("execute_workflow: workflow_id must be a valid UUID")
		}
	}
	return nil
}

func (n *ExecuteWorkflowNode) Execute(ctx context.Context, nodeCtx *contract.Context, params map[string]interface{}) (*contract.Output, error) {
	if subWorkflowRunner == nil {
		return nil, fmt.Errorf("execute_workflow: no sub-workflow runner installed")
	}

	workflowID, _ := params["workflow_id"].(string)
	workflowName, _ := params["workflow_name"].(string)
	wait := true
	if v, ok := params["wait"].(bool); ok {
		wait = v
	}

	resolvedID, resolvedName, active, err := subWorkflowRunner.Resolve(ctx, workflowID, workflowName)
	if err != nil {
		return nil, fmt.Errorf("execute_workflow: %w", err)
	}
	if !active {
		return nil, fmt.Errorf("execute_workflow: workflow %q is not active", resolvedID)
	}

	input, ok := params["input"].(map[string]interface{})
	if !ok {
		if main, present := nodeCtx.MainInput(); present {
			if m, ok := main.(map[string]interface{}); ok {
				input = m
			}
		}
	}

	if !wait {
		subWorkflowRunner.RunAsync(resolvedID, input)
		return contract.Success(map[string]interface{}{
			"workflow_id":   resolvedID,
			"workflow_name": resolvedName,
			"status":        "started",
			"wait":          false,
		}), nil
	}

	subExecutionID, status, output, err := subWorkflowRunner.RunSync(ctx, resolvedID, input)
	if err != nil {
		return nil, fmt.Errorf("execute_workflow: %w", err)
	}
	if status != "success" {
		return contract.Failure(fmt.Sprintf("sub-workflow %q finished with status %q", resolvedID, status)), nil
	}

	return contract.Success(map[string]interface{}{
		"execution_id":  subExecutionID,
		"workflow_id":   resolvedID,
		"workflow_name": resolvedName,
		"status":        "success",
		"output":        output,
	}), nil
}
