// Package engine implements the execution engine: given a
// workflow definition, produce a terminal WorkflowExecution record plus a
// complete NodeExecution trail, never raising the outcome as an error to
// its caller.
package engine

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	execmodel "github.com/linkflow-ai/workflow-engine/internal/execution/model"
	"github.com/linkflow-ai/workflow-engine/internal/node/contract"
	"github.com/linkflow-ai/workflow-engine/internal/node/registry"
	"github.com/linkflow-ai/workflow-engine/internal/platform/blobstore"
	"github.com/linkflow-ai/workflow-engine/internal/store"
	"github.com/linkflow-ai/workflow-engine/internal/store/historyindex"
	workflowmodel "github.com/linkflow-ai/workflow-engine/internal/workflow/model"
)

// Engine runs workflow definitions against a Registry and Store.
type Engine struct {
	store    store.Store
	registry *registry.Registry
	logger   *zap.Logger
	blobs    *blobstore.Store
	history  *historyindex.Index
}

// New builds an Engine. blobs and history may be nil (both are optional
// platform capabilities; a nil value degrades to inline-only payloads and
// no secondary mirroring respectively).
func New(s store.Store, r *registry.Registry, logger *zap.Logger, blobs *blobstore.Store, history *historyindex.Index) *Engine {
	return &Engine{store: s, registry: r, logger: logger, blobs: blobs, history: history}
}

type cycleDetectedErr struct{}

func (cycleDetectedErr) Error() string { return "CycleDetected: workflow graph contains a cycle" }

// Run executes definition as workflowID's WorkflowExecution, from record
// creation through finalization. It never returns
// an error for an execution-time failure — that is recorded on the
// returned WorkflowExecution instead — only for conditions that prevent
// even starting (e.g. a Store failure on the initial create).
func (e *Engine) Run(ctx context.Context, def *workflowmodel.WorkflowDefinition, workflowID string, input map[string]interface{}) (*execmodel.WorkflowExecution, error) {
	exec := execmodel.NewWorkflowExecution(workflowID, input)
	if err := e.store.CreateWorkflowExecution(ctx, exec); err != nil {
		return nil, fmt.Errorf("StoreError: create workflow execution: %w", err)
	}

	output, nodeExecs, runErr := e.run(ctx, def, exec, input)

	var updated *execmodel.WorkflowExecution
	var updateErr error
	if runErr != nil {
		updated, updateErr = e.store.UpdateWorkflowExecutionStatus(ctx, exec.ID, execmodel.StatusFailed, nil, runErr.Error())
	} else {
		updated, updateErr = e.store.UpdateWorkflowExecutionStatus(ctx, exec.ID, execmodel.StatusSuccess, output, "")
	}
	if updateErr != nil {
		return nil, fmt.Errorf("StoreError: finalize workflow execution: %w", updateErr)
	}

	if e.history != nil {
		e.history.Upsert(ctx, updated, nodeExecs)
	}

	return updated, nil
}

// run performs topological planning and the per-node step
// loop, including the StepWrapper special case.
func (e *Engine) run(ctx context.Context, def *workflowmodel.WorkflowDefinition, exec *execmodel.WorkflowExecution, input map[string]interface{}) (map[string]interface{}, []*execmodel.NodeExecution, error) {
	order, err := topologicalOrder(def)
	if err != nil {
		return nil, nil, err
	}

	nodeOutputs := make(map[string]map[string]interface{}, len(order))
	variables := map[string]interface{}{}
	if input != nil {
		variables["input"] = input
	}

	var trail []*execmodel.NodeExecution
	var lastOutput map[string]interface{}

	for i := 0; i < len(order); i++ {
		nodeID := order[i]
		nodeDef, ok := def.NodeByID(nodeID)
		if !ok {
			return nil, trail, fmt.Errorf("internal error: planned node %q missing from definition", nodeID)
		}

		node, err := e.registry.Create(nodeDef.NodeType)
		if err != nil {
			record := execmodel.NewNodeExecution(exec.ID, nodeID, e.collectInputs(def, nodeID, nodeOutputs))
			if cerr := e.store.CreateNodeExecution(ctx, record); cerr != nil {
				return nil, trail, fmt.Errorf("StoreError: create node execution: %w", cerr)
			}
			msg := fmt.Sprintf("UnknownNodeType: %v", err)
			e.failNode(ctx, record, msg)
			trail = append(trail, record)
			return nil, trail, fmt.Errorf(msg)
		}

		stepInputs := e.collectInputs(def, nodeID, nodeOutputs)
		nodeCtx := contract.NewContext(exec.ID, nodeID, stepInputs, variables)

		wrapper, isWrapper := node.(contract.StepWrapper)
		if isWrapper && i+1 < len(order) {
			nextID := order[i+1]
			nextDef, ok := def.NodeByID(nextID)
			if !ok {
				return nil, trail, fmt.Errorf("internal error: planned node %q missing from definition", nextID)
			}

			wrapperRecord := execmodel.NewNodeExecution(exec.ID, nodeID, stepInputs)
			if err := e.store.CreateNodeExecution(ctx, wrapperRecord); err != nil {
				return nil, trail, fmt.Errorf("StoreError: create node execution: %w", err)
			}

			var wrappedRecord *execmodel.NodeExecution
			var wrappedVars map[string]interface{}
			next := e.wrappedStep(exec.ID, nextDef, def, nodeOutputs, variables, &wrappedRecord, &wrappedVars)

			output, wrapErr := wrapper.WrapStep(ctx, nodeCtx, nodeDef.Parameters, next)

			variables = nodeCtx.Variables()
			if wrappedVars != nil {
				variables = wrappedVars
			}
			trail = append(trail, wrapperRecord)
			if wrappedRecord != nil {
				trail = append(trail, wrappedRecord)
			}

			if wrapErr != nil {
				e.failNode(ctx, wrapperRecord, wrapErr.Error())
				return nil, trail, fmt.Errorf("NodeFailure: %s", wrapErr.Error())
			}
			if output == nil || !output.Success {
				msg := "Unknown error"
				if output != nil && output.Error != "" {
					msg = output.Error
				}
				e.failNode(ctx, wrapperRecord, msg)
				return nil, trail, fmt.Errorf("NodeFailure: %s", msg)
			}

			data := e.offload(ctx, exec.ID, nodeID, output.Data)
			if _, err := e.store.UpdateNodeExecutionStatus(ctx, wrapperRecord.ID, execmodel.StatusSuccess, data, ""); err != nil {
				return nil, trail, fmt.Errorf("StoreError: update node execution: %w", err)
			}

			nodeOutputs[nodeID] = data
			nodeOutputs[nextID] = data
			lastOutput = data
			i++ // the wrapped node was already executed inside WrapStep
			continue
		}

		record, output, stepErr := e.runNode(ctx, nodeDef.ID, nodeCtx, node, nodeDef.Parameters)
		trail = append(trail, record)
		variables = nodeCtx.Variables()
		if stepErr != nil {
			return nil, trail, stepErr
		}
		nodeOutputs[nodeID] = output
		lastOutput = output
	}

	if lastOutput == nil {
		lastOutput = map[string]interface{}{}
	}
	return lastOutput, trail, nil
}

// wrappedStep returns the `next` closure a StepWrapper invokes to run its
// immediate successor's full per-node step (record creation through status
// persistence), reporting the resulting record and variable snapshot back
// through the pointers since WrapStep only sees the Output/error pair.
func (e *Engine) wrappedStep(executionID string, nextDef *workflowmodel.NodeDefinition, def *workflowmodel.WorkflowDefinition, nodeOutputs map[string]map[string]interface{}, variables map[string]interface{}, recordOut **execmodel.NodeExecution, varsOut *map[string]interface{}) func(context.Context) (*contract.Output, error) {
	return func(stepCtx context.Context) (*contract.Output, error) {
		nextInputs := e.collectInputs(def, nextDef.ID, nodeOutputs)
		nextCtx := contract.NewContext(executionID, nextDef.ID, nextInputs, variables)

		nextNode, err := e.registry.Create(nextDef.NodeType)
		if err != nil {
			record := execmodel.NewNodeExecution(executionID, nextDef.ID, nextInputs)
			if cerr := e.store.CreateNodeExecution(stepCtx, record); cerr != nil {
				*recordOut = record
				return nil, fmt.Errorf("StoreError: create node execution: %w", cerr)
			}
			msg := fmt.Sprintf("UnknownNodeType: %v", err)
			e.failNode(stepCtx, record, msg)
			*recordOut = record
			*varsOut = nextCtx.Variables()
			return nil, fmt.Errorf(msg)
		}

		record, output, stepErr := e.runNode(stepCtx, nextDef.ID, nextCtx, nextNode, nextDef.Parameters)
		*recordOut = record
		*varsOut = nextCtx.Variables()
		if stepErr != nil {
			return contract.Failure(stepErr.Error()), stepErr
		}
		return contract.Success(output), nil
	}
}

// collectInputs builds the inputs map for nodeID step 3.
func (e *Engine) collectInputs(def *workflowmodel.WorkflowDefinition, nodeID string, nodeOutputs map[string]map[string]interface{}) map[string]interface{} {
	inputs := make(map[string]interface{})
	for _, edge := range def.IncomingEdges(nodeID) {
		if out, ok := nodeOutputs[edge.From]; ok {
			inputs[edge.InputKey()] = out
		}
	}
	return inputs
}

// runNode performs one already-instantiated node's full lifecycle:
// NodeExecution creation, Execute invocation, and status persistence
// (steps 2-5).
func (e *Engine) runNode(ctx context.Context, nodeID string, nodeCtx *contract.Context, node contract.Node, params map[string]interface{}) (*execmodel.NodeExecution, map[string]interface{}, error) {
	record := execmodel.NewNodeExecution(nodeCtx.ExecutionID, nodeID, nodeCtx.Inputs)
	if err := e.store.CreateNodeExecution(ctx, record); err != nil {
		return record, nil, fmt.Errorf("StoreError: create node execution: %w", err)
	}

	output, err := node.Execute(ctx, nodeCtx, params)
	if err != nil {
		msg := err.Error()
		e.failNode(ctx, record, msg)
		return record, nil, fmt.Errorf("NodeFailure: %s", msg)
	}
	if output == nil || !output.Success {
		msg := "Unknown error"
		if output != nil && output.Error != "" {
			msg = output.Error
		}
		e.failNode(ctx, record, msg)
		return record, nil, fmt.Errorf("NodeFailure: %s", msg)
	}

	data := e.offload(ctx, nodeCtx.ExecutionID, nodeID, output.Data)
	updated, err := e.store.UpdateNodeExecutionStatus(ctx, record.ID, execmodel.StatusSuccess, data, "")
	if err != nil {
		return record, nil, fmt.Errorf("StoreError: update node execution: %w", err)
	}
	return updated, data, nil
}

// offload moves an oversized payload to blob storage when a Store is
// configured, falling back to the inline data on any offload error.
func (e *Engine) offload(ctx context.Context, executionID, nodeID string, data map[string]interface{}) map[string]interface{} {
	if e.blobs == nil {
		return data
	}
	offloaded, err := e.blobs.Offload(ctx, fmt.Sprintf("executions/%s/%s", executionID, nodeID), data)
	if err != nil {
		if e.logger != nil {
			e.logger.Warn("blobstore offload failed", zap.String("nodeId", nodeID), zap.Error(err))
		}
		return data
	}
	return offloaded
}

func (e *Engine) failNode(ctx context.Context, record *execmodel.NodeExecution, message string) {
	if _, err := e.store.UpdateNodeExecutionStatus(ctx, record.ID, execmodel.StatusFailed, nil, message); err != nil && e.logger != nil {
		e.logger.Error("failed to persist node failure", zap.String("nodeExecutionId", record.ID), zap.Error(err))
	}
	record.Fail(message)
}

// topologicalOrder implements Kahn's algorithm with a LIFO work list
// any node whose in-degree reaches zero is eligible; the
// work list's pop order is implementation-defined, so a stack is as valid
// as a queue and keeps the traversal allocation-light.
func topologicalOrder(def *workflowmodel.WorkflowDefinition) ([]string, error) {
	inDegree := make(map[string]int, len(def.Nodes))
	adjacency := make(map[string][]string, len(def.Nodes))
	for _, n := range def.Nodes {
		inDegree[n.ID] = 0
	}
	for _, e := range def.Edges {
		adjacency[e.From] = append(adjacency[e.From], e.To)
		inDegree[e.To]++
	}

	var stack []string
	for _, n := range def.Nodes {
		if inDegree[n.ID] == 0 {
			stack = append(stack, n.ID)
		}
	}

	order := make([]string, 0, len(def.Nodes))
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		order = append(order, id)
		for _, next := range adjacency[id] {
			inDegree[next]--
			if inDegree[next] == 0 {
				stack = append(stack, next)
			}
		}
	}

	if len(order) != len(def.Nodes) {
		return nil, cycleDetectedErr{}
	}
	return order, nil
}
