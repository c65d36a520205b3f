package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/linkflow-ai/workflow-engine/internal/node/nodes"
)

// Resolve implements nodes.SubWorkflowRunner, letting the execute_workflow
// node reach back into the engine without an import cycle
// (see nodes.SetSubWorkflowRunner). Exactly one of workflowID/workflowName
// is non-empty, already enforced by ExecuteWorkflowNode.ValidateParameters.
func (e *Engine) Resolve(ctx context.Context, workflowID, workflowName string) (string, string, bool, error) {
	if workflowID != "" {
		wf, err := e.store.GetWorkflow(ctx, workflowID)
		if err != nil {
			return "", "", false, fmt.Errorf("NotFound: workflow %q: %w", workflowID, err)
		}
		return wf.ID(), wf.Name(), wf.Active(), nil
	}

	wf, err := e.store.GetWorkflowByName(ctx, workflowName)
	if err != nil {
		return "", "", false, fmt.Errorf("NotFound: workflow %q: %w", workflowName, err)
	}
	return wf.ID(), wf.Name(), wf.Active(), nil
}

// RunSync implements nodes.SubWorkflowRunner: it runs the target workflow
// to completion on the caller's goroutine and reports the sub-run's
// execution id, terminal status, and output (the wait=true case).
func (e *Engine) RunSync(ctx context.Context, workflowID string, input map[string]interface{}) (string, string, map[string]interface{}, error) {
	wf, err := e.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return "", "", nil, fmt.Errorf("NotFound: workflow %q: %w", workflowID, err)
	}
	def := wf.Definition()
	exec, err := e.Run(ctx, &def, wf.ID(), input)
	if err != nil {
		return "", "", nil, err
	}
	return exec.ID, exec.Status.String(), exec.OutputData, nil
}

// RunAsync implements nodes.SubWorkflowRunner: it starts the target
// workflow in the background (the wait=false case) using a fresh
// context, since the triggering run's context ends at its own completion.
func (e *Engine) RunAsync(workflowID string, input map[string]interface{}) {
	go func() {
		ctx := context.Background()
		wf, err := e.store.GetWorkflow(ctx, workflowID)
		if err != nil {
			if e.logger != nil {
				e.logger.Error("execute_workflow async: workflow lookup failed", zap.Error(err))
			}
			return
		}
		def := wf.Definition()
		if _, err := e.Run(ctx, &def, wf.ID(), input); err != nil && e.logger != nil {
			e.logger.Error("execute_workflow async: sub-run failed", zap.Error(err))
		}
	}()
}

// Install registers the engine as the process-wide sub-workflow runner.
// cmd/engine calls this once during wiring, after constructing the engine
// and the circuit breaker registry it shares with the nodes package.
func (e *Engine) Install() {
	nodes.SetSubWorkflowRunner(e)
}
