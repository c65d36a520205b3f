package nodes

import (
	"context"
	"fmt"
	"time"

	"github.com/linkflow-ai/workflow-engine/internal/node/contract"
	"github.com/linkflow-ai/workflow-engine/internal/node/registry"
)

func init() {
	registry.Register(NewTimeoutNode)
}

// TimeoutNode implements its Timeout policy by bounding the
// next node's step (contract.StepWrapper).
type TimeoutNode struct{}

func NewTimeoutNode() contract.Node { return &TimeoutNode{} }

func (n *TimeoutNode) TypeName() string            { return "timeout" }
func (n *TimeoutNode) Category() contract.Category { return contract.CategoryControl }
func (n *TimeoutNode) Subcategory() contract.Subcategory {
	return contract.SubcategoryFlowControl
}
func (n *TimeoutNode) RequiredCredentialType() string { return "" }

func (n *TimeoutNode) Metadata() contract.Metadata {
	return contract.Metadata{
		TypeName:    n.TypeName(),
		Name:        "Timeout",
		Description: "Bound the wall-time of the next node's step",
		Category:    contract.CategoryControl,
		Subcategory: contract.SubcategoryFlowControl,
		Version:     "1.0.0",
		Properties: []contract.PropertyDefinition{
			{Name: "timeout_seconds", Type: "number"},
			{Name: "timeout_milliseconds", Type: "number"},
			{Name: "on_timeout", Type: "select", Default: "error", Options: []contract.PropertyOption{
				{Label: "Error", Value: "error"}, {Label: "Default value", Value: "default"}, {Label: "Skip", Value: "skip"},
			}},
			{Name: "default_value", Type: "json"},
		},
	}
}

func (n *TimeoutNode) ParameterSchema() map[string]interface{} {
	return map[string]interface{}{
		"timeout_seconds":      map[string]interface{}{"type": "number"},
		"timeout_milliseconds": map[string]interface{}{"type": "number"},
		"on_timeout":           map[string]interface{}{"type": "string", "enum": []string{"error", "default", "skip"}},
		"default_value":        map[string]interface{}{"type": "any"},
	}
}

func (n *TimeoutNode) ValidateParameters(params map[string]interface{}) error {
	_, hasSeconds := params["timeout_seconds"]
	_, hasMillis := params["timeout_milliseconds"]
	if hasSeconds == hasMillis {
		return fmt.Errorf("timeout: exactly one of timeout_seconds or timeout_milliseconds is required")
	}
	onTimeout, _ := params["on_timeout"].(string)
	switch onTimeout {
	case "", "error", "skip":
	case "default":
		if _, ok := params["default_value"]; !ok {
			return fmt.Errorf("timeout: default_value is required when on_timeout=default")
		}
	default:
		return fmt.Errorf("timeout: unknown on_timeout %q", onTimeout)
	}
	return nil
}

func (n *TimeoutNode) Execute(ctx context.Context, nodeCtx *contract.Context, params map[string]interface{}) (*contract.Output, error) {
	return contract.Success(policyOutput(params))
}

func (n *TimeoutNode) WrapStep(ctx context.Context, nodeCtx *contract.Context, params map[string]interface{}, next func(context.Context) (*contract.Output, error)) (*contract.Output, error) {
	bound, err := timeoutDuration(params)
	if err != nil {
		return nil, fmt.Errorf("timeout: %w", err)
	}

	onTimeout, _ := params["on_timeout"].(string)
	if onTimeout == "" {
		onTimeout = "error"
	}

	stepCtx, cancel := context.WithTimeout(ctx, bound)
	defer cancel()

	type stepResult struct {
		output *contract.Output
		err    error
	}
	done := make(chan stepResult, 1)
	go func() {
		output, err := next(stepCtx)
		done <- stepResult{output, err}
	}()

	select {
	case res := <-done:
		return res.output, res.err
	case <-stepCtx.Done():
		switch onTimeout {
		case "skip":
			return contract.Success(map[string]interface{}{"timed_out": true}), nil
		case "default":
			return contract.Success(map[string]interface{}{
				"timed_out": true,
				"value":     params["default_value"],
			}), nil
		default:
			return nil, fmt.Errorf("timeout: step exceeded %s", bound)
		}
	}
}

func timeoutDuration(params map[string]interface{}) (time.Duration, error) {
	if v, ok := params["timeout_seconds"]; ok {
		n, ok := asNumber(v)
		if !ok || n <= 0 {
			return 0, fmt.Errorf("timeout_seconds must be a positive number")
		}
		return time.Duration(n * float64(time.Second)), nil
	}
	if v, ok := params["timeout_milliseconds"]; ok {
		n, ok := asNumber(v)
		if !ok || n <= 0 {
			return 0, fmt.Errorf("timeout_milliseconds must be a positive number")
		}
		return time.Duration(n * float64(time.Millisecond)), nil
	}
	return 0, fmt.Errorf("exactly one of timeout_seconds or timeout_milliseconds is required")
}
