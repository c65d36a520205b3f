package nodes

import (
	"context"
	"fmt"

	"github.com/linkflow-ai/workflow-engine/internal/node/contract"
	"github.com/linkflow-ai/workflow-engine/internal/node/registry"
)

func init() {
	registry.Register(NewTryCatchNode)
}

// TryCatchNode implements its Try/Catch policy by wrapping
// the next node's step (contract.StepWrapper).
type TryCatchNode struct{}

func NewTryCatchNode() contract.Node { return &TryCatchNode{} }

func (n *TryCatchNode) TypeName() string            { return "try_catch" }
func (n *TryCatchNode) Category() contract.Category { return contract.CategoryControl }
func (n *TryCatchNode) Subcategory() contract.Subcategory {
	return contract.SubcategoryFlowControl
}
func (n *TryCatchNode) RequiredCredentialType() string { return "" }

func (n *TryCatchNode) Metadata() contract.Metadata {
	return contract.Metadata{
		TypeName:    n.TypeName(),
		Name:        "Try/Catch",
		Description: "Apply an error-handling policy to the next node's step",
		Category:    contract.CategoryControl,
		Subcategory: contract.SubcategoryFlowControl,
		Version:     "1.0.0",
		Properties: []contract.PropertyDefinition{
			{Name: "continue_on_error", Type: "boolean", Default: true},
			{Name: "error_strategy", Type: "select", Default: "catch", Options: []contract.PropertyOption{
				{Label: "Catch", Value: "catch"}, {Label: "Ignore", Value: "ignore"}, {Label: "Log", Value: "log"},
			}},
			{Name: "default_value", Type: "json"},
		},
	}
}

func (n *TryCatchNode) ParameterSchema() map[string]interface{} {
	return map[string]interface{}{
		"continue_on_error": map[string]interface{}{"type": "boolean"},
		"error_strategy":    map[string]interface{}{"type": "string", "enum": []string{"catch", "ignore", "log"}},
		"default_value":     map[string]interface{}{"type": "any"},
	}
}

func (n *TryCatchNode) ValidateParameters(params map[string]interface{}) error {
	if strategy, ok := params["error_strategy"].(string); ok && strategy != "" {
		switch strategy {
		case "catch", "ignore", "log":
		default:
			return fmt.Errorf("try_catch: unknown error_strategy %q", strategy)
		}
	}
	return nil
}

// Execute is used only when a Try/Catch node has no following node to
// wrap; it reports the effective policy as its output.
func (n *TryCatchNode) Execute(ctx context.Context, nodeCtx *contract.Context, params map[string]interface{}) (*contract.Output, error) {
	return contract.Success(policyOutput(params))
}

func (n *TryCatchNode) WrapStep(ctx context.Context, nodeCtx *contract.Context, params map[string]interface{}, next func(context.Context) (*contract.Output, error)) (*contract.Output, error) {
	continueOnError := true
	if v, ok := params["continue_on_error"].(bool); ok {
		continueOnError = v
	}
	strategy, _ := params["error_strategy"].(string)
	if strategy == "" {
		strategy = "catch"
	}
	defaultValue, hasDefault := params["default_value"]

	output, err := next(ctx)
	if err == nil && output != nil && output.Success {
		return output, nil
	}

	failureMessage := ""
	if err != nil {
		failureMessage = err.Error()
	} else if output != nil {
		failureMessage = output.Error
	}

	if !continueOnError {
		if err != nil {
			return nil, err
		}
		return output, nil
	}

	switch strategy {
	case "ignore":
		return contract.Success(map[string]interface{}{}), nil
	case "log":
		return contract.Success(map[string]interface{}{"caught_error": failureMessage}), nil
	default: // catch
		data := map[string]interface{}{"caught_error": failureMessage}
		if hasDefault {
			data["value"] = defaultValue
		}
		return contract.Success(data), nil
	}
}

func policyOutput(params map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(params))
	for k, v := range params {
		out[k] = v
	}
	return out
}
