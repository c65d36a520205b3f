package nodes

import (
	"context"
	"fmt"

	"github.com/linkflow-ai/workflow-engine/internal/node/contract"
	"github.com/linkflow-ai/workflow-engine/internal/node/registry"
)

func init() {
	registry.Register(NewTransformNode)
}

// TransformNode renders a structured template or a single dotted-path
// expression against the main input.
type TransformNode struct{}

func NewTransformNode() contract.Node { return &TransformNode{} }

func (n *TransformNode) TypeName() string            { return "transform" }
func (n *TransformNode) Category() contract.Category { return contract.CategoryControl }
func (n *TransformNode) Subcategory() contract.Subcategory {
	return contract.SubcategoryFlowControl
}
func (n *TransformNode) RequiredCredentialType() string { return "" }

func (n *TransformNode) Metadata() contract.Metadata {
	return contract.Metadata{
		TypeName:    n.TypeName(),
		Name:        "Transform",
		Description: "Render a structured template or a single dotted-path expression against the main input",
		Category:    contract.CategoryControl,
		Subcategory: contract.SubcategoryFlowControl,
		Version:     "1.0.0",
		Properties: []contract.PropertyDefinition{
			{Name: "template", Type: "json", Description: "Structured value; \"{{path}}\" strings are substituted"},
			{Name: "expression", Type: "string", Description: "Dotted path into the main input"},
		},
	}
}

func (n *TransformNode) ParameterSchema() map[string]interface{} {
	return map[string]interface{}{
		"template":   map[string]interface{}{"type": "any"},
		"expression": map[string]interface{}{"type": "string"},
	}
}

func (n *TransformNode) ValidateParameters(params map[string]interface{}) error {
	_, hasTemplate := params["template"]
	expr, hasExpr := params["expression"]
	if hasTemplate == hasExpr {
		return fmt.Errorf("transform: exactly one of template or expression is required")
	}
	if hasExpr {
		if s, ok := expr.(string); !ok || s == "" {
			return fmt.Errorf("transform: expression must be a non-empty string")
		}
	}
	return nil
}

func (n *TransformNode) Execute(ctx context.Context, nodeCtx *contract.Context, params map[string]interface{}) (*contract.Output, error) {
	input, _ := nodeCtx.MainInput()

	if expr, ok := params["expression"].(string); ok && expr != "" {
		value, err := extractField(input, expr)
		if err != nil {
			return nil, fmt.Errorf("transform: %w", err)
		}
		return contract.Success(map[string]interface{}{"result": value}), nil
	}

	rendered, err := renderTemplate(params["template"], input, nodeCtx)
	if err != nil {
		return nil, fmt.Errorf("transform: %w", err)
	}
	return contract.Success(map[string]interface{}{"result": rendered}), nil
}

// renderTemplate walks a structured value, substituting "{{path}}"
// strings via resolveTemplateValue and recursing into maps/slices.
func renderTemplate(template interface{}, input interface{}, nodeCtx *contract.Context) (interface{}, error) {
	switch v := template.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, val := range v {
			rendered, err := renderTemplate(val, input, nodeCtx)
			if err != nil {
				return nil, err
			}
			out[k] = rendered
		}
		return out, nil
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, val := range v {
			rendered, err := renderTemplate(val, input, nodeCtx)
			if err != nil {
				return nil, err
			}
			out[i] = rendered
		}
		return out, nil
	case string:
		return resolveTemplateValue(v, input, nodeCtx)
	default:
		return v, nil
	}
}
