// Package nodes implements the engine's control-flow node types plus a
// representative set of integration stubs (HTTP, a SQL query, Slack,
// email, S3) that exercise real outbound clients.
// Comparison and field-extraction helpers follow the shape of a typical
// if_node.go, trimmed to the operator set this engine actually exposes.
package nodes

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/linkflow-ai/workflow-engine/internal/node/contract"
	"github.com/linkflow-ai/workflow-engine/internal/node/registry"
)

func init() {
	registry.Register(NewConditionalNode)
}

// ConditionalNode branches on a single field comparison against the main input.
type ConditionalNode struct{}

func NewConditionalNode() contract.Node { return &ConditionalNode{} }

func (n *ConditionalNode) TypeName() string           { return "conditional" }
func (n *ConditionalNode) Category() contract.Category { return contract.CategoryControl }
func (n *ConditionalNode) Subcategory() contract.Subcategory {
	return contract.SubcategoryFlowControl
}
func (n *ConditionalNode) RequiredCredentialType() string { return "" }

func (n *ConditionalNode) Metadata() contract.Metadata {
	return contract.Metadata{
		TypeName:    n.TypeName(),
		Name:        "Conditional",
		Description: "Evaluate a comparison against a field of the main input",
		Category:    contract.CategoryControl,
		Subcategory: contract.SubcategoryFlowControl,
		Version:     "1.0.0",
		Properties: []contract.PropertyDefinition{
			{Name: "field", Type: "string", Required: true, Description: "Dotted path into the main input"},
			{Name: "operator", Type: "select", Required: true, Options: []contract.PropertyOption{
				{Label: "Equals", Value: "eq"}, {Label: "Not equals", Value: "ne"},
				{Label: "Greater than", Value: "gt"}, {Label: "Less than", Value: "lt"},
				{Label: "Greater or equal", Value: "gte"}, {Label: "Less or equal", Value: "lte"},
				{Label: "Contains", Value: "contains"},
			}},
			{Name: "value", Type: "string", Required: true},
		},
	}
}

func (n *ConditionalNode) ParameterSchema() map[string]interface{} {
	return map[string]interface{}{
		"field":    map[string]interface{}{"type": "string", "required": true},
		"operator": map[string]interface{}{"type": "string", "enum": []string{"eq", "ne", "gt", "lt", "gte", "lte", "contains"}},
		"value":    map[string]interface{}{"type": "any", "required": true},
	}
}

func (n *ConditionalNode) ValidateParameters(params map[string]interface{}) error {
	field, _ := params["field"].(string)
	if field == "" {
		return fmt.Errorf("conditional: field is required")
	}
	op, _ := params["operator"].(string)
	switch op {
	case "eq", "ne", "gt", "lt", "gte", "lte", "contains":
	default:
		return fmt.Errorf("conditional: unknown operator %q", op)
	}
	if _, ok := params["value"]; !ok {
		return fmt.Errorf("conditional: value is required")
	}
	return nil
}

func (n *ConditionalNode) Execute(ctx context.Context, nodeCtx *contract.Context, params map[string]interface{}) (*contract.Output, error) {
	field, _ := params["field"].(string)
	operator, _ := params["operator"].(string)
	compareValue := params["value"]

	input, _ := nodeCtx.MainInput()
	fieldValue, err := extractField(input, field)
	if err != nil {
		return nil, fmt.Errorf("conditional: %w", err)
	}

	result, err := compare(fieldValue, operator, compareValue)
	if err != nil {
		return nil, fmt.Errorf("conditional: %w", err)
	}

	return contract.Success(map[string]interface{}{
		"condition": result,
		"input":     input,
	}), nil
}

// extractField walks a dotted path over nested maps; an empty path
// returns the whole value.
func extractField(data interface{}, path string) (interface{}, error) {
	if path == "" {
		return data, nil
	}
	current := data
	for _, part := range strings.Split(path, ".") {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("field %q: %q is not an object", path, part)
		}
		v, present := m[part]
		if !present {
			return nil, fmt.Errorf("field %q: %q not found", path, part)
		}
		current = v
	}
	return current, nil
}

func compare(a interface{}, operator string, b interface{}) (bool, error) {
	switch operator {
	case "eq":
		return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b), nil
	case "ne":
		return fmt.Sprintf("%v", a) != fmt.Sprintf("%v", b), nil
	case "contains":
		as, aok := a.(string)
		bs, bok := b.(string)
		if !aok || !bok {
			return false, fmt.Errorf("contains requires both sides to be strings")
		}
		return strings.Contains(as, bs), nil
	case "gt", "lt", "gte", "lte":
		an, aok := asNumber(a)
		bn, bok := asNumber(b)
		if !aok || !bok {
			return false, fmt.Errorf("%s requires both sides to be numbers", operator)
		}
		switch operator {
		case "gt":
			return an > bn, nil
		case "lt":
			return an < bn, nil
		case "gte":
			return an >= bn, nil
		default:
			return an <= bn, nil
		}
	default:
		return false, fmt.Errorf("unknown operator %q", operator)
	}
}

func asNumber(v interface{}) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case string:
		n, err := strconv.ParseFloat(val, 64)
		return n, err == nil
	default:
		return 0, false
	}
}
