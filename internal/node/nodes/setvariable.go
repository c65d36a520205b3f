package nodes

import (
	"context"
	"fmt"
	"strings"

	"github.com/linkflow-ai/workflow-engine/internal/node/contract"
	"github.com/linkflow-ai/workflow-engine/internal/node/registry"
	"github.com/linkflow-ai/workflow-engine/pkg/expression"
)

// exprParser backs the "$func." escape hatch in resolveTemplateValue: the
// rest of the grammar is hand-rolled single-token substitution, but
// function calls (uppercase, formatDate, hash, ...) delegate to the
// shared expression evaluator instead of each node reimplementing them.
var exprParser = expression.NewParser()

func init() {
	registry.Register(NewSetVariableNode)
}

// SetVariableNode writes a computed value into the run's variable map.
// The variable-mutation question is resolved as option (b): the node
// writes the resolved value into nodeCtx's variable map via SetVariable,
// so the engine's next NodeContext (built from the mutated map) observes it.
type SetVariableNode struct{}

func NewSetVariableNode() contract.Node { return &SetVariableNode{} }

func (n *SetVariableNode) TypeName() string            { return "set_variable" }
func (n *SetVariableNode) Category() contract.Category { return contract.CategoryControl }
func (n *SetVariableNode) Subcategory() contract.Subcategory {
	return contract.SubcategoryFlowControl
}
func (n *SetVariableNode) RequiredCredentialType() string { return "" }

func (n *SetVariableNode) Metadata() contract.Metadata {
	return contract.Metadata{
		TypeName:    n.TypeName(),
		Name:        "Set Variable",
		Description: "Write a value into the run-scoped variable map",
		Category:    contract.CategoryControl,
		Subcategory: contract.SubcategoryFlowControl,
		Version:     "1.0.0",
		Properties: []contract.PropertyDefinition{
			{Name: "name", Type: "string", Required: true},
			{Name: "value", Type: "string", Required: true, Description: `literal, "{{path}}" into main input, "{{$variable}}", or "{{$func.name(args)}}"`},
		},
	}
}

func (n *SetVariableNode) ParameterSchema() map[string]interface{} {
	return map[string]interface{}{
		"name":  map[string]interface{}{"type": "string", "required": true},
		"value": map[string]interface{}{"type": "string", "required": true},
	}
}

func (n *SetVariableNode) ValidateParameters(params map[string]interface{}) error {
	name, _ := params["name"].(string)
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("set_variable: name is required")
	}
	if _, ok := params["value"]; !ok {
		return fmt.Errorf("set_variable: value is required")
	}
	return nil
}

func (n *SetVariableNode) Execute(ctx context.Context, nodeCtx *contract.Context, params map[string]interface{}) (*contract.Output, error) {
	name, _ := params["name"].(string)
	raw := params["value"]

	input, _ := nodeCtx.MainInput()
	resolved, err := resolveTemplateValue(raw, input, nodeCtx)
	if err != nil {
		return nil, fmt.Errorf("set_variable: %w", err)
	}

	nodeCtx.SetVariable(name, resolved)

	return contract.Success(map[string]interface{}{
		"variable": name,
		"value":    resolved,
		"input":    input,
	}), nil
}

// resolveTemplateValue implements the single-token substitution grammar
// shared by Set-Variable and Transform: a string of exactly "{{path}}"
// resolves to the value at path in input, or (path prefixed with "$") to
// a workflow variable, or (path prefixed with "$func.") to the result of
// the expression package's function call; anything else passes through as
// a literal.
func resolveTemplateValue(raw interface{}, input interface{}, nodeCtx *contract.Context) (interface{}, error) {
	s, ok := raw.(string)
	if !ok {
		return raw, nil
	}
	path, isTemplate := templatePath(s)
	if !isTemplate {
		return raw, nil
	}

	if strings.HasPrefix(path, "$func.") {
		return exprParser.Evaluate(s, buildExprContext(input, nodeCtx))
	}

	if strings.HasPrefix(path, "$") {
		varName := strings.TrimPrefix(path, "$")
		v, found := nodeCtx.GetVariable(varName)
		if !found {
			return nil, fmt.Errorf("variable %q not found", varName)
		}
		return v, nil
	}

	return extractField(input, path)
}

// buildExprContext adapts a node's view of the run (its main input and
// its workflow-scoped variables) into the shape the expression package
// evaluates against.
func buildExprContext(input interface{}, nodeCtx *contract.Context) *expression.Context {
	ec := expression.NewContext()
	ec.SetInput(input)
	ec.Execution.ID = nodeCtx.ExecutionID
	for k, v := range nodeCtx.Variables() {
		ec.Variables[k] = v
	}
	return ec
}

// templatePath recognizes a string of exactly "{{...}}" and returns the
// trimmed inner path.
func templatePath(s string) (string, bool) {
	trimmed := strings.TrimSpace(s)
	if strings.HasPrefix(trimmed, "{{") && strings.HasSuffix(trimmed, "}}") {
		return strings.TrimSpace(trimmed[2 : len(trimmed)-2]), true
	}
	return "", false
}
