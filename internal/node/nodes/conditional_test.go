package nodes

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linkflow-ai/workflow-engine/internal/node/contract"
)

func TestConditionalNode_Compare(t *testing.T) {
	n := NewConditionalNode()
	nodeCtx := contract.NewContext("exec-1", "node-1", map[string]interface{}{
		"in": map[string]interface{}{"age": float64(30)},
	}, nil)

	out, err := n.Execute(context.Background(), nodeCtx, map[string]interface{}{
		"field": "age", "operator": "gte", "value": float64(18),
	})
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, true, out.Data["condition"])
}

func TestConditionalNode_ValidateParameters(t *testing.T) {
	n := NewConditionalNode()
	assert.Error(t, n.ValidateParameters(map[string]interface{}{"operator": "eq", "value": "x"}))
	assert.Error(t, n.ValidateParameters(map[string]interface{}{"field": "a", "operator": "bogus", "value": "x"}))
	assert.NoError(t, n.ValidateParameters(map[string]interface{}{"field": "a", "operator": "eq", "value": "x"}))
}

func TestSetVariableNode_TemplateAndFunction(t *testing.T) {
	n := NewSetVariableNode()
	nodeCtx := contract.NewContext("exec-1", "node-1", map[string]interface{}{
		"in": map[string]interface{}{"name": "ada"},
	}, nil)

	out, err := n.Execute(context.Background(), nodeCtx, map[string]interface{}{
		"name": "greeting", "value": "{{$func.uppercase($json.name)}}",
	})
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, "ADA", out.Data["value"])

	v, ok := nodeCtx.GetVariable("greeting")
	require.True(t, ok)
	assert.Equal(t, "ADA", v)
}

func TestSetVariableNode_LiteralPassesThrough(t *testing.T) {
	n := NewSetVariableNode()
	nodeCtx := contract.NewContext("exec-1", "node-1", nil, nil)

	out, err := n.Execute(context.Background(), nodeCtx, map[string]interface{}{
		"name": "flag", "value": "enabled",
	})
	require.NoError(t, err)
	assert.Equal(t, "enabled", out.Data["value"])
}

func TestTransformNode_Expression(t *testing.T) {
	n := NewTransformNode()
	nodeCtx := contract.NewContext("exec-1", "node-1", map[string]interface{}{
		"in": map[string]interface{}{"city": "berlin"},
	}, nil)

	out, err := n.Execute(context.Background(), nodeCtx, map[string]interface{}{"expression": "city"})
	require.NoError(t, err)
	assert.Equal(t, "berlin", out.Data["result"])
}

func TestTransformNode_TemplateWithFunction(t *testing.T) {
	n := NewTransformNode()
	nodeCtx := contract.NewContext("exec-1", "node-1", map[string]interface{}{
		"in": map[string]interface{}{"city": "berlin"},
	}, nil)

	out, err := n.Execute(context.Background(), nodeCtx, map[string]interface{}{
		"template": map[string]interface{}{
			"city_upper": "{{$func.uppercase($json.city)}}",
		},
	})
	require.NoError(t, err)
	rendered, ok := out.Data["result"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "BERLIN", rendered["city_upper"])
}
