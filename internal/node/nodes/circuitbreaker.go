package nodes

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/linkflow-ai/workflow-engine/internal/node/contract"
	"github.com/linkflow-ai/workflow-engine/internal/node/registry"
	"github.com/linkflow-ai/workflow-engine/internal/platform/resilience"
)

func init() {
	registry.Register(NewCircuitBreakerNode)
}

// circuitBreakers is set once by cmd/engine's wiring via SetCircuitBreakerRegistry.
// A package-level registry (rather than a field threaded through the
// registry.Factory signature) is how this node reaches the shared,
// cross-run circuit state needs to persist without the node package
// importing the execution engine.
var circuitBreakers = resilience.NewCircuitBreakerRegistry(resilience.DefaultCircuitBreakerConfig(""))

// SetCircuitBreakerRegistry installs the shared registry used by every
// Circuit Breaker node instance.
func SetCircuitBreakerRegistry(r *resilience.CircuitBreakerRegistry) {
	circuitBreakers = r
}

// CircuitBreakerNode implements its Circuit Breaker policy by
// wrapping the next node's step (contract.StepWrapper) in a
// resilience.CircuitBreaker keyed by circuit_id.
type CircuitBreakerNode struct{}

func NewCircuitBreakerNode() contract.Node { return &CircuitBreakerNode{} }

func (n *CircuitBreakerNode) TypeName() string            { return "circuit_breaker" }
func (n *CircuitBreakerNode) Category() contract.Category { return contract.CategoryControl }
func (n *CircuitBreakerNode) Subcategory() contract.Subcategory {
	return contract.SubcategoryFlowControl
}
func (n *CircuitBreakerNode) RequiredCredentialType() string { return "" }

func (n *CircuitBreakerNode) Metadata() contract.Metadata {
	return contract.Metadata{
		TypeName:    n.TypeName(),
		Name:        "Circuit Breaker",
		Description: "Fail fast around the next node's step once it trips",
		Category:    contract.CategoryControl,
		Subcategory: contract.SubcategoryFlowControl,
		Version:     "1.0.0",
		Properties: []contract.PropertyDefinition{
			{Name: "failure_threshold", Type: "number", Default: 5},
			{Name: "success_threshold", Type: "number", Default: 2},
			{Name: "timeout_seconds", Type: "number", Default: 60},
			{Name: "circuit_id", Type: "string"},
		},
	}
}

func (n *CircuitBreakerNode) ParameterSchema() map[string]interface{} {
	return map[string]interface{}{
		"failure_threshold": map[string]interface{}{"type": "number", "min": 1, "max": 100},
		"success_threshold": map[string]interface{}{"type": "number", "min": 1, "max": 10},
		"timeout_seconds":   map[string]interface{}{"type": "number", "min": 1, "max": 3600},
		"circuit_id":        map[string]interface{}{"type": "string"},
	}
}

func (n *CircuitBreakerNode) ValidateParameters(params map[string]interface{}) error {
	if v, ok := params["failure_threshold"]; ok {
		if n, ok := asNumber(v); !ok || n < 1 || n > 100 {
			return fmt.Errorf("circuit_breaker: failure_threshold must be 1-100")
		}
	}
	if v, ok := params["success_threshold"]; ok {
		if n, ok := asNumber(v); !ok || n < 1 || n > 10 {
			return fmt.Errorf("circuit_breaker: success_threshold must be 1-10")
		}
	}
	if v, ok := params["timeout_seconds"]; ok {
		if n, ok := asNumber(v); !ok || n < 1 || n > 3600 {
			return fmt.Errorf("circuit_breaker: timeout_seconds must be 1-3600")
		}
	}
	return nil
}

func (n *CircuitBreakerNode) Execute(ctx context.Context, nodeCtx *contract.Context, params map[string]interface{}) (*contract.Output, error) {
	circuitID := n.breaker(nodeCtx, params)
	cb := circuitBreakers.GetOrCreate(circuitID, resilience.CircuitBreakerConfig{
		MaxFailures:     intParam(params, "failure_threshold", 5),
		HalfOpenSuccess: intParam(params, "success_threshold", 2),
		Timeout:         time.Duration(intParam(params, "timeout_seconds", 60)) * time.Second,
	})
	return contract.Success(map[string]interface{}{
		"circuit_id": circuitID,
		"state":      cb.State().String(),
	}), nil
}

func (n *CircuitBreakerNode) WrapStep(ctx context.Context, nodeCtx *contract.Context, params map[string]interface{}, next func(context.Context) (*contract.Output, error)) (*contract.Output, error) {
	circuitID := n.breaker(nodeCtx, params)
	failureThreshold := intParam(params, "failure_threshold", 5)
	successThreshold := intParam(params, "success_threshold", 2)
	timeoutSeconds := intParam(params, "timeout_seconds", 60)

	cb := circuitBreakers.GetOrCreate(circuitID, resilience.CircuitBreakerConfig{
		MaxFailures:     failureThreshold,
		HalfOpenSuccess: successThreshold,
		Timeout:         time.Duration(timeoutSeconds) * time.Second,
	})

	var stepOutput *contract.Output
	err := cb.Execute(ctx, func() error {
		var stepErr error
		stepOutput, stepErr = next(ctx)
		if stepErr != nil {
			return stepErr
		}
		if stepOutput != nil && !stepOutput.Success {
			return errors.New(stepOutput.Error)
		}
		return nil
	})

	if errors.Is(err, resilience.ErrCircuitOpen) {
		return nil, fmt.Errorf("circuit_breaker: circuit %q is open", circuitID)
	}
	if err != nil {
		return nil, err
	}
	return stepOutput, nil
}

// breaker resolves the circuit_id, defaulting to the node id.
func (n *CircuitBreakerNode) breaker(nodeCtx *contract.Context, params map[string]interface{}) string {
	if id, ok := params["circuit_id"].(string); ok && id != "" {
		return id
	}
	return nodeCtx.NodeID
}

func intParam(params map[string]interface{}, key string, def int) int {
	if v, ok := params[key]; ok {
		if n, ok := asNumber(v); ok {
			return int(n)
		}
	}
	return def
}
