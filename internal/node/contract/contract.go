// Package contract defines the interface every node implementation satisfies
// and the data shapes that flow across it.
package contract

import "context"

// Category is the closed set governing where a node may appear in a graph.
// Only Trigger nodes may start a workflow.
type Category string

const (
	CategoryTrigger Category = "trigger"
	CategoryAction  Category = "action"
	CategoryControl Category = "control"
)

// Subcategory is informational only; it drives UI grouping, never validation.
type Subcategory string

const (
	SubcategoryGeneral       Subcategory = "general"
	SubcategoryAI            Subcategory = "ai"
	SubcategoryDatabase      Subcategory = "database"
	SubcategoryStorage       Subcategory = "storage"
	SubcategoryCommunication Subcategory = "communication"
	SubcategoryFlowControl   Subcategory = "flow_control"
)

// Context is passed to every node invocation.
type Context struct {
	ExecutionID string
	NodeID      string
	Inputs      map[string]interface{}
	variables   map[string]interface{}
}

// NewContext builds a Context with the given run-scoped variables. The
// variables map is copied so each node invocation owns an independent view;
// SetVariable below is how a node's effect becomes visible to the next one.
func NewContext(executionID, nodeID string, inputs, variables map[string]interface{}) *Context {
	vars := make(map[string]interface{}, len(variables))
	for k, v := range variables {
		vars[k] = v
	}
	return &Context{
		ExecutionID: executionID,
		NodeID:      nodeID,
		Inputs:      inputs,
		variables:   vars,
	}
}

// GetInput returns a named input, or nil if absent.
func (c *Context) GetInput(key string) (interface{}, bool) {
	v, ok := c.Inputs[key]
	return v, ok
}

// MainInput returns an arbitrary-but-stable "first" input, used by nodes
// (Conditional, Transform) that operate on "the" input rather than a named
// port. Stability across calls with the same Inputs map matters more than
// the particular key chosen, since Go map iteration order is randomized;
// callers that care about a specific upstream should use GetInput by name.
func (c *Context) MainInput() (interface{}, bool) {
	for _, k := range stableKeys(c.Inputs) {
		return c.Inputs[k], true
	}
	return nil, false
}

// GetVariable reads a workflow-scoped variable.
func (c *Context) GetVariable(name string) (interface{}, bool) {
	v, ok := c.variables[name]
	return v, ok
}

// SetVariable writes a workflow-scoped variable visible to this Context only.
// The engine reads back the mutated map after Execute returns and carries it
// into the next node's Context (see Engine.run).
func (c *Context) SetVariable(name string, value interface{}) {
	c.variables[name] = value
}

// Variables returns a defensive copy of the current variable map.
func (c *Context) Variables() map[string]interface{} {
	out := make(map[string]interface{}, len(c.variables))
	for k, v := range c.variables {
		out[k] = v
	}
	return out
}

func stableKeys(m map[string]interface{}) []string {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	// Smallest lexical key first: arbitrary but deterministic, which is the
	// only requirement placed on "the main input".
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j] < keys[j-1]; j-- {
			keys[j], keys[j-1] = keys[j-1], keys[j]
		}
	}
	return keys
}

// Output is returned by every node invocation.
type Output struct {
	Success bool
	Data    map[string]interface{}
	Error   string
}

// Success builds a successful Output.
func Success(data map[string]interface{}) *Output {
	return &Output{Success: true, Data: data}
}

// Failure builds a failed Output. A node may also choose to return a Go
// error from Execute instead; the engine treats both identically.
func Failure(message string) *Output {
	return &Output{Success: false, Error: message}
}

// PropertyOption is one choice in a select-shaped parameter.
type PropertyOption struct {
	Label string
	Value interface{}
}

// PropertyDefinition documents one node parameter for UI/schema purposes.
// It is informational; the engine never enforces it, only ValidateParameters
// does.
type PropertyDefinition struct {
	Name        string
	Type        string
	Required    bool
	Default     interface{}
	Description string
	Options     []PropertyOption
}

// Metadata is a node type's static description.
type Metadata struct {
	TypeName               string
	Name                   string
	Description            string
	Category               Category
	Subcategory            Subcategory
	Version                string
	Properties             []PropertyDefinition
	RequiredCredentialType string
}

// Node is the capability every node type implements. The registry holds
// factories, not instances: each Create call must return a fresh value safe
// for concurrent use, since Execute may perform I/O and block.
type Node interface {
	TypeName() string
	Category() Category
	Subcategory() Subcategory
	Metadata() Metadata
	ParameterSchema() map[string]interface{}
	RequiredCredentialType() string
	ValidateParameters(params map[string]interface{}) error
	Execute(ctx context.Context, nodeCtx *Context, params map[string]interface{}) (*Output, error)
}

// Factory produces a fresh Node instance.
type Factory func() Node

// StepWrapper is implemented by control nodes that apply a policy around
// the immediately following node's step rather than producing their own
// output directly (Try/Catch, Timeout, Circuit Breaker).
// The engine detects this interface after instantiating a node at a
// topological position; when present, it invokes WrapStep instead of
// Execute, passing a closure that runs the next node's full per-node step
// (NodeExecution record included).
type StepWrapper interface {
	Node
	WrapStep(ctx context.Context, nodeCtx *Context, params map[string]interface{}, next func(context.Context) (*Output, error)) (*Output, error)
}
