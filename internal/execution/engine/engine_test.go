package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	execmodel "github.com/linkflow-ai/workflow-engine/internal/execution/model"
	"github.com/linkflow-ai/workflow-engine/internal/node/contract"
	"github.com/linkflow-ai/workflow-engine/internal/node/registry"
	"github.com/linkflow-ai/workflow-engine/internal/store"
	workflowmodel "github.com/linkflow-ai/workflow-engine/internal/workflow/model"
)

// memStore is a minimal in-memory store.Store fake for exercising the
// engine without a real database, mirroring this codebase's in-memory test
// doubles for repository interfaces.
type memStore struct {
	workflows  map[string]*workflowmodel.Workflow
	executions map[string]*execmodel.WorkflowExecution
	nodes      map[string]*execmodel.NodeExecution
}

func newMemStore() *memStore {
	return &memStore{
		workflows:  map[string]*workflowmodel.Workflow{},
		executions: map[string]*execmodel.WorkflowExecution{},
		nodes:      map[string]*execmodel.NodeExecution{},
	}
}

func (m *memStore) CreateWorkflow(ctx context.Context, w *workflowmodel.Workflow) error {
	m.workflows[w.ID()] = w
	return nil
}
func (m *memStore) GetWorkflow(ctx context.Context, id string) (*workflowmodel.Workflow, error) {
	w, ok := m.workflows[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return w, nil
}
func (m *memStore) GetWorkflowByName(ctx context.Context, name string) (*workflowmodel.Workflow, error) {
	for _, w := range m.workflows {
		if w.Name() == name {
			return w, nil
		}
	}
	return nil, store.ErrNotFound
}
func (m *memStore) ListWorkflows(ctx context.Context, activeOnly bool) ([]*workflowmodel.Workflow, error) {
	var out []*workflowmodel.Workflow
	for _, w := range m.workflows {
		out = append(out, w)
	}
	return out, nil
}
func (m *memStore) UpdateWorkflow(ctx context.Context, w *workflowmodel.Workflow) error {
	m.workflows[w.ID()] = w
	return nil
}
func (m *memStore) DeleteWorkflow(ctx context.Context, id string) error {
	delete(m.workflows, id)
	return nil
}
func (m *memStore) ImportWorkflow(ctx context.Context, def workflowmodel.WorkflowDefinition) (*workflowmodel.Workflow, error) {
	w, err := workflowmodel.New(def)
	if err != nil {
		return nil, err
	}
	m.workflows[w.ID()] = w
	return w, nil
}

func (m *memStore) CreateWorkflowExecution(ctx context.Context, e *execmodel.WorkflowExecution) error {
	m.executions[e.ID] = e
	return nil
}
func (m *memStore) GetWorkflowExecution(ctx context.Context, id string) (*execmodel.WorkflowExecution, error) {
	e, ok := m.executions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return e, nil
}
func (m *memStore) ListWorkflowExecutions(ctx context.Context, workflowID string, limit int) ([]*execmodel.WorkflowExecution, error) {
	var out []*execmodel.WorkflowExecution
	for _, e := range m.executions {
		if e.WorkflowID == workflowID {
			out = append(out, e)
		}
	}
	return out, nil
}
func (m *memStore) UpdateWorkflowExecutionStatus(ctx context.Context, id string, status execmodel.Status, output map[string]interface{}, errMsg string) (*execmodel.WorkflowExecution, error) {
	e, ok := m.executions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if status == execmodel.StatusSuccess {
		e.Complete(output)
	} else {
		e.Fail(errMsg)
	}
	return e, nil
}

func (m *memStore) CreateNodeExecution(ctx context.Context, n *execmodel.NodeExecution) error {
	m.nodes[n.ID] = n
	return nil
}
func (m *memStore) UpdateNodeExecutionStatus(ctx context.Context, id string, status execmodel.Status, output map[string]interface{}, errMsg string) (*execmodel.NodeExecution, error) {
	n, ok := m.nodes[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if status == execmodel.StatusSuccess {
		n.Complete(output)
	} else {
		n.Fail(errMsg)
	}
	return n, nil
}
func (m *memStore) ListNodeExecutions(ctx context.Context, executionID string) ([]*execmodel.NodeExecution, error) {
	var out []*execmodel.NodeExecution
	for _, n := range m.nodes {
		if n.ExecutionID == executionID {
			out = append(out, n)
		}
	}
	return out, nil
}

// echoNode returns its main input under "result"; failNode always fails.
// Both are test-only registry entries, not part of internal/node/nodes.
type echoNode struct{}

func (echoNode) TypeName() string                 { return "test_echo" }
func (echoNode) Category() contract.Category      { return contract.CategoryAction }
func (echoNode) Subcategory() contract.Subcategory { return contract.SubcategoryGeneral }
func (echoNode) Metadata() contract.Metadata      { return contract.Metadata{TypeName: "test_echo"} }
func (echoNode) ParameterSchema() map[string]interface{} { return nil }
func (echoNode) RequiredCredentialType() string   { return "" }
func (echoNode) ValidateParameters(map[string]interface{}) error { return nil }
func (echoNode) Execute(ctx context.Context, nodeCtx *contract.Context, params map[string]interface{}) (*contract.Output, error) {
	input, _ := nodeCtx.MainInput()
	return contract.Success(map[string]interface{}{"result": input}), nil
}

type failNode struct{}

func (failNode) TypeName() string                 { return "test_fail" }
func (failNode) Category() contract.Category      { return contract.CategoryAction }
func (failNode) Subcategory() contract.Subcategory { return contract.SubcategoryGeneral }
func (failNode) Metadata() contract.Metadata      { return contract.Metadata{TypeName: "test_fail"} }
func (failNode) ParameterSchema() map[string]interface{} { return nil }
func (failNode) RequiredCredentialType() string   { return "" }
func (failNode) ValidateParameters(map[string]interface{}) error { return nil }
func (failNode) Execute(ctx context.Context, nodeCtx *contract.Context, params map[string]interface{}) (*contract.Output, error) {
	return contract.Failure("boom"), nil
}

// passthroughWrapper is a minimal StepWrapper fixture that forwards to its
// wrapped node unchanged, used to exercise the engine's wrap-detection path.
type passthroughWrapper struct{}

func (passthroughWrapper) TypeName() string                 { return "test_wrap" }
func (passthroughWrapper) Category() contract.Category      { return contract.CategoryControl }
func (passthroughWrapper) Subcategory() contract.Subcategory { return contract.SubcategoryFlowControl }
func (passthroughWrapper) Metadata() contract.Metadata      { return contract.Metadata{TypeName: "test_wrap"} }
func (passthroughWrapper) ParameterSchema() map[string]interface{} { return nil }
func (passthroughWrapper) RequiredCredentialType() string   { return "" }
func (passthroughWrapper) ValidateParameters(map[string]interface{}) error { return nil }
func (passthroughWrapper) Execute(ctx context.Context, nodeCtx *contract.Context, params map[string]interface{}) (*contract.Output, error) {
	return contract.Success(map[string]interface{}{}), nil
}
func (passthroughWrapper) WrapStep(ctx context.Context, nodeCtx *contract.Context, params map[string]interface{}, next func(context.Context) (*contract.Output, error)) (*contract.Output, error) {
	return next(ctx)
}

func newTestRegistry() *registry.Registry {
	r := registry.New()
	r.Register(func() contract.Node { return echoNode{} })
	r.Register(func() contract.Node { return failNode{} })
	r.Register(func() contract.Node { return passthroughWrapper{} })
	return r
}

func TestEngineRun_LinearSuccess(t *testing.T) {
	def := &workflowmodel.WorkflowDefinition{
		Name: "linear",
		Nodes: []workflowmodel.NodeDefinition{
			{ID: "a", NodeType: "test_echo"},
			{ID: "b", NodeType: "test_echo"},
		},
		Edges: []workflowmodel.EdgeDefinition{
			{From: "a", To: "b"},
		},
	}

	st := newMemStore()
	e := New(st, newTestRegistry(), zap.NewNop(), nil, nil)

	exec, err := e.Run(context.Background(), def, "wf-1", map[string]interface{}{"x": 1})
	require.NoError(t, err)
	assert.Equal(t, execmodel.StatusSuccess, exec.Status)
	assert.Empty(t, exec.Error)

	nodeExecs, _ := st.ListNodeExecutions(context.Background(), exec.ID)
	assert.Len(t, nodeExecs, 2)
}

func TestEngineRun_NodeFailureAbortsRun(t *testing.T) {
	def := &workflowmodel.WorkflowDefinition{
		Name: "failing",
		Nodes: []workflowmodel.NodeDefinition{
			{ID: "a", NodeType: "test_fail"},
			{ID: "b", NodeType: "test_echo"},
		},
		Edges: []workflowmodel.EdgeDefinition{
			{From: "a", To: "b"},
		},
	}

	st := newMemStore()
	e := New(st, newTestRegistry(), zap.NewNop(), nil, nil)

	exec, err := e.Run(context.Background(), def, "wf-2", nil)
	require.NoError(t, err)
	assert.Equal(t, execmodel.StatusFailed, exec.Status)
	assert.Contains(t, exec.Error, "boom")

	nodeExecs, _ := st.ListNodeExecutions(context.Background(), exec.ID)
	assert.Len(t, nodeExecs, 1, "node b must never run after a fails")
}

func TestEngineRun_UnknownNodeType(t *testing.T) {
	def := &workflowmodel.WorkflowDefinition{
		Name: "unknown",
		Nodes: []workflowmodel.NodeDefinition{
			{ID: "a", NodeType: "does_not_exist"},
		},
	}

	st := newMemStore()
	e := New(st, newTestRegistry(), zap.NewNop(), nil, nil)

	exec, err := e.Run(context.Background(), def, "wf-3", nil)
	require.NoError(t, err)
	assert.Equal(t, execmodel.StatusFailed, exec.Status)
	assert.Contains(t, exec.Error, "UnknownNodeType")
}

func TestEngineRun_CycleDetected(t *testing.T) {
	def := &workflowmodel.WorkflowDefinition{
		Name: "cyclic",
		Nodes: []workflowmodel.NodeDefinition{
			{ID: "a", NodeType: "test_echo"},
			{ID: "b", NodeType: "test_echo"},
		},
		Edges: []workflowmodel.EdgeDefinition{
			{From: "a", To: "b"},
			{From: "b", To: "a"},
		},
	}

	st := newMemStore()
	e := New(st, newTestRegistry(), zap.NewNop(), nil, nil)

	exec, err := e.Run(context.Background(), def, "wf-4", nil)
	require.NoError(t, err)
	assert.Equal(t, execmodel.StatusFailed, exec.Status)
	assert.Contains(t, exec.Error, "CycleDetected")
}

func TestEngineRun_StepWrapperConsumesNextNode(t *testing.T) {
	def := &workflowmodel.WorkflowDefinition{
		Name: "wrapped",
		Nodes: []workflowmodel.NodeDefinition{
			{ID: "wrap", NodeType: "test_wrap"},
			{ID: "inner", NodeType: "test_echo"},
		},
		Edges: []workflowmodel.EdgeDefinition{
			{From: "wrap", To: "inner"},
		},
	}

	st := newMemStore()
	e := New(st, newTestRegistry(), zap.NewNop(), nil, nil)

	exec, err := e.Run(context.Background(), def, "wf-5", map[string]interface{}{"y": 2})
	require.NoError(t, err)
	assert.Equal(t, execmodel.StatusSuccess, exec.Status)

	nodeExecs, _ := st.ListNodeExecutions(context.Background(), exec.ID)
	assert.Len(t, nodeExecs, 2, "both the wrapper and the wrapped node get their own NodeExecution")
}

func TestEngineRun_VariablePropagationAcrossNodes(t *testing.T) {
	def := &workflowmodel.WorkflowDefinition{
		Name: "vars",
		Nodes: []workflowmodel.NodeDefinition{
			{ID: "set", NodeType: "set_variable", Parameters: map[string]interface{}{
				"name": "greeting", "value": "hello",
			}},
			{ID: "read", NodeType: "set_variable", Parameters: map[string]interface{}{
				"name": "other", "value": "x",
			}},
		},
		Edges: []workflowmodel.EdgeDefinition{
			{From: "set", To: "read"},
		},
	}

	r := newTestRegistry()
	r.Register(func() contract.Node { return &varReaderSetter{} })
	st := newMemStore()
	e := New(st, r, zap.NewNop(), nil, nil)

	exec, err := e.Run(context.Background(), def, "wf-6", nil)
	require.NoError(t, err)
	assert.Equal(t, execmodel.StatusSuccess, exec.Status)

	seen, ok := exec.OutputData["seen"].(map[string]interface{})
	require.True(t, ok, "the last node's output carries the variables it saw")
	assert.Equal(t, "hello", seen["greeting"])
}

// varReaderSetter is registered under "set_variable" purely to verify the
// engine carries SetVariable's mutation into the next node's Context,
// without pulling in the real node package's full validation surface. It
// reports the variables it saw under "seen" before setting its own.
type varReaderSetter struct{}

func (varReaderSetter) TypeName() string                 { return "set_variable" }
func (varReaderSetter) Category() contract.Category      { return contract.CategoryControl }
func (varReaderSetter) Subcategory() contract.Subcategory { return contract.SubcategoryFlowControl }
func (varReaderSetter) Metadata() contract.Metadata      { return contract.Metadata{TypeName: "set_variable"} }
func (varReaderSetter) ParameterSchema() map[string]interface{} { return nil }
func (varReaderSetter) RequiredCredentialType() string   { return "" }
func (varReaderSetter) ValidateParameters(map[string]interface{}) error { return nil }
func (varReaderSetter) Execute(ctx context.Context, nodeCtx *contract.Context, params map[string]interface{}) (*contract.Output, error) {
	seen := nodeCtx.Variables()
	name, _ := params["name"].(string)
	nodeCtx.SetVariable(name, params["value"])
	return contract.Success(map[string]interface{}{"variable": name, "seen": seen}), nil
}
