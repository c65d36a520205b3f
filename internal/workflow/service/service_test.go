package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	execmodel "github.com/linkflow-ai/workflow-engine/internal/execution/model"
	"github.com/linkflow-ai/workflow-engine/internal/node/contract"
	"github.com/linkflow-ai/workflow-engine/internal/platform/events"
	"github.com/linkflow-ai/workflow-engine/internal/store"
	"github.com/linkflow-ai/workflow-engine/internal/workflow/model"
)

// memStore is a minimal in-memory store.Store fake, mirroring the engine
// package's own in-memory test double for the same interface.
type memStore struct {
	workflows map[string]*model.Workflow
}

func newMemStore() *memStore {
	return &memStore{workflows: map[string]*model.Workflow{}}
}

func (m *memStore) CreateWorkflow(ctx context.Context, w *model.Workflow) error {
	m.workflows[w.ID()] = w
	return nil
}
func (m *memStore) GetWorkflow(ctx context.Context, id string) (*model.Workflow, error) {
	w, ok := m.workflows[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return w, nil
}
func (m *memStore) GetWorkflowByName(ctx context.Context, name string) (*model.Workflow, error) {
	for _, w := range m.workflows {
		if w.Name() == name {
			return w, nil
		}
	}
	return nil, store.ErrNotFound
}
func (m *memStore) ListWorkflows(ctx context.Context, activeOnly bool) ([]*model.Workflow, error) {
	var out []*model.Workflow
	for _, w := range m.workflows {
		if activeOnly && !w.Active() {
			continue
		}
		out = append(out, w)
	}
	return out, nil
}
func (m *memStore) UpdateWorkflow(ctx context.Context, w *model.Workflow) error {
	if _, ok := m.workflows[w.ID()]; !ok {
		return store.ErrNotFound
	}
	m.workflows[w.ID()] = w
	return nil
}
func (m *memStore) DeleteWorkflow(ctx context.Context, id string) error {
	if _, ok := m.workflows[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.workflows, id)
	return nil
}
func (m *memStore) ImportWorkflow(ctx context.Context, def model.WorkflowDefinition) (*model.Workflow, error) {
	w, err := model.New(def)
	if err != nil {
		return nil, err
	}
	m.workflows[w.ID()] = w
	return w, nil
}
func (m *memStore) CreateWorkflowExecution(ctx context.Context, e *execmodel.WorkflowExecution) error {
	return nil
}
func (m *memStore) GetWorkflowExecution(ctx context.Context, id string) (*execmodel.WorkflowExecution, error) {
	return nil, store.ErrNotFound
}
func (m *memStore) ListWorkflowExecutions(ctx context.Context, workflowID string, limit int) ([]*execmodel.WorkflowExecution, error) {
	return nil, nil
}
func (m *memStore) UpdateWorkflowExecutionStatus(ctx context.Context, id string, status execmodel.Status, output map[string]interface{}, errMsg string) (*execmodel.WorkflowExecution, error) {
	return nil, store.ErrNotFound
}
func (m *memStore) CreateNodeExecution(ctx context.Context, n *execmodel.NodeExecution) error {
	return nil
}
func (m *memStore) UpdateNodeExecutionStatus(ctx context.Context, id string, status execmodel.Status, output map[string]interface{}, errMsg string) (*execmodel.NodeExecution, error) {
	return nil, store.ErrNotFound
}
func (m *memStore) ListNodeExecutions(ctx context.Context, executionID string) ([]*execmodel.NodeExecution, error) {
	return nil, nil
}

// fakeResolver reports every type name as a Trigger, which is enough to
// satisfy ValidateWithRegistry's starting-node check in these tests.
type fakeResolver struct{}

func (fakeResolver) CategoryOf(string) (contract.Category, error) {
	return contract.CategoryTrigger, nil
}

// recordingPublisher captures every event handed to Publish, for
// assertions that a given operation fired the expected event type.
type recordingPublisher struct {
	published []*events.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, e *events.Event) error {
	p.published = append(p.published, e)
	return nil
}

func validDefinition(name string) model.WorkflowDefinition {
	return model.WorkflowDefinition{
		Name: name,
		Nodes: []model.NodeDefinition{
			{ID: "start", NodeType: "manual_trigger"},
		},
	}
}

func newTestService(pub Publisher) (*Service, *memStore) {
	st := newMemStore()
	return New(st, fakeResolver{}, pub, zap.NewNop()), st
}

func TestServiceCreate_PublishesCreatedEvent(t *testing.T) {
	pub := &recordingPublisher{}
	svc, _ := newTestService(pub)

	wf, err := svc.Create(context.Background(), validDefinition("onboarding"))
	require.NoError(t, err)
	assert.True(t, wf.Active())
	require.Len(t, pub.published, 1)
	assert.Equal(t, events.WorkflowCreated, pub.published[0].Type)
}

func TestServiceCreate_RejectsInvalidDefinition(t *testing.T) {
	svc, _ := newTestService(nil)

	_, err := svc.Create(context.Background(), model.WorkflowDefinition{Name: "empty"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidDefinition)
}

func TestServiceUpdate_RevalidatesAndPersists(t *testing.T) {
	svc, _ := newTestService(nil)

	wf, err := svc.Create(context.Background(), validDefinition("v1"))
	require.NoError(t, err)

	updated, err := svc.Update(context.Background(), wf.ID(), validDefinition("v2"))
	require.NoError(t, err)
	assert.Equal(t, "v2", updated.Name())

	reloaded, err := svc.Get(context.Background(), wf.ID())
	require.NoError(t, err)
	assert.Equal(t, "v2", reloaded.Name())
}

func TestServiceActivateDeactivate(t *testing.T) {
	pub := &recordingPublisher{}
	svc, _ := newTestService(pub)

	wf, err := svc.Create(context.Background(), validDefinition("toggle"))
	require.NoError(t, err)

	deactivated, err := svc.Deactivate(context.Background(), wf.ID())
	require.NoError(t, err)
	assert.False(t, deactivated.Active())

	activated, err := svc.Activate(context.Background(), wf.ID())
	require.NoError(t, err)
	assert.True(t, activated.Active())
}

func TestServiceDelete(t *testing.T) {
	svc, st := newTestService(nil)

	wf, err := svc.Create(context.Background(), validDefinition("throwaway"))
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), wf.ID()))
	_, ok := st.workflows[wf.ID()]
	assert.False(t, ok)
}

func TestServiceImportYAML(t *testing.T) {
	svc, _ := newTestService(nil)

	doc := []byte(`
name: imported
nodes:
  - id: start
    node_type: manual_trigger
`)
	wf, err := svc.ImportYAML(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, "imported", wf.Name())
}

func TestServiceGet_NotFound(t *testing.T) {
	svc, _ := newTestService(nil)

	_, err := svc.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
