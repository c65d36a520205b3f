// Package service implements the application-level operations on workflow
// definitions: validate, persist, publish the resulting domain events, all
// behind a thin command API, following this codebase's
// internal/workflow/app/service pattern of a service struct wrapping a
// store/repository and a logger.
package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/linkflow-ai/workflow-engine/internal/node/registry"
	"github.com/linkflow-ai/workflow-engine/internal/platform/events"
	"github.com/linkflow-ai/workflow-engine/internal/platform/messaging/kafka"
	"github.com/linkflow-ai/workflow-engine/internal/store"
	"github.com/linkflow-ai/workflow-engine/internal/workflow/model"
	"github.com/linkflow-ai/workflow-engine/internal/workflow/parser"
	"github.com/linkflow-ai/workflow-engine/internal/workflow/validator"
)

// ErrInvalidDefinition wraps a validator.Error so callers that only care
// whether the definition was rejected (the HTTP layer answers 422) don't
// need to import the validator package.
var ErrInvalidDefinition = errors.New("invalid workflow definition")

// Publisher is the subset of kafka.EventPublisher the service needs.
// Accepting an interface (rather than *kafka.EventPublisher directly) lets
// a Service run with publishing disabled by passing a nil Publisher.
type Publisher interface {
	Publish(ctx context.Context, event *events.Event) error
}

// Service is the application-facing API for creating, editing, and
// activating workflow definitions.
type Service struct {
	store     store.Store
	resolver  validator.CategoryResolver
	publisher Publisher
	logger    *zap.Logger
}

// New builds a Service. publisher may be nil, in which case domain events
// are discarded rather than published; resolver is typically
// registry.Global.
func New(st store.Store, resolver validator.CategoryResolver, publisher Publisher, logger *zap.Logger) *Service {
	if resolver == nil {
		resolver = registry.Global
	}
	return &Service{store: st, resolver: resolver, publisher: publisher, logger: logger}
}

// Create validates def and persists a new, active Workflow.
func (s *Service) Create(ctx context.Context, def model.WorkflowDefinition) (*model.Workflow, error) {
	if err := s.validate(&def); err != nil {
		return nil, err
	}
	wf, err := model.New(def)
	if err != nil {
		return nil, fmt.Errorf("create workflow: %w", err)
	}
	if err := s.store.CreateWorkflow(ctx, wf); err != nil {
		return nil, fmt.Errorf("create workflow: %w", err)
	}
	s.publishAll(ctx, wf)
	return wf, nil
}

// ImportYAML parses a YAML document and creates a workflow from it.
func (s *Service) ImportYAML(ctx context.Context, document []byte) (*model.Workflow, error) {
	def, err := parser.Parse(document)
	if err != nil {
		return nil, err
	}
	return s.Create(ctx, *def)
}

// Get returns a workflow by id.
func (s *Service) Get(ctx context.Context, id string) (*model.Workflow, error) {
	return s.store.GetWorkflow(ctx, id)
}

// List returns every workflow, or only active ones when activeOnly is set.
func (s *Service) List(ctx context.Context, activeOnly bool) ([]*model.Workflow, error) {
	return s.store.ListWorkflows(ctx, activeOnly)
}

// Update replaces an existing workflow's definition after re-validating it.
func (s *Service) Update(ctx context.Context, id string, def model.WorkflowDefinition) (*model.Workflow, error) {
	if err := s.validate(&def); err != nil {
		return nil, err
	}
	wf, err := s.store.GetWorkflow(ctx, id)
	if err != nil {
		return nil, err
	}
	wf.Update(def)
	if err := s.store.UpdateWorkflow(ctx, wf); err != nil {
		return nil, fmt.Errorf("update workflow %q: %w", id, err)
	}
	s.publishAll(ctx, wf)
	return wf, nil
}

// Delete removes a workflow definition. The store adapters delete the
// runs recorded against it, and their node executions, in the same call.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.DeleteWorkflow(ctx, id); err != nil {
		return fmt.Errorf("delete workflow %q: %w", id, err)
	}
	s.publish(ctx, events.WorkflowDeleted, id, events.WorkflowEventData{WorkflowID: id})
	return nil
}

// Activate marks a workflow eligible to start new runs.
func (s *Service) Activate(ctx context.Context, id string) (*model.Workflow, error) {
	wf, err := s.store.GetWorkflow(ctx, id)
	if err != nil {
		return nil, err
	}
	wf.Activate()
	if err := s.store.UpdateWorkflow(ctx, wf); err != nil {
		return nil, fmt.Errorf("activate workflow %q: %w", id, err)
	}
	s.publishAll(ctx, wf)
	return wf, nil
}

// Deactivate stops a workflow from starting new runs; in-flight runs are
// unaffected.
func (s *Service) Deactivate(ctx context.Context, id string) (*model.Workflow, error) {
	wf, err := s.store.GetWorkflow(ctx, id)
	if err != nil {
		return nil, err
	}
	wf.Deactivate()
	if err := s.store.UpdateWorkflow(ctx, wf); err != nil {
		return nil, fmt.Errorf("deactivate workflow %q: %w", id, err)
	}
	s.publishAll(ctx, wf)
	return wf, nil
}

func (s *Service) validate(def *model.WorkflowDefinition) error {
	if err := validator.ValidateWithRegistry(def, s.resolver); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidDefinition, err.Error())
	}
	return nil
}

// publishAll drains wf's uncommitted domain events and publishes each one
// best-effort, mirroring the DomainEvent buffer's
// "the service layer reads UncommittedEvents, publishes, then calls
// MarkEventsCommitted" contract.
func (s *Service) publishAll(ctx context.Context, wf *model.Workflow) {
	for _, e := range wf.UncommittedEvents() {
		var eventType events.EventType
		switch e.Type {
		case model.EventWorkflowCreated:
			eventType = events.WorkflowCreated
		case model.EventWorkflowUpdated:
			eventType = events.WorkflowUpdated
		case model.EventWorkflowActivated:
			eventType = events.WorkflowActivated
		case model.EventWorkflowDeactivated:
			eventType = events.WorkflowArchived
		default:
			continue
		}
		s.publish(ctx, eventType, wf.ID(), events.WorkflowEventData{WorkflowID: wf.ID(), Name: wf.Name()})
	}
	wf.MarkEventsCommitted()
}

func (s *Service) publish(ctx context.Context, eventType events.EventType, aggregateID string, data interface{}) {
	if s.publisher == nil {
		return
	}
	evt, err := events.NewEvent(eventType, aggregateID, "workflow", data)
	if err != nil {
		s.logger.Warn("failed to build workflow event", zap.String("workflowId", aggregateID), zap.Error(err))
		return
	}
	if err := s.publisher.Publish(ctx, evt); err != nil {
		s.logger.Warn("failed to publish workflow event", zap.String("workflowId", aggregateID), zap.String("eventType", string(eventType)), zap.Error(err))
	}
}

var _ Publisher = (*kafka.EventPublisher)(nil)
