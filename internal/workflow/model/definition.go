// Package model holds the workflow aggregate: the author-facing
// WorkflowDefinition shape and the persisted Workflow entity, following the
// codebase's DDD aggregate-root pattern in
// internal/workflow/domain/model/workflow.go (private fields, getters,
// factory functions, domain events).
package model

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// NodeDefinition is one node inside a WorkflowDefinition.
type NodeDefinition struct {
	ID         string                 `yaml:"id" json:"id"`
	NodeType   string                 `yaml:"node_type" json:"node_type"`
	Name       string                 `yaml:"name" json:"name"`
	Parameters map[string]interface{} `yaml:"parameters" json:"parameters"`
}

// EdgeDefinition wires one node's output port to another's input port.
type EdgeDefinition struct {
	From       string `yaml:"from" json:"from"`
	To         string `yaml:"to" json:"to"`
	FromOutput string `yaml:"from_output,omitempty" json:"from_output,omitempty"`
	ToInput    string `yaml:"to_input,omitempty" json:"to_input,omitempty"`
}

// InputKey returns the key a downstream node's Context.Inputs map uses for
// this edge's payload: edge.ToInput when set, otherwise edge.From.
func (e EdgeDefinition) InputKey() string {
	if e.ToInput != "" {
		return e.ToInput
	}
	return e.From
}

// WorkflowDefinition is the author-facing shape, typically loaded from a
// declarative YAML document.
type WorkflowDefinition struct {
	Name        string           `yaml:"name" json:"name"`
	Description string           `yaml:"description,omitempty" json:"description,omitempty"`
	Nodes       []NodeDefinition `yaml:"nodes" json:"nodes"`
	Edges       []EdgeDefinition `yaml:"edges" json:"edges"`
}

var (
	// ErrEmptyName is returned when a WorkflowDefinition/Workflow is built
	// with a blank name.
	ErrEmptyName = errors.New("workflow name must not be empty")
)

// NodeByID looks up a node definition by id.
func (d *WorkflowDefinition) NodeByID(id string) (*NodeDefinition, bool) {
	for i := range d.Nodes {
		if d.Nodes[i].ID == id {
			return &d.Nodes[i], true
		}
	}
	return nil, false
}

// IncomingEdges returns every edge whose To equals nodeID.
func (d *WorkflowDefinition) IncomingEdges(nodeID string) []EdgeDefinition {
	var out []EdgeDefinition
	for _, e := range d.Edges {
		if e.To == nodeID {
			out = append(out, e)
		}
	}
	return out
}

// Workflow is the persisted form of a definition: same fields plus identity
// and activation state. It follows the
// codebase's aggregate pattern: private fields, getters, a mutation API that
// records domain events.
type Workflow struct {
	id         string
	definition WorkflowDefinition
	active     bool
	createdAt  time.Time
	updatedAt  time.Time

	events []DomainEvent
}

// New constructs a brand-new Workflow (not yet persisted), active by
// default, mirroring ImportWorkflow's "mints UUID, sets active=true".
func New(def WorkflowDefinition) (*Workflow, error) {
	if def.Name == "" {
		return nil, ErrEmptyName
	}
	now := time.Now().UTC()
	w := &Workflow{
		id:         uuid.New().String(),
		definition: def,
		active:     true,
		createdAt:  now,
		updatedAt:  now,
	}
	w.addEvent(NewEvent(EventWorkflowCreated, w.id, map[string]interface{}{
		"name": def.Name,
	}))
	return w, nil
}

// Reconstruct rebuilds a Workflow from persisted fields, without emitting
// domain events, mirroring this codebase's ReconstructWorkflow rehydration
// constructor.
func Reconstruct(id string, def WorkflowDefinition, active bool, createdAt, updatedAt time.Time) *Workflow {
	return &Workflow{
		id:         id,
		definition: def,
		active:     active,
		createdAt:  createdAt,
		updatedAt:  updatedAt,
	}
}

func (w *Workflow) ID() string                      { return w.id }
func (w *Workflow) Name() string                    { return w.definition.Name }
func (w *Workflow) Description() string             { return w.definition.Description }
func (w *Workflow) Definition() WorkflowDefinition   { return w.definition }
func (w *Workflow) Nodes() []NodeDefinition          { return w.definition.Nodes }
func (w *Workflow) Edges() []EdgeDefinition          { return w.definition.Edges }
func (w *Workflow) Active() bool                     { return w.active }
func (w *Workflow) CreatedAt() time.Time             { return w.createdAt }
func (w *Workflow) UpdatedAt() time.Time             { return w.updatedAt }

// Activate marks the workflow active, if it was not already.
func (w *Workflow) Activate() {
	if w.active {
		return
	}
	w.active = true
	w.updatedAt = time.Now().UTC()
	w.addEvent(NewEvent(EventWorkflowActivated, w.id, nil))
}

// Deactivate marks the workflow inactive.
func (w *Workflow) Deactivate() {
	if !w.active {
		return
	}
	w.active = false
	w.updatedAt = time.Now().UTC()
	w.addEvent(NewEvent(EventWorkflowDeactivated, w.id, nil))
}

// Update replaces the definition (re-validation is the caller's job, via
// the validator package before calling this).
func (w *Workflow) Update(def WorkflowDefinition) {
	w.definition = def
	w.updatedAt = time.Now().UTC()
	w.addEvent(NewEvent(EventWorkflowUpdated, w.id, map[string]interface{}{"name": def.Name}))
}

// workflowView is the wire shape of a Workflow, exposed since the
// aggregate's own fields are private.
type workflowView struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Nodes       []NodeDefinition `json:"nodes"`
	Edges       []EdgeDefinition `json:"edges"`
	Active      bool             `json:"active"`
	CreatedAt   time.Time        `json:"createdAt"`
	UpdatedAt   time.Time        `json:"updatedAt"`
}

// MarshalJSON renders the aggregate's public view for API responses.
func (w *Workflow) MarshalJSON() ([]byte, error) {
	return json.Marshal(workflowView{
		ID:          w.id,
		Name:        w.definition.Name,
		Description: w.definition.Description,
		Nodes:       w.definition.Nodes,
		Edges:       w.definition.Edges,
		Active:      w.active,
		CreatedAt:   w.createdAt,
		UpdatedAt:   w.updatedAt,
	})
}

func (w *Workflow) addEvent(e DomainEvent) {
	w.events = append(w.events, e)
}

// UncommittedEvents returns events recorded since the last
// MarkEventsCommitted call.
func (w *Workflow) UncommittedEvents() []DomainEvent {
	return w.events
}

// MarkEventsCommitted clears the pending event buffer after a caller (the
// service layer) has published them.
func (w *Workflow) MarkEventsCommitted() {
	w.events = nil
}
