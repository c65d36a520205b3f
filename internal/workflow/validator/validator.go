// Package validator turns an untrusted WorkflowDefinition into an
// engine-accepted one. The cycle-detection algorithm
// (DFS with a recursion-stack set) follows the classic hasCycle
// formulation used by workflow domain models.
package validator

import (
	"fmt"

	"github.com/linkflow-ai/workflow-engine/internal/node/contract"
	"github.com/linkflow-ai/workflow-engine/internal/workflow/model"
)

// CategoryResolver answers "what category does this node type have" without
// requiring a full registry.Registry import (keeps this package decoupled
// from the node package's init-based registration side effects).
type CategoryResolver interface {
	CategoryOf(typeName string) (contract.Category, error)
}

// Error is a precise validation rejection: a single error, with a message
// identifying the offending node or edge.
type Error struct {
	Message string
}

func (e *Error) Error() string { return e.Message }

func fail(format string, args ...interface{}) error {
	return &Error{Message: fmt.Sprintf(format, args...)}
}

// Validate runs the structural checks that don't need a registry:
// non-empty nodes, unique ids, resolvable edge endpoints, acyclicity.
func Validate(def *model.WorkflowDefinition) error {
	if len(def.Nodes) == 0 {
		return fail("workflow definition has no nodes")
	}

	ids := make(map[string]struct{}, len(def.Nodes))
	for _, n := range def.Nodes {
		if _, dup := ids[n.ID]; dup {
			return fail("duplicate node id %q", n.ID)
		}
		ids[n.ID] = struct{}{}
	}

	for _, e := range def.Edges {
		if _, ok := ids[e.From]; !ok {
			return fail("edge references unknown source node %q", e.From)
		}
		if _, ok := ids[e.To]; !ok {
			return fail("edge references unknown target node %q", e.To)
		}
	}

	if cycleNode, found := findCycle(def); found {
		return fail("workflow definition contains a cycle at node %q", cycleNode)
	}

	return nil
}

// ValidateWithRegistry runs the full validation algorithm including the
// trigger-first structural rule.
func ValidateWithRegistry(def *model.WorkflowDefinition, registry CategoryResolver) error {
	if err := Validate(def); err != nil {
		return err
	}

	hasIncoming := make(map[string]struct{}, len(def.Nodes))
	for _, e := range def.Edges {
		hasIncoming[e.To] = struct{}{}
	}

	var starters []model.NodeDefinition
	for _, n := range def.Nodes {
		if _, ok := hasIncoming[n.ID]; !ok {
			starters = append(starters, n)
		}
	}
	if len(starters) == 0 {
		return fail("workflow definition has no starting node (every node has an incoming edge)")
	}

	for _, n := range starters {
		category, err := registry.CategoryOf(n.NodeType)
		if err != nil {
			return fail("starting node %q has unknown type %q", n.ID, n.NodeType)
		}
		if category != contract.CategoryTrigger {
			return fail("starting node %q has category %q, want trigger", n.ID, category)
		}
	}

	return nil
}

// findCycle performs the adjacency-list DFS with a recursion-stack set,
// exactly as this codebase's hasCycle does, returning the node at which a
// back-edge was found.
func findCycle(def *model.WorkflowDefinition) (string, bool) {
	adjacency := make(map[string][]string, len(def.Nodes))
	for _, e := range def.Edges {
		adjacency[e.From] = append(adjacency[e.From], e.To)
	}

	visited := make(map[string]bool, len(def.Nodes))
	onStack := make(map[string]bool, len(def.Nodes))

	var visit func(id string) (string, bool)
	visit = func(id string) (string, bool) {
		visited[id] = true
		onStack[id] = true
		for _, next := range adjacency[id] {
			if onStack[next] {
				return next, true
			}
			if !visited[next] {
				if cyc, found := visit(next); found {
					return cyc, true
				}
			}
		}
		onStack[id] = false
		return "", false
	}

	for _, n := range def.Nodes {
		if !visited[n.ID] {
			if cyc, found := visit(n.ID); found {
				return cyc, true
			}
		}
	}
	return "", false
}
