// Package parser reads and writes the workflow definition document format:
// a YAML mapping with the fields from WorkflowDefinition. The parser is
// considered core because it enforces structural invariants; the
// surrounding file I/O is not.
package parser

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/linkflow-ai/workflow-engine/internal/workflow/model"
)

// strictDoc mirrors WorkflowDefinition but is decoded with KnownFields(true)
// so unknown top-level keys are rejected in strict mode.
type strictDoc struct {
	Name        string                 `yaml:"name"`
	Description string                 `yaml:"description,omitempty"`
	Nodes       []strictNode           `yaml:"nodes"`
	Edges       []model.EdgeDefinition `yaml:"edges"`
}

type strictNode struct {
	ID         string                 `yaml:"id"`
	NodeType   string                 `yaml:"node_type"`
	Name       string                 `yaml:"name"`
	Parameters map[string]interface{} `yaml:"parameters"`
}

// Parse decodes a YAML document into a WorkflowDefinition. Unknown
// top-level keys are rejected; unknown node-parameter keys are left alone
// (that's the node's own ValidateParameters concern).
func Parse(document []byte) (*model.WorkflowDefinition, error) {
	dec := yaml.NewDecoder(bytes.NewReader(document))
	dec.KnownFields(true)

	var doc strictDoc
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("parse workflow definition: %w", err)
	}
	if doc.Name == "" {
		return nil, fmt.Errorf("parse workflow definition: %w", model.ErrEmptyName)
	}

	def := &model.WorkflowDefinition{
		Name:        doc.Name,
		Description: doc.Description,
		Edges:       doc.Edges,
	}
	def.Nodes = make([]model.NodeDefinition, 0, len(doc.Nodes))
	for _, n := range doc.Nodes {
		def.Nodes = append(def.Nodes, model.NodeDefinition{
			ID:         n.ID,
			NodeType:   n.NodeType,
			Name:       n.Name,
			Parameters: n.Parameters,
		})
	}
	return def, nil
}

// Serialize renders a WorkflowDefinition back to its YAML document form.
// Parse(Serialize(d)) must round-trip the semantic content of d (field
// order is irrelevant).
func Serialize(def *model.WorkflowDefinition) ([]byte, error) {
	doc := strictDoc{
		Name:        def.Name,
		Description: def.Description,
		Edges:       def.Edges,
	}
	doc.Nodes = make([]strictNode, 0, len(def.Nodes))
	for _, n := range def.Nodes {
		doc.Nodes = append(doc.Nodes, strictNode{
			ID:         n.ID,
			NodeType:   n.NodeType,
			Name:       n.Name,
			Parameters: n.Parameters,
		})
	}
	out, err := yaml.Marshal(&doc)
	if err != nil {
		return nil, fmt.Errorf("serialize workflow definition: %w", err)
	}
	return out, nil
}
