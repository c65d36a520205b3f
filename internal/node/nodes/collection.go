package nodes

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/linkflow-ai/workflow-engine/internal/node/contract"
	"github.com/linkflow-ai/workflow-engine/internal/node/registry"
)

func init() {
	registry.Register(NewMapNode)
	registry.Register(NewSortNode)
	registry.Register(NewFlattenNode)
}

// resolveItems reads the "items" parameter: either a literal array, or a
// "$var" reference into the run-scoped variable map.
func resolveItems(params map[string]interface{}, nodeCtx *contract.Context) ([]interface{}, error) {
	raw, ok := params["items"]
	if !ok {
		return nil, fmt.Errorf("items is required")
	}
	if s, ok := raw.(string); ok {
		if len(s) > 1 && s[0] == '$' {
			v, found := nodeCtx.GetVariable(s[1:])
			if !found {
				return nil, fmt.Errorf("variable %q not found", s[1:])
			}
			raw = v
		}
	}
	items, ok := raw.([]interface{})
	if !ok {
		return nil, fmt.Errorf("items must resolve to an array")
	}
	return items, nil
}

// --- Map ---

type MapNode struct{}

func NewMapNode() contract.Node { return &MapNode{} }

func (n *MapNode) TypeName() string            { return "map" }
func (n *MapNode) Category() contract.Category { return contract.CategoryControl }
func (n *MapNode) Subcategory() contract.Subcategory {
	return contract.SubcategoryFlowControl
}
func (n *MapNode) RequiredCredentialType() string { return "" }

func (n *MapNode) Metadata() contract.Metadata {
	return contract.Metadata{
		TypeName:    n.TypeName(),
		Name:        "Map",
		Description: "Apply a structured template per item",
		Category:    contract.CategoryControl,
		Subcategory: contract.SubcategoryFlowControl,
		Version:     "1.0.0",
		Properties: []contract.PropertyDefinition{
			{Name: "items", Type: "json", Required: true},
			{Name: "transform", Type: "json", Required: true},
		},
	}
}

func (n *MapNode) ParameterSchema() map[string]interface{} {
	return map[string]interface{}{
		"items":     map[string]interface{}{"type": "array", "required": true},
		"transform": map[string]interface{}{"type": "object", "required": true},
	}
}

func (n *MapNode) ValidateParameters(params map[string]interface{}) error {
	if _, ok := params["items"]; !ok {
		return fmt.Errorf("map: items is required")
	}
	if _, ok := params["transform"]; !ok {
		return fmt.Errorf("map: transform is required")
	}
	return nil
}

func (n *MapNode) Execute(ctx context.Context, nodeCtx *contract.Context, params map[string]interface{}) (*contract.Output, error) {
	items, err := resolveItems(params, nodeCtx)
	if err != nil {
		return nil, fmt.Errorf("map: %w", err)
	}
	transform := params["transform"]

	mapped := make([]interface{}, len(items))
	for i, item := range items {
		rendered, err := renderTemplate(transform, item, nodeCtx)
		if err != nil {
			return nil, fmt.Errorf("map: item %d: %w", i, err)
		}
		mapped[i] = rendered
	}

	return contract.Success(map[string]interface{}{
		"mapped_items": mapped,
		"count":        len(mapped),
	}), nil
}

// --- Sort ---

type SortNode struct{}

func NewSortNode() contract.Node { return &SortNode{} }

func (n *SortNode) TypeName() string            { return "sort" }
func (n *SortNode) Category() contract.Category { return contract.CategoryControl }
func (n *SortNode) Subcategory() contract.Subcategory {
	return contract.SubcategoryFlowControl
}
func (n *SortNode) RequiredCredentialType() string { return "" }

func (n *SortNode) Metadata() contract.Metadata {
	return contract.Metadata{
		TypeName:    n.TypeName(),
		Name:        "Sort",
		Description: "Sort an array, optionally by a dotted field",
		Category:    contract.CategoryControl,
		Subcategory: contract.SubcategoryFlowControl,
		Version:     "1.0.0",
		Properties: []contract.PropertyDefinition{
			{Name: "items", Type: "json", Required: true},
			{Name: "sort_by", Type: "string"},
			{Name: "order", Type: "select", Default: "asc", Options: []contract.PropertyOption{
				{Label: "Ascending", Value: "asc"}, {Label: "Descending", Value: "desc"},
			}},
		},
	}
}

func (n *SortNode) ParameterSchema() map[string]interface{} {
	return map[string]interface{}{
		"items":   map[string]interface{}{"type": "array", "required": true},
		"sort_by": map[string]interface{}{"type": "string"},
		"order":   map[string]interface{}{"type": "string", "enum": []string{"asc", "desc"}},
	}
}

func (n *SortNode) ValidateParameters(params map[string]interface{}) error {
	if _, ok := params["items"]; !ok {
		return fmt.Errorf("sort: items is required")
	}
	if order, ok := params["order"].(string); ok && order != "" && order != "asc" && order != "desc" {
		return fmt.Errorf("sort: order must be asc or desc")
	}
	return nil
}

func (n *SortNode) Execute(ctx context.Context, nodeCtx *contract.Context, params map[string]interface{}) (*contract.Output, error) {
	items, err := resolveItems(params, nodeCtx)
	if err != nil {
		return nil, fmt.Errorf("sort: %w", err)
	}
	sortBy, _ := params["sort_by"].(string)
	order, _ := params["order"].(string)
	if order == "" {
		order = "asc"
	}

	sorted := make([]interface{}, len(items))
	copy(sorted, items)

	keyOf := func(item interface{}) interface{} {
		if sortBy == "" {
			return item
		}
		v, err := extractField(item, sortBy)
		if err != nil {
			return nil
		}
		return v
	}

	sort.SliceStable(sorted, func(i, j int) bool {
		less := totalOrderLess(keyOf(sorted[i]), keyOf(sorted[j]))
		if order == "desc" {
			return totalOrderLess(keyOf(sorted[j]), keyOf(sorted[i]))
		}
		return less
	})

	return contract.Success(map[string]interface{}{
		"sorted_items": sorted,
		"count":        len(sorted),
	}), nil
}

// totalOrderLess implements its Sort total order: numeric
// when both sides are numbers, lexical when both are strings, boolean
// when both are booleans, otherwise string form; a missing (nil) field
// sorts before a present one.
func totalOrderLess(a, b interface{}) bool {
	if a == nil && b == nil {
		return false
	}
	if a == nil {
		return true
	}
	if b == nil {
		return false
	}

	if an, aok := asNumber(a); aok {
		if bn, bok := asNumber(b); bok {
			return an < bn
		}
	}
	if as, aok := a.(string); aok {
		if bs, bok := b.(string); bok {
			return as < bs
		}
	}
	if ab, aok := a.(bool); aok {
		if bb, bok := b.(bool); bok {
			return !ab && bb
		}
	}
	return fmt.Sprintf("%v", a) < fmt.Sprintf("%v", b)
}

// --- Flatten ---

type FlattenNode struct{}

func NewFlattenNode() contract.Node { return &FlattenNode{} }

func (n *FlattenNode) TypeName() string            { return "flatten" }
func (n *FlattenNode) Category() contract.Category { return contract.CategoryControl }
func (n *FlattenNode) Subcategory() contract.Subcategory {
	return contract.SubcategoryFlowControl
}
func (n *FlattenNode) RequiredCredentialType() string { return "" }

func (n *FlattenNode) Metadata() contract.Metadata {
	return contract.Metadata{
		TypeName:    n.TypeName(),
		Name:        "Flatten",
		Description: "Flatten nested arrays up to a given depth",
		Category:    contract.CategoryControl,
		Subcategory: contract.SubcategoryFlowControl,
		Version:     "1.0.0",
		Properties: []contract.PropertyDefinition{
			{Name: "items", Type: "json", Required: true},
			{Name: "depth", Type: "string", Default: "1", Description: `positive integer, or the literal "infinite"`},
		},
	}
}

func (n *FlattenNode) ParameterSchema() map[string]interface{} {
	return map[string]interface{}{
		"items": map[string]interface{}{"type": "array", "required": true},
		"depth": map[string]interface{}{"type": "any"},
	}
}

func (n *FlattenNode) ValidateParameters(params map[string]interface{}) error {
	if _, ok := params["items"]; !ok {
		return fmt.Errorf("flatten: items is required")
	}
	if _, _, err := parseDepth(params["depth"]); err != nil {
		return fmt.Errorf("flatten: %w", err)
	}
	return nil
}

func (n *FlattenNode) Execute(ctx context.Context, nodeCtx *contract.Context, params map[string]interface{}) (*contract.Output, error) {
	items, err := resolveItems(params, nodeCtx)
	if err != nil {
		return nil, fmt.Errorf("flatten: %w", err)
	}
	depth, infinite, err := parseDepth(params["depth"])
	if err != nil {
		return nil, fmt.Errorf("flatten: %w", err)
	}

	flattened := flatten(items, depth, infinite)
	return contract.Success(map[string]interface{}{
		"flattened_items": flattened,
		"count":           len(flattened),
	}), nil
}

func parseDepth(raw interface{}) (int, bool, error) {
	switch v := raw.(type) {
	case nil:
		return 1, false, nil
	case string:
		if v == "infinite" {
			return 0, true, nil
		}
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return 0, false, fmt.Errorf("depth must be a positive integer or \"infinite\"")
		}
		return n, false, nil
	case float64:
		if v <= 0 {
			return 0, false, fmt.Errorf("depth must be a positive integer or \"infinite\"")
		}
		return int(v), false, nil
	case int:
		if v <= 0 {
			return 0, false, fmt.Errorf("depth must be a positive integer or \"infinite\"")
		}
		return v, false, nil
	default:
		return 0, false, fmt.Errorf("depth must be a positive integer or \"infinite\"")
	}
}

func flatten(items []interface{}, depth int, infinite bool) []interface{} {
	if !infinite && depth <= 0 {
		return items
	}
	var out []interface{}
	for _, item := range items {
		nested, ok := item.([]interface{})
		if !ok {
			out = append(out, item)
			continue
		}
		nextDepth := depth - 1
		if infinite {
			nextDepth = 0
		}
		out = append(out, flatten(nested, nextDepth, infinite)...)
	}
	return out
}
