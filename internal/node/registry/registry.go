// Package registry maps node type names to factories, following the
// sync.RWMutex-protected singleton pattern common to node-runtime
// registries.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/linkflow-ai/workflow-engine/internal/node/contract"
)

// ErrUnknownType is returned by Create when no factory is registered for a
// type name.
type ErrUnknownType struct {
	TypeName string
}

func (e *ErrUnknownType) Error() string {
	return fmt.Sprintf("unknown node type %q", e.TypeName)
}

// Registry holds node factories. Register(factory) installs a factory under
// the type name its node reports, and the last registration wins (overwrite permitted), unlike
// this codebase's registry, which rejects duplicates.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]contract.Factory
	metadata  map[string]contract.Metadata
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		factories: make(map[string]contract.Factory),
		metadata:  make(map[string]contract.Metadata),
	}
}

// Register installs a factory under the type name it reports, overwriting
// any prior registration for that name.
func (r *Registry) Register(factory contract.Factory) {
	n := factory()
	typeName := n.TypeName()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[typeName] = factory
	r.metadata[typeName] = n.Metadata()
}

// Create instantiates a fresh node of the given type.
func (r *Registry) Create(typeName string) (contract.Node, error) {
	r.mu.RLock()
	factory, ok := r.factories[typeName]
	r.mu.RUnlock()
	if !ok {
		return nil, &ErrUnknownType{TypeName: typeName}
	}
	return factory(), nil
}

// Types enumerates registered type names, sorted for deterministic output.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Metadata returns the static metadata recorded at registration time.
func (r *Registry) Metadata(typeName string) (contract.Metadata, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.metadata[typeName]
	return m, ok
}

// CategoryOf is a convenience used by the validator to check
// a starting node's category without fully instantiating it twice.
func (r *Registry) CategoryOf(typeName string) (contract.Category, error) {
	n, err := r.Create(typeName)
	if err != nil {
		return "", err
	}
	return n.Category(), nil
}

// List returns the metadata of every registered node type.
func (r *Registry) List() []contract.Metadata {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]contract.Metadata, 0, len(r.metadata))
	for _, m := range r.metadata {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TypeName < out[j].TypeName })
	return out
}

// Global is the process-wide registry populated by each node package's
// init(), mirroring this codebase's package-level delegating functions over a
// global instance.
var Global = New()

// Register installs factory into the Global registry.
func Register(factory contract.Factory) {
	Global.Register(factory)
}
