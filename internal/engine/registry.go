package engine

import (
	"fmt"
	"sort"
)

// Registry maps operation names from graph descriptions to their runtime
// definitions. The wiring front end emits op names; Build resolves them
// here.
type Registry struct {
	ops map[string]*OpDef
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{ops: make(map[string]*OpDef)}
}

// Register adds an operation definition. Duplicate names are rejected.
func (r *Registry) Register(def *OpDef) error {
	if def.Name == "" {
		return fmt.Errorf("register op: empty name")
	}
	if def.Eval == nil {
		return fmt.Errorf("register op %q: no eval function", def.Name)
	}
	if _, exists := r.ops[def.Name]; exists {
		return fmt.Errorf("register op %q: already registered", def.Name)
	}
	r.ops[def.Name] = def
	return nil
}

// MustRegister is Register for static registration tables.
func (r *Registry) MustRegister(def *OpDef) {
	if err := r.Register(def); err != nil {
		panic(err)
	}
}

// Lookup resolves an op name.
func (r *Registry) Lookup(name string) (*OpDef, error) {
	def, ok := r.ops[name]
	if !ok {
		return nil, fmt.Errorf("unknown op %q", name)
	}
	return def, nil
}

// Names lists registered ops, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.ops))
	for name := range r.ops {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry returns a registry with every built-in operation: the
// scalar sources and arithmetic, the feed/push sources, and the dynamic
// constructs (map, switch, mesh, try).
func DefaultRegistry() *Registry {
	r := NewRegistry()
	registerBuiltinOps(r)
	registerConstructOps(r)
	return r
}
