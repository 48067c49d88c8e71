package engine

import (
	"fmt"
	"sort"

	"github.com/roach88/tsflow/internal/desc"
	"github.com/roach88/tsflow/internal/ts"
)

// The mesh construct is a keyed family of nested graphs, like map, with
// one extra power: a node inside a child may Resolve another key, creating
// that child on demand and wiring a dependency edge to its result. Edges
// keep the family topologically ordered (a resolver always outranks what
// it resolves, transitively re-ranked as edges appear) and a resolution
// that would close a loop fails immediately with the offending key path.

type meshChild struct {
	key        ts.Key
	g          *Graph
	rank       int
	deps       map[ts.Key]bool
	dependents map[ts.Key]bool

	// requested marks children named by the construct's input dict, as
	// opposed to children that exist only because someone resolved them.
	requested bool
}

// MeshHandle is the capability handed to nodes inside mesh children.
type MeshHandle struct {
	construct *Node
	tmpl      *desc.Graph
	children  map[ts.Key]*meshChild
	current   *meshChild // child whose cycle is evaluating
}

// Resolve returns the result output for a key's child, creating the child
// on demand. The calling node is subscribed to the result, so later ticks
// wake it; the dependency edge pins the resolved child below the caller in
// evaluation order. Resolving a key that transitively resolves back is a
// dependency cycle and fails synchronously.
func (h *MeshHandle) Resolve(c *Context, key ts.Key) (*Output, error) {
	cur := h.current
	if cur == nil {
		return nil, fmt.Errorf("mesh %q: Resolve called outside a child evaluation", h.construct.Name())
	}
	if keysEqual(key, cur.key) {
		return nil, &DependencyCycleError{Mesh: h.construct.Name(), Path: []ts.Key{cur.key, key}}
	}

	mc, ok := h.children[key]
	if !ok {
		var err error
		mc, err = h.spawn(key, false)
		if err != nil {
			return nil, err
		}
	}

	if !cur.deps[key] {
		if path := h.findPath(key, cur.key, nil); path != nil {
			return nil, &DependencyCycleError{
				Mesh: h.construct.Name(),
				Path: append([]ts.Key{cur.key}, path...),
			}
		}
		cur.deps[key] = true
		mc.dependents[cur.key] = true
		h.raiseRank(cur, mc.rank+1)
	}

	res := childResult(mc.g)
	if res != nil {
		h.subscribeResolver(c.Node(), key, res)
	}
	return res, nil
}

// spawn builds one child for a key at the lowest rank.
func (h *MeshHandle) spawn(key ts.Key, requested bool) (*meshChild, error) {
	g, err := spawnChild(h.construct, h.tmpl, key, bridgeResolver(h.construct, key))
	if err != nil {
		return nil, err
	}
	mc := &meshChild{
		key:        key,
		g:          g,
		deps:       make(map[ts.Key]bool),
		dependents: make(map[ts.Key]bool),
		requested:  requested,
	}
	h.children[key] = mc
	return mc, nil
}

// findPath walks dependency edges from key towards target, returning the
// key path when target is reachable.
func (h *MeshHandle) findPath(key, target ts.Key, seen map[ts.Key]bool) []ts.Key {
	if keysEqual(key, target) {
		return []ts.Key{key}
	}
	if seen == nil {
		seen = make(map[ts.Key]bool)
	}
	if seen[key] {
		return nil
	}
	seen[key] = true
	mc := h.children[key]
	if mc == nil {
		return nil
	}
	for dep := range mc.deps {
		if path := h.findPath(dep, target, seen); path != nil {
			return append([]ts.Key{key}, path...)
		}
	}
	return nil
}

// raiseRank lifts a child to at least min, propagating through its
// dependents. Terminates because edges are acyclic by construction.
func (h *MeshHandle) raiseRank(mc *meshChild, min int) {
	if mc.rank >= min {
		return
	}
	mc.rank = min
	for k := range mc.dependents {
		if d := h.children[k]; d != nil {
			h.raiseRank(d, min+1)
		}
	}
}

// subscribeResolver gives the calling node a synthetic active input bound
// to the resolved result, once per (node, key).
func (h *MeshHandle) subscribeResolver(n *Node, key ts.Key, res *Output) {
	name := fmt.Sprintf("mesh:%v", key)
	if _, ok := n.inputIndex[name]; ok {
		return
	}
	in := &Input{node: n, name: name, kind: res.kind, active: true}
	if n.inputIndex == nil {
		n.inputIndex = make(map[string]int, 1)
	}
	n.inputIndex[name] = len(n.inputs)
	n.inputs = append(n.inputs, in)
	in.BindOutput(res)
}

// sweep tears down children that are neither requested nor depended upon,
// cascading as removals release further children.
func (h *MeshHandle) sweep(out *Output) {
	for changed := true; changed; {
		changed = false
		for k, mc := range h.children {
			if mc.requested || len(mc.dependents) > 0 {
				continue
			}
			for dep := range mc.deps {
				if d := h.children[dep]; d != nil {
					delete(d.dependents, k)
				}
			}
			disposeChild(h.construct, mc.g)
			delete(h.children, k)
			out.DictRemove(k)
			changed = true
		}
	}
}

// ordered returns the children in evaluation order: ascending rank, key
// formatting as the tie break.
func (h *MeshHandle) ordered() []*meshChild {
	out := make([]*meshChild, 0, len(h.children))
	for _, mc := range h.children {
		out = append(out, mc)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].rank != out[j].rank {
			return out[i].rank < out[j].rank
		}
		return fmt.Sprintf("%v", out[i].key) < fmt.Sprintf("%v", out[j].key)
	})
	return out
}

func keysEqual(a, b ts.Key) bool { return a == b }

func initMesh(c *Context) error {
	n := c.Node()
	if n.spec.Nested == nil {
		return fmt.Errorf("mesh node %q has no nested template", n.Name())
	}
	h := &MeshHandle{
		construct: n,
		tmpl:      n.spec.Nested,
		children:  make(map[ts.Key]*meshChild),
	}
	// Children built beneath this node inherit the handle.
	n.mesh = h
	c.State()["mesh"] = h
	return nil
}

func meshHandle(c *Context) *MeshHandle {
	h, _ := c.State()["mesh"].(*MeshHandle)
	return h
}

func evalMesh(c *Context) error {
	n := c.Node()
	h := meshHandle(c)
	if h == nil {
		return fmt.Errorf("mesh node %q not initialised", n.Name())
	}
	in := c.Input("in")

	if in != nil && in.Modified() {
		delta, ok := in.Delta().(ts.DictDelta)
		if !ok {
			return fmt.Errorf("mesh node %q: input is not a dict", n.Name())
		}
		for _, k := range delta.Removed() {
			if mc := h.children[k]; mc != nil {
				mc.requested = false
			}
		}
		for _, k := range delta.ModifiedKeys() {
			if mc := h.children[k]; mc != nil {
				mc.requested = true
				continue
			}
			if _, err := h.spawn(k, true); err != nil {
				return err
			}
		}
	}

	// Resolutions during a pass create children and shift ranks, so the
	// family is re-walked until a full pass finds no work.
	for pass := 0; ; pass++ {
		if pass > 2*len(h.children)+4 {
			return fmt.Errorf("mesh node %q: evaluation did not quiesce", n.Name())
		}
		progressed := false
		for _, mc := range h.ordered() {
			h.current = mc
			ran, err := runChildCycle(n, mc.g)
			h.current = nil
			if err != nil {
				return err
			}
			if !ran {
				continue
			}
			progressed = true
			if res := childResult(mc.g); res != nil && res.Modified() {
				entry, err := c.Output().DictGetOrCreate(mc.key)
				if err != nil {
					return err
				}
				if err := entry.Apply(res.Delta()); err != nil {
					return err
				}
			}
		}
		if !progressed {
			break
		}
	}

	h.sweep(c.Output())
	return nil
}

func stopMesh(c *Context) error {
	h := meshHandle(c)
	if h == nil {
		return nil
	}
	for _, mc := range h.ordered() {
		if err := mc.g.Stop(); err != nil {
			return err
		}
	}
	return nil
}

func disposeMesh(c *Context) error {
	h := meshHandle(c)
	if h == nil {
		return nil
	}
	for k, mc := range h.children {
		disposeChild(c.Node(), mc.g)
		delete(h.children, k)
	}
	return nil
}
