package engine

import (
	"fmt"
	"slices"

	"github.com/roach88/tsflow/internal/desc"
	"github.com/roach88/tsflow/internal/ts"
)

// Output is the write side of a time-series edge. Every output is owned by
// exactly one node or one parent output; ownership forms a tree rooted at a
// node. Mutating an output stamps it with the owning graph's current
// evaluation time, propagates the stamp up the parent chain, and wakes the
// nodes behind every subscribed (active) input.
type Output struct {
	kind  ts.Kind
	node  *Node   // owning node; nil when parent is set
	parent *Output // owning parent output; nil at the root
	graph *Graph
	name  string

	lastModified ts.EngineTime
	subs         []*Input // non-owning back-references

	// scalar
	value any

	// list / bundle
	children   []*Output
	fieldNames []string
	fieldIndex map[string]int

	// dict
	entries        map[ts.Key]*Output
	addedKeys      map[ts.Key]bool
	removedKeys    map[ts.Key]bool
	removedEntries map[ts.Key]*Output
	valueShape     desc.Shape

	// set
	members    map[ts.Key]bool
	setAdded   map[ts.Key]bool
	setRemoved map[ts.Key]bool

	// delta bookkeeping cycle for dict/set churn maps
	deltaTime ts.EngineTime

	// ref
	referent *Output
}

// newOutput builds an output tree for a shape, owned by a node (root) or a
// parent output.
func newOutput(shape desc.Shape, node *Node, parent *Output, graph *Graph, name string) (*Output, error) {
	kind, err := ts.ParseKind(shape.Kind)
	if err != nil {
		return nil, err
	}
	o := &Output{kind: kind, node: node, parent: parent, graph: graph, name: name}
	switch kind {
	case ts.KindList:
		o.children = make([]*Output, len(shape.Elems))
		for i, es := range shape.Elems {
			child, err := newOutput(es, nil, o, graph, fmt.Sprintf("%s[%d]", name, i))
			if err != nil {
				return nil, err
			}
			o.children[i] = child
		}
	case ts.KindBundle:
		o.children = make([]*Output, len(shape.Fields))
		o.fieldNames = make([]string, len(shape.Fields))
		o.fieldIndex = make(map[string]int, len(shape.Fields))
		for i, f := range shape.Fields {
			child, err := newOutput(f.Shape, nil, o, graph, name+"."+f.Name)
			if err != nil {
				return nil, err
			}
			o.children[i] = child
			o.fieldNames[i] = f.Name
			o.fieldIndex[f.Name] = i
		}
	case ts.KindDict:
		o.entries = make(map[ts.Key]*Output)
		if shape.Value != nil {
			o.valueShape = *shape.Value
		} else {
			o.valueShape = desc.Scalar()
		}
	case ts.KindSet:
		o.members = make(map[ts.Key]bool)
	}
	return o, nil
}

// Kind is the output's container kind.
func (o *Output) Kind() ts.Kind { return o.kind }

// Name is the output's diagnostic path piece.
func (o *Output) Name() string { return o.name }

// Owner walks the ownership tree up to the owning node.
func (o *Output) Owner() *Node {
	r := o
	for r.parent != nil {
		r = r.parent
	}
	return r.node
}

// LastModified is the instant of the most recent tick, MinTime if none.
func (o *Output) LastModified() ts.EngineTime { return o.lastModified }

// Modified reports whether the output ticked in the current cycle.
func (o *Output) Modified() bool {
	return o.lastModified > ts.MinTime && o.lastModified == o.graph.clock.EvaluationTime()
}

// Valid reports whether the output has ever ticked.
func (o *Output) Valid() bool { return o.lastModified > ts.MinTime }

func (o *Output) subscribe(in *Input) {
	if slices.Contains(o.subs, in) {
		return
	}
	o.subs = append(o.subs, in)
	if o.kind == ts.KindRef && o.referent != nil {
		// Reference passthrough: holders also hear the referent's ticks.
		o.referent.subscribe(in)
	}
}

func (o *Output) unsubscribe(in *Input) {
	o.subs = slices.DeleteFunc(o.subs, func(s *Input) bool { return s == in })
	if o.kind == ts.KindRef && o.referent != nil {
		o.referent.unsubscribe(in)
	}
}

// markModified stamps the output (and its parent chain) with t and wakes
// subscribers. Repeated mutations within one cycle stamp and notify once.
func (o *Output) markModified(t ts.EngineTime) {
	if o.lastModified == t {
		return
	}
	o.lastModified = t
	for _, in := range o.subs {
		in.notifyModified(t)
	}
	if o.parent != nil {
		o.parent.markModified(t)
	}
}

func (o *Output) evalTime() ts.EngineTime { return o.graph.clock.EvaluationTime() }

// SetScalar ticks a scalar output with a new payload.
func (o *Output) SetScalar(v any) {
	o.value = v
	o.markModified(o.evalTime())
}

// ScalarValue is the current scalar payload.
func (o *Output) ScalarValue() any { return o.value }

// Child returns the i-th element output of a list.
func (o *Output) Child(i int) *Output { return o.children[i] }

// NumChildren is the fixed arity of a list or bundle output.
func (o *Output) NumChildren() int { return len(o.children) }

// Field returns a bundle's named field output, or nil.
func (o *Output) Field(name string) *Output {
	i, ok := o.fieldIndex[name]
	if !ok {
		return nil
	}
	return o.children[i]
}

// Invalidate clears the output back to never-ticked, recursively. Used by
// the switch construct when a rebuilt child graph does not immediately
// re-tick the output, so stale values are never observed as current.
func (o *Output) Invalidate() {
	o.lastModified = ts.MinTime
	o.value = nil
	for _, c := range o.children {
		c.Invalidate()
	}
	for _, c := range o.entries {
		c.Invalidate()
	}
	o.resetChurn(ts.MinTime)
}

// Value is an immutable snapshot of the output.
func (o *Output) Value() ts.Value {
	switch o.kind {
	case ts.KindScalar:
		if !o.Valid() {
			return nil
		}
		return ts.Scalar{V: o.value}
	case ts.KindList:
		out := make(ts.List, len(o.children))
		for i, c := range o.children {
			out[i] = c.Value()
		}
		return out
	case ts.KindBundle:
		out := make(ts.Bundle, len(o.children))
		for i, c := range o.children {
			if v := c.Value(); v != nil {
				out[o.fieldNames[i]] = v
			}
		}
		return out
	case ts.KindDict:
		out := make(ts.Dict, len(o.entries))
		for k, c := range o.entries {
			out[k] = c.Value()
		}
		return out
	case ts.KindSet:
		out := make(ts.Set, len(o.members))
		for k := range o.members {
			out[k] = struct{}{}
		}
		return out
	case ts.KindRef:
		if o.referent == nil {
			return nil
		}
		return ts.Ref{Referent: o.referent}
	}
	return nil
}

// Delta is the externally visible change for the current cycle, nil when
// the output did not tick.
func (o *Output) Delta() ts.Value {
	if !o.Modified() {
		return nil
	}
	t := o.lastModified
	switch o.kind {
	case ts.KindScalar:
		return ts.Scalar{V: o.value}
	case ts.KindList:
		out := make(ts.ListDelta)
		for i, c := range o.children {
			if c.lastModified == t {
				out[i] = c.Delta()
			}
		}
		return out
	case ts.KindBundle:
		out := make(ts.BundleDelta)
		for i, c := range o.children {
			if c.lastModified == t {
				out[o.fieldNames[i]] = c.Delta()
			}
		}
		return out
	case ts.KindDict:
		return o.dictDelta(t)
	case ts.KindSet:
		return o.setDelta(t)
	case ts.KindRef:
		return ts.Ref{Referent: o.referent}
	}
	return nil
}

// Apply ticks the output with a snapshot or delta value, recursing into
// composites. Used to mirror nested-graph results and to deliver feed,
// replay and push values.
func (o *Output) Apply(v ts.Value) error {
	switch val := v.(type) {
	case nil:
		return nil
	case ts.Scalar:
		if o.kind != ts.KindScalar {
			return fmt.Errorf("output %s: cannot apply scalar to %s", o.name, o.kind)
		}
		o.SetScalar(val.V)
		return nil
	case ts.List:
		for i, e := range val {
			if e == nil || i >= len(o.children) {
				continue
			}
			if err := o.children[i].Apply(e); err != nil {
				return err
			}
		}
		return nil
	case ts.ListDelta:
		for i, e := range val {
			if i < 0 || i >= len(o.children) {
				return fmt.Errorf("output %s: list delta index %d out of range", o.name, i)
			}
			if err := o.children[i].Apply(e); err != nil {
				return err
			}
		}
		return nil
	case ts.Bundle:
		for name, e := range val {
			f := o.Field(name)
			if f == nil {
				return fmt.Errorf("output %s: unknown bundle field %q", o.name, name)
			}
			if err := f.Apply(e); err != nil {
				return err
			}
		}
		return nil
	case ts.BundleDelta:
		return o.Apply(ts.Bundle(val))
	case ts.Dict:
		for k, e := range val {
			child, err := o.DictGetOrCreate(k)
			if err != nil {
				return err
			}
			if err := child.Apply(e); err != nil {
				return err
			}
		}
		return nil
	case ts.DictDelta:
		for k, e := range val.Entries {
			if _, gone := e.(ts.Tombstone); gone {
				o.DictRemove(k)
				continue
			}
			child, err := o.DictGetOrCreate(k)
			if err != nil {
				return err
			}
			if err := child.Apply(e); err != nil {
				return err
			}
		}
		return nil
	case ts.Set:
		for k := range o.members {
			if !val.Contains(k) {
				o.SetRemove(k)
			}
		}
		for k := range val {
			o.SetAdd(k)
		}
		return nil
	case ts.SetDelta:
		for _, k := range val.AddedElems {
			o.SetAdd(k)
		}
		for _, k := range val.RemovedElems {
			o.SetRemove(k)
		}
		return nil
	}
	return fmt.Errorf("output %s: cannot apply %T", o.name, v)
}
