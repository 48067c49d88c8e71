package engine

import (
	"fmt"

	"github.com/roach88/tsflow/internal/desc"
	"github.com/roach88/tsflow/internal/ts"
)

// Input is the read side of a time-series edge. An input is either bound -
// it holds exactly one peer output - or, for composite shapes, non-peered:
// each sub-field independently bound to its own output. Inputs never own
// the outputs they reference; unbinding must remove the subscriber
// back-reference so no dangling notification survives.
type Input struct {
	node *Node
	name string
	kind ts.Kind

	output *Output // peer; nil when unbound or non-peered

	children   []*Input // non-peered composite sub-inputs
	fieldNames []string
	fieldIndex map[string]int

	active bool
}

func newInput(port desc.Port, node *Node) (*Input, error) {
	kind, err := ts.ParseKind(port.Shape.Kind)
	if err != nil {
		return nil, err
	}
	in := &Input{node: node, name: port.Name, kind: kind, active: !port.Passive}
	return in, nil
}

// Name is the input's port name.
func (in *Input) Name() string { return in.name }

// Kind is the input's container kind.
func (in *Input) Kind() ts.Kind { return in.kind }

// HasPeer reports whether the input is bound as a single structural
// reference to one output, as opposed to being synthesized from
// independently bound sub-fields.
func (in *Input) HasPeer() bool { return in.output != nil }

// Active reports whether the input is subscribed and wakes its node on
// modification.
func (in *Input) Active() bool { return in.active }

// BindOutput binds the input to a peer output, preserving the active flag
// across the swap. Binding to the already-bound output is a no-op: no
// duplicate subscription, no peer change.
func (in *Input) BindOutput(o *Output) {
	if o == in.output {
		return
	}
	if in.active && in.output != nil {
		in.output.unsubscribe(in)
	}
	in.output = o
	if in.active && o != nil {
		o.subscribe(in)
	}
}

// UnbindOutput detaches the input from its peer. The active flag is
// retained so a subsequent bind re-subscribes.
func (in *Input) UnbindOutput() { in.BindOutput(nil) }

// MakeActive subscribes the input (and any sub-inputs) to its outputs so
// modifications wake the owning node.
func (in *Input) MakeActive() {
	in.active = true
	if in.output != nil {
		in.output.subscribe(in)
	}
	for _, c := range in.children {
		c.MakeActive()
	}
}

// MakePassive unsubscribes the input; the node no longer wakes when the
// output ticks, but values remain readable.
func (in *Input) MakePassive() {
	in.active = false
	if in.output != nil {
		in.output.unsubscribe(in)
	}
	for _, c := range in.children {
		c.MakePassive()
	}
}

// SubInput returns the named sub-input of a non-peered composite, or nil.
func (in *Input) SubInput(name string) *Input {
	i, ok := in.fieldIndex[name]
	if !ok {
		return nil
	}
	return in.children[i]
}

// makeNonPeered converts the input into field-wise form with one sub-input
// per bundle field. Bound sub-fields replace the single peer.
func (in *Input) makeNonPeered(fields []desc.Field) error {
	if in.kind != ts.KindBundle {
		return fmt.Errorf("input %s: only bundle inputs can be non-peered", in.name)
	}
	in.UnbindOutput()
	in.children = make([]*Input, len(fields))
	in.fieldNames = make([]string, len(fields))
	in.fieldIndex = make(map[string]int, len(fields))
	for i, f := range fields {
		sub, err := newInput(desc.Port{Name: in.name + "." + f.Name, Shape: f.Shape, Passive: !in.active}, in.node)
		if err != nil {
			return err
		}
		in.children[i] = sub
		in.fieldNames[i] = f.Name
		in.fieldIndex[f.Name] = i
	}
	return nil
}

// notifyModified wakes the owning node. Called by the bound output while
// it propagates a tick.
func (in *Input) notifyModified(t ts.EngineTime) {
	if !in.active {
		return
	}
	in.node.graph.wakeNodeAt(in.node, t)
}

// peer follows reference indirection to the concrete peer output.
func (in *Input) peer() *Output {
	if in.output == nil {
		return nil
	}
	return in.output.resolve()
}

// Modified reports whether the input's value ticked this cycle.
func (in *Input) Modified() bool {
	if p := in.peer(); p != nil {
		return p.Modified()
	}
	for _, c := range in.children {
		if c.Modified() {
			return true
		}
	}
	return false
}

// Valid reports whether the input has ever ticked. A non-peered composite
// is valid if any sub-field is valid.
func (in *Input) Valid() bool {
	if p := in.peer(); p != nil {
		return p.Valid()
	}
	for _, c := range in.children {
		if c.Valid() {
			return true
		}
	}
	return false
}

// Value is a snapshot of the input's current value.
func (in *Input) Value() ts.Value {
	if p := in.peer(); p != nil {
		return p.Value()
	}
	if len(in.children) > 0 {
		out := make(ts.Bundle, len(in.children))
		for i, c := range in.children {
			if v := c.Value(); v != nil {
				out[in.fieldNames[i]] = v
			}
		}
		return out
	}
	return nil
}

// Delta is the input's change for the current cycle, nil when unmodified.
func (in *Input) Delta() ts.Value {
	if p := in.peer(); p != nil {
		return p.Delta()
	}
	if len(in.children) > 0 {
		out := make(ts.BundleDelta)
		for i, c := range in.children {
			if d := c.Delta(); d != nil {
				out[in.fieldNames[i]] = d
			}
		}
		if len(out) == 0 {
			return nil
		}
		return out
	}
	return nil
}

// Scalar is the input's current scalar payload, nil when invalid.
func (in *Input) Scalar() any {
	p := in.peer()
	if p == nil || !p.Valid() {
		return nil
	}
	return p.ScalarValue()
}

// Output exposes the bound peer output (before reference resolution).
func (in *Input) Output() *Output { return in.output }

// PeerOutput exposes the concrete peer after reference resolution.
func (in *Input) PeerOutput() *Output { return in.peer() }

// unbindAll removes every subscription below the input. Called on node
// dispose.
func (in *Input) unbindAll() {
	if in.output != nil {
		in.output.unsubscribe(in)
		in.output = nil
	}
	for _, c := range in.children {
		c.unbindAll()
	}
}
