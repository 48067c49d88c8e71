package engine

import "github.com/roach88/tsflow/internal/ts"

// Reference outputs carry "the output at the other end of this edge" as a
// value, so composite arguments can pass through forwarding nodes without
// re-subscribing every leaf field. A reference output notifies its holders
// on two distinct occasions: when the referent itself is swapped (re-bind,
// stamped on the reference output) and when the referent's value ticks
// (heard through the subscription passthrough installed below).

// SetReferent re-binds the reference to a new target output. Subscribers
// of the reference are moved from the old referent to the new one, then
// notified of the re-bind. Re-binding to the current referent is a no-op.
func (o *Output) SetReferent(target *Output) {
	if o.kind != ts.KindRef || o.referent == target {
		return
	}
	old := o.referent
	o.referent = target
	for _, in := range o.subs {
		if old != nil {
			old.unsubscribe(in)
		}
		if target != nil {
			target.subscribe(in)
		}
	}
	o.markModified(o.evalTime())
}

// Referent is the output the reference currently denotes, nil if unbound.
func (o *Output) Referent() *Output { return o.referent }

// resolve follows reference indirection to the concrete output.
func (o *Output) resolve() *Output {
	r := o
	for r != nil && r.kind == ts.KindRef {
		r = r.referent
	}
	return r
}
