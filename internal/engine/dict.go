package engine

import (
	"fmt"

	"github.com/roach88/tsflow/internal/ts"
)

// Dict and set outputs track per-cycle churn with coalescing: a key added
// and removed within one cycle produces no externally visible delta, and a
// pre-existing key removed then re-added shows up only as a modification,
// never as an add.

// refreshChurn resets the churn maps when the cycle moves on.
func (o *Output) refreshChurn(t ts.EngineTime) {
	if o.deltaTime == t {
		return
	}
	o.resetChurn(t)
}

func (o *Output) resetChurn(t ts.EngineTime) {
	// Removals stashed last cycle are now final; their subscribers can no
	// longer be restored by a same-cycle re-create.
	for _, c := range o.removedEntries {
		c.detach()
	}
	o.deltaTime = t
	o.addedKeys = nil
	o.removedKeys = nil
	o.removedEntries = nil
	o.setAdded = nil
	o.setRemoved = nil
}

// DictGetOrCreate returns the child output for a key, creating (and
// marking added) a missing one. Re-creating a key removed earlier in the
// same cycle restores the original child and cancels the removal.
func (o *Output) DictGetOrCreate(k ts.Key) (*Output, error) {
	if o.kind != ts.KindDict {
		return nil, fmt.Errorf("output %s: not a dict", o.name)
	}
	if child, ok := o.entries[k]; ok {
		return child, nil
	}
	t := o.evalTime()
	o.refreshChurn(t)

	if child, ok := o.removedEntries[k]; ok {
		// Removed earlier this cycle: restore, no visible churn.
		o.entries[k] = child
		delete(o.removedKeys, k)
		delete(o.removedEntries, k)
		o.markModified(t)
		return child, nil
	}

	child, err := newOutput(o.valueShape, nil, o, o.graph, fmt.Sprintf("%s[%v]", o.name, k))
	if err != nil {
		return nil, err
	}
	o.entries[k] = child
	if o.addedKeys == nil {
		o.addedKeys = make(map[ts.Key]bool)
	}
	o.addedKeys[k] = true
	o.markModified(t)
	return child, nil
}

// DictEntry returns the child output for a key, or nil.
func (o *Output) DictEntry(k ts.Key) *Output { return o.entries[k] }

// DictContains reports whether the key currently exists.
func (o *Output) DictContains(k ts.Key) bool {
	_, ok := o.entries[k]
	return ok
}

// DictKeys returns the current key set.
func (o *Output) DictKeys() []ts.Key {
	keys := make([]ts.Key, 0, len(o.entries))
	for k := range o.entries {
		keys = append(keys, k)
	}
	return keys
}

// DictRemove deletes a key. Removing a key added earlier in the same cycle
// cancels the add entirely; the intra-cycle churn is externally invisible.
func (o *Output) DictRemove(k ts.Key) {
	child, ok := o.entries[k]
	if !ok {
		return
	}
	t := o.evalTime()
	o.refreshChurn(t)
	delete(o.entries, k)

	if o.addedKeys[k] {
		// Added and removed within one cycle: the child was never
		// externally visible, drop it outright.
		delete(o.addedKeys, k)
		child.detach()
	} else {
		// The removal stays provisional until the cycle's churn is
		// final: a same-cycle re-create restores the child with its
		// subscribers intact. resetChurn detaches the stashed subtree
		// once the window closes.
		if o.removedKeys == nil {
			o.removedKeys = make(map[ts.Key]bool)
			o.removedEntries = make(map[ts.Key]*Output)
		}
		o.removedKeys[k] = true
		o.removedEntries[k] = child
	}
	o.markModified(t)
}

// detach drops all subscriber back-references below this output.
func (o *Output) detach() {
	o.subs = nil
	for _, c := range o.children {
		c.detach()
	}
	for _, c := range o.entries {
		c.detach()
	}
}

func (o *Output) dictDelta(t ts.EngineTime) ts.DictDelta {
	entries := make(map[ts.Key]ts.Value)
	var added map[ts.Key]bool
	if o.deltaTime == t {
		for k := range o.removedKeys {
			entries[k] = ts.Tombstone{}
		}
		if len(o.addedKeys) > 0 {
			added = make(map[ts.Key]bool, len(o.addedKeys))
			for k := range o.addedKeys {
				added[k] = true
			}
		}
	}
	for k, c := range o.entries {
		if c.lastModified == t {
			entries[k] = c.Delta()
		} else if o.deltaTime == t && o.addedKeys[k] {
			entries[k] = c.Value()
		}
	}
	return ts.NewDictDelta(entries, added)
}

// SetAdd inserts an element, coalescing against a removal earlier in the
// cycle.
func (o *Output) SetAdd(k ts.Key) {
	if o.members[k] {
		return
	}
	t := o.evalTime()
	o.refreshChurn(t)
	o.members[k] = true
	if o.setRemoved[k] {
		delete(o.setRemoved, k)
	} else {
		if o.setAdded == nil {
			o.setAdded = make(map[ts.Key]bool)
		}
		o.setAdded[k] = true
	}
	o.markModified(t)
}

// SetRemove deletes an element, coalescing against an add earlier in the
// cycle.
func (o *Output) SetRemove(k ts.Key) {
	if !o.members[k] {
		return
	}
	t := o.evalTime()
	o.refreshChurn(t)
	delete(o.members, k)
	if o.setAdded[k] {
		delete(o.setAdded, k)
	} else {
		if o.setRemoved == nil {
			o.setRemoved = make(map[ts.Key]bool)
		}
		o.setRemoved[k] = true
	}
	o.markModified(t)
}

// SetContains reports membership.
func (o *Output) SetContains(k ts.Key) bool { return o.members[k] }

func (o *Output) setDelta(t ts.EngineTime) ts.SetDelta {
	var delta ts.SetDelta
	if o.deltaTime != t {
		return delta
	}
	for k := range o.setAdded {
		delta.AddedElems = append(delta.AddedElems, k)
	}
	for k := range o.setRemoved {
		delta.RemovedElems = append(delta.RemovedElems, k)
	}
	ts.SortKeys(delta.AddedElems)
	ts.SortKeys(delta.RemovedElems)
	return delta
}
