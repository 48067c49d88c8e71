package ts

import (
	"fmt"
	"slices"
)

// Tombstone marks the removal of a key inside a dict delta. It only ever
// appears as an entry value in DictDelta, never as a snapshot value.
type Tombstone struct{}

func (Tombstone) tsValue()   {}
func (Tombstone) Kind() Kind { return KindScalar }

func (Tombstone) String() string { return "<removed>" }

// ListDelta maps element index to the element's delta for the cycle.
// Indices whose element did not tick are absent.
type ListDelta map[int]Value

func (ListDelta) tsValue()   {}
func (ListDelta) Kind() Kind { return KindList }

// BundleDelta maps field name to the field's delta for the cycle.
type BundleDelta map[string]Value

func (BundleDelta) tsValue()   {}
func (BundleDelta) Kind() Kind { return KindBundle }

// DictDelta describes one cycle of dict churn: entries added or modified
// carry their per-key delta, removals carry a Tombstone.
//
// Intra-cycle churn is coalesced before a DictDelta is built: a key added
// and removed in the same cycle appears in neither set, and a pre-existing
// key removed and re-added appears only as a modification.
type DictDelta struct {
	Entries map[Key]Value // added/modified keys -> delta, removed keys -> Tombstone
	added   map[Key]bool
}

func (DictDelta) tsValue()   {}
func (DictDelta) Kind() Kind { return KindDict }

// NewDictDelta builds a delta from per-key entries and the subset of keys
// that were added this cycle. Removed keys are the Tombstone entries.
func NewDictDelta(entries map[Key]Value, added map[Key]bool) DictDelta {
	return DictDelta{Entries: entries, added: added}
}

// Empty reports whether the delta carries no externally visible change.
func (d DictDelta) Empty() bool { return len(d.Entries) == 0 }

// Added returns the keys created this cycle.
func (d DictDelta) Added() []Key {
	keys := make([]Key, 0, len(d.added))
	for k := range d.added {
		keys = append(keys, k)
	}
	SortKeys(keys)
	return keys
}

// Removed returns the keys removed this cycle.
func (d DictDelta) Removed() []Key {
	var keys []Key
	for k, v := range d.Entries {
		if _, gone := v.(Tombstone); gone {
			keys = append(keys, k)
		}
	}
	SortKeys(keys)
	return keys
}

// ModifiedKeys returns keys whose value ticked this cycle, including added
// keys but excluding removals.
func (d DictDelta) ModifiedKeys() []Key {
	var keys []Key
	for k, v := range d.Entries {
		if _, gone := v.(Tombstone); !gone {
			keys = append(keys, k)
		}
	}
	SortKeys(keys)
	return keys
}

// SetDelta describes one cycle of set churn, coalesced the same way as
// DictDelta.
type SetDelta struct {
	AddedElems   []Key
	RemovedElems []Key
}

func (SetDelta) tsValue()   {}
func (SetDelta) Kind() Kind { return KindSet }

// Empty reports whether the delta carries no externally visible change.
func (d SetDelta) Empty() bool {
	return len(d.AddedElems) == 0 && len(d.RemovedElems) == 0
}

// SortKeys orders keys by their formatted representation, giving delta
// consumers a deterministic iteration order.
func SortKeys(keys []Key) {
	slices.SortFunc(keys, func(a, b Key) int {
		as, bs := fmt.Sprintf("%v", a), fmt.Sprintf("%v", b)
		switch {
		case as < bs:
			return -1
		case as > bs:
			return 1
		}
		return 0
	})
}
