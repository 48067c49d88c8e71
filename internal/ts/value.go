package ts

import (
	"fmt"
	"slices"
	"strings"
)

// Kind identifies the shape of a time-series edge.
type Kind int

const (
	KindScalar Kind = iota + 1
	KindList
	KindBundle
	KindDict
	KindSet
	KindRef
)

var kindNames = map[Kind]string{
	KindScalar: "scalar",
	KindList:   "list",
	KindBundle: "bundle",
	KindDict:   "dict",
	KindSet:    "set",
	KindRef:    "ref",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind converts a shape name from a graph description to a Kind.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown time-series kind %q", s)
}

// Key is a dict/set element key. Keys must be comparable; string and int64
// keys additionally survive a store round-trip.
type Key = any

// Value is a sealed interface over the snapshot shapes a time-series edge
// can carry. Only Scalar, List, Bundle, Dict, Set and Ref implement it.
//
// Values are immutable snapshots: the engine's outputs own the mutable
// storage and hand out Values for observation, tracing and persistence.
type Value interface {
	tsValue() // sealed
	Kind() Kind
}

// Scalar wraps a single payload (float64, int64, string, bool, or any
// comparable user type).
type Scalar struct {
	V any
}

func (Scalar) tsValue()   {}
func (Scalar) Kind() Kind { return KindScalar }

// List is a fixed-arity sequence of element values. A nil element marks an
// element that has never ticked.
type List []Value

func (List) tsValue()   {}
func (List) Kind() Kind { return KindList }

// Bundle is a fixed schema of named fields. A missing field marks a field
// that has never ticked.
type Bundle map[string]Value

func (Bundle) tsValue()   {}
func (Bundle) Kind() Kind { return KindBundle }

// SortedKeys returns the field names in lexicographic order for
// deterministic iteration.
func (b Bundle) SortedKeys() []string {
	keys := make([]string, 0, len(b))
	for k := range b {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Dict is a dynamic keyed collection.
type Dict map[Key]Value

func (Dict) tsValue()   {}
func (Dict) Kind() Kind { return KindDict }

// Set is a dynamic membership collection.
type Set map[Key]struct{}

func (Set) tsValue()   {}
func (Set) Kind() Kind { return KindSet }

// NewSet builds a Set from elements.
func NewSet(elems ...Key) Set {
	s := make(Set, len(elems))
	for _, e := range elems {
		s[e] = struct{}{}
	}
	return s
}

// Contains reports membership.
func (s Set) Contains(k Key) bool {
	_, ok := s[k]
	return ok
}

// Ref denotes the output at the far end of an edge without being the edge
// itself. The referent token is opaque to this package; the engine resolves
// it to a concrete output.
type Ref struct {
	Referent any
}

func (Ref) tsValue()   {}
func (Ref) Kind() Kind { return KindRef }

// Equal compares two values structurally. Scalars compare with ==, so
// payloads must be comparable.
func Equal(a, b Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Kind() != b.Kind() {
		return false
	}
	switch av := a.(type) {
	case Scalar:
		return av.V == b.(Scalar).V
	case List:
		bv := b.(List)
		if len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case Bundle:
		bv := b.(Bundle)
		if len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			ov, ok := bv[k]
			if !ok || !Equal(v, ov) {
				return false
			}
		}
		return true
	case Dict:
		bv := b.(Dict)
		if len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			ov, ok := bv[k]
			if !ok || !Equal(v, ov) {
				return false
			}
		}
		return true
	case Set:
		bv := b.(Set)
		if len(av) != len(bv) {
			return false
		}
		for k := range av {
			if !bv.Contains(k) {
				return false
			}
		}
		return true
	case Ref:
		return av.Referent == b.(Ref).Referent
	}
	return false
}

// Format renders a value for logs and error messages. Dict and set entries
// are ordered by their formatted key so the output is deterministic.
func Format(v Value) string {
	switch val := v.(type) {
	case nil:
		return "<nil>"
	case Scalar:
		return fmt.Sprintf("%v", val.V)
	case List:
		parts := make([]string, len(val))
		for i, e := range val {
			parts[i] = Format(e)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case Bundle:
		parts := make([]string, 0, len(val))
		for _, k := range val.SortedKeys() {
			parts = append(parts, fmt.Sprintf("%s: %s", k, Format(val[k])))
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case Dict:
		parts := make([]string, 0, len(val))
		for k, e := range val {
			parts = append(parts, fmt.Sprintf("%v: %s", k, Format(e)))
		}
		slices.Sort(parts)
		return "{" + strings.Join(parts, ", ") + "}"
	case Set:
		parts := make([]string, 0, len(val))
		for k := range val {
			parts = append(parts, fmt.Sprintf("%v", k))
		}
		slices.Sort(parts)
		return "{" + strings.Join(parts, ", ") + "}"
	case Ref:
		return fmt.Sprintf("ref(%v)", val.Referent)
	}
	return fmt.Sprintf("%v", v)
}
