package ts

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDictDeltaAccessors(t *testing.T) {
	delta := NewDictDelta(map[Key]Value{
		"a": Scalar{V: int64(1)}, // added
		"b": Scalar{V: int64(2)}, // modified
		"c": Tombstone{},         // removed
	}, map[Key]bool{"a": true})

	assert.Equal(t, []Key{"a"}, delta.Added())
	assert.Equal(t, []Key{"c"}, delta.Removed())
	assert.Equal(t, []Key{"a", "b"}, delta.ModifiedKeys())
	assert.False(t, delta.Empty())
}

func TestDictDeltaEmpty(t *testing.T) {
	delta := NewDictDelta(map[Key]Value{}, nil)
	assert.True(t, delta.Empty())
	assert.Empty(t, delta.Added())
	assert.Empty(t, delta.Removed())
	assert.Empty(t, delta.ModifiedKeys())
}

func TestSetDeltaEmpty(t *testing.T) {
	assert.True(t, SetDelta{}.Empty())
	assert.False(t, SetDelta{AddedElems: []Key{"a"}}.Empty())
	assert.False(t, SetDelta{RemovedElems: []Key{"a"}}.Empty())
}

func TestDeltaKeyOrderingIsDeterministic(t *testing.T) {
	delta := NewDictDelta(map[Key]Value{
		"z": Scalar{V: int64(1)},
		"m": Scalar{V: int64(2)},
		"a": Scalar{V: int64(3)},
	}, nil)

	assert.Equal(t, []Key{"a", "m", "z"}, delta.ModifiedKeys())
}
