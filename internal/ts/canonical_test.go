package ts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonicalScalars(t *testing.T) {
	tests := []struct {
		name string
		in   Value
		want string
	}{
		{"float", Scalar{V: 3.0}, "3"},
		{"float_fraction", Scalar{V: 0.5}, "0.5"},
		{"int", Scalar{V: int64(42)}, "42"},
		{"string", Scalar{V: "hello"}, `"hello"`},
		{"bool", Scalar{V: true}, "true"},
		{"nil", Scalar{V: nil}, "null"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MarshalCanonical(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestMarshalCanonicalNoHTMLEscaping(t *testing.T) {
	got, err := MarshalCanonical(Scalar{V: "<a&b>"})
	require.NoError(t, err)
	assert.Equal(t, `"<a&b>"`, string(got))
}

func TestMarshalCanonicalSortsKeysUTF16(t *testing.T) {
	d := Dict{
		"b": Scalar{V: int64(2)},
		"A": Scalar{V: int64(1)},
		"a": Scalar{V: int64(3)},
	}
	got, err := MarshalCanonical(d)
	require.NoError(t, err)
	assert.Equal(t, `{"A":1,"a":3,"b":2}`, string(got))
}

func TestMarshalCanonicalSetIsSortedArray(t *testing.T) {
	got, err := MarshalCanonical(NewSet("c", "a", "b"))
	require.NoError(t, err)
	assert.Equal(t, `["a","b","c"]`, string(got))
}

func TestMarshalCanonicalDictDeltaTombstone(t *testing.T) {
	delta := NewDictDelta(map[Key]Value{
		"gone": Tombstone{},
		"kept": Scalar{V: int64(1)},
	}, nil)
	got, err := MarshalCanonical(delta)
	require.NoError(t, err)
	assert.Equal(t, `{"gone":{"__removed__":true},"kept":1}`, string(got))
}

func TestCanonicalRoundTrip(t *testing.T) {
	in := Dict{
		"price": Scalar{V: 101.25},
		"size":  Scalar{V: int64(300)},
		"tags":  List{Scalar{V: "new"}, Scalar{V: "fill"}},
	}
	data, err := MarshalCanonical(in)
	require.NoError(t, err)

	out, err := UnmarshalCanonical(data)
	require.NoError(t, err)
	assert.True(t, Equal(in, out), "round-tripped value differs: %s vs %s", Format(in), Format(out))
}

func TestUnmarshalCanonicalIntegersStayIntegers(t *testing.T) {
	out, err := UnmarshalCanonical([]byte(`7`))
	require.NoError(t, err)
	assert.Equal(t, Scalar{V: int64(7)}, out)

	out, err = UnmarshalCanonical([]byte(`7.5`))
	require.NoError(t, err)
	assert.Equal(t, Scalar{V: 7.5}, out)
}
