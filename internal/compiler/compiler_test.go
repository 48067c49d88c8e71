package compiler

import (
	"testing"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sumDefinition = `
graph: sum: {
	nodes: [
		{name: "a", op: "const", rank: 0, config: {value: 1.0}, output: {kind: "scalar"}},
		{name: "b", op: "const", rank: 0, config: {value: 2.0}, output: {kind: "scalar"}},
		{
			name: "sum"
			op:   "add"
			rank: 1
			inputs: [
				{name: "lhs", shape: {kind: "scalar"}},
				{name: "rhs", shape: {kind: "scalar"}},
			]
			output: {kind: "scalar"}
		},
	]
	edges: [
		{from: "a", to: "sum", input: "lhs"},
		{from: "b", to: "sum", input: "rhs"},
	]
}
`

func TestCompileGraphs(t *testing.T) {
	v := cuecontext.New().CompileString(sumDefinition)
	require.NoError(t, v.Err())

	graphs, err := CompileGraphs(v)
	require.NoError(t, err)
	require.Len(t, graphs, 1)

	g := graphs[0]
	assert.Equal(t, "sum", g.Name)
	require.Len(t, g.Nodes, 3)
	assert.Equal(t, "const", g.Nodes[0].Op)
	assert.Equal(t, 1.0, g.Nodes[0].Config["value"])
	assert.Equal(t, 1, g.Nodes[2].Rank)
	require.Len(t, g.Edges, 2)
	assert.Equal(t, "lhs", g.Edges[0].Input)
}

func TestCompileGraphNameFromLabel(t *testing.T) {
	v := cuecontext.New().CompileString(sumDefinition)
	require.NoError(t, v.Err())

	g, err := CompileGraph(v.LookupPath(cue.ParsePath("graph.sum")))
	require.NoError(t, err)
	assert.Equal(t, "sum", g.Name)
}

func TestCompileGraphRejectsBadWiring(t *testing.T) {
	const def = `
graph: broken: {
	nodes: [
		{name: "a", op: "const", rank: 0, config: {value: 1}, output: {kind: "scalar"}},
	]
	edges: [
		{from: "ghost", to: "a", input: "in"},
	]
}
`
	v := cuecontext.New().CompileString(def)
	require.NoError(t, v.Err())

	_, err := CompileGraphs(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ghost")
}

func TestCompileGraphsRequiresGraphField(t *testing.T) {
	v := cuecontext.New().CompileString(`other: {x: 1}`)
	require.NoError(t, v.Err())

	_, err := CompileGraphs(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no graphs defined")
}

func TestCompileErrorCarriesPosition(t *testing.T) {
	const def = `
graph: typed: {
	nodes: [
		{name: "a", op: "const", rank: "zero", config: {value: 1}, output: {kind: "scalar"}},
	]
}
`
	v := cuecontext.New().CompileString(def)
	require.NoError(t, v.Err())

	_, err := CompileGraphs(v)
	require.Error(t, err)
}
