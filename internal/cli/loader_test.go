package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadGraphs(t *testing.T) {
	dir := writeGraphDir(t, sumGraphCUE)

	graphs, err := LoadGraphs(dir)
	require.NoError(t, err)
	require.Len(t, graphs, 1)
	assert.Equal(t, "sum", graphs[0].Name)
	assert.Len(t, graphs[0].Nodes, 3)
}

func TestLoadGraphsMissingDir(t *testing.T) {
	_, err := LoadGraphs("/no/such/dir")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestLoadGraphsEmptyDir(t *testing.T) {
	_, err := LoadGraphs(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no CUE files")
}

func TestLoadGraphByName(t *testing.T) {
	const two = sumGraphCUE + `
graph: single: {
	nodes: [
		{name: "a", op: "const", rank: 0, config: {value: 7}, output: {kind: "scalar"}},
	]
}
`
	dir := writeGraphDir(t, two)

	g, err := LoadGraph(dir, "single")
	require.NoError(t, err)
	assert.Equal(t, "single", g.Name)

	_, err = LoadGraph(dir, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--graph")

	_, err = LoadGraph(dir, "missing")
	require.Error(t, err)
}

func TestLoadGraphDefaultsToOnlyGraph(t *testing.T) {
	dir := writeGraphDir(t, sumGraphCUE)

	g, err := LoadGraph(dir, "")
	require.NoError(t, err)
	assert.Equal(t, "sum", g.Name)
}
