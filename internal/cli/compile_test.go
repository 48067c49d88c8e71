package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileCommand(t *testing.T) {
	dir := writeGraphDir(t, sumGraphCUE)

	out, err := execute(t, "compile", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "sum: 3 nodes, 2 edges")
}

func TestCompileCommandJSON(t *testing.T) {
	dir := writeGraphDir(t, sumGraphCUE)

	out, err := execute(t, "compile", dir, "--format", "json")
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestCompileCommandBadDefinition(t *testing.T) {
	dir := writeGraphDir(t, `
graph: broken: {
	nodes: [
		{name: "a", op: "const", rank: 0, config: {value: 1}, output: {kind: "scalar"}},
	]
	edges: [
		{from: "ghost", to: "a", input: "in"},
	]
}
`)

	_, err := execute(t, "compile", dir)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
