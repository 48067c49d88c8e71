package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScenario(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

const minimalScenario = `name: minimal
description: a single constant
graph:
  name: minimal
  nodes:
    - name: a
      op: const
      rank: 0
      config: {value: 1}
      output: {kind: scalar}
assertions:
  - type: tick_count
    node: root/a
    count: 1
`

func TestLoadScenario(t *testing.T) {
	s, err := LoadScenario(writeScenario(t, minimalScenario))
	require.NoError(t, err)

	assert.Equal(t, "minimal", s.Name)
	require.NotNil(t, s.Graph)
	assert.Equal(t, "const", s.Graph.Nodes[0].Op)
	require.Len(t, s.Assertions, 1)
	assert.Equal(t, AssertTickCount, s.Assertions[0].Type)
}

func TestLoadScenarioRejectsUnknownField(t *testing.T) {
	body := minimalScenario + "assertion: oops\n"
	_, err := LoadScenario(writeScenario(t, body))
	require.Error(t, err)
}

func TestLoadScenarioRejectsMissingAssertions(t *testing.T) {
	body := `name: empty
description: no assertions and no expected error
graph:
  name: empty
  nodes:
    - name: a
      op: const
      rank: 0
      config: {value: 1}
      output: {kind: scalar}
`
	_, err := LoadScenario(writeScenario(t, body))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "assertions are required")
}

func TestLoadScenarioValidatesGraph(t *testing.T) {
	body := `name: bad-graph
description: edge references a missing node
graph:
  name: bad-graph
  nodes:
    - name: a
      op: const
      rank: 0
      config: {value: 1}
      output: {kind: scalar}
  edges:
    - {from: ghost, to: a, input: in}
assertions:
  - type: tick_count
    node: root/a
    count: 1
`
	_, err := LoadScenario(writeScenario(t, body))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "graph")
}

func TestLoadScenarioRejectsBadAssertion(t *testing.T) {
	for name, assertion := range map[string]string{
		"unknown type":   "  - type: tick_sum\n    node: root/a\n",
		"missing node":   "  - type: tick_count\n    count: 1\n",
		"missing value":  "  - type: final_value\n    node: root/a\n",
		"one order node": "  - type: tick_order\n    nodes: [root/a]\n",
		"missing type":   "  - node: root/a\n    count: 1\n",
	} {
		t.Run(name, func(t *testing.T) {
			body := `name: bad
description: bad assertion
graph:
  name: bad
  nodes:
    - name: a
      op: const
      rank: 0
      config: {value: 1}
      output: {kind: scalar}
assertions:
` + assertion
			_, err := LoadScenario(writeScenario(t, body))
			require.Error(t, err)
		})
	}
}

func TestLoadScenarioDirSorted(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.yaml", "a.yaml"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(minimalScenario), 0o644))
	}

	scenarios, err := LoadScenarioDir(dir)
	require.NoError(t, err)
	require.Len(t, scenarios, 2)
}
