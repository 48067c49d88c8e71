package engine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluateCleanRunReturnsNilError(t *testing.T) {
	g, _ := probeGraph(epoch)
	n := probeNode(g, "ok", 0)
	n.def = &OpDef{Name: "ok", Eval: func(*Context) error { return nil }}

	n.wakeTime = epoch
	g.refreshNodeSchedule(n)
	require.NoError(t, g.evaluateCycle(), "a clean cycle must not abort the graph")

	n.wakeTime = epoch
	err := n.evaluate(epoch)

	// The comparison must hold on the interface itself, not through a
	// concrete error type.
	assert.True(t, err == nil, "successful evaluation returned %v", err)
}

func TestEvaluateWrapsFailureAsNodeError(t *testing.T) {
	g, _ := probeGraph(epoch)
	n := probeNode(g, "bad", 0)
	n.def = &OpDef{Name: "bad", Eval: func(*Context) error { return errors.New("boom") }}

	err := n.evaluate(epoch)

	ne := AsNodeError(err)
	require.NotNil(t, ne)
	assert.Equal(t, ErrKindEval, ne.Kind)
	assert.Equal(t, "bad", ne.Node)
	assert.Contains(t, ne.Message, "boom")
}
