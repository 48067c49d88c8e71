package desc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scalarOut() *Shape {
	s := Scalar()
	return &s
}

func addGraph() *Graph {
	return &Graph{
		Name: "add",
		Nodes: []Node{
			{Name: "lhs", Op: "const", Rank: 0, Config: map[string]any{"value": 1.0}, Output: scalarOut()},
			{Name: "rhs", Op: "const", Rank: 0, Config: map[string]any{"value": 2.0}, Output: scalarOut()},
			{Name: "sum", Op: "add", Rank: 1, Inputs: []Port{
				{Name: "lhs", Shape: Scalar()},
				{Name: "rhs", Shape: Scalar()},
			}, Output: scalarOut()},
		},
		Edges: []Edge{
			{From: "lhs", To: "sum", Input: "lhs"},
			{From: "rhs", To: "sum", Input: "rhs"},
		},
	}
}

func TestValidateAcceptsWellFormedGraph(t *testing.T) {
	assert.Empty(t, Validate(addGraph()))
}

func TestValidateEmptyGraph(t *testing.T) {
	errs := Validate(&Graph{Name: "empty"})
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "no nodes")
}

func TestValidateDuplicateNodeName(t *testing.T) {
	g := addGraph()
	g.Nodes[1].Name = "lhs"

	errs := Validate(g)
	require.NotEmpty(t, errs)
	assert.Contains(t, errs[0].Error(), "duplicate node name")
}

func TestValidateEdgeToUnknownNode(t *testing.T) {
	g := addGraph()
	g.Edges[0].To = "missing"

	errs := Validate(g)
	require.NotEmpty(t, errs)
	assert.Contains(t, errs[0].Error(), `unknown node "missing"`)
}

func TestValidateEdgeToUnknownInput(t *testing.T) {
	g := addGraph()
	g.Edges[0].Input = "nope"

	errs := Validate(g)
	require.NotEmpty(t, errs)
	assert.Contains(t, errs[0].Error(), `unknown input "nope"`)
}

func TestValidateRankOrdering(t *testing.T) {
	g := addGraph()
	g.Nodes[2].Rank = 0 // same rank as its sources

	errs := Validate(g)
	require.NotEmpty(t, errs)
	assert.Contains(t, errs[0].Error(), "violates rank ordering")
}

func TestValidateCollectsAllErrors(t *testing.T) {
	g := addGraph()
	g.Nodes[0].Op = ""
	g.Edges[1].From = "missing"

	errs := Validate(g)
	assert.GreaterOrEqual(t, len(errs), 2, "all defects are reported, not just the first")
}

func TestValidateNestedTemplateNeedsOutput(t *testing.T) {
	inner := addGraph()
	inner.Output = "" // nested graphs must name a result node
	g := &Graph{
		Name: "outer",
		Nodes: []Node{
			{Name: "keys", Op: "const", Rank: 0, Output: &Shape{Kind: "set"}},
			{Name: "map", Op: "map", Rank: 1, Nested: inner,
				Inputs: []Port{{Name: "keys", Shape: SetShape()}},
				Output: &Shape{Kind: "dict"}},
		},
		Edges: []Edge{{From: "keys", To: "map", Input: "keys"}},
	}

	errs := Validate(g)
	require.NotEmpty(t, errs)
	assert.Contains(t, errs[len(errs)-1].Error(), "must name an output node")
}

func TestValidateShapes(t *testing.T) {
	g := addGraph()
	g.Nodes[0].Output = &Shape{Kind: "list"} // lists need fixed arity

	errs := Validate(g)
	require.NotEmpty(t, errs)
	assert.Contains(t, errs[0].Error(), "at least one element")

	g = addGraph()
	g.Nodes[0].Output = &Shape{Kind: "matrix"}
	errs = Validate(g)
	require.NotEmpty(t, errs)
	assert.Contains(t, errs[0].Error(), `unknown shape kind "matrix"`)
}

func TestInjectedLookup(t *testing.T) {
	n := Node{Injects: []Capability{CapScheduler, CapState}}
	assert.True(t, n.Injected(CapScheduler))
	assert.True(t, n.Injected(CapState))
	assert.False(t, n.Injected(CapClock))
}
