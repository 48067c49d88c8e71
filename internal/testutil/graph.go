// Package testutil provides fixtures for building and running small
// dataflow graphs in tests: a fluent graph-description builder and
// simulation helpers with a fixed epoch.
package testutil

import (
	"github.com/roach88/tsflow/internal/desc"
)

// GraphBuilder assembles a desc.Graph without the literal boilerplate.
// Nodes are added in declaration order; ranks are explicit so tests can
// exercise tie-breaking and same-cycle visibility deliberately.
type GraphBuilder struct {
	g desc.Graph
}

// NewGraph starts a builder for a named graph.
func NewGraph(name string) *GraphBuilder {
	return &GraphBuilder{g: desc.Graph{Name: name}}
}

// Const adds a rank-0 constant source ticking value once.
func (b *GraphBuilder) Const(name string, value any) *GraphBuilder {
	scalar := desc.Scalar()
	b.g.Nodes = append(b.g.Nodes, desc.Node{
		Name:   name,
		Op:     "const",
		Rank:   0,
		Config: map[string]any{"value": value},
		Output: &scalar,
	})
	return b
}

// Feed adds a rank-0 source ticking one value per cycle, starting at the
// run's first cycle.
func (b *GraphBuilder) Feed(name string, values ...any) *GraphBuilder {
	ticks := make([]any, len(values))
	for i, v := range values {
		ticks[i] = map[string]any{"at": i, "value": v}
	}
	scalar := desc.Scalar()
	b.g.Nodes = append(b.g.Nodes, desc.Node{
		Name:   name,
		Op:     "feed",
		Rank:   0,
		Config: map[string]any{"ticks": ticks},
		Output: &scalar,
	})
	return b
}

// Unary adds a single-input scalar node wired from src, at src's rank + 1
// unless a higher-ranked node already exists.
func (b *GraphBuilder) Unary(name, op, src string) *GraphBuilder {
	scalar := desc.Scalar()
	b.g.Nodes = append(b.g.Nodes, desc.Node{
		Name:   name,
		Op:     op,
		Rank:   b.rankAfter(src),
		Inputs: []desc.Port{{Name: "in", Shape: desc.Scalar()}},
		Output: &scalar,
	})
	b.g.Edges = append(b.g.Edges, desc.Edge{From: src, To: name, Input: "in"})
	return b
}

// Binary adds a two-input scalar node wired from lhs and rhs.
func (b *GraphBuilder) Binary(name, op, lhs, rhs string) *GraphBuilder {
	rank := b.rankAfter(lhs)
	if r := b.rankAfter(rhs); r > rank {
		rank = r
	}
	scalar := desc.Scalar()
	b.g.Nodes = append(b.g.Nodes, desc.Node{
		Name: name,
		Op:   op,
		Rank: rank,
		Inputs: []desc.Port{
			{Name: "lhs", Shape: desc.Scalar()},
			{Name: "rhs", Shape: desc.Scalar()},
		},
		Output: &scalar,
	})
	b.g.Edges = append(b.g.Edges,
		desc.Edge{From: lhs, To: name, Input: "lhs"},
		desc.Edge{From: rhs, To: name, Input: "rhs"},
	)
	return b
}

// Node appends a fully specified node.
func (b *GraphBuilder) Node(n desc.Node) *GraphBuilder {
	b.g.Nodes = append(b.g.Nodes, n)
	return b
}

// Edge appends a wiring edge.
func (b *GraphBuilder) Edge(from, to, input string) *GraphBuilder {
	b.g.Edges = append(b.g.Edges, desc.Edge{From: from, To: to, Input: input})
	return b
}

// Output marks the graph's result node, used by nested templates.
func (b *GraphBuilder) Output(node string) *GraphBuilder {
	b.g.Output = node
	return b
}

// Build returns the assembled description.
func (b *GraphBuilder) Build() *desc.Graph {
	g := b.g
	return &g
}

func (b *GraphBuilder) rankAfter(node string) int {
	if n := b.g.NodeByName(node); n != nil {
		return n.Rank + 1
	}
	return 1
}
