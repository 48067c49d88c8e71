package desc

import (
	"fmt"
)

// ValidationError reports a structural defect in a graph description.
type ValidationError struct {
	Graph   string
	Node    string
	Message string
}

func (e *ValidationError) Error() string {
	switch {
	case e.Node != "":
		return fmt.Sprintf("graph %q, node %q: %s", e.Graph, e.Node, e.Message)
	case e.Graph != "":
		return fmt.Sprintf("graph %q: %s", e.Graph, e.Message)
	}
	return e.Message
}

// Validate checks a graph description for the structural invariants the
// runtime assumes: unique node names, edges that reference existing nodes
// and inputs, and ranks that respect edge direction (every edge goes from a
// lower rank to a strictly higher rank). Nested templates are validated
// recursively. All defects are collected, not just the first.
func Validate(g *Graph) []error {
	return validate(g, g.Name)
}

func validate(g *Graph, label string) []error {
	var errs []error
	fail := func(node, format string, args ...any) {
		errs = append(errs, &ValidationError{Graph: label, Node: node, Message: fmt.Sprintf(format, args...)})
	}

	if len(g.Nodes) == 0 {
		fail("", "graph has no nodes")
		return errs
	}

	seen := make(map[string]bool, len(g.Nodes))
	for i := range g.Nodes {
		n := &g.Nodes[i]
		if n.Name == "" {
			fail("", "node %d has no name", i)
			continue
		}
		if seen[n.Name] {
			fail(n.Name, "duplicate node name")
		}
		seen[n.Name] = true
		if n.Op == "" {
			fail(n.Name, "node has no op")
		}
		if n.Output != nil {
			errs = append(errs, validateShape(label, n.Name, *n.Output)...)
		}
		for _, p := range n.Inputs {
			if p.Name == "" {
				fail(n.Name, "input with empty name")
			}
			errs = append(errs, validateShape(label, n.Name, p.Shape)...)
		}
		if n.Nested != nil {
			errs = append(errs, validateNested(n.Nested, label+"/"+n.Name)...)
		}
		for key, child := range n.Cases {
			if child == nil {
				fail(n.Name, "case %q has no graph", key)
				continue
			}
			errs = append(errs, validateNested(child, fmt.Sprintf("%s/%s[%s]", label, n.Name, key))...)
		}
	}

	for _, e := range g.Edges {
		src := g.NodeByName(e.From)
		if src == nil {
			fail("", "edge from unknown node %q", e.From)
			continue
		}
		dst := g.NodeByName(e.To)
		if dst == nil {
			fail("", "edge to unknown node %q", e.To)
			continue
		}
		if src.Output == nil {
			fail(e.From, "edge source has no output")
		}
		if dst.InputByName(e.Input) == nil {
			fail(e.To, "edge targets unknown input %q", e.Input)
		}
		if src.Rank >= dst.Rank {
			fail(e.To, "edge %s(rank %d) -> %s(rank %d) violates rank ordering",
				e.From, src.Rank, e.To, dst.Rank)
		}
	}

	if g.Output != "" {
		out := g.NodeByName(g.Output)
		switch {
		case out == nil:
			fail("", "output names unknown node %q", g.Output)
		case out.Output == nil:
			fail(g.Output, "output node has no output")
		}
	}

	return errs
}

func validateNested(g *Graph, label string) []error {
	errs := validate(g, label)
	if g.Output == "" {
		errs = append(errs, &ValidationError{Graph: label, Message: "nested graph must name an output node"})
	}
	return errs
}

func validateShape(graph, node string, s Shape) []error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, &ValidationError{Graph: graph, Node: node, Message: fmt.Sprintf(format, args...)})
	}

	switch s.Kind {
	case "scalar", "set":
	case "list":
		if len(s.Elems) == 0 {
			fail("list shape needs at least one element")
		}
		for _, e := range s.Elems {
			errs = append(errs, validateShape(graph, node, e)...)
		}
	case "bundle":
		if len(s.Fields) == 0 {
			fail("bundle shape needs at least one field")
		}
		names := make(map[string]bool, len(s.Fields))
		for _, f := range s.Fields {
			if f.Name == "" {
				fail("bundle field with empty name")
			}
			if names[f.Name] {
				fail("duplicate bundle field %q", f.Name)
			}
			names[f.Name] = true
			errs = append(errs, validateShape(graph, node, f.Shape)...)
		}
	case "dict", "ref":
		if s.Value != nil {
			errs = append(errs, validateShape(graph, node, *s.Value)...)
		}
	default:
		fail("unknown shape kind %q", s.Kind)
	}
	return errs
}
