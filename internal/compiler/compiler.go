// Package compiler turns CUE graph definitions into runnable graph
// descriptions.
//
// A definition file declares graphs under the top-level "graph" field,
// one per label:
//
//	graph: prices: {
//		nodes: [
//			{name: "src", op: "feed", rank: 0, config: {...}, output: {kind: "scalar"}},
//			{name: "sum", op: "add", rank: 1, inputs: [...], output: {kind: "scalar"}},
//		]
//		edges: [
//			{from: "src", to: "sum", input: "lhs"},
//		]
//	}
//
// CUE carries the schema work: defaults, constraints and cross-file
// unification happen before compilation sees a value. The compiler
// decodes the unified value and runs the same structural validation the
// engine builder enforces, so wiring mistakes surface with file
// positions instead of at build time.
package compiler

import (
	"errors"
	"fmt"

	"cuelang.org/go/cue"

	"github.com/roach88/tsflow/internal/desc"
)

// CompileGraph decodes one CUE graph value into a description. The
// graph's name defaults to its CUE label when the definition omits it.
func CompileGraph(v cue.Value) (*desc.Graph, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	var g desc.Graph
	if err := v.Decode(&g); err != nil {
		return nil, formatCUEError(err)
	}
	if g.Name == "" {
		if sel := v.Path().Selectors(); len(sel) > 0 {
			g.Name = sel[len(sel)-1].String()
		}
	}

	if errs := desc.Validate(&g); len(errs) > 0 {
		return nil, &CompileError{
			Path:    "graph." + g.Name,
			Message: errors.Join(errs...).Error(),
			Pos:     v.Pos(),
		}
	}
	return &g, nil
}

// CompileGraphs extracts every graph declared under the top-level
// "graph" field, in label order.
func CompileGraphs(v cue.Value) ([]*desc.Graph, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	graphsVal := v.LookupPath(cue.ParsePath("graph"))
	if !graphsVal.Exists() {
		return nil, &CompileError{
			Path:    "graph",
			Message: "no graphs defined",
			Pos:     v.Pos(),
		}
	}

	iter, err := graphsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var graphs []*desc.Graph
	for iter.Next() {
		g, err := CompileGraph(iter.Value())
		if err != nil {
			return nil, fmt.Errorf("graph %s: %w", iter.Selector(), err)
		}
		graphs = append(graphs, g)
	}
	if len(graphs) == 0 {
		return nil, &CompileError{
			Path:    "graph",
			Message: "no graphs defined",
			Pos:     graphsVal.Pos(),
		}
	}
	return graphs, nil
}
