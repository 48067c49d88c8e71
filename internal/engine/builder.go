package engine

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/roach88/tsflow/internal/desc"
	"github.com/roach88/tsflow/internal/ts"
)

// GraphOption configures a built graph.
type GraphOption func(*Graph)

// WithLogger sets the graph's logger. Nested graphs inherit it.
func WithLogger(l *slog.Logger) GraphOption {
	return func(g *Graph) { g.logger = l }
}

// WithObserver attaches an observer to the graph and every nested graph
// built beneath it.
func WithObserver(ob Observer) GraphOption {
	return func(g *Graph) { g.observers = append(g.observers, ob) }
}

// WithTracebackDepth limits panic stack traces captured into node errors
// to the given number of frames. Zero keeps the full stack.
func WithTracebackDepth(depth int) GraphOption {
	return func(g *Graph) { g.tracebackDepth = depth }
}

// WithInputCapture records a snapshot of every input value into captured
// node errors. Off by default: snapshots cost a full value copy per
// failure.
func WithInputCapture() GraphOption {
	return func(g *Graph) { g.captureInputs = true }
}

// Build resolves a graph description against an operation registry and
// wires it to a clock. The returned graph is Constructed: call Initialise
// and Start, or hand it straight to Run.
func Build(d *desc.Graph, reg *Registry, clock Clock, opts ...GraphOption) (*Graph, error) {
	ec, ok := clock.(engineClock)
	if !ok {
		return nil, &BuildError{Graph: d.Name, Message: fmt.Sprintf("unsupported clock type %T", clock)}
	}
	if errs := desc.Validate(d); len(errs) > 0 {
		return nil, &BuildError{Graph: d.Name, Message: errors.Join(errs...).Error()}
	}

	g := &Graph{
		name:     d.Name,
		clock:    ec,
		registry: reg,
		state:    GraphConstructed,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(g)
	}
	if err := populate(g, d); err != nil {
		return nil, err
	}
	return g, nil
}

// buildNested constructs a child graph beneath a construct node: same
// registry, logger and observers, a nested clock delegating to the
// parent's, and a path extended with the parent graph's next child
// ordinal. Validation already ran on the template when the root was built.
func buildNested(d *desc.Graph, parent *Node) (*Graph, error) {
	pg := parent.graph
	g := &Graph{
		name:           d.Name,
		path:           append(slices.Clone(pg.path), pg.childSeq),
		clock:          newNestedClock(pg.clock, parent),
		registry:       pg.registry,
		state:          GraphConstructed,
		observers:      pg.observers,
		logger:         pg.logger,
		parentNode:     parent,
		tracebackDepth: pg.tracebackDepth,
		captureInputs:  pg.captureInputs,
	}
	pg.childSeq++
	if err := populate(g, d); err != nil {
		return nil, err
	}
	for _, n := range g.nodes {
		n.mesh = parent.mesh
	}
	return g, nil
}

// populate constructs nodes in evaluation order (ascending rank, ties by
// declaration order) and wires the description's edges.
func populate(g *Graph, d *desc.Graph) error {
	order := make([]int, len(d.Nodes))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		return d.Nodes[a].Rank - d.Nodes[b].Rank
	})

	g.nodes = make([]*Node, 0, len(d.Nodes))
	for idx, di := range order {
		spec := d.Nodes[di]
		def, err := g.registry.Lookup(spec.Op)
		if err != nil {
			return &BuildError{Graph: d.Name, Node: spec.Name, Message: err.Error()}
		}
		n := &Node{
			graph:      g,
			spec:       spec,
			def:        def,
			idx:        idx,
			inputIndex: make(map[string]int, len(spec.Inputs)),
			state:      NodeConstructed,
			wakeTime:   ts.MaxTime,
		}
		n.sched = newScheduler(n)
		n.ctx = &Context{node: n}
		for i, port := range spec.Inputs {
			in, err := newInput(port, n)
			if err != nil {
				return &BuildError{Graph: d.Name, Node: spec.Name, Message: err.Error()}
			}
			n.inputs = append(n.inputs, in)
			n.inputIndex[port.Name] = i
		}
		if spec.Output != nil {
			n.out, err = newOutput(*spec.Output, n, nil, g, spec.Name)
			if err != nil {
				return &BuildError{Graph: d.Name, Node: spec.Name, Message: err.Error()}
			}
		}
		if spec.ErrorOutput {
			n.errOut, err = newOutput(desc.Scalar(), n, nil, g, spec.Name+".err")
			if err != nil {
				return &BuildError{Graph: d.Name, Node: spec.Name, Message: err.Error()}
			}
		}
		g.nodes = append(g.nodes, n)
	}

	g.schedule = make([]ts.EngineTime, len(g.nodes))
	for i := range g.schedule {
		g.schedule[i] = ts.MaxTime
	}

	for _, e := range d.Edges {
		src := g.NodeByName(e.From)
		dst := g.NodeByName(e.To)
		out := src.out
		if e.FromField != "" {
			out = out.Field(e.FromField)
			if out == nil {
				return &BuildError{Graph: d.Name, Node: e.From,
					Message: fmt.Sprintf("output has no field %q", e.FromField)}
			}
		}
		dst.Input(e.Input).BindOutput(out)
	}

	if d.Output != "" {
		g.outputNode = g.NodeByName(d.Output)
	}
	return nil
}
