package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/roach88/tsflow/internal/ts"
)

// GraphState is a graph's lifecycle position.
type GraphState int

const (
	GraphConstructed GraphState = iota + 1
	GraphInitialised
	GraphStarted
	GraphStopped
	GraphDisposed
)

var graphStateNames = map[GraphState]string{
	GraphConstructed: "constructed",
	GraphInitialised: "initialised",
	GraphStarted:     "started",
	GraphStopped:     "stopped",
	GraphDisposed:    "disposed",
}

func (s GraphState) String() string { return graphStateNames[s] }

// Graph is an ordered sequence of nodes plus an evaluation clock. The node
// order is ascending rank (ties broken by declaration order), which is
// exactly the order one evaluation cycle visits them. A graph owns its
// nodes; nodes never outlive their graph.
type Graph struct {
	name string

	// path locates the graph inside dynamic constructs: empty at the
	// root, parent path plus a child ordinal when nested.
	path []int

	nodes    []*Node
	schedule []ts.EngineTime // cached per-node next eligible time

	clock    engineClock
	registry *Registry
	state    GraphState

	cursor     int // index of the node currently evaluating
	evaluating bool

	observers []Observer
	logger    *slog.Logger

	parentNode *Node // construct node owning this nested graph, nil at root
	outputNode *Node // result node for nested graphs, per the description

	runID         string
	stopRequested atomic.Bool

	pushSources map[string]pushSource

	tracebackDepth int
	captureInputs  bool
	childSeq       int
}

// Name is the graph's description name.
func (g *Graph) Name() string { return g.name }

// State is the graph's lifecycle state.
func (g *Graph) State() GraphState { return g.state }

// Clock is the graph's evaluation clock.
func (g *Graph) Clock() Clock { return g.clock }

// RunID identifies the current run, empty before the first Run.
func (g *Graph) RunID() string { return g.runID }

// Nodes returns the graph's nodes in evaluation order.
func (g *Graph) Nodes() []*Node { return g.nodes }

// NodeByName returns the named node, or nil.
func (g *Graph) NodeByName(name string) *Node {
	for _, n := range g.nodes {
		if n.spec.Name == name {
			return n
		}
	}
	return nil
}

// PathString renders the graph's nesting path: "root" at the top,
// "root/2/0" two constructs deep.
func (g *Graph) PathString() string {
	if len(g.path) == 0 {
		return "root"
	}
	parts := make([]string, len(g.path)+1)
	parts[0] = "root"
	for i, p := range g.path {
		parts[i+1] = strconv.Itoa(p)
	}
	return strings.Join(parts, "/")
}

// pushSource pairs a push node with its queue so the run loop can wake
// the node when values arrive off-thread.
type pushSource struct {
	node *Node
	q    *PushQueue
}

// root walks up through construct owners to the graph Run drives.
func (g *Graph) root() *Graph {
	r := g
	for r.parentNode != nil {
		r = r.parentNode.graph
	}
	return r
}

// PushQueue returns the cross-thread bridge registered by the named push
// source node.
func (g *Graph) PushQueue(nodeName string) (*PushQueue, error) {
	src, ok := g.root().pushSources[nodeName]
	if !ok {
		return nil, fmt.Errorf("graph %s: no push queue registered for node %q", g.PathString(), nodeName)
	}
	return src.q, nil
}

// Push sources register on the root graph: the run loop only sees the
// root, and nested sources must wake their construct chain too.
func (g *Graph) registerPushQueue(n *Node, q *PushQueue) {
	root := g.root()
	if root.pushSources == nil {
		root.pushSources = make(map[string]pushSource)
	}
	root.pushSources[n.Name()] = pushSource{node: n, q: q}
}

// wakePushSources wakes every push node with values pending, plus the
// constructs above it for nested sources. Runs on the engine thread; the
// only cross-thread state touched is the queue's own mutex.
func (g *Graph) wakePushSources() {
	now := g.clock.EvaluationTime()
	for _, src := range g.pushSources {
		if src.q.Pending() == 0 {
			continue
		}
		src.node.graph.wakeNodeAt(src.node, now)
		for p := src.node.graph.parentNode; p != nil; p = p.graph.parentNode {
			p.graph.wakeNodeAt(p, now)
		}
	}
}

// wakeNodeAt marks a node for activation at t. A notification raised
// mid-cycle by a producer whose rank is not strictly below the target's is
// deferred to the next cycle, preserving rank-ordered visibility.
func (g *Graph) wakeNodeAt(n *Node, t ts.EngineTime) {
	now := g.clock.EvaluationTime()
	if g.evaluating && t == now && n.spec.Rank <= g.nodes[g.cursor].spec.Rank {
		t = t.Next()
	}
	if t < n.wakeTime {
		n.wakeTime = t
	}
	g.refreshNodeSchedule(n)
}

// refreshNodeSchedule recomputes the cached schedule slot for a node and
// propagates future activations to the clock (and, through a nested clock,
// to the owning construct node in the parent graph).
func (g *Graph) refreshNodeSchedule(n *Node) {
	t := n.nextEligibleTime()
	g.schedule[n.idx] = t
	if t > g.clock.EvaluationTime() && t < ts.MaxTime {
		g.clock.UpdateNextScheduledEvaluationTime(t)
	}
}

// nextScheduledTime is the earliest activation across all nodes.
func (g *Graph) nextScheduledTime() ts.EngineTime {
	next := ts.MaxTime
	for _, t := range g.schedule {
		next = ts.Min(next, t)
	}
	return next
}

// scheduledNow reports whether any node must run in a cycle at t. Used by
// constructs to decide whether a nested graph has work this cycle.
func (g *Graph) scheduledNow(t ts.EngineTime) bool {
	for _, st := range g.schedule {
		if st <= t {
			return true
		}
	}
	return false
}

// evaluateCycle runs one full pass at the clock's current evaluation time:
// nodes in ascending rank order, each evaluated iff scheduled-now or woken
// by an active input modification.
func (g *Graph) evaluateCycle() error {
	t := g.clock.EvaluationTime()
	g.clock.startCycle()
	g.evaluating = true
	defer func() { g.evaluating = false }()

	for _, ob := range g.observers {
		ob.BeforeGraphEval(g, t)
	}

	for i, n := range g.nodes {
		g.cursor = i
		if g.schedule[i] > t {
			continue
		}
		if !n.eligibleNow(t) {
			// A consumed or unscheduled activation left a stale slot.
			g.refreshNodeSchedule(n)
			continue
		}
		if err := n.evaluate(t); err != nil {
			g.evaluating = false
			for _, ob := range g.observers {
				ob.AfterGraphEval(g, t)
			}
			return fmt.Errorf("graph %s aborted: %w", g.PathString(), err)
		}
	}

	for _, ob := range g.observers {
		ob.AfterGraphEval(g, t)
	}
	return nil
}

// Initialise transitions Constructed -> Initialised, visiting nodes in
// topological order. Called exactly once, by the graph's owner.
func (g *Graph) Initialise() error {
	if g.state != GraphConstructed {
		return fmt.Errorf("initialise graph %s: state is %s", g.PathString(), g.state)
	}
	for _, n := range g.nodes {
		if err := n.initialise(); err != nil {
			return err
		}
	}
	g.state = GraphInitialised
	return nil
}

// Start transitions into Started, recursing into every node (and, through
// construct hooks, into every active nested graph). All nodes wake for the
// first cycle; operations that have nothing to say simply observe invalid
// inputs and stay silent.
func (g *Graph) Start() error {
	if g.state != GraphInitialised && g.state != GraphStopped {
		return fmt.Errorf("start graph %s: state is %s", g.PathString(), g.state)
	}
	for _, ob := range g.observers {
		ob.BeforeGraphStart(g)
	}
	now := g.clock.EvaluationTime()
	for _, n := range g.nodes {
		if err := n.start(); err != nil {
			return err
		}
		n.wakeTime = ts.Min(n.wakeTime, now)
		g.refreshNodeSchedule(n)
	}
	g.state = GraphStarted
	for _, ob := range g.observers {
		ob.AfterGraphStart(g)
	}
	g.logger.Debug("graph started", "graph", g.PathString(), "nodes", len(g.nodes))
	return nil
}

// Stop transitions into Stopped, recursing in reverse order.
func (g *Graph) Stop() error {
	if g.state != GraphStarted {
		return nil
	}
	for _, ob := range g.observers {
		ob.BeforeGraphStop(g)
	}
	var firstErr error
	for i := len(g.nodes) - 1; i >= 0; i-- {
		if err := g.nodes[i].stop(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	g.state = GraphStopped
	for _, ob := range g.observers {
		ob.AfterGraphStop(g)
	}
	g.logger.Debug("graph stopped", "graph", g.PathString())
	return firstErr
}

// Dispose releases the graph in reverse topological order. Called exactly
// once, by the owner that constructed it; components received by reference
// are never disposed by the receiver.
func (g *Graph) Dispose() error {
	if g.state == GraphDisposed {
		return nil
	}
	if g.state == GraphStarted {
		if err := g.Stop(); err != nil {
			return err
		}
	}
	var firstErr error
	for i := len(g.nodes) - 1; i >= 0; i-- {
		if err := g.nodes[i].dispose(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	g.state = GraphDisposed
	return firstErr
}

// RequestStop asks a running graph to stop between cycles. Safe from any
// goroutine; an in-progress cycle always completes.
func (g *Graph) RequestStop() {
	g.stopRequested.Store(true)
	if pw, ok := g.clock.(pushWaker); ok {
		pw.SignalPush()
	}
}

// Run drives the root graph from start until end, no more work remains
// (simulation), the context is cancelled, or RequestStop is called.
// Cancellation is cooperative: checked once per cycle, never interrupting
// an in-progress cycle.
func (g *Graph) Run(ctx context.Context, start, end ts.EngineTime) error {
	if g.parentNode != nil {
		return fmt.Errorf("graph %s: nested graphs are driven by their construct, not Run", g.PathString())
	}
	if start <= ts.MinTime {
		start = ts.MinTime.Next()
	}
	if g.state == GraphConstructed {
		if err := g.Initialise(); err != nil {
			return err
		}
	}
	g.stopRequested.Store(false)
	g.runID = uuid.NewString()
	g.clock.setEvaluationTime(start)
	if err := g.Start(); err != nil {
		return err
	}
	defer g.Stop()

	g.logger.Info("graph run starting",
		"graph", g.name, "run_id", g.runID, "start", start.String(), "end", end.String())

	_, realTime := g.clock.(*RealTimeClock)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if g.stopRequested.Load() {
			return nil
		}
		if err := g.evaluateCycle(); err != nil {
			g.logger.Error("graph run aborted", "run_id", g.runID, "error", err)
			return err
		}

		next := g.nextScheduledTime()
		if next == ts.MaxTime && !realTime {
			// Simulation with nothing scheduled is finished.
			return nil
		}
		if next > end {
			if !realTime {
				return nil
			}
			// Real time idles until the end bound, still accepting pushes.
			next = end
		}
		if next < ts.MaxTime {
			g.clock.UpdateNextScheduledEvaluationTime(next)
		}
		g.clock.AdvanceToNextScheduledTime()
		g.wakePushSources()
		if g.clock.EvaluationTime() > end {
			return nil
		}
	}
}
