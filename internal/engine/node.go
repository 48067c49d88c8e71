package engine

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"

	"github.com/roach88/tsflow/internal/desc"
	"github.com/roach88/tsflow/internal/ts"
)

// NodeState is a node's lifecycle position.
type NodeState int

const (
	NodeConstructed NodeState = iota + 1
	NodeInitialised
	NodeStarted
	NodeStopped
	NodeDisposed
)

var nodeStateNames = map[NodeState]string{
	NodeConstructed: "constructed",
	NodeInitialised: "initialised",
	NodeStarted:     "started",
	NodeStopped:     "stopped",
	NodeDisposed:    "disposed",
}

func (s NodeState) String() string { return nodeStateNames[s] }

// EvalFunc is a node operation's per-cycle evaluation function. It must
// not block; only the real-time clock's advance blocks.
type EvalFunc func(c *Context) error

// HookFunc is a lifecycle hook (init, start, stop, dispose).
type HookFunc func(c *Context) error

// OpDef defines a registered node operation: its evaluation function and
// optional lifecycle hooks.
type OpDef struct {
	Name    string
	Eval    EvalFunc
	Init    HookFunc
	Start   HookFunc
	Stop    HookFunc
	Dispose HookFunc
}

// Node is one evaluation unit of a graph.
type Node struct {
	graph *Graph
	spec  desc.Node
	def   *OpDef
	idx   int

	inputs     []*Input
	inputIndex map[string]int
	out        *Output
	errOut     *Output

	sched *Scheduler
	state NodeState

	// wakeTime is the earliest input-driven activation, MaxTime when no
	// active input has ticked ahead of the node.
	wakeTime ts.EngineTime

	scratch map[string]any
	mesh    *MeshHandle // non-nil for nodes inside a mesh child
	ctx     *Context
}

// Name is the node's description name.
func (n *Node) Name() string { return n.spec.Name }

// Op is the node's operation name.
func (n *Node) Op() string { return n.spec.Op }

// Rank is the node's topological position within its graph.
func (n *Node) Rank() int { return n.spec.Rank }

// State is the node's lifecycle state.
func (n *Node) State() NodeState { return n.state }

// Path is the node's identity across nesting: the owning graph's path plus
// the node name.
func (n *Node) Path() string { return n.graph.PathString() + "/" + n.spec.Name }

// rankPath locates the node for error reporting.
func (n *Node) rankPath() string {
	return fmt.Sprintf("%s:rank %d", n.graph.PathString(), n.spec.Rank)
}

// Input returns the named input, or nil.
func (n *Node) Input(name string) *Input {
	i, ok := n.inputIndex[name]
	if !ok {
		return nil
	}
	return n.inputs[i]
}

// Inputs returns the node's inputs in declaration order.
func (n *Node) Inputs() []*Input { return n.inputs }

// Output is the node's output, nil for sinks.
func (n *Node) Output() *Output { return n.out }

// ErrorOutput is the node's declared error output, nil if undeclared.
func (n *Node) ErrorOutput() *Output { return n.errOut }

// Scheduler is the node's future-activation queue.
func (n *Node) Scheduler() *Scheduler { return n.sched }

// nextEligibleTime is the earliest instant the node wants to run.
func (n *Node) nextEligibleTime() ts.EngineTime {
	return ts.Min(n.wakeTime, n.sched.NextTime())
}

// resync refreshes the graph's cached schedule slot for this node.
func (n *Node) resync() { n.graph.refreshNodeSchedule(n) }

// eligibleNow reports whether the node must run in the cycle at t:
// scheduled-now, or woken by an active input modification.
func (n *Node) eligibleNow(t ts.EngineTime) bool {
	return n.wakeTime == t || n.sched.IsScheduledNow()
}

// evaluate runs the node's operation at t with error capture at the node
// boundary. A failure lands on the declared error output when there is
// one; otherwise it is returned and aborts the owning graph.
func (n *Node) evaluate(t ts.EngineTime) error {
	g := n.graph
	for _, ob := range g.observers {
		ob.BeforeNodeEval(n, t)
	}

	err := n.runCaptured()

	n.sched.consume(t)
	if n.wakeTime <= t {
		n.wakeTime = ts.MaxTime
	}
	n.resync()

	if err != nil && n.errOut != nil {
		g.logger.Debug("node error captured", "node", n.Path(), "error", err)
		n.errOut.SetScalar(err)
		err = nil
	}

	for _, ob := range g.observers {
		ob.AfterNodeEval(n, t)
	}
	return err
}

// runCaptured invokes the eval function, converting returned errors and
// panics into NodeErrors carrying the node's identity and rank path. The
// return type is the error interface so a clean run yields a nil that
// callers can compare against.
func (n *Node) runCaptured() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &NodeError{
				Kind:     ErrKindPanic,
				Message:  fmt.Sprintf("%v", r),
				Node:     n.spec.Name,
				RankPath: n.rankPath(),
				Stack:    truncateStack(debug.Stack(), n.graph.tracebackDepth),
				Inputs:   n.capturedInputs(),
			}
		}
	}()

	if evalErr := n.def.Eval(n.ctx); evalErr != nil {
		if ne := AsNodeError(evalErr); ne != nil {
			return ne
		}
		return &NodeError{
			Kind:     ErrKindEval,
			Message:  evalErr.Error(),
			Node:     n.spec.Name,
			RankPath: n.rankPath(),
			Inputs:   n.capturedInputs(),
		}
	}
	return nil
}

func (n *Node) capturedInputs() map[string]ts.Value {
	if !n.graph.captureInputs {
		return nil
	}
	vals := make(map[string]ts.Value, len(n.inputs))
	for _, in := range n.inputs {
		vals[in.Name()] = in.Value()
	}
	return vals
}

func truncateStack(stack []byte, depth int) string {
	if depth <= 0 {
		return string(stack)
	}
	lines := strings.Split(string(stack), "\n")
	// Two lines per frame plus the goroutine header.
	limit := 1 + 2*depth
	if len(lines) > limit {
		lines = lines[:limit]
	}
	return strings.Join(lines, "\n")
}

// runHook executes a lifecycle hook if the operation defines it.
func (n *Node) runHook(hook HookFunc, what string) error {
	if hook == nil {
		return nil
	}
	if err := hook(n.ctx); err != nil {
		return fmt.Errorf("%s node %q: %w", what, n.Path(), err)
	}
	return nil
}

func (n *Node) initialise() error {
	if n.state != NodeConstructed {
		return fmt.Errorf("initialise node %q: state is %s", n.Path(), n.state)
	}
	if err := n.runHook(n.def.Init, "initialise"); err != nil {
		return err
	}
	n.state = NodeInitialised
	return nil
}

func (n *Node) start() error {
	for _, ob := range n.graph.observers {
		ob.BeforeNodeStart(n)
	}
	if err := n.runHook(n.def.Start, "start"); err != nil {
		return err
	}
	n.state = NodeStarted
	for _, ob := range n.graph.observers {
		ob.AfterNodeStart(n)
	}
	return nil
}

func (n *Node) stop() error {
	for _, ob := range n.graph.observers {
		ob.BeforeNodeStop(n)
	}
	if err := n.runHook(n.def.Stop, "stop"); err != nil {
		return err
	}
	n.state = NodeStopped
	for _, ob := range n.graph.observers {
		ob.AfterNodeStop(n)
	}
	return nil
}

// dispose releases the node. Inputs are unbound so no subscriber
// back-reference dangles; dispose is called exactly once, by the owner.
func (n *Node) dispose() error {
	if n.state == NodeDisposed {
		return nil
	}
	if err := n.runHook(n.def.Dispose, "dispose"); err != nil {
		return err
	}
	for _, in := range n.inputs {
		in.unbindAll()
	}
	n.state = NodeDisposed
	return nil
}

// Context is the evaluation context handed to operation functions. It
// exposes the node's edges plus the injected capabilities (scheduler,
// clock, per-node state) requested in the signature.
type Context struct {
	node *Node
}

// Node is the node being evaluated.
func (c *Context) Node() *Node { return c.node }

// Input returns the named input, or nil.
func (c *Context) Input(name string) *Input { return c.node.Input(name) }

// Output is the node's output.
func (c *Context) Output() *Output { return c.node.out }

// ErrorOutput is the node's declared error output, nil if undeclared.
func (c *Context) ErrorOutput() *Output { return c.node.errOut }

// Scheduler is the node's future-activation queue.
func (c *Context) Scheduler() *Scheduler { return c.node.sched }

// Clock is the owning graph's evaluation clock.
func (c *Context) Clock() Clock { return c.node.graph.clock }

// EvaluationTime is the current cycle's instant.
func (c *Context) EvaluationTime() ts.EngineTime {
	return c.node.graph.clock.EvaluationTime()
}

// State is the node's scratch map, surviving across cycles until dispose.
func (c *Context) State() map[string]any {
	if c.node.scratch == nil {
		c.node.scratch = make(map[string]any)
	}
	return c.node.scratch
}

// Logger is the owning graph's logger.
func (c *Context) Logger() *slog.Logger { return c.node.graph.logger }

// Mesh is the handle to the enclosing mesh, non-nil only for nodes inside
// a mesh child graph.
func (c *Context) Mesh() *MeshHandle { return c.node.mesh }

// Config returns a scalar configuration value from the description.
func (c *Context) Config(key string) (any, bool) {
	v, ok := c.node.spec.Config[key]
	return v, ok
}

// ConfigString returns a string config value, or the fallback.
func (c *Context) ConfigString(key, fallback string) string {
	if v, ok := c.node.spec.Config[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return fallback
}

// ConfigBool returns a bool config value, or the fallback.
func (c *Context) ConfigBool(key string, fallback bool) bool {
	if v, ok := c.node.spec.Config[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return fallback
}
