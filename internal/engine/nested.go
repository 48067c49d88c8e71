package engine

import (
	"fmt"
	"time"

	"github.com/roach88/tsflow/internal/desc"
	"github.com/roach88/tsflow/internal/ts"
)

// registerConstructOps registers the dynamic-graph constructs plus the two
// bridge ops their child templates use.
func registerConstructOps(r *Registry) {
	r.MustRegister(&OpDef{Name: "key", Eval: evalKey})
	r.MustRegister(&OpDef{Name: "parent", Eval: evalParent})
	r.MustRegister(&OpDef{Name: "map", Eval: evalMap, Stop: stopMap, Dispose: disposeMap})
	r.MustRegister(&OpDef{Name: "switch", Eval: evalSwitch, Stop: stopSwitch, Dispose: disposeSwitch})
	r.MustRegister(&OpDef{Name: "mesh", Init: initMesh, Eval: evalMesh, Stop: stopMesh, Dispose: disposeMesh})
	r.MustRegister(&OpDef{Name: "try", Eval: evalTry, Stop: stopTry, Dispose: disposeTry})
}

// nestedClock is the clock of a graph nested inside a construct node. It
// shares the parent clock's notion of now; a child scheduling future work
// wakes the owning construct so the parent drives a cycle down at the
// right instant.
type nestedClock struct {
	parent engineClock
	owner  *Node
}

func newNestedClock(parent engineClock, owner *Node) *nestedClock {
	return &nestedClock{parent: parent, owner: owner}
}

func (c *nestedClock) EvaluationTime() ts.EngineTime { return c.parent.EvaluationTime() }
func (c *nestedClock) Now() ts.EngineTime            { return c.parent.Now() }
func (c *nestedClock) CycleTime() time.Duration      { return c.parent.CycleTime() }

func (c *nestedClock) NextCycleEvaluationTime() ts.EngineTime {
	return c.parent.NextCycleEvaluationTime()
}

func (c *nestedClock) UpdateNextScheduledEvaluationTime(t ts.EngineTime) {
	c.owner.graph.wakeNodeAt(c.owner, t)
}

// AdvanceToNextScheduledTime is a no-op: nested graphs never drive time,
// their construct evaluates them inside the parent's cycle.
func (c *nestedClock) AdvanceToNextScheduledTime() {}

func (c *nestedClock) setEvaluationTime(ts.EngineTime) {}
func (c *nestedClock) startCycle()                     {}

func (c *nestedClock) nextScheduledTime() ts.EngineTime { return c.parent.nextScheduledTime() }

// evalKey ticks the key this child instance was created for, once.
func evalKey(c *Context) error {
	if c.Output().Valid() {
		return nil
	}
	k, ok := c.State()["key"]
	if !ok {
		return fmt.Errorf("key node outside a keyed construct")
	}
	c.Output().SetScalar(k)
	return nil
}

// evalParent mirrors a bound enclosing-graph output into the child. The
// construct wires the bridge's input at child build time.
func evalParent(c *Context) error {
	in := c.Input("in")
	if in == nil {
		return nil
	}
	if in.Modified() {
		return c.Output().Apply(in.Delta())
	}
	// First activation after the source already ticked: seed the snapshot.
	if in.Valid() && !c.Output().Valid() {
		return c.Output().Apply(in.Value())
	}
	return nil
}

// spawnChild builds, wires, initialises and starts one child graph beneath
// a construct node. resolve chooses the enclosing output each "parent"
// bridge binds to; key seeds the template's "key" nodes.
func spawnChild(parent *Node, tmpl *desc.Graph, key ts.Key, resolve func(n *Node) (*Output, error)) (*Graph, error) {
	child, err := buildNested(tmpl, parent)
	if err != nil {
		return nil, err
	}
	for _, n := range child.nodes {
		switch n.spec.Op {
		case "key":
			if n.scratch == nil {
				n.scratch = make(map[string]any)
			}
			n.scratch["key"] = key
		case "parent":
			src, err := resolve(n)
			if err != nil {
				child.Dispose()
				return nil, err
			}
			if src != nil {
				bindBridge(n, src)
			}
		}
	}
	if err := child.Initialise(); err != nil {
		child.Dispose()
		return nil, err
	}
	if err := child.Start(); err != nil {
		child.Dispose()
		return nil, err
	}
	return child, nil
}

// bindBridge gives a "parent" node a synthetic active input bound to an
// output of the enclosing graph. Cross-graph subscription is what wakes
// the child (and, through the nested clock, the construct) when the
// source ticks.
func bindBridge(n *Node, src *Output) {
	in := &Input{node: n, name: "in", kind: src.kind, active: true}
	if n.inputIndex == nil {
		n.inputIndex = make(map[string]int, 1)
	}
	n.inputIndex["in"] = len(n.inputs)
	n.inputs = append(n.inputs, in)
	in.BindOutput(src)
}

// bridgeResolver resolves "parent" bridges against the construct node's
// own inputs: config "input" names the input (default "in"), "field"
// narrows a bundle, and "keyed" selects the per-key entry of a dict input
// for keyed constructs (map, mesh).
func bridgeResolver(construct *Node, key ts.Key) func(n *Node) (*Output, error) {
	return func(n *Node) (*Output, error) {
		name := "in"
		if s, ok := n.spec.Config["input"].(string); ok {
			name = s
		}
		in := construct.Input(name)
		if in == nil {
			return nil, fmt.Errorf("bridge %s: construct %q has no input %q", n.Path(), construct.Name(), name)
		}
		src := in.PeerOutput()
		if src == nil {
			return nil, nil
		}
		if f, ok := n.spec.Config["field"].(string); ok {
			src = src.Field(f)
			if src == nil {
				return nil, fmt.Errorf("bridge %s: input %q has no field %q", n.Path(), name, f)
			}
		}
		if keyed, _ := n.spec.Config["keyed"].(bool); keyed {
			// Mesh children created on demand have no backing entry; their
			// bridge stays unbound and the template works from "key" alone.
			return src.DictEntry(key), nil
		}
		return src, nil
	}
}

// childResult is the output of the child graph's designated result node.
func childResult(g *Graph) *Output {
	if g.outputNode == nil {
		return nil
	}
	return g.outputNode.out
}

// runChildCycle evaluates one cycle of a child graph if any of its nodes
// has work at the current instant. Child failures surface as nested
// errors attributed to the construct.
func runChildCycle(construct *Node, child *Graph) (bool, error) {
	t := child.clock.EvaluationTime()
	if !child.scheduledNow(t) {
		return false, nil
	}
	if err := child.evaluateCycle(); err != nil {
		ne := AsNodeError(err)
		msg := err.Error()
		if ne != nil {
			msg = ne.Message
		}
		return true, &NodeError{
			Kind:     ErrKindNested,
			Message:  fmt.Sprintf("nested graph %s: %s", child.PathString(), msg),
			Node:     construct.Name(),
			RankPath: construct.rankPath(),
		}
	}
	return true, nil
}

// disposeChild tears a child graph down, tolerating stop errors during
// construct disposal.
func disposeChild(construct *Node, child *Graph) {
	if child == nil {
		return
	}
	if err := child.Dispose(); err != nil {
		construct.graph.logger.Warn("child graph dispose failed",
			"construct", construct.Path(), "child", child.PathString(), "error", err)
	}
}
