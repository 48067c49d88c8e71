package engine

import "github.com/roach88/tsflow/internal/ts"

// Observer receives lifecycle hooks around graph and node start, stop and
// evaluation. Observers are for tracing, profiling and inspection; they
// must not mutate engine state.
type Observer interface {
	BeforeGraphStart(g *Graph)
	AfterGraphStart(g *Graph)
	BeforeGraphStop(g *Graph)
	AfterGraphStop(g *Graph)

	BeforeNodeStart(n *Node)
	AfterNodeStart(n *Node)
	BeforeNodeStop(n *Node)
	AfterNodeStop(n *Node)

	BeforeGraphEval(g *Graph, t ts.EngineTime)
	AfterGraphEval(g *Graph, t ts.EngineTime)
	BeforeNodeEval(n *Node, t ts.EngineTime)
	AfterNodeEval(n *Node, t ts.EngineTime)
}

// BaseObserver is a no-op Observer for embedding, so implementations only
// override the hooks they care about.
type BaseObserver struct{}

func (BaseObserver) BeforeGraphStart(*Graph) {}
func (BaseObserver) AfterGraphStart(*Graph)  {}
func (BaseObserver) BeforeGraphStop(*Graph)  {}
func (BaseObserver) AfterGraphStop(*Graph)   {}

func (BaseObserver) BeforeNodeStart(*Node) {}
func (BaseObserver) AfterNodeStart(*Node)  {}
func (BaseObserver) BeforeNodeStop(*Node)  {}
func (BaseObserver) AfterNodeStop(*Node)   {}

func (BaseObserver) BeforeGraphEval(*Graph, ts.EngineTime) {}
func (BaseObserver) AfterGraphEval(*Graph, ts.EngineTime)  {}
func (BaseObserver) BeforeNodeEval(*Node, ts.EngineTime)   {}
func (BaseObserver) AfterNodeEval(*Node, ts.EngineTime)    {}
