package desc

// Capability names a runtime facility injected into a node's evaluation
// context, requested by the wiring front end in the node signature.
type Capability string

const (
	// CapScheduler injects the node's own scheduler.
	CapScheduler Capability = "scheduler"
	// CapClock injects the graph's evaluation clock.
	CapClock Capability = "clock"
	// CapState injects a per-node scratch map that survives across cycles.
	CapState Capability = "state"
	// CapLogger injects the graph's logger.
	CapLogger Capability = "logger"
)

// Shape describes the container type of a time-series edge. Kind is one of
// scalar, list, bundle, dict, set, ref.
type Shape struct {
	Kind string `yaml:"kind" json:"kind"`

	// Elems lists element shapes for fixed-arity lists.
	Elems []Shape `yaml:"elems,omitempty" json:"elems,omitempty"`

	// Fields lists named field shapes for bundles.
	Fields []Field `yaml:"fields,omitempty" json:"fields,omitempty"`

	// Value is the per-key shape for dicts, or the referent shape for refs.
	// Defaults to scalar when omitted.
	Value *Shape `yaml:"value,omitempty" json:"value,omitempty"`
}

// Field is a named bundle field.
type Field struct {
	Name  string `yaml:"name" json:"name"`
	Shape Shape  `yaml:"shape" json:"shape"`
}

// Scalar is the shape most edges carry.
func Scalar() Shape { return Shape{Kind: "scalar"} }

// DictOf is a dict shape with the given per-key value shape.
func DictOf(value Shape) Shape { return Shape{Kind: "dict", Value: &value} }

// SetShape is a set shape.
func SetShape() Shape { return Shape{Kind: "set"} }

// Port is a named input of a node. Inputs are active (subscribed, waking
// the node on modification) unless marked passive.
type Port struct {
	Name    string `yaml:"name" json:"name"`
	Shape   Shape  `yaml:"shape" json:"shape"`
	Passive bool   `yaml:"passive,omitempty" json:"passive,omitempty"`
}

// Node is one resolved node of a graph description: which operation runs,
// its topological rank, scalar configuration, and edge shapes. The runtime
// resolves Op against its operation registry at build time.
type Node struct {
	Name   string         `yaml:"name" json:"name"`
	Op     string         `yaml:"op" json:"op"`
	Rank   int            `yaml:"rank" json:"rank"`
	Config map[string]any `yaml:"config,omitempty" json:"config,omitempty"`

	Inputs []Port `yaml:"inputs,omitempty" json:"inputs,omitempty"`

	// Output is the node's output shape; nil for sink-only nodes.
	Output *Shape `yaml:"output,omitempty" json:"output,omitempty"`

	// ErrorOutput declares a second output carrying captured evaluation
	// errors. Without it, an evaluation error is fatal for the graph.
	ErrorOutput bool `yaml:"error_output,omitempty" json:"error_output,omitempty"`

	Injects []Capability `yaml:"injects,omitempty" json:"injects,omitempty"`

	// Nested is the child-graph template for map, mesh and try nodes.
	Nested *Graph `yaml:"nested,omitempty" json:"nested,omitempty"`

	// Cases maps switch-key values to child-graph descriptions.
	Cases map[string]*Graph `yaml:"cases,omitempty" json:"cases,omitempty"`
}

// Edge wires a source node's output (optionally one field of a composite
// output) into a named input of a destination node.
type Edge struct {
	From      string `yaml:"from" json:"from"`
	FromField string `yaml:"from_field,omitempty" json:"from_field,omitempty"`
	To        string `yaml:"to" json:"to"`
	Input     string `yaml:"input" json:"input"`
}

// Graph is a resolved graph description as handed over by the wiring front
// end: ordered node builders plus an edge list. For nested templates,
// Output names the node whose output is the child graph's result.
type Graph struct {
	Name   string `yaml:"name" json:"name"`
	Nodes  []Node `yaml:"nodes" json:"nodes"`
	Edges  []Edge `yaml:"edges,omitempty" json:"edges,omitempty"`
	Output string `yaml:"output,omitempty" json:"output,omitempty"`
}

// NodeByName returns the named node spec, or nil.
func (g *Graph) NodeByName(name string) *Node {
	for i := range g.Nodes {
		if g.Nodes[i].Name == name {
			return &g.Nodes[i]
		}
	}
	return nil
}

// InputByName returns the named port of a node spec, or nil.
func (n *Node) InputByName(name string) *Port {
	for i := range n.Inputs {
		if n.Inputs[i].Name == name {
			return &n.Inputs[i]
		}
	}
	return nil
}

// Injected reports whether the node requests a capability.
func (n *Node) Injected(c Capability) bool {
	for _, have := range n.Injects {
		if have == c {
			return true
		}
	}
	return false
}
