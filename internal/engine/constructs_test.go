package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tsflow/internal/desc"
	"github.com/roach88/tsflow/internal/ts"
)

// seedDict registers a source op that populates a dict output from its
// "entries" config on the first cycle, then applies per-cycle mutations
// from "later" on subsequent cycles.
func registerSeedDict(reg *Registry) {
	reg.MustRegister(&OpDef{
		Name: "seed_dict",
		Start: func(c *Context) error {
			later, _ := c.Config("later")
			muts, _ := later.([]any)
			c.State()["later"] = muts
			if len(muts) > 0 {
				return c.Scheduler().ScheduleAfter(0, "mutate")
			}
			return nil
		},
		Eval: func(c *Context) error {
			if !c.Output().Valid() {
				entries, _ := c.Config("entries")
				m, _ := entries.(map[string]any)
				for k, v := range m {
					entry, err := c.Output().DictGetOrCreate(k)
					if err != nil {
						return err
					}
					if err := entry.Apply(toTSValue(v)); err != nil {
						return err
					}
				}
				return nil
			}
			muts, _ := c.State()["later"].([]any)
			if len(muts) == 0 {
				return nil
			}
			mut := muts[0]
			c.State()["later"] = muts[1:]
			if len(muts) > 1 {
				if err := c.Scheduler().ScheduleAfter(0, "mutate"); err != nil {
					return err
				}
			}
			m, _ := mut.(map[string]any)
			return c.Output().Apply(toTSValue(m))
		},
	})
}

func dictShape() *desc.Shape {
	s := desc.DictOf(desc.Scalar())
	return &s
}

func incrementTemplate() *desc.Graph {
	return &desc.Graph{
		Name: "inc",
		Nodes: []desc.Node{
			{Name: "v", Op: "parent", Rank: 0,
				Config: map[string]any{"input": "in", "keyed": true}, Output: scalarShape()},
			{Name: "one", Op: "const", Rank: 0, Config: map[string]any{"value": 1}, Output: scalarShape()},
			{Name: "plus", Op: "add", Rank: 1,
				Inputs: []desc.Port{
					{Name: "lhs", Shape: desc.Scalar()},
					{Name: "rhs", Shape: desc.Scalar()},
				},
				Output: scalarShape()},
		},
		Edges: []desc.Edge{
			{From: "v", To: "plus", Input: "lhs"},
			{From: "one", To: "plus", Input: "rhs"},
		},
		Output: "plus",
	}
}

func TestMapIncrementsPerKey(t *testing.T) {
	reg := DefaultRegistry()
	registerSeedDict(reg)

	d := &desc.Graph{
		Name: "mapped",
		Nodes: []desc.Node{
			{Name: "src", Op: "seed_dict", Rank: 0,
				Config: map[string]any{"entries": map[string]any{"x": 10, "y": 25}},
				Output: dictShape()},
			{Name: "m", Op: "map", Rank: 1,
				Inputs: []desc.Port{{Name: "in", Shape: desc.DictOf(desc.Scalar())}},
				Nested: incrementTemplate(),
				Output: dictShape()},
		},
		Edges: []desc.Edge{{From: "src", To: "m", Input: "in"}},
	}

	g, _ := runSim(t, d, reg)

	out := g.NodeByName("m").Output()
	require.True(t, out.Valid())
	require.NotNil(t, out.DictEntry("x"))
	require.NotNil(t, out.DictEntry("y"))
	assert.Equal(t, int64(11), out.DictEntry("x").ScalarValue())
	assert.Equal(t, int64(26), out.DictEntry("y").ScalarValue())
}

func TestMapTearsDownRemovedKeys(t *testing.T) {
	reg := DefaultRegistry()
	registerSeedDict(reg)

	d := &desc.Graph{
		Name: "mapped",
		Nodes: []desc.Node{
			{Name: "src", Op: "seed_dict", Rank: 0,
				Config: map[string]any{
					"entries": map[string]any{"x": 1, "y": 2},
					"later":   []any{map[string]any{"__remove__": []any{"y"}}},
				},
				Output: dictShape()},
			{Name: "m", Op: "map", Rank: 1,
				Inputs: []desc.Port{{Name: "in", Shape: desc.DictOf(desc.Scalar())}},
				Nested: incrementTemplate(),
				Output: dictShape()},
		},
		Edges: []desc.Edge{{From: "src", To: "m", Input: "in"}},
	}

	g, _ := runSim(t, d, reg)

	out := g.NodeByName("m").Output()
	assert.NotNil(t, out.DictEntry("x"))
	assert.Nil(t, out.DictEntry("y"), "removed key must drop out of the construct output")
}

func TestSwitchSwapsCases(t *testing.T) {
	caseGraph := func(value int) *desc.Graph {
		return &desc.Graph{
			Name: "case",
			Nodes: []desc.Node{
				{Name: "v", Op: "const", Rank: 0, Config: map[string]any{"value": value}, Output: scalarShape()},
			},
			Output: "v",
		}
	}

	d := &desc.Graph{
		Name: "switched",
		Nodes: []desc.Node{
			{Name: "sel", Op: "feed", Rank: 0,
				Config: map[string]any{"ticks": []any{
					map[string]any{"at": 0, "value": "low"},
					map[string]any{"at": 1, "value": "high"},
				}},
				Output: scalarShape()},
			{Name: "sw", Op: "switch", Rank: 1,
				Inputs: []desc.Port{{Name: "key", Shape: desc.Scalar()}},
				Cases:  map[string]*desc.Graph{"low": caseGraph(10), "high": caseGraph(99)},
				Output: scalarShape()},
		},
		Edges: []desc.Edge{{From: "sel", To: "sw", Input: "key"}},
	}

	g, tr := runSim(t, d, nil, "sw")

	events := tr.Events()
	require.Len(t, events, 2)
	assert.Equal(t, int64(10), scalarTick(t, events[0]))
	assert.Equal(t, int64(99), scalarTick(t, events[1]))
	assert.Equal(t, int64(99), g.NodeByName("sw").Output().ScalarValue())
}

func TestSwitchUnknownKeyFails(t *testing.T) {
	d := &desc.Graph{
		Name: "switched",
		Nodes: []desc.Node{
			{Name: "sel", Op: "const", Rank: 0, Config: map[string]any{"value": "nope"}, Output: scalarShape()},
			{Name: "sw", Op: "switch", Rank: 1,
				Inputs: []desc.Port{{Name: "key", Shape: desc.Scalar()}},
				Cases: map[string]*desc.Graph{"only": {
					Name: "case",
					Nodes: []desc.Node{
						{Name: "v", Op: "const", Rank: 0, Config: map[string]any{"value": 1}, Output: scalarShape()},
					},
					Output: "v",
				}},
				Output: scalarShape()},
		},
		Edges: []desc.Edge{{From: "sel", To: "sw", Input: "key"}},
	}

	g, err := Build(d, DefaultRegistry(), NewSimulationClock(epoch))
	require.NoError(t, err)
	err = g.Run(context.Background(), epoch, ts.MaxTime)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `no case for key "nope"`)
}

func TestTryCapturesNestedFailure(t *testing.T) {
	tmpl := &desc.Graph{
		Name: "risky",
		Nodes: []desc.Node{
			{Name: "num", Op: "const", Rank: 0, Config: map[string]any{"value": 1.0}, Output: scalarShape()},
			{Name: "den", Op: "const", Rank: 0, Config: map[string]any{"value": 0.0}, Output: scalarShape()},
			{Name: "q", Op: "div", Rank: 1,
				Inputs: []desc.Port{
					{Name: "lhs", Shape: desc.Scalar()},
					{Name: "rhs", Shape: desc.Scalar()},
				},
				Output: scalarShape()},
		},
		Edges: []desc.Edge{
			{From: "num", To: "q", Input: "lhs"},
			{From: "den", To: "q", Input: "rhs"},
		},
		Output: "q",
	}

	outShape := desc.Shape{Kind: "bundle", Fields: []desc.Field{
		{Name: "out", Shape: desc.Scalar()},
		{Name: "err", Shape: desc.Scalar()},
	}}
	d := &desc.Graph{
		Name: "guarded",
		Nodes: []desc.Node{
			{Name: "t", Op: "try", Rank: 0, Nested: tmpl, Output: &outShape},
		},
	}

	g, _ := runSim(t, d, nil)

	out := g.NodeByName("t").Output()
	require.False(t, out.Field("out").Valid())
	require.True(t, out.Field("err").Valid())
	ne, ok := out.Field("err").ScalarValue().(*NodeError)
	require.True(t, ok)
	assert.Equal(t, ErrKindNested, ne.Kind)
	assert.Contains(t, ne.Message, "division by zero")
}

func TestTryPassesThroughSuccess(t *testing.T) {
	tmpl := &desc.Graph{
		Name: "safe",
		Nodes: []desc.Node{
			{Name: "v", Op: "const", Rank: 0, Config: map[string]any{"value": 42}, Output: scalarShape()},
		},
		Output: "v",
	}
	outShape := desc.Shape{Kind: "bundle", Fields: []desc.Field{
		{Name: "out", Shape: desc.Scalar()},
		{Name: "err", Shape: desc.Scalar()},
	}}
	d := &desc.Graph{
		Name: "guarded",
		Nodes: []desc.Node{
			{Name: "t", Op: "try", Rank: 0, Nested: tmpl, Output: &outShape},
		},
	}

	g, _ := runSim(t, d, nil)

	out := g.NodeByName("t").Output()
	assert.Equal(t, int64(42), out.Field("out").ScalarValue())
	assert.False(t, out.Field("err").Valid())
}

// registerFib registers the mesh-resolving step: fib(k) resolves fib(k-1)
// and fib(k-2), summing once both are available.
func registerFib(reg *Registry) {
	reg.MustRegister(&OpDef{Name: "fib_step", Eval: func(c *Context) error {
		key := c.Input("k")
		if !key.Valid() {
			return nil
		}
		n, _ := key.Scalar().(int64)
		if n <= 1 {
			if !c.Output().Valid() {
				c.Output().SetScalar(n)
			}
			return nil
		}
		h := c.Mesh()
		a, err := h.Resolve(c, n-1)
		if err != nil {
			return err
		}
		b, err := h.Resolve(c, n-2)
		if err != nil {
			return err
		}
		if a == nil || b == nil || !a.Valid() || !b.Valid() {
			return nil
		}
		sum := a.ScalarValue().(int64) + b.ScalarValue().(int64)
		if !c.Output().Valid() || c.Output().ScalarValue().(int64) != sum {
			c.Output().SetScalar(sum)
		}
		return nil
	}})
}

func fibTemplate() *desc.Graph {
	return &desc.Graph{
		Name: "fib",
		Nodes: []desc.Node{
			{Name: "key", Op: "key", Rank: 0, Output: scalarShape()},
			{Name: "fib", Op: "fib_step", Rank: 1,
				Inputs: []desc.Port{{Name: "k", Shape: desc.Scalar()}}, Output: scalarShape()},
		},
		Edges:  []desc.Edge{{From: "key", To: "fib", Input: "k"}},
		Output: "fib",
	}
}

func TestMeshComputesFibonacci(t *testing.T) {
	reg := DefaultRegistry()
	registerFib(reg)
	reg.MustRegister(&OpDef{Name: "seed_key", Eval: func(c *Context) error {
		if c.Output().Valid() {
			return nil
		}
		entry, err := c.Output().DictGetOrCreate(int64(7))
		if err != nil {
			return err
		}
		entry.SetScalar(true)
		return nil
	}})

	d := &desc.Graph{
		Name: "meshed",
		Nodes: []desc.Node{
			{Name: "src", Op: "seed_key", Rank: 0, Output: dictShape()},
			{Name: "mesh", Op: "mesh", Rank: 1,
				Inputs: []desc.Port{{Name: "in", Shape: desc.DictOf(desc.Scalar())}},
				Nested: fibTemplate(),
				Output: dictShape()},
		},
		Edges: []desc.Edge{{From: "src", To: "mesh", Input: "in"}},
	}

	g, _ := runSim(t, d, reg)

	out := g.NodeByName("mesh").Output()
	entry := out.DictEntry(int64(7))
	require.NotNil(t, entry, "requested key must appear in the mesh output")
	assert.Equal(t, int64(13), entry.ScalarValue())
}

func TestMeshDetectsDependencyCycle(t *testing.T) {
	reg := DefaultRegistry()
	sawCycleError := false
	reg.MustRegister(&OpDef{Name: "loop_step", Eval: func(c *Context) error {
		key := c.Input("k")
		if !key.Valid() {
			return nil
		}
		other := "y"
		if key.Scalar() == "y" {
			other = "x"
		}
		_, err := c.Mesh().Resolve(c, other)
		if err != nil {
			if IsDependencyCycleError(err) {
				sawCycleError = true
			}
			return err
		}
		return nil
	}})
	reg.MustRegister(&OpDef{Name: "seed_x", Eval: func(c *Context) error {
		if c.Output().Valid() {
			return nil
		}
		entry, err := c.Output().DictGetOrCreate("x")
		if err != nil {
			return err
		}
		entry.SetScalar(true)
		return nil
	}})

	tmpl := &desc.Graph{
		Name: "loop",
		Nodes: []desc.Node{
			{Name: "key", Op: "key", Rank: 0, Output: scalarShape()},
			{Name: "step", Op: "loop_step", Rank: 1,
				Inputs: []desc.Port{{Name: "k", Shape: desc.Scalar()}}, Output: scalarShape()},
		},
		Edges:  []desc.Edge{{From: "key", To: "step", Input: "k"}},
		Output: "step",
	}
	d := &desc.Graph{
		Name: "meshed",
		Nodes: []desc.Node{
			{Name: "src", Op: "seed_x", Rank: 0, Output: dictShape()},
			{Name: "mesh", Op: "mesh", Rank: 1,
				Inputs: []desc.Port{{Name: "in", Shape: desc.DictOf(desc.Scalar())}},
				Nested: tmpl,
				Output: dictShape()},
		},
		Edges: []desc.Edge{{From: "src", To: "mesh", Input: "in"}},
	}

	g, err := Build(d, reg, NewSimulationClock(epoch))
	require.NoError(t, err)
	err = g.Run(context.Background(), epoch, ts.MaxTime)
	require.Error(t, err)
	assert.True(t, sawCycleError, "Resolve must fail synchronously at the call site")
	assert.Contains(t, err.Error(), "dependency cycle")
}

// Nested graph paths are stable child ordinals beneath the root.
func TestNestedGraphPaths(t *testing.T) {
	reg := DefaultRegistry()
	registerSeedDict(reg)

	var paths []string
	ob := &pathCollector{}

	d := &desc.Graph{
		Name: "mapped",
		Nodes: []desc.Node{
			{Name: "src", Op: "seed_dict", Rank: 0,
				Config: map[string]any{"entries": map[string]any{"x": 1}},
				Output: dictShape()},
			{Name: "m", Op: "map", Rank: 1,
				Inputs: []desc.Port{{Name: "in", Shape: desc.DictOf(desc.Scalar())}},
				Nested: incrementTemplate(),
				Output: dictShape()},
		},
		Edges: []desc.Edge{{From: "src", To: "m", Input: "in"}},
	}

	g, err := Build(d, reg, NewSimulationClock(epoch), WithObserver(ob))
	require.NoError(t, err)
	require.NoError(t, g.Run(context.Background(), epoch, ts.MaxTime))

	paths = ob.paths
	assert.Contains(t, paths, "root")
	assert.Contains(t, paths, "root/0")
}

type pathCollector struct {
	BaseObserver
	paths []string
}

func (p *pathCollector) AfterGraphStart(g *Graph) {
	p.paths = append(p.paths, g.PathString())
}
