package engine

import (
	"fmt"
	"math"
	"slices"

	"github.com/roach88/tsflow/internal/ts"
)

// Built-in operations. Each is deliberately small: sources tick values in,
// arithmetic combines modified inputs, lag re-emits with a one-MinTD
// scheduled delay.

func registerBuiltinOps(r *Registry) {
	r.MustRegister(&OpDef{Name: "const", Eval: evalConst})
	r.MustRegister(&OpDef{Name: "add", Eval: arith("add")})
	r.MustRegister(&OpDef{Name: "sub", Eval: arith("sub")})
	r.MustRegister(&OpDef{Name: "mul", Eval: arith("mul")})
	r.MustRegister(&OpDef{Name: "div", Eval: evalDiv})
	r.MustRegister(&OpDef{Name: "lag", Eval: evalLag})
	r.MustRegister(&OpDef{Name: "fwd", Eval: evalForward})
	r.MustRegister(&OpDef{Name: "feed", Start: startFeed, Eval: evalFeed})
	r.MustRegister(&OpDef{Name: "push", Init: initPush, Eval: evalPush, Dispose: disposePush})
}

// const ticks its configured value once, on the first cycle.
func evalConst(c *Context) error {
	if c.Output().Valid() {
		return nil
	}
	v, ok := c.Config("value")
	if !ok {
		return fmt.Errorf("const node needs a value")
	}
	return c.Output().Apply(toTSValue(v))
}

// arith combines two scalar inputs when both are valid and either is
// modified. Integer inputs stay integral.
func arith(op string) EvalFunc {
	return func(c *Context) error {
		lhs, rhs := c.Input("lhs"), c.Input("rhs")
		if !lhs.Valid() || !rhs.Valid() {
			return nil
		}
		if ai, bi, ok := bothInt(lhs.Scalar(), rhs.Scalar()); ok {
			var v int64
			switch op {
			case "add":
				v = ai + bi
			case "sub":
				v = ai - bi
			case "mul":
				v = ai * bi
			}
			c.Output().SetScalar(v)
			return nil
		}
		af, aok := asFloat(lhs.Scalar())
		bf, bok := asFloat(rhs.Scalar())
		if !aok || !bok {
			return fmt.Errorf("%s: non-numeric operands %T, %T", op, lhs.Scalar(), rhs.Scalar())
		}
		var v float64
		switch op {
		case "add":
			v = af + bf
		case "sub":
			v = af - bf
		case "mul":
			v = af * bf
		}
		c.Output().SetScalar(v)
		return nil
	}
}

// evalDiv divides with a caller-selected zero-denominator policy. The
// policy is per-operation configuration, not an evaluation error - except
// the "error" policy, which asks for exactly that.
func evalDiv(c *Context) error {
	lhs, rhs := c.Input("lhs"), c.Input("rhs")
	if !lhs.Valid() || !rhs.Valid() {
		return nil
	}
	af, aok := asFloat(lhs.Scalar())
	bf, bok := asFloat(rhs.Scalar())
	if !aok || !bok {
		return fmt.Errorf("div: non-numeric operands %T, %T", lhs.Scalar(), rhs.Scalar())
	}
	if bf == 0 {
		switch policy := c.ConfigString("div_by_zero", "error"); policy {
		case "error":
			return fmt.Errorf("division by zero")
		case "nan":
			c.Output().SetScalar(math.NaN())
		case "inf":
			c.Output().SetScalar(math.Inf(sign(af)))
		case "none":
			// Drop the tick.
		case "zero":
			c.Output().SetScalar(0.0)
		case "one":
			c.Output().SetScalar(1.0)
		default:
			return fmt.Errorf("div: unknown div_by_zero policy %q", policy)
		}
		return nil
	}
	c.Output().SetScalar(af / bf)
	return nil
}

func sign(f float64) int {
	if f < 0 {
		return -1
	}
	return 1
}

// evalLag remembers each input tick and re-emits it one MinTD later.
func evalLag(c *Context) error {
	state := c.State()
	queue, _ := state["queue"].([]any)

	if c.Scheduler().IsScheduledNow() && len(queue) > 0 {
		c.Output().SetScalar(queue[0])
		queue = queue[1:]
	}
	in := c.Input("in")
	if in.Modified() {
		queue = append(queue, in.Scalar())
		if err := c.Scheduler().ScheduleAfter(0, ""); err != nil {
			return err
		}
	}
	state["queue"] = queue
	return nil
}

// evalForward mirrors its input's delta onto its own output.
func evalForward(c *Context) error {
	in := c.Input("in")
	if !in.Modified() {
		return nil
	}
	return c.Output().Apply(in.Delta())
}

type feedTick struct {
	at    ts.EngineTime
	value ts.Value
}

// startFeed schedules one activation per configured tick. Tick offsets are
// cycle counts from the run's start time.
func startFeed(c *Context) error {
	raw, ok := c.Config("ticks")
	if !ok {
		return nil
	}
	items, ok := raw.([]any)
	if !ok {
		return fmt.Errorf("feed: ticks must be a list, got %T", raw)
	}
	start := c.EvaluationTime()
	ticks := make([]feedTick, 0, len(items))
	for i, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			return fmt.Errorf("feed: tick %d must be a map, got %T", i, item)
		}
		offset, ok := asInt(m["at"])
		if !ok {
			return fmt.Errorf("feed: tick %d needs an integer offset", i)
		}
		at := start + ts.EngineTime(offset)*ts.MinTD
		ticks = append(ticks, feedTick{at: at, value: toTSValue(m["value"])})
		if err := c.Scheduler().Schedule(at, ""); err != nil {
			return err
		}
	}
	slices.SortStableFunc(ticks, func(a, b feedTick) int {
		switch {
		case a.at < b.at:
			return -1
		case a.at > b.at:
			return 1
		}
		return 0
	})
	c.State()["ticks"] = ticks
	return nil
}

// evalFeed applies every tick due at the current instant.
func evalFeed(c *Context) error {
	ticks, _ := c.State()["ticks"].([]feedTick)
	now := c.EvaluationTime()
	i := 0
	for i < len(ticks) && ticks[i].at <= now {
		if err := c.Output().Apply(ticks[i].value); err != nil {
			return err
		}
		i++
	}
	c.State()["ticks"] = ticks[i:]
	return nil
}

// initPush creates the node's cross-thread queue and registers it on the
// graph so producers can reach it.
func initPush(c *Context) error {
	mode, ok := ParsePushMode(c.ConfigString("mode", "queue"))
	if !ok {
		return fmt.Errorf("push: unknown mode %q", c.ConfigString("mode", ""))
	}
	waker, _ := c.Clock().(pushWaker)
	q := newPushQueue(mode, waker)
	c.State()["queue"] = q
	c.node.graph.registerPushQueue(c.node, q)
	return nil
}

// evalPush drains pending sends into the output; in queue mode one value
// per cycle, re-scheduling while more remain.
func evalPush(c *Context) error {
	q, _ := c.State()["queue"].(*PushQueue)
	if q == nil {
		return fmt.Errorf("push: queue not initialised")
	}
	if q.deliver(c.Output()) {
		return c.Scheduler().ScheduleAfter(0, "push-drain")
	}
	return nil
}

func disposePush(c *Context) error {
	if q, _ := c.State()["queue"].(*PushQueue); q != nil {
		q.close()
	}
	return nil
}

// toTSValue converts raw description/config payloads to time-series
// values. Maps become dict deltas (with the "__remove__" list turning into
// tombstones), slices become lists, everything else is a scalar.
func toTSValue(v any) ts.Value {
	switch val := v.(type) {
	case ts.Value:
		return val
	case map[string]any:
		entries := make(map[ts.Key]ts.Value)
		var added map[ts.Key]bool
		for k, e := range val {
			if k == "__remove__" {
				if removals, ok := e.([]any); ok {
					for _, rk := range removals {
						entries[normKey(rk)] = ts.Tombstone{}
					}
				}
				continue
			}
			entries[k] = toTSValue(e)
		}
		return ts.NewDictDelta(entries, added)
	case []any:
		out := make(ts.List, len(val))
		for i, e := range val {
			out[i] = toTSValue(e)
		}
		return out
	case int:
		return ts.Scalar{V: int64(val)}
	default:
		return ts.Scalar{V: v}
	}
}

// normKey normalizes config-sourced keys to the payload conventions.
func normKey(k any) ts.Key {
	if i, ok := k.(int); ok {
		return int64(i)
	}
	return k
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func asInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		if n == math.Trunc(n) {
			return int64(n), true
		}
	}
	return 0, false
}

func bothInt(a, b any) (int64, int64, bool) {
	ai, aok := a.(int64)
	bi, bok := b.(int64)
	if aok && bok {
		return ai, bi, true
	}
	return 0, 0, false
}
