package harness

import (
	"fmt"

	"github.com/roach88/tsflow/internal/engine"
	"github.com/roach88/tsflow/internal/ts"
)

func evaluateAssertion(trace []engine.TraceEvent, a Assertion) error {
	switch a.Type {
	case AssertTickContains:
		return assertTickContains(trace, a)
	case AssertTickOrder:
		return assertTickOrder(trace, a)
	case AssertTickCount:
		return assertTickCount(trace, a)
	case AssertFinalValue:
		return assertFinalValue(trace, a)
	}
	return fmt.Errorf("unknown assertion type %q", a.Type)
}

func assertTickContains(trace []engine.TraceEvent, a Assertion) error {
	want, err := canonicalExpected(a.Value)
	if err != nil {
		return err
	}
	for _, ev := range trace {
		if ev.Node != a.Node || ev.Kind != "tick" {
			continue
		}
		got, err := canonicalActual(ev.Value)
		if err != nil {
			return err
		}
		if got == want {
			return nil
		}
	}
	return fmt.Errorf("%s never ticked %s", a.Node, want)
}

// assertTickOrder checks the first tick of each named node appears in the
// listed order. Other nodes may tick in between.
func assertTickOrder(trace []engine.TraceEvent, a Assertion) error {
	first := make(map[string]int, len(a.Nodes))
	for i, ev := range trace {
		if ev.Kind != "tick" {
			continue
		}
		if _, seen := first[ev.Node]; !seen {
			first[ev.Node] = i + 1
		}
	}
	for _, node := range a.Nodes {
		if first[node] == 0 {
			return fmt.Errorf("%s never ticked", node)
		}
	}
	for i := 1; i < len(a.Nodes); i++ {
		prev, cur := a.Nodes[i-1], a.Nodes[i]
		if first[prev] >= first[cur] {
			return fmt.Errorf("%s ticked at position %d, after %s at %d",
				prev, first[prev], cur, first[cur])
		}
	}
	return nil
}

func assertTickCount(trace []engine.TraceEvent, a Assertion) error {
	count := 0
	for _, ev := range trace {
		if ev.Node == a.Node && ev.Kind == "tick" {
			count++
		}
	}
	if count != a.Count {
		return fmt.Errorf("%s ticked %d times, want %d", a.Node, count, a.Count)
	}
	return nil
}

func assertFinalValue(trace []engine.TraceEvent, a Assertion) error {
	var last *engine.TraceEvent
	for i := range trace {
		if trace[i].Node == a.Node && trace[i].Kind == "tick" {
			last = &trace[i]
		}
	}
	if last == nil {
		return fmt.Errorf("%s never ticked", a.Node)
	}
	want, err := canonicalExpected(a.Value)
	if err != nil {
		return err
	}
	got, err := canonicalActual(last.Value)
	if err != nil {
		return err
	}
	if got != want {
		return fmt.Errorf("%s finished at %s, want %s", a.Node, got, want)
	}
	return nil
}

// canonicalExpected renders a YAML-parsed expectation in canonical JSON
// so scalars, lists and dicts compare by value against trace payloads.
func canonicalExpected(v any) (string, error) {
	tsv, err := valueFromYAML(v)
	if err != nil {
		return "", err
	}
	data, err := ts.MarshalCanonical(tsv)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func canonicalActual(v ts.Value) (string, error) {
	data, err := ts.MarshalCanonical(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func valueFromYAML(v any) (ts.Value, error) {
	switch val := v.(type) {
	case bool, string, float64:
		return ts.Scalar{V: val}, nil
	case int:
		return ts.Scalar{V: int64(val)}, nil
	case int64:
		return ts.Scalar{V: val}, nil
	case []any:
		list := make(ts.List, len(val))
		for i, e := range val {
			elem, err := valueFromYAML(e)
			if err != nil {
				return nil, err
			}
			list[i] = elem
		}
		return list, nil
	case map[string]any:
		d := make(ts.Dict, len(val))
		for k, e := range val {
			entry, err := valueFromYAML(e)
			if err != nil {
				return nil, err
			}
			d[k] = entry
		}
		return d, nil
	}
	return nil, fmt.Errorf("unsupported expected value type %T", v)
}
