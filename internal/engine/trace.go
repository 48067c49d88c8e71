package engine

import (
	"bytes"
	"fmt"

	"github.com/roach88/tsflow/internal/ts"
)

// TraceEvent is one recorded engine occurrence: a node evaluation that
// ticked an output, or an error landing on an error output.
type TraceEvent struct {
	Time  ts.EngineTime
	Node  string // node path
	Kind  string // "tick" or "error"
	Value ts.Value
}

// TraceObserver records output ticks in evaluation order, producing a
// deterministic trace of a run. Watch specific node names, or watch
// everything by leaving the watch set empty.
type TraceObserver struct {
	BaseObserver

	watch  map[string]bool
	events []TraceEvent
}

// NewTraceObserver creates a trace observer. With no names, every node's
// ticks are recorded.
func NewTraceObserver(nodeNames ...string) *TraceObserver {
	t := &TraceObserver{}
	if len(nodeNames) > 0 {
		t.watch = make(map[string]bool, len(nodeNames))
		for _, n := range nodeNames {
			t.watch[n] = true
		}
	}
	return t
}

func (tr *TraceObserver) AfterNodeEval(n *Node, t ts.EngineTime) {
	if tr.watch != nil && !tr.watch[n.Name()] {
		return
	}
	if out := n.Output(); out != nil && out.Modified() {
		tr.events = append(tr.events, TraceEvent{Time: t, Node: n.Path(), Kind: "tick", Value: out.Delta()})
	}
	if errOut := n.ErrorOutput(); errOut != nil && errOut.Modified() {
		tr.events = append(tr.events, TraceEvent{Time: t, Node: n.Path(), Kind: "error", Value: errOut.Value()})
	}
}

// Events returns the recorded trace in order.
func (tr *TraceObserver) Events() []TraceEvent { return tr.events }

// Reset clears the recorded trace.
func (tr *TraceObserver) Reset() { tr.events = nil }

// Canonical renders the trace as one canonical JSON document per line,
// suitable for golden-file comparison.
func (tr *TraceObserver) Canonical() ([]byte, error) {
	var buf bytes.Buffer
	for _, ev := range tr.events {
		val := ev.Value
		if ne, ok := scalarNodeError(val); ok {
			val = ts.Scalar{V: ne.Error()}
		}
		data, err := ts.MarshalCanonical(val)
		if err != nil {
			return nil, fmt.Errorf("trace event for %s: %w", ev.Node, err)
		}
		fmt.Fprintf(&buf, `{"time":%d,"node":%q,"kind":%q,"value":%s}`+"\n", int64(ev.Time), ev.Node, ev.Kind, data)
	}
	return buf.Bytes(), nil
}

// scalarNodeError unwraps a NodeError carried as a scalar payload.
func scalarNodeError(v ts.Value) (*NodeError, bool) {
	s, ok := v.(ts.Scalar)
	if !ok {
		return nil, false
	}
	ne, ok := s.V.(*NodeError)
	return ne, ok
}
