package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/roach88/tsflow/internal/desc"
	"github.com/roach88/tsflow/internal/engine"
	"github.com/roach88/tsflow/internal/ts"
)

// Epoch is the fixed simulation start used across tests. An arbitrary but
// stable wall-clock instant keeps traces and golden files reproducible.
var Epoch = ts.FromTime(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC))

// RunSim builds d against reg (nil means the default registry), runs it in
// simulation from Epoch until quiescence, and returns the traced ticks of
// the watched nodes (all nodes when none are named). Build or run failures
// fail the test.
func RunSim(t *testing.T, d *desc.Graph, reg *engine.Registry, watch ...string) []engine.TraceEvent {
	t.Helper()
	tr, err := TrySim(d, reg, watch...)
	if err != nil {
		t.Fatalf("simulation of %s failed: %v", d.Name, err)
	}
	return tr.Events()
}

// TrySim is RunSim for tests that expect the run to fail: it returns the
// trace observer alongside any build or run error.
func TrySim(d *desc.Graph, reg *engine.Registry, watch ...string) (*engine.TraceObserver, error) {
	if reg == nil {
		reg = engine.DefaultRegistry()
	}
	tr := engine.NewTraceObserver(watch...)
	g, err := engine.Build(d, reg, engine.NewSimulationClock(Epoch), engine.WithObserver(tr))
	if err != nil {
		return tr, err
	}
	return tr, g.Run(context.Background(), Epoch, ts.MaxTime)
}

// ScalarValues extracts the scalar payloads of a trace, failing on any
// non-scalar event.
func ScalarValues(t *testing.T, events []engine.TraceEvent) []any {
	t.Helper()
	out := make([]any, len(events))
	for i, ev := range events {
		s, ok := ev.Value.(ts.Scalar)
		if !ok {
			t.Fatalf("event %d for %s carries %T, want scalar", i, ev.Node, ev.Value)
		}
		out[i] = s.V
	}
	return out
}

// CycleTimes extracts the evaluation times of a trace as offsets in cycles
// from Epoch. Events not on a cycle boundary fail the test.
func CycleTimes(t *testing.T, events []engine.TraceEvent) []int64 {
	t.Helper()
	out := make([]int64, len(events))
	for i, ev := range events {
		d := ev.Time - Epoch
		if d%ts.MinTD != 0 {
			t.Fatalf("event %d at %d is not a whole cycle from epoch", i, ev.Time)
		}
		out[i] = int64(d / ts.MinTD)
	}
	return out
}
