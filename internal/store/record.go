package store

import (
	"context"

	"github.com/roach88/tsflow/internal/engine"
	"github.com/roach88/tsflow/internal/ts"
)

// Recorder is an engine observer that appends every output tick of a run
// to the store. Attach with engine.WithObserver; the run row is written
// when the root graph starts and stamped finished when it stops.
//
// Writes happen on the engine thread between node evaluations. The first
// write failure is remembered and stops further recording; check Err after
// the run.
type Recorder struct {
	engine.BaseObserver

	store *Store
	ctx   context.Context

	runID string
	seq   int64
	err   error
}

// NewRecorder creates a recorder writing into s.
func NewRecorder(ctx context.Context, s *Store) *Recorder {
	return &Recorder{store: s, ctx: ctx}
}

// Err reports the first write failure, nil when the whole run recorded.
func (r *Recorder) Err() error { return r.err }

// RunID is the recorded run's ID, empty before the run starts.
func (r *Recorder) RunID() string { return r.runID }

func (r *Recorder) BeforeGraphStart(g *engine.Graph) {
	// Nested graphs start under the root's run; only the root owns a row.
	if r.err != nil || g.RunID() == "" {
		return
	}
	r.runID = g.RunID()
	r.seq = 0
	r.err = r.store.WriteRun(r.ctx, Run{
		ID:        g.RunID(),
		Graph:     g.Name(),
		StartedAt: g.Clock().EvaluationTime(),
	})
}

func (r *Recorder) AfterGraphStop(g *engine.Graph) {
	if r.err != nil || g.RunID() == "" || g.RunID() != r.runID {
		return
	}
	r.err = r.store.FinishRun(r.ctx, r.runID, g.Clock().EvaluationTime())
}

func (r *Recorder) AfterNodeEval(n *engine.Node, t ts.EngineTime) {
	if r.err != nil || r.runID == "" {
		return
	}
	if out := n.Output(); out != nil && out.Modified() {
		r.write(n.Path(), "tick", t, out.Delta())
	}
	if errOut := n.ErrorOutput(); errOut != nil && errOut.Modified() {
		r.write(n.Path(), "error", t, errOut.Value())
	}
}

func (r *Recorder) write(node, kind string, at ts.EngineTime, payload ts.Value) {
	r.err = r.store.WriteTick(r.ctx, Tick{
		RunID:   r.runID,
		Seq:     r.seq,
		Node:    node,
		Kind:    kind,
		At:      at,
		Payload: payload,
	})
	r.seq++
}
