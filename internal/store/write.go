package store

import (
	"context"
	"fmt"

	"github.com/roach88/tsflow/internal/ts"
)

// Run is one recorded graph execution.
type Run struct {
	ID        string
	Graph     string
	StartedAt ts.EngineTime

	// FinishedAt is nil while the run is in flight.
	FinishedAt *ts.EngineTime
}

// Tick is one recorded output change: a node's delta for one cycle, or a
// captured error.
type Tick struct {
	RunID   string
	Seq     int64
	Node    string
	Kind    string // "tick" or "error"
	At      ts.EngineTime
	Payload ts.Value
}

// WriteRun inserts a run header. Duplicate IDs are silently ignored so a
// restarted recording never fails on its own run row.
func (s *Store) WriteRun(ctx context.Context, run Run) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, graph, started_at)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, run.ID, run.Graph, int64(run.StartedAt))
	if err != nil {
		return fmt.Errorf("write run: %w", err)
	}
	return nil
}

// FinishRun stamps a run's end time.
func (s *Store) FinishRun(ctx context.Context, runID string, at ts.EngineTime) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE runs SET finished_at = ? WHERE id = ?", int64(at), runID)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

// WriteTick appends one tick to a run's log. Payloads are canonical JSON,
// so identical deltas always produce identical rows.
func (s *Store) WriteTick(ctx context.Context, tick Tick) error {
	payload, err := marshalPayload(tick.Payload)
	if err != nil {
		return fmt.Errorf("write tick: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO ticks (run_id, seq, node, kind, at, payload)
		VALUES (?, ?, ?, ?, ?, ?)
	`, tick.RunID, tick.Seq, tick.Node, tick.Kind, int64(tick.At), payload)
	if err != nil {
		return fmt.Errorf("write tick: %w", err)
	}
	return nil
}
