package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/tsflow/internal/ts"
)

// ErrRunNotFound reports a run ID with no stored header.
var ErrRunNotFound = errors.New("run not found")

// ReadRun loads a run header.
func (s *Store) ReadRun(ctx context.Context, runID string) (Run, error) {
	var run Run
	var started int64
	var finished sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		"SELECT id, graph, started_at, finished_at FROM runs WHERE id = ?", runID,
	).Scan(&run.ID, &run.Graph, &started, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("read run %q: %w", runID, ErrRunNotFound)
	}
	if err != nil {
		return Run{}, fmt.Errorf("read run %q: %w", runID, err)
	}
	run.StartedAt = ts.EngineTime(started)
	if finished.Valid {
		at := ts.EngineTime(finished.Int64)
		run.FinishedAt = &at
	}
	return run, nil
}

// ListRuns returns all run headers, most recent first.
func (s *Store) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, graph, started_at, finished_at FROM runs ORDER BY started_at DESC")
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		var started int64
		var finished sql.NullInt64
		if err := rows.Scan(&run.ID, &run.Graph, &started, &finished); err != nil {
			return nil, fmt.Errorf("list runs: %w", err)
		}
		run.StartedAt = ts.EngineTime(started)
		if finished.Valid {
			at := ts.EngineTime(finished.Int64)
			run.FinishedAt = &at
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// ReadTicks loads a node's recorded stream within a run, in evaluation
// order. An empty node selects the whole run.
func (s *Store) ReadTicks(ctx context.Context, runID, node string) ([]Tick, error) {
	stream, err := s.StreamTicks(ctx, runID, node)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	var ticks []Tick
	for {
		tick, ok := stream.Next()
		if !ok {
			break
		}
		ticks = append(ticks, tick)
	}
	return ticks, stream.Err()
}

// TickStream iterates a run's tick log without loading it whole.
type TickStream struct {
	rows *sql.Rows
	err  error
}

// StreamTicks opens a streaming read over a run's ticks in evaluation
// order. An empty node selects every node. The caller owns Close.
func (s *Store) StreamTicks(ctx context.Context, runID, node string) (*TickStream, error) {
	query := "SELECT run_id, seq, node, kind, at, payload FROM ticks WHERE run_id = ?"
	args := []any{runID}
	if node != "" {
		query += " AND node = ?"
		args = append(args, node)
	}
	query += " ORDER BY seq"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("stream ticks: %w", err)
	}
	return &TickStream{rows: rows}, nil
}

// Next returns the next tick, false at the end of the stream or on error.
func (st *TickStream) Next() (Tick, bool) {
	if st.err != nil || !st.rows.Next() {
		return Tick{}, false
	}
	var tick Tick
	var at int64
	var payload string
	if err := st.rows.Scan(&tick.RunID, &tick.Seq, &tick.Node, &tick.Kind, &at, &payload); err != nil {
		st.err = err
		return Tick{}, false
	}
	tick.At = ts.EngineTime(at)
	tick.Payload, st.err = unmarshalPayload(payload)
	if st.err != nil {
		return Tick{}, false
	}
	return tick, true
}

// Err reports the first error hit while iterating.
func (st *TickStream) Err() error {
	if st.err != nil {
		return st.err
	}
	return st.rows.Err()
}

// Close releases the stream.
func (st *TickStream) Close() error { return st.rows.Close() }
