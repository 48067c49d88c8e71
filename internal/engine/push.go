package engine

import (
	"sync"

	"github.com/roach88/tsflow/internal/ts"
)

// PushMode controls how sends that pile up between engine wakes collapse
// into cycles.
type PushMode int

const (
	// PushModeQueue delivers one value per cycle in arrival order.
	PushModeQueue PushMode = iota + 1

	// PushModeBatch coalesces all sends pending at a wake into a single
	// cycle's delta (a list tick carrying every value).
	PushModeBatch

	// PushModeElide drops all but the last pending value.
	PushModeElide
)

// ParsePushMode converts a description config string to a PushMode.
func ParsePushMode(s string) (PushMode, bool) {
	switch s {
	case "", "queue":
		return PushModeQueue, true
	case "batch":
		return PushModeBatch, true
	case "elide":
		return PushModeElide, true
	}
	return 0, false
}

// PushQueue is the cross-thread bridge: a thread-safe ordered hand-off
// channel from arbitrary producer threads into the engine thread. Send is
// the only engine API safe to call off the engine thread; the engine
// drains pending values into the source node's output when it wakes.
type PushQueue struct {
	mu      sync.Mutex
	pending []any
	closed  bool

	mode  PushMode
	waker pushWaker // real-time clock, nil in simulation
}

func newPushQueue(mode PushMode, waker pushWaker) *PushQueue {
	return &PushQueue{mode: mode, waker: waker}
}

// Send hands a value to the engine. Safe from any goroutine. Returns false
// once the queue is closed.
func (q *PushQueue) Send(v any) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.pending = append(q.pending, v)
	waker := q.waker
	q.mu.Unlock()

	if waker != nil {
		waker.SignalPush()
	}
	return true
}

// Pending reports the number of values waiting to be drained.
func (q *PushQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// close rejects further sends. Engine-side only.
func (q *PushQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.pending = nil
}

// drain removes pending values for delivery. Engine-side only.
func (q *PushQueue) drain() []any {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.pending
	q.pending = nil
	return out
}

// drainOne removes the single oldest pending value. Engine-side only.
func (q *PushQueue) drainOne() (any, bool, int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return nil, false, 0
	}
	v := q.pending[0]
	q.pending = q.pending[1:]
	return v, true, len(q.pending)
}

// deliver applies pending values to the source output per the queue's
// mode. Returns true when values remain and the node must run again next
// cycle (queue mode drains one value per cycle).
func (q *PushQueue) deliver(out *Output) bool {
	switch q.mode {
	case PushModeQueue:
		v, ok, remaining := q.drainOne()
		if !ok {
			return false
		}
		out.SetScalar(v)
		return remaining > 0
	case PushModeBatch:
		vals := q.drain()
		if len(vals) == 0 {
			return false
		}
		batch := make(ts.List, len(vals))
		for i, v := range vals {
			batch[i] = ts.Scalar{V: v}
		}
		if out.Kind() == ts.KindList {
			// Fixed-arity outputs receive the batch element-wise.
			for i := 0; i < len(batch) && i < out.NumChildren(); i++ {
				out.Child(i).SetScalar(vals[i])
			}
			return false
		}
		out.SetScalar(batch)
		return false
	case PushModeElide:
		vals := q.drain()
		if len(vals) == 0 {
			return false
		}
		out.SetScalar(vals[len(vals)-1])
		return false
	}
	return false
}
