package engine

import (
	"fmt"
	"slices"
	"time"

	"github.com/roach88/tsflow/internal/ts"
)

type schedEntry struct {
	at  ts.EngineTime
	tag string
	seq int64
}

// Scheduler is a node's future-activation queue: a sorted collection of
// (time, tag) entries. An anonymous entry (empty tag) accumulates; a named
// entry replaces any earlier entry with the same tag, so periodic nodes can
// re-schedule without duplicating work.
type Scheduler struct {
	node    *Node
	entries []schedEntry
	seq     int64
}

func newScheduler(n *Node) *Scheduler {
	return &Scheduler{node: n}
}

// Schedule registers an activation at an absolute engine time. Times
// before the current evaluation time are a misuse and fail immediately.
func (s *Scheduler) Schedule(at ts.EngineTime, tag string) error {
	if at <= ts.MinTime {
		return &SchedulingError{Node: s.node.Name(), Message: fmt.Sprintf("cannot schedule at %s", at)}
	}
	if now := s.node.graph.clock.EvaluationTime(); at < now {
		return &SchedulingError{
			Node:    s.node.Name(),
			Message: fmt.Sprintf("cannot schedule at %s, already at %s", at, now),
		}
	}
	if tag != "" {
		s.removeTag(tag)
	}
	s.seq++
	s.entries = append(s.entries, schedEntry{at: at, tag: tag, seq: s.seq})
	s.sort()
	s.node.resync()
	return nil
}

// ScheduleAfter registers an activation a delay after the current
// evaluation time. A zero delay means the next cycle.
func (s *Scheduler) ScheduleAfter(d time.Duration, tag string) error {
	if d < 0 {
		return &SchedulingError{Node: s.node.Name(), Message: fmt.Sprintf("negative delay %s", d)}
	}
	at := s.node.graph.clock.EvaluationTime().Add(d)
	if d == 0 {
		at = at.Next()
	}
	return s.Schedule(at, tag)
}

// ScheduleWallClock registers a wall-clock-relative activation. Under a
// real-time clock this becomes an alarm that fires regardless of engine
// scheduling; under a simulation clock wall time and engine time coincide,
// so it degrades to an ordinary engine-time entry.
func (s *Scheduler) ScheduleWallClock(at time.Time, tag string) error {
	et := ts.FromTime(at)
	ac, ok := s.node.graph.clock.(alarmClock)
	if !ok {
		return s.Schedule(et, tag)
	}
	name := s.node.Path() + "#" + tag
	return ac.SetAlarm(et, name, func(firedAt ts.EngineTime) {
		// Fires on the engine thread between cycles; wake the node at the
		// instant the engine will assign to the upcoming cycle.
		s.node.graph.wakeNodeAt(s.node, firedAt)
	})
}

// Unschedule removes the entry with the given tag. Anonymous entries
// cannot be unscheduled individually.
func (s *Scheduler) Unschedule(tag string) {
	if tag == "" {
		return
	}
	if ac, ok := s.node.graph.clock.(alarmClock); ok {
		ac.CancelAlarm(s.node.Path() + "#" + tag)
	}
	s.removeTag(tag)
	s.node.resync()
}

// IsScheduledNow reports whether an entry equals the graph's current
// evaluation time.
func (s *Scheduler) IsScheduledNow() bool {
	now := s.node.graph.clock.EvaluationTime()
	for _, e := range s.entries {
		if e.at == now {
			return true
		}
		if e.at > now {
			break
		}
	}
	return false
}

// IsScheduled reports whether any future entry exists.
func (s *Scheduler) IsScheduled() bool {
	now := s.node.graph.clock.EvaluationTime()
	return len(s.entries) > 0 && s.entries[len(s.entries)-1].at > now
}

// NextTime is the earliest entry, MaxTime when the queue is empty.
func (s *Scheduler) NextTime() ts.EngineTime {
	if len(s.entries) == 0 {
		return ts.MaxTime
	}
	return s.entries[0].at
}

// consume drops all entries at or before t. Called after the node ran at t.
func (s *Scheduler) consume(t ts.EngineTime) {
	i := 0
	for i < len(s.entries) && s.entries[i].at <= t {
		i++
	}
	if i > 0 {
		s.entries = slices.Delete(s.entries, 0, i)
	}
}

func (s *Scheduler) removeTag(tag string) {
	s.entries = slices.DeleteFunc(s.entries, func(e schedEntry) bool { return e.tag == tag })
}

func (s *Scheduler) sort() {
	slices.SortStableFunc(s.entries, func(a, b schedEntry) int {
		switch {
		case a.at < b.at:
			return -1
		case a.at > b.at:
			return 1
		case a.seq < b.seq:
			return -1
		case a.seq > b.seq:
			return 1
		}
		return 0
	})
}
