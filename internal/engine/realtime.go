package engine

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/roach88/tsflow/internal/ts"
)

// DefaultPushStaleness is how long a pending push event may starve behind
// a dense node schedule before the clock favors delivering it anyway. This
// is a fairness tunable, not a hard contract.
const DefaultPushStaleness = 15 * time.Second

type alarm struct {
	at   ts.EngineTime
	name string
	fn   func(firedAt ts.EngineTime)
	seq  int64
}

// RealTimeClock drives a graph against the wall clock. Advancing blocks on
// a condition variable until the wall clock reaches the next scheduled
// time, a wall-clock alarm fires, or an external producer signals a
// pending push event.
//
// This is the only object in the engine with a mutex/condition-variable
// discipline; everything else is single-writer by construction of the
// cooperative loop.
type RealTimeClock struct {
	mu   sync.Mutex
	cond *sync.Cond

	evalTime   ts.EngineTime
	next       ts.EngineTime
	cycleStart time.Time

	alarms   []alarm
	alarmSeq int64

	pushPending bool
	pushSince   time.Time
	staleness   time.Duration
}

// RealTimeOption configures a real-time clock.
type RealTimeOption func(*RealTimeClock)

// WithPushStaleness overrides the push starvation window.
func WithPushStaleness(d time.Duration) RealTimeOption {
	return func(c *RealTimeClock) {
		c.staleness = d
	}
}

// NewRealTimeClock creates a real-time clock positioned at start.
func NewRealTimeClock(start ts.EngineTime, opts ...RealTimeOption) *RealTimeClock {
	c := &RealTimeClock{
		evalTime:  start,
		next:      ts.MaxTime,
		staleness: DefaultPushStaleness,
	}
	c.cond = sync.NewCond(&c.mu)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *RealTimeClock) EvaluationTime() ts.EngineTime {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evalTime
}

func (c *RealTimeClock) Now() ts.EngineTime { return ts.FromTime(time.Now()) }

func (c *RealTimeClock) CycleTime() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cycleStart.IsZero() {
		return 0
	}
	return time.Since(c.cycleStart)
}

func (c *RealTimeClock) NextCycleEvaluationTime() ts.EngineTime {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evalTime.Next()
}

func (c *RealTimeClock) UpdateNextScheduledEvaluationTime(t ts.EngineTime) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next = ts.Max(c.evalTime.Next(), ts.Min(c.next, t))
	c.cond.Broadcast()
}

// AdvanceToNextScheduledTime fires any due alarms, then blocks until either
// the wall clock reaches the next scheduled time or an external thread
// signals a pending push event. On return the evaluation time is
// min(nextScheduled, max(nextCycleTime, wallNow)).
//
// A pending push is delivered early only when no node is scheduled sooner
// than the wall clock, except after the staleness window where pending
// pushes win over a precise schedule.
func (c *RealTimeClock) AdvanceToNextScheduledTime() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for {
		now := ts.FromTime(time.Now())

		for len(c.alarms) > 0 && c.alarms[0].at <= now {
			due := c.alarms[0]
			c.alarms = c.alarms[1:]
			// Callbacks run on the engine thread and may reschedule;
			// release the lock while they do.
			c.mu.Unlock()
			due.fn(now)
			c.mu.Lock()
			now = ts.FromTime(time.Now())
		}

		nextCycle := c.evalTime.Next()

		if c.pushPending {
			starved := !c.pushSince.IsZero() && time.Since(c.pushSince) >= c.staleness
			if c.next >= now || starved {
				c.evalTime = ts.Min(c.next, ts.Max(nextCycle, now))
				c.pushPending = false
				c.pushSince = time.Time{}
				c.next = ts.MaxTime
				return
			}
		}

		if c.next < ts.MaxTime && c.next <= now {
			c.evalTime = ts.Min(c.next, ts.Max(nextCycle, now))
			c.next = ts.MaxTime
			return
		}

		c.waitLocked(now)
	}
}

// waitLocked blocks until the earliest wake-worthy instant: the next
// scheduled time, the first alarm, or the push staleness deadline.
func (c *RealTimeClock) waitLocked(now ts.EngineTime) {
	deadline := c.next
	if len(c.alarms) > 0 {
		deadline = ts.Min(deadline, c.alarms[0].at)
	}
	if c.pushPending && !c.pushSince.IsZero() {
		deadline = ts.Min(deadline, ts.FromTime(c.pushSince.Add(c.staleness)))
	}

	if deadline == ts.MaxTime {
		c.cond.Wait()
		return
	}

	wait := time.Duration(deadline - now)
	if wait <= 0 {
		return
	}
	timer := time.AfterFunc(wait, c.cond.Broadcast)
	c.cond.Wait()
	timer.Stop()
}

// SignalPush marks an external push event pending and wakes the engine
// thread. Safe to call from any goroutine.
func (c *RealTimeClock) SignalPush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.pushPending {
		c.pushPending = true
		c.pushSince = time.Now()
	}
	c.cond.Broadcast()
}

// SetAlarm registers a wall-clock alarm. A later call with the same name
// replaces the earlier alarm. Alarms in the past are a scheduling misuse
// and fail immediately.
func (c *RealTimeClock) SetAlarm(at ts.EngineTime, name string, fn func(firedAt ts.EngineTime)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if at < ts.FromTime(time.Now()) {
		return &SchedulingError{Message: fmt.Sprintf("alarm %q scheduled in the past (%s)", name, at)}
	}

	c.removeAlarmLocked(name)
	c.alarmSeq++
	c.alarms = append(c.alarms, alarm{at: at, name: name, fn: fn, seq: c.alarmSeq})
	slices.SortStableFunc(c.alarms, func(a, b alarm) int {
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
	c.cond.Broadcast()
	return nil
}

// CancelAlarm removes a named alarm if present.
func (c *RealTimeClock) CancelAlarm(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeAlarmLocked(name)
}

func (c *RealTimeClock) removeAlarmLocked(name string) {
	c.alarms = slices.DeleteFunc(c.alarms, func(a alarm) bool { return a.name == name })
}

func (c *RealTimeClock) setEvaluationTime(t ts.EngineTime) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.evalTime = t
	c.next = ts.MaxTime
}

func (c *RealTimeClock) startCycle() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cycleStart = time.Now()
}

func (c *RealTimeClock) nextScheduledTime() ts.EngineTime {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.next
}

// pushWaker is implemented by clocks that can be woken by producer threads.
type pushWaker interface {
	SignalPush()
}

// alarmClock is implemented by clocks supporting wall-clock alarms.
type alarmClock interface {
	SetAlarm(at ts.EngineTime, name string, fn func(firedAt ts.EngineTime)) error
	CancelAlarm(name string)
}
