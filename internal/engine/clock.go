package engine

import (
	"time"

	"github.com/roach88/tsflow/internal/ts"
)

// Clock governs "now" for one graph. Every node in a cycle observes the
// same evaluation time; the clock decides how the engine moves from one
// cycle to the next.
type Clock interface {
	// EvaluationTime is the current cycle's instant.
	EvaluationTime() ts.EngineTime

	// Now is the wall-adjacent instant used for telemetry and external
	// timestamps. In simulation it equals the evaluation time.
	Now() ts.EngineTime

	// CycleTime is the wall time spent so far in the current cycle.
	CycleTime() time.Duration

	// NextCycleEvaluationTime is the earliest instant a subsequent cycle
	// may carry: EvaluationTime + MinTD.
	NextCycleEvaluationTime() ts.EngineTime

	// UpdateNextScheduledEvaluationTime clamps the candidate next cycle
	// time downward. The clock never lets it fall below
	// NextCycleEvaluationTime.
	UpdateNextScheduledEvaluationTime(t ts.EngineTime)

	// AdvanceToNextScheduledTime moves EvaluationTime to the next cycle's
	// instant. Only the real-time implementation blocks.
	AdvanceToNextScheduledTime()
}

// engineClock is the engine-facing extension of Clock.
type engineClock interface {
	Clock

	// setEvaluationTime pins the first cycle's instant at run start.
	setEvaluationTime(t ts.EngineTime)

	// startCycle stamps the wall-clock start of a cycle for CycleTime.
	startCycle()

	// nextScheduledTime reports the currently clamped candidate, MaxTime
	// if nothing is scheduled.
	nextScheduledTime() ts.EngineTime
}

// SimulationClock drives a graph as fast as possible: advancing jumps
// straight to the computed next time without blocking. Runs are
// deterministic and replayable.
type SimulationClock struct {
	evalTime   ts.EngineTime
	next       ts.EngineTime
	cycleStart time.Time
}

// NewSimulationClock creates a simulation clock positioned at start.
func NewSimulationClock(start ts.EngineTime) *SimulationClock {
	return &SimulationClock{evalTime: start, next: ts.MaxTime}
}

func (c *SimulationClock) EvaluationTime() ts.EngineTime { return c.evalTime }

// Now in simulation is the evaluation time itself: simulated runs must not
// leak the machine's wall clock into node-visible values.
func (c *SimulationClock) Now() ts.EngineTime { return c.evalTime }

func (c *SimulationClock) CycleTime() time.Duration {
	if c.cycleStart.IsZero() {
		return 0
	}
	return time.Since(c.cycleStart)
}

func (c *SimulationClock) NextCycleEvaluationTime() ts.EngineTime { return c.evalTime.Next() }

func (c *SimulationClock) UpdateNextScheduledEvaluationTime(t ts.EngineTime) {
	c.next = ts.Max(c.NextCycleEvaluationTime(), ts.Min(c.next, t))
}

func (c *SimulationClock) AdvanceToNextScheduledTime() {
	if c.next == ts.MaxTime {
		return
	}
	c.evalTime = c.next
	c.next = ts.MaxTime
}

func (c *SimulationClock) setEvaluationTime(t ts.EngineTime) {
	c.evalTime = t
	c.next = ts.MaxTime
}

func (c *SimulationClock) startCycle() { c.cycleStart = time.Now() }

func (c *SimulationClock) nextScheduledTime() ts.EngineTime { return c.next }
