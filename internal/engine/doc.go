// Package engine implements the runtime evaluation core: graphs of nodes
// connected by typed time-series edges, driven forward in discrete cycles.
//
// ARCHITECTURE:
//
// Single-threaded cooperative evaluation:
// Exactly one goroutine executes node logic for a graph. Within a cycle,
// nodes run in ascending rank order at one fixed evaluation time; an output
// mutation is visible to higher-rank subscribers in the same cycle and to
// lower-or-equal-rank subscribers in the next cycle. Concurrency exists only
// at the boundary: push queues and wall-clock alarms feed a real-time clock
// guarded by a mutex and condition variable, and the engine thread drains
// them between cycles.
//
// Clocks:
// A simulation clock advances straight to the next scheduled time, making
// runs deterministic and replayable. A real-time clock blocks until the wall
// clock catches up, an alarm fires, or an external producer signals a
// pending push event.
//
// Ownership:
// A graph owns its nodes; a node or parent output owns each output (tree
// ownership); inputs hold non-owning references to outputs and must be
// unsubscribed on unbind or dispose. The dynamic constructs (map, switch,
// mesh, try) build and tear down nested graphs while the engine runs, and
// are the only owners allowed to dispose them.
package engine
