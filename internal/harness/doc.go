// Package harness runs declarative graph scenarios for conformance
// testing.
//
// A scenario is a YAML file carrying a full graph description, the nodes
// to watch, and assertions over the resulting tick trace. Scenarios run
// in simulation from a fixed epoch, so the trace of a deterministic graph
// is byte-stable and can be pinned with a golden file.
//
// Three layers build on each other:
//
//   - Run executes one scenario and evaluates its assertions.
//   - RunWithGolden additionally compares the canonical trace against
//     testdata/golden/<name>.golden (regenerate with go test -update).
//   - RunDir loads every scenario under a directory, for the CLI's test
//     command and for table-driven conformance suites.
package harness
