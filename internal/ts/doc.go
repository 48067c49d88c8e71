// Package ts defines the time-series value model shared by every layer of
// the engine: engine time, the sealed value sum type (scalar, list, bundle,
// dict, set, reference), per-cycle delta types with removal tombstones, and
// the canonical serialization used for traces and the tick store.
//
// The package is deliberately storage-free: outputs in the engine own the
// mutable state of an edge and hand out ts values as immutable snapshots.
// Delta types carry the intra-cycle coalescing contract - churn that cancels
// out within one cycle is invisible in the delta.
package ts
