// Package store persists graph runs as append-only tick logs in SQLite.
//
// A run row records the graph and its engine start time; every output tick
// (and captured error) lands as one row carrying the cycle's canonical
// JSON delta. Because simulation runs are deterministic, the tick log of a
// run is also its replay input: the replay source op reads a recorded
// node's stream and re-emits it at the same relative offsets.
//
// ARCHITECTURE
//
// The store never touches engine internals. Recording attaches as an
// Observer; replay registers an ordinary source op. Both sides speak
// ts.Value through the canonical JSON codec, so a recorded run can be
// diffed, inspected with sqlite3, or golden-filed as-is.
package store
