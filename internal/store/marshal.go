package store

import (
	"fmt"

	"github.com/roach88/tsflow/internal/ts"
)

// marshalPayload renders a tick payload as canonical JSON. Error payloads
// arrive as scalars carrying a Go error; they persist as their message,
// since captured errors are diagnostics, not replayable values.
func marshalPayload(v ts.Value) (string, error) {
	if s, ok := v.(ts.Scalar); ok {
		if err, isErr := s.V.(error); isErr {
			v = ts.Scalar{V: err.Error()}
		}
	}
	data, err := ts.MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	return string(data), nil
}

// unmarshalPayload decodes a persisted payload. Tombstone markers inside
// dict payloads are revived so a replayed delta removes keys the way the
// recorded cycle did.
func unmarshalPayload(data string) (ts.Value, error) {
	v, err := ts.UnmarshalCanonical([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	return reviveTombstones(v), nil
}

func reviveTombstones(v ts.Value) ts.Value {
	switch val := v.(type) {
	case ts.Dict:
		entries := make(map[ts.Key]ts.Value, len(val))
		removed := false
		for k, e := range val {
			if isTombstoneMarker(e) {
				entries[k] = ts.Tombstone{}
				removed = true
				continue
			}
			entries[k] = reviveTombstones(e)
		}
		if removed {
			return ts.NewDictDelta(entries, nil)
		}
		out := make(ts.Dict, len(entries))
		for k, e := range entries {
			out[k] = e
		}
		return out
	case ts.List:
		for i, e := range val {
			val[i] = reviveTombstones(e)
		}
		return val
	}
	return v
}

func isTombstoneMarker(v ts.Value) bool {
	d, ok := v.(ts.Dict)
	if !ok || len(d) != 1 {
		return false
	}
	s, ok := d["__removed__"].(ts.Scalar)
	return ok && s.V == true
}
