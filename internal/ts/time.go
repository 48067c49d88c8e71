package ts

import (
	"math"
	"time"
)

// EngineTime is the instant type used for all scheduling and modification
// stamps inside a graph. It is nanoseconds since the Unix epoch.
//
// Engine time is totally monotonic within a graph run: the evaluation time
// of consecutive cycles never decreases, and distinct cycles differ by at
// least MinTD.
type EngineTime int64

const (
	// MinTime is the smallest representable instant. An output whose
	// last-modified time equals MinTime has never ticked and is invalid.
	MinTime EngineTime = 0

	// MaxTime is the "never" sentinel. A node scheduled at MaxTime is not
	// scheduled at all.
	MaxTime EngineTime = math.MaxInt64

	// MinTD is the minimum tick granularity: the tie-break unit between
	// causally ordered cycles and the default "one cycle later" increment.
	MinTD EngineTime = EngineTime(time.Microsecond)
)

// FromTime converts a wall-clock time to engine time.
func FromTime(t time.Time) EngineTime {
	return EngineTime(t.UnixNano())
}

// Time converts an engine time back to a wall-clock time.
// MinTime and MaxTime have no meaningful wall-clock equivalent.
func (t EngineTime) Time() time.Time {
	return time.Unix(0, int64(t)).UTC()
}

// Add returns t shifted by a duration.
func (t EngineTime) Add(d time.Duration) EngineTime {
	return t + EngineTime(d)
}

// Next returns the earliest instant strictly after t.
func (t EngineTime) Next() EngineTime {
	if t >= MaxTime-MinTD {
		return MaxTime
	}
	return t + MinTD
}

// Min returns the smaller of two instants.
func Min(a, b EngineTime) EngineTime {
	if a < b {
		return a
	}
	return b
}

// Max returns the larger of two instants.
func Max(a, b EngineTime) EngineTime {
	if a > b {
		return a
	}
	return b
}

func (t EngineTime) String() string {
	switch t {
	case MinTime:
		return "<min>"
	case MaxTime:
		return "<never>"
	}
	return t.Time().Format("2006-01-02T15:04:05.000000Z")
}
