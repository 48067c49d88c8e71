package ts

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEngineTimeRoundTrip(t *testing.T) {
	wall := time.Date(2024, 3, 1, 12, 30, 0, 250_000, time.UTC)
	et := FromTime(wall)
	assert.Equal(t, wall, et.Time())
}

func TestEngineTimeNext(t *testing.T) {
	et := FromTime(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))

	next := et.Next()
	assert.Equal(t, et+MinTD, next, "next instant is one MinTD later")
	assert.Greater(t, next, et)
}

func TestEngineTimeNextSaturatesAtNever(t *testing.T) {
	assert.Equal(t, MaxTime, MaxTime.Next())
	assert.Equal(t, MaxTime, (MaxTime - 1).Next())
}

func TestEngineTimeMinMax(t *testing.T) {
	a, b := EngineTime(10), EngineTime(20)
	assert.Equal(t, a, Min(a, b))
	assert.Equal(t, b, Max(a, b))
}

func TestEngineTimeSentinelStrings(t *testing.T) {
	assert.Equal(t, "<min>", MinTime.String())
	assert.Equal(t, "<never>", MaxTime.String())
}
