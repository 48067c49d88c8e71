package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tsflow/internal/ts"
)

func TestRealTimePushWakesAdvance(t *testing.T) {
	start := ts.FromTime(time.Now())
	clk := NewRealTimeClock(start)

	go func() {
		time.Sleep(20 * time.Millisecond)
		clk.SignalPush()
	}()

	done := make(chan struct{})
	go func() {
		clk.AdvanceToNextScheduledTime()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("advance did not wake on push signal")
	}
	assert.Greater(t, int64(clk.EvaluationTime()), int64(start))
}

func TestRealTimeAlarmFires(t *testing.T) {
	start := ts.FromTime(time.Now())
	clk := NewRealTimeClock(start)

	var mu sync.Mutex
	var fired ts.EngineTime
	at := ts.FromTime(time.Now().Add(30 * time.Millisecond))
	err := clk.SetAlarm(at, "wake", func(firedAt ts.EngineTime) {
		mu.Lock()
		fired = firedAt
		mu.Unlock()
		clk.UpdateNextScheduledEvaluationTime(firedAt)
	})
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		clk.AdvanceToNextScheduledTime()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("advance did not return after the alarm")
	}
	mu.Lock()
	defer mu.Unlock()
	assert.GreaterOrEqual(t, int64(fired), int64(at))
}

func TestRealTimeAlarmInPastRejected(t *testing.T) {
	clk := NewRealTimeClock(ts.FromTime(time.Now()))
	err := clk.SetAlarm(ts.FromTime(time.Now().Add(-time.Second)), "late", func(ts.EngineTime) {})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "in the past")
}

func TestRealTimeNamedAlarmReplaces(t *testing.T) {
	clk := NewRealTimeClock(ts.FromTime(time.Now()))
	fn := func(ts.EngineTime) {}
	require.NoError(t, clk.SetAlarm(ts.FromTime(time.Now().Add(time.Hour)), "a", fn))
	require.NoError(t, clk.SetAlarm(ts.FromTime(time.Now().Add(2*time.Hour)), "a", fn))
	assert.Len(t, clk.alarms, 1)

	clk.CancelAlarm("a")
	assert.Empty(t, clk.alarms)
}

// tickCollector is a thread-safe observer for runs driven off-thread.
type tickCollector struct {
	BaseObserver
	mu    sync.Mutex
	ticks []any
}

func (c *tickCollector) AfterNodeEval(n *Node, _ ts.EngineTime) {
	if out := n.Output(); out != nil && out.Modified() {
		c.mu.Lock()
		c.ticks = append(c.ticks, out.ScalarValue())
		c.mu.Unlock()
	}
}

func (c *tickCollector) snapshot() []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]any(nil), c.ticks...)
}

func TestRealTimeRunDeliversPush(t *testing.T) {
	col := &tickCollector{}
	start := ts.FromTime(time.Now())
	g, err := Build(pushGraph("queue"), DefaultRegistry(), NewRealTimeClock(start), WithObserver(col))
	require.NoError(t, err)
	require.NoError(t, g.Initialise())
	q, err := g.PushQueue("src")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- g.Run(ctx, start, ts.MaxTime) }()

	time.Sleep(20 * time.Millisecond)
	require.True(t, q.Send(42))

	require.Eventually(t, func() bool {
		for _, v := range col.snapshot() {
			if v == 42 {
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)

	g.RequestStop()
	require.NoError(t, <-done)
	assert.Equal(t, GraphStopped, g.State())
}

func TestRealTimeRunIdlesUntilEndBound(t *testing.T) {
	col := &tickCollector{}
	start := ts.FromTime(time.Now())
	end := start.Add(300 * time.Millisecond)
	g, err := Build(pushGraph("queue"), DefaultRegistry(), NewRealTimeClock(start), WithObserver(col))
	require.NoError(t, err)
	require.NoError(t, g.Initialise())
	q, err := g.PushQueue("src")
	require.NoError(t, err)

	began := time.Now()
	done := make(chan error, 1)
	go func() { done <- g.Run(context.Background(), start, end) }()

	time.Sleep(30 * time.Millisecond)
	require.True(t, q.Send(7))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop at the end bound")
	}

	// A push-only graph has nothing engine-scheduled, yet a bounded
	// real-time run must wait out the bound and deliver pushes that
	// arrive in the meantime.
	assert.GreaterOrEqual(t, time.Since(began), 250*time.Millisecond)
	assert.Contains(t, col.snapshot(), 7)
}
