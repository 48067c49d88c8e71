package store

import (
	"context"
	"fmt"

	"github.com/roach88/tsflow/internal/engine"
	"github.com/roach88/tsflow/internal/ts"
)

// RegisterReplayOps adds the store-backed source operation to a registry:
//
//	replay - re-emits one recorded node's tick stream at the same relative
//	         offsets from the new run's start. Config: "run" (run ID),
//	         "node" (recorded node path, e.g. "root/prices").
//
// Replaying a deterministic recording through the same graph reproduces
// the run; replaying it through a changed graph is the regression test.
func RegisterReplayOps(reg *engine.Registry, s *Store) error {
	return reg.Register(&engine.OpDef{
		Name:  "replay",
		Start: replayStart(s),
		Eval:  replayEval,
	})
}

type replayTick struct {
	at      ts.EngineTime
	payload ts.Value
}

func replayStart(s *Store) engine.HookFunc {
	return func(c *engine.Context) error {
		runID := c.ConfigString("run", "")
		if runID == "" {
			return fmt.Errorf("replay: missing run config")
		}
		node := c.ConfigString("node", "")
		if node == "" {
			return fmt.Errorf("replay: missing node config")
		}

		ctx := context.Background()
		run, err := s.ReadRun(ctx, runID)
		if err != nil {
			return err
		}
		recorded, err := s.ReadTicks(ctx, runID, node)
		if err != nil {
			return err
		}

		start := c.EvaluationTime()
		ticks := make([]replayTick, 0, len(recorded))
		for _, tick := range recorded {
			if tick.Kind != "tick" {
				continue
			}
			at := start + (tick.At - run.StartedAt)
			ticks = append(ticks, replayTick{at: at, payload: tick.Payload})
			if err := c.Scheduler().Schedule(at, ""); err != nil {
				return err
			}
		}
		c.State()["ticks"] = ticks
		return nil
	}
}

func replayEval(c *engine.Context) error {
	ticks, _ := c.State()["ticks"].([]replayTick)
	now := c.EvaluationTime()
	i := 0
	for i < len(ticks) && ticks[i].at <= now {
		if err := c.Output().Apply(ticks[i].payload); err != nil {
			return err
		}
		i++
	}
	c.State()["ticks"] = ticks[i:]
	return nil
}
