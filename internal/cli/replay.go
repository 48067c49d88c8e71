package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/tsflow/internal/engine"
	"github.com/roach88/tsflow/internal/store"
	"github.com/roach88/tsflow/internal/ts"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
	Graph    string
}

// ReplayResult is the replay command's output.
type ReplayResult struct {
	RunID         string   `json:"run_id"`
	Deterministic bool     `json:"deterministic"`
	Ticks         int      `json:"ticks"`
	Divergences   []string `json:"divergences,omitempty"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay <definitions-dir> <run-id>",
		Short: "Re-run a recorded run and check determinism",
		Long: `Re-run a recorded run and compare the new trace tick for tick.

The graph is rebuilt from its definition and run in simulation from the
recorded start time, so a deterministic graph reproduces the recorded
trace exactly. Any divergence (different node, time, or payload) is
reported and the command exits 1.

Exit codes:
  0 - Replay matched the recording
  1 - Replay diverged
  2 - Command error (bad paths, unknown run)

Examples:
  tsflow replay ./graphs 2f6c... --db ./runs.db
  tsflow replay ./graphs 2f6c... --db ./runs.db --graph prices`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Graph, "graph", "", "graph to replay (defaults to the recorded run's graph)")

	return cmd
}

func runReplay(opts *ReplayOptions, dir, runID string, cmd *cobra.Command) error {
	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	ctx := context.Background()
	run, err := st.ReadRun(ctx, runID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read run", err)
	}

	graphName := opts.Graph
	if graphName == "" {
		graphName = run.Graph
	}
	d, err := LoadGraph(dir, graphName)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load graph", err)
	}

	recorded, err := st.ReadTicks(ctx, runID, "")
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read ticks", err)
	}

	tr := engine.NewTraceObserver()
	g, err := engine.Build(d, engine.DefaultRegistry(), engine.NewSimulationClock(run.StartedAt), engine.WithObserver(tr))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build graph", err)
	}
	if err := g.Run(ctx, run.StartedAt, ts.MaxTime); err != nil {
		return WrapExitError(ExitFailure, "replay run failed", err)
	}

	result := ReplayResult{
		RunID:         runID,
		Deterministic: true,
		Ticks:         len(recorded),
	}
	result.Divergences = compareTraces(recorded, tr.Events())
	if len(result.Divergences) > 0 {
		result.Deterministic = false
	}

	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
	if opts.Format == "json" {
		if err := out.Success(result); err != nil {
			return err
		}
	} else if result.Deterministic {
		fmt.Fprintf(cmd.OutOrStdout(), "replay matched: %d ticks\n", result.Ticks)
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "replay diverged:\n")
		for _, div := range result.Divergences {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", div)
		}
	}

	if !result.Deterministic {
		return NewExitError(ExitFailure, "replay diverged from recording")
	}
	return nil
}

// compareTraces lines the recorded ticks up against the replayed events
// and describes every mismatch. Payloads compare by canonical JSON.
func compareTraces(recorded []store.Tick, replayed []engine.TraceEvent) []string {
	var divergences []string
	n := len(recorded)
	if len(replayed) < n {
		n = len(replayed)
	}
	for i := 0; i < n; i++ {
		rec, rep := recorded[i], replayed[i]
		if rec.Node != rep.Node || rec.Kind != rep.Kind || rec.At != rep.Time {
			divergences = append(divergences, fmt.Sprintf(
				"tick %d: recorded %s %s at %d, replayed %s %s at %d",
				i, rec.Kind, rec.Node, rec.At, rep.Kind, rep.Node, rep.Time))
			continue
		}
		recPayload, err := ts.MarshalCanonical(rec.Payload)
		if err != nil {
			divergences = append(divergences, fmt.Sprintf("tick %d: recorded payload: %v", i, err))
			continue
		}
		repPayload, err := canonicalEventValue(rep)
		if err != nil {
			divergences = append(divergences, fmt.Sprintf("tick %d: replayed payload: %v", i, err))
			continue
		}
		if string(recPayload) != repPayload {
			divergences = append(divergences, fmt.Sprintf(
				"tick %d (%s at %d): recorded %s, replayed %s",
				i, rec.Node, rec.At, recPayload, repPayload))
		}
	}
	if len(recorded) != len(replayed) {
		divergences = append(divergences, fmt.Sprintf(
			"tick count: recorded %d, replayed %d", len(recorded), len(replayed)))
	}
	return divergences
}

func canonicalEventValue(ev engine.TraceEvent) (string, error) {
	val := ev.Value
	if s, ok := val.(ts.Scalar); ok {
		if err, isErr := s.V.(error); isErr {
			val = ts.Scalar{V: err.Error()}
		}
	}
	data, err := ts.MarshalCanonical(val)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
