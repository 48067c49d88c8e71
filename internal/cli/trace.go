package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/tsflow/internal/store"
	"github.com/roach88/tsflow/internal/ts"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Node     string
}

// TraceLine is one recorded tick in the trace command's JSON output.
type TraceLine struct {
	Seq   int64  `json:"seq"`
	Node  string `json:"node"`
	Kind  string `json:"kind"`
	At    int64  `json:"at"`
	Value string `json:"value"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace <run-id>",
		Short: "Print a recorded run's ticks",
		Long: `Print the tick log of a recorded run in evaluation order.

Without --node every node's ticks are shown. With no run ID argument,
the recorded runs are listed instead.

Examples:
  tsflow trace --db ./runs.db
  tsflow trace --db ./runs.db 2f6c...
  tsflow trace --db ./runs.db 2f6c... --node root/prices`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return listRuns(opts, cmd)
			}
			return runTrace(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Node, "node", "", "filter to one node path")

	return cmd
}

func listRuns(opts *TraceOptions, cmd *cobra.Command) error {
	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	runs, err := st.ListRuns(context.Background())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list runs", err)
	}

	if opts.Format == "json" {
		out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
		return out.Success(runs)
	}
	for _, run := range runs {
		state := "running"
		if run.FinishedAt != nil {
			state = "finished"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  %s  %s\n",
			run.ID, run.Graph, run.StartedAt.String(), state)
	}
	return nil
}

func runTrace(opts *TraceOptions, runID string, cmd *cobra.Command) error {
	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	ctx := context.Background()
	if _, err := st.ReadRun(ctx, runID); err != nil {
		return WrapExitError(ExitCommandError, "failed to read run", err)
	}

	stream, err := st.StreamTicks(ctx, runID, opts.Node)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read ticks", err)
	}
	defer stream.Close()

	var lines []TraceLine
	for {
		tick, ok := stream.Next()
		if !ok {
			break
		}
		payload, err := ts.MarshalCanonical(tick.Payload)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to render payload", err)
		}
		line := TraceLine{
			Seq:   tick.Seq,
			Node:  tick.Node,
			Kind:  tick.Kind,
			At:    int64(tick.At),
			Value: string(payload),
		}
		if opts.Format == "json" {
			lines = append(lines, line)
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), `{"time":%d,"node":%q,"kind":%q,"value":%s}`+"\n",
			line.At, line.Node, line.Kind, line.Value)
	}
	if err := stream.Err(); err != nil {
		return WrapExitError(ExitCommandError, "failed to read ticks", err)
	}

	if opts.Format == "json" {
		out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
		return out.Success(lines)
	}
	return nil
}
