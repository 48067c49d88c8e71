package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/tsflow/internal/engine"
	"github.com/roach88/tsflow/internal/store"
	"github.com/roach88/tsflow/internal/ts"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Config   string
	Graph    string
	Database string
	RealTime bool
	Duration time.Duration
	Watch    []string
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <definitions-dir>",
		Short: "Run a graph",
		Long: `Compile a graph definition and run it.

By default the graph runs in simulation: cycles execute back to back
and the run finishes when no more work is scheduled. With --realtime
the engine clock tracks the wall clock, alarms fire at real instants
and pushed values wake the graph as they arrive; stop with Ctrl-C.

With --db every output tick is recorded for later replay and tracing.

Examples:
  tsflow run ./graphs --graph prices
  tsflow run ./graphs --graph prices --db ./runs.db
  tsflow run ./graphs --graph feed --realtime --duration 30s`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGraph(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Config, "config", "", "YAML run configuration file (flags override)")
	cmd.Flags().StringVar(&opts.Graph, "graph", "", "graph to run (defaults to the only graph defined)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "record the run into this SQLite database")
	cmd.Flags().BoolVar(&opts.RealTime, "realtime", false, "drive the graph from the wall clock")
	cmd.Flags().DurationVar(&opts.Duration, "duration", 0, "stop after this much engine time (0 = until quiescence or Ctrl-C)")
	cmd.Flags().StringSliceVar(&opts.Watch, "watch", nil, "print ticks of these nodes (default: all)")

	return cmd
}

func runGraph(opts *RunOptions, dir string, cmd *cobra.Command) error {
	logLevel := slog.LevelWarn
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: logLevel}))

	if opts.Config != "" {
		cfg, err := LoadRunConfig(opts.Config)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to load run config", err)
		}
		cfg.apply(opts, cmd.Flags().Changed)
	}

	d, err := LoadGraph(dir, opts.Graph)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load graph", err)
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}

	start := ts.FromTime(time.Now())
	var clock engine.Clock
	if opts.RealTime {
		clock = engine.NewRealTimeClock(start)
	} else {
		clock = engine.NewSimulationClock(start)
	}

	buildOpts := []engine.GraphOption{engine.WithLogger(logger)}

	tr := engine.NewTraceObserver(opts.Watch...)
	buildOpts = append(buildOpts, engine.WithObserver(tr))

	var recorder *store.Recorder
	if opts.Database != "" {
		st, err := store.Open(opts.Database)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				logger.Error("closing database", "error", closeErr)
			}
		}()
		recorder = store.NewRecorder(parentCtx, st)
		buildOpts = append(buildOpts, engine.WithObserver(recorder))
	}

	g, err := engine.Build(d, engine.DefaultRegistry(), clock, buildOpts...)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build graph", err)
	}

	end := ts.MaxTime
	if opts.Duration > 0 {
		end = start.Add(opts.Duration)
	}

	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, stopping", "signal", sig)
			g.RequestStop()
		case <-ctx.Done():
		}
	}()

	runErr := g.Run(ctx, start, end)

	if err := printTrace(cmd.OutOrStdout(), opts.Format, tr); err != nil {
		return err
	}
	if recorder != nil {
		if err := recorder.Err(); err != nil {
			return WrapExitError(ExitFailure, "recording failed", err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "recorded run %s\n", recorder.RunID())
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return WrapExitError(ExitFailure, "run failed", runErr)
	}
	return nil
}

// printTrace renders traced ticks as canonical JSON lines, or wraps them
// in the standard envelope for JSON output.
func printTrace(w io.Writer, format string, tr *engine.TraceObserver) error {
	data, err := tr.Canonical()
	if err != nil {
		return WrapExitError(ExitFailure, "failed to render trace", err)
	}
	if format == "json" {
		out := &OutputFormatter{Format: format, Writer: w}
		lines := splitLines(data)
		return out.Success(lines)
	}
	_, err = w.Write(data)
	return err
}

func splitLines(data []byte) []string {
	var lines []string
	start := 0
	for i, b := range data {
		if b == '\n' {
			lines = append(lines, string(data[start:i]))
			start = i + 1
		}
	}
	if start < len(data) {
		lines = append(lines, string(data[start:]))
	}
	return lines
}
