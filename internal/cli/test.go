package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/tsflow/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run scenario conformance suite",
		Long: `Run every YAML scenario under a directory.

Each scenario describes a graph and assertions over its simulated tick
trace. Scenarios run from a fixed epoch, so results are deterministic.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (bad path, malformed scenario)

Examples:
  tsflow test ./scenarios
  tsflow test ./scenarios --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args[0], cmd)
		},
	}
	return cmd
}

func runTests(opts *TestOptions, scenariosDir string, cmd *cobra.Command) error {
	suite, err := harness.RunSuite(scenariosDir, nil)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to run scenarios", err)
	}

	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
	if opts.Format == "json" {
		if err := out.Success(suite); err != nil {
			return err
		}
	} else {
		for _, f := range suite.Failures {
			fmt.Fprintf(cmd.OutOrStdout(), "FAIL %s\n", f.Scenario)
			for _, msg := range f.Errors {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", msg)
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d scenarios: %d passed, %d failed\n",
			suite.Total, suite.Passed, suite.Failed)
	}

	if suite.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenarios failed", suite.Failed))
	}
	return nil
}
