package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
}

// ValidateResult is the validate command's output.
type ValidateResult struct {
	Graphs int      `json:"graphs"`
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <definitions-dir>",
		Short: "Validate CUE graph definitions",
		Long: `Validate CUE graph definitions without running anything.

Exit codes:
  0 - All graphs valid
  1 - Validation errors found
  2 - Command error (bad path, unreadable files)

Examples:
  tsflow validate ./graphs
  tsflow validate ./graphs --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args[0], cmd)
		},
	}
	return cmd
}

func runValidate(opts *ValidateOptions, dir string, cmd *cobra.Command) error {
	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}

	graphs, err := LoadGraphs(dir)
	if err != nil {
		result := ValidateResult{Valid: false, Errors: []string{err.Error()}}
		if opts.Format == "json" {
			if encErr := out.Success(result); encErr != nil {
				return encErr
			}
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "invalid: %v\n", err)
		}
		return NewExitError(ExitFailure, "validation failed")
	}

	result := ValidateResult{Graphs: len(graphs), Valid: true}
	if opts.Format == "json" {
		return out.Success(result)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d graphs valid\n", result.Graphs)
	return nil
}
