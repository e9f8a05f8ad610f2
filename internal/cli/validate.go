package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/selftest/internal/config"
	"github.com/roach88/selftest/internal/harness"
)

// FileError is a validation failure in one file.
type FileError struct {
	File    string `json:"file"`
	Message string `json:"message"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool        `json:"valid"`
	Files  int         `json:"files"`
	Errors []FileError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <scenario-file-or-dir>...",
		Short: "Validate scenario files without running them",
		Long: `Validate harness scenario files without running them.

Each file is decoded strictly, checked against the embedded CUE schema and
checked for cross-field rules. When --config is given the configuration
file is validated too.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, paths []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
	result := ValidationResult{}

	if opts.ConfigPath != "" {
		result.Files++
		formatter.VerboseLog("Validating config %s", opts.ConfigPath)
		if _, err := config.Load(opts.ConfigPath); err != nil {
			result.Errors = append(result.Errors, FileError{File: opts.ConfigPath, Message: err.Error()})
		}
	}

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return WrapExitError(ExitCommandError, "path not found", err)
		}
		files := []string{path}
		if info.IsDir() {
			if files, err = findScenarioFiles(path, ""); err != nil {
				return WrapExitError(ExitCommandError, "failed to find scenarios", err)
			}
		}
		for _, file := range files {
			result.Files++
			formatter.VerboseLog("Validating %s", file)
			if _, err := harness.LoadScenario(file); err != nil {
				result.Errors = append(result.Errors, FileError{File: file, Message: err.Error()})
			}
		}
	}
	result.Valid = len(result.Errors) == 0

	if formatter.JSON() {
		if result.Valid {
			return formatter.Success(result)
		}
		if err := formatter.Error(ErrCodeInvalidFile, fmt.Sprintf("%d file(s) invalid", len(result.Errors)), result.Errors); err != nil {
			return err
		}
		return NewExitError(ExitFailure, fmt.Sprintf("%d file(s) invalid", len(result.Errors)))
	}

	w := cmd.OutOrStdout()
	if result.Valid {
		fmt.Fprintf(w, "✓ %d file(s) valid\n", result.Files)
		return nil
	}
	for _, e := range result.Errors {
		fmt.Fprintf(w, "✗ %s\n  %s\n", e.File, e.Message)
	}
	return NewExitError(ExitFailure, fmt.Sprintf("%d file(s) invalid", len(result.Errors)))
}
