// Package commands implements the reload-host command line
package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/DataDog/reload-manager/internal/printer"
)

var versionInfo = "dev"

// ExitCodeError - The hosted unit exited with a non-zero code, or the host aborted
type ExitCodeError struct {
	Code int
	Err  error
}

func (e *ExitCodeError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitCodeError) Unwrap() error {
	return e.Err
}

// NewRootCommand returns the reload-host command with its subcommands
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "reload-host",
		Short: "Run a Go plugin and hot reload it each time it is rebuilt",
		Long: `reload-host loads a unit built with -buildmode=plugin, runs its capsule and watches
the artifact. When the artifact is rebuilt, the running capsule pauses, the new
generation is loaded and the capsule resumes with its state carried over.`,
		Version: versionInfo,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	p := func(cmd *cobra.Command) *printer.Printer {
		return printer.New(cmd.OutOrStdout(), cmd.ErrOrStderr())
	}
	root.AddCommand(newRunCommand(p), newInspectCommand(p))
	return root
}

// Execute runs the command line
func Execute() error {
	return NewRootCommand().Execute()
}

// SetVersionInfo sets the version reported by --version
func SetVersionInfo(version, commit, date string) {
	versionInfo = fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)
}
