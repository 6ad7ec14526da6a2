// Package cli holds the accessd commands.
package cli

import (
	"context"
	"errors"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/fitcoach/access/internal/app"
)

// NewRootCommand builds the accessd command tree. Running it without a subcommand serves HTTP.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "accessd",
		Short:         "Role-based access service for the coaching platform",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
	root.AddCommand(newServeCommand(), newMigrateCommand(), newRolesCommand())
	return root
}

// ExecuteContext runs the command tree with ctx.
func ExecuteContext(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and page guards",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

func loadRuntime() (*app.Config, *slog.Logger, error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return nil, nil, err
	}
	return cfg, app.NewLogger(cfg), nil
}

// ExitCode maps an ExecuteContext error to a process exit status. Commands that already
// reported their failure return an error carrying the status; quiet reports whether the
// error still needs printing.
func ExitCode(err error) (code int, quiet bool) {
	var exit exitCodeError
	if errors.As(err, &exit) {
		return int(exit), true
	}
	return 1, false
}
