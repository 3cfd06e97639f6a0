package cli

import (
	"io"

	"github.com/spf13/cobra"
)

// StatusOptions holds flags for the status command.
type StatusOptions struct {
	*RootOptions
	Ping bool
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatusOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show queue and quarantine counts",
		Long: `Show how many user-facing entries are waiting to sync and how many
are quarantined.

Connectivity is reported as offline unless --ping is given, in which case
the remote store is probed first.

Examples:
  fieldsync status
  fieldsync status --ping --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Ping, "ping", false, "probe the remote store before reporting")

	return cmd
}

func runStatus(opts *StatusOptions, cmd *cobra.Command) error {
	f := newFormatter(cmd, opts.RootOptions)
	a, err := openApp(cmd.Context(), opts.RootOptions, f, appOptions{connect: opts.Ping})
	if err != nil {
		return err
	}
	defer a.Close()

	st, err := a.orch.Status(cmd.Context())
	if err != nil {
		return f.fail(ExitCommandError, CodeStore, "failed to read status", err)
	}
	return f.Render(st, func(w io.Writer) { renderStatus(w, st) })
}
