package cli

import (
	"io"

	"github.com/spf13/cobra"
)

// ReadOptions holds flags for the read command.
type ReadOptions struct {
	*RootOptions
	Refresh bool
}

// NewReadCommand creates the read command.
func NewReadCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReadOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "read <table>",
		Short: "List records, including unconfirmed local changes",
		Long: `List the records of a table as the app sees them: the last fetched
remote state with queued inserts and updates laid over it. Rows marked *
are not yet confirmed by the remote store.

Examples:
  fieldsync read farms
  fieldsync read clusters --refresh`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRead(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Refresh, "refresh", false, "re-fetch the table from the remote store first")

	return cmd
}

func runRead(opts *ReadOptions, table string, cmd *cobra.Command) error {
	f := newFormatter(cmd, opts.RootOptions)
	a, err := openApp(cmd.Context(), opts.RootOptions, f, appOptions{remote: opts.Refresh})
	if err != nil {
		return err
	}
	defer a.Close()

	if opts.Refresh {
		n, err := a.orch.RefreshCache(cmd.Context(), table)
		if err != nil {
			return f.fail(ExitFailure, CodeRemote, "failed to refresh "+table, err)
		}
		f.VerboseLog("Fetched %d %s rows", n, table)
	}

	items, err := a.orch.CombinedRead(cmd.Context(), table)
	if err != nil {
		return f.fail(ExitCommandError, CodeStore, "failed to read "+table, err)
	}
	return f.Render(items, func(w io.Writer) { renderItems(w, table, items) })
}
