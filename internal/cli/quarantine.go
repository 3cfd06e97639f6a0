package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/fieldsync/internal/engine"
)

// NewQuarantineCommand creates the quarantine command group.
func NewQuarantineCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quarantine",
		Short: "Inspect and resolve entries the sync pass gave up on",
		Long: `Entries are quarantined after a conflict or after exhausting their
retry budget. They are never retried automatically.`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:           "list",
		Short:         "List quarantined entries, oldest first",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuarantineList(rootOpts, cmd)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "retry <entry-id>",
		Short: "Requeue a quarantined entry and run a sync pass",
		Long: `Move the entry back to the pending queue with its retry count reset,
then probe the remote store and drain. When the remote is unreachable the
entry stays queued for the next drain.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuarantineRetry(rootOpts, args[0], cmd)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:           "delete <entry-id>",
		Short:         "Discard one quarantined entry",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuarantineDelete(rootOpts, args[0], cmd)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:           "clear",
		Short:         "Discard every quarantined entry",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuarantineClear(rootOpts, cmd)
		},
	})

	return cmd
}

func runQuarantineList(opts *RootOptions, cmd *cobra.Command) error {
	f := newFormatter(cmd, opts)
	a, err := openApp(cmd.Context(), opts, f, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	entries, err := a.orch.ListQuarantined(cmd.Context())
	if err != nil {
		return f.fail(ExitCommandError, CodeStore, "failed to list quarantine", err)
	}
	return f.Render(entries, func(w io.Writer) { renderQuarantine(w, entries) })
}

func runQuarantineRetry(opts *RootOptions, entryID string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	f := newFormatter(cmd, opts)
	a, err := openApp(ctx, opts, f, appOptions{connect: true, exclusive: true})
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.orch.RetryQuarantined(ctx, entryID)
	if engine.IsNotFoundError(err) {
		return f.fail(ExitCommandError, CodeNotFound, fmt.Sprintf("no quarantined entry %s", entryID), nil)
	}
	if err != nil {
		return f.fail(ExitCommandError, CodeStore, "failed to retry entry", err)
	}
	if a.offline != nil {
		f.VerboseLog("Remote unreachable (%v); entry %s stays queued", a.offline, entryID)
	}
	return reportPass(f, result)
}

func runQuarantineDelete(opts *RootOptions, entryID string, cmd *cobra.Command) error {
	f := newFormatter(cmd, opts)
	a, err := openApp(cmd.Context(), opts, f, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	err = a.orch.DeleteQuarantined(cmd.Context(), entryID)
	if engine.IsNotFoundError(err) {
		return f.fail(ExitCommandError, CodeNotFound, fmt.Sprintf("no quarantined entry %s", entryID), nil)
	}
	if err != nil {
		return f.fail(ExitCommandError, CodeStore, "failed to delete entry", err)
	}
	body := map[string]string{"deleted": entryID}
	return f.Render(body, func(w io.Writer) { fmt.Fprintf(w, "Deleted quarantined entry %s\n", entryID) })
}

func runQuarantineClear(opts *RootOptions, cmd *cobra.Command) error {
	f := newFormatter(cmd, opts)
	a, err := openApp(cmd.Context(), opts, f, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := a.orch.ClearQuarantine(cmd.Context())
	if err != nil {
		return f.fail(ExitCommandError, CodeStore, "failed to clear quarantine", err)
	}
	body := map[string]int{"removed": n}
	return f.Render(body, func(w io.Writer) { fmt.Fprintf(w, "Removed %d quarantined entries\n", n) })
}
