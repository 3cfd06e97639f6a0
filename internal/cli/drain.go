package cli

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/fieldsync/internal/config"
	"github.com/roach88/fieldsync/internal/engine"
	"github.com/roach88/fieldsync/internal/tracing"
)

// NewDrainCommand creates the drain command.
func NewDrainCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "drain",
		Short: "Replay the pending queue against the remote store once",
		Long: `Probe the remote store and, if it answers, run one sync pass over the
pending queue.

Exit codes:
  0 - Pass completed (entries may still have been requeued or quarantined)
  1 - Remote unreachable, or the pass stopped on an authentication failure
  2 - Command error (bad config, database in use, etc.)

Examples:
  fieldsync drain
  fieldsync drain --db ./field.db --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDrain(rootOpts, cmd)
		},
	}
	return cmd
}

func runDrain(opts *RootOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	f := newFormatter(cmd, opts)
	a, err := openApp(ctx, opts, f, appOptions{connect: true, exclusive: true})
	if err != nil {
		return err
	}
	defer a.Close()

	shutdown, err := startTracing(ctx, a.cfg, f.GetErrWriter())
	if err != nil {
		return f.fail(ExitCommandError, CodeConfig, "failed to start tracing", err)
	}
	defer shutdown()

	if a.offline != nil {
		return f.fail(ExitFailure, CodeRemote, "remote store unreachable", a.offline)
	}

	result, err := a.orch.DrainQueue(ctx)
	if err != nil {
		return f.fail(ExitCommandError, CodeStore, "sync pass failed", err)
	}
	return reportPass(f, result)
}

// reportPass renders a pass result and turns an authentication abort into
// a failing exit code.
func reportPass(f *OutputFormatter, result *engine.PassResult) error {
	body := passOutput{PassResult: result}
	if result.AuthError != nil {
		body.AuthError = result.AuthError.Error()
	}
	if err := f.Render(body, func(w io.Writer) { renderPass(w, result) }); err != nil {
		return err
	}
	if result.AuthAborted() {
		return WrapExitError(ExitFailure, "sync pass aborted", result.AuthError)
	}
	return nil
}

type passOutput struct {
	*engine.PassResult
	AuthError string `json:"auth_error,omitempty"`
}

// startTracing installs the configured span exporter. The returned function
// flushes and stops it.
func startTracing(ctx context.Context, cfg *config.Config, w io.Writer) (func(), error) {
	p, err := tracing.New(ctx, tracing.Config{
		ExporterType: tracing.ExporterType(cfg.Tracing.Exporter),
		OTLPEndpoint: cfg.Tracing.Endpoint,
		ServiceName:  cfg.Tracing.ServiceName,
		SampleRate:   cfg.Tracing.SampleRate,
		Output:       w,
	})
	if err != nil {
		return nil, err
	}
	return func() {
		_ = p.Shutdown(context.WithoutCancel(ctx))
	}, nil
}
