package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/fieldsync/internal/control"
	"github.com/roach88/fieldsync/internal/engine"
	"github.com/roach88/fieldsync/internal/metrics"
)

// shutdownTimeout bounds how long in-flight control requests may run after
// a shutdown signal.
const shutdownTimeout = 10 * time.Second

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Listen        string
	LogFile       string
	ProbeInterval time.Duration
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the sync orchestrator with its HTTP control API",
		Long: `Run the orchestrator as a long-lived process. A background probe pings
the remote store and drains the queue whenever connectivity returns. The
control API accepts mutations, manual sync triggers, connectivity reports
and quarantine actions, and serves Prometheus metrics at /metrics.

Example:
  fieldsync serve --db ./field.db
  fieldsync serve --listen 0.0.0.0:7420 --log-file /var/log/fieldsync.log`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Listen, "listen", "", "control API address (overrides config)")
	cmd.Flags().StringVar(&opts.LogFile, "log-file", "", "write logs to a rotating file (overrides config)")
	cmd.Flags().DurationVar(&opts.ProbeInterval, "probe-interval", 0, "connectivity probe interval (overrides config)")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	f := newFormatter(cmd, opts.RootOptions)

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	m := metrics.New()
	a, err := openApp(ctx, opts.RootOptions, f, appOptions{
		remote:    true,
		exclusive: true,
		logFile:   opts.LogFile,
		engine:    []engine.Option{engine.WithRecorder(m)},
	})
	if err != nil {
		return err
	}
	defer a.Close()
	slog.SetDefault(a.logger)

	shutdownTracing, err := startTracing(ctx, a.cfg, f.GetErrWriter())
	if err != nil {
		return f.fail(ExitCommandError, CodeConfig, "failed to start tracing", err)
	}
	defer shutdownTracing()

	listen := a.cfg.Control.Listen
	if opts.Listen != "" {
		listen = opts.Listen
	}
	interval := a.cfg.Sync.ProbeInterval.Std()
	if opts.ProbeInterval > 0 {
		interval = opts.ProbeInterval
	}

	srv := &http.Server{
		Addr:              listen,
		Handler:           control.NewRouter(a.orch, control.WithMetrics(m), control.WithLogger(a.logger)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan) // Prevent signal handler leak

	go func() {
		select {
		case sig := <-sigChan:
			a.logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
			// Parent context cancelled (e.g., from test)
		}
	}()

	probe := engine.NewProbe(a.client, a.orch, interval)
	probeDone := make(chan struct{})
	go func() {
		defer close(probeDone)
		probe.Run(ctx)
	}()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.ListenAndServe()
	}()

	a.logger.Info("control API starting", "listen", listen, "db", a.cfg.Database, "probe_interval", interval)
	fmt.Fprintf(cmd.OutOrStdout(), "Control API listening on %s\n", listen)
	fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl-C to stop.")

	var runErr error
	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			runErr = WrapExitError(ExitFailure, "control API error", err)
		}
		cancel()
	case <-ctx.Done():
	}

	shutdownCtx, stop := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("control API shutdown", "error", err)
	}
	<-probeDone

	a.logger.Info("orchestrator stopped gracefully")
	return runErr
}
