package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/gofrs/flock"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/roach88/fieldsync/internal/config"
	"github.com/roach88/fieldsync/internal/engine"
	"github.com/roach88/fieldsync/internal/postgrest"
	"github.com/roach88/fieldsync/internal/remote"
	"github.com/roach88/fieldsync/internal/store"
)

// app is the wiring shared by every command that touches the database.
type app struct {
	cfg    *config.Config
	store  *store.Store
	client *postgrest.Client // nil unless the command needs the remote
	orch   *engine.Orchestrator
	logger *slog.Logger
	lock   *flock.Flock

	// offline holds the ping error when connect found the remote unreachable.
	offline error

	closers []io.Closer
}

// appOptions selects what openApp sets up.
type appOptions struct {
	// remote requires remote credentials and builds a PostgREST client.
	remote bool

	// exclusive takes the database lock so that only one process drains.
	exclusive bool

	// connect pings the remote and starts the orchestrator online when it
	// answered. Implies remote.
	connect bool

	// logFile overrides the configured log file.
	logFile string

	// engine are extra orchestrator options.
	engine []engine.Option
}

// loadConfig reads configuration and applies the --db override.
func loadConfig(opts *RootOptions) (*config.Config, error) {
	cfg, err := config.Load(config.Options{Path: opts.ConfigPath, EnvFile: opts.EnvFile})
	if err != nil {
		return nil, err
	}
	if opts.Database != "" {
		cfg.Database = opts.Database
	}
	return cfg, nil
}

// newLogger builds the process logger. Logs go to w, or to a rotating file
// when cfg.Log.File is set.
func newLogger(cfg *config.Config, verbose bool, w io.Writer) (*slog.Logger, io.Closer, error) {
	level, err := cfg.LogLevel()
	if err != nil {
		return nil, nil, err
	}
	if verbose {
		level = slog.LevelDebug
	}

	var closer io.Closer = nopCloser{}
	if cfg.Log.File != "" {
		lj := &lumberjack.Logger{
			Filename:   cfg.Log.File,
			MaxSize:    10, // megabytes
			MaxBackups: 5,
			MaxAge:     30, // days
			Compress:   true,
		}
		w, closer = lj, lj
	}

	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(handler), closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// openApp loads configuration, opens the store and builds the orchestrator.
// Failures are reported through f and returned as ExitErrors.
func openApp(ctx context.Context, opts *RootOptions, f *OutputFormatter, ao appOptions) (*app, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, f.fail(ExitCommandError, CodeConfig, "invalid configuration", err)
	}

	if ao.logFile != "" {
		cfg.Log.File = ao.logFile
	}
	logger, logCloser, err := newLogger(cfg, opts.Verbose, f.GetErrWriter())
	if err != nil {
		return nil, f.fail(ExitCommandError, CodeConfig, "invalid configuration", err)
	}
	a := &app{cfg: cfg, logger: logger, closers: []io.Closer{logCloser}}

	if ao.connect {
		ao.remote = true
	}
	if ao.remote && !cfg.HasRemote() {
		a.Close()
		return nil, f.fail(ExitCommandError, CodeConfig,
			fmt.Sprintf("remote store not configured: set %s and %s", config.EnvRemoteURL, config.EnvAPIKey), nil)
	}

	if ao.exclusive && cfg.Database != ":memory:" {
		a.lock = flock.New(cfg.Database + ".lock")
		locked, err := a.lock.TryLock()
		if err != nil {
			a.Close()
			return nil, f.fail(ExitCommandError, CodeLocked, "failed to lock database", err)
		}
		if !locked {
			a.Close()
			return nil, f.fail(ExitCommandError, CodeLocked,
				fmt.Sprintf("database %s is in use by another fieldsync process", cfg.Database), nil)
		}
	}

	f.VerboseLog("Opening database %s", cfg.Database)
	st, err := store.Open(cfg.Database)
	if err != nil {
		a.Close()
		return nil, f.fail(ExitCommandError, CodeStore, "failed to open database", err)
	}
	a.store = st

	var rs remote.Store
	if ao.remote {
		client, err := postgrest.New(postgrest.Config{
			BaseURL:     cfg.Remote.URL,
			APIKey:      cfg.Remote.APIKey,
			AccessToken: cfg.Remote.AccessToken,
			Timeout:     cfg.Remote.Timeout.Std(),
		})
		if err != nil {
			a.Close()
			return nil, f.fail(ExitCommandError, CodeConfig, "invalid remote configuration", err)
		}
		a.client = client
		rs = client
	}

	orchOpts := append(engineOptions(cfg, logger), ao.engine...)
	if ao.connect {
		err := a.client.Ping(ctx)
		if engine.Reachable(err) {
			orchOpts = append(orchOpts, engine.WithOnline(true))
		} else {
			a.offline = err
			logger.Warn("remote unreachable", "error", err)
		}
	}
	orch, err := engine.New(ctx, st, rs, orchOpts...)
	if err != nil {
		a.Close()
		return nil, f.fail(ExitCommandError, CodeStore, "failed to start orchestrator", err)
	}
	a.orch = orch
	if ao.remote {
		a.subscribe()
	}
	return a, nil
}

// subscribe registers the app as the orchestrator's collaborator: synced
// records are purged from the overlay and re-fetched, and a rejected session
// drops the access token so later requests fall back to the anon key.
func (a *app) subscribe() {
	hooks := a.orch.Hooks()
	hooks.OnSyncComplete(func(ids []string) {
		a.afterSync(context.Background(), ids)
	})
	hooks.OnAuthFailure(func(err error) {
		a.logger.Warn("remote store rejected the session, dropping access token", "error", err)
		a.client.SetAccessToken("")
	})
}

// afterSync purges the overlay rows of the synced client ids, then refreshes
// the cache of every table they belonged to plus the configured pending tables.
func (a *app) afterSync(ctx context.Context, ids []string) {
	rec := a.orch.Reconciler()

	tables := map[string]bool{}
	for _, t := range a.cfg.Sync.PendingTables {
		tables[t] = true
	}
	rows, err := rec.ListByClientIDs(ctx, ids)
	if err != nil {
		a.logger.Error("list synced overlay rows", "error", err)
	}
	for _, r := range rows {
		tables[r.Table] = true
	}

	n, err := rec.RemoveByClientIDs(ctx, ids)
	if err != nil {
		a.logger.Error("purge synced overlay rows", "error", err)
		return
	}
	a.logger.Debug("purged synced overlay rows", "count", n)

	names := make([]string, 0, len(tables))
	for t := range tables {
		names = append(names, t)
	}
	sort.Strings(names)
	for _, t := range names {
		if _, err := a.orch.RefreshCache(ctx, t); err != nil {
			a.logger.Warn("refresh after sync", "table", t, "error", err)
		}
	}
}

// engineOptions maps configuration onto orchestrator options.
func engineOptions(cfg *config.Config, logger *slog.Logger) []engine.Option {
	tiers := engine.DefaultTiers()
	for table, tier := range cfg.Sync.Tiers {
		tiers[table] = tier
	}
	opts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithPolicy(engine.Policy{MaxRetries: cfg.Sync.MaxRetries}),
		engine.WithTiers(tiers),
	}
	if len(cfg.Sync.PendingTables) > 0 {
		opts = append(opts, engine.WithPendingTables(cfg.Sync.PendingTables...))
	}
	return opts
}

// Close releases the store, the database lock and the log file.
func (a *app) Close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Error("error closing database", "error", err)
		}
	}
	if a.lock != nil {
		if err := a.lock.Unlock(); err != nil {
			a.logger.Error("error releasing database lock", "error", err)
		}
	}
	for _, c := range a.closers {
		_ = c.Close()
	}
}
