package cli

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/gigledger/internal/config"
	"github.com/roach88/gigledger/internal/engine"
	"github.com/roach88/gigledger/internal/remote"
	"github.com/roach88/gigledger/internal/store"
)

// DefaultConfigPath is read when --config is not given.
const DefaultConfigPath = "gigledger.yaml"

// app is the engine and its dependencies for one command invocation.
type app struct {
	cfg    config.Config
	store  *store.Store
	engine *engine.Engine
	logger *slog.Logger
	out    *OutputFormatter
}

// loadConfig reads the config file and applies flag overrides.
func loadConfig(opts *RootOptions) (config.Config, error) {
	path, optional := opts.Config, false
	if path == "" {
		path, optional = DefaultConfigPath, true
	}
	cfg, err := config.Load(path, optional)
	if err != nil {
		return config.Config{}, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if opts.Database != "" {
		cfg.Database = opts.Database
	}
	if opts.Remote != "" {
		cfg.Remote.URL = opts.Remote
	}
	return cfg, nil
}

// newLogger builds the text logger on w; --verbose forces debug.
func newLogger(opts *RootOptions, cfg config.Config, w io.Writer) *slog.Logger {
	level := cfg.Log.SlogLevel()
	if opts.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// openApp loads config, opens the database and builds the engine. Commands
// that talk to the remote sheet pass needRemote; the others run with the
// remote unset.
func openApp(opts *RootOptions, cmd *cobra.Command, needRemote bool) (*app, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	if needRemote && cfg.Remote.URL == "" {
		return nil, NewExitError(ExitCommandError, "no remote configured: set remote.url or pass --remote")
	}

	logger := newLogger(opts, cfg, cmd.ErrOrStderr())
	slog.SetDefault(logger)

	logger.Debug("opening database", "path", cfg.Database)
	st, err := store.Open(cfg.Database)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	var rem remote.Remote = remote.Offline{}
	if cfg.Remote.URL != "" {
		rem = remote.NewClient(cfg.Remote.URL, cfg.Remote.Timeout)
	}

	return &app{
		cfg:    cfg,
		store:  st,
		engine: engine.New(st, rem,
			engine.WithLogger(logger),
			engine.WithFailureLimit(cfg.Poll.FailureThreshold),
		),
		logger: logger,
		out:    newFormatter(opts, cmd),
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Error("error closing database", "error", err)
	}
}
