package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/tikcccc/Form-demo/internal/access"
	"github.com/tikcccc/Form-demo/internal/archive"
	"github.com/tikcccc/Form-demo/internal/compiler"
	"github.com/tikcccc/Form-demo/internal/config"
	"github.com/tikcccc/Form-demo/internal/engine"
	"github.com/tikcccc/Form-demo/internal/ir"
	"github.com/tikcccc/Form-demo/internal/logging"
	"github.com/tikcccc/Form-demo/internal/store"
	"github.com/tikcccc/Form-demo/internal/store/postgres"
	"github.com/tikcccc/Form-demo/internal/tracing"
)

// app bundles the collaborators a store-backed command needs.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	tracer  *tracing.Provider
	catalog *ir.Catalog
	dir     *access.Directory
	eng     *engine.Engine

	closeRepo func() error
}

// openApp loads the configuration, the catalog roles and common fields,
// opens the configured store and builds the engine. Log output and
// exported spans go to diag.
func openApp(ctx context.Context, opts *RootOptions, diag io.Writer) (*app, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "load config", err)
	}

	level := cfg.Log.Level
	if opts.Verbose {
		level = "debug"
	}
	logger, err := logging.New(level, cfg.Log.Format, diag)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "configure logging", err)
	}

	tp, err := tracing.Setup(cfg.Tracing.Enabled, ir.EngineVersion, diag)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "configure tracing", err)
	}

	cat, err := compiler.LoadCatalog(cfg.Catalog.Dir)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "load catalog", err)
	}
	dir, err := access.NewDirectory(cat.Roles, access.WithAdminRoleID(cfg.Engine.AdminRoleID))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "build role directory", err)
	}

	repo, closeRepo, err := openRepository(ctx, cfg)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "open store", err)
	}

	engOpts := []engine.EngineOption{
		engine.WithLogger(logger),
		engine.WithCommonFields(cat.CommonFields),
		engine.WithTracerProvider(tp),
	}
	if cfg.Archive.URL != "" {
		exporter, err := archive.New(ctx, cfg.Archive.URL)
		if err != nil {
			_ = closeRepo()
			return nil, WrapExitError(ExitCommandError, "open archive", err)
		}
		engOpts = append(engOpts, engine.WithArchiver(exporter))
	}

	logger.Debug("formflow ready",
		slog.String("store", cfg.Store.Driver),
		slog.String("catalog", cfg.Catalog.Dir),
		slog.Int("roles", len(cat.Roles)),
		slog.Int("templates", len(cat.Templates)),
	)

	return &app{
		cfg:       cfg,
		logger:    logger,
		tracer:    tp,
		catalog:   cat,
		dir:       dir,
		eng:       engine.New(repo, dir, engOpts...),
		closeRepo: closeRepo,
	}, nil
}

// Close flushes spans and releases the store.
func (a *app) Close(ctx context.Context) error {
	if err := a.tracer.Shutdown(ctx); err != nil {
		a.logger.Warn("flush spans", slog.String("error", err.Error()))
	}
	return a.closeRepo()
}

// resolveRole defaults an empty role to the configured admin role.
func (a *app) resolveRole(role string) string {
	if role == "" {
		return a.dir.AdminRoleID()
	}
	return role
}

func openRepository(ctx context.Context, cfg *config.Config) (engine.Repository, func() error, error) {
	switch cfg.Store.Driver {
	case config.DriverMemory:
		return store.NewMemory(), func() error { return nil }, nil
	case config.DriverPostgres:
		repo, err := postgres.Connect(ctx, cfg.Store.DSN)
		if err != nil {
			return nil, nil, err
		}
		return repo, repo.Close, nil
	case config.DriverSQLite:
		s, err := store.Open(cfg.Store.Path)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
}

// withApp opens the app, runs fn and closes the app.
func withApp(ctx context.Context, opts *RootOptions, diag io.Writer, fn func(*app) error) error {
	a, err := openApp(ctx, opts, diag)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(context.WithoutCancel(ctx)); cerr != nil {
			a.logger.Warn("close store", slog.String("error", cerr.Error()))
		}
	}()
	return fn(a)
}
