// Package app wires configuration into a running engine: logger, tracer, storage backend,
// registries and caches.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"chartline/internal/cachemanager"
	"chartline/internal/catalog"
	"chartline/internal/config"
	"chartline/internal/db"
	"chartline/internal/engine"
	"chartline/internal/events"
	"chartline/internal/logging"
	"chartline/internal/migrate"
	"chartline/internal/registry"
	"chartline/internal/repo"
	"chartline/internal/store"
	"chartline/internal/store/objstore"
	"chartline/internal/synth"
	"chartline/internal/tracing"
)

// journalLimit bounds the in-process journal used by non-sqlite backends.
const journalLimit = 10000

// App owns every long-lived dependency of a process.
type App struct {
	Config     *config.Config
	Logger     *zap.Logger
	Tracing    *tracing.Provider
	DB         *sql.DB
	Store      store.Store
	Registries *registry.Registries
	Engine     engine.Engine
}

// ResolveConfig loads the config file at path, or the workspace default, falling back to the
// built-in defaults when neither exists.
func ResolveConfig(workspace, path string) (*config.Config, error) {
	if path != "" {
		return config.FromFile(path)
	}
	return config.LoadOptional(workspace)
}

// New builds the process dependencies described by cfg. Call Close when done.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, err
	}
	tp, err := tracing.NewProvider(ctx, cfg.Tracing)
	if err != nil {
		return nil, err
	}
	a := &App{Config: cfg, Logger: log, Tracing: tp}

	st, journal, feed, err := a.openStore(ctx)
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	a.Store = st

	policy := registry.Policy{Elevated: cfg.Roles.Elevated, Team: cfg.Roles.Team}
	a.Registries = registry.NewRegistries(st, registry.Options{
		Policy:  policy,
		Journal: journal,
		Logger:  log.Named("registry"),
		Tracer:  tp.Tracer(),
	})

	cat, err := catalog.New(catalog.Options{
		FeaturedLimit: cfg.Catalog.FeaturedLimit,
		PopularLimit:  cfg.Catalog.PopularLimit,
		RecentLimit:   cfg.Catalog.RecentLimit,
	})
	if err != nil {
		_ = a.Close(ctx)
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	syn := synth.New(nil)
	if cfg.Generation.Seed != 0 {
		syn = synth.NewSeeded(cfg.Generation.Seed)
	}

	eng := engine.New(cat, syn, a.Registries, policy, log.Named("engine"))
	eng.Model = cfg.Generation.Model
	eng.Tracer = tp.Tracer()
	eng.Cache = cachemanager.NewInMemory[string, registry.Library]("library", cfg.Cache.LibraryTTL, log)
	eng.Feed = feed
	a.Engine = eng

	if len(cfg.PreloadOrgs) > 0 {
		if err := a.Registries.Warm(ctx, cfg.PreloadOrgs); err != nil {
			_ = a.Close(ctx)
			return nil, fmt.Errorf("preload organizations: %w", err)
		}
		log.Info("organizations preloaded", zap.Strings("orgs", a.Registries.Loaded()))
	}
	return a, nil
}

func (a *App) openStore(ctx context.Context) (store.Store, registry.Journal, engine.EventFeed, error) {
	cfg := a.Config
	switch cfg.Storage.Backend {
	case config.BackendSQLite:
		conn, err := db.Open(db.Config{Workspace: cfg.Storage.Workspace})
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open database: %w", err)
		}
		a.DB = conn
		if err := migrate.Migrate(ctx, conn); err != nil {
			return nil, nil, nil, fmt.Errorf("migrate: %w", err)
		}
		r := repo.Repo{DB: conn}
		a.Logger.Info("storage ready", zap.String("backend", cfg.Storage.Backend), zap.String("path", db.Path(cfg.Storage.Workspace)))
		return r, events.Writer{DB: conn}, r, nil
	case config.BackendMemory:
		journal := events.NewMemory(journalLimit)
		a.Logger.Info("storage ready", zap.String("backend", cfg.Storage.Backend))
		return store.NewMemory(), journal, journal, nil
	case config.BackendMinio:
		m := cfg.Storage.Minio
		obj, err := objstore.New(objstore.Options{
			Endpoint:  m.Endpoint,
			Bucket:    m.Bucket,
			AccessKey: m.AccessKey,
			SecretKey: m.SecretKey,
			Secure:    m.Secure,
			Prefix:    m.Prefix,
		})
		if err != nil {
			return nil, nil, nil, err
		}
		if err := obj.EnsureBucket(ctx); err != nil {
			return nil, nil, nil, err
		}
		journal := events.NewMemory(journalLimit)
		a.Logger.Info("storage ready", zap.String("backend", cfg.Storage.Backend), zap.String("bucket", m.Bucket))
		return obj, journal, journal, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// Close releases the registries, flushes spans and closes the database.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Registries != nil {
		a.Registries.Close()
	}
	if a.Tracing != nil {
		errs = append(errs, a.Tracing.Shutdown(ctx))
	}
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	if a.Logger != nil {
		_ = a.Logger.Sync()
	}
	return errors.Join(errs...)
}
