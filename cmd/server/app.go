package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/p-n-ai/pai-pathfinder/internal/curriculum"
	"github.com/p-n-ai/pai-pathfinder/internal/httpapi"
	"github.com/p-n-ai/pai-pathfinder/internal/pathfinder"
	"github.com/p-n-ai/pai-pathfinder/internal/platform/cache"
	"github.com/p-n-ai/pai-pathfinder/internal/platform/config"
	"github.com/p-n-ai/pai-pathfinder/internal/platform/database"
	"github.com/p-n-ai/pai-pathfinder/internal/platform/sqlitedb"
	"github.com/p-n-ai/pai-pathfinder/internal/progress"
)

// app holds the wired server and everything that must be closed on exit.
type app struct {
	handler http.Handler
	checks  []readinessCheck
	closers []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// catalogWriter is a catalog the YAML curriculum can be synced into.
type catalogWriter interface {
	curriculum.Catalog
	UpsertConcepts(ctx context.Context, concepts []curriculum.Concept) error
}

func buildApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	var (
		store      progress.Store
		events     progress.EventLogger = progress.NopEventLogger{}
		sqlCatalog catalogWriter
	)

	switch cfg.Store.Driver {
	case config.StorePostgres:
		db, err := database.Open(ctx, database.Options{
			URL:         cfg.Database.URL,
			MaxConns:    cfg.Database.MaxConns,
			MinConns:    cfg.Database.MinConns,
			ApplySchema: true,
		})
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		a.checks = append(a.checks, readinessCheck{name: "database", check: db.HealthCheck})

		if store, err = progress.NewPostgresStore(db.Pool); err != nil {
			return nil, err
		}
		events = progress.NewPostgresEventLogger(db.Pool)
		if sqlCatalog, err = curriculum.NewPostgresCatalog(db.Pool); err != nil {
			return nil, err
		}

	case config.StoreSQLite:
		db, err := sqlitedb.Open(ctx, cfg.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		a.closers = append(a.closers, func() { db.Close() })
		a.checks = append(a.checks, readinessCheck{name: "sqlite", check: pingSQL(db)})

		if store, err = progress.NewSQLiteStore(db); err != nil {
			return nil, err
		}
		if sqlCatalog, err = curriculum.NewSQLiteCatalog(db); err != nil {
			return nil, err
		}

	default:
		store = progress.NewMemoryStore()
	}

	catalog, err := buildCatalog(ctx, cfg, sqlCatalog)
	if err != nil {
		return nil, err
	}

	if cfg.Cache.Enabled {
		c, err := cache.New(ctx, cfg.Cache.URL)
		if err != nil {
			return nil, fmt.Errorf("connect cache: %w", err)
		}
		a.closers = append(a.closers, func() { c.Close() })
		a.checks = append(a.checks, readinessCheck{name: "cache", check: c.HealthCheck})

		cached, err := curriculum.NewCachedCatalog(catalog, c.Client, cfg.Cache.CatalogTTL, logger)
		if err != nil {
			return nil, err
		}
		if cfg.Catalog.Sync {
			if err := cached.Invalidate(ctx); err != nil {
				logger.Warn("catalog cache not invalidated after sync", "error", err)
			}
		}
		catalog = cached
	}

	svc, err := pathfinder.NewService(pathfinder.ServiceConfig{
		Catalog:  catalog,
		Store:    store,
		Events:   events,
		Logger:   logger,
		MaxPaths: cfg.Path.MaxPaths,
	})
	if err != nil {
		return nil, err
	}

	auth, err := httpapi.NewAuthenticator(cfg.Auth.JWTSecret)
	if err != nil {
		return nil, err
	}

	mux := newMux(a.checks...)
	httpapi.NewHandler(svc, auth, logger).Register(mux)
	a.handler = httpapi.Chain(mux, httpapi.Recover(logger), httpapi.AccessLog(logger))

	logger.Info("pathfinder ready",
		"store", cfg.Store.Driver,
		"catalog", cfg.Catalog.Source,
		"cache", cfg.Cache.Enabled,
	)
	return a, nil
}

// buildCatalog returns the configured concept source, syncing the YAML
// curriculum into the SQL catalog first when asked to.
func buildCatalog(ctx context.Context, cfg *config.Config, sqlCatalog catalogWriter) (curriculum.Catalog, error) {
	var loader *curriculum.Loader
	if cfg.Catalog.Source == config.CatalogYAML || cfg.Catalog.Sync {
		l, err := curriculum.NewLoader(cfg.CurriculumPath)
		if err != nil {
			return nil, err
		}
		loader = l
	}

	if cfg.Catalog.Sync && sqlCatalog != nil {
		if err := sqlCatalog.UpsertConcepts(ctx, loader.AllConcepts()); err != nil {
			return nil, fmt.Errorf("sync curriculum: %w", err)
		}
		slog.Info("curriculum synced", "concepts", len(loader.AllConcepts()))
	}

	if cfg.Catalog.Source == config.CatalogDatabase {
		if sqlCatalog == nil {
			return nil, fmt.Errorf("database catalog needs a postgres or sqlite store")
		}
		return sqlCatalog, nil
	}
	return loader, nil
}

func pingSQL(db *sql.DB) func(context.Context) error {
	return func(ctx context.Context) error {
		return db.PingContext(ctx)
	}
}
