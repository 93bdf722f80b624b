// Package server wires the storage engine together: metadata store, blob
// store, services, the upload sweeper and the metrics endpoint.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/dmitrijs2005/cloudvault/internal/dbx"
	"github.com/dmitrijs2005/cloudvault/internal/logging"
	"github.com/dmitrijs2005/cloudvault/internal/server/blobstore"
	"github.com/dmitrijs2005/cloudvault/internal/server/config"
	"github.com/dmitrijs2005/cloudvault/internal/server/gc"
	"github.com/dmitrijs2005/cloudvault/internal/server/metrics"
	"github.com/dmitrijs2005/cloudvault/internal/server/models"
	"github.com/dmitrijs2005/cloudvault/internal/server/repositories/memory"
	"github.com/dmitrijs2005/cloudvault/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/cloudvault/internal/server/services"
)

// Engine groups the services that make up the storage engine.
type Engine struct {
	Tree      *services.TreeIndex
	Sizes     *services.SizePropagator
	Quota     *services.QuotaAccountant
	Lifecycle *services.Lifecycle
	Uploads   *services.UploadAdmission
	Folders   *services.FolderService
	Files     *services.FileService
	Users     *services.UserService
	Checker   *services.Checker
}

func NewEngine(db dbx.Transactor, rm repomanager.RepositoryManager, blobs blobstore.Store,
	log logging.Logger, m *metrics.Metrics, cfg *config.Config) *Engine {

	tree := services.NewTreeIndex(db, rm, cfg)
	sizes := services.NewSizePropagator(db, rm, tree)
	quota := services.NewQuotaAccountant(db, rm, cfg)
	lifecycle := services.NewLifecycle(db, rm, tree, sizes, blobs, log, m, cfg)

	return &Engine{
		Tree:      tree,
		Sizes:     sizes,
		Quota:     quota,
		Lifecycle: lifecycle,
		Uploads:   services.NewUploadAdmission(db, rm, sizes, quota, blobs, log, m, cfg),
		Folders:   services.NewFolderService(db, rm, lifecycle),
		Files:     services.NewFileService(db, rm, lifecycle, blobs, cfg),
		Users:     services.NewUserService(db, rm, quota, cfg),
		Checker:   services.NewChecker(db, rm, tree),
	}
}

// Seams for tests.
var (
	newBlobStore = func(ctx context.Context, cfg *config.Config) (blobstore.Store, error) {
		return blobstore.NewS3Store(ctx, cfg)
	}
	openPostgres = repomanager.OpenPostgres
)

type App struct {
	config    *config.Config
	logger    logging.Logger
	db        *sql.DB
	registry  *prometheus.Registry
	collector *gc.Collector
	Engine    *Engine
}

// NewApp validates cfg and opens the stores. An empty DatabaseDSN selects
// the in-memory metadata store.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := logging.New(cfg.LogFormat, nil)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	var (
		db       *sql.DB
		rm       repomanager.RepositoryManager
		transact dbx.Transactor
	)
	if cfg.DatabaseDSN == "" {
		logger.Warn(ctx, "no database dsn configured, using in-memory metadata store")
		store := memory.New()
		rm, transact = store, store
	} else {
		var err error
		db, err = openPostgres(ctx, cfg.DatabaseDSN)
		if err != nil {
			return nil, err
		}
		rm = repomanager.NewPostgresRepositoryManager()
		if err := rm.RunMigrations(ctx, db); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("migrations: %w", err)
		}
		transact = dbx.NewSQLTransactor(db)
	}

	blobs, err := newBlobStore(ctx, cfg)
	if err != nil {
		if db != nil {
			_ = db.Close()
		}
		return nil, fmt.Errorf("blob store init error: %w", err)
	}

	engine := NewEngine(transact, rm, blobs, logger, m, cfg)

	return &App{
		config:    cfg,
		logger:    logger,
		db:        db,
		registry:  registry,
		collector: gc.NewCollector(engine.Uploads, logger, m, cfg),
		Engine:    engine,
	}, nil
}

func (app *App) startMetricsServer(ctx context.Context, cancelFunc context.CancelFunc) {
	if app.config.MetricsAddr == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(app.registry))
	srv := &http.Server{Addr: app.config.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	app.logger.Info(ctx, "metrics server listening", "addr", app.config.MetricsAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		app.logger.Error(ctx, "metrics server failed", "error", err)
		cancelFunc()
	}
}

// Run starts the sweeper and the metrics endpoint and blocks until ctx is
// cancelled or the process receives SIGINT, SIGTERM or SIGQUIT.
func (app *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	app.logger.Info(ctx, "starting cloudvault engine")

	app.collector.Start()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startMetricsServer(ctx, stop)
	}()

	<-ctx.Done()
	app.logger.Info(context.Background(), "shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), app.config.OperationTimeout)
	defer cancel()

	err := app.collector.Stop(shutdownCtx)
	wg.Wait()
	return errors.Join(err, app.Close())
}

// Sweep runs one pass of the pending-upload sweeper.
func (app *App) Sweep(ctx context.Context) (*models.PurgeStats, error) {
	return app.collector.RunNow(ctx)
}

// Close releases the database connection, if any.
func (app *App) Close() error {
	if app.db == nil {
		return nil
	}
	return app.db.Close()
}
