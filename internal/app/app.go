package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/chrissnell/energymonitor/internal/analytics"
	"github.com/chrissnell/energymonitor/internal/carbon"
	"github.com/chrissnell/energymonitor/internal/controllers/restserver"
	"github.com/chrissnell/energymonitor/internal/log"
	"github.com/chrissnell/energymonitor/internal/storage"
	"github.com/chrissnell/energymonitor/internal/storage/redis"
	"github.com/chrissnell/energymonitor/internal/storage/timescaledb"
	"github.com/chrissnell/energymonitor/pkg/config"
	"go.uber.org/zap"
)

// App represents the main application
type App struct {
	config *config.ConfigData
	logger *zap.SugaredLogger
}

// New creates a new application instance
func New(cfg *config.ConfigData, logger *zap.SugaredLogger) *App {
	return &App{
		config: cfg,
		logger: logger,
	}
}

// Run starts the application and blocks until shutdown
func (a *App) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	engine, err := LoadEngine(a.config.Reference.Path, a.logger)
	if err != nil {
		return err
	}

	for _, zone := range ZonesWithoutData(engine, a.config) {
		a.logger.Warnf("zone %q has no reference data; every run will correlate as N/A", zone)
	}

	store, err := OpenStore(ctx, a.config.Storage, a.logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			a.logger.Warnf("error closing run store: %v", err)
		}
	}()

	if a.config.REST != nil {
		rc, err := restserver.NewController(ctx, &wg, *a.config.REST, engine, store, a.config.Zones, log.Named("rest"))
		if err != nil {
			return fmt.Errorf("could not create REST server: %w", err)
		}
		if err := rc.StartController(); err != nil {
			return fmt.Errorf("could not start REST server: %w", err)
		}
	} else {
		a.logger.Warn("no rest section configured; the engine is loaded but nothing serves it")
	}

	log.Info("Application started successfully")

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	select {
	case <-sigs:
		log.Info("shutdown signal received, initiating graceful shutdown...")
	case <-ctx.Done():
		log.Info("context cancelled, shutting down...")
	}

	cancel()

	log.Info("waiting for all workers to terminate...")
	wg.Wait()
	log.Info("shutdown complete")

	return nil
}

// LoadEngine reads the reference dataset at path and builds an engine over
// it. A dataset that cannot be read or parsed is fatal to startup.
func LoadEngine(path string, logger *zap.SugaredLogger) (*analytics.Engine, error) {
	records, err := carbon.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not load reference dataset: %w", err)
	}

	idx := carbon.Build(records)
	logger.Infow("reference dataset loaded",
		"path", path,
		"records", len(records),
		"indexed", idx.Len(),
		"zones", idx.Zones(),
	)

	return analytics.NewEngine(idx, log.Named("analytics")), nil
}

// ZonesWithoutData returns the configured zones the reference dataset has no
// records for, in configuration order.
func ZonesWithoutData(engine *analytics.Engine, cfg *config.ConfigData) []string {
	var missing []string
	for _, zone := range cfg.ZoneNames() {
		if !engine.HasZone(zone) {
			missing = append(missing, zone)
		}
	}
	return missing
}

// OpenStore connects to whichever run store the configuration selects.
func OpenStore(ctx context.Context, sc config.StorageData, logger *zap.SugaredLogger) (storage.RunStore, error) {
	switch {
	case sc.Redis != nil:
		s, err := redis.New(ctx, *sc.Redis, log.Named("redis"))
		if err != nil {
			return nil, err
		}
		logger.Info("using Redis run store")
		return s, nil
	case sc.TimescaleDB != nil:
		s, err := timescaledb.New(ctx, sc.TimescaleDB.ConnectionString, log.Named("timescaledb"))
		if err != nil {
			return nil, err
		}
		logger.Info("using TimescaleDB run store")
		return s, nil
	default:
		return nil, fmt.Errorf("no storage backend configured")
	}
}
