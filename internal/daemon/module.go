package daemon

import (
	"context"
	"time"

	"github.com/dmellis/chatlog/internal/bus"
	"github.com/dmellis/chatlog/internal/cache"
	"github.com/dmellis/chatlog/internal/config"
	"github.com/dmellis/chatlog/internal/ingest"
	"github.com/dmellis/chatlog/internal/lock"
	"github.com/dmellis/chatlog/internal/logging"
	"github.com/dmellis/chatlog/internal/manager"
	"github.com/dmellis/chatlog/internal/paths"
	"github.com/dmellis/chatlog/internal/status"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// trackerInterval is how often the activity summary line is logged.
const trackerInterval = time.Minute

// Params holds the daemon invocation settings passed to the fx module.
type Params struct {
	ConfigPath string
}

// Module returns the fx module for the daemon, composing all providers
// and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideLock,
			provideCacheStore,
			provideManager,
			providePurger,
			provideIngestEngine,
			provideTracker,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	path := p.ConfigPath
	if path == "" {
		path = paths.ConfigPath()
	}
	return config.LoadOrDefault(path)
}

func provideLogger() (*zap.Logger, error) {
	return logging.New(paths.DaemonLogPath())
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideLock(logger *zap.Logger) (*lock.Lock, error) {
	if err := paths.EnsureDirs(paths.BaseDir()); err != nil {
		return nil, err
	}
	logger.Info("acquiring daemon lock", zap.String("dir", paths.BaseDir()))
	l, err := lock.Acquire(paths.BaseDir())
	if err != nil {
		return nil, err
	}
	logger.Info("daemon lock acquired")
	return l, nil
}

func provideCacheStore(cfg *config.Config, logger *zap.Logger) (*cache.Store, error) {
	db, err := cache.Open(cfg.Cache.Path)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("cache migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("cache migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("cache initialized", zap.String("path", cfg.Cache.Path))
	return cache.NewStore("Sqlite", db, logger), nil
}

func provideManager(cfg *config.Config, cacheStore *cache.Store, logger *zap.Logger) (*manager.Manager, error) {
	return manager.FromConfig(cfg, cacheStore, logger)
}

func providePurger(cfg *config.Config, cacheStore *cache.Store, b *bus.Bus, logger *zap.Logger) *cache.Purger {
	return cache.NewPurger(cacheStore,
		cfg.Cache.PurgeInterval.Duration,
		cfg.Cache.Retention.Duration,
		b, logger)
}

func provideIngestEngine(cfg *config.Config, mgr *manager.Manager, b *bus.Bus, logger *zap.Logger) *ingest.Engine {
	return ingest.NewEngine(cfg.Spool.Dir, mgr, b, logger)
}

func provideTracker(b *bus.Bus, logger *zap.Logger) *status.Tracker {
	return status.NewTracker(b, trackerInterval, logger)
}

func registerLifecycle(lc fx.Lifecycle, cfg *config.Config, lk *lock.Lock, engine *ingest.Engine, purger *cache.Purger, tracker *status.Tracker, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			tracker.Start(context.Background())
			purger.Start(context.Background())
			if err := engine.Start(context.Background()); err != nil {
				return err
			}
			if !cfg.Enabled {
				logger.Warn("logging disabled by configuration; spool entries will be kept unprocessed")
			}
			logger.Info("daemon started", zap.String("spool", cfg.Spool.Dir))
			return nil
		},
		OnStop: func(_ context.Context) error {
			engine.Stop()
			purger.Stop()
			tracker.Stop()
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
