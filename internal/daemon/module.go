package daemon

import (
	"context"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/osagaming/avicrm/internal/api"
	"github.com/osagaming/avicrm/internal/bus"
	"github.com/osagaming/avicrm/internal/config"
	"github.com/osagaming/avicrm/internal/listings"
	"github.com/osagaming/avicrm/internal/lock"
	"github.com/osagaming/avicrm/internal/logging"
	"github.com/osagaming/avicrm/internal/market"
	"github.com/osagaming/avicrm/internal/observability"
	"github.com/osagaming/avicrm/internal/status"
	"github.com/osagaming/avicrm/internal/store"
	intsync "github.com/osagaming/avicrm/internal/sync"
)

// Params holds the resolved daemon configuration passed to the fx module.
type Params struct {
	Config     *config.Config
	ListenAddr string // resolved from Config, overridable for testing
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideStore,
			provideFactory,
			provideExtractor,
			provideReconciler,
			provideOrchestrator,
			provideRunner,
			provideListings,
			provideRegistry,
			provideAPI,
			api.New,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) *config.Config {
	return p.Config
}

func provideLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.New(cfg.LogPath(), "avicrmd")
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(cfg *config.Config, logger *zap.Logger) (*lock.Lock, error) {
	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return nil, err
	}
	logger.Info("acquiring data dir lock", zap.String("dir", cfg.DataDir))
	l, err := lock.Acquire(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	logger.Info("data dir lock acquired")
	return l, nil
}

func provideStore(cfg *config.Config, logger *zap.Logger) (*store.DB, error) {
	dbPath := cfg.DBPath()
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, err
	}
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideFactory(cfg *config.Config, logger *zap.Logger) market.Factory {
	return market.NewFactory(cfg.Market, logger)
}

func provideExtractor(cfg *config.Config, logger *zap.Logger) *intsync.Extractor {
	return intsync.NewExtractor(cfg.Market.PublicOrigin, logger)
}

func provideReconciler(db *store.DB, extractor *intsync.Extractor, cfg *config.Config, logger *zap.Logger, b *bus.Bus) *intsync.Reconciler {
	return intsync.NewReconciler(db, extractor, cfg.PageSize, logger, b)
}

func provideOrchestrator(db *store.DB, factory market.Factory, reconciler *intsync.Reconciler, cfg *config.Config, logger *zap.Logger, b *bus.Bus) *intsync.Orchestrator {
	return intsync.NewOrchestrator(db, factory, reconciler, cfg.PageSize, logger, b)
}

func provideRunner(orch *intsync.Orchestrator, cfg *config.Config, machine *status.Machine, logger *zap.Logger) *intsync.Runner {
	return intsync.NewRunner(orch, cfg.SyncInterval(), machine, logger)
}

func provideListings(db *store.DB, logger *zap.Logger) *listings.Service {
	return listings.NewService(db, logger)
}

func provideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	observability.Register(reg)
	return reg
}

func provideAPI(db *store.DB, machine *status.Machine, runner *intsync.Runner, logger *zap.Logger) *api.API {
	return &api.API{DB: db, Machine: machine, Runner: runner, Logger: logger}
}

func registerLifecycle(lc fx.Lifecycle, srv *Server, lk *lock.Lock, runner *intsync.Runner, capture *listings.Service, machine *status.Machine, db *store.DB, b *bus.Bus, logger *zap.Logger) {
	runCtx, cancel := context.WithCancel(context.Background())
	var stopCapture func()
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Listing capture must be subscribed before the first pass can
			// emit chat.* events.
			stopCapture = capture.Start(runCtx, b)

			// Start HTTP server in background.
			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("http server error", zap.Error(err))
				}
			}()

			if err := machine.Transition(status.Idle); err != nil {
				return err
			}
			runner.Start(runCtx)
			logger.Info("daemon started", zap.String("addr", srv.Addr()))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			runner.Stop()
			if stopCapture != nil {
				stopCapture()
			}
			cancel()
			srv.Stop(ctx)
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
