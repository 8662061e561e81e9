package daemon

import (
	"context"
	"os"
	"path/filepath"

	"github.com/osagaming/avicrm/internal/bus"
	"github.com/osagaming/avicrm/internal/config"
	"github.com/osagaming/avicrm/internal/listings"
	"github.com/osagaming/avicrm/internal/lock"
	"github.com/osagaming/avicrm/internal/logging"
	"github.com/osagaming/avicrm/internal/market"
	"github.com/osagaming/avicrm/internal/store"
	intsync "github.com/osagaming/avicrm/internal/sync"
)

// RunOnce executes a single sync pass without the HTTP surface or the
// interval loop. It takes the same data dir lock as the daemon, so a pass
// never runs concurrently with one the daemon is driving.
func RunOnce(ctx context.Context, cfg *config.Config) (*intsync.PassResult, error) {
	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return nil, err
	}
	lk, err := lock.Acquire(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	defer func() { _ = lk.Release() }()

	logger, err := logging.New(cfg.LogPath(), "avicrmd")
	if err != nil {
		return nil, err
	}
	defer func() { _ = logger.Sync() }()

	dbPath := cfg.DBPath()
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, err
	}
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	defer func() { _ = db.Close() }()
	if _, err := db.Migrate(); err != nil {
		return nil, err
	}

	b := bus.New()
	factory := market.NewFactory(cfg.Market, logger)
	extractor := intsync.NewExtractor(cfg.Market.PublicOrigin, logger)
	reconciler := intsync.NewReconciler(db, extractor, cfg.PageSize, logger, b)
	orch := intsync.NewOrchestrator(db, factory, reconciler, cfg.PageSize, logger, b)

	// Listing capture runs here too; stopping it drains events the pass
	// emitted, so one-shot runs populate listings like the daemon does.
	capture := listings.NewService(db, logger)
	stopCapture := capture.Start(ctx, b)

	logger.Info("one-shot sync pass requested")
	result, err := orch.RunPass(ctx)
	stopCapture()
	return result, err
}
