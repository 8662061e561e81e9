package sync

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/osagaming/avicrm/internal/bus"
	"github.com/osagaming/avicrm/internal/market"
	"github.com/osagaming/avicrm/internal/observability"
	"github.com/osagaming/avicrm/internal/store"
)

// Error kinds recorded against a failed shop.
const (
	ErrKindPermission = "permission"
	ErrKindRemote     = "remote"
)

// ShopResult is one shop's slice of a pass.
type ShopResult struct {
	ShopID          int64  `json:"shop_id"`
	ShopName        string `json:"shop_name"`
	Success         bool   `json:"success"`
	ChatsCreated    int    `json:"chats_created"`
	ChatsUpdated    int    `json:"chats_updated"`
	ChatsFailed     int    `json:"chats_failed"`
	MessagesCreated int    `json:"messages_created"`
	Error           string `json:"error,omitempty"`
	ErrorKind       string `json:"error_kind,omitempty"`
}

// PassResult aggregates one full sync pass across all shops.
type PassResult struct {
	PassID          string       `json:"pass_id"`
	StartedAt       int64        `json:"started_at"`
	FinishedAt      int64        `json:"finished_at"`
	ShopsTotal      int          `json:"shops_total"`
	ShopsSuccess    int          `json:"shops_success"`
	ShopsFailed     int          `json:"shops_failed"`
	ChatsCreated    int          `json:"chats_created"`
	ChatsUpdated    int          `json:"chats_updated"`
	MessagesCreated int          `json:"messages_created"`
	Shops           []ShopResult `json:"shops"`
}

// Orchestrator drives reconciliation across all eligible shops. Shops are
// processed strictly sequentially; one shop's failure never aborts the rest.
type Orchestrator struct {
	db         *store.DB
	factory    market.Factory
	reconciler *Reconciler
	pageSize   int
	logger     *zap.Logger
	bus        *bus.Bus
}

// NewOrchestrator creates a pass orchestrator.
func NewOrchestrator(db *store.DB, factory market.Factory, reconciler *Reconciler, pageSize int, logger *zap.Logger, b *bus.Bus) *Orchestrator {
	if pageSize <= 0 {
		pageSize = 50
	}
	return &Orchestrator{db: db, factory: factory, reconciler: reconciler, pageSize: pageSize, logger: logger, bus: b}
}

// RunPass synchronizes every active, credentialed shop once and returns the
// aggregate. It never fails on per-shop errors; only being unable to list
// shops at all is an error.
func (o *Orchestrator) RunPass(ctx context.Context) (*PassResult, error) {
	shops, err := o.db.ListActiveShops()
	if err != nil {
		return nil, err
	}

	result := &PassResult{
		PassID:     uuid.NewString(),
		StartedAt:  time.Now().UnixMilli(),
		ShopsTotal: len(shops),
		Shops:      make([]ShopResult, 0, len(shops)),
	}
	o.bus.Emit(bus.KindPassStarted, result.PassID)
	o.logger.Info("sync pass started",
		zap.String("pass", result.PassID),
		zap.Int("shops", len(shops)))
	start := time.Now()

	for _, shop := range shops {
		sr := o.syncShop(ctx, shop)
		result.Shops = append(result.Shops, sr)
		if sr.Success {
			result.ShopsSuccess++
			result.ChatsCreated += sr.ChatsCreated
			result.ChatsUpdated += sr.ChatsUpdated
			result.MessagesCreated += sr.MessagesCreated
			observability.ShopSyncs.WithLabelValues("ok").Inc()
			o.bus.Emit(bus.KindShopSynced, sr)
		} else {
			result.ShopsFailed++
			observability.ShopSyncs.WithLabelValues(sr.ErrorKind).Inc()
			o.bus.Emit(bus.KindShopFailed, sr)
		}
	}

	result.FinishedAt = time.Now().UnixMilli()
	o.checkpoint(result)

	passOutcome := "ok"
	if result.ShopsFailed > 0 {
		passOutcome = "partial"
	}
	observability.SyncPasses.WithLabelValues(passOutcome).Inc()
	observability.SyncPassDuration.Observe(time.Since(start).Seconds())
	o.bus.Emit(bus.KindPassFinished, result)
	o.logger.Info("sync pass finished",
		zap.String("pass", result.PassID),
		zap.Int("success", result.ShopsSuccess),
		zap.Int("failed", result.ShopsFailed),
		zap.Int("created", result.ChatsCreated),
		zap.Int("updated", result.ChatsUpdated),
		zap.Int("messages", result.MessagesCreated))
	return result, nil
}

func (o *Orchestrator) syncShop(ctx context.Context, shop store.Shop) ShopResult {
	sr := ShopResult{ShopID: shop.ID, ShopName: shop.Name}

	client := o.factory(shop.ClientID, shop.ClientSecret)
	chats, err := client.ListChats(ctx, shop.UserID, o.pageSize, 0)
	if err != nil {
		sr.Error = err.Error()
		if market.IsPermission(err) {
			sr.ErrorKind = ErrKindPermission
			sr.Error = "Permission denied: the shop's plan does not include messenger API access"
			o.logger.Warn("shop has no messenger API access",
				zap.String("shop", shop.Name))
		} else {
			sr.ErrorKind = ErrKindRemote
			o.logger.Error("shop sync failed",
				zap.String("shop", shop.Name),
				zap.Error(err))
		}
		return sr
	}

	o.logger.Info("shop chats fetched",
		zap.String("shop", shop.Name),
		zap.Int("chats", len(chats)))

	for _, payload := range chats {
		cr, err := o.reconciler.ReconcileChat(ctx, client, shop, payload)
		if err != nil {
			// A store failure on one chat does not abort the shop's batch.
			sr.ChatsFailed++
			o.logger.Error("chat reconcile failed",
				zap.String("shop", shop.Name),
				zap.Error(err))
			continue
		}
		sr.ChatsCreated += cr.Created
		sr.ChatsUpdated += cr.Updated
		sr.MessagesCreated += cr.Messages
	}

	sr.Success = true
	return sr
}

// checkpoint records the pass outcome in sync_state for /sync/last.
func (o *Orchestrator) checkpoint(result *PassResult) {
	if err := o.db.SetSyncState(store.SyncStateLastPassAt, strconv.FormatInt(result.FinishedAt, 10)); err != nil {
		o.logger.Warn("checkpoint last pass time failed", zap.Error(err))
	}
	data, err := json.Marshal(result)
	if err != nil {
		return
	}
	if err := o.db.SetSyncState(store.SyncStateLastPassResult, string(data)); err != nil {
		o.logger.Warn("checkpoint last pass result failed", zap.Error(err))
	}
}
