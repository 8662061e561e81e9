package sync

import (
	"context"

	"go.uber.org/zap"

	"github.com/osagaming/avicrm/internal/bus"
	"github.com/osagaming/avicrm/internal/market"
	"github.com/osagaming/avicrm/internal/observability"
	"github.com/osagaming/avicrm/internal/store"
)

// ChatResult reports the effect of reconciling one remote chat.
type ChatResult struct {
	Created  int `json:"created"`
	Updated  int `json:"updated"`
	Messages int `json:"messages"`
}

// ChatUpserted is the bus payload published after a chat reconcile.
type ChatUpserted struct {
	ChatID   int64
	ShopID   int64
	RemoteID string
	Created  bool
}

// Reconciler merges remote chat payloads into the local store.
type Reconciler struct {
	db        *store.DB
	extractor *Extractor
	pageSize  int
	logger    *zap.Logger
	bus       *bus.Bus
}

// NewReconciler creates a chat reconciler.
func NewReconciler(db *store.DB, extractor *Extractor, pageSize int, logger *zap.Logger, b *bus.Bus) *Reconciler {
	if pageSize <= 0 {
		pageSize = 50
	}
	return &Reconciler{db: db, extractor: extractor, pageSize: pageSize, logger: logger, bus: b}
}

// ReconcileChat upserts one chat for a shop and syncs its messages. The chat
// upsert commits on its own before message sync runs, so a message failure
// never undoes the chat write. Payloads without a remote id are a no-op.
func (r *Reconciler) ReconcileChat(ctx context.Context, client market.Client, shop store.Shop, payload map[string]any) (ChatResult, error) {
	var res ChatResult

	remoteID := scalarString(payload["id"])
	if remoteID == "" {
		return res, nil
	}

	clientName, customerID := counterpart(payload, shop.UserID)
	slug := ShopSlug(shop.ShopURL)
	lc := r.extractor.ExtractWithDetail(ctx, client, shop.UserID, remoteID, payload, slug)

	chat := &store.Chat{
		ShopID:      shop.ID,
		RemoteID:    remoteID,
		ClientName:  clientName,
		CustomerID:  customerID,
		LastMessage: lastMessageText(payload["last_message"]),
		UnreadCount: intOrZero(payload["unread_count"]),
		ProductURL:  lc.ProductURL,
		ListingData: lc.Data,
	}

	var created bool
	err := r.db.InTx(func(tx *store.Tx) error {
		existing, err := tx.GetChatByRemoteID(shop.ID, remoteID)
		if err != nil {
			return err
		}
		if existing == nil {
			id, err := tx.CreateChat(chat)
			if err != nil {
				return err
			}
			chat.ID = id
			created = true
			return nil
		}
		chat.ID = existing.ID
		return tx.UpdateChatSync(chat)
	})
	if err != nil {
		return res, err
	}

	if created {
		res.Created = 1
		observability.ChatsUpserted.WithLabelValues("created").Inc()
	} else {
		res.Updated = 1
		observability.ChatsUpserted.WithLabelValues("updated").Inc()
	}
	r.bus.Emit(bus.KindChatUpserted, ChatUpserted{
		ChatID:   chat.ID,
		ShopID:   shop.ID,
		RemoteID: remoteID,
		Created:  created,
	})

	// Message sync is isolated: a failure here counts as zero new messages
	// and leaves the committed chat upsert in place.
	n, err := r.syncMessages(ctx, client, shop, chat)
	if err != nil {
		r.logger.Warn("message sync failed",
			zap.Int64("chat", chat.ID),
			zap.String("remote_id", remoteID),
			zap.Error(err))
		n = 0
	}
	res.Messages = n
	observability.MessagesIngested.Add(float64(n))
	return res, nil
}

// lastMessageText derives the chat preview: a mapping's text then content
// field (recursing once when the value is itself a mapping), or the bare
// string as-is.
func lastMessageText(v any) string {
	switch lm := v.(type) {
	case map[string]any:
		if s := scalarString(lm["text"]); s != "" {
			return s
		}
		switch content := lm["content"].(type) {
		case map[string]any:
			if s := scalarString(content["text"]); s != "" {
				return s
			}
			return scalarString(content["content"])
		default:
			return scalarString(content)
		}
	default:
		return scalarString(v)
	}
}

// counterpart scans the payload's users list for the first entry that is not
// the shop itself and returns its display name and id.
func counterpart(payload map[string]any, shopUserID string) (name, customerID string) {
	name = defaultClientName
	users, ok := payload["users"].([]any)
	if !ok {
		return name, ""
	}
	for _, entry := range users {
		user, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		id := scalarString(user["id"])
		if id == shopUserID {
			continue
		}
		if n := scalarString(user["name"]); n != "" {
			name = n
		} else if n := scalarString(user["username"]); n != "" {
			name = n
		}
		return name, id
	}
	return name, ""
}
