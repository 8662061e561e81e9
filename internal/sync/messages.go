package sync

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/osagaming/avicrm/internal/market"
	"github.com/osagaming/avicrm/internal/store"
)

const defaultClientName = "Client"

// extractText pulls the message body out of the marketplace's assorted
// message shapes: a bare string, text, content(.text|.message) or
// message(.text|.content).
func extractText(v any) string {
	switch m := v.(type) {
	case nil:
		return ""
	case string:
		return m
	case map[string]any:
		if s := scalarString(m["text"]); s != "" {
			return s
		}
		switch content := m["content"].(type) {
		case map[string]any:
			if s := scalarString(content["text"]); s != "" {
				return s
			}
			if s := scalarString(content["message"]); s != "" {
				return s
			}
		default:
			if s := scalarString(content); s != "" {
				return s
			}
		}
		switch msg := m["message"].(type) {
		case map[string]any:
			if s := scalarString(msg["text"]); s != "" {
				return s
			}
			if s := scalarString(msg["content"]); s != "" {
				return s
			}
		default:
			if s := scalarString(msg); s != "" {
				return s
			}
		}
		return ""
	default:
		return scalarString(v)
	}
}

// direction classifies a message as incoming or outgoing relative to the
// shop. Priority: explicit direction field, then author_id, then the legacy
// author/from object. Unattributable messages default to incoming.
func direction(raw map[string]any, shopUserID string) string {
	if d, ok := raw["direction"].(string); ok {
		if d == "out" {
			return store.DirectionOut
		}
		return store.DirectionIn
	}
	if _, ok := raw["author_id"]; ok {
		if scalarString(raw["author_id"]) == shopUserID {
			return store.DirectionOut
		}
		return store.DirectionIn
	}
	author, ok := raw["author"].(map[string]any)
	if !ok {
		author, ok = raw["from"].(map[string]any)
	}
	if ok {
		if id := scalarString(author["id"]); id != "" && id == shopUserID {
			return store.DirectionOut
		}
	}
	return store.DirectionIn
}

// parseMessage normalizes one raw message payload. Returns false for
// messages with no text, which are skipped entirely.
func parseMessage(raw map[string]any, shopUserID, clientName string) (store.Message, bool) {
	text := extractText(raw)
	if text == "" {
		return store.Message{}, false
	}

	dir := direction(raw, shopUserID)

	ts := coerceTimestamp(firstPresent(raw, "created", "created_at", "timestamp"))
	if ts == 0 {
		ts = time.Now().UnixMilli()
	}

	remoteID := scalarString(raw["id"])
	if remoteID == "" {
		// The marketplace occasionally omits message ids. Fingerprint the
		// content so re-syncs still dedupe.
		sum := sha1.Sum(fmt.Appendf(nil, "%s|%s|%d", text, dir, ts))
		remoteID = "fp:" + hex.EncodeToString(sum[:])
	}

	sender := "Shop"
	if dir == store.DirectionIn {
		sender = clientName
		if sender == "" {
			sender = defaultClientName
		}
	}

	return store.Message{
		RemoteID:   remoteID,
		Direction:  dir,
		SenderName: sender,
		Body:       text,
		Timestamp:  ts,
	}, true
}

func firstPresent(raw map[string]any, keys ...string) any {
	for _, key := range keys {
		if v, ok := raw[key]; ok && v != nil {
			return v
		}
	}
	return nil
}

// chatActivity is derived from a chat's recent message tail after ingestion.
type chatActivity struct {
	responseTimer int // minutes since the newest unanswered incoming message
	reopen        bool
}

// activityFrom computes the response timer from stored messages: the newest
// incoming message more recent than the last outgoing one starts the clock.
func activityFrom(msgs []store.Message, now time.Time) chatActivity {
	var lastOutgoing, lastUnanswered int64
	for _, m := range msgs {
		switch m.Direction {
		case store.DirectionOut:
			if m.Timestamp > lastOutgoing {
				lastOutgoing = m.Timestamp
			}
		case store.DirectionIn:
			if m.Timestamp > lastOutgoing && m.Timestamp > lastUnanswered {
				lastUnanswered = m.Timestamp
			}
		}
	}
	if lastUnanswered == 0 {
		return chatActivity{}
	}
	minutes := int(now.Sub(time.UnixMilli(lastUnanswered)).Minutes())
	if minutes < 0 {
		minutes = 0
	}
	return chatActivity{responseTimer: minutes, reopen: true}
}

// syncMessages fetches a chat's message page and appends the new ones,
// then refreshes the response timer and reopens a completed chat when the
// client has written since the shop's last reply. The whole step commits as
// one transaction; a failure leaves the already-committed chat upsert alone.
func (r *Reconciler) syncMessages(ctx context.Context, client market.Client, shop store.Shop, chat *store.Chat) (int, error) {
	raws, err := client.ListMessages(ctx, shop.UserID, chat.RemoteID, r.pageSize, 0)
	if err != nil {
		return 0, err
	}

	inserted := 0
	err = r.db.InTx(func(tx *store.Tx) error {
		for _, raw := range raws {
			msg, ok := parseMessage(raw, shop.UserID, chat.ClientName)
			if !ok {
				continue
			}
			msg.ChatID = chat.ID
			added, err := tx.InsertMessage(&msg)
			if err != nil {
				return err
			}
			if added {
				inserted++
			}
		}

		tail, err := tx.LastMessages(chat.ID, r.pageSize)
		if err != nil {
			return err
		}
		act := activityFrom(tail, time.Now())
		return tx.UpdateChatActivity(chat.ID, act.responseTimer, act.reopen)
	})
	if err != nil {
		return 0, err
	}

	if inserted > 0 {
		r.logger.Info("messages ingested",
			zap.Int64("chat", chat.ID),
			zap.Int("new", inserted))
	}
	return inserted, nil
}
