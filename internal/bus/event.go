package bus

import "time"

// Event kinds published by the daemon. Subscribers filter by prefix,
// so "sync." matches every sync lifecycle event.
const (
	KindPassStarted   = "sync.pass_started"
	KindPassFinished  = "sync.pass_finished"
	KindShopSynced    = "sync.shop_synced"
	KindShopFailed    = "sync.shop_failed"
	KindChatUpserted  = "chat.upserted"
	KindStatusChanged = "daemon.status_changed"
)

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
