package observability

import "github.com/prometheus/client_golang/prometheus"

var (
	SyncPasses = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "avicrm_sync_passes_total", Help: "Sync pass outcomes"},
		[]string{"result"},
	)
	SyncPassDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "avicrm_sync_pass_duration_seconds", Help: "Sync pass duration"},
	)
	ShopSyncs = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "avicrm_shop_syncs_total", Help: "Per-shop sync outcomes"},
		[]string{"result"},
	)
	ChatsUpserted = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "avicrm_chats_upserted_total", Help: "Chats created or updated"},
		[]string{"op"},
	)
	MessagesIngested = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "avicrm_messages_ingested_total", Help: "New messages stored"},
	)
	APIRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "avicrm_http_requests_total", Help: "Ops API requests"},
		[]string{"endpoint", "status"},
	)
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(SyncPasses, SyncPassDuration, ShopSyncs, ChatsUpserted, MessagesIngested, APIRequests)
}
