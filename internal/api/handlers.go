package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/osagaming/avicrm/internal/status"
	"github.com/osagaming/avicrm/internal/store"
	syncpkg "github.com/osagaming/avicrm/internal/sync"
)

// API serves the daemon's operator endpoints.
type API struct {
	DB      *store.DB
	Machine *status.Machine
	Runner  *syncpkg.Runner
	Logger  *zap.Logger
}

// Register mounts all routes.
func (a *API) Register(r *mux.Router) {
	r.HandleFunc("/healthz", a.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/status", a.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/sync/run", a.handleSyncRun).Methods(http.MethodPost)
	r.HandleFunc("/sync/last", a.handleSyncLast).Methods(http.MethodGet)
	r.HandleFunc("/shops", a.handleListShops).Methods(http.MethodGet)
	r.HandleFunc("/shops", a.handleCreateShop).Methods(http.MethodPost)
	r.HandleFunc("/chats", a.handleListChats).Methods(http.MethodGet)
	r.HandleFunc("/chats/{id}", a.handleGetChat).Methods(http.MethodGet)
	r.HandleFunc("/chats/{id}/messages", a.handleListMessages).Methods(http.MethodGet)
	r.HandleFunc("/listings", a.handleListListings).Methods(http.MethodGet)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) handleStatus(w http.ResponseWriter, _ *http.Request) {
	lastAt, err := a.DB.GetSyncState(store.SyncStateLastPassAt)
	if err != nil {
		a.Logger.Error("read sync state failed", zap.Error(err))
		http.Error(w, ErrDependency, http.StatusInternalServerError)
		return
	}
	var lastPassAt int64
	if lastAt != "" {
		lastPassAt, _ = strconv.ParseInt(lastAt, 10, 64)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"state":        a.Machine.Current(),
		"sync_running": a.Runner.Running(),
		"last_pass_at": lastPassAt,
	})
}

func (a *API) handleSyncRun(w http.ResponseWriter, _ *http.Request) {
	if err := a.Runner.TriggerNow(); err != nil {
		http.Error(w, ErrSyncBusy, http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "triggered"})
}

func (a *API) handleSyncLast(w http.ResponseWriter, _ *http.Request) {
	raw, err := a.DB.GetSyncState(store.SyncStateLastPassResult)
	if err != nil {
		a.Logger.Error("read sync state failed", zap.Error(err))
		http.Error(w, ErrDependency, http.StatusInternalServerError)
		return
	}
	if raw == "" {
		http.Error(w, ErrNotFound, http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(raw))
}

// shopView hides credentials from API responses.
type shopView struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	ShopURL  string `json:"shop_url"`
	UserID   string `json:"user_id"`
	IsActive bool   `json:"is_active"`
}

func viewShop(s store.Shop) shopView {
	return shopView{ID: s.ID, Name: s.Name, ShopURL: s.ShopURL, UserID: s.UserID, IsActive: s.IsActive}
}

func (a *API) handleListShops(w http.ResponseWriter, _ *http.Request) {
	shops, err := a.DB.ListShops()
	if err != nil {
		a.Logger.Error("list shops failed", zap.Error(err))
		http.Error(w, ErrDependency, http.StatusInternalServerError)
		return
	}
	views := make([]shopView, 0, len(shops))
	for _, s := range shops {
		views = append(views, viewShop(s))
	}
	writeJSON(w, http.StatusOK, views)
}

type createShopRequest struct {
	Name         string `json:"name"`
	ShopURL      string `json:"shop_url"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	UserID       string `json:"user_id"`
}

func (a *API) handleCreateShop(w http.ResponseWriter, r *http.Request) {
	var req createShopRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, ErrInvalidJSON, http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}

	shop := store.Shop{
		Name:         req.Name,
		ShopURL:      req.ShopURL,
		ClientID:     req.ClientID,
		ClientSecret: req.ClientSecret,
		UserID:       req.UserID,
		IsActive:     true,
	}
	id, err := a.DB.CreateShop(&shop)
	if err != nil {
		a.Logger.Error("create shop failed", zap.Error(err))
		http.Error(w, ErrDependency, http.StatusInternalServerError)
		return
	}
	shop.ID = id
	writeJSON(w, http.StatusCreated, viewShop(shop))
}

// chatView flattens nullable columns for JSON consumers.
type chatView struct {
	ID                int64           `json:"id"`
	ShopID            int64           `json:"shop_id"`
	RemoteID          string          `json:"remote_id"`
	ClientName        string          `json:"client_name"`
	CustomerID        string          `json:"customer_id"`
	LastMessage       string          `json:"last_message"`
	UnreadCount       int             `json:"unread_count"`
	Status            string          `json:"status"`
	Priority          string          `json:"priority"`
	AssignedManagerID *int64          `json:"assigned_manager_id"`
	ProductURL        string          `json:"product_url"`
	ListingData       json.RawMessage `json:"listing_data,omitempty"`
	ResponseTimer     int             `json:"response_timer"`
	CreatedAt         int64           `json:"created_at"`
	UpdatedAt         int64           `json:"updated_at"`
}

func viewChat(c store.Chat) chatView {
	v := chatView{
		ID:            c.ID,
		ShopID:        c.ShopID,
		RemoteID:      c.RemoteID,
		ClientName:    c.ClientName,
		CustomerID:    c.CustomerID,
		LastMessage:   c.LastMessage,
		UnreadCount:   c.UnreadCount,
		Status:        c.Status,
		Priority:      c.Priority,
		ProductURL:    c.ProductURL,
		ListingData:   json.RawMessage(c.ListingData),
		ResponseTimer: c.ResponseTimer,
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
	}
	if c.AssignedManagerID.Valid {
		v.AssignedManagerID = &c.AssignedManagerID.Int64
	}
	return v
}

func (a *API) handleListChats(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var shopID int64
	if s := q.Get("shop_id"); s != "" {
		var err error
		shopID, err = strconv.ParseInt(s, 10, 64)
		if err != nil {
			http.Error(w, ErrInvalidID, http.StatusBadRequest)
			return
		}
	}
	limit, offset := pagination(q.Get("limit"), q.Get("offset"))

	chats, err := a.DB.ListChats(shopID, limit, offset)
	if err != nil {
		a.Logger.Error("list chats failed", zap.Error(err))
		http.Error(w, ErrDependency, http.StatusInternalServerError)
		return
	}
	views := make([]chatView, 0, len(chats))
	for _, c := range chats {
		views = append(views, viewChat(c))
	}
	writeJSON(w, http.StatusOK, views)
}

func (a *API) handleGetChat(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		http.Error(w, ErrInvalidID, http.StatusBadRequest)
		return
	}
	chat, err := a.DB.GetChat(id)
	if err != nil {
		a.Logger.Error("get chat failed", zap.Int64("id", id), zap.Error(err))
		http.Error(w, ErrDependency, http.StatusInternalServerError)
		return
	}
	if chat == nil {
		http.Error(w, ErrNotFound, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, viewChat(*chat))
}

type messageView struct {
	ID         int64  `json:"id"`
	ChatID     int64  `json:"chat_id"`
	RemoteID   string `json:"remote_id"`
	Direction  string `json:"direction"`
	SenderName string `json:"sender_name"`
	Body       string `json:"body"`
	Timestamp  int64  `json:"timestamp"`
}

func (a *API) handleListMessages(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		http.Error(w, ErrInvalidID, http.StatusBadRequest)
		return
	}
	chat, err := a.DB.GetChat(id)
	if err != nil {
		a.Logger.Error("get chat failed", zap.Int64("id", id), zap.Error(err))
		http.Error(w, ErrDependency, http.StatusInternalServerError)
		return
	}
	if chat == nil {
		http.Error(w, ErrNotFound, http.StatusNotFound)
		return
	}

	limit, offset := pagination(r.URL.Query().Get("limit"), r.URL.Query().Get("offset"))
	msgs, err := a.DB.ListMessages(id, limit, offset)
	if err != nil {
		a.Logger.Error("list messages failed", zap.Int64("chat", id), zap.Error(err))
		http.Error(w, ErrDependency, http.StatusInternalServerError)
		return
	}
	views := make([]messageView, 0, len(msgs))
	for _, m := range msgs {
		views = append(views, messageView{
			ID:         m.ID,
			ChatID:     m.ChatID,
			RemoteID:   m.RemoteID,
			Direction:  m.Direction,
			SenderName: m.SenderName,
			Body:       m.Body,
			Timestamp:  m.Timestamp,
		})
	}
	writeJSON(w, http.StatusOK, views)
}

type listingView struct {
	ID        int64           `json:"id"`
	RemoteID  string          `json:"remote_id"`
	Title     string          `json:"title"`
	Price     int64           `json:"price"`
	URL       string          `json:"url"`
	Status    string          `json:"status"`
	Data      json.RawMessage `json:"data,omitempty"`
	UpdatedAt int64           `json:"updated_at"`
}

func (a *API) handleListListings(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r.URL.Query().Get("limit"), r.URL.Query().Get("offset"))
	listings, err := a.DB.ListListings(limit, offset)
	if err != nil {
		a.Logger.Error("list listings failed", zap.Error(err))
		http.Error(w, ErrDependency, http.StatusInternalServerError)
		return
	}
	views := make([]listingView, 0, len(listings))
	for _, l := range listings {
		views = append(views, listingView{
			ID:        l.ID,
			RemoteID:  l.RemoteID,
			Title:     l.Title,
			Price:     l.Price,
			URL:       l.URL,
			Status:    l.Status,
			Data:      json.RawMessage(l.Data),
			UpdatedAt: l.UpdatedAt,
		})
	}
	writeJSON(w, http.StatusOK, views)
}

func pagination(limitStr, offsetStr string) (limit, offset int) {
	limit, _ = strconv.Atoi(limitStr)
	offset, _ = strconv.Atoi(offsetStr)
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
