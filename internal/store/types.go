package store

import "database/sql"

// Chat workflow statuses. Created chats start active; operators move them
// through the pipeline, and the sync loop only reopens completed ones.
const (
	ChatStatusActive    = "active"
	ChatStatusWaiting   = "waiting"
	ChatStatusCompleted = "completed"
)

// Chat priorities. Sync sets "new" on create and never touches it again.
const (
	ChatPriorityNew    = "new"
	ChatPriorityUrgent = "urgent"
)

// Message directions.
const (
	DirectionIn  = "in"
	DirectionOut = "out"
)

// Shop represents a connected marketplace seller account.
type Shop struct {
	ID           int64
	Name         string
	ShopURL      string
	ClientID     string
	ClientSecret string
	UserID       string
	IsActive     bool
}

// Chat represents a synced buyer conversation.
type Chat struct {
	ID                int64
	ShopID            int64
	RemoteID          string
	ClientName        string
	CustomerID        string
	LastMessage       string
	UnreadCount       int
	Status            string
	Priority          string
	AssignedManagerID sql.NullInt64
	ProductURL        string
	ListingData       []byte
	ResponseTimer     int
	CreatedAt         int64
	UpdatedAt         int64
}

// Message represents a synced chat message.
type Message struct {
	ID         int64
	ChatID     int64
	RemoteID   string
	Direction  string
	SenderName string
	Body       string
	Timestamp  int64
	CreatedAt  int64
}

// Listing represents a marketplace listing.
type Listing struct {
	ID        int64
	RemoteID  string
	Title     string
	Price     int64
	URL       string
	Status    string
	Data      []byte
	CreatedAt int64
	UpdatedAt int64
}
