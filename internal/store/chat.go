package store

import (
	"database/sql"
	"time"
)

const chatColumns = `id, shop_id, remote_id, client_name, customer_id, last_message,
	unread_count, status, priority, assigned_manager_id, product_url, listing_data,
	response_timer, created_at, updated_at`

func scanChat(row interface{ Scan(...any) error }) (*Chat, error) {
	var c Chat
	err := row.Scan(&c.ID, &c.ShopID, &c.RemoteID, &c.ClientName, &c.CustomerID,
		&c.LastMessage, &c.UnreadCount, &c.Status, &c.Priority, &c.AssignedManagerID,
		&c.ProductURL, &c.ListingData, &c.ResponseTimer, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func getChatByRemoteID(q queryer, shopID int64, remoteID string) (*Chat, error) {
	c, err := scanChat(q.QueryRow(
		`SELECT `+chatColumns+` FROM chats WHERE shop_id = ? AND remote_id = ?`,
		shopID, remoteID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return c, err
}

// GetChatByRemoteID returns a chat by its (shop, remote id) pair, or nil.
func (db *DB) GetChatByRemoteID(shopID int64, remoteID string) (*Chat, error) {
	return getChatByRemoteID(db.DB, shopID, remoteID)
}

// GetChatByRemoteID returns a chat by its (shop, remote id) pair, or nil.
func (tx *Tx) GetChatByRemoteID(shopID int64, remoteID string) (*Chat, error) {
	return getChatByRemoteID(tx.Tx, shopID, remoteID)
}

// GetChat returns a single chat by id, or nil if not found.
func (db *DB) GetChat(id int64) (*Chat, error) {
	c, err := scanChat(db.QueryRow(`SELECT `+chatColumns+` FROM chats WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return c, err
}

// ListChats returns chats ordered by last update descending. A zero shopID
// means all shops.
func (db *DB) ListChats(shopID int64, limit, offset int) ([]Chat, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + chatColumns + ` FROM chats`
	args := []any{}
	if shopID != 0 {
		query += ` WHERE shop_id = ?`
		args = append(args, shopID)
	}
	query += ` ORDER BY updated_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var chats []Chat
	for rows.Next() {
		c, err := scanChat(rows)
		if err != nil {
			return nil, err
		}
		chats = append(chats, *c)
	}
	return chats, rows.Err()
}

// CreateChat inserts a new chat and returns its id. New chats always start
// with status "active" and priority "new" regardless of the struct fields.
func (tx *Tx) CreateChat(c *Chat) (int64, error) {
	now := time.Now().UnixMilli()
	res, err := tx.Exec(`
		INSERT INTO chats (shop_id, remote_id, client_name, customer_id, last_message,
			unread_count, status, priority, product_url, listing_data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ShopID, c.RemoteID, c.ClientName, c.CustomerID, c.LastMessage,
		c.UnreadCount, ChatStatusActive, ChatPriorityNew, c.ProductURL, c.ListingData, now, now)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// UpdateChatSync refreshes the sync-owned columns of an existing chat.
// Status, priority and assignment are operator-owned and never written here.
// product_url is only overwritten when the new value is non-empty.
func (tx *Tx) UpdateChatSync(c *Chat) error {
	_, err := tx.Exec(`
		UPDATE chats SET
			client_name = ?,
			customer_id = ?,
			last_message = ?,
			unread_count = ?,
			product_url = CASE WHEN ? != '' THEN ? ELSE product_url END,
			listing_data = COALESCE(?, listing_data),
			updated_at = ?
		WHERE id = ?`,
		c.ClientName, c.CustomerID, c.LastMessage, c.UnreadCount,
		c.ProductURL, c.ProductURL, c.ListingData, time.Now().UnixMilli(), c.ID)
	return err
}

// UpdateChatActivity writes the response timer and, when reopen is set,
// flips a completed chat back to active.
func (tx *Tx) UpdateChatActivity(chatID int64, responseTimer int, reopen bool) error {
	if reopen {
		_, err := tx.Exec(`
			UPDATE chats SET response_timer = ?, updated_at = ?,
				status = CASE WHEN status = ? THEN ? ELSE status END
			WHERE id = ?`,
			responseTimer, time.Now().UnixMilli(), ChatStatusCompleted, ChatStatusActive, chatID)
		return err
	}
	_, err := tx.Exec(`UPDATE chats SET response_timer = ?, updated_at = ? WHERE id = ?`,
		responseTimer, time.Now().UnixMilli(), chatID)
	return err
}
