package store

import "time"

// InsertMessage appends a message if its (chat, remote id) pair is new.
// Returns true when a row was actually inserted.
func (tx *Tx) InsertMessage(m *Message) (bool, error) {
	res, err := tx.Exec(`
		INSERT INTO messages (chat_id, remote_id, direction, sender_name, body, timestamp, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(chat_id, remote_id) DO NOTHING`,
		m.ChatID, m.RemoteID, m.Direction, m.SenderName, m.Body, m.Timestamp, time.Now().UnixMilli())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListMessages returns a chat's messages ordered by timestamp ascending.
func (db *DB) ListMessages(chatID int64, limit, offset int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT id, chat_id, remote_id, direction, sender_name, body, timestamp, created_at
		FROM messages
		WHERE chat_id = ?
		ORDER BY timestamp ASC
		LIMIT ? OFFSET ?`, chatID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ChatID, &m.RemoteID, &m.Direction, &m.SenderName, &m.Body, &m.Timestamp, &m.CreatedAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// LastMessages returns the newest limit messages of a chat, oldest first.
// Used by the response timer which only needs the recent tail.
func (tx *Tx) LastMessages(chatID int64, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := tx.Query(`
		SELECT id, chat_id, remote_id, direction, sender_name, body, timestamp, created_at
		FROM (
			SELECT id, chat_id, remote_id, direction, sender_name, body, timestamp, created_at
			FROM messages WHERE chat_id = ?
			ORDER BY timestamp DESC LIMIT ?
		) ORDER BY timestamp ASC`, chatID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ChatID, &m.RemoteID, &m.Direction, &m.SenderName, &m.Body, &m.Timestamp, &m.CreatedAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
