package store

import (
	"database/sql"
	"time"
)

// Keys stored in sync_state.
const (
	SyncStateLastPassAt     = "last_pass_at"
	SyncStateLastPassResult = "last_pass_result"
)

// SetSyncState stores a key/value checkpoint.
func (db *DB) SetSyncState(key, value string) error {
	_, err := db.Exec(`
		INSERT INTO sync_state (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at`,
		key, value, time.Now().UnixMilli())
	return err
}

// GetSyncState returns a checkpoint value, or "" when the key is absent.
func (db *DB) GetSyncState(key string) (string, error) {
	var value string
	err := db.QueryRow(`SELECT value FROM sync_state WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}
